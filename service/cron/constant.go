package cron

const (
	JOB_NULL = iota
	JOB_SYNC_STRATEGY
	JOB_RETENTION_CLEANUP
)

const (
	SCHEDULE_EVERY_DAY  = "0 0 0 * * ?"
	SCHEDULE_EVERY_HOUR = "0 0 * * * ?"
	SCHEDULE_EVERY_MIN  = "0 * * * * ?"

	SCHEDULE_CLEANUP_DEFAULT = "0 30 3 * * ?"
)
