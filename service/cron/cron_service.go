package cron

import (
	"github.com/robfig/cron/v3"

	"github.com/dbguardian/dbguardian/common"
	"github.com/dbguardian/dbguardian/config"
	"github.com/dbguardian/dbguardian/log"
)

type CronService struct {
	config       config.CronConfig
	jobSchedules map[int16]string
	cron         *cron.Cron
}

var JobList = map[int16]func() error{
	JOB_SYNC_STRATEGY:     SyncStrategies,
	JOB_RETENTION_CLEANUP: CleanExpiredRecords,
}

func NewCronService(config config.CronConfig) *CronService {
	return &CronService{
		config:       config,
		jobSchedules: make(map[int16]string),
		cron:         cron.New(cron.WithSeconds()),
	}
}

func (job *CronService) schedulePadding() {
	job.jobSchedules[JOB_SYNC_STRATEGY] = common.GetStringwithDefault(job.config.StrategySync, SCHEDULE_EVERY_MIN)
	job.jobSchedules[JOB_RETENTION_CLEANUP] = common.GetStringwithDefault(job.config.RetentionCleanup, SCHEDULE_CLEANUP_DEFAULT)
}

func (job *CronService) Start() error {
	job.schedulePadding()
	job.cron.Start()
	for k, v := range JobList {
		k := k
		v := v
		if spec, ok := job.jobSchedules[k]; ok {
			_, _ = job.cron.AddFunc(spec, func() {
				_ = v()
			})
		}
	}
	return nil
}

func (job *CronService) Stop() {
	job.cron.Stop()
	stopStrategyCron()
	log.Logger.Infof("cron service stopped")
}
