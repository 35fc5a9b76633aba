package model

import "time"

// BackupStrategy is owned by the operator domain; the engine and the
// cron trigger only read it.
type BackupStrategy struct {
	StrategyId    string        `json:"strategy_id"` // primary key
	Name          string        `json:"name"`
	InstanceId    string        `json:"instance_id"`
	BackupType    string        `json:"backup_type"`
	CronExpr      string        `json:"cron_expr"`
	RetentionDays int           `json:"retention_days"`
	Enabled       bool          `json:"enabled"`
	Storage       StorageTarget `json:"storage"`
	Databases     []string      `json:"databases"`
	Compress      bool          `json:"compress"`
	CreateTime    time.Time     `json:"create_time"`
	UpdateTime    time.Time     `json:"update_time"`
}

type StrategyReq struct {
	Name          string        `json:"name"`
	InstanceId    string        `json:"instance_id"`
	BackupType    string        `json:"backup_type"`
	CronExpr      string        `json:"cron_expr"`
	RetentionDays int           `json:"retention_days"`
	Enabled       bool          `json:"enabled"`
	Storage       StorageTarget `json:"storage"`
	Databases     []string      `json:"databases"`
	Compress      bool          `json:"compress"`
}
