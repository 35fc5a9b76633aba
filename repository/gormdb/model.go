package gormdb

import (
	"time"

	"gorm.io/gorm"
)

type TblInstance struct {
	gorm.Model
	InstanceId string `gorm:"index:idx_instance,unique; column:instance_id"`
	Config     string `gorm:"type:text; column:config"`
}

func (v TblInstance) TableName() string {
	return TBL_INSTANCE
}

type TblStrategy struct {
	gorm.Model
	StrategyId string `gorm:"index:idx_strategy,unique; column:strategy_id"`
	InstanceId string `gorm:"index:idx_instance; column:instance_id"`
	Config     string `gorm:"type:text; column:config"`
}

func (v TblStrategy) TableName() string {
	return TBL_STRATEGY
}

// TblRecord keeps the filter columns the claim and chain queries need;
// the rest of the record travels as a json blob like the other tables.
type TblRecord struct {
	RecordId     string    `gorm:"primaryKey; column:record_id"`
	InstanceId   string    `gorm:"index:idx_instance; column:instance_id"`
	BaseRecordId string    `gorm:"index:idx_base; column:base_record_id"`
	Status       string    `gorm:"index:idx_status; column:status"`
	CreateTime   time.Time `gorm:"column:create_time"`
	Config       string    `gorm:"type:text; column:config"`
}

func (v TblRecord) TableName() string {
	return TBL_RECORD
}

type TblTask struct {
	TaskId string `gorm:"primaryKey; column:task_id"`
	Status string `gorm:"column:status"`
	Config string `gorm:"type:text; column:config"`
}

func (v TblTask) TableName() string {
	return TBL_TASK
}
