package gormdb

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
	mysqldriver "gorm.io/driver/mysql"
	postgresdriver "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"moul.io/zapgorm2"

	"github.com/dbguardian/dbguardian/log"
	"github.com/dbguardian/dbguardian/model"
	"github.com/dbguardian/dbguardian/repository"
)

// GormPersistent serves both the mysql and the postgres policy; the
// dialect is the only difference between them.
type GormPersistent struct {
	Dialect  string
	Config   DBConfig
	Client   *gorm.DB
	ParentDB *gorm.DB
}

func NewGormPersistent(dialect string) *GormPersistent {
	return &GormPersistent{Dialect: dialect}
}

func (gp *GormPersistent) UnmarshalConfig(configMap map[string]interface{}) interface{} {
	var config DBConfig
	data, err := json.Marshal(configMap)
	if err != nil {
		log.Logger.Errorf("marshal %s configMap failed:%v", gp.Dialect, err)
		return nil
	}
	if err = json.Unmarshal(data, &config); err != nil {
		log.Logger.Errorf("unmarshal %s config failed:%v", gp.Dialect, err)
		return nil
	}
	return config
}

func (gp *GormPersistent) open() (*gorm.DB, error) {
	logger := zapgorm2.New(log.ZapLog)
	logger.SetAsDefault()
	gormConfig := &gorm.Config{Logger: logger}
	switch gp.Dialect {
	case MySQLPersistentName:
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			gp.Config.User,
			gp.Config.Password,
			gp.Config.Host,
			gp.Config.Port,
			gp.Config.DataBase)
		return gorm.Open(mysqldriver.Open(dsn), gormConfig)
	case PostgresPersistentName:
		dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable TimeZone=Local",
			gp.Config.Host,
			gp.Config.User,
			gp.Config.Password,
			gp.Config.DataBase,
			gp.Config.Port)
		return gorm.Open(postgresdriver.Open(dsn), gormConfig)
	}
	return nil, errors.Errorf("unsupported dialect %s", gp.Dialect)
}

func (gp *GormPersistent) Init(config interface{}) error {
	if config == nil {
		config = DBConfig{}
	}
	gp.Config = config.(DBConfig)
	defaultPort := 3306
	if gp.Dialect == PostgresPersistentName {
		defaultPort = 5432
	}
	gp.Config.Normalize(defaultPort)

	db, err := gp.open()
	if err != nil {
		return errors.Wrap(err, "")
	}
	sqlDB, err := db.DB()
	if err != nil {
		return errors.Wrap(err, "")
	}
	if sqlDB != nil {
		sqlDB.SetMaxIdleConns(gp.Config.MaxIdleConns)
		sqlDB.SetConnMaxIdleTime(time.Second * time.Duration(gp.Config.ConnMaxIdleTime))
		sqlDB.SetMaxOpenConns(gp.Config.MaxOpenConns)
		sqlDB.SetConnMaxLifetime(time.Second * time.Duration(gp.Config.ConnMaxLifetime))
	}
	gp.Client = db
	gp.ParentDB = gp.Client

	//auto create tables
	migrator := gp.Client
	if gp.Dialect == MySQLPersistentName {
		migrator = migrator.Set("gorm:table_options", "ENGINE=InnoDB DEFAULT CHARSET=utf8mb4")
	}
	err = migrator.AutoMigrate(
		&TblInstance{},
		&TblStrategy{},
		&TblRecord{},
		&TblTask{},
	)
	if err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}

func (gp *GormPersistent) Begin() error {
	if gp.Client != gp.ParentDB {
		return repository.ErrTransActionBegin
	}
	tx := gp.Client.Begin()
	gp.Client = tx
	return tx.Error
}

func (gp *GormPersistent) Rollback() error {
	if gp.Client == gp.ParentDB {
		return repository.ErrTransActionEnd
	}
	tx := gp.Client.Rollback()
	gp.Client = gp.ParentDB
	return tx.Error
}

func (gp *GormPersistent) Commit() error {
	if gp.Client == gp.ParentDB {
		return repository.ErrTransActionEnd
	}
	tx := gp.Client.Commit()
	gp.Client = gp.ParentDB
	return tx.Error
}

func wrapError(err error) error {
	if err == gorm.ErrRecordNotFound {
		return repository.ErrRecordNotFound
	}
	return errors.Wrap(err, "")
}

func (gp *GormPersistent) CreateInstance(instance model.Instance) error {
	if _, err := gp.GetInstanceById(instance.InstanceId); err == nil {
		return repository.ErrRecordExists
	}
	repository.EncodeInstancePasswd(&instance)
	config, err := json.Marshal(instance)
	if err != nil {
		return errors.Wrap(err, "")
	}
	table := TblInstance{
		InstanceId: instance.InstanceId,
		Config:     string(config),
	}
	tx := gp.Client.Create(&table)
	return tx.Error
}

func (gp *GormPersistent) UpdateInstance(instance model.Instance) error {
	var table TblInstance
	if tx := gp.Client.Where("instance_id = ?", instance.InstanceId).First(&table); tx.Error != nil {
		return wrapError(tx.Error)
	}
	repository.EncodeInstancePasswd(&instance)
	config, err := json.Marshal(instance)
	if err != nil {
		return errors.Wrap(err, "")
	}
	tx := gp.Client.Model(&TblInstance{}).Where("instance_id = ?", instance.InstanceId).Update("config", string(config))
	return tx.Error
}

func (gp *GormPersistent) DeleteInstance(instanceId string) error {
	tx := gp.Client.Where("instance_id = ?", instanceId).Unscoped().Delete(&TblInstance{})
	return tx.Error
}

func (gp *GormPersistent) GetInstanceById(instanceId string) (model.Instance, error) {
	var table TblInstance
	tx := gp.Client.Where("instance_id = ?", instanceId).First(&table)
	if tx.Error != nil {
		return model.Instance{}, wrapError(tx.Error)
	}
	var instance model.Instance
	if err := json.Unmarshal([]byte(table.Config), &instance); err != nil {
		return model.Instance{}, errors.Wrap(err, "")
	}
	repository.DecodeInstancePasswd(&instance)
	return instance, nil
}

func (gp *GormPersistent) GetAllInstances() ([]model.Instance, error) {
	var tables []TblInstance
	tx := gp.Client.Order("instance_id").Find(&tables)
	if tx.Error != nil && tx.Error != gorm.ErrRecordNotFound {
		return nil, errors.Wrap(tx.Error, "")
	}
	instances := make([]model.Instance, 0, len(tables))
	for _, table := range tables {
		var instance model.Instance
		if err := json.Unmarshal([]byte(table.Config), &instance); err != nil {
			return nil, errors.Wrap(err, "")
		}
		repository.DecodeInstancePasswd(&instance)
		instances = append(instances, instance)
	}
	return instances, nil
}

func (gp *GormPersistent) CreateStrategy(strategy model.BackupStrategy) error {
	if _, err := gp.GetStrategyById(strategy.StrategyId); err == nil {
		return repository.ErrRecordExists
	}
	repository.EncodeTargetPasswd(&strategy.Storage)
	config, err := json.Marshal(strategy)
	if err != nil {
		return errors.Wrap(err, "")
	}
	table := TblStrategy{
		StrategyId: strategy.StrategyId,
		InstanceId: strategy.InstanceId,
		Config:     string(config),
	}
	tx := gp.Client.Create(&table)
	return tx.Error
}

func (gp *GormPersistent) UpdateStrategy(strategy model.BackupStrategy) error {
	var table TblStrategy
	if tx := gp.Client.Where("strategy_id = ?", strategy.StrategyId).First(&table); tx.Error != nil {
		return wrapError(tx.Error)
	}
	repository.EncodeTargetPasswd(&strategy.Storage)
	config, err := json.Marshal(strategy)
	if err != nil {
		return errors.Wrap(err, "")
	}
	tx := gp.Client.Model(&TblStrategy{}).Where("strategy_id = ?", strategy.StrategyId).
		Updates(map[string]interface{}{"instance_id": strategy.InstanceId, "config": string(config)})
	return tx.Error
}

func (gp *GormPersistent) DeleteStrategy(strategyId string) error {
	tx := gp.Client.Where("strategy_id = ?", strategyId).Unscoped().Delete(&TblStrategy{})
	return tx.Error
}

func (gp *GormPersistent) GetStrategyById(strategyId string) (model.BackupStrategy, error) {
	var table TblStrategy
	tx := gp.Client.Where("strategy_id = ?", strategyId).First(&table)
	if tx.Error != nil {
		return model.BackupStrategy{}, wrapError(tx.Error)
	}
	var strategy model.BackupStrategy
	if err := json.Unmarshal([]byte(table.Config), &strategy); err != nil {
		return model.BackupStrategy{}, errors.Wrap(err, "")
	}
	repository.DecodeTargetPasswd(&strategy.Storage)
	return strategy, nil
}

func (gp *GormPersistent) GetAllStrategies() ([]model.BackupStrategy, error) {
	var tables []TblStrategy
	tx := gp.Client.Order("strategy_id").Find(&tables)
	if tx.Error != nil && tx.Error != gorm.ErrRecordNotFound {
		return nil, errors.Wrap(tx.Error, "")
	}
	strategies := make([]model.BackupStrategy, 0, len(tables))
	for _, table := range tables {
		var strategy model.BackupStrategy
		if err := json.Unmarshal([]byte(table.Config), &strategy); err != nil {
			return nil, errors.Wrap(err, "")
		}
		repository.DecodeTargetPasswd(&strategy.Storage)
		strategies = append(strategies, strategy)
	}
	return strategies, nil
}

func recordToTable(record model.BackupRecord) (TblRecord, error) {
	repository.EncodeTargetPasswd(&record.Storage)
	config, err := json.Marshal(record)
	if err != nil {
		return TblRecord{}, errors.Wrap(err, "")
	}
	return TblRecord{
		RecordId:     record.RecordId,
		InstanceId:   record.InstanceId,
		BaseRecordId: record.BaseRecordId,
		Status:       record.Status,
		CreateTime:   record.CreateTime,
		Config:       string(config),
	}, nil
}

func tableToRecord(table TblRecord) (model.BackupRecord, error) {
	var record model.BackupRecord
	if err := json.Unmarshal([]byte(table.Config), &record); err != nil {
		return model.BackupRecord{}, errors.Wrap(err, "")
	}
	repository.DecodeTargetPasswd(&record.Storage)
	return record, nil
}

// CreateRecordIfIdle claims the instance inside one transaction. A
// plain count-then-insert is not enough: under REPEATABLE READ (mysql)
// or READ COMMITTED (postgres) two concurrent claims both count zero
// and both insert. Locking the instance row first serializes claims for
// the same instance across processes.
func (gp *GormPersistent) CreateRecordIfIdle(record model.BackupRecord) error {
	table, err := recordToTable(record)
	if err != nil {
		return err
	}
	return gp.Client.Transaction(func(tx *gorm.DB) error {
		var instance TblInstance
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("instance_id = ?", record.InstanceId).
			First(&instance).Error; err != nil {
			return wrapError(err)
		}
		var count int64
		if err := tx.Model(&TblRecord{}).
			Where("instance_id = ? AND status IN ?", record.InstanceId,
				[]string{model.BackupStatusPending, model.BackupStatusRunning}).
			Count(&count).Error; err != nil {
			return errors.Wrap(err, "")
		}
		if count > 0 {
			return repository.ErrInstanceBusy
		}
		return tx.Create(&table).Error
	})
}

func (gp *GormPersistent) CreateRecord(record model.BackupRecord) error {
	if _, err := gp.GetRecordById(record.RecordId); err == nil {
		return repository.ErrRecordExists
	}
	table, err := recordToTable(record)
	if err != nil {
		return err
	}
	tx := gp.Client.Create(&table)
	return tx.Error
}

func (gp *GormPersistent) UpdateRecord(record model.BackupRecord) error {
	var table TblRecord
	if tx := gp.Client.Where("record_id = ?", record.RecordId).First(&table); tx.Error != nil {
		return wrapError(tx.Error)
	}
	updated, err := recordToTable(record)
	if err != nil {
		return err
	}
	tx := gp.Client.Model(&TblRecord{}).Where("record_id = ?", record.RecordId).
		Updates(map[string]interface{}{
			"base_record_id": updated.BaseRecordId,
			"status":         updated.Status,
			"config":         updated.Config,
		})
	return tx.Error
}

func (gp *GormPersistent) DeleteRecord(recordId string) error {
	tx := gp.Client.Where("record_id = ?", recordId).Delete(&TblRecord{})
	return tx.Error
}

func (gp *GormPersistent) GetRecordById(recordId string) (model.BackupRecord, error) {
	var table TblRecord
	tx := gp.Client.Where("record_id = ?", recordId).First(&table)
	if tx.Error != nil {
		return model.BackupRecord{}, wrapError(tx.Error)
	}
	return tableToRecord(table)
}

func (gp *GormPersistent) recordsWhere(query string, args ...interface{}) ([]model.BackupRecord, error) {
	var tables []TblRecord
	tx := gp.Client.Where(query, args...).Order("create_time DESC, record_id DESC").Find(&tables)
	if tx.Error != nil && tx.Error != gorm.ErrRecordNotFound {
		return nil, errors.Wrap(tx.Error, "")
	}
	records := make([]model.BackupRecord, 0, len(tables))
	for _, table := range tables {
		record, err := tableToRecord(table)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

func (gp *GormPersistent) GetRecordsByInstance(instanceId string) ([]model.BackupRecord, error) {
	return gp.recordsWhere("instance_id = ?", instanceId)
}

func (gp *GormPersistent) GetRecordsByBase(baseRecordId string) ([]model.BackupRecord, error) {
	return gp.recordsWhere("base_record_id = ?", baseRecordId)
}

func (gp *GormPersistent) GetAllRecords() ([]model.BackupRecord, error) {
	return gp.recordsWhere("1 = 1")
}

func (gp *GormPersistent) CreateTask(task model.OneOffTask) error {
	if _, err := gp.GetTaskById(task.TaskId); err == nil {
		return repository.ErrRecordExists
	}
	repository.EncodeTargetPasswd(&task.Storage)
	config, err := json.Marshal(task)
	if err != nil {
		return errors.Wrap(err, "")
	}
	table := TblTask{
		TaskId: task.TaskId,
		Status: task.Status,
		Config: string(config),
	}
	tx := gp.Client.Create(&table)
	return tx.Error
}

func (gp *GormPersistent) UpdateTask(task model.OneOffTask) error {
	var table TblTask
	if tx := gp.Client.Where("task_id = ?", task.TaskId).First(&table); tx.Error != nil {
		return wrapError(tx.Error)
	}
	repository.EncodeTargetPasswd(&task.Storage)
	config, err := json.Marshal(task)
	if err != nil {
		return errors.Wrap(err, "")
	}
	tx := gp.Client.Model(&TblTask{}).Where("task_id = ?", task.TaskId).
		Updates(map[string]interface{}{"status": task.Status, "config": string(config)})
	return tx.Error
}

func (gp *GormPersistent) DeleteTask(taskId string) error {
	tx := gp.Client.Where("task_id = ?", taskId).Delete(&TblTask{})
	return tx.Error
}

func (gp *GormPersistent) GetTaskById(taskId string) (model.OneOffTask, error) {
	var table TblTask
	tx := gp.Client.Where("task_id = ?", taskId).First(&table)
	if tx.Error != nil {
		return model.OneOffTask{}, wrapError(tx.Error)
	}
	var task model.OneOffTask
	if err := json.Unmarshal([]byte(table.Config), &task); err != nil {
		return model.OneOffTask{}, errors.Wrap(err, "")
	}
	repository.DecodeTargetPasswd(&task.Storage)
	return task, nil
}

func (gp *GormPersistent) GetAllTasks() ([]model.OneOffTask, error) {
	var tables []TblTask
	tx := gp.Client.Order("task_id").Find(&tables)
	if tx.Error != nil && tx.Error != gorm.ErrRecordNotFound {
		return nil, errors.Wrap(tx.Error, "")
	}
	tasks := make([]model.OneOffTask, 0, len(tables))
	for _, table := range tables {
		var task model.OneOffTask
		if err := json.Unmarshal([]byte(table.Config), &task); err != nil {
			return nil, errors.Wrap(err, "")
		}
		repository.DecodeTargetPasswd(&task.Storage)
		tasks = append(tasks, task)
	}
	return tasks, nil
}
