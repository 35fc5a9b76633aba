package repository

import (
	"github.com/pkg/errors"

	"github.com/dbguardian/dbguardian/config"
	"github.com/dbguardian/dbguardian/model"
)

var Ps PersistentMgr

// Global registry mapping adapter name to the adapter factory
var PersistentRegistry map[string]PersistentFactory = make(map[string]PersistentFactory)

type PersistentFactory interface {
	GetPersistentName() string
	// Create an adapter instance
	CreatePersistent() PersistentMgr
}

type PersistentMgr interface {
	UnmarshalConfig(configMap map[string]interface{}) interface{}

	Init(config interface{}) error

	//start transaction
	Begin() error

	//commit transaction
	Commit() error

	Rollback() error

	CreateInstance(instance model.Instance) error
	UpdateInstance(instance model.Instance) error
	DeleteInstance(instanceId string) error
	GetInstanceById(instanceId string) (model.Instance, error)
	GetAllInstances() ([]model.Instance, error)

	CreateStrategy(strategy model.BackupStrategy) error
	UpdateStrategy(strategy model.BackupStrategy) error
	DeleteStrategy(strategyId string) error
	GetStrategyById(strategyId string) (model.BackupStrategy, error)
	GetAllStrategies() ([]model.BackupStrategy, error)

	//create the record only when the instance has no pending or
	//running record; the check and the insert are atomic
	CreateRecordIfIdle(record model.BackupRecord) error
	CreateRecord(record model.BackupRecord) error
	UpdateRecord(record model.BackupRecord) error
	DeleteRecord(recordId string) error
	GetRecordById(recordId string) (model.BackupRecord, error)
	GetRecordsByInstance(instanceId string) ([]model.BackupRecord, error)
	//records whose base_record_id equals the given record
	GetRecordsByBase(baseRecordId string) ([]model.BackupRecord, error)
	GetAllRecords() ([]model.BackupRecord, error)

	CreateTask(task model.OneOffTask) error
	UpdateTask(task model.OneOffTask) error
	DeleteTask(taskId string) error
	GetTaskById(taskId string) (model.OneOffTask, error)
	GetAllTasks() ([]model.OneOffTask, error)
}

func RegistePersistent(fn func() PersistentFactory) {
	if fn == nil {
		return
	}
	factory := fn()
	name := factory.GetPersistentName()
	if name == "" {
		panic("Empty persistent name when registe persistent factory")
	}
	PersistentRegistry[name] = factory
}

func GetPersistentByName(name string) PersistentMgr {
	if factory, ok := PersistentRegistry[name]; ok {
		return factory.CreatePersistent()
	}
	return nil
}

func InitPersistent() error {
	if Ps == nil {
		Ps = GetPersistentByName(config.GlobalConfig.Server.PersistentPolicy)
	}
	if Ps == nil {
		return errors.Errorf("persistent policy %s is not regist", config.GlobalConfig.Server.PersistentPolicy)
	}

	var pcfg interface{}
	if config.GlobalConfig.PersistentConfig != nil {
		configMap, ok := config.GlobalConfig.PersistentConfig[config.GlobalConfig.Server.PersistentPolicy]
		if !ok {
			pcfg = nil
		} else {
			pcfg = Ps.UnmarshalConfig(configMap)
		}
	}
	if err := Ps.Init(pcfg); err != nil {
		return err
	}
	return nil
}
