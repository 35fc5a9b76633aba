package local

import (
	"encoding/json"
	"fmt"
	"os"
	"path"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/dbguardian/dbguardian/common"
	"github.com/dbguardian/dbguardian/log"
	"github.com/dbguardian/dbguardian/model"
	"github.com/dbguardian/dbguardian/repository"
)

type LocalPersistent struct {
	Config        LocalConfig
	InTransAction bool
	Data          PersistentData
	Snapshot      PersistentData
	lock          sync.RWMutex
}

func NewLocalPersistent() *LocalPersistent {
	return &LocalPersistent{}
}

func (lp *LocalPersistent) UnmarshalConfig(configMap map[string]interface{}) interface{} {
	var config LocalConfig
	data, err := json.Marshal(configMap)
	if err != nil {
		log.Logger.Errorf("marshal local configMap failed:%v", err)
		return nil
	}
	if err = json.Unmarshal(data, &config); err != nil {
		log.Logger.Errorf("unmarshal local config failed:%v", err)
		return nil
	}
	return config
}

func (lp *LocalPersistent) Init(config interface{}) error {
	if config == nil {
		config = LocalConfig{}
	}
	lp.Config = config.(LocalConfig)
	lp.Config.Normalize()
	lp.InTransAction = false
	lp.Data.Instances = make(map[string]model.Instance)
	lp.Data.Strategies = make(map[string]model.BackupStrategy)
	lp.Data.Records = make(map[string]model.BackupRecord)
	lp.Data.Tasks = make(map[string]model.OneOffTask)
	lp.Snapshot = PersistentData{}

	if err := os.MkdirAll(lp.Config.ConfigDir, 0755); err != nil {
		return errors.Wrap(err, "")
	}
	return lp.load()
}

func (lp *LocalPersistent) Begin() error {
	lp.lock.Lock()
	defer lp.lock.Unlock()
	if lp.InTransAction {
		return repository.ErrTransActionBegin
	}
	lp.InTransAction = true
	return common.DeepCopyByGob(&lp.Snapshot, &lp.Data)
}

func (lp *LocalPersistent) Commit() error {
	lp.lock.Lock()
	defer lp.lock.Unlock()
	if !lp.InTransAction {
		return repository.ErrTransActionEnd
	}
	lp.InTransAction = false
	return lp.dump()
}

func (lp *LocalPersistent) Rollback() error {
	lp.lock.Lock()
	defer lp.lock.Unlock()
	if !lp.InTransAction {
		return repository.ErrTransActionEnd
	}
	lp.InTransAction = false
	return common.DeepCopyByGob(&lp.Data, &lp.Snapshot)
}

func (lp *LocalPersistent) CreateInstance(instance model.Instance) error {
	lp.lock.Lock()
	defer lp.lock.Unlock()
	if _, ok := lp.Data.Instances[instance.InstanceId]; ok {
		return repository.ErrRecordExists
	}
	repository.EncodeInstancePasswd(&instance)
	lp.Data.Instances[instance.InstanceId] = instance
	if !lp.InTransAction {
		_ = lp.dump()
	}
	return nil
}

func (lp *LocalPersistent) UpdateInstance(instance model.Instance) error {
	lp.lock.Lock()
	defer lp.lock.Unlock()
	if _, ok := lp.Data.Instances[instance.InstanceId]; !ok {
		return repository.ErrRecordNotFound
	}
	repository.EncodeInstancePasswd(&instance)
	lp.Data.Instances[instance.InstanceId] = instance
	if !lp.InTransAction {
		_ = lp.dump()
	}
	return nil
}

func (lp *LocalPersistent) DeleteInstance(instanceId string) error {
	lp.lock.Lock()
	defer lp.lock.Unlock()
	delete(lp.Data.Instances, instanceId)
	if !lp.InTransAction {
		_ = lp.dump()
	}
	return nil
}

func (lp *LocalPersistent) GetInstanceById(instanceId string) (model.Instance, error) {
	lp.lock.RLock()
	defer lp.lock.RUnlock()
	instance, ok := lp.Data.Instances[instanceId]
	if !ok {
		return model.Instance{}, repository.ErrRecordNotFound
	}
	repository.DecodeInstancePasswd(&instance)
	return instance, nil
}

func (lp *LocalPersistent) GetAllInstances() ([]model.Instance, error) {
	lp.lock.RLock()
	defer lp.lock.RUnlock()
	instances := make([]model.Instance, 0, len(lp.Data.Instances))
	for _, instance := range lp.Data.Instances {
		repository.DecodeInstancePasswd(&instance)
		instances = append(instances, instance)
	}
	sort.Slice(instances, func(i, j int) bool {
		return instances[i].InstanceId < instances[j].InstanceId
	})
	return instances, nil
}

func (lp *LocalPersistent) CreateStrategy(strategy model.BackupStrategy) error {
	lp.lock.Lock()
	defer lp.lock.Unlock()
	if _, ok := lp.Data.Strategies[strategy.StrategyId]; ok {
		return repository.ErrRecordExists
	}
	repository.EncodeTargetPasswd(&strategy.Storage)
	lp.Data.Strategies[strategy.StrategyId] = strategy
	if !lp.InTransAction {
		_ = lp.dump()
	}
	return nil
}

func (lp *LocalPersistent) UpdateStrategy(strategy model.BackupStrategy) error {
	lp.lock.Lock()
	defer lp.lock.Unlock()
	if _, ok := lp.Data.Strategies[strategy.StrategyId]; !ok {
		return repository.ErrRecordNotFound
	}
	repository.EncodeTargetPasswd(&strategy.Storage)
	lp.Data.Strategies[strategy.StrategyId] = strategy
	if !lp.InTransAction {
		_ = lp.dump()
	}
	return nil
}

func (lp *LocalPersistent) DeleteStrategy(strategyId string) error {
	lp.lock.Lock()
	defer lp.lock.Unlock()
	delete(lp.Data.Strategies, strategyId)
	if !lp.InTransAction {
		_ = lp.dump()
	}
	return nil
}

func (lp *LocalPersistent) GetStrategyById(strategyId string) (model.BackupStrategy, error) {
	lp.lock.RLock()
	defer lp.lock.RUnlock()
	strategy, ok := lp.Data.Strategies[strategyId]
	if !ok {
		return model.BackupStrategy{}, repository.ErrRecordNotFound
	}
	repository.DecodeTargetPasswd(&strategy.Storage)
	return strategy, nil
}

func (lp *LocalPersistent) GetAllStrategies() ([]model.BackupStrategy, error) {
	lp.lock.RLock()
	defer lp.lock.RUnlock()
	strategies := make([]model.BackupStrategy, 0, len(lp.Data.Strategies))
	for _, strategy := range lp.Data.Strategies {
		repository.DecodeTargetPasswd(&strategy.Storage)
		strategies = append(strategies, strategy)
	}
	sort.Slice(strategies, func(i, j int) bool {
		return strategies[i].StrategyId < strategies[j].StrategyId
	})
	return strategies, nil
}

func (lp *LocalPersistent) CreateRecordIfIdle(record model.BackupRecord) error {
	lp.lock.Lock()
	defer lp.lock.Unlock()
	for _, exist := range lp.Data.Records {
		if exist.InstanceId == record.InstanceId && !exist.IsTerminal() {
			return repository.ErrInstanceBusy
		}
	}
	if _, ok := lp.Data.Records[record.RecordId]; ok {
		return repository.ErrRecordExists
	}
	repository.EncodeTargetPasswd(&record.Storage)
	lp.Data.Records[record.RecordId] = record
	if !lp.InTransAction {
		_ = lp.dump()
	}
	return nil
}

func (lp *LocalPersistent) CreateRecord(record model.BackupRecord) error {
	lp.lock.Lock()
	defer lp.lock.Unlock()
	if _, ok := lp.Data.Records[record.RecordId]; ok {
		return repository.ErrRecordExists
	}
	repository.EncodeTargetPasswd(&record.Storage)
	lp.Data.Records[record.RecordId] = record
	if !lp.InTransAction {
		_ = lp.dump()
	}
	return nil
}

func (lp *LocalPersistent) UpdateRecord(record model.BackupRecord) error {
	lp.lock.Lock()
	defer lp.lock.Unlock()
	if _, ok := lp.Data.Records[record.RecordId]; !ok {
		return repository.ErrRecordNotFound
	}
	repository.EncodeTargetPasswd(&record.Storage)
	lp.Data.Records[record.RecordId] = record
	if !lp.InTransAction {
		_ = lp.dump()
	}
	return nil
}

func (lp *LocalPersistent) DeleteRecord(recordId string) error {
	lp.lock.Lock()
	defer lp.lock.Unlock()
	delete(lp.Data.Records, recordId)
	if !lp.InTransAction {
		_ = lp.dump()
	}
	return nil
}

func (lp *LocalPersistent) GetRecordById(recordId string) (model.BackupRecord, error) {
	lp.lock.RLock()
	defer lp.lock.RUnlock()
	record, ok := lp.Data.Records[recordId]
	if !ok {
		return model.BackupRecord{}, repository.ErrRecordNotFound
	}
	repository.DecodeTargetPasswd(&record.Storage)
	return record, nil
}

func (lp *LocalPersistent) GetRecordsByInstance(instanceId string) ([]model.BackupRecord, error) {
	lp.lock.RLock()
	defer lp.lock.RUnlock()
	var records []model.BackupRecord
	for _, record := range lp.Data.Records {
		if record.InstanceId == instanceId {
			repository.DecodeTargetPasswd(&record.Storage)
			records = append(records, record)
		}
	}
	sortRecords(records)
	return records, nil
}

func (lp *LocalPersistent) GetRecordsByBase(baseRecordId string) ([]model.BackupRecord, error) {
	lp.lock.RLock()
	defer lp.lock.RUnlock()
	var records []model.BackupRecord
	for _, record := range lp.Data.Records {
		if record.BaseRecordId == baseRecordId {
			repository.DecodeTargetPasswd(&record.Storage)
			records = append(records, record)
		}
	}
	sortRecords(records)
	return records, nil
}

func (lp *LocalPersistent) GetAllRecords() ([]model.BackupRecord, error) {
	lp.lock.RLock()
	defer lp.lock.RUnlock()
	records := make([]model.BackupRecord, 0, len(lp.Data.Records))
	for _, record := range lp.Data.Records {
		repository.DecodeTargetPasswd(&record.Storage)
		records = append(records, record)
	}
	sortRecords(records)
	return records, nil
}

// newest first, ties broken by id for determinism
func sortRecords(records []model.BackupRecord) {
	sort.Slice(records, func(i, j int) bool {
		if !records[i].CreateTime.Equal(records[j].CreateTime) {
			return records[i].CreateTime.After(records[j].CreateTime)
		}
		return records[i].RecordId > records[j].RecordId
	})
}

func (lp *LocalPersistent) CreateTask(task model.OneOffTask) error {
	lp.lock.Lock()
	defer lp.lock.Unlock()
	if _, ok := lp.Data.Tasks[task.TaskId]; ok {
		return repository.ErrRecordExists
	}
	repository.EncodeTargetPasswd(&task.Storage)
	lp.Data.Tasks[task.TaskId] = task
	if !lp.InTransAction {
		_ = lp.dump()
	}
	return nil
}

func (lp *LocalPersistent) UpdateTask(task model.OneOffTask) error {
	lp.lock.Lock()
	defer lp.lock.Unlock()
	if _, ok := lp.Data.Tasks[task.TaskId]; !ok {
		return repository.ErrRecordNotFound
	}
	repository.EncodeTargetPasswd(&task.Storage)
	lp.Data.Tasks[task.TaskId] = task
	if !lp.InTransAction {
		_ = lp.dump()
	}
	return nil
}

func (lp *LocalPersistent) DeleteTask(taskId string) error {
	lp.lock.Lock()
	defer lp.lock.Unlock()
	delete(lp.Data.Tasks, taskId)
	if !lp.InTransAction {
		_ = lp.dump()
	}
	return nil
}

func (lp *LocalPersistent) GetTaskById(taskId string) (model.OneOffTask, error) {
	lp.lock.RLock()
	defer lp.lock.RUnlock()
	task, ok := lp.Data.Tasks[taskId]
	if !ok {
		return model.OneOffTask{}, repository.ErrRecordNotFound
	}
	repository.DecodeTargetPasswd(&task.Storage)
	return task, nil
}

func (lp *LocalPersistent) GetAllTasks() ([]model.OneOffTask, error) {
	lp.lock.RLock()
	defer lp.lock.RUnlock()
	tasks := make([]model.OneOffTask, 0, len(lp.Data.Tasks))
	for _, task := range lp.Data.Tasks {
		repository.DecodeTargetPasswd(&task.Storage)
		tasks = append(tasks, task)
	}
	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].TaskId < tasks[j].TaskId
	})
	return tasks, nil
}

func (lp *LocalPersistent) marshal() ([]byte, error) {
	var data []byte
	var err error
	if lp.Config.Format == FORMAT_JSON {
		data, err = json.MarshalIndent(lp.Data, "", "  ")
	} else if lp.Config.Format == FORMAT_YAML {
		data, err = yaml.Marshal(lp.Data)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "")
	}
	return data, nil
}

func (lp *LocalPersistent) unmarshal(data []byte) error {
	var err error
	if len(data) == 0 {
		return nil
	}
	if lp.Config.Format == FORMAT_JSON {
		err = json.Unmarshal(data, &lp.Data)
	} else if lp.Config.Format == FORMAT_YAML {
		err = yaml.Unmarshal(data, &lp.Data)
	}
	if err != nil {
		return errors.Wrapf(err, "")
	}
	return nil
}

func (lp *LocalPersistent) dump() error {
	data, err := lp.marshal()
	if err != nil {
		return err
	}
	localFile := path.Join(lp.Config.ConfigDir, lp.Config.ConfigFile)
	_ = os.Rename(localFile, fmt.Sprintf("%s.last", localFile))
	localFd, err := os.OpenFile(localFile, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0666)
	if err != nil {
		return errors.Wrapf(err, "")
	}
	defer localFd.Close()

	num, err := localFd.Write(data)
	if err != nil {
		return errors.Wrapf(err, "")
	}
	if num != len(data) {
		return errors.Errorf("didn't write enough data")
	}
	return nil
}

func (lp *LocalPersistent) load() error {
	localFile := path.Join(lp.Config.ConfigDir, lp.Config.ConfigFile)

	_, err := os.Stat(localFile)
	if err != nil {
		// file does not exist
		return nil
	}

	data, err := os.ReadFile(localFile)
	if err != nil {
		return errors.Wrapf(err, "")
	}
	return lp.unmarshal(data)
}
