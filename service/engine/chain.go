package engine

import (
	"github.com/pkg/errors"

	"github.com/dbguardian/dbguardian/config"
	"github.com/dbguardian/dbguardian/log"
	"github.com/dbguardian/dbguardian/model"
	"github.com/dbguardian/dbguardian/repository"
	"github.com/dbguardian/dbguardian/storage"
)

const maxChainDepth = 64

// ResolveChain walks the base pointers from the record back to its
// full or hot root and returns the links base-first. A missing or
// failed link yields ErrBrokenChain.
func ResolveChain(recordId string) ([]model.BackupRecord, error) {
	record, err := repository.Ps.GetRecordById(recordId)
	if err != nil {
		return nil, err
	}
	chain := []model.BackupRecord{record}
	for depth := 0; record.BackupType == model.BackupTypeIncremental; depth++ {
		if depth >= maxChainDepth {
			return nil, errors.Wrapf(ErrBrokenChain, "chain of %s exceeds depth %d", recordId, maxChainDepth)
		}
		if record.BaseRecordId == "" {
			return nil, errors.Wrapf(ErrBrokenChain, "incremental %s has no base pointer", record.RecordId)
		}
		base, err := repository.Ps.GetRecordById(record.BaseRecordId)
		if err != nil {
			return nil, errors.Wrapf(ErrBrokenChain, "base %s of %s is gone", record.BaseRecordId, record.RecordId)
		}
		if base.Status != model.BackupStatusSuccess {
			return nil, errors.Wrapf(ErrBrokenChain, "base %s of %s is %s", base.RecordId, record.RecordId, base.Status)
		}
		chain = append([]model.BackupRecord{base}, chain...)
		record = base
	}
	return chain, nil
}

// ResolveBase picks the base for a new incremental backup: the newest
// successful hot or incremental record of the instance whose own chain
// still walks back to an intact root. Returns ErrNoBaseAvailable when
// nothing qualifies.
func ResolveBase(instanceId string) (model.BackupRecord, error) {
	records, err := repository.Ps.GetRecordsByInstance(instanceId)
	if err != nil {
		return model.BackupRecord{}, err
	}
	for _, record := range records {
		if !record.BaseEligible() {
			continue
		}
		if record.BackupType == model.BackupTypeIncremental {
			if _, err = ResolveChain(record.RecordId); err != nil {
				log.Logger.Warnf("skip base candidate %s: %v", record.RecordId, err)
				continue
			}
		}
		return record, nil
	}
	return model.BackupRecord{}, ErrNoBaseAvailable
}

// collectDependents gathers every record whose chain passes through
// recordId, depth-first.
func collectDependents(recordId string) ([]model.BackupRecord, error) {
	direct, err := repository.Ps.GetRecordsByBase(recordId)
	if err != nil {
		return nil, err
	}
	var all []model.BackupRecord
	for _, record := range direct {
		all = append(all, record)
		nested, err := collectDependents(record.RecordId)
		if err != nil {
			return nil, err
		}
		all = append(all, nested...)
	}
	return all, nil
}

// DeleteRecord removes a record and its stored artifact. When newer
// incrementals depend on it the delete is refused unless cascade
// deletion is enabled, in which case the whole subtree goes in one
// transaction.
func DeleteRecord(recordId string) error {
	record, err := repository.Ps.GetRecordById(recordId)
	if err != nil {
		return err
	}
	dependents, err := collectDependents(recordId)
	if err != nil {
		return err
	}
	if len(dependents) > 0 && !config.GlobalConfig.Backup.CascadeDelete {
		return errors.Wrapf(ErrChainDependency, "%d records depend on %s", len(dependents), recordId)
	}

	victims := append([]model.BackupRecord{record}, dependents...)
	if err = repository.Ps.Begin(); err != nil {
		return err
	}
	for _, victim := range victims {
		if err = repository.Ps.DeleteRecord(victim.RecordId); err != nil {
			_ = repository.Ps.Rollback()
			return err
		}
	}
	if err = repository.Ps.Commit(); err != nil {
		return err
	}

	// artifacts go after the metadata commits; a leftover file is
	// recoverable, a dangling record is not
	for _, victim := range victims {
		if victim.Status != model.BackupStatusSuccess || victim.Location.Path == "" {
			continue
		}
		if err = removeArtifact(victim); err != nil {
			log.Logger.Warnf("remove artifact of %s failed: %v", victim.RecordId, err)
		}
	}
	return nil
}

func removeArtifact(record model.BackupRecord) error {
	target, err := targetForRecord(record)
	if err != nil {
		return err
	}
	return target.Remove(record.Location)
}

// targetForRecord rebuilds the storage target an artifact was written
// to. The mysql_host kind needs the instance's ssh credentials again.
func targetForRecord(record model.BackupRecord) (storage.Target, error) {
	var instance *model.Instance
	if record.Storage.Kind == model.StorageMySQLHost {
		inst, err := repository.Ps.GetInstanceById(record.InstanceId)
		if err != nil {
			return nil, err
		}
		instance = &inst
	}
	return GetTargetFn(record.Storage, instance)
}
