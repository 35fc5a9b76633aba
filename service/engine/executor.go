package engine

import (
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"github.com/go-basic/uuid"
	"github.com/pkg/errors"

	"github.com/dbguardian/dbguardian/common"
	"github.com/dbguardian/dbguardian/config"
	"github.com/dbguardian/dbguardian/log"
	"github.com/dbguardian/dbguardian/metrics"
	"github.com/dbguardian/dbguardian/model"
	"github.com/dbguardian/dbguardian/registry"
	"github.com/dbguardian/dbguardian/remote"
	"github.com/dbguardian/dbguardian/repository"
	"github.com/dbguardian/dbguardian/storage"
)

// Seams for tests: jobs dial hosts and resolve storage through these.
var (
	DialFn      remote.Factory                                               = remote.DialInstance
	GetTargetFn func(model.StorageTarget, *model.Instance) (storage.Target, error) = storage.GetTarget
)

// Execute claims the instance and runs the backup in the calling
// goroutine. The record id comes back even when the job itself fails,
// so callers can always find the outcome.
func Execute(req model.BackupRequest) (string, error) {
	record, err := Claim(&req)
	if err != nil {
		return record.RecordId, err
	}
	return record.RecordId, RunBackup(record, req)
}

// Claim validates the request and creates the pending record. Per
// instance only one non-terminal record may exist; the conditional
// insert in the repository enforces that atomically.
func Claim(req *model.BackupRequest) (model.BackupRecord, error) {
	switch req.BackupType {
	case model.BackupTypeFull, model.BackupTypeHot, model.BackupTypeIncremental, model.BackupTypeCold:
	default:
		return model.BackupRecord{}, errors.Errorf("unknown backup type %s", req.BackupType)
	}

	instance, err := registry.GetInstance(req.InstanceId)
	if err != nil {
		return model.BackupRecord{}, err
	}

	req.Storage.Normalize()
	if err = req.Storage.Validate(); err != nil {
		return model.BackupRecord{}, err
	}

	if req.BackupType != model.BackupTypeFull && !instance.SupportsPhysicalBackup() {
		return model.BackupRecord{}, errors.Errorf("instance %s lacks datadir or ssh access for %s backup", req.InstanceId, req.BackupType)
	}
	if req.BackupType == model.BackupTypeCold && instance.StopStartHandle() == "" {
		return model.BackupRecord{}, errors.Errorf("instance %s has no container or service name for cold backup", req.InstanceId)
	}

	now := time.Now()
	record := model.BackupRecord{
		RecordId:     uuid.New(),
		InstanceId:   req.InstanceId,
		StrategyId:   req.StrategyId,
		TaskId:       req.TaskId,
		BackupType:   req.BackupType,
		DatabaseName: strings.Join(req.Databases, ","),
		Status:       model.BackupStatusPending,
		Storage:      req.Storage,
		Compress:     req.Compress,
		StartTime:    now,
		CreateTime:   now,
		UpdateTime:   now,
	}

	if req.BackupType == model.BackupTypeIncremental {
		var base model.BackupRecord
		if req.BaseRecordId != "" {
			base, err = repository.Ps.GetRecordById(req.BaseRecordId)
			if err != nil {
				return model.BackupRecord{}, err
			}
			if base.InstanceId != req.InstanceId || !base.BaseEligible() {
				return model.BackupRecord{}, errors.Errorf("record %s is not an eligible base", req.BaseRecordId)
			}
		} else {
			base, err = ResolveBase(req.InstanceId)
			if err == ErrNoBaseAvailable {
				// leave a visible failed record so the miss is auditable
				failRecordFast(record, err.Error())
				return record, err
			}
			if err != nil {
				return model.BackupRecord{}, err
			}
		}
		record.BaseRecordId = base.RecordId
	}

	if err = repository.Ps.CreateRecordIfIdle(record); err != nil {
		if err == repository.ErrInstanceBusy {
			return model.BackupRecord{}, ErrBackupInProgress
		}
		return model.BackupRecord{}, err
	}
	return record, nil
}

// failRecordFast records a request that could not even start. The
// conditional insert still applies so a busy instance is not polluted.
func failRecordFast(record model.BackupRecord, message string) {
	now := time.Now()
	record.Status = model.BackupStatusFailed
	record.ErrorMessage = message
	record.EndTime = &now
	if err := repository.Ps.CreateRecordIfIdle(record); err != nil {
		log.Logger.Warnf("record fast-fail of %s not persisted: %v", record.RecordId, err)
	}
}

// RunBackup executes a claimed record to its terminal status.
func RunBackup(record model.BackupRecord, req model.BackupRequest) error {
	start := time.Now()
	metrics.RunningJobs.Inc()
	defer metrics.RunningJobs.Dec()

	err := runBackupJob(&record, req)

	result := "success"
	if err != nil {
		result = "failed"
	}
	metrics.BackupTotal.WithLabelValues(record.BackupType, result).Inc()
	metrics.BackupDuration.WithLabelValues(record.BackupType).Observe(time.Since(start).Seconds())
	return err
}

func runBackupJob(record *model.BackupRecord, req model.BackupRequest) error {
	record.Status = model.BackupStatusRunning
	record.UpdateTime = time.Now()
	if err := repository.Ps.UpdateRecord(*record); err != nil {
		return err
	}
	log.Logger.Infof("backup %s started: instance %s type %s", record.RecordId, record.InstanceId, record.BackupType)

	err := produceArtifact(record, req)
	if err == nil {
		err = storeArtifact(record)
	}
	if record.LocalArtifact != "" {
		_ = os.Remove(record.LocalArtifact)
		record.LocalArtifact = ""
	}

	// an advisory cancel may have flipped the record while we worked;
	// the cancel wins and the fresh artifact is dropped
	if current, gerr := repository.Ps.GetRecordById(record.RecordId); gerr == nil && current.Status == model.BackupStatusFailed {
		log.Logger.Infof("backup %s was cancelled, discarding result", record.RecordId)
		if record.Location.Path != "" {
			_ = removeArtifact(*record)
		}
		return errors.New(model.ReasonCancelled)
	}

	now := time.Now()
	record.EndTime = &now
	record.UpdateTime = now
	if err != nil {
		record.Status = model.BackupStatusFailed
		record.ErrorMessage = err.Error()
		log.Logger.Errorf("backup %s failed: %v", record.RecordId, err)
	} else {
		record.Status = model.BackupStatusSuccess
		record.ErrorMessage = ""
		metrics.BackupBytes.WithLabelValues(record.Storage.Kind).Add(float64(record.SizeBytes))
		log.Logger.Infof("backup %s done: %s (%s)", record.RecordId, record.Location.String(), common.FormatReadableSize(record.SizeBytes))
	}
	if uerr := repository.Ps.UpdateRecord(*record); uerr != nil {
		log.Logger.Errorf("backup %s final update failed: %v", record.RecordId, uerr)
		if err == nil {
			err = uerr
		}
	}
	return err
}

// produceArtifact runs the type-specific job and leaves the artifact in
// the local scratch directory, with record fields filled in.
func produceArtifact(record *model.BackupRecord, req model.BackupRequest) error {
	instance, err := registry.GetInstance(record.InstanceId)
	if err != nil {
		return err
	}
	executor, err := DialFn(remote.CredentialsFromInstance(&instance))
	if err != nil {
		return err
	}
	defer executor.Close()

	if err = os.MkdirAll(config.GlobalConfig.Backup.ScratchDir, 0755); err != nil {
		return errors.Wrap(err, "")
	}

	var local string
	switch record.BackupType {
	case model.BackupTypeFull:
		local, err = runFull(executor, &instance, record, req)
	case model.BackupTypeHot:
		local, err = runHot(executor, &instance, record)
	case model.BackupTypeIncremental:
		local, err = runIncremental(executor, &instance, record)
	case model.BackupTypeCold:
		local, err = runCold(executor, &instance, record)
	}
	if err != nil {
		return err
	}

	info, err := os.Stat(local)
	if err != nil {
		return errors.Wrap(err, "")
	}
	record.SizeBytes = info.Size()
	record.Checksum, err = common.Sha256File(local)
	if err != nil {
		return err
	}
	record.LocalArtifact = local
	return nil
}

func storeArtifact(record *model.BackupRecord) error {
	instance, err := registry.GetInstance(record.InstanceId)
	if err != nil {
		return err
	}
	target, err := GetTargetFn(record.Storage, &instance)
	if err != nil {
		return err
	}
	name := path.Join(record.InstanceId, path.Base(record.LocalArtifact))
	location, err := target.Write(record.LocalArtifact, name)
	if err != nil {
		return err
	}
	record.Location = location
	// local targets consume the scratch file by rename, the others
	// leave it behind
	if _, err = os.Stat(record.LocalArtifact); err == nil {
		_ = os.Remove(record.LocalArtifact)
	}
	record.LocalArtifact = ""
	return nil
}

func remoteWorkDir(recordId string) string {
	return path.Join(config.GlobalConfig.Backup.RemoteWorkDir, recordId)
}

// chainDir is where prepared physical backup directories stay on the
// database host; incremental runs point xtrabackup at their base here.
func chainDir(instanceId, recordId string) string {
	return path.Join(config.GlobalConfig.Backup.RemoteWorkDir, "chains", instanceId, recordId)
}

func mysqlAuthArgs(instance *model.Instance) string {
	return fmt.Sprintf("--host=%s --port=%d --user=%s --password='%s'",
		instance.Host, common.GetIntwithDefault(instance.Port, 3306), instance.User, instance.Password)
}

func runFull(executor remote.Executor, instance *model.Instance, record *model.BackupRecord, req model.BackupRequest) (string, error) {
	workDir := remoteWorkDir(record.RecordId)
	if _, err := executor.Run(fmt.Sprintf("mkdir -p %s", workDir), 0); err != nil {
		return "", err
	}
	defer func() {
		_, _ = executor.Run(fmt.Sprintf("rm -rf %s", workDir), 0)
	}()

	// a single-database dump is taken without --databases so it carries
	// no CREATE DATABASE/USE statements and stays retargetable
	var scope string
	switch {
	case len(req.Databases) == 1:
		scope = req.Databases[0]
	case len(req.Databases) > 1:
		scope = "--databases " + strings.Join(req.Databases, " ")
	default:
		scope = "--all-databases"
	}
	dumpFile := path.Join(workDir, record.RecordId+".sql")
	cmd := fmt.Sprintf("mysqldump %s --single-transaction --quick --lock-tables=false %s > %s",
		mysqlAuthArgs(instance), scope, dumpFile)
	if _, err := executor.Run(cmd, 0); err != nil {
		return "", err
	}

	if req.Compress {
		if _, err := executor.Run(fmt.Sprintf("gzip -f %s", dumpFile), 0); err != nil {
			return "", err
		}
		dumpFile += ".gz"
	}

	local := path.Join(config.GlobalConfig.Backup.ScratchDir, path.Base(dumpFile))
	if err := executor.Download(dumpFile, local); err != nil {
		return "", err
	}
	return local, nil
}

func xtrabackupBin(instance *model.Instance) string {
	return common.GetStringwithDefault(instance.XtrabackupBin, "xtrabackup")
}

func runHot(executor remote.Executor, instance *model.Instance, record *model.BackupRecord) (string, error) {
	targetDir := chainDir(record.InstanceId, record.RecordId)
	if _, err := executor.Run(fmt.Sprintf("mkdir -p %s", targetDir), 0); err != nil {
		return "", err
	}
	cmd := fmt.Sprintf("%s --backup %s --datadir=%s --target-dir=%s",
		xtrabackupBin(instance), mysqlAuthArgs(instance), instance.DataDir, targetDir)
	if _, err := executor.Run(cmd, 0); err != nil {
		return "", err
	}
	return packAndFetch(executor, record, targetDir)
}

func runIncremental(executor remote.Executor, instance *model.Instance, record *model.BackupRecord) (string, error) {
	baseDir := chainDir(record.InstanceId, record.BaseRecordId)
	if _, err := executor.Run(fmt.Sprintf("test -d %s", baseDir), 0); err != nil {
		return "", errors.Errorf("base directory %s is gone from the host; take a new full or hot backup first", baseDir)
	}
	targetDir := chainDir(record.InstanceId, record.RecordId)
	if _, err := executor.Run(fmt.Sprintf("mkdir -p %s", targetDir), 0); err != nil {
		return "", err
	}
	cmd := fmt.Sprintf("%s --backup %s --datadir=%s --target-dir=%s --incremental-basedir=%s",
		xtrabackupBin(instance), mysqlAuthArgs(instance), instance.DataDir, targetDir, baseDir)
	if _, err := executor.Run(cmd, 0); err != nil {
		return "", err
	}
	return packAndFetch(executor, record, targetDir)
}

func runCold(executor remote.Executor, instance *model.Instance, record *model.BackupRecord) (string, error) {
	stopCmd, startCmd := lifecycleCmds(instance)
	if _, err := executor.Run(stopCmd, 0); err != nil {
		return "", err
	}
	// the instance comes back no matter how the copy went
	defer func() {
		if _, err := executor.Run(startCmd, 0); err != nil {
			log.Logger.Errorf("restart of instance %s failed after cold backup: %v", record.InstanceId, err)
		}
	}()

	workDir := remoteWorkDir(record.RecordId)
	if _, err := executor.Run(fmt.Sprintf("mkdir -p %s", workDir), 0); err != nil {
		return "", err
	}
	defer func() {
		_, _ = executor.Run(fmt.Sprintf("rm -rf %s", workDir), 0)
	}()

	tarFile := path.Join(workDir, record.RecordId+".tar.gz")
	if _, err := executor.Run(fmt.Sprintf("tar -czf %s -C %s .", tarFile, instance.DataDir), 0); err != nil {
		return "", err
	}

	local := path.Join(config.GlobalConfig.Backup.ScratchDir, path.Base(tarFile))
	if err := executor.Download(tarFile, local); err != nil {
		return "", err
	}
	record.Compress = true
	return local, nil
}

func lifecycleCmds(instance *model.Instance) (string, string) {
	handle := instance.StopStartHandle()
	if instance.DeployMode == model.DeployModeContainer {
		return fmt.Sprintf("docker stop %s", handle), fmt.Sprintf("docker start %s", handle)
	}
	return fmt.Sprintf("systemctl stop %s", handle), fmt.Sprintf("systemctl start %s", handle)
}

// packAndFetch tars a prepared physical backup directory and pulls the
// archive into scratch. The directory itself stays on the host so the
// next incremental can base on it.
func packAndFetch(executor remote.Executor, record *model.BackupRecord, targetDir string) (string, error) {
	workDir := remoteWorkDir(record.RecordId)
	if _, err := executor.Run(fmt.Sprintf("mkdir -p %s", workDir), 0); err != nil {
		return "", err
	}
	defer func() {
		_, _ = executor.Run(fmt.Sprintf("rm -rf %s", workDir), 0)
	}()

	tarFile := path.Join(workDir, record.RecordId+".tar.gz")
	if _, err := executor.Run(fmt.Sprintf("tar -czf %s -C %s .", tarFile, targetDir), 0); err != nil {
		return "", err
	}
	local := path.Join(config.GlobalConfig.Backup.ScratchDir, path.Base(tarFile))
	if err := executor.Download(tarFile, local); err != nil {
		return "", err
	}
	record.Compress = true
	return local, nil
}

// Cancel flips a non-terminal record to failed. It is advisory: a job
// already past its final update keeps its result, a still-running job
// notices the flip and drops its artifact.
func Cancel(recordId string) error {
	record, err := repository.Ps.GetRecordById(recordId)
	if err != nil {
		return err
	}
	if record.IsTerminal() {
		return errors.Errorf("record %s is already %s", recordId, record.Status)
	}
	now := time.Now()
	record.Status = model.BackupStatusFailed
	record.ErrorMessage = model.ReasonCancelled
	record.EndTime = &now
	record.UpdateTime = now
	return repository.Ps.UpdateRecord(record)
}

// TestStorage proves a target is reachable without running a backup.
func TestStorage(target model.StorageTarget, instanceId string) error {
	var instance *model.Instance
	if instanceId != "" {
		inst, err := registry.GetInstance(instanceId)
		if err != nil {
			return err
		}
		instance = &inst
	}
	resolved, err := GetTargetFn(target, instance)
	if err != nil {
		return err
	}
	return resolved.TestConnectivity()
}
