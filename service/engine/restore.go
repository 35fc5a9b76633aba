package engine

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/dbguardian/dbguardian/common"
	"github.com/dbguardian/dbguardian/config"
	"github.com/dbguardian/dbguardian/log"
	"github.com/dbguardian/dbguardian/metrics"
	"github.com/dbguardian/dbguardian/model"
	"github.com/dbguardian/dbguardian/registry"
	"github.com/dbguardian/dbguardian/remote"
	"github.com/dbguardian/dbguardian/repository"
)

// Restore applies a backup to an instance. It is destructive, so the
// request must carry the explicit confirm flag; without it nothing is
// read, fetched or touched.
func Restore(req model.RestoreRequest) (model.RestoreResp, error) {
	if !req.Confirm {
		return model.RestoreResp{}, ErrConfirmationRequired
	}
	resp, err := doRestore(req)
	result := "success"
	if err != nil {
		result = "failed"
	}
	metrics.RestoreTotal.WithLabelValues(result).Inc()
	return resp, err
}

func doRestore(req model.RestoreRequest) (model.RestoreResp, error) {
	instance, err := registry.GetInstance(req.InstanceId)
	if err != nil {
		return model.RestoreResp{}, err
	}

	if req.UploadPath != "" {
		compressed := strings.HasSuffix(req.UploadPath, ".gz")
		if req.TargetDatabase != "" {
			if err = checkDumpRetargetable(req.UploadPath, compressed); err != nil {
				return model.RestoreResp{}, err
			}
		}
		if err = restoreDump(&instance, req.UploadPath, req.TargetDatabase, compressed); err != nil {
			return model.RestoreResp{}, err
		}
		return model.RestoreResp{InstanceId: req.InstanceId, TargetDatabase: req.TargetDatabase, Applied: 1}, nil
	}

	record, err := repository.Ps.GetRecordById(req.RecordId)
	if err != nil {
		return model.RestoreResp{}, err
	}
	if record.Status != model.BackupStatusSuccess {
		return model.RestoreResp{}, errors.Wrapf(ErrNotRestorable, "record %s is %s", record.RecordId, record.Status)
	}

	resp := model.RestoreResp{
		InstanceId:     req.InstanceId,
		RecordId:       req.RecordId,
		TargetDatabase: req.TargetDatabase,
	}
	switch record.BackupType {
	case model.BackupTypeFull:
		err = restoreLogical(&instance, record, req.TargetDatabase)
		resp.Applied = 1
	case model.BackupTypeCold:
		err = restoreCold(&instance, record)
		resp.Applied = 1
	case model.BackupTypeHot, model.BackupTypeIncremental:
		var chain []model.BackupRecord
		chain, err = ResolveChain(record.RecordId)
		if err == nil {
			err = restorePhysical(&instance, chain)
			resp.Applied = len(chain)
		}
	default:
		err = errors.Errorf("record %s has unknown backup type %s", record.RecordId, record.BackupType)
	}
	if err != nil {
		return model.RestoreResp{}, err
	}
	log.Logger.Infof("restore of record %s onto instance %s done, %d artifacts applied", req.RecordId, req.InstanceId, resp.Applied)
	return resp, nil
}

// FetchArtifact pulls the artifact of a successful record into the
// scratch directory and returns the local path. The caller owns the
// file and is expected to remove it.
func FetchArtifact(recordId string) (string, error) {
	record, err := repository.Ps.GetRecordById(recordId)
	if err != nil {
		return "", err
	}
	if record.Status != model.BackupStatusSuccess {
		return "", errors.Wrapf(ErrNotRestorable, "record %s is %s", record.RecordId, record.Status)
	}
	return fetchArtifact(record)
}

// fetchArtifact pulls a record's artifact into scratch and verifies the
// checksum before anything destructive happens with it.
func fetchArtifact(record model.BackupRecord) (string, error) {
	target, err := targetForRecord(record)
	if err != nil {
		return "", err
	}
	if err = os.MkdirAll(config.GlobalConfig.Backup.ScratchDir, 0755); err != nil {
		return "", errors.Wrap(err, "")
	}
	local := path.Join(config.GlobalConfig.Backup.ScratchDir, fmt.Sprintf("restore-%s-%s", record.RecordId, path.Base(record.Location.Path)))
	if err = target.Read(record.Location, local); err != nil {
		return "", err
	}
	if record.Checksum != "" {
		sum, err := common.Sha256File(local)
		if err != nil {
			return "", err
		}
		if sum != record.Checksum {
			_ = os.Remove(local)
			return "", errors.Errorf("artifact of %s is corrupted: checksum mismatch", record.RecordId)
		}
	}
	return local, nil
}

func restoreLogical(instance *model.Instance, record model.BackupRecord, targetDatabase string) error {
	// a multi-database or whole-instance dump embeds CREATE DATABASE and
	// USE statements; loading it into another database would silently
	// write straight back into its source schemas
	if targetDatabase != "" && !singleDatabaseDump(record.DatabaseName) {
		return errors.Errorf("record %s is not a single-database dump, it cannot be restored into %s",
			record.RecordId, targetDatabase)
	}
	local, err := fetchArtifact(record)
	if err != nil {
		return err
	}
	defer os.Remove(local)
	return restoreDump(instance, local, targetDatabase, record.Compress)
}

func singleDatabaseDump(databaseName string) bool {
	return databaseName != "" && !strings.Contains(databaseName, ",")
}

// checkDumpRetargetable rejects uploaded dumps that switch databases
// themselves before they go anywhere near the instance.
func checkDumpRetargetable(localDump string, compressed bool) error {
	f, err := os.Open(localDump)
	if err != nil {
		return errors.Wrap(err, "")
	}
	defer f.Close()
	var r io.Reader = f
	if compressed {
		gr, err := gzip.NewReader(f)
		if err != nil {
			return errors.Wrap(err, "")
		}
		defer gr.Close()
		r = gr
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "USE ") || strings.HasPrefix(line, "CREATE DATABASE") {
			return errors.Errorf("dump switches databases (%s), it cannot be restored into a different database",
				strings.TrimSpace(line))
		}
	}
	return errors.Wrap(scanner.Err(), "")
}

// restoreDump loads a logical dump through the mysql client on the
// instance host.
func restoreDump(instance *model.Instance, localDump, targetDatabase string, compressed bool) error {
	executor, err := DialFn(remote.CredentialsFromInstance(instance))
	if err != nil {
		return err
	}
	defer executor.Close()

	workDir := path.Join(config.GlobalConfig.Backup.RemoteWorkDir, fmt.Sprintf("restore-%d", time.Now().UnixNano()))
	if _, err = executor.Run(fmt.Sprintf("mkdir -p %s", workDir), 0); err != nil {
		return err
	}
	defer func() {
		_, _ = executor.Run(fmt.Sprintf("rm -rf %s", workDir), 0)
	}()

	remoteDump := path.Join(workDir, path.Base(localDump))
	if err = executor.Upload(localDump, remoteDump); err != nil {
		return err
	}
	if compressed {
		if _, err = executor.Run(fmt.Sprintf("gunzip -f %s", remoteDump), 0); err != nil {
			return err
		}
		remoteDump = trimGzSuffix(remoteDump)
	}

	auth := mysqlAuthArgs(instance)
	scope := ""
	if targetDatabase != "" {
		createCmd := fmt.Sprintf("mysql %s -e \"CREATE DATABASE IF NOT EXISTS %s\"", auth, targetDatabase)
		if _, err = executor.Run(createCmd, 0); err != nil {
			return err
		}
		scope = " " + targetDatabase
	}
	applyCmd := fmt.Sprintf("mysql %s%s < %s", auth, scope, remoteDump)
	_, err = executor.Run(applyCmd, 0)
	return err
}

func trimGzSuffix(name string) string {
	if len(name) > 3 && name[len(name)-3:] == ".gz" {
		return name[:len(name)-3]
	}
	return name
}

// restorePhysical rebuilds the datadir from a prepared chain: apply-log
// the root, merge each incremental, then copy back with the instance
// stopped. The instance is restarted no matter what.
func restorePhysical(instance *model.Instance, chain []model.BackupRecord) error {
	executor, err := DialFn(remote.CredentialsFromInstance(instance))
	if err != nil {
		return err
	}
	defer executor.Close()

	workDir := path.Join(config.GlobalConfig.Backup.RemoteWorkDir, fmt.Sprintf("restore-%d", time.Now().UnixNano()))
	if _, err = executor.Run(fmt.Sprintf("mkdir -p %s", workDir), 0); err != nil {
		return err
	}
	defer func() {
		_, _ = executor.Run(fmt.Sprintf("rm -rf %s", workDir), 0)
	}()

	// unpack every link before touching the instance
	dirs := make([]string, 0, len(chain))
	for i, record := range chain {
		local, err := fetchArtifact(record)
		if err != nil {
			return err
		}
		remoteTar := path.Join(workDir, path.Base(local))
		err = executor.Upload(local, remoteTar)
		_ = os.Remove(local)
		if err != nil {
			return err
		}
		dir := path.Join(workDir, fmt.Sprintf("link-%d", i))
		if _, err = executor.Run(fmt.Sprintf("mkdir -p %s && tar -xzf %s -C %s && rm -f %s", dir, remoteTar, dir, remoteTar), 0); err != nil {
			return err
		}
		dirs = append(dirs, dir)
	}

	bin := xtrabackupBin(instance)
	base := dirs[0]
	if _, err = executor.Run(fmt.Sprintf("%s --prepare --apply-log-only --target-dir=%s", bin, base), 0); err != nil {
		return err
	}
	for _, dir := range dirs[1:] {
		if _, err = executor.Run(fmt.Sprintf("%s --prepare --apply-log-only --target-dir=%s --incremental-dir=%s", bin, base, dir), 0); err != nil {
			return err
		}
	}
	if _, err = executor.Run(fmt.Sprintf("%s --prepare --target-dir=%s", bin, base), 0); err != nil {
		return err
	}

	stopCmd, startCmd := lifecycleCmds(instance)
	if _, err = executor.Run(stopCmd, 0); err != nil {
		return err
	}
	defer func() {
		if _, err := executor.Run(startCmd, 0); err != nil {
			log.Logger.Errorf("restart of instance %s failed after restore: %v", instance.InstanceId, err)
		}
	}()

	backupDataDir := fmt.Sprintf("%s.bak.%d", instance.DataDir, time.Now().Unix())
	steps := []string{
		fmt.Sprintf("mv %s %s", instance.DataDir, backupDataDir),
		fmt.Sprintf("mkdir -p %s", instance.DataDir),
		fmt.Sprintf("%s --copy-back --target-dir=%s --datadir=%s", bin, base, instance.DataDir),
		fmt.Sprintf("chown -R mysql:mysql %s", instance.DataDir),
	}
	for _, step := range steps {
		if _, err = executor.Run(step, 0); err != nil {
			return err
		}
	}
	return nil
}

// restoreCold unpacks a datadir tarball over a stopped instance.
func restoreCold(instance *model.Instance, record model.BackupRecord) error {
	local, err := fetchArtifact(record)
	if err != nil {
		return err
	}
	defer os.Remove(local)

	executor, err := DialFn(remote.CredentialsFromInstance(instance))
	if err != nil {
		return err
	}
	defer executor.Close()

	remoteTar := path.Join(config.GlobalConfig.Backup.RemoteWorkDir, path.Base(local))
	if _, err = executor.Run(fmt.Sprintf("mkdir -p %s", config.GlobalConfig.Backup.RemoteWorkDir), 0); err != nil {
		return err
	}
	if err = executor.Upload(local, remoteTar); err != nil {
		return err
	}
	defer func() {
		_, _ = executor.Run(fmt.Sprintf("rm -f %s", remoteTar), 0)
	}()

	stopCmd, startCmd := lifecycleCmds(instance)
	if _, err = executor.Run(stopCmd, 0); err != nil {
		return err
	}
	defer func() {
		if _, err := executor.Run(startCmd, 0); err != nil {
			log.Logger.Errorf("restart of instance %s failed after cold restore: %v", instance.InstanceId, err)
		}
	}()

	backupDataDir := fmt.Sprintf("%s.bak.%d", instance.DataDir, time.Now().Unix())
	steps := []string{
		fmt.Sprintf("mv %s %s", instance.DataDir, backupDataDir),
		fmt.Sprintf("mkdir -p %s", instance.DataDir),
		fmt.Sprintf("tar -xzf %s -C %s", remoteTar, instance.DataDir),
		fmt.Sprintf("chown -R mysql:mysql %s", instance.DataDir),
	}
	for _, step := range steps {
		if _, err = executor.Run(step, 0); err != nil {
			return err
		}
	}
	return nil
}
