package engine

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"fmt"
	"os"
	"path"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbguardian/dbguardian/config"
	"github.com/dbguardian/dbguardian/log"
	"github.com/dbguardian/dbguardian/model"
	"github.com/dbguardian/dbguardian/registry"
	"github.com/dbguardian/dbguardian/remote"
	"github.com/dbguardian/dbguardian/repository"
	"github.com/dbguardian/dbguardian/repository/local"
	"github.com/dbguardian/dbguardian/storage"
)

func TestMain(m *testing.M) {
	log.InitLoggerConsole()
	os.Exit(m.Run())
}

// fakeExecutor plays the database host: it remembers every command,
// tracks directories created with mkdir -p, and serves downloads with
// canned bytes. A command matching blockOn parks until release is
// closed, so tests can hold a backup mid-flight.
type fakeExecutor struct {
	mu       sync.Mutex
	cmds     []string
	dirs     map[string]bool
	uploads  map[string][]byte
	failOn   string
	blockOn  string
	release  chan struct{}
	artifact []byte
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{
		dirs:    make(map[string]bool),
		uploads: make(map[string][]byte),
		release: make(chan struct{}),
		artifact: []byte("-- MySQL dump 10.13  Distrib 8.0.32, for Linux (x86_64)\n" +
			"--\n-- Host: localhost    Database: orders\n" +
			"CREATE TABLE t (id int);\n"),
	}
}

func (f *fakeExecutor) Run(cmd string, timeout time.Duration) (string, error) {
	f.mu.Lock()
	f.cmds = append(f.cmds, cmd)
	failOn, blockOn := f.failOn, f.blockOn
	if strings.HasPrefix(cmd, "mkdir -p ") {
		for _, dir := range strings.Fields(strings.TrimPrefix(cmd, "mkdir -p ")) {
			f.dirs[dir] = true
		}
	}
	missing := false
	if strings.HasPrefix(cmd, "test -d ") {
		missing = !f.dirs[strings.TrimPrefix(cmd, "test -d ")]
	}
	f.mu.Unlock()

	if blockOn != "" && strings.Contains(cmd, blockOn) {
		<-f.release
	}
	if failOn != "" && strings.Contains(cmd, failOn) {
		return "", fmt.Errorf("command failed: %s", cmd)
	}
	if missing {
		return "", fmt.Errorf("no such directory %s", strings.TrimPrefix(cmd, "test -d "))
	}
	return "", nil
}

func (f *fakeExecutor) Upload(localPath, remotePath string) error {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads[remotePath] = data
	return nil
}

func (f *fakeExecutor) Download(remotePath, localPath string) error {
	return os.WriteFile(localPath, f.artifact, 0644)
}

func (f *fakeExecutor) Close() {}

func (f *fakeExecutor) ranCommand(substr string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, cmd := range f.cmds {
		if strings.Contains(cmd, substr) {
			return true
		}
	}
	return false
}

func setupEngine(t *testing.T) *fakeExecutor {
	config.GlobalConfig = config.GuardianConfig{}
	config.GlobalConfig.Backup.StorageRoot = t.TempDir()
	config.GlobalConfig.Backup.ScratchDir = t.TempDir()
	config.GlobalConfig.Backup.RemoteWorkDir = "/tmp/dbguardian-test"
	config.GlobalConfig.Backup.CommandTimeout = 60
	config.GlobalConfig.Backup.TransferTimeout = 60

	lp := local.NewLocalPersistent()
	require.Nil(t, lp.Init(local.LocalConfig{ConfigDir: t.TempDir()}))
	repository.Ps = lp

	fake := newFakeExecutor()
	DialFn = func(creds remote.Credentials) (remote.Executor, error) {
		return fake, nil
	}
	GetTargetFn = storage.GetTarget

	instance := model.Instance{
		InstanceId:    "inst-1",
		Host:          "192.168.110.10",
		Port:          3306,
		User:          "root",
		Password:      "secret",
		DeployMode:    model.DeployModeContainer,
		ContainerName: "mysql-orders",
		DataDir:       "/var/lib/mysql",
		SshHost:       "192.168.110.10",
		SshUser:       "root",
		SshPassword:   "ssh-secret",
	}
	require.Nil(t, repository.Ps.CreateInstance(instance))
	registry.Invalidate("inst-1")
	return fake
}

func TestFullBackup(t *testing.T) {
	fake := setupEngine(t)

	recordId, err := Execute(model.BackupRequest{
		InstanceId: "inst-1",
		BackupType: model.BackupTypeFull,
		Databases:  []string{"orders"},
		Compress:   true,
	})
	require.Nil(t, err)

	record, err := repository.Ps.GetRecordById(recordId)
	require.Nil(t, err)
	assert.Equal(t, model.BackupStatusSuccess, record.Status)
	assert.NotEmpty(t, record.Checksum)
	assert.Greater(t, record.SizeBytes, int64(0))
	assert.NotNil(t, record.EndTime)
	assert.Equal(t, model.StorageDefault, record.Location.Kind)
	_, err = os.Stat(record.Location.Path)
	assert.Nil(t, err)

	assert.True(t, fake.ranCommand("mysqldump"))
	assert.True(t, fake.ranCommand("--single-transaction"))
	// a single database is dumped bare so the dump stays retargetable
	assert.True(t, fake.ranCommand("lock-tables=false orders >"))
	assert.False(t, fake.ranCommand("--databases"))
	assert.True(t, fake.ranCommand("gzip -f"))
}

func TestFullBackupMultiDatabase(t *testing.T) {
	fake := setupEngine(t)

	_, err := Execute(model.BackupRequest{
		InstanceId: "inst-1",
		BackupType: model.BackupTypeFull,
		Databases:  []string{"orders", "users"},
	})
	require.Nil(t, err)
	assert.True(t, fake.ranCommand("--databases orders users"))
}

func TestFullBackupFailureMarksRecord(t *testing.T) {
	fake := setupEngine(t)
	fake.failOn = "mysqldump"

	recordId, err := Execute(model.BackupRequest{
		InstanceId: "inst-1",
		BackupType: model.BackupTypeFull,
	})
	require.NotNil(t, err)

	record, gerr := repository.Ps.GetRecordById(recordId)
	require.Nil(t, gerr)
	assert.Equal(t, model.BackupStatusFailed, record.Status)
	assert.Contains(t, record.ErrorMessage, "mysqldump")
	assert.NotNil(t, record.EndTime)
}

func TestMutualExclusion(t *testing.T) {
	setupEngine(t)

	running := model.BackupRecord{
		RecordId:   "rec-running",
		InstanceId: "inst-1",
		BackupType: model.BackupTypeFull,
		Status:     model.BackupStatusRunning,
		CreateTime: time.Now(),
	}
	require.Nil(t, repository.Ps.CreateRecord(running))

	_, err := Execute(model.BackupRequest{InstanceId: "inst-1", BackupType: model.BackupTypeFull})
	assert.Equal(t, ErrBackupInProgress, err)
}

func TestMutualExclusionConcurrent(t *testing.T) {
	fake := setupEngine(t)
	fake.blockOn = "mysqldump"

	errCh := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := Execute(model.BackupRequest{InstanceId: "inst-1", BackupType: model.BackupTypeFull})
			errCh <- err
		}()
	}

	// the loser is refused while the winner is still held on mysqldump
	first := <-errCh
	assert.Equal(t, ErrBackupInProgress, first)

	close(fake.release)
	assert.Nil(t, <-errCh)
}

func TestIncrementalChain(t *testing.T) {
	setupEngine(t)

	hotId, err := Execute(model.BackupRequest{InstanceId: "inst-1", BackupType: model.BackupTypeHot})
	require.Nil(t, err)

	inc1Id, err := Execute(model.BackupRequest{InstanceId: "inst-1", BackupType: model.BackupTypeIncremental})
	require.Nil(t, err)
	inc1, err := repository.Ps.GetRecordById(inc1Id)
	require.Nil(t, err)
	assert.Equal(t, hotId, inc1.BaseRecordId)

	// the second incremental bases on the first, not on the hot root
	inc2Id, err := Execute(model.BackupRequest{InstanceId: "inst-1", BackupType: model.BackupTypeIncremental})
	require.Nil(t, err)
	inc2, err := repository.Ps.GetRecordById(inc2Id)
	require.Nil(t, err)
	assert.Equal(t, inc1Id, inc2.BaseRecordId)

	chain, err := ResolveChain(inc2Id)
	require.Nil(t, err)
	require.Len(t, chain, 3)
	assert.Equal(t, hotId, chain[0].RecordId)
	assert.Equal(t, inc1Id, chain[1].RecordId)
	assert.Equal(t, inc2Id, chain[2].RecordId)
}

func TestIncrementalWithoutBase(t *testing.T) {
	setupEngine(t)

	recordId, err := Execute(model.BackupRequest{InstanceId: "inst-1", BackupType: model.BackupTypeIncremental})
	assert.Equal(t, ErrNoBaseAvailable, err)

	// the miss leaves an auditable failed record
	record, gerr := repository.Ps.GetRecordById(recordId)
	require.Nil(t, gerr)
	assert.Equal(t, model.BackupStatusFailed, record.Status)
	assert.Contains(t, record.ErrorMessage, "no eligible base")
}

func TestIncrementalRefusesLogicalBase(t *testing.T) {
	setupEngine(t)

	// a successful mysqldump leaves no prepared directory on the host,
	// so it cannot anchor an incremental
	fullId, err := Execute(model.BackupRequest{InstanceId: "inst-1", BackupType: model.BackupTypeFull})
	require.Nil(t, err)

	recordId, err := Execute(model.BackupRequest{InstanceId: "inst-1", BackupType: model.BackupTypeIncremental})
	assert.Equal(t, ErrNoBaseAvailable, err)
	record, gerr := repository.Ps.GetRecordById(recordId)
	require.Nil(t, gerr)
	assert.Equal(t, model.BackupStatusFailed, record.Status)

	// pinning the dump explicitly is refused the same way
	_, err = Execute(model.BackupRequest{
		InstanceId:   "inst-1",
		BackupType:   model.BackupTypeIncremental,
		BaseRecordId: fullId,
	})
	require.NotNil(t, err)
	assert.Contains(t, err.Error(), "not an eligible base")

	// a hot backup taken afterwards becomes the base
	hotId, err := Execute(model.BackupRequest{InstanceId: "inst-1", BackupType: model.BackupTypeHot})
	require.Nil(t, err)
	base, err := ResolveBase("inst-1")
	require.Nil(t, err)
	assert.Equal(t, hotId, base.RecordId)
}

func TestResolveBaseSkipsBrokenChain(t *testing.T) {
	setupEngine(t)

	hotId, err := Execute(model.BackupRequest{InstanceId: "inst-1", BackupType: model.BackupTypeHot})
	require.Nil(t, err)
	inc1Id, err := Execute(model.BackupRequest{InstanceId: "inst-1", BackupType: model.BackupTypeIncremental})
	require.Nil(t, err)
	inc2Id, err := Execute(model.BackupRequest{InstanceId: "inst-1", BackupType: model.BackupTypeIncremental})
	require.Nil(t, err)

	// rip out the middle link directly; inc2's chain is now broken
	require.Nil(t, repository.Ps.DeleteRecord(inc1Id))

	_, err = ResolveChain(inc2Id)
	assert.ErrorIs(t, err, ErrBrokenChain)

	base, err := ResolveBase("inst-1")
	require.Nil(t, err)
	assert.Equal(t, hotId, base.RecordId)
}

func TestColdBackupAlwaysRestarts(t *testing.T) {
	fake := setupEngine(t)
	fake.failOn = "tar -czf"

	recordId, err := Execute(model.BackupRequest{InstanceId: "inst-1", BackupType: model.BackupTypeCold})
	require.NotNil(t, err)

	assert.True(t, fake.ranCommand("docker stop mysql-orders"))
	assert.True(t, fake.ranCommand("docker start mysql-orders"))

	record, gerr := repository.Ps.GetRecordById(recordId)
	require.Nil(t, gerr)
	assert.Equal(t, model.BackupStatusFailed, record.Status)
}

func TestCancel(t *testing.T) {
	setupEngine(t)

	record := model.BackupRecord{
		RecordId:   "rec-1",
		InstanceId: "inst-1",
		BackupType: model.BackupTypeFull,
		Status:     model.BackupStatusRunning,
		CreateTime: time.Now(),
	}
	require.Nil(t, repository.Ps.CreateRecord(record))

	require.Nil(t, Cancel("rec-1"))
	got, err := repository.Ps.GetRecordById("rec-1")
	require.Nil(t, err)
	assert.Equal(t, model.BackupStatusFailed, got.Status)
	assert.Equal(t, model.ReasonCancelled, got.ErrorMessage)

	// terminal records cannot be cancelled
	assert.NotNil(t, Cancel("rec-1"))
}

func TestDeleteRefusesDependents(t *testing.T) {
	setupEngine(t)

	hotId, err := Execute(model.BackupRequest{InstanceId: "inst-1", BackupType: model.BackupTypeHot})
	require.Nil(t, err)
	incId, err := Execute(model.BackupRequest{InstanceId: "inst-1", BackupType: model.BackupTypeIncremental})
	require.Nil(t, err)

	err = DeleteRecord(hotId)
	assert.ErrorIs(t, err, ErrChainDependency)
	_, err = repository.Ps.GetRecordById(hotId)
	assert.Nil(t, err)

	// leaf deletes are always fine
	require.Nil(t, DeleteRecord(incId))
	_, err = repository.Ps.GetRecordById(incId)
	assert.Equal(t, repository.ErrRecordNotFound, err)
}

func TestDeleteCascade(t *testing.T) {
	setupEngine(t)
	config.GlobalConfig.Backup.CascadeDelete = true

	hotId, err := Execute(model.BackupRequest{InstanceId: "inst-1", BackupType: model.BackupTypeHot})
	require.Nil(t, err)
	incId, err := Execute(model.BackupRequest{InstanceId: "inst-1", BackupType: model.BackupTypeIncremental})
	require.Nil(t, err)

	inc, err := repository.Ps.GetRecordById(incId)
	require.Nil(t, err)

	require.Nil(t, DeleteRecord(hotId))
	_, err = repository.Ps.GetRecordById(hotId)
	assert.Equal(t, repository.ErrRecordNotFound, err)
	_, err = repository.Ps.GetRecordById(incId)
	assert.Equal(t, repository.ErrRecordNotFound, err)
	_, err = os.Stat(inc.Location.Path)
	assert.True(t, os.IsNotExist(err))
}

func TestRestoreConfirmGate(t *testing.T) {
	fake := setupEngine(t)

	_, err := Restore(model.RestoreRequest{RecordId: "rec-1", InstanceId: "inst-1"})
	assert.Equal(t, ErrConfirmationRequired, err)
	// nothing was attempted
	assert.Empty(t, fake.cmds)
}

func TestRestoreLogical(t *testing.T) {
	fake := setupEngine(t)

	recordId, err := Execute(model.BackupRequest{
		InstanceId: "inst-1",
		BackupType: model.BackupTypeFull,
		Databases:  []string{"orders"},
		Compress:   true,
	})
	require.Nil(t, err)

	resp, err := Restore(model.RestoreRequest{
		RecordId:       recordId,
		InstanceId:     "inst-1",
		TargetDatabase: "orders_copy",
		Confirm:        true,
	})
	require.Nil(t, err)
	assert.Equal(t, 1, resp.Applied)
	assert.True(t, fake.ranCommand("CREATE DATABASE IF NOT EXISTS orders_copy"))
	assert.True(t, fake.ranCommand("gunzip -f"))
	assert.True(t, fake.ranCommand("mysql "))
}

func TestRestoreRefusesRetargetingMultiDatabaseDump(t *testing.T) {
	fake := setupEngine(t)

	recordId, err := Execute(model.BackupRequest{
		InstanceId: "inst-1",
		BackupType: model.BackupTypeFull,
		Databases:  []string{"orders", "users"},
	})
	require.Nil(t, err)
	fake.cmds = nil

	_, err = Restore(model.RestoreRequest{
		RecordId:       recordId,
		InstanceId:     "inst-1",
		TargetDatabase: "orders_copy",
		Confirm:        true,
	})
	require.NotNil(t, err)
	assert.Contains(t, err.Error(), "not a single-database dump")
	// nothing touched the instance
	assert.False(t, fake.ranCommand("mysql "))
}

func TestRestoreUploadRefusesDatabaseSwitch(t *testing.T) {
	fake := setupEngine(t)

	dump := path.Join(t.TempDir(), "upload.sql")
	require.Nil(t, os.WriteFile(dump, []byte("USE `orders`;\nCREATE TABLE t (id int);\n"), 0644))

	_, err := Restore(model.RestoreRequest{
		InstanceId:     "inst-1",
		TargetDatabase: "orders_copy",
		Confirm:        true,
		UploadPath:     dump,
	})
	require.NotNil(t, err)
	assert.Contains(t, err.Error(), "switches databases")
	assert.Empty(t, fake.cmds)
}

func TestRestorePhysicalChain(t *testing.T) {
	fake := setupEngine(t)

	_, err := Execute(model.BackupRequest{InstanceId: "inst-1", BackupType: model.BackupTypeHot})
	require.Nil(t, err)
	incId, err := Execute(model.BackupRequest{InstanceId: "inst-1", BackupType: model.BackupTypeIncremental})
	require.Nil(t, err)

	resp, err := Restore(model.RestoreRequest{RecordId: incId, InstanceId: "inst-1", Confirm: true})
	require.Nil(t, err)
	assert.Equal(t, 2, resp.Applied)
	assert.True(t, fake.ranCommand("--prepare --apply-log-only"))
	assert.True(t, fake.ranCommand("--incremental-dir="))
	assert.True(t, fake.ranCommand("--copy-back"))
	assert.True(t, fake.ranCommand("docker stop mysql-orders"))
	assert.True(t, fake.ranCommand("docker start mysql-orders"))
}

func TestRestoreFailedRecord(t *testing.T) {
	setupEngine(t)

	record := model.BackupRecord{
		RecordId:   "rec-bad",
		InstanceId: "inst-1",
		BackupType: model.BackupTypeFull,
		Status:     model.BackupStatusFailed,
		CreateTime: time.Now(),
	}
	require.Nil(t, repository.Ps.CreateRecord(record))

	_, err := Restore(model.RestoreRequest{RecordId: "rec-bad", InstanceId: "inst-1", Confirm: true})
	assert.ErrorIs(t, err, ErrNotRestorable)
}

func TestVerify(t *testing.T) {
	setupEngine(t)

	recordId, err := Execute(model.BackupRequest{InstanceId: "inst-1", BackupType: model.BackupTypeFull})
	require.Nil(t, err)

	resp, err := Verify(recordId)
	require.Nil(t, err)
	assert.True(t, resp.OK)

	record, err := repository.Ps.GetRecordById(recordId)
	require.Nil(t, err)
	assert.True(t, record.LastVerifyOK)
	assert.NotNil(t, record.LastVerifyTime)

	// corrupt the stored artifact; verification must notice
	require.Nil(t, os.WriteFile(record.Location.Path, []byte("tampered"), 0644))
	resp, err = Verify(recordId)
	require.Nil(t, err)
	assert.False(t, resp.OK)
	assert.Contains(t, resp.Message, "mismatch")
}

func TestVerifyRejectsNonDumpArtifact(t *testing.T) {
	fake := setupEngine(t)
	// checksum and size will match the stored bytes, but the content is
	// not what a logical backup must look like
	fake.artifact = []byte("not a dump at all")

	recordId, err := Execute(model.BackupRequest{InstanceId: "inst-1", BackupType: model.BackupTypeFull})
	require.Nil(t, err)

	resp, err := Verify(recordId)
	require.Nil(t, err)
	assert.False(t, resp.OK)
	assert.Contains(t, resp.Message, "mysqldump header")
}

func TestVerifyPhysicalArchive(t *testing.T) {
	fake := setupEngine(t)
	fake.artifact = makeTarGz(t, map[string][]byte{
		"xtrabackup_checkpoints": []byte("backup_type = full-backuped\n"),
		"ibdata1":                []byte("data"),
	})

	recordId, err := Execute(model.BackupRequest{InstanceId: "inst-1", BackupType: model.BackupTypeHot})
	require.Nil(t, err)

	resp, err := Verify(recordId)
	require.Nil(t, err)
	assert.True(t, resp.OK)
}

func TestVerifyPhysicalArchiveWithoutCheckpoints(t *testing.T) {
	fake := setupEngine(t)
	fake.artifact = makeTarGz(t, map[string][]byte{
		"ibdata1": []byte("data"),
	})

	recordId, err := Execute(model.BackupRequest{InstanceId: "inst-1", BackupType: model.BackupTypeHot})
	require.Nil(t, err)

	resp, err := Verify(recordId)
	require.Nil(t, err)
	assert.False(t, resp.OK)
	assert.Contains(t, resp.Message, "xtrabackup_checkpoints")
}

func makeTarGz(t *testing.T, files map[string][]byte) []byte {
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gw)
	for name, data := range files {
		require.Nil(t, tw.WriteHeader(&tar.Header{
			Name: "backup/" + name,
			Mode: 0644,
			Size: int64(len(data)),
		}))
		_, err := tw.Write(data)
		require.Nil(t, err)
	}
	require.Nil(t, tw.Close())
	require.Nil(t, gw.Close())
	return buf.Bytes()
}

func TestVerifyFailedRecord(t *testing.T) {
	setupEngine(t)

	record := model.BackupRecord{
		RecordId:   "rec-bad",
		InstanceId: "inst-1",
		Status:     model.BackupStatusFailed,
		CreateTime: time.Now(),
	}
	require.Nil(t, repository.Ps.CreateRecord(record))

	resp, err := Verify("rec-bad")
	require.Nil(t, err)
	assert.False(t, resp.OK)
}
