package runner

import (
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbguardian/dbguardian/common"
	"github.com/dbguardian/dbguardian/config"
	"github.com/dbguardian/dbguardian/log"
	"github.com/dbguardian/dbguardian/model"
	"github.com/dbguardian/dbguardian/registry"
	"github.com/dbguardian/dbguardian/remote"
	"github.com/dbguardian/dbguardian/repository"
	"github.com/dbguardian/dbguardian/repository/local"
	"github.com/dbguardian/dbguardian/service/engine"
	"github.com/dbguardian/dbguardian/storage"
)

func TestMain(m *testing.M) {
	log.InitLoggerConsole()
	os.Exit(m.Run())
}

// stubExecutor answers every command and parks mysqldump on a gate, so
// a test can hold a backup mid-flight while the pool queue fills up.
type stubExecutor struct {
	mu   sync.Mutex
	cmds []string
	gate chan struct{}
}

func (s *stubExecutor) Run(cmd string, timeout time.Duration) (string, error) {
	s.mu.Lock()
	s.cmds = append(s.cmds, cmd)
	s.mu.Unlock()
	if strings.Contains(cmd, "mysqldump") {
		<-s.gate
	}
	return "", nil
}

func (s *stubExecutor) Upload(localPath, remotePath string) error { return nil }

func (s *stubExecutor) Download(remotePath, localPath string) error {
	return os.WriteFile(localPath, []byte("-- MySQL dump 10.13  Distrib 8.0.32\n"), 0644)
}

func (s *stubExecutor) Close() {}

func setupRunner(t *testing.T) *stubExecutor {
	config.GlobalConfig = config.GuardianConfig{}
	config.GlobalConfig.Backup.StorageRoot = t.TempDir()
	config.GlobalConfig.Backup.ScratchDir = t.TempDir()
	config.GlobalConfig.Backup.RemoteWorkDir = "/tmp/dbguardian-test"
	config.GlobalConfig.Backup.CommandTimeout = 60
	config.GlobalConfig.Backup.TransferTimeout = 60

	lp := local.NewLocalPersistent()
	require.Nil(t, lp.Init(local.LocalConfig{ConfigDir: t.TempDir()}))
	repository.Ps = lp

	stub := &stubExecutor{gate: make(chan struct{})}
	engine.DialFn = func(creds remote.Credentials) (remote.Executor, error) {
		return stub, nil
	}
	engine.GetTargetFn = storage.GetTarget

	for _, id := range []string{"inst-a", "inst-b"} {
		require.Nil(t, repository.Ps.CreateInstance(model.Instance{
			InstanceId:  id,
			Host:        "192.168.110.10",
			Port:        3306,
			User:        "root",
			Password:    "secret",
			DeployMode:  model.DeployModeService,
			ServiceName: "mysqld",
			DataDir:     "/var/lib/mysql",
			SshHost:     "192.168.110.10",
			SshUser:     "root",
			SshPassword: "ssh-secret",
		}))
		registry.Invalidate(id)
	}
	return stub
}

func dueTask(taskId, instanceId string) model.OneOffTask {
	past := time.Now().Add(-time.Minute)
	return model.OneOffTask{
		TaskId:     taskId,
		InstanceId: instanceId,
		BackupType: model.BackupTypeFull,
		RunAt:      past,
		Status:     model.TaskStatusPending,
		CreateTime: past,
	}
}

// A task queued behind a saturated pool is claimed on submit, so the
// next tick cannot pick it up a second time.
func TestDueTasksClaimedOnSubmit(t *testing.T) {
	stub := setupRunner(t)
	runner := &RunnerService{
		Pool:     common.NewWorkerPool(1, 4),
		Interval: 1,
		Done:     make(chan struct{}),
	}
	require.Nil(t, repository.Ps.CreateTask(dueTask("task-1", "inst-a")))
	require.Nil(t, repository.Ps.CreateTask(dueTask("task-2", "inst-b")))

	var ticks sync.WaitGroup
	ticks.Add(1)
	go func() {
		defer ticks.Done()
		runner.CheckTaskEvent()
	}()

	// the single worker holds task-1 on mysqldump; task-2 only sits in
	// the queue, yet neither may still read as pending
	require.Eventually(t, func() bool {
		t1, err1 := repository.Ps.GetTaskById("task-1")
		t2, err2 := repository.Ps.GetTaskById("task-2")
		return err1 == nil && err2 == nil &&
			t1.Status == model.TaskStatusRunning && t2.Status == model.TaskStatusRunning
	}, 5*time.Second, 10*time.Millisecond)

	// a second tick while both are claimed must find nothing to submit
	ticks.Add(1)
	go func() {
		defer ticks.Done()
		runner.CheckTaskEvent()
	}()

	close(stub.gate)
	ticks.Wait()

	for _, taskId := range []string{"task-1", "task-2"} {
		task, err := repository.Ps.GetTaskById(taskId)
		require.Nil(t, err)
		assert.Equal(t, model.TaskStatusSuccess, task.Status)
		assert.NotEmpty(t, task.RecordId)
	}

	// each task ran exactly once
	records, err := repository.Ps.GetAllRecords()
	require.Nil(t, err)
	assert.Len(t, records, 2)
}

func TestFutureTasksStayPending(t *testing.T) {
	setupRunner(t)
	runner := &RunnerService{
		Pool:     common.NewWorkerPool(1, 4),
		Interval: 1,
		Done:     make(chan struct{}),
	}

	task := dueTask("task-later", "inst-a")
	task.RunAt = time.Now().Add(time.Hour)
	require.Nil(t, repository.Ps.CreateTask(task))

	runner.CheckTaskEvent()

	got, err := repository.Ps.GetTaskById("task-later")
	require.Nil(t, err)
	assert.Equal(t, model.TaskStatusPending, got.Status)
}

func TestProcessTaskRecordsFailure(t *testing.T) {
	setupRunner(t)
	runner := &RunnerService{
		Pool:     common.NewWorkerPool(1, 4),
		Interval: 1,
		Done:     make(chan struct{}),
	}

	// incremental without any base fails inside the engine claim
	task := dueTask("task-bad", "inst-a")
	task.BackupType = model.BackupTypeIncremental
	require.Nil(t, repository.Ps.CreateTask(task))

	require.NotNil(t, runner.ProcessTask(task))
	got, err := repository.Ps.GetTaskById("task-bad")
	require.Nil(t, err)
	assert.Equal(t, model.TaskStatusFailed, got.Status)
	assert.Contains(t, got.Message, "no eligible base")
	assert.NotEmpty(t, got.RecordId)
}
