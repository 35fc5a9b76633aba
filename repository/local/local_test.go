package local

import (
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbguardian/dbguardian/log"
	"github.com/dbguardian/dbguardian/model"
	"github.com/dbguardian/dbguardian/repository"
)

func TestMain(m *testing.M) {
	log.InitLoggerConsole()
	os.Exit(m.Run())
}

func newTestPersistent(t *testing.T) *LocalPersistent {
	lp := NewLocalPersistent()
	require.Nil(t, lp.Init(LocalConfig{ConfigDir: t.TempDir()}))
	return lp
}

func TestInstanceCRUD(t *testing.T) {
	lp := newTestPersistent(t)

	instance := model.Instance{
		InstanceId:  "inst-1",
		Alias:       "orders",
		Host:        "192.168.110.10",
		Port:        3306,
		User:        "root",
		Password:    "secret",
		SshPassword: "ssh-secret",
	}
	require.Nil(t, lp.CreateInstance(instance))
	assert.Equal(t, repository.ErrRecordExists, lp.CreateInstance(instance))

	// stored form must not hold the clear password
	assert.NotEqual(t, "secret", lp.Data.Instances["inst-1"].Password)

	got, err := lp.GetInstanceById("inst-1")
	require.Nil(t, err)
	assert.Equal(t, "secret", got.Password)
	assert.Equal(t, "ssh-secret", got.SshPassword)

	got.Alias = "orders-primary"
	require.Nil(t, lp.UpdateInstance(got))
	got, err = lp.GetInstanceById("inst-1")
	require.Nil(t, err)
	assert.Equal(t, "orders-primary", got.Alias)

	require.Nil(t, lp.DeleteInstance("inst-1"))
	_, err = lp.GetInstanceById("inst-1")
	assert.Equal(t, repository.ErrRecordNotFound, err)
}

func TestRecordClaim(t *testing.T) {
	lp := newTestPersistent(t)

	running := model.BackupRecord{
		RecordId:   "rec-1",
		InstanceId: "inst-1",
		BackupType: model.BackupTypeFull,
		Status:     model.BackupStatusRunning,
		CreateTime: time.Now(),
	}
	require.Nil(t, lp.CreateRecordIfIdle(running))

	next := running
	next.RecordId = "rec-2"
	assert.Equal(t, repository.ErrInstanceBusy, lp.CreateRecordIfIdle(next))

	// another instance is not blocked
	other := running
	other.RecordId = "rec-3"
	other.InstanceId = "inst-2"
	assert.Nil(t, lp.CreateRecordIfIdle(other))

	// once terminal the instance is claimable again
	running.Status = model.BackupStatusFailed
	require.Nil(t, lp.UpdateRecord(running))
	assert.Nil(t, lp.CreateRecordIfIdle(next))
}

func TestRecordClaimConcurrent(t *testing.T) {
	lp := newTestPersistent(t)

	var won int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			record := model.BackupRecord{
				RecordId:   model.BackupTypeFull + string(rune('a'+n)),
				InstanceId: "inst-1",
				Status:     model.BackupStatusPending,
				CreateTime: time.Now(),
			}
			if err := lp.CreateRecordIfIdle(record); err == nil {
				atomic.AddInt32(&won, 1)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, int32(1), won)
}

func TestRecordQueries(t *testing.T) {
	lp := newTestPersistent(t)

	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	records := []model.BackupRecord{
		{RecordId: "rec-1", InstanceId: "inst-1", BackupType: model.BackupTypeFull, Status: model.BackupStatusSuccess, CreateTime: base},
		{RecordId: "rec-2", InstanceId: "inst-1", BackupType: model.BackupTypeIncremental, BaseRecordId: "rec-1", Status: model.BackupStatusSuccess, CreateTime: base.Add(time.Hour)},
		{RecordId: "rec-3", InstanceId: "inst-2", BackupType: model.BackupTypeFull, Status: model.BackupStatusSuccess, CreateTime: base.Add(2 * time.Hour)},
	}
	for _, record := range records {
		require.Nil(t, lp.CreateRecord(record))
	}

	got, err := lp.GetRecordsByInstance("inst-1")
	require.Nil(t, err)
	require.Len(t, got, 2)
	// newest first
	assert.Equal(t, "rec-2", got[0].RecordId)

	dependents, err := lp.GetRecordsByBase("rec-1")
	require.Nil(t, err)
	require.Len(t, dependents, 1)
	assert.Equal(t, "rec-2", dependents[0].RecordId)

	all, err := lp.GetAllRecords()
	require.Nil(t, err)
	assert.Len(t, all, 3)
}

func TestTransactionRollback(t *testing.T) {
	lp := newTestPersistent(t)

	record := model.BackupRecord{RecordId: "rec-1", InstanceId: "inst-1", Status: model.BackupStatusSuccess, CreateTime: time.Now()}
	require.Nil(t, lp.CreateRecord(record))

	require.Nil(t, lp.Begin())
	require.Nil(t, lp.DeleteRecord("rec-1"))
	require.Nil(t, lp.Rollback())

	_, err := lp.GetRecordById("rec-1")
	assert.Nil(t, err)

	require.Nil(t, lp.Begin())
	require.Nil(t, lp.DeleteRecord("rec-1"))
	require.Nil(t, lp.Commit())
	_, err = lp.GetRecordById("rec-1")
	assert.Equal(t, repository.ErrRecordNotFound, err)
}

func TestPersistenceAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	lp := NewLocalPersistent()
	require.Nil(t, lp.Init(LocalConfig{ConfigDir: dir}))

	strategy := model.BackupStrategy{
		StrategyId: "strat-1",
		Name:       "nightly",
		InstanceId: "inst-1",
		BackupType: model.BackupTypeFull,
		CronExpr:   "0 2 * * *",
		Enabled:    true,
		Storage:    model.StorageTarget{Kind: model.StorageDefault},
	}
	require.Nil(t, lp.CreateStrategy(strategy))

	reloaded := NewLocalPersistent()
	require.Nil(t, reloaded.Init(LocalConfig{ConfigDir: dir}))
	got, err := reloaded.GetStrategyById("strat-1")
	require.Nil(t, err)
	assert.Equal(t, "nightly", got.Name)
	assert.True(t, got.Enabled)
}
