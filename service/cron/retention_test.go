package cron

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbguardian/dbguardian/config"
	"github.com/dbguardian/dbguardian/log"
	"github.com/dbguardian/dbguardian/model"
	"github.com/dbguardian/dbguardian/repository"
	"github.com/dbguardian/dbguardian/repository/local"
)

func TestMain(m *testing.M) {
	log.InitLoggerConsole()
	os.Exit(m.Run())
}

func setupRetention(t *testing.T) {
	config.GlobalConfig = config.GuardianConfig{}
	config.GlobalConfig.Backup.StorageRoot = t.TempDir()
	config.GlobalConfig.Backup.ScratchDir = t.TempDir()

	lp := local.NewLocalPersistent()
	require.Nil(t, lp.Init(local.LocalConfig{ConfigDir: t.TempDir()}))
	repository.Ps = lp
}

func makeRecord(t *testing.T, recordId, strategyId, baseRecordId string, age time.Duration, status string) {
	now := time.Now()
	end := now.Add(-age)
	record := model.BackupRecord{
		RecordId:     recordId,
		InstanceId:   "inst-1",
		StrategyId:   strategyId,
		BackupType:   model.BackupTypeFull,
		BaseRecordId: baseRecordId,
		Status:       status,
		StartTime:    now.Add(-age),
		EndTime:      &end,
		CreateTime:   now.Add(-age),
		UpdateTime:   now.Add(-age),
	}
	if baseRecordId != "" {
		record.BackupType = model.BackupTypeIncremental
	}
	require.Nil(t, repository.Ps.CreateRecord(record))
}

func TestCleanExpiredRecords(t *testing.T) {
	setupRetention(t)
	strategy := model.BackupStrategy{
		StrategyId:    "strat-1",
		InstanceId:    "inst-1",
		BackupType:    model.BackupTypeFull,
		CronExpr:      "0 3 * * *",
		RetentionDays: 7,
		Enabled:       true,
	}
	require.Nil(t, repository.Ps.CreateStrategy(strategy))

	makeRecord(t, "old-rec", "strat-1", "", 10*24*time.Hour, model.BackupStatusSuccess)
	makeRecord(t, "young-rec", "strat-1", "", 24*time.Hour, model.BackupStatusSuccess)
	// records of strategies without retention are never touched
	makeRecord(t, "manual-rec", "", "", 30*24*time.Hour, model.BackupStatusSuccess)

	require.Nil(t, CleanExpiredRecords())

	_, err := repository.Ps.GetRecordById("old-rec")
	assert.NotNil(t, err)
	_, err = repository.Ps.GetRecordById("young-rec")
	assert.Nil(t, err)
	_, err = repository.Ps.GetRecordById("manual-rec")
	assert.Nil(t, err)
}

func TestCleanExpiredKeepsChainBase(t *testing.T) {
	setupRetention(t)
	strategy := model.BackupStrategy{
		StrategyId:    "strat-1",
		InstanceId:    "inst-1",
		BackupType:    model.BackupTypeFull,
		CronExpr:      "0 3 * * *",
		RetentionDays: 7,
		Enabled:       true,
	}
	require.Nil(t, repository.Ps.CreateStrategy(strategy))

	// base is past retention but a young incremental still depends on it
	makeRecord(t, "base-rec", "strat-1", "", 10*24*time.Hour, model.BackupStatusSuccess)
	makeRecord(t, "inc-rec", "strat-1", "base-rec", 24*time.Hour, model.BackupStatusSuccess)

	require.Nil(t, CleanExpiredRecords())

	_, err := repository.Ps.GetRecordById("base-rec")
	assert.Nil(t, err)
	_, err = repository.Ps.GetRecordById("inc-rec")
	assert.Nil(t, err)
}

func TestSyncStrategiesSchedules(t *testing.T) {
	setupRetention(t)
	strategy := model.BackupStrategy{
		StrategyId: "strat-sync",
		InstanceId: "inst-1",
		BackupType: model.BackupTypeFull,
		CronExpr:   "0 3 * * *",
		Enabled:    true,
	}
	require.Nil(t, repository.Ps.CreateStrategy(strategy))

	require.Nil(t, SyncStrategies())
	strategyLock.Lock()
	_, ok := strategyEntries["strat-sync"]
	strategyLock.Unlock()
	assert.True(t, ok)

	// disabling drops the entry on the next sync
	strategy.Enabled = false
	require.Nil(t, repository.Ps.UpdateStrategy(strategy))
	require.Nil(t, SyncStrategies())
	strategyLock.Lock()
	_, ok = strategyEntries["strat-sync"]
	strategyLock.Unlock()
	assert.False(t, ok)
}
