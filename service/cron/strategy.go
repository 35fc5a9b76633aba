package cron

import (
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/dbguardian/dbguardian/log"
	"github.com/dbguardian/dbguardian/model"
	"github.com/dbguardian/dbguardian/repository"
	"github.com/dbguardian/dbguardian/service/engine"
)

type strategyEntry struct {
	entryId  cron.EntryID
	cronExpr string
}

var (
	strategyLock sync.Mutex
	// strategies use the plain 5-field cron format
	strategyCron    = cron.New()
	strategyEntries = make(map[string]strategyEntry)
	strategyOnce    sync.Once
)

// SyncStrategies reconciles the strategy table into the scheduler:
// enabled strategies get an entry, disabled or deleted ones lose
// theirs, changed expressions are rescheduled.
func SyncStrategies() error {
	strategyOnce.Do(strategyCron.Start)

	strategies, err := repository.Ps.GetAllStrategies()
	if err != nil {
		return err
	}

	strategyLock.Lock()
	defer strategyLock.Unlock()

	wanted := make(map[string]model.BackupStrategy)
	for _, strategy := range strategies {
		if strategy.Enabled {
			wanted[strategy.StrategyId] = strategy
		}
	}

	for strategyId, entry := range strategyEntries {
		strategy, keep := wanted[strategyId]
		if keep && strategy.CronExpr == entry.cronExpr {
			delete(wanted, strategyId)
			continue
		}
		strategyCron.Remove(entry.entryId)
		delete(strategyEntries, strategyId)
	}

	for strategyId, strategy := range wanted {
		strategy := strategy
		entryId, err := strategyCron.AddFunc(strategy.CronExpr, func() {
			fireStrategy(strategy.StrategyId)
		})
		if err != nil {
			log.Logger.Errorf("strategy %s has invalid cron %q: %v", strategyId, strategy.CronExpr, err)
			continue
		}
		strategyEntries[strategyId] = strategyEntry{entryId: entryId, cronExpr: strategy.CronExpr}
		log.Logger.Infof("strategy %s scheduled at %q", strategyId, strategy.CronExpr)
	}
	return nil
}

// fireStrategy re-reads the strategy at trigger time so edits between
// syncs still count.
func fireStrategy(strategyId string) {
	strategy, err := repository.Ps.GetStrategyById(strategyId)
	if err != nil || !strategy.Enabled {
		return
	}
	recordId, err := engine.Execute(model.BackupRequest{
		InstanceId: strategy.InstanceId,
		BackupType: strategy.BackupType,
		Storage:    strategy.Storage,
		Databases:  strategy.Databases,
		Compress:   strategy.Compress,
		StrategyId: strategy.StrategyId,
	})
	if err != nil {
		log.Logger.Errorf("strategy %s backup failed (record %s): %v", strategyId, recordId, err)
	}
}

func stopStrategyCron() {
	strategyLock.Lock()
	defer strategyLock.Unlock()
	strategyCron.Stop()
}
