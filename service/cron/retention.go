package cron

import (
	"time"

	"github.com/pkg/errors"

	"github.com/dbguardian/dbguardian/log"
	"github.com/dbguardian/dbguardian/repository"
	"github.com/dbguardian/dbguardian/service/engine"
)

// CleanExpiredRecords drops terminal records that outlived their
// strategy's retention window. Records still serving as a base for a
// younger chain are left alone; the next sweep catches them once the
// dependents are gone too.
func CleanExpiredRecords() error {
	strategies, err := repository.Ps.GetAllStrategies()
	if err != nil {
		return err
	}
	retention := make(map[string]int)
	for _, strategy := range strategies {
		if strategy.RetentionDays > 0 {
			retention[strategy.StrategyId] = strategy.RetentionDays
		}
	}
	if len(retention) == 0 {
		return nil
	}

	records, err := repository.Ps.GetAllRecords()
	if err != nil {
		return err
	}
	now := time.Now()
	for _, record := range records {
		days, ok := retention[record.StrategyId]
		if !ok || !record.IsTerminal() {
			continue
		}
		if now.Sub(record.CreateTime) < time.Duration(days)*24*time.Hour {
			continue
		}
		if err := engine.DeleteRecord(record.RecordId); err != nil {
			if errors.Is(err, engine.ErrChainDependency) {
				log.Logger.Debugf("retention keeps %s, younger backups depend on it", record.RecordId)
			} else {
				log.Logger.Warnf("retention delete of %s failed: %v", record.RecordId, err)
			}
			continue
		}
		log.Logger.Infof("retention removed record %s of strategy %s", record.RecordId, record.StrategyId)
	}
	return nil
}
