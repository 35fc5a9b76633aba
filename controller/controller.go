package controller

import (
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"github.com/dbguardian/dbguardian/model"
	"github.com/dbguardian/dbguardian/repository"
	"github.com/dbguardian/dbguardian/service/engine"
)

type Wrapfunc func(c *gin.Context, retCode string, entity interface{})

type Controller struct {
	wrapfunc Wrapfunc
}

// retCodeForEngine maps engine sentinels onto response codes; fallback
// is the caller's default for its operation.
func retCodeForEngine(err error, fallback string) string {
	switch {
	case errors.Is(err, engine.ErrNoBaseAvailable):
		return model.E_NO_BASE_AVAILABLE
	case errors.Is(err, engine.ErrBrokenChain):
		return model.E_BROKEN_CHAIN
	case errors.Is(err, engine.ErrChainDependency):
		return model.E_CHAIN_DEPENDENCY
	case errors.Is(err, engine.ErrBackupInProgress):
		return model.E_BACKUP_IN_PROGRESS
	case errors.Is(err, engine.ErrConfirmationRequired):
		return model.E_CONFIRM_REQUIRED
	case errors.Is(err, engine.ErrNotRestorable):
		return model.E_RESTORE_FAILED
	case errors.Is(err, repository.ErrRecordNotFound):
		return model.E_RECORD_NOT_FOUND
	case errors.Is(err, repository.ErrRecordExists):
		return model.E_DATA_DUPLICATED
	}
	return fallback
}
