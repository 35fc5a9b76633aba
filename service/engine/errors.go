package engine

import "github.com/pkg/errors"

var (
	// ErrNoBaseAvailable means an incremental backup was requested but
	// the instance has no eligible base record.
	ErrNoBaseAvailable = errors.New("no eligible base record for incremental backup")
	// ErrBrokenChain means a base pointer leads to a missing or failed
	// record before reaching a full or hot root.
	ErrBrokenChain = errors.New("backup chain is broken")
	// ErrChainDependency refuses deleting a record that newer
	// incrementals still depend on.
	ErrChainDependency = errors.New("record has dependent incremental backups")
	// ErrBackupInProgress means the instance already has a pending or
	// running record.
	ErrBackupInProgress = errors.New("instance already has a backup in progress")
	// ErrConfirmationRequired rejects restore requests without the
	// explicit confirm flag.
	ErrConfirmationRequired = errors.New("restore requires confirmation")
	// ErrNotRestorable means the record is not in a restorable state.
	ErrNotRestorable = errors.New("record is not restorable")
)
