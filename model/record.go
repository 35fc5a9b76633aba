package model

import "time"

const (
	BackupTypeFull        string = "full"
	BackupTypeIncremental string = "incremental"
	BackupTypeHot         string = "hot"
	BackupTypeCold        string = "cold"

	BackupStatusPending string = "pending"
	BackupStatusRunning string = "running"
	BackupStatusSuccess string = "success"
	BackupStatusFailed  string = "failed"

	// ReasonCancelled marks a record that was failed by an advisory
	// cancellation rather than by the job itself.
	ReasonCancelled string = "Cancelled"
)

// BackupRecord is the persisted result of one execution attempt. It is
// append-mostly: created pending, updated exactly once to a terminal
// status, then immutable apart from verification bookkeeping and deletion.
type BackupRecord struct {
	RecordId   string `json:"record_id"` // primary key
	InstanceId string `json:"instance_id"`
	StrategyId string `json:"strategy_id,omitempty"`
	TaskId     string `json:"task_id,omitempty"`
	BackupType string `json:"backup_type"`
	// DatabaseName is empty for whole-instance backups.
	DatabaseName string `json:"database_name"`
	// BaseRecordId points at the previous link for incremental records.
	BaseRecordId string `json:"base_record_id,omitempty"`
	Status       string `json:"status"`

	// Storage keeps the target the artifact was written to, so later
	// verify, restore and delete can reach it again.
	Storage   StorageTarget  `json:"storage"`
	Location  BackupLocation `json:"location"`
	SizeBytes int64          `json:"size_bytes"`
	Checksum  string         `json:"checksum"`
	Compress  bool           `json:"compress"`

	// LocalArtifact is the scratch file between produce and store;
	// never persisted.
	LocalArtifact string `json:"-"`

	StartTime    time.Time  `json:"start_time"`
	EndTime      *time.Time `json:"end_time,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`

	LastVerifyTime *time.Time `json:"last_verify_time,omitempty"`
	LastVerifyOK   bool       `json:"last_verify_ok"`
	LastVerifyMsg  string     `json:"last_verify_msg,omitempty"`

	CreateTime time.Time `json:"create_time"`
	UpdateTime time.Time `json:"update_time"`
}

func (r *BackupRecord) IsTerminal() bool {
	return r.Status == BackupStatusSuccess || r.Status == BackupStatusFailed
}

// BaseEligible reports whether the record can serve as the base of a
// new incremental backup. Logical dumps cannot: an incremental needs
// the prepared physical directory its base left on the host, and a
// mysqldump leaves none.
func (r *BackupRecord) BaseEligible() bool {
	if r.Status != BackupStatusSuccess {
		return false
	}
	switch r.BackupType {
	case BackupTypeHot, BackupTypeIncremental:
		return true
	}
	return false
}

// BackupRequest is transient: produced by the trigger layer, consumed
// once by the executor, never persisted standalone.
type BackupRequest struct {
	InstanceId string        `json:"instance_id"`
	BackupType string        `json:"backup_type"`
	Storage    StorageTarget `json:"storage"`
	// Databases restricts a full backup to a subset. Empty means all
	// non-system databases.
	Databases []string `json:"databases"`
	Compress  bool     `json:"compress"`
	// BaseRecordId optionally pins the incremental base instead of
	// resolving the newest eligible record.
	BaseRecordId string `json:"base_record_id"`
	StrategyId   string `json:"strategy_id"`
	TaskId       string `json:"task_id"`
}

type RecordResp struct {
	BackupRecord
	Duration string `json:"duration"`
}

type ChainResp struct {
	RecordId string         `json:"record_id"`
	Records  []BackupRecord `json:"records"`
}

type VerifyResp struct {
	RecordId string `json:"record_id"`
	OK       bool   `json:"ok"`
	Message  string `json:"message"`
}

type ConnectivityResp struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}
