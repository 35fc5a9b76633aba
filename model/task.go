package model

import "time"

const (
	TaskStatusPending  string = "pending"
	TaskStatusRunning  string = "running"
	TaskStatusSuccess  string = "success"
	TaskStatusFailed   string = "failed"
	TaskStatusCanceled string = "canceled"
)

// OneOffTask schedules a single backup at a fixed time. The runner polls
// due tasks and hands them to the executor.
type OneOffTask struct {
	TaskId     string        `json:"task_id"` // primary key
	Name       string        `json:"name"`
	InstanceId string        `json:"instance_id"`
	BackupType string        `json:"backup_type"`
	RunAt      time.Time     `json:"run_at"`
	Storage    StorageTarget `json:"storage"`
	Databases  []string      `json:"databases"`
	Compress   bool          `json:"compress"`
	Status     string        `json:"status"`
	RecordId   string        `json:"record_id,omitempty"`
	Message    string        `json:"message,omitempty"`
	CreateTime time.Time     `json:"create_time"`
	UpdateTime time.Time     `json:"update_time"`
}

type OneOffTaskReq struct {
	Name       string        `json:"name"`
	InstanceId string        `json:"instance_id"`
	BackupType string        `json:"backup_type"`
	RunAt      time.Time     `json:"run_at"`
	Storage    StorageTarget `json:"storage"`
	Databases  []string      `json:"databases"`
	Compress   bool          `json:"compress"`
}

// RestoreRequest carries a mandatory confirmation flag; requests without
// it are rejected before any record or data is touched.
type RestoreRequest struct {
	RecordId   string `json:"record_id"`
	InstanceId string `json:"instance_id"`
	// TargetDatabase defaults to the source database of the record.
	TargetDatabase string `json:"target_database"`
	Confirm        bool   `json:"confirm"`
	// UploadPath is set by the upload handler after spooling the file;
	// it bypasses chain resolution.
	UploadPath string `json:"-"`
}

type RestoreResp struct {
	InstanceId     string `json:"instance_id"`
	RecordId       string `json:"record_id,omitempty"`
	TargetDatabase string `json:"target_database,omitempty"`
	Applied        int    `json:"applied"`
}
