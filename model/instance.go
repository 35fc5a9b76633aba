package model

import "time"

const (
	DeployModeContainer string = "container"
	DeployModeService   string = "service"
)

// Instance describes one managed MySQL server. The engine only reads
// instances; lifecycle management belongs to the operator surface.
type Instance struct {
	InstanceId string    `json:"instance_id"`
	Alias      string    `json:"alias"`
	Host       string    `json:"host"`
	Port       int       `json:"port"`
	User       string    `json:"user"`
	Password   string    `json:"password"`
	DeployMode string    `json:"deploy_mode"` // container, service
	// ContainerName is required for cold backups of containerized instances.
	ContainerName string `json:"container_name"`
	// ServiceName is the systemd unit for service deployments.
	ServiceName string `json:"service_name"`
	DataDir     string `json:"data_dir"`
	// XtrabackupBin overrides the physical backup tool path on the host.
	XtrabackupBin string `json:"xtrabackup_bin"`

	SshHost     string `json:"ssh_host"`
	SshPort     int    `json:"ssh_port"`
	SshUser     string `json:"ssh_user"`
	SshPassword string `json:"ssh_password"`
	SshKeyPath  string `json:"ssh_key_path"`

	CreateTime time.Time `json:"create_time"`
	UpdateTime time.Time `json:"update_time"`
}

// SupportsPhysicalBackup reports whether hot/incremental/cold backups can
// run against this instance: they need the data directory and a way onto
// the host.
func (i *Instance) SupportsPhysicalBackup() bool {
	return i.DataDir != "" && i.SshHost != "" && i.SshUser != ""
}

// StopStartHandle returns the process handle used by cold backups, or ""
// when the deployment mode lacks one.
func (i *Instance) StopStartHandle() string {
	if i.DeployMode == DeployModeContainer {
		return i.ContainerName
	}
	return i.ServiceName
}

type InstanceReq struct {
	Alias         string `json:"alias"`
	Host          string `json:"host"`
	Port          int    `json:"port"`
	User          string `json:"user"`
	Password      string `json:"password"`
	DeployMode    string `json:"deploy_mode"`
	ContainerName string `json:"container_name"`
	ServiceName   string `json:"service_name"`
	DataDir       string `json:"data_dir"`
	XtrabackupBin string `json:"xtrabackup_bin"`
	SshHost       string `json:"ssh_host"`
	SshPort       int    `json:"ssh_port"`
	SshUser       string `json:"ssh_user"`
	SshPassword   string `json:"ssh_password"`
	SshKeyPath    string `json:"ssh_key_path"`
}
