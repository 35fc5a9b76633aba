package model

import "fmt"

const (
	StorageDefault      string = "default"
	StorageMySQLHost    string = "mysql_host"
	StorageRemoteServer string = "remote_server"
	StorageOSS          string = "oss"
)

type TargetLocal struct {
	Path string `json:"path" example:"/data01/dbguardian/backups"`
}

type TargetMySQLHost struct {
	// Path on the database host, reached with the instance's own
	// ssh credentials.
	Path string `json:"path" example:"/data01/mysql_backups"`
}

type TargetRemote struct {
	Protocol string `json:"protocol" example:"ssh"`
	Host     string `json:"host" example:"192.168.110.8"`
	Port     int    `json:"port" example:"22"`
	User     string `json:"user" example:"backup"`
	Password string `json:"password"`
	KeyPath  string `json:"key_path"`
	Path     string `json:"path" example:"/backup/dbguardian"`
}

type TargetOSS struct {
	Endpoint        string `json:"endpoint" example:"http://192.168.110.8:49000"`
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
	Region          string `json:"region" example:"zh-west-1"`
	Bucket          string `json:"bucket" example:"dbguardian.backup"`
	Prefix          string `json:"prefix" example:"backups"`
}

// StorageTarget is a tagged variant: exactly one payload is meaningful,
// selected by Kind. Fields of inactive payloads are ignored.
type StorageTarget struct {
	Kind   string          `json:"kind"` // default, mysql_host, remote_server, oss
	Local  TargetLocal     `json:"local"`
	Host   TargetMySQLHost `json:"host"`
	Remote TargetRemote    `json:"remote"`
	OSS    TargetOSS       `json:"oss"`
}

func (t *StorageTarget) Normalize() {
	if t.Kind == "" {
		t.Kind = StorageDefault
	}
	if t.Kind == StorageRemoteServer {
		if t.Remote.Protocol == "" {
			t.Remote.Protocol = "ssh"
		}
		if t.Remote.Port == 0 {
			t.Remote.Port = 22
		}
	}
}

func (t *StorageTarget) Validate() error {
	switch t.Kind {
	case StorageDefault:
		return nil
	case StorageMySQLHost:
		if t.Host.Path == "" {
			return fmt.Errorf("mysql_host target requires a path")
		}
	case StorageRemoteServer:
		if t.Remote.Host == "" || t.Remote.User == "" || t.Remote.Path == "" {
			return fmt.Errorf("remote_server target requires host, user and path")
		}
		if t.Remote.Protocol != "" && t.Remote.Protocol != "ssh" {
			return fmt.Errorf("unsupported remote protocol %s", t.Remote.Protocol)
		}
	case StorageOSS:
		if t.OSS.Endpoint == "" || t.OSS.Bucket == "" {
			return fmt.Errorf("oss target requires endpoint and bucket")
		}
	default:
		return fmt.Errorf("unknown storage kind %s", t.Kind)
	}
	return nil
}

// TestStorageReq probes a storage target's connectivity. InstanceId is
// only needed for mysql_host targets.
type TestStorageReq struct {
	InstanceId string        `json:"instance_id"`
	Storage    StorageTarget `json:"storage"`
}

// BackupLocation is the resolved descriptor of a stored artifact. The
// engine keeps only this descriptor; the bytes belong to the target.
type BackupLocation struct {
	Kind string `json:"kind"`
	// Path is a filesystem path for file-backed kinds, or the object
	// key for oss.
	Path   string `json:"path"`
	Bucket string `json:"bucket,omitempty"`
}

func (l BackupLocation) String() string {
	if l.Kind == StorageOSS {
		return fmt.Sprintf("oss://%s/%s", l.Bucket, l.Path)
	}
	return fmt.Sprintf("%s:%s", l.Kind, l.Path)
}
