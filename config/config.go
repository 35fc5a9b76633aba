package config

import (
	"encoding/json"
	"io"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/hjson/hjson-go/v4"
	"github.com/kardianos/osext"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

var GlobalConfig GuardianConfig

const (
	FORMAT_JSON  string = ".json"
	FORMAT_HJSON string = ".hjson"
	FORMAT_YAML  string = ".yaml"
)

type GuardianConfig struct {
	ConfigFile       string `yaml:"-" json:"-"`
	Server           ServerConfig
	Backup           BackupConfig
	Log              LogConfig
	PersistentConfig map[string]map[string]interface{} `yaml:"persistent_config" json:"persistent_config"`
	Cron             CronConfig
	Version          string `yaml:"-" json:"-"`
}

type ServerConfig struct {
	Ip               string
	Port             int
	Pprof            bool
	PersistentPolicy string `yaml:"persistent_policy" json:"persistent_policy"`
	TaskInterval     int    `yaml:"task_interval" json:"task_interval"`
}

// BackupConfig holds engine-side storage and execution knobs.
type BackupConfig struct {
	// StorageRoot is where the default storage target keeps artifacts.
	StorageRoot string `yaml:"storage_root" json:"storage_root"`
	// ScratchDir holds transient files during restore and verification.
	ScratchDir string `yaml:"scratch_dir" json:"scratch_dir"`
	// RemoteWorkDir is the staging directory on database hosts.
	RemoteWorkDir string `yaml:"remote_work_dir" json:"remote_work_dir"`
	// CommandTimeout bounds a single remote command, in seconds.
	CommandTimeout int `yaml:"command_timeout" json:"command_timeout"`
	// TransferTimeout bounds a single file transfer, in seconds.
	TransferTimeout int `yaml:"transfer_timeout" json:"transfer_timeout"`
	// CascadeDelete allows deleting a base record together with its
	// dependent incrementals. When false such deletes are refused.
	CascadeDelete bool `yaml:"cascade_delete" json:"cascade_delete"`
	// MaxWorkers caps concurrently running backup/restore jobs.
	MaxWorkers int `yaml:"max_workers" json:"max_workers"`
}

type LogConfig struct {
	Level    string
	MaxCount int `yaml:"max_count" json:"max_count"`
	MaxSize  int `yaml:"max_size" json:"max_size"`
	MaxAge   int `yaml:"max_age" json:"max_age"`
}

type CronConfig struct {
	Enabled          bool
	StrategySync     string `yaml:"strategy_sync" json:"strategy_sync"`
	RetentionCleanup string `yaml:"retention_cleanup" json:"retention_cleanup"`
}

func fillDefault(c *GuardianConfig) {
	c.Server.Port = 8816
	c.Server.Pprof = true
	c.Server.PersistentPolicy = "local"
	c.Server.TaskInterval = 5
	c.Log.Level = "INFO"
	c.Log.MaxCount = 5
	c.Log.MaxSize = 10
	c.Log.MaxAge = 10
	c.Backup.StorageRoot = path.Join(GetWorkDirectory(), "backups")
	c.Backup.ScratchDir = path.Join(GetWorkDirectory(), "scratch")
	c.Backup.RemoteWorkDir = "/tmp/dbguardian"
	c.Backup.CommandTimeout = 3600
	c.Backup.TransferTimeout = 3600
	c.Backup.CascadeDelete = false
	c.Backup.MaxWorkers = 8
	c.Cron.Enabled = true
}

func MergeEnv() {
	if v := os.Getenv("HOST_IP"); v != "" {
		GlobalConfig.Server.Ip = v
	}
	if v := os.Getenv("DBGUARDIAN_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			GlobalConfig.Server.Port = port
		}
	}
	if v := os.Getenv("DBGUARDIAN_STORAGE_ROOT"); v != "" {
		GlobalConfig.Backup.StorageRoot = v
	}
}

func ParseConfigFile(p, version string) error {
	f, err := os.Open(p)
	if err != nil {
		return errors.Wrap(err, "")
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return errors.Wrap(err, "")
	}

	fillDefault(&GlobalConfig)
	format := strings.ToLower(filepath.Ext(p))
	switch format {
	case FORMAT_JSON:
		if err = json.Unmarshal(data, &GlobalConfig); err != nil {
			return errors.Wrap(err, "")
		}
	case FORMAT_HJSON:
		if err = hjson.Unmarshal(data, &GlobalConfig); err != nil {
			return errors.Wrap(err, "")
		}
	case FORMAT_YAML:
		if err = yaml.Unmarshal(data, &GlobalConfig); err != nil {
			return errors.Wrap(err, "")
		}
	default:
		return errors.Errorf("unsupported config format %s", format)
	}
	GlobalConfig.ConfigFile = p
	GlobalConfig.Version = version
	MergeEnv()
	return nil
}

func GetWorkDirectory() string {
	dir, err := osext.ExecutableFolder()
	if err != nil {
		return ""
	}
	return filepath.Dir(dir)
}
