package local

import (
	"fmt"
	"path"

	"github.com/dbguardian/dbguardian/common"
	"github.com/dbguardian/dbguardian/config"
)

const (
	LocalPersistentName string = "local"

	FORMAT_JSON string = "json"
	FORMAT_YAML string = "yaml"

	DefaultDataFile string = "backup_meta"
)

type LocalConfig struct {
	Format     string `yaml:"format" json:"format"`
	ConfigDir  string `yaml:"config_dir" json:"config_dir"`
	ConfigFile string `yaml:"config_file" json:"config_file"`
}

var FormatFileSuffix = map[string]string{
	FORMAT_JSON: "json",
	FORMAT_YAML: "yaml",
}

func (c *LocalConfig) Normalize() {
	c.Format = common.GetStringwithDefault(c.Format, FORMAT_JSON)
	c.ConfigDir = common.GetStringwithDefault(c.ConfigDir, path.Join(config.GetWorkDirectory(), "data"))
	c.ConfigFile = fmt.Sprintf("%s.%s", common.GetStringwithDefault(c.ConfigFile, DefaultDataFile), FormatFileSuffix[c.Format])
}
