package config

import (
	"os"
	"path"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfigFileYaml(t *testing.T) {
	p := path.Join(t.TempDir(), "dbguardian.yaml")
	data := `
server:
  port: 9999
  persistent_policy: mysql
backup:
  storage_root: /data01/backups
  cascade_delete: true
log:
  level: DEBUG
`
	require.Nil(t, os.WriteFile(p, []byte(data), 0644))
	require.Nil(t, ParseConfigFile(p, "test"))

	assert.Equal(t, 9999, GlobalConfig.Server.Port)
	assert.Equal(t, "mysql", GlobalConfig.Server.PersistentPolicy)
	assert.Equal(t, "/data01/backups", GlobalConfig.Backup.StorageRoot)
	assert.True(t, GlobalConfig.Backup.CascadeDelete)
	assert.Equal(t, "DEBUG", GlobalConfig.Log.Level)
	// untouched fields keep their defaults
	assert.Equal(t, 5, GlobalConfig.Server.TaskInterval)
	assert.Equal(t, 3600, GlobalConfig.Backup.CommandTimeout)
	assert.Equal(t, "/tmp/dbguardian", GlobalConfig.Backup.RemoteWorkDir)
}

func TestParseConfigFileHjson(t *testing.T) {
	p := path.Join(t.TempDir(), "dbguardian.hjson")
	data := `{
  server: {
    port: 8817
  }
  backup: {
    max_workers: 4
  }
}`
	require.Nil(t, os.WriteFile(p, []byte(data), 0644))
	require.Nil(t, ParseConfigFile(p, "test"))

	assert.Equal(t, 8817, GlobalConfig.Server.Port)
	assert.Equal(t, 4, GlobalConfig.Backup.MaxWorkers)
}

func TestParseConfigFileUnsupportedFormat(t *testing.T) {
	p := path.Join(t.TempDir(), "dbguardian.toml")
	require.Nil(t, os.WriteFile(p, []byte("x = 1"), 0644))
	assert.NotNil(t, ParseConfigFile(p, "test"))
}

func TestMergeEnv(t *testing.T) {
	p := path.Join(t.TempDir(), "dbguardian.yaml")
	require.Nil(t, os.WriteFile(p, []byte("server:\n  port: 1000\n"), 0644))

	t.Setenv("DBGUARDIAN_PORT", "2000")
	t.Setenv("DBGUARDIAN_STORAGE_ROOT", "/mnt/backups")
	require.Nil(t, ParseConfigFile(p, "test"))

	assert.Equal(t, 2000, GlobalConfig.Server.Port)
	assert.Equal(t, "/mnt/backups", GlobalConfig.Backup.StorageRoot)
}
