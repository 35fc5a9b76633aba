package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbguardian/dbguardian/model"
)

func TestLocalTargetRoundTrip(t *testing.T) {
	root := t.TempDir()
	target := NewLocalTarget(root)
	require.Nil(t, target.TestConnectivity())

	src := filepath.Join(t.TempDir(), "artifact.sql.gz")
	require.Nil(t, os.WriteFile(src, []byte("backup bytes"), 0644))

	loc, err := target.Write(src, "inst-1/rec-1.sql.gz")
	require.Nil(t, err)
	assert.Equal(t, model.StorageDefault, loc.Kind)
	assert.Equal(t, filepath.Join(root, "inst-1/rec-1.sql.gz"), loc.Path)
	_, err = os.Stat(src)
	assert.True(t, os.IsNotExist(err))

	fetched := filepath.Join(t.TempDir(), "fetched.sql.gz")
	require.Nil(t, target.Read(loc, fetched))
	data, err := os.ReadFile(fetched)
	require.Nil(t, err)
	assert.Equal(t, "backup bytes", string(data))

	require.Nil(t, target.Remove(loc))
	_, err = os.Stat(loc.Path)
	assert.True(t, os.IsNotExist(err))
	// removing twice is not an error
	assert.Nil(t, target.Remove(loc))
}

func TestGetTarget(t *testing.T) {
	tgt, err := GetTarget(model.StorageTarget{}, nil)
	require.Nil(t, err)
	assert.Equal(t, model.StorageDefault, tgt.Kind())

	_, err = GetTarget(model.StorageTarget{Kind: model.StorageMySQLHost, Host: model.TargetMySQLHost{Path: "/backup"}}, nil)
	assert.NotNil(t, err)

	instance := &model.Instance{SshHost: "192.168.110.2", SshUser: "root"}
	tgt, err = GetTarget(model.StorageTarget{Kind: model.StorageMySQLHost, Host: model.TargetMySQLHost{Path: "/backup"}}, instance)
	require.Nil(t, err)
	assert.Equal(t, model.StorageMySQLHost, tgt.Kind())

	_, err = GetTarget(model.StorageTarget{Kind: "tape"}, nil)
	assert.NotNil(t, err)
}
