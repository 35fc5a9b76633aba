package registry

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbguardian/dbguardian/log"
	"github.com/dbguardian/dbguardian/model"
	"github.com/dbguardian/dbguardian/repository"
	"github.com/dbguardian/dbguardian/repository/local"
)

func TestMain(m *testing.M) {
	log.InitLoggerConsole()
	os.Exit(m.Run())
}

func TestGetInstanceCaches(t *testing.T) {
	lp := local.NewLocalPersistent()
	require.Nil(t, lp.Init(local.LocalConfig{ConfigDir: t.TempDir()}))
	repository.Ps = lp

	instance := model.Instance{InstanceId: "inst-cache", Alias: "before", Host: "127.0.0.1", User: "root"}
	require.Nil(t, repository.Ps.CreateInstance(instance))
	Invalidate("inst-cache")

	got, err := GetInstance("inst-cache")
	require.Nil(t, err)
	assert.Equal(t, "before", got.Alias)

	// a repository-level change is invisible until the cache is invalidated
	instance.Alias = "after"
	require.Nil(t, repository.Ps.UpdateInstance(instance))
	got, err = GetInstance("inst-cache")
	require.Nil(t, err)
	assert.Equal(t, "before", got.Alias)

	Invalidate("inst-cache")
	got, err = GetInstance("inst-cache")
	require.Nil(t, err)
	assert.Equal(t, "after", got.Alias)
}

func TestGetInstanceMissing(t *testing.T) {
	lp := local.NewLocalPersistent()
	require.Nil(t, lp.Init(local.LocalConfig{ConfigDir: t.TempDir()}))
	repository.Ps = lp

	_, err := GetInstance("no-such-instance")
	assert.NotNil(t, err)
}
