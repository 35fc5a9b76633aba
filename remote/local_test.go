package remote

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbguardian/dbguardian/log"
)

func TestMain(m *testing.M) {
	log.InitLoggerConsole()
	os.Exit(m.Run())
}

func TestLocalExecutorRun(t *testing.T) {
	e := NewLocalExecutor()
	defer e.Close()

	out, err := e.Run("echo hello", 10*time.Second)
	require.Nil(t, err)
	assert.Equal(t, "hello", strings.TrimSpace(out))

	_, err = e.Run("exit 3", 10*time.Second)
	assert.NotNil(t, err)
}

func TestLocalExecutorTransfer(t *testing.T) {
	e := NewLocalExecutor()
	defer e.Close()

	dir := t.TempDir()
	src := filepath.Join(dir, "src.sql")
	require.Nil(t, os.WriteFile(src, []byte("SELECT 1;"), 0644))

	staged := filepath.Join(dir, "staged.sql")
	require.Nil(t, e.Upload(src, staged))
	fetched := filepath.Join(dir, "fetched.sql")
	require.Nil(t, e.Download(staged, fetched))

	data, err := os.ReadFile(fetched)
	require.Nil(t, err)
	assert.Equal(t, "SELECT 1;", string(data))
}

func TestDialInstanceLocalFallback(t *testing.T) {
	e, err := DialInstance(Credentials{})
	require.Nil(t, err)
	defer e.Close()
	_, ok := e.(*LocalExecutor)
	assert.True(t, ok)
}
