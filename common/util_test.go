package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArraySearch(t *testing.T) {
	list := []string{"full", "hot", "incremental"}
	assert.True(t, ArraySearch("hot", list))
	assert.False(t, ArraySearch("cold", list))
}

func TestConvertDuration(t *testing.T) {
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(95 * time.Second)
	assert.Equal(t, "1m35s", ConvertDuration(start, end))
	assert.Equal(t, "", ConvertDuration(end, start))
}

func TestSha256File(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "dump.sql")
	require.Nil(t, os.WriteFile(p, []byte("CREATE TABLE t1 (id int);\n"), 0644))

	sum1, err := Sha256File(p)
	require.Nil(t, err)
	sum2, err := Sha256File(p)
	require.Nil(t, err)
	assert.Equal(t, sum1, sum2)
	assert.Len(t, sum1, 64)

	require.Nil(t, os.WriteFile(p, []byte("CREATE TABLE t2 (id int);\n"), 0644))
	sum3, err := Sha256File(p)
	require.Nil(t, err)
	assert.NotEqual(t, sum1, sum3)
}

func TestGzipRoundTrip(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "dump.sql")
	content := []byte("INSERT INTO t1 VALUES (1),(2),(3);\n")
	require.Nil(t, os.WriteFile(src, content, 0644))

	gz, err := GzipFile(src)
	require.Nil(t, err)
	assert.Equal(t, src+".gz", gz)
	_, err = os.Stat(src)
	assert.True(t, os.IsNotExist(err))

	out := filepath.Join(dir, "restored.sql")
	require.Nil(t, GunzipFile(gz, out))
	got, err := os.ReadFile(out)
	require.Nil(t, err)
	assert.Equal(t, content, got)
}

func TestFormatReadableSize(t *testing.T) {
	assert.Equal(t, "512.00B", FormatReadableSize(512))
	assert.Equal(t, "1.00KB", FormatReadableSize(1024))
	assert.Equal(t, "1.50MB", FormatReadableSize(3*1024*1024/2))
}
