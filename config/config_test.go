package config_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"reduction.dev/mergekv/config"
	"reduction.dev/mergekv/util/size"
)

func TestUnmarshal(t *testing.T) {
	c, err := config.Unmarshal([]byte(`
location: s3://bucket/db
memtable_size: 1024
compaction_trigger: 2
log:
  level: debug
`))
	require.NoError(t, err)
	require.NoError(t, c.Validate())

	assert.Equal(t, &config.Config{
		Location:          "s3://bucket/db",
		MemTableSize:      1024,
		TargetTableSize:   256 * size.MB,
		CompactionTrigger: 2,
		Log:               config.LogConfig{Level: "debug"},
	}, c)

	level, err := c.LogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}

func TestUnmarshal_LocationFromEnvironment(t *testing.T) {
	t.Setenv(config.LocationEnv, "/tmp/mergekv")

	c, err := config.Unmarshal([]byte("memtable_size: 10\n"))
	require.NoError(t, err)
	assert.Equal(t, "/tmp/mergekv", c.Location)

	c, err = config.Unmarshal([]byte("location: memory://\n"))
	require.NoError(t, err)
	assert.Equal(t, "memory://", c.Location, "document wins over the environment")
}

func TestUnmarshal_InvalidDocument(t *testing.T) {
	_, err := config.Unmarshal([]byte("memtable_size: [1, 2"))
	assert.ErrorContains(t, err, "invalid config document format")
}

func TestValidate(t *testing.T) {
	t.Setenv(config.LocationEnv, "")
	c, err := config.Unmarshal([]byte(`
memtable_size: 0
compaction_trigger: 0
log:
  level: loud
`))
	require.NoError(t, err)

	err = c.Validate()
	assert.ErrorContains(t, err, "location is required")
	assert.ErrorContains(t, err, "memtable_size must be positive")
	assert.ErrorContains(t, err, "compaction_trigger must be at least 1")
	assert.ErrorContains(t, err, "log.level")
}

func TestLoad(t *testing.T) {
	t.Setenv(config.LocationEnv, "")
	dir := t.TempDir()

	c, err := config.Load(filepath.Join(dir, "missing.yaml"))
	require.NoError(t, err)
	defaults := config.Default()
	assert.Equal(t, &defaults, c)

	path := filepath.Join(dir, "mergekv.yaml")
	require.NoError(t, os.WriteFile(path, []byte("location: "+dir+"\n"), 0o644))
	c, err = config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, dir, c.Location)
	assert.NoError(t, c.Validate())
}

func TestLoad_DefaultsForMissingOrEmptyFile(t *testing.T) {
	t.Setenv(config.LocationEnv, "/tmp/mergekv")
	dir := t.TempDir()
	want := config.Default()
	want.Location = "/tmp/mergekv"

	c, err := config.Load(filepath.Join(dir, "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, &want, c)
	assert.NoError(t, c.Validate(), "defaults plus the environment location are valid")

	for name, doc := range map[string]string{
		"empty.yaml":    "",
		"blank.yaml":    "\n  \n",
		"comments.yaml": "# nothing configured yet\n",
		"marker.yaml":   "---\n",
	} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
		c, err := config.Load(path)
		require.NoError(t, err, name)
		assert.Equal(t, &want, c, name)
	}
}
