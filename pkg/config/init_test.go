package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/copilot/pkg/config"
)

func TestInitAppliesDefaults(t *testing.T) {
	viper.Reset()
	require.NoError(t, config.Init(filepath.Join(t.TempDir(), "missing.yaml")))

	s := config.Get()
	assert.Equal(t, "info", s.Logging.Level)
	assert.Equal(t, 16*time.Millisecond, s.Stream.FlushInterval)
	assert.Equal(t, 32, s.Stream.MaxPendingFlushes)
	assert.Equal(t, 3, s.Stream.MaxResumeAttempts)
	assert.Equal(t, 50, s.Stream.TagLookback)
	assert.Equal(t, "copilot:stream:checkpoint", s.Checkpoint.RedisKey)
	assert.Equal(t, 90*time.Second, s.Tools.Timeout)
}

func TestInitReadsConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	content := []byte(`
logging:
  level: debug
stream:
  tag_lookback: 80
tools:
  auto_allowed:
    - read_file
    - search
`)
	require.NoError(t, os.WriteFile(path, content, 0644))

	viper.Reset()
	require.NoError(t, config.Init(path))

	s := config.Get()
	assert.Equal(t, "debug", s.Logging.Level)
	assert.Equal(t, 80, s.Stream.TagLookback)
	assert.Equal(t, []string{"read_file", "search"}, s.Tools.AutoAllowed)
	// unset keys keep their defaults
	assert.Equal(t, 32, s.Stream.MaxPendingFlushes)
	assert.Equal(t, path, s.ConfigFile)
}

func TestEnvironmentOverrides(t *testing.T) {
	viper.Reset()
	t.Setenv("COPILOT_REDIS_ADDR", "localhost:6380")
	t.Setenv("COPILOT_MODEL", "llama3.1:8b")

	require.NoError(t, config.Init(filepath.Join(t.TempDir(), "missing.yaml")))

	s := config.Get()
	assert.Equal(t, "localhost:6380", s.Checkpoint.RedisAddr)
	assert.Equal(t, "llama3.1:8b", s.Model.Name)
}

func TestBuildSettingsPath(t *testing.T) {
	viper.Reset()
	viper.Set("config.path", "/tmp/copilot-test")

	assert.Equal(t, "/tmp/copilot-test/history.json", config.BuildSettingsPath("history.json"))
	// absolute targets are already resolved
	assert.Equal(t, "/var/log/copilot.log", config.BuildSettingsPath("/var/log/copilot.log"))
}

func TestRelativePathsResolveAgainstSettingsDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  log_file: engine.log\n"), 0644))

	viper.Reset()
	require.NoError(t, config.Init(path))

	s := config.Get()
	assert.Equal(t, filepath.Join(dir, "engine.log"), s.Logging.LogFile)
	assert.Equal(t, filepath.Join(dir, "stream-checkpoint.json"), s.Checkpoint.Path)
}

func TestAbsolutePathsPassThrough(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("checkpoint:\n  path: /var/lib/copilot/cp.json\n"), 0644))

	viper.Reset()
	require.NoError(t, config.Init(path))

	assert.Equal(t, "/var/lib/copilot/cp.json", config.Get().Checkpoint.Path)
}
