package config

import (
	"path/filepath"

	"github.com/spf13/viper"
)

// BaseSettingsDir returns the directory the active settings file lives in.
// Relative artifact paths (log file, checkpoint blob) resolve against it so
// the engine writes next to its settings instead of the process cwd.
func BaseSettingsDir() string {
	// config.path overrides the resolution root (set by tests)
	if override := viper.GetString("config.path"); override != "" {
		return override
	}
	if used := viper.ConfigFileUsed(); used != "" {
		return filepath.Dir(used)
	}
	return ".copilot"
}

// BuildSettingsPath resolves target against the settings directory.
// Absolute targets pass through unchanged.
func BuildSettingsPath(target string) string {
	if target == "" || filepath.IsAbs(target) {
		return target
	}
	return filepath.Join(BaseSettingsDir(), target)
}
