package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Settings holds all configuration values
type Settings struct {
	// Logging configuration
	Logging struct {
		LogFile string
		Persist bool
		Level   string
	}

	// Streaming engine configuration
	Stream struct {
		FlushInterval     time.Duration
		MaxPendingFlushes int
		MaxResumeAttempts int
		TagLookback       int
	}

	// Checkpoint store configuration
	Checkpoint struct {
		Path      string
		RedisAddr string
		RedisKey  string
	}

	// Tool execution configuration
	Tools struct {
		AutoAllowed []string
		Timeout     time.Duration
	}

	// Model configuration for the replay/debug harness
	Model struct {
		Provider string
		Name     string
	}

	// ConfigFile stores the path to the config file used
	ConfigFile string
}

// Global settings instance
var Global *Settings

// Init initializes the configuration system
func Init(cfgFile string) error {
	Global = &Settings{}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		Global.ConfigFile = cfgFile
	} else {
		viper.AddConfigPath("./.copilot")
		viper.SetConfigType("yaml")
		viper.SetConfigName("settings")
		Global.ConfigFile = ".copilot/settings.yaml"
	}

	setDefaults()

	viper.AutomaticEnv()
	viper.BindEnv("checkpoint.redis_addr", "COPILOT_REDIS_ADDR")
	viper.BindEnv("model.name", "COPILOT_MODEL")

	if err := viper.ReadInConfig(); err == nil {
		fmt.Println("Using config file:", viper.ConfigFileUsed())
	}

	return Load()
}

// setDefaults sets all default configuration values
func setDefaults() {
	// Logging defaults
	viper.SetDefault("logging.log_file", "system.log")
	viper.SetDefault("logging.persist", false)
	viper.SetDefault("logging.level", "info")

	// Streaming defaults
	viper.SetDefault("stream.flush_interval", 16*time.Millisecond)
	viper.SetDefault("stream.max_pending_flushes", 32)
	viper.SetDefault("stream.max_resume_attempts", 3)
	viper.SetDefault("stream.tag_lookback", 50)

	// Checkpoint defaults
	viper.SetDefault("checkpoint.path", "stream-checkpoint.json")
	viper.SetDefault("checkpoint.redis_addr", "")
	viper.SetDefault("checkpoint.redis_key", "copilot:stream:checkpoint")

	// Tool defaults
	viper.SetDefault("tools.auto_allowed", []string{})
	viper.SetDefault("tools.timeout", 90*time.Second)

	// Model defaults for the replay harness
	viper.SetDefault("model.provider", "ollama")
	viper.SetDefault("model.name", "qwen3:latest")
}

// Load copies viper values into the global settings struct. Relative log and
// checkpoint paths are resolved against the settings directory here so the
// logger and checkpoint store receive final paths.
func Load() error {
	if Global == nil {
		Global = &Settings{}
	}

	Global.Logging.LogFile = BuildSettingsPath(viper.GetString("logging.log_file"))
	Global.Logging.Persist = viper.GetBool("logging.persist")
	Global.Logging.Level = viper.GetString("logging.level")

	Global.Stream.FlushInterval = viper.GetDuration("stream.flush_interval")
	Global.Stream.MaxPendingFlushes = viper.GetInt("stream.max_pending_flushes")
	Global.Stream.MaxResumeAttempts = viper.GetInt("stream.max_resume_attempts")
	Global.Stream.TagLookback = viper.GetInt("stream.tag_lookback")

	Global.Checkpoint.Path = BuildSettingsPath(viper.GetString("checkpoint.path"))
	Global.Checkpoint.RedisAddr = viper.GetString("checkpoint.redis_addr")
	Global.Checkpoint.RedisKey = viper.GetString("checkpoint.redis_key")

	Global.Tools.AutoAllowed = viper.GetStringSlice("tools.auto_allowed")
	Global.Tools.Timeout = viper.GetDuration("tools.timeout")

	Global.Model.Provider = viper.GetString("model.provider")
	Global.Model.Name = viper.GetString("model.name")

	return nil
}

// Get returns the global settings, initializing defaults if needed
func Get() *Settings {
	if Global == nil {
		setDefaults()
		_ = Load()
	}
	return Global
}
