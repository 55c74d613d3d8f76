// Package config loads, validates, and saves PlanetHub configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config represents the configuration of one PlanetHub instance.
//
// One instance can run any combination of the three services (file, user,
// router); each service reads only its own section plus the shared sections.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (PLANETHUB_*)
//  2. Configuration file (YAML)
//  3. Default values
type Config struct {
	// Logging controls log output behavior.
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Metrics contains the Prometheus metrics/health HTTP server settings.
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// Redis configures the key/value database used by the user service.
	Redis RedisConfig `mapstructure:"redis" yaml:"redis"`

	// File configures the file service.
	File FileConfig `mapstructure:"file" yaml:"file"`

	// User configures the user service.
	User UserConfig `mapstructure:"user" yaml:"user"`

	// Router configures the session multiplexer.
	Router RouterConfig `mapstructure:"router" yaml:"router"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level: DEBUG, INFO, WARN, ERROR.
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format is the output format: text or json.
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output is "stdout", "stderr", or a file path.
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// MetricsConfig configures the Prometheus metrics HTTP server.
// When Enabled is false, no metrics are collected.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the HTTP port for /metrics and /health.
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// RedisConfig locates the external key/value database.
type RedisConfig struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// Addr returns the host:port dial address.
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// FileConfig configures the file service.
type FileConfig struct {
	// Host is the listen address (empty for all interfaces).
	Host string `mapstructure:"host" yaml:"host"`

	// Port is the TCP port the file service listens on.
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`

	// BaseDir selects the root backend. Plain paths map to the local
	// filesystem; "int:" mounts an in-memory root; "ca:<dir>" mounts the
	// content-addressable store; "s3://bucket/prefix" mounts an S3 bucket.
	BaseDir string `mapstructure:"basedir" yaml:"basedir"`

	// SizeLimit is the maximum file size accepted or served, in bytes.
	SizeLimit int64 `mapstructure:"sizelimit" validate:"omitempty,gt=0" yaml:"sizelimit"`

	// Threads is accepted for compatibility with older installations and
	// ignored; concurrency is per-connection.
	Threads int `mapstructure:"threads" yaml:"threads,omitempty"`
}

// UserConfig configures the user service.
type UserConfig struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`

	// Key is the system-wide pepper for the classic password scheme.
	Key string `mapstructure:"key" yaml:"key"`

	// Data bounds the per-user key/value store.
	Data UserDataConfig `mapstructure:"data" yaml:"data"`

	// Profile bounds user profile fields.
	Profile ProfileConfig `mapstructure:"profile" yaml:"profile"`
}

// UserDataConfig bounds the per-user key/value store.
type UserDataConfig struct {
	MaxKeySize   int `mapstructure:"maxkeysize" validate:"omitempty,gt=0" yaml:"maxkeysize"`
	MaxValueSize int `mapstructure:"maxvaluesize" validate:"omitempty,gt=0" yaml:"maxvaluesize"`
	MaxTotalSize int `mapstructure:"maxtotalsize" validate:"omitempty,gt=0" yaml:"maxtotalsize"`
}

// ProfileConfig bounds user profile fields.
type ProfileConfig struct {
	MaxValueSize int `mapstructure:"maxvaluesize" validate:"omitempty,gt=0" yaml:"maxvaluesize"`
}

// RouterConfig configures the session multiplexer.
type RouterConfig struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`

	// Server is the path of the play-server program spawned per session.
	Server string `mapstructure:"server" yaml:"server"`

	// Timeout stops sessions that have been used but idle this long.
	Timeout Duration `mapstructure:"timeout" validate:"omitempty,gt=0" yaml:"timeout"`

	// VirginTimeout stops sessions never talked to after this long.
	VirginTimeout Duration `mapstructure:"virgintimeout" validate:"omitempty,gt=0" yaml:"virgintimeout"`

	// MaxSessions bounds the number of concurrent sessions.
	MaxSessions int `mapstructure:"maxsessions" validate:"omitempty,gt=0" yaml:"maxsessions"`

	// NewSessionsWin makes a conflicting NEW stop the older session
	// instead of failing.
	NewSessionsWin bool `mapstructure:"newsessionswin" yaml:"newsessionswin"`

	// FileNotify enables FORGET notifications to the file service after
	// a successful save.
	FileNotify bool `mapstructure:"filenotify" yaml:"filenotify"`
}

// Load loads configuration from file, environment, and defaults.
//
// An empty configPath loads pure defaults with environment overrides.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	if err := readConfigFile(v, configPath); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// Save writes the configuration as YAML with restricted permissions; the
// file may carry the classic-scheme pepper.
func Save(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func setupViper(v *viper.Viper, configPath string) {
	// Environment variables use the PLANETHUB_ prefix and underscores:
	// PLANETHUB_ROUTER_MAXSESSIONS=20 overrides router.maxsessions.
	v.SetEnvPrefix("PLANETHUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	}
}

func readConfigFile(v *viper.Viper, configPath string) error {
	if configPath == "" {
		return nil
	}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// configDecodeHooks returns the decode hook for custom types, currently
// time.Duration parsing from strings like "30m" or plain second counts.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		durationDecodeHook(),
	)
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(Duration(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			parsed, err := time.ParseDuration(v)
			if err != nil {
				return nil, err
			}
			return Duration(parsed), nil
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v) * time.Second), nil
		default:
			return data, nil
		}
	}
}
