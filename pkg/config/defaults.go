package config

import (
	"strings"
	"time"
)

// Default service ports. The router keeps its historic port; file and user
// follow in the same range.
const (
	DefaultFilePort   = 9998
	DefaultUserPort   = 9997
	DefaultRouterPort = 9999
)

// GetDefaultConfig returns a configuration with all defaults applied.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults sets default values for any unspecified fields. Zero values
// are replaced; explicit values are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyMetricsDefaults(&cfg.Metrics)
	applyRedisDefaults(&cfg.Redis)
	applyFileDefaults(&cfg.File)
	applyUserDefaults(&cfg.User)
	applyRouterDefaults(&cfg.Router)

	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = Duration(30 * time.Second)
	}
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stderr"
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Port == 0 {
		cfg.Port = 9090
	}
}

func applyRedisDefaults(cfg *RedisConfig) {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 6379
	}
}

func applyFileDefaults(cfg *FileConfig) {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultFilePort
	}
	if cfg.BaseDir == "" {
		cfg.BaseDir = "data"
	}
	if cfg.SizeLimit == 0 {
		cfg.SizeLimit = 10 << 20
	}
}

func applyUserDefaults(cfg *UserConfig) {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultUserPort
	}
	if cfg.Data.MaxKeySize == 0 {
		cfg.Data.MaxKeySize = 256
	}
	if cfg.Data.MaxValueSize == 0 {
		cfg.Data.MaxValueSize = 4096
	}
	if cfg.Data.MaxTotalSize == 0 {
		cfg.Data.MaxTotalSize = 64 << 10
	}
	if cfg.Profile.MaxValueSize == 0 {
		cfg.Profile.MaxValueSize = 4096
	}
}

func applyRouterDefaults(cfg *RouterConfig) {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultRouterPort
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = Duration(8 * time.Hour)
	}
	if cfg.VirginTimeout == 0 {
		cfg.VirginTimeout = Duration(time.Minute)
	}
	if cfg.MaxSessions == 0 {
		cfg.MaxSessions = 10
	}
}
