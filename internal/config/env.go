package config

import (
	"os"
	"strconv"
)

// ApplyEnv applies environment variable overrides to the configuration.
// Environment variables take precedence over TOML config but are overridden by command-line flags.
func ApplyEnv(cfg Config) Config {
	if v := os.Getenv("MAILSTATSD_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("MAILSTATSD_STATISTICS_FILE"); v != "" {
		cfg.StatisticsFile = v
	}
	if v := os.Getenv("MAILSTATSD_TLS_CERT_FILE"); v != "" {
		cfg.TLS.CertFile = v
	}
	if v := os.Getenv("MAILSTATSD_TLS_KEY_FILE"); v != "" {
		cfg.TLS.KeyFile = v
	}
	if v, ok := os.LookupEnv("MAILSTATSD_KEY_PREFIX"); ok {
		cfg.Agent.KeyPrefix = &v
	}

	if v := os.Getenv("MAILSTATSD_REDIS_ADDRESS"); v != "" {
		cfg.Redis.Enabled = true
		cfg.Redis.Address = v
	}
	if v := os.Getenv("MAILSTATSD_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("MAILSTATSD_REDIS_DB"); v != "" {
		// Non-numeric values are ignored.
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Redis.DB = db
		}
	}

	return cfg
}
