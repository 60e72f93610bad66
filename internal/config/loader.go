package config

import (
	"flag"
	"fmt"
	"os"

	toml "github.com/pelletier/go-toml/v2"
)

// Flags holds command-line flag values.
type Flags struct {
	ConfigPath     string
	LogLevel       string
	Listen         string
	StatisticsFile string
	TLSCert        string
	TLSKey         string
	MetricsAddress string
	RedisAddress   string

	// Args holds the positional arguments left after flag parsing.
	Args []string
}

// ParseFlags parses command-line flags and returns a Flags struct.
func ParseFlags() *Flags {
	f := &Flags{}

	flag.StringVar(&f.ConfigPath, "config", "./mailstatsd.toml", "Path to configuration file")
	flag.StringVar(&f.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flag.StringVar(&f.Listen, "listen", "", "Agent listen address (replaces all config listeners)")
	flag.StringVar(&f.StatisticsFile, "stats-file", "", "Path to the sendmail statistics file")
	flag.StringVar(&f.TLSCert, "tls-cert", "", "TLS certificate file path")
	flag.StringVar(&f.TLSKey, "tls-key", "", "TLS key file path")
	flag.StringVar(&f.MetricsAddress, "metrics-listen", "", "Prometheus listen address (enables metrics)")
	flag.StringVar(&f.RedisAddress, "redis", "", "Redis address for snapshot publishing (enables publishing)")

	flag.Parse()
	f.Args = flag.Args()
	return f
}

// Load parses a TOML configuration file and returns the Config.
// If the file does not exist, returns the default configuration.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config file: %w", err)
	}

	var fileConfig FileConfig
	if err := toml.Unmarshal(data, &fileConfig); err != nil {
		return cfg, fmt.Errorf("parsing config file: %w", err)
	}

	cfg = mergeConfig(cfg, fileConfig.Mailstatsd)

	return cfg, nil
}

// ApplyFlags merges command-line flag values into the config.
// Non-empty flag values override config file and environment values.
func ApplyFlags(cfg Config, f *Flags) Config {
	if f.LogLevel != "" {
		cfg.LogLevel = f.LogLevel
	}

	if f.Listen != "" {
		// -listen replaces ALL listeners with a single plain listener
		cfg.Listeners = []ListenerConfig{
			{Address: f.Listen, Mode: ModeAgent},
		}
	}

	if f.StatisticsFile != "" {
		cfg.StatisticsFile = f.StatisticsFile
	}

	if f.TLSCert != "" {
		cfg.TLS.CertFile = f.TLSCert
	}

	if f.TLSKey != "" {
		cfg.TLS.KeyFile = f.TLSKey
	}

	if f.MetricsAddress != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Address = f.MetricsAddress
	}

	if f.RedisAddress != "" {
		cfg.Redis.Enabled = true
		cfg.Redis.Address = f.RedisAddress
	}

	return cfg
}

// LoadWithFlags loads configuration from the path specified in flags,
// then applies environment and flag overrides in that order.
func LoadWithFlags(f *Flags) (Config, error) {
	cfg, err := Load(f.ConfigPath)
	if err != nil {
		return cfg, err
	}
	return ApplyFlags(ApplyEnv(cfg), f), nil
}

// mergeConfig merges non-zero values from src into dst.
func mergeConfig(dst, src Config) Config {
	if src.LogLevel != "" {
		dst.LogLevel = src.LogLevel
	}

	if src.StatisticsFile != "" {
		dst.StatisticsFile = src.StatisticsFile
	}

	if src.Format.Magic != 0 {
		dst.Format.Magic = src.Format.Magic
	}

	if src.Format.Version != 0 {
		dst.Format.Version = src.Format.Version
	}

	if src.Format.ByteOrder != "" {
		dst.Format.ByteOrder = src.Format.ByteOrder
	}

	if len(src.Listeners) > 0 {
		dst.Listeners = src.Listeners
	}

	if src.TLS.CertFile != "" {
		dst.TLS.CertFile = src.TLS.CertFile
	}

	if src.TLS.KeyFile != "" {
		dst.TLS.KeyFile = src.TLS.KeyFile
	}

	if src.TLS.MinVersion != "" {
		dst.TLS.MinVersion = src.TLS.MinVersion
	}

	if src.Timeouts.Connection != "" {
		dst.Timeouts.Connection = src.Timeouts.Connection
	}

	if src.Timeouts.Command != "" {
		dst.Timeouts.Command = src.Timeouts.Command
	}

	if src.Agent.KeyPrefix != nil {
		dst.Agent.KeyPrefix = src.Agent.KeyPrefix
	}

	// Booleans only merge when set, so a file cannot disable a default of true.
	if src.Metrics.Enabled {
		dst.Metrics.Enabled = src.Metrics.Enabled
	}

	if src.Metrics.Address != "" {
		dst.Metrics.Address = src.Metrics.Address
	}

	if src.Metrics.Path != "" {
		dst.Metrics.Path = src.Metrics.Path
	}

	if len(src.Metrics.MailerNames) > 0 {
		dst.Metrics.MailerNames = src.Metrics.MailerNames
	}

	if src.Redis.Enabled {
		dst.Redis.Enabled = src.Redis.Enabled
	}

	if src.Redis.Address != "" {
		dst.Redis.Address = src.Redis.Address
	}

	if src.Redis.Password != "" {
		dst.Redis.Password = src.Redis.Password
	}

	if src.Redis.DB != 0 {
		dst.Redis.DB = src.Redis.DB
	}

	if src.Redis.KeyPrefix != "" {
		dst.Redis.KeyPrefix = src.Redis.KeyPrefix
	}

	if src.Redis.Interval != "" {
		dst.Redis.Interval = src.Redis.Interval
	}

	if src.Redis.TTL != "" {
		dst.Redis.TTL = src.Redis.TTL
	}

	return dst
}
