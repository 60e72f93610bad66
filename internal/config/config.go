// Package config provides configuration management for the statistics agent.
package config

import (
	"crypto/tls"
	"encoding/binary"
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"
	"strconv"
	"time"

	"github.com/infodancer/mailstatsd/internal/mailstats"
)

// ListenerMode defines the operational mode for a listener.
type ListenerMode string

const (
	// ModeAgent is a plain TCP passive-check listener.
	ModeAgent ListenerMode = "agent"
	// ModeAgentTLS is a passive-check listener with implicit TLS.
	ModeAgentTLS ListenerMode = "agent-tls"
)

// DefaultStatisticsFile is where sendmail writes its statistics by default.
const DefaultStatisticsFile = "/var/lib/sendmail/sendmail.st"

// DefaultKeyPrefix is the item key namespace the agent answers for.
const DefaultKeyPrefix = "sendmail."

// FileConfig is the top-level wrapper for the shared configuration file.
// This allows mailstatsd to share a config file with the mail daemons.
type FileConfig struct {
	Mailstatsd Config `toml:"mailstatsd"`
}

// Config holds the complete agent configuration.
type Config struct {
	LogLevel       string           `toml:"log_level"`
	StatisticsFile string           `toml:"statistics_file"`
	Format         FormatConfig     `toml:"format"`
	Listeners      []ListenerConfig `toml:"listeners"`
	TLS            TLSConfig        `toml:"tls"`
	Timeouts       TimeoutsConfig   `toml:"timeouts"`
	Agent          AgentConfig      `toml:"agent"`
	Metrics        MetricsConfig    `toml:"metrics"`
	Redis          RedisConfig      `toml:"redis"`
}

// FormatConfig identifies the statistics file revision to accept.
type FormatConfig struct {
	Magic     int64  `toml:"magic"`
	Version   int64  `toml:"version"`
	ByteOrder string `toml:"byte_order"`
}

// ListenerConfig defines settings for a single listener.
type ListenerConfig struct {
	Address string       `toml:"address"`
	Mode    ListenerMode `toml:"mode"`
}

// TLSConfig holds TLS certificate and version settings.
type TLSConfig struct {
	CertFile   string `toml:"cert_file"`
	KeyFile    string `toml:"key_file"`
	MinVersion string `toml:"min_version"`
}

// TimeoutsConfig defines timeout durations.
type TimeoutsConfig struct {
	Connection string `toml:"connection"`
	Command    string `toml:"command"`
}

// AgentConfig holds passive-check protocol settings.
type AgentConfig struct {
	// KeyPrefix is stripped from incoming item keys. Nil means the default;
	// an empty string accepts bare keys.
	KeyPrefix *string `toml:"key_prefix"`
}

// MetricsConfig holds configuration for Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Address string `toml:"address"`
	Path    string `toml:"path"`
	// MailerNames maps mailer slot indices to label values.
	MailerNames map[string]string `toml:"mailer_names"`
}

// RedisConfig holds configuration for the snapshot publisher.
type RedisConfig struct {
	Enabled   bool   `toml:"enabled"`
	Address   string `toml:"address"`
	Password  string `toml:"password"`
	DB        int    `toml:"db"`
	KeyPrefix string `toml:"key_prefix"`
	Interval  string `toml:"interval"`
	TTL       string `toml:"ttl"`
}

// Default returns a Config with sensible default values.
func Default() Config {
	return Config{
		LogLevel:       "info",
		StatisticsFile: DefaultStatisticsFile,
		Format: FormatConfig{
			Magic:     int64(mailstats.DefaultMagic),
			Version:   int64(mailstats.DefaultVersion),
			ByteOrder: "little",
		},
		Listeners: []ListenerConfig{
			{Address: ":10050", Mode: ModeAgent},
		},
		TLS: TLSConfig{
			MinVersion: "1.2",
		},
		Timeouts: TimeoutsConfig{
			Connection: "30s",
			Command:    "3s",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Address: ":9225",
			Path:    "/metrics",
		},
		Redis: RedisConfig{
			Enabled:   false,
			Address:   "localhost:6379",
			KeyPrefix: "mailstats",
			Interval:  "1m",
			TTL:       "5m",
		},
	}
}

// Validate checks that the configuration is valid and returns an error if not.
func (c *Config) Validate() error {
	if c.StatisticsFile == "" {
		return errors.New("statistics_file is required")
	}

	if c.Format.Magic < math.MinInt32 || c.Format.Magic > math.MaxInt32 {
		return fmt.Errorf("format magic %#x does not fit in 32 bits", c.Format.Magic)
	}
	if c.Format.Version < math.MinInt32 || c.Format.Version > math.MaxInt32 {
		return fmt.Errorf("format version %d does not fit in 32 bits", c.Format.Version)
	}
	if _, ok := byteOrders[c.Format.ByteOrder]; !ok {
		return fmt.Errorf("invalid format byte_order %q (valid: little, big)", c.Format.ByteOrder)
	}

	if len(c.Listeners) == 0 {
		return errors.New("at least one listener is required")
	}

	for i, l := range c.Listeners {
		if l.Address == "" {
			return fmt.Errorf("listener %d: address is required", i)
		}
		if !isValidMode(l.Mode) {
			return fmt.Errorf("listener %d: invalid mode %q", i, l.Mode)
		}
	}

	if c.Timeouts.Connection != "" {
		if _, err := time.ParseDuration(c.Timeouts.Connection); err != nil {
			return fmt.Errorf("invalid connection timeout: %w", err)
		}
	}

	if c.Timeouts.Command != "" {
		if _, err := time.ParseDuration(c.Timeouts.Command); err != nil {
			return fmt.Errorf("invalid command timeout: %w", err)
		}
	}

	if c.TLS.MinVersion != "" {
		if _, ok := minTLSVersions[c.TLS.MinVersion]; !ok {
			return fmt.Errorf("invalid TLS min_version %q (valid: 1.0, 1.1, 1.2, 1.3)", c.TLS.MinVersion)
		}
	}

	if c.Metrics.Enabled {
		if c.Metrics.Address == "" {
			return errors.New("metrics address is required when metrics are enabled")
		}
		if c.Metrics.Path == "" {
			return errors.New("metrics path is required when metrics are enabled")
		}
	}
	if err := validateMailerNames(c.Metrics.MailerNames); err != nil {
		return fmt.Errorf("metrics mailer_names: %w", err)
	}

	if c.Redis.Enabled {
		if c.Redis.Address == "" {
			return errors.New("redis address is required when redis is enabled")
		}
		if c.Redis.KeyPrefix == "" {
			return errors.New("redis key_prefix is required when redis is enabled")
		}
		d, err := time.ParseDuration(c.Redis.Interval)
		if err != nil {
			return fmt.Errorf("invalid redis interval: %w", err)
		}
		if d <= 0 {
			return errors.New("redis interval must be positive")
		}
		if c.Redis.TTL != "" {
			if _, err := time.ParseDuration(c.Redis.TTL); err != nil {
				return fmt.Errorf("invalid redis ttl: %w", err)
			}
		}
	}

	return nil
}

// validateMailerNames checks that every label is unique across all slots,
// including the index labels of slots left unnamed.
func validateMailerNames(names map[string]string) error {
	bySlot := make(map[int]string, len(names))
	byName := make(map[string]string, len(names))
	for _, slot := range slices.Sorted(maps.Keys(names)) {
		i, err := mailstats.ParseMailerIndex(slot)
		if err != nil {
			return fmt.Errorf("slot %q: %w", slot, err)
		}
		if other, ok := bySlot[i]; ok {
			return fmt.Errorf("slots %q and %q name the same mailer", other, slot)
		}
		bySlot[i] = slot

		name := names[slot]
		if name == "" {
			return fmt.Errorf("slot %q: empty name", slot)
		}
		if other, ok := byName[name]; ok {
			return fmt.Errorf("name %q used for slots %q and %q", name, other, slot)
		}
		byName[name] = slot
		if j, err := strconv.Atoi(name); err == nil && j != i && j >= 0 && j < mailstats.MaxMailers && strconv.Itoa(j) == name {
			return fmt.Errorf("slot %q: name %q is the label of mailer %d", slot, name, j)
		}
	}
	return nil
}

// StatsFormat returns the statistics file format described by the config.
// Call Validate first; out-of-range values are truncated.
func (c *Config) StatsFormat() mailstats.Format {
	order, ok := byteOrders[c.Format.ByteOrder]
	if !ok {
		order = binary.LittleEndian
	}
	return mailstats.Format{
		Magic:     int32(c.Format.Magic),
		Version:   int32(c.Format.Version),
		ByteOrder: order,
	}
}

// MinTLSVersion returns the crypto/tls constant for the configured minimum TLS version.
// Returns tls.VersionTLS12 if not configured or invalid.
func (c *TLSConfig) MinTLSVersion() uint16 {
	if v, ok := minTLSVersions[c.MinVersion]; ok {
		return v
	}
	return tls.VersionTLS12
}

// ConnectionTimeout returns the connection timeout as a time.Duration.
// Returns 30 seconds if not configured or invalid.
func (c *TimeoutsConfig) ConnectionTimeout() time.Duration {
	return parseDurationOr(c.Connection, 30*time.Second)
}

// CommandTimeout returns the request read timeout as a time.Duration.
// Returns 3 seconds if not configured or invalid.
func (c *TimeoutsConfig) CommandTimeout() time.Duration {
	return parseDurationOr(c.Command, 3*time.Second)
}

// GetKeyPrefix returns the configured key prefix or DefaultKeyPrefix.
func (c *AgentConfig) GetKeyPrefix() string {
	if c.KeyPrefix == nil {
		return DefaultKeyPrefix
	}
	return *c.KeyPrefix
}

// PublishInterval returns the publish interval. Returns 1 minute if not
// configured or invalid.
func (c *RedisConfig) PublishInterval() time.Duration {
	return parseDurationOr(c.Interval, time.Minute)
}

// Expiry returns the TTL applied to published snapshots. Zero means no expiry.
func (c *RedisConfig) Expiry() time.Duration {
	return parseDurationOr(c.TTL, 0)
}

func parseDurationOr(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

var minTLSVersions = map[string]uint16{
	"1.0": tls.VersionTLS10,
	"1.1": tls.VersionTLS11,
	"1.2": tls.VersionTLS12,
	"1.3": tls.VersionTLS13,
}

var byteOrders = map[string]binary.ByteOrder{
	"little": binary.LittleEndian,
	"big":    binary.BigEndian,
}

func isValidMode(m ListenerMode) bool {
	switch m {
	case ModeAgent, ModeAgentTLS:
		return true
	default:
		return false
	}
}
