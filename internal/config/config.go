// Package config manages the nand daemon configuration using koanf/v2.
//
// Supports YAML files and environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// -------------------------------------------------------------------------
// Configuration Structures
// -------------------------------------------------------------------------

// Config holds the complete nand configuration.
type Config struct {
	Radio   RadioConfig   `koanf:"radio"`
	Metrics MetricsConfig `koanf:"metrics"`
	Log     LogConfig     `koanf:"log"`
	Desync  DesyncConfig  `koanf:"desync"`
}

// RadioConfig describes the monitor-mode WLAN interface, the host-side
// TAP device it bridges to, and the skip-flags spec.md §6 calls for
// ("skip-flags for monitor mode / channel set / link up-down").
type RadioConfig struct {
	// Interface is the WLAN interface name, which must be
	// monitor-capable (e.g. "wlan0mon").
	Interface string `koanf:"interface"`

	// HostInterface is the virtual host-side TAP interface name.
	HostInterface string `koanf:"host_interface"`

	// Channel is the 802.11 channel number. Only 6, 44, and 149 are
	// accepted per §6.
	Channel int `koanf:"channel"`

	// PcapDumpPath names a pcap file for frames that fail to parse (§7
	// "Transient parse" policy). It is loaded from the config, but the
	// daemon does not read it and writes no pcap file.
	PcapDumpPath string `koanf:"pcap_dump_path"`

	// SkipMonitorMode is loaded from the config but has no effect: the
	// daemon never switches the interface into monitor mode, so the
	// interface is always assumed to be in monitor mode already.
	SkipMonitorMode bool `koanf:"skip_monitor_mode"`

	// SkipChannelSet, when true, does not attempt to tune the radio to
	// Channel; the interface is assumed to already be on the right one.
	SkipChannelSet bool `koanf:"skip_channel_set"`

	// SkipLinkUpDown, when true, does not bring the WLAN or TAP
	// interfaces up/down as part of daemon startup/shutdown.
	SkipLinkUpDown bool `koanf:"skip_link_up_down"`
}

// MetricsConfig holds the Prometheus metrics endpoint configuration.
type MetricsConfig struct {
	// Addr is the HTTP listen address for the metrics endpoint (e.g., ":9100").
	Addr string `koanf:"addr"`
	// Path is the URL path for the metrics endpoint (e.g., "/metrics").
	Path string `koanf:"path"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `koanf:"level"`
	// Format is the log output format: "json" or "text".
	Format string `koanf:"format"`
}

// DesyncConfig gates the experimental clock-shifting / MITM research
// mode (§9). It has no effect on the standard protocol path unless
// Enabled is set.
type DesyncConfig struct {
	// Enabled arms the per-peer DW iteration and OldTimer shadow.
	Enabled bool `koanf:"enabled"`

	// ShiftUsec is the fixed clock offset applied to each peer's shadow
	// timer when the mode is enabled.
	ShiftUsec int64 `koanf:"shift_usec"`
}

// ValidChannels lists the 802.11 channels this daemon accepts (§6).
var ValidChannels = map[int]bool{6: true, 44: true, 149: true}

// -------------------------------------------------------------------------
// Defaults
// -------------------------------------------------------------------------

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Radio: RadioConfig{
			Interface:     "wlan0mon",
			HostInterface: "nan0",
			Channel:       6,
		},
		Metrics: MetricsConfig{
			Addr: ":9100",
			Path: "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// envPrefix is the environment variable prefix for nand configuration.
// Variables are named NAND_<section>_<key>, e.g., NAND_RADIO_CHANNEL.
const envPrefix = "NAND_"

// Load reads configuration from a YAML file at path, overlays environment
// variable overrides (NAND_ prefix), and merges on top of DefaultConfig().
// Missing fields inherit defaults.
//
// Environment variable mapping:
//
//	NAND_RADIO_INTERFACE      -> radio.interface
//	NAND_RADIO_HOST_INTERFACE -> radio.host_interface
//	NAND_RADIO_CHANNEL        -> radio.channel
//	NAND_METRICS_ADDR         -> metrics.addr
//	NAND_LOG_LEVEL            -> log.level
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := DefaultConfig()
	if err := loadDefaults(k, defaults); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load config from %s: %w", path, err)
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config from %s: %w", path, err)
	}

	return cfg, nil
}

// envKeyMapper transforms NAND_RADIO_CHANNEL -> radio.channel.
// Strips the NAND_ prefix, lowercases, and replaces the first _ (the
// section separator) with .
func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	return strings.Replace(s, "_", ".", 1)
}

// loadDefaults marshals the default config into koanf as the base layer.
func loadDefaults(k *koanf.Koanf, defaults *Config) error {
	defaultMap := map[string]any{
		"radio.interface":      defaults.Radio.Interface,
		"radio.host_interface": defaults.Radio.HostInterface,
		"radio.channel":        defaults.Radio.Channel,
		"metrics.addr":         defaults.Metrics.Addr,
		"metrics.path":         defaults.Metrics.Path,
		"log.level":            defaults.Log.Level,
		"log.format":           defaults.Log.Format,
	}

	for key, val := range defaultMap {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

// -------------------------------------------------------------------------
// Validation
// -------------------------------------------------------------------------

var (
	// ErrEmptyInterface indicates the WLAN interface name is empty.
	ErrEmptyInterface = errors.New("radio.interface must not be empty")

	// ErrEmptyHostInterface indicates the host TAP interface name is empty.
	ErrEmptyHostInterface = errors.New("radio.host_interface must not be empty")

	// ErrInvalidChannel indicates the configured channel is not one of
	// the accepted values (6, 44, 149).
	ErrInvalidChannel = errors.New("radio.channel must be one of 6, 44, 149")

	// ErrEmptyMetricsAddr indicates the metrics listen address is empty.
	ErrEmptyMetricsAddr = errors.New("metrics.addr must not be empty")
)

// Validate checks the configuration for logical errors.
// Returns the first validation error encountered.
func Validate(cfg *Config) error {
	if cfg.Radio.Interface == "" {
		return ErrEmptyInterface
	}
	if cfg.Radio.HostInterface == "" {
		return ErrEmptyHostInterface
	}
	if !ValidChannels[cfg.Radio.Channel] {
		return fmt.Errorf("%w: got %d", ErrInvalidChannel, cfg.Radio.Channel)
	}
	if cfg.Metrics.Addr == "" {
		return ErrEmptyMetricsAddr
	}
	return nil
}

// -------------------------------------------------------------------------
// Log Level Parsing
// -------------------------------------------------------------------------

// ParseLogLevel maps a configuration log level string to the corresponding
// slog.Level. Unknown values default to slog.LevelInfo.
//
// Recognized values: "debug", "info", "warn", "error" (case-insensitive).
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
