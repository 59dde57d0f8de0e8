package config_test

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/nan80211/nand/internal/config"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()

	if cfg.Radio.Interface != "wlan0mon" {
		t.Errorf("Radio.Interface = %q, want %q", cfg.Radio.Interface, "wlan0mon")
	}
	if cfg.Radio.HostInterface != "nan0" {
		t.Errorf("Radio.HostInterface = %q, want %q", cfg.Radio.HostInterface, "nan0")
	}
	if cfg.Radio.Channel != 6 {
		t.Errorf("Radio.Channel = %d, want 6", cfg.Radio.Channel)
	}
	if cfg.Metrics.Addr != ":9100" {
		t.Errorf("Metrics.Addr = %q, want %q", cfg.Metrics.Addr, ":9100")
	}
	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("Metrics.Path = %q, want %q", cfg.Metrics.Path, "/metrics")
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "info")
	}
	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, "json")
	}

	if err := config.Validate(cfg); err != nil {
		t.Errorf("DefaultConfig() failed validation: %v", err)
	}
}

func TestLoadFromYAML(t *testing.T) {
	t.Parallel()

	yamlContent := `
radio:
  interface: "wlan1mon"
  host_interface: "nan1"
  channel: 149
  pcap_dump_path: "/tmp/nand-failed.pcap"
metrics:
  addr: ":9200"
  path: "/custom-metrics"
log:
  level: "debug"
  format: "text"
desync:
  enabled: true
  shift_usec: 250000
`

	path := writeTemp(t, yamlContent)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.Radio.Interface != "wlan1mon" {
		t.Errorf("Radio.Interface = %q, want %q", cfg.Radio.Interface, "wlan1mon")
	}
	if cfg.Radio.HostInterface != "nan1" {
		t.Errorf("Radio.HostInterface = %q, want %q", cfg.Radio.HostInterface, "nan1")
	}
	if cfg.Radio.Channel != 149 {
		t.Errorf("Radio.Channel = %d, want 149", cfg.Radio.Channel)
	}
	if cfg.Radio.PcapDumpPath != "/tmp/nand-failed.pcap" {
		t.Errorf("Radio.PcapDumpPath = %q, want %q", cfg.Radio.PcapDumpPath, "/tmp/nand-failed.pcap")
	}
	if cfg.Metrics.Addr != ":9200" {
		t.Errorf("Metrics.Addr = %q, want %q", cfg.Metrics.Addr, ":9200")
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "debug")
	}
	if !cfg.Desync.Enabled {
		t.Error("Desync.Enabled = false, want true")
	}
	if cfg.Desync.ShiftUsec != 250000 {
		t.Errorf("Desync.ShiftUsec = %d, want 250000", cfg.Desync.ShiftUsec)
	}
}

func TestLoadMergesDefaults(t *testing.T) {
	t.Parallel()

	// Only override the channel; everything else should inherit defaults.
	yamlContent := `
radio:
  channel: 44
`
	path := writeTemp(t, yamlContent)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.Radio.Channel != 44 {
		t.Errorf("Radio.Channel = %d, want 44", cfg.Radio.Channel)
	}
	if cfg.Radio.Interface != "wlan0mon" {
		t.Errorf("Radio.Interface = %q, want inherited default %q", cfg.Radio.Interface, "wlan0mon")
	}
	if cfg.Metrics.Addr != ":9100" {
		t.Errorf("Metrics.Addr = %q, want inherited default %q", cfg.Metrics.Addr, ":9100")
	}
}

func TestValidateErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr error
	}{
		{
			name:    "empty interface",
			mutate:  func(c *config.Config) { c.Radio.Interface = "" },
			wantErr: config.ErrEmptyInterface,
		},
		{
			name:    "empty host interface",
			mutate:  func(c *config.Config) { c.Radio.HostInterface = "" },
			wantErr: config.ErrEmptyHostInterface,
		},
		{
			name:    "invalid channel",
			mutate:  func(c *config.Config) { c.Radio.Channel = 11 },
			wantErr: config.ErrInvalidChannel,
		},
		{
			name:    "empty metrics addr",
			mutate:  func(c *config.Config) { c.Metrics.Addr = "" },
			wantErr: config.ErrEmptyMetricsAddr,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := config.DefaultConfig()
			tt.mutate(cfg)

			err := config.Validate(cfg)
			if err == nil {
				t.Fatalf("Validate() = nil, want error wrapping %v", tt.wantErr)
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Validate() = %v, want error wrapping %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidChannels(t *testing.T) {
	t.Parallel()

	for _, ch := range []int{6, 44, 149} {
		if !config.ValidChannels[ch] {
			t.Errorf("channel %d should be valid", ch)
		}
	}
	if config.ValidChannels[1] {
		t.Error("channel 1 should not be valid")
	}
}

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  slog.Level
	}{
		{input: "debug", want: slog.LevelDebug},
		{input: "DEBUG", want: slog.LevelDebug},
		{input: "info", want: slog.LevelInfo},
		{input: "warn", want: slog.LevelWarn},
		{input: "error", want: slog.LevelError},
		{input: "unknown", want: slog.LevelInfo},
		{input: "", want: slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()

			got := config.ParseLogLevel(tt.input)
			if got != tt.want {
				t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestLoadNonexistentFile(t *testing.T) {
	t.Parallel()

	_, err := config.Load("/nonexistent/path/config.yml")
	if err == nil {
		t.Fatal("Load() returned nil error for nonexistent file")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	yamlContent := `
radio:
  channel: 6
`
	path := writeTemp(t, yamlContent)

	t.Setenv("NAND_RADIO_CHANNEL", "149")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}
	if cfg.Radio.Channel != 149 {
		t.Errorf("Radio.Channel = %d, want 149 (env override)", cfg.Radio.Channel)
	}
}

// writeTemp creates a temporary YAML file and returns its path.
func writeTemp(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "nand.yml")

	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp file: %v", err)
	}

	return path
}
