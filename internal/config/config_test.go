package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":8080" || cfg.CaptureInterval != 1500*time.Millisecond || cfg.FilterDebounce != 300*time.Millisecond {
		t.Fatalf("defaults = %+v", cfg)
	}
	if cfg.DatasetKind != DatasetBuiltin || cfg.SendBuffer != 256 || cfg.ScanURL != "" {
		t.Fatalf("defaults = %+v", cfg)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "netshield.yaml")
	yaml := "addr: \":9000\"\ncapture:\n  interval: 2s\ndataset:\n  kind: pcap\n  pcap: /tmp/x.pcap\n"
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("NETSHIELD_FILTER_DEBOUNCE", "500ms")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":9000" || cfg.CaptureInterval != 2*time.Second {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.FilterDebounce != 500*time.Millisecond {
		t.Fatalf("env override not applied: %s", cfg.FilterDebounce)
	}
	if cfg.DatasetKind != DatasetPcap || cfg.DatasetPcap != "/tmp/x.pcap" {
		t.Fatalf("dataset = %s %s", cfg.DatasetKind, cfg.DatasetPcap)
	}
}

func TestValidate(t *testing.T) {
	valid := Config{CaptureInterval: time.Second, FilterDebounce: time.Second, SendBuffer: 1, DatasetKind: DatasetBuiltin}
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"valid", func(*Config) {}, ""},
		{"zero interval", func(c *Config) { c.CaptureInterval = 0 }, "capture.interval"},
		{"negative debounce", func(c *Config) { c.FilterDebounce = -time.Second }, "filter.debounce"},
		{"zero buffer", func(c *Config) { c.SendBuffer = 0 }, "ws.send_buffer"},
		{"pcap without path", func(c *Config) { c.DatasetKind = DatasetPcap }, "dataset.pcap"},
		{"remote without url", func(c *Config) { c.DatasetKind = DatasetRemote }, "remote url"},
		{"scan feed is own socket", func(c *Config) {
			c.DatasetKind, c.Addr, c.ScanURL = DatasetRemote, ":8080", "ws://localhost:8080/ws"
		}, "command socket"},
		{"scan feed elsewhere", func(c *Config) {
			c.DatasetKind, c.Addr, c.ScanURL = DatasetRemote, ":8080", "ws://localhost:9090/ws"
		}, ""},
		{"unknown kind", func(c *Config) { c.DatasetKind = "kafka" }, "unknown dataset.kind"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.want == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error = %v, want mention of %q", err, tt.want)
			}
		})
	}
}
