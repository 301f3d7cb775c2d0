package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Dataset kinds.
const (
	DatasetBuiltin = "builtin"
	DatasetPcap    = "pcap"
	DatasetRemote  = "remote"
)

// Config is the resolved server configuration.
type Config struct {
	Addr            string
	CaptureInterval time.Duration
	FilterDebounce  time.Duration
	DatasetKind     string
	DatasetPcap     string
	LogsURL         string
	ScanURL         string
	ScanTopic       string
	SendBuffer      int
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("addr", ":8080")
	v.SetDefault("capture.interval", "1500ms")
	v.SetDefault("filter.debounce", "300ms")
	v.SetDefault("dataset.kind", DatasetBuiltin)
	v.SetDefault("dataset.pcap", "")
	v.SetDefault("remote.logs_url", "http://localhost:5000")
	v.SetDefault("remote.scan_url", "") // no scan feed unless configured
	v.SetDefault("remote.scan_topic", "/topic/scan")
	v.SetDefault("ws.send_buffer", 256)
}

// Load reads defaults, then the optional config file at path, then
// NETSHIELD_* environment variables (NETSHIELD_CAPTURE_INTERVAL etc).
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("netshield")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("netshield")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}
	return fromViper(v)
}

func fromViper(v *viper.Viper) (Config, error) {
	cfg := Config{
		Addr:            v.GetString("addr"),
		CaptureInterval: v.GetDuration("capture.interval"),
		FilterDebounce:  v.GetDuration("filter.debounce"),
		DatasetKind:     strings.ToLower(v.GetString("dataset.kind")),
		DatasetPcap:     v.GetString("dataset.pcap"),
		LogsURL:         v.GetString("remote.logs_url"),
		ScanURL:         v.GetString("remote.scan_url"),
		ScanTopic:       v.GetString("remote.scan_topic"),
		SendBuffer:      v.GetInt("ws.send_buffer"),
	}
	return cfg, cfg.Validate()
}

// scansSelf reports whether ScanURL points at this server's own /ws
// endpoint, which speaks the command protocol rather than topic frames.
func (c Config) scansSelf() bool {
	u, err := url.Parse(c.ScanURL)
	if err != nil || c.ScanURL == "" || u.Path != "/ws" {
		return false
	}
	_, ownPort, err := net.SplitHostPort(c.Addr)
	if err != nil {
		return false
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return u.Port() == ownPort
	}
	return false
}

// Validate checks ranges and cross-field requirements.
func (c Config) Validate() error {
	if c.CaptureInterval <= 0 {
		return fmt.Errorf("capture.interval must be positive, got %s", c.CaptureInterval)
	}
	if c.FilterDebounce <= 0 {
		return fmt.Errorf("filter.debounce must be positive, got %s", c.FilterDebounce)
	}
	if c.SendBuffer <= 0 {
		return fmt.Errorf("ws.send_buffer must be positive, got %d", c.SendBuffer)
	}
	switch c.DatasetKind {
	case DatasetBuiltin:
	case DatasetPcap:
		if c.DatasetPcap == "" {
			return errors.New("dataset.kind is pcap but dataset.pcap is empty")
		}
	case DatasetRemote:
		if c.LogsURL == "" && c.ScanURL == "" {
			return errors.New("dataset.kind is remote but no remote url is set")
		}
		if c.scansSelf() {
			return fmt.Errorf("remote.scan_url %s is this server's command socket, not a scan feed", c.ScanURL)
		}
	default:
		return fmt.Errorf("unknown dataset.kind %q", c.DatasetKind)
	}
	return nil
}
