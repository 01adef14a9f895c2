// Package config loads the tool settings from a TOML file.
//
// Keys that are absent from the file keep their Default value, so a config file only
// needs to name what it changes:
//
//	reader = "ACS ACR1255U-J1"
//	protocol = "T=1"
//	verify = true
//
//	[transmit]
//	t1_strip_le = true
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// TransmitConfig holds the transport settings, applied per negotiated protocol.
type TransmitConfig struct {
	T0GetResponse bool
	T1GetResponse bool
	T1StripLe     bool
}

type MonitorConfig struct {
	PollInterval time.Duration
}

// Config is the resolved configuration of a run.
type Config struct {
	Reader         string // name or index; "" picks the first reader
	Protocol       string // "T=0", "T=1", "*" or "direct"
	ControlCode    uint16
	LogDir         string
	LogLevel       string
	Verify         bool
	StopOnMismatch bool
	DescribeTLV    bool
	DataEncoding   string
	OpenReport     bool

	Transmit TransmitConfig
	Monitor  MonitorConfig
}

// DefaultControlCode is the CCID escape function number.
const DefaultControlCode = 3500

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Protocol:     "*",
		ControlCode:  DefaultControlCode,
		LogDir:       "logs",
		LogLevel:     "warn",
		DataEncoding: "tis-620",
		Transmit: TransmitConfig{
			T0GetResponse: true,
			T1GetResponse: true,
		},
		Monitor: MonitorConfig{
			PollInterval: 250 * time.Millisecond,
		},
	}
}

type fileConfig struct {
	Reader         string `toml:"reader"`
	Protocol       string `toml:"protocol"`
	ControlCode    int64  `toml:"control_code"`
	LogDir         string `toml:"log_dir"`
	LogLevel       string `toml:"log_level"`
	Verify         bool   `toml:"verify"`
	StopOnMismatch bool   `toml:"stop_on_mismatch"`
	DescribeTLV    bool   `toml:"describe_tlv"`
	DataEncoding   string `toml:"data_encoding"`
	OpenReport     bool   `toml:"open_report"`

	Transmit struct {
		T0GetResponse bool `toml:"t0_get_response"`
		T1GetResponse bool `toml:"t1_get_response"`
		T1StripLe     bool `toml:"t1_strip_le"`
	} `toml:"transmit"`

	Monitor struct {
		PollInterval string `toml:"poll_interval"`
	} `toml:"monitor"`
}

// Load reads path over Default and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("config %s: unknown key %q", path, undecoded[0].String())
	}

	if meta.IsDefined("reader") {
		cfg.Reader = strings.TrimSpace(raw.Reader)
	}
	if meta.IsDefined("protocol") {
		cfg.Protocol = strings.TrimSpace(raw.Protocol)
	}
	if meta.IsDefined("control_code") {
		if raw.ControlCode < 0 || raw.ControlCode > 0xFFFF {
			return Config{}, fmt.Errorf("control_code %d out of range", raw.ControlCode)
		}
		cfg.ControlCode = uint16(raw.ControlCode)
	}
	if meta.IsDefined("log_dir") {
		cfg.LogDir = strings.TrimSpace(raw.LogDir)
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if meta.IsDefined("verify") {
		cfg.Verify = raw.Verify
	}
	if meta.IsDefined("stop_on_mismatch") {
		cfg.StopOnMismatch = raw.StopOnMismatch
	}
	if meta.IsDefined("describe_tlv") {
		cfg.DescribeTLV = raw.DescribeTLV
	}
	if meta.IsDefined("data_encoding") {
		cfg.DataEncoding = strings.TrimSpace(raw.DataEncoding)
	}
	if meta.IsDefined("open_report") {
		cfg.OpenReport = raw.OpenReport
	}

	if meta.IsDefined("transmit", "t0_get_response") {
		cfg.Transmit.T0GetResponse = raw.Transmit.T0GetResponse
	}
	if meta.IsDefined("transmit", "t1_get_response") {
		cfg.Transmit.T1GetResponse = raw.Transmit.T1GetResponse
	}
	if meta.IsDefined("transmit", "t1_strip_le") {
		cfg.Transmit.T1StripLe = raw.Transmit.T1StripLe
	}

	if meta.IsDefined("monitor", "poll_interval") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Monitor.PollInterval))
		if err != nil {
			return Config{}, fmt.Errorf("parse monitor.poll_interval: %w", err)
		}
		cfg.Monitor.PollInterval = d
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the values a run depends on.
func (c Config) Validate() error {
	switch strings.ToLower(c.Protocol) {
	case "t=0", "t=1", "*", "direct":
	default:
		return fmt.Errorf("invalid protocol %q (want T=0, T=1, * or direct)", c.Protocol)
	}
	if strings.TrimSpace(c.LogDir) == "" {
		return fmt.Errorf("log_dir is required")
	}
	if c.StopOnMismatch && !c.Verify {
		return fmt.Errorf("stop_on_mismatch requires verify")
	}
	if c.Monitor.PollInterval <= 0 {
		return fmt.Errorf("monitor.poll_interval must be positive, got %v", c.Monitor.PollInterval)
	}
	return nil
}
