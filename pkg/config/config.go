package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/lywsd02/internal/clocksync"
	"github.com/srg/lywsd02/internal/lywsd02"
	"github.com/srg/lywsd02/internal/session"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration
type Config struct {
	LogLevel string `yaml:"log_level" default:"panic"`

	DeviceName string `yaml:"device_name"`
	Address    string `yaml:"address"`
	// Units is empty to leave the display unit alone.
	Units      string `yaml:"units"`
	TimeFormat string `yaml:"time_format" default:"lywsd02"`

	ConnectTimeout    time.Duration `yaml:"connect_timeout" default:"30s"`
	ResponseTimeout   time.Duration `yaml:"response_timeout" default:"5s"`
	DisconnectTimeout time.Duration `yaml:"disconnect_timeout" default:"5s"`
	WriteInterval     time.Duration `yaml:"write_interval" default:"10ms"`
	ScanDuration      time.Duration `yaml:"scan_duration" default:"10s"`

	Schedule string `yaml:"schedule" default:"@daily"`
	Trace    bool   `yaml:"trace"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads a YAML file over the defaults. An empty path yields the defaults.
// Unknown keys are rejected.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config: %w", err)
	}
	defer f.Close()

	if err := cfg.decode(f); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) decode(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate checks every field that has a restricted domain.
func (c *Config) Validate() error {
	var errs []error

	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	if c.Units != "" {
		if _, err := lywsd02.ParseUnits(c.Units); err != nil {
			errs = append(errs, fmt.Errorf("units: %w", err))
		}
	}
	if _, err := lywsd02.ParseTimeFormat(c.TimeFormat); err != nil {
		errs = append(errs, fmt.Errorf("time_format: %w", err))
	}
	for name, d := range map[string]time.Duration{
		"connect_timeout":    c.ConnectTimeout,
		"response_timeout":   c.ResponseTimeout,
		"disconnect_timeout": c.DisconnectTimeout,
		"scan_duration":      c.ScanDuration,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, d))
		}
	}
	if c.WriteInterval < 0 {
		errs = append(errs, fmt.Errorf("write_interval must not be negative, got %s", c.WriteInterval))
	}
	if _, err := clocksync.ParseSchedule(c.Schedule); err != nil {
		errs = append(errs, fmt.Errorf("schedule: %w", err))
	}

	return errors.Join(errs...)
}

// Level returns the parsed log level, panic level if unparsable.
func (c *Config) Level() logrus.Level {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.PanicLevel
	}
	return level
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.Level())

	// Use structured logging format
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}

// SessionOptions maps the timeouts and address pin onto session options that
// accept LYWSD02 clocks.
func (c *Config) SessionOptions() session.Options {
	opts := session.DefaultOptions()
	opts.ConnectTimeout = c.ConnectTimeout
	opts.ResponseTimeout = c.ResponseTimeout
	opts.DisconnectTimeout = c.DisconnectTimeout
	opts.Filter = lywsd02.Filter()
	opts.Filter.Address = c.Address
	return opts
}

// Plan builds the sync plan. Call Validate first; invalid units or format
// fall back to unchanged and the vendor layout.
func (c *Config) Plan() clocksync.Plan {
	units := lywsd02.UnitsUnchanged
	if c.Units != "" {
		if u, err := lywsd02.ParseUnits(c.Units); err == nil {
			units = u
		}
	}
	format, err := lywsd02.ParseTimeFormat(c.TimeFormat)
	if err != nil {
		format = lywsd02.FormatLYWSD02
	}
	return clocksync.Plan{
		DeviceName: c.DeviceName,
		Units:      units,
		TimeFormat: format,
	}
}
