package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/bleread/internal/device"
	"github.com/srg/bleread/internal/session"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration as read from a YAML file and flags
type Config struct {
	ServiceUUID        string        `yaml:"service_uuid"`
	LegacyServiceUUID  string        `yaml:"legacy_service_uuid,omitempty"`
	CharacteristicUUID string        `yaml:"characteristic_uuid"`
	ScanTimeout        time.Duration `yaml:"scan_timeout" default:"5s"`
	LogLevel           string        `yaml:"log_level" default:"info"`
	AutoRead           bool          `yaml:"auto_read" default:"true"`
}

// Resolved is a validated Config with parsed identifiers.
type Resolved struct {
	Service        device.Identifier
	LegacyService  device.Identifier // zero when not configured
	Characteristic device.Identifier
	ScanTimeout    time.Duration
	LogLevel       logrus.Level
	AutoRead       bool
}

// DefaultConfig returns default configuration values. The identifiers have no
// default and must be configured.
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads a YAML config file over the defaults. An empty path yields the
// defaults alone.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := cfg.decode(data); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML data over the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := cfg.decode(data); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decode(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate checks the configuration and resolves the identifiers.
func (c *Config) Validate() (*Resolved, error) {
	var errs []error

	parse := func(field, value string, required bool) device.Identifier {
		if value == "" {
			if required {
				errs = append(errs, fmt.Errorf("%s is required", field))
			}
			return device.Identifier{}
		}
		id, err := device.ParseIdentifier(value)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", field, err))
		}
		return id
	}

	r := &Resolved{
		Service:        parse("service_uuid", c.ServiceUUID, true),
		LegacyService:  parse("legacy_service_uuid", c.LegacyServiceUUID, false),
		Characteristic: parse("characteristic_uuid", c.CharacteristicUUID, true),
		ScanTimeout:    c.ScanTimeout,
		AutoRead:       c.AutoRead,
	}

	if !r.LegacyService.IsZero() && !r.LegacyService.Is16Bit() {
		errs = append(errs, fmt.Errorf("legacy_service_uuid must be a 16-bit UUID, got %s", r.LegacyService))
	}
	if c.ScanTimeout <= 0 {
		errs = append(errs, fmt.Errorf("scan_timeout must be positive, got %s", c.ScanTimeout))
	}

	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	r.LogLevel = level

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return r, nil
}

// SessionOptions maps the resolved configuration onto session options.
func (r *Resolved) SessionOptions() session.Options {
	return session.Options{
		ServiceID:        r.Service,
		LegacyServiceID:  r.LegacyService,
		CharacteristicID: r.Characteristic,
		ScanTimeout:      r.ScanTimeout,
		AutoRead:         r.AutoRead,
	}
}

// MarshalYAML renders durations in their string form.
func (c Config) MarshalYAML() (interface{}, error) {
	type plain struct {
		ServiceUUID        string `yaml:"service_uuid"`
		LegacyServiceUUID  string `yaml:"legacy_service_uuid,omitempty"`
		CharacteristicUUID string `yaml:"characteristic_uuid"`
		ScanTimeout        string `yaml:"scan_timeout"`
		LogLevel           string `yaml:"log_level"`
		AutoRead           bool   `yaml:"auto_read"`
	}
	return plain{
		ServiceUUID:        c.ServiceUUID,
		LegacyServiceUUID:  c.LegacyServiceUUID,
		CharacteristicUUID: c.CharacteristicUUID,
		ScanTimeout:        c.ScanTimeout.String(),
		LogLevel:           c.LogLevel,
		AutoRead:           c.AutoRead,
	}, nil
}

// NewLogger creates a configured logger instance. An unparsable level falls
// back to info.
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}
