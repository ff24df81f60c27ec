package main

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/bleread/internal/device"
	goble "github.com/srg/bleread/internal/device/go-ble"
	"github.com/srg/bleread/pkg/config"
)

// transportFactory builds the radio transport. Tests swap it for a go-ble
// transport over a mocked central.
var transportFactory = func(logger *logrus.Logger, allowDuplicates bool) device.Transport {
	return goble.NewTransport(logger, goble.Options{AllowDuplicates: allowDuplicates})
}

// adapterWaitTimeout bounds how long a command waits for the first adapter state.
var adapterWaitTimeout = 5 * time.Second

// loadConfig reads --config and applies flag overrides on top of it.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	flags := cmd.Flags()
	path, _ := flags.GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if flags.Changed("service") {
		cfg.ServiceUUID, _ = flags.GetString("service")
	}
	if flags.Changed("legacy-service") {
		cfg.LegacyServiceUUID, _ = flags.GetString("legacy-service")
	}
	if flags.Changed("char") {
		cfg.CharacteristicUUID, _ = flags.GetString("char")
	}
	if flags.Changed("timeout") {
		cfg.ScanTimeout, _ = flags.GetDuration("timeout")
	}
	if lvl, _ := flags.GetString("log-level"); lvl != "" {
		cfg.LogLevel = lvl
	}
	return cfg, nil
}

// configureLogger creates the diagnostic logger. Log lines go to stderr so
// they never mix with the entry output on stdout.
func configureLogger(cmd *cobra.Command, cfg *config.Config) (*logrus.Logger, error) {
	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		return nil, fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", cfg.LogLevel)
	}
	logger := cfg.NewLogger()
	logger.SetOutput(cmd.ErrOrStderr())
	return logger, nil
}
