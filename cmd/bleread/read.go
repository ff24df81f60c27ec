package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/bleread/internal/device"
	"github.com/srg/bleread/internal/logbook"
	"github.com/srg/bleread/internal/session"
)

// entryFeedSize is the live entry buffer of the read command. One cycle
// produces far fewer entries.
const entryFeedSize = 256

type readOptions struct {
	json       bool
	timestamps bool
	noColor    bool
}

func newReadCmd() *cobra.Command {
	var o readOptions
	cmd := &cobra.Command{
		Use:   "read",
		Short: "Scan, connect and read the configured characteristic",
		Long: `Runs one scan-to-read cycle: scans for a peripheral advertising the
service, connects to the first match, discovers the service and the
characteristic, reads the value and prints it as UTF-8 text.

Examples:
  # Read the battery level of the first heart-rate sensor in range
  bleread read --service 180d --char 2a19

  # Use a config file and accept a legacy 16-bit alias in advertisements
  bleread read --config sensor.yaml --legacy-service fff0

  # Stop at the discovered service and read explicitly
  bleread read --auto-read=false

  # Machine-readable output
  bleread read --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRead(cmd, o)
		},
	}

	cmd.Flags().BoolVar(&o.json, "json", false, "Print the value and all log entries as JSON when the cycle ends")
	cmd.Flags().BoolVar(&o.timestamps, "timestamps", false, "Prefix entries with their time")
	cmd.Flags().BoolVar(&o.noColor, "no-color", false, "Disable colored output")
	cmd.Flags().Bool("auto-read", true, "Read as soon as the service is found; overrides the config file")
	return cmd
}

func runRead(cmd *cobra.Command, o readOptions) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("auto-read") {
		cfg.AutoRead, _ = cmd.Flags().GetBool("auto-read")
	}
	resolved, err := cfg.Validate()
	if err != nil {
		return err
	}
	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cycleEnd := make(chan error, 1)
	serviceReady := make(chan struct{}, 1)
	opts := resolved.SessionOptions()
	opts.OnCycleEnd = func(err error) {
		select {
		case cycleEnd <- err:
		default:
		}
	}
	opts.OnTransition = func(_, to session.Phase) {
		if to != session.PhaseServiceReady {
			return
		}
		select {
		case serviceReady <- struct{}{}:
		default:
		}
	}

	book := logbook.NewBook()
	feed, unsubscribe := book.Subscribe(entryFeedSize)
	defer unsubscribe()

	out := cmd.OutOrStdout()
	var collector *logbook.Collector
	rendered := make(chan struct{})
	if o.json {
		collector, err = logbook.NewCollector(feed.C(), entryFeedSize, func(err error) {
			logger.WithError(err).Error("Entry collector failed")
		})
		if err != nil {
			return err
		}
		if err := collector.Start(); err != nil {
			return err
		}
		close(rendered)
	} else {
		renderer := newEntryRenderer(out, !o.noColor && isTerminal(out), o.timestamps)
		go func() {
			defer close(rendered)
			for e := range feed.C() {
				renderer.Render(e)
			}
		}()
	}

	router := session.NewRouter(transportFactory(logger, false), book, opts, logger)
	cycleErr := router.Start(ctx)
	if cycleErr == nil {
		cycleErr = readCycle(ctx, router, cycleEnd, serviceReady, resolved.AutoRead)
		logCycleEnd(logger, cycleErr)
	}
	if err := router.Close(); err != nil {
		logger.WithError(err).Warn("Failed to close BLE transport")
	}

	// Closing the feed lets the renderer or the collector finish.
	unsubscribe()
	<-rendered
	if collector != nil {
		<-collector.Done()
		entries, err := collector.Drain()
		if err != nil {
			return err
		}
		if m := collector.Metrics(); m.EntriesOverwritten > 0 {
			logger.WithField("lost", m.EntriesOverwritten).Warn("Some log entries were dropped")
		}
		if err := writeJSONReport(out, entries, cycleErr); err != nil {
			return err
		}
	}
	return cycleErr
}

// readCycle starts one scan and waits for the cycle to end. With auto read
// off it issues the read once the service is ready.
func readCycle(ctx context.Context, r *session.Router, cycleEnd <-chan error, serviceReady <-chan struct{}, autoRead bool) error {
	state, err := waitForAdapter(ctx, r)
	if err != nil {
		return err
	}
	if !state.PoweredOn() {
		return device.Errorf(device.AdapterUnavailable, "adapter is %s", state)
	}

	if err := r.StartScanning(); err != nil {
		return err
	}

	for {
		select {
		case err := <-cycleEnd:
			return err
		case <-serviceReady:
			if autoRead {
				continue
			}
			if err := r.ReadCharacteristics(); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// waitForAdapter polls the session until the transport reports the first
// adapter state.
func waitForAdapter(ctx context.Context, r *session.Router) (device.AdapterState, error) {
	deadline := time.NewTimer(adapterWaitTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	for {
		state, err := r.AdapterState()
		if err != nil {
			return state, err
		}
		if state != device.AdapterUnknown {
			return state, nil
		}

		select {
		case <-ctx.Done():
			return state, ctx.Err()
		case <-deadline.C:
			return state, fmt.Errorf("%w within %s", ErrAdapterSilent, adapterWaitTimeout)
		case <-ticker.C:
		}
	}
}

// logCycleEnd is a debugging aid for --log-level debug.
func logCycleEnd(logger *logrus.Logger, err error) {
	if err != nil {
		logger.WithError(err).Debug("Read cycle failed")
		return
	}
	logger.Debug("Read cycle completed")
}
