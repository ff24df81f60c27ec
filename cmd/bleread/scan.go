package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/bleread/internal/device"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

type scanOptions struct {
	all  bool
	json bool
}

func newScanCmd() *cobra.Command {
	var o scanOptions
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "List peripherals advertising the configured service",
		Long: `Scans for the configured scan timeout and lists every peripheral that
advertises the service (or its legacy alias), in the order they were first
seen. Use --all to list every peripheral in range.

Examples:
  bleread scan --service 180d --timeout 10s
  bleread scan --all --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScan(cmd, o)
		},
	}
	cmd.Flags().BoolVar(&o.all, "all", false, "List all peripherals, ignoring the service filter")
	cmd.Flags().BoolVar(&o.json, "json", false, "Output as JSON")
	return cmd
}

func runScan(cmd *cobra.Command, o scanOptions) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	var filter []device.Identifier
	if !o.all {
		if cfg.ServiceUUID == "" {
			return fmt.Errorf("service_uuid is required (or use --all)")
		}
		for field, value := range map[string]string{"service_uuid": cfg.ServiceUUID, "legacy_service_uuid": cfg.LegacyServiceUUID} {
			if value == "" {
				continue
			}
			id, err := device.ParseIdentifier(value)
			if err != nil {
				return fmt.Errorf("%s: %w", field, err)
			}
			filter = append(filter, id)
		}
	}
	if cfg.ScanTimeout <= 0 {
		return fmt.Errorf("scan timeout must be positive, got %s", cfg.ScanTimeout)
	}

	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	found := newPeripheralTable()
	adapter := make(chan device.AdapterStateChanged, 4)
	handler := func(ev device.Event) {
		switch e := ev.(type) {
		case device.AdapterStateChanged:
			select {
			case adapter <- e:
			default:
			}
		case device.PeripheralDiscovered:
			found.Add(e.Peripheral)
		}
	}

	// Duplicates on, so RSSI and late scan-response names stay fresh.
	tr := transportFactory(logger, true)
	if err := tr.Open(ctx, handler); err != nil {
		return fmt.Errorf("failed to open BLE transport: %w", err)
	}
	defer func() {
		if err := tr.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close BLE transport")
		}
	}()

	if err := waitForPower(ctx, adapter); err != nil {
		return err
	}
	if err := tr.Scan(filter); err != nil {
		return device.NewError(device.TransportFailure, "scan", err)
	}

	timer := time.NewTimer(cfg.ScanTimeout)
	defer timer.Stop()
	var scanErr error
wait:
	for {
		select {
		case <-timer.C:
			break wait
		case <-ctx.Done():
			// Ctrl+C still prints what was found
			break wait
		case e := <-adapter:
			if !e.State.PoweredOn() {
				scanErr = device.NewError(device.AdapterUnavailable, e.State.String(), e.Err)
				break wait
			}
		}
	}
	_ = tr.StopScan()
	if counter, ok := tr.(interface{ Seen() int }); ok {
		logger.WithFields(logrus.Fields{
			"seen":   counter.Seen(),
			"listed": found.Len(),
		}).Debug("Scan finished")
	}

	out := cmd.OutOrStdout()
	if o.json {
		err = found.WriteJSON(out)
	} else {
		err = found.WriteTable(out)
	}
	if err != nil {
		return err
	}
	return scanErr
}

// waitForPower waits for the first adapter state and requires it to be PoweredOn.
func waitForPower(ctx context.Context, adapter <-chan device.AdapterStateChanged) error {
	select {
	case e := <-adapter:
		if !e.State.PoweredOn() {
			return device.NewError(device.AdapterUnavailable, e.State.String(), e.Err)
		}
		return nil
	case <-time.After(adapterWaitTimeout):
		return fmt.Errorf("%w within %s", ErrAdapterSilent, adapterWaitTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// peripheralTable keeps discovered peripherals in first-seen order. Repeated
// advertisements update RSSI and fill in a missing name in place.
type peripheralTable struct {
	mu    sync.Mutex
	items *orderedmap.OrderedMap[string, device.Peripheral]
}

func newPeripheralTable() *peripheralTable {
	return &peripheralTable{items: orderedmap.New[string, device.Peripheral]()}
}

func (t *peripheralTable) Add(p device.Peripheral) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if prev, ok := t.items.Get(p.ID); ok {
		if p.Name == "" {
			p.Name = prev.Name
		}
		if len(p.Services) == 0 {
			p.Services = prev.Services
		}
	}
	t.items.Set(p.ID, p)
}

func (t *peripheralTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.items.Len()
}

func (t *peripheralTable) List() []device.Peripheral {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]device.Peripheral, 0, t.items.Len())
	for pair := t.items.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

func (t *peripheralTable) WriteTable(out io.Writer) error {
	list := t.List()
	if len(list) == 0 {
		_, err := fmt.Fprintln(out, "No peripherals discovered")
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tADDRESS\tRSSI\tSERVICES")
	for _, p := range list {
		name := p.Name
		if len(name) > 20 {
			name = name[:17] + "..."
		}
		fmt.Fprintf(w, "%s\t%s\t%d dBm\t%s\n", name, p.ID, p.RSSI, joinIdentifiers(p.Services))
	}
	return w.Flush()
}

type jsonPeripheral struct {
	Address  string              `json:"address"`
	Name     string              `json:"name,omitempty"`
	RSSI     int                 `json:"rssi"`
	Services []device.Identifier `json:"services"`
}

func (t *peripheralTable) WriteJSON(out io.Writer) error {
	list := t.List()
	items := make([]jsonPeripheral, 0, len(list))
	for _, p := range list {
		services := p.Services
		if services == nil {
			services = []device.Identifier{}
		}
		items = append(items, jsonPeripheral{Address: p.ID, Name: p.Name, RSSI: p.RSSI, Services: services})
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(items)
}

func joinIdentifiers(ids []device.Identifier) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, device.ShortenUUID(id.String()))
	}
	s := strings.Join(parts, ",")
	if len(s) > 40 {
		s = s[:37] + "..."
	}
	return s
}
