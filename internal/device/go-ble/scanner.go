package goble

import (
	"context"
	"errors"

	"github.com/cornelk/hashmap"
	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/bleread/internal/device"
)

// Scan starts a scan that reports peripherals advertising any of filter (all
// peripherals when filter is empty). A scan already running is replaced.
func (t *Transport) Scan(filter []device.Identifier) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	central, err := t.ready()
	if err != nil {
		return err
	}
	if t.scanCancel != nil {
		t.scanCancel()
	}

	scanCtx, cancel := context.WithCancel(t.ctx)
	seen := hashmap.New[string, int]()
	t.scanCancel = cancel
	t.seen = seen
	filter = append([]device.Identifier(nil), filter...)

	t.logger.WithField("filter", filter).Debug("Starting BLE scan")
	t.workers.Go(scanCtx, "ble-scan", func(ctx context.Context) {
		err := central.Scan(ctx, t.opts.AllowDuplicates, func(adv ble.Advertisement) {
			t.onAdvertisement(adv, filter, seen)
		})
		switch {
		case err == nil, errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			t.logger.WithField("seen", seen.Len()).Debug("BLE scan stopped")
		default:
			t.onScanError(err)
		}
	})
	return nil
}

// StopScan stops the running scan. Stopping when no scan runs is a no-op.
func (t *Transport) StopScan() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.scanCancel != nil {
		t.scanCancel()
		t.scanCancel = nil
	}
	return nil
}

func (t *Transport) onAdvertisement(adv ble.Advertisement, filter []device.Identifier, seen *hashmap.Map[string, int]) {
	p := PeripheralFromAdvertisement(adv)
	if len(filter) > 0 && !p.Advertises(filter...) {
		return
	}

	// Filter first: a scan response may add services the first packet lacked.
	if _, loaded := seen.GetOrInsert(p.ID, p.RSSI); loaded {
		if !t.opts.AllowDuplicates {
			return
		}
		seen.Set(p.ID, p.RSSI)
	}

	t.logger.WithFields(logrus.Fields{
		"peripheral": p.ID,
		"name":       p.Name,
		"rssi":       p.RSSI,
	}).Debug("Peripheral discovered")
	t.emit(device.PeripheralDiscovered{Peripheral: p})
}

// onScanError turns a failed scan into an adapter state change when the
// error reveals one; the session then leaves Scanning.
func (t *Transport) onScanError(err error) {
	state := AdapterStateFromError(err)
	t.logger.WithFields(logrus.Fields{
		"state": state,
		"error": err,
	}).Warn("BLE scan failed")
	if state != device.AdapterUnknown && state != device.AdapterPoweredOn {
		t.emit(device.AdapterStateChanged{State: state, Err: NormalizeAdapterError(err)})
	}
}

// Seen returns the number of distinct matching peripherals reported by the
// current or most recent scan.
func (t *Transport) Seen() int {
	t.mu.Lock()
	seen := t.seen
	t.mu.Unlock()
	if seen == nil {
		return 0
	}
	return seen.Len()
}
