package goble

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/bleread/internal/device"
)

var errLinkLost = errors.New("link lost")

// link is one connection attempt, from dial to disconnect.
type link struct {
	peripheral device.Peripheral
	ctx        context.Context
	cancel     context.CancelFunc
	requested  atomic.Bool

	mu     sync.Mutex
	client GATTClient // nil while dialing

	dropOnce sync.Once
}

func (l *link) getClient() GATTClient {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.client
}

// Connect dials p. Success is reported as Connected; a failed or cancelled
// dial is reported as Disconnected.
func (t *Transport) Connect(p device.Peripheral) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	central, err := t.ready()
	if err != nil {
		return err
	}
	if _, exists := t.links[p.ID]; exists {
		return fmt.Errorf("%s: %w", p.ID, errLinkExists)
	}

	ctx, cancel := context.WithCancel(t.ctx)
	l := &link{peripheral: p, ctx: ctx, cancel: cancel}
	t.links[p.ID] = l

	t.logger.WithField("peripheral", p.ID).Debug("Dialing BLE peripheral...")
	t.workers.Go(ctx, "ble-dial", func(ctx context.Context) {
		client, err := central.Dial(ctx, ble.NewAddr(p.ID))
		if err != nil {
			if ctx.Err() != nil {
				// cancelled by CancelConnection or Close
				t.drop(l, nil)
				return
			}
			t.logger.WithFields(logrus.Fields{
				"peripheral": p.ID,
				"error":      err,
			}).Error("Failed to dial BLE peripheral")
			t.drop(l, NormalizeError(err))
			return
		}

		l.mu.Lock()
		if ctx.Err() != nil {
			l.mu.Unlock()
			_ = client.CancelConnection()
			t.drop(l, nil)
			return
		}
		l.client = client
		l.mu.Unlock()

		t.monitor(l, client)
		t.logger.WithField("peripheral", p.ID).Info("BLE peripheral connected")
		t.emit(device.Connected{PeripheralID: p.ID})
	})
	return nil
}

// CancelConnection drops the link to p, or aborts a dial in progress. The
// outcome is reported as Disconnected with a nil error.
func (t *Transport) CancelConnection(p device.Peripheral) error {
	t.mu.Lock()
	if t.handler == nil || t.closed {
		t.mu.Unlock()
		return errNotOpen
	}
	l, ok := t.links[p.ID]
	t.mu.Unlock()
	if !ok {
		return fmt.Errorf("%s: %w", p.ID, errNotConnected)
	}

	l.requested.Store(true)
	client := l.getClient()
	if client == nil {
		l.cancel()
		return nil
	}

	t.workers.Go(t.ctx, "ble-cancel-connection", func(ctx context.Context) {
		if err := client.CancelConnection(); err != nil {
			t.logger.WithFields(logrus.Fields{
				"peripheral": p.ID,
				"error":      err,
			}).Warn("BLE peripheral disconnected with errors")
		}
		t.drop(l, nil)
	})
	return nil
}

// monitor watches the client's Disconnected channel when the platform
// provides one (darwin and linux clients do).
func (t *Transport) monitor(l *link, client GATTClient) {
	dc, ok := client.(interface{ Disconnected() <-chan struct{} })
	if !ok {
		t.logger.Debug("Client does not support Disconnected() channel")
		return
	}
	t.workers.Go(l.ctx, "ble-connection-monitor", func(ctx context.Context) {
		select {
		case <-dc.Disconnected():
			var cause error
			if !l.requested.Load() {
				t.logger.WithField("peripheral", l.peripheral.ID).Warn("BLE peripheral reported disconnection")
				cause = device.NewError(device.DisconnectedUnexpectedly, l.peripheral.ID, errLinkLost)
			}
			t.drop(l, cause)
		case <-ctx.Done():
		}
	})
}

// drop forgets l and reports Disconnected exactly once per link.
func (t *Transport) drop(l *link, cause error) {
	l.dropOnce.Do(func() {
		t.mu.Lock()
		if t.links[l.peripheral.ID] == l {
			delete(t.links, l.peripheral.ID)
		}
		t.mu.Unlock()
		l.cancel()

		t.logger.WithFields(logrus.Fields{
			"peripheral": l.peripheral.ID,
			"error":      cause,
		}).Debug("BLE link closed")
		t.emit(device.Disconnected{PeripheralID: l.peripheral.ID, Err: cause})
	})
}

// connectedLink returns the link for id if its dial has completed.
func (t *Transport) connectedLink(id string) (*link, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, err := t.ready(); err != nil {
		return nil, err
	}
	l, ok := t.links[id]
	if !ok || l.getClient() == nil {
		return nil, fmt.Errorf("%s: %w", id, errNotConnected)
	}
	return l, nil
}
