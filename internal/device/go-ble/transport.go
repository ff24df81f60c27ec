package goble

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cornelk/hashmap"
	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/bleread/internal/device"
	"github.com/srg/bleread/internal/groutine"
)

var (
	errNotOpen       = errors.New("transport is not open")
	errAdapterNotOn  = errors.New("adapter is not ready")
	errAlreadyOpen   = errors.New("transport is already open")
	errNotConnected  = errors.New("peripheral is not connected")
	errLinkExists    = errors.New("peripheral is already connected or connecting")
	errUnknownHandle = errors.New("handle does not belong to this transport")
)

// Options configures a Transport.
type Options struct {
	// AllowDuplicates reports every advertisement instead of the first one
	// per address and scan.
	AllowDuplicates bool

	// CentralFactory opens the radio. Defaults to NewCentral.
	CentralFactory func() (Central, error)
}

// Transport implements device.Transport on top of go-ble. Every command runs
// in its own named goroutine and reports its outcome as an event, so no
// command ever calls the handler synchronously.
type Transport struct {
	logger *logrus.Logger
	opts   Options

	mu      sync.Mutex
	central Central
	handler device.EventHandler
	ctx     context.Context
	cancel  context.CancelFunc
	workers groutine.Group

	scanCancel context.CancelFunc
	seen       *hashmap.Map[string, int]
	links      map[string]*link
	closed     bool
}

var _ device.Transport = (*Transport)(nil)

// NewTransport creates a closed transport; call Open to start the radio.
func NewTransport(logger *logrus.Logger, opts Options) *Transport {
	if logger == nil {
		logger = logrus.New()
	}
	if opts.CentralFactory == nil {
		opts.CentralFactory = NewCentral
	}
	return &Transport{
		logger: logger,
		opts:   opts,
		links:  make(map[string]*link),
	}
}

// Open starts the radio in the background. The outcome arrives as an
// AdapterStateChanged event: PoweredOn once the central is usable, or the
// state inferred from the initialisation error.
func (t *Transport) Open(ctx context.Context, handler device.EventHandler) error {
	if handler == nil {
		return fmt.Errorf("event handler is nil")
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.handler != nil {
		return errAlreadyOpen
	}
	t.handler = handler
	t.ctx, t.cancel = context.WithCancel(ctx)

	t.workers.Go(t.ctx, "ble-adapter-open", func(ctx context.Context) {
		central, err := t.opts.CentralFactory()
		if err != nil {
			state := AdapterStateFromError(err)
			if state == device.AdapterPoweredOn || state == device.AdapterUnknown {
				state = device.AdapterUnsupported
			}
			t.logger.WithFields(logrus.Fields{
				"state": state,
				"error": err,
			}).Error("Failed to open BLE adapter")
			t.emit(device.AdapterStateChanged{State: state, Err: NormalizeAdapterError(err)})
			return
		}

		t.mu.Lock()
		if ctx.Err() != nil {
			t.mu.Unlock()
			_ = central.Stop()
			return
		}
		t.central = central
		t.mu.Unlock()

		t.logger.Debug("BLE adapter opened")
		t.emit(device.AdapterStateChanged{State: device.AdapterPoweredOn})
	})
	return nil
}

// Close stops scanning, cancels every link and waits for all workers.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.handler == nil || t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	if t.scanCancel != nil {
		t.scanCancel()
		t.scanCancel = nil
	}
	links := make([]*link, 0, len(t.links))
	for _, l := range t.links {
		links = append(links, l)
	}
	central := t.central
	t.central = nil
	cancel := t.cancel
	t.mu.Unlock()

	for _, l := range links {
		l.requested.Store(true)
		if client := l.getClient(); client != nil {
			if err := client.CancelConnection(); err != nil {
				t.logger.WithFields(logrus.Fields{
					"peripheral": l.peripheral.ID,
					"error":      err,
				}).Warn("Failed to cancel connection on close")
			}
		}
	}
	cancel()
	t.workers.Wait()

	var err error
	if central != nil {
		err = central.Stop()
	}
	t.logger.Debug("BLE transport closed")
	return err
}

// DiscoverServices discovers the services of a connected peripheral.
func (t *Transport) DiscoverServices(p device.Peripheral, filter []device.Identifier) error {
	l, err := t.connectedLink(p.ID)
	if err != nil {
		return err
	}
	client := l.getClient()
	uuids := device.BLEUUIDs(filter...)

	t.workers.Go(l.ctx, "ble-discover-services", func(ctx context.Context) {
		svcs, err := client.DiscoverServices(uuids)
		ev := device.ServicesDiscovered{PeripheralID: p.ID, Err: NormalizeError(err)}
		for _, s := range svcs {
			ev.Services = append(ev.Services, device.Service{ID: device.IdentifierFromBLE(s.UUID), Handle: s})
		}
		t.logger.WithFields(logrus.Fields{
			"peripheral": p.ID,
			"services":   len(ev.Services),
			"error":      err,
		}).Debug("Services discovered")
		t.emit(ev)
	})
	return nil
}

// DiscoverCharacteristics discovers the characteristics of a service
// previously returned by DiscoverServices.
func (t *Transport) DiscoverCharacteristics(p device.Peripheral, s device.Service, filter []device.Identifier) error {
	svc, ok := s.Handle.(*ble.Service)
	if !ok || svc == nil {
		return fmt.Errorf("service %s: %w", s.ID, errUnknownHandle)
	}
	l, err := t.connectedLink(p.ID)
	if err != nil {
		return err
	}
	client := l.getClient()
	uuids := device.BLEUUIDs(filter...)

	t.workers.Go(l.ctx, "ble-discover-characteristics", func(ctx context.Context) {
		chars, err := client.DiscoverCharacteristics(uuids, svc)
		ev := device.CharacteristicsDiscovered{PeripheralID: p.ID, Service: s.ID, Err: NormalizeError(err)}
		for _, c := range chars {
			ev.Characteristics = append(ev.Characteristics, device.Characteristic{ID: device.IdentifierFromBLE(c.UUID), Handle: c})
		}
		t.logger.WithFields(logrus.Fields{
			"peripheral":      p.ID,
			"service_uuid":    s.ID.String(),
			"characteristics": len(ev.Characteristics),
			"error":           err,
		}).Debug("Characteristics discovered")
		t.emit(ev)
	})
	return nil
}

// ReadValue reads a characteristic previously returned by DiscoverCharacteristics.
func (t *Transport) ReadValue(p device.Peripheral, c device.Characteristic) error {
	char, ok := c.Handle.(*ble.Characteristic)
	if !ok || char == nil {
		return fmt.Errorf("characteristic %s: %w", c.ID, errUnknownHandle)
	}
	l, err := t.connectedLink(p.ID)
	if err != nil {
		return err
	}
	client := l.getClient()

	t.workers.Go(l.ctx, "ble-read-characteristic", func(ctx context.Context) {
		data, err := client.ReadCharacteristic(char)
		t.logger.WithFields(logrus.Fields{
			"peripheral": p.ID,
			"char_uuid":  c.ID.String(),
			"bytes":      len(data),
			"error":      err,
		}).Debug("Characteristic read")
		t.emit(device.ValueUpdated{PeripheralID: p.ID, Characteristic: c.ID, Data: data, Err: NormalizeError(err)})
	})
	return nil
}

// emit delivers ev to the handler installed by Open.
func (t *Transport) emit(ev device.Event) {
	t.mu.Lock()
	h := t.handler
	t.mu.Unlock()
	if h != nil {
		h(ev)
	}
}

// ready returns the open central, or an immediate rejection.
// Caller must hold t.mu.
func (t *Transport) ready() (Central, error) {
	if t.handler == nil || t.closed || t.ctx.Err() != nil {
		return nil, errNotOpen
	}
	if t.central == nil {
		return nil, errAdapterNotOn
	}
	return t.central, nil
}
