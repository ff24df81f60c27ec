package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"github.com/srg/bleread/internal/device"
	"github.com/srg/bleread/internal/groutine"
	"github.com/srg/bleread/internal/logbook"
)

// DefaultEventBuffer is the capacity of the router's event queue.
const DefaultEventBuffer = 64

var (
	// ErrNotStarted is returned by API calls made before Start.
	ErrNotStarted = errors.New("session router not started")
	// ErrClosed is returned by API calls made after the router stopped.
	ErrClosed = errors.New("session router closed")
)

// Router owns a Session and serializes everything that touches it: transport
// events, scan timer fires and API calls all run on one goroutine.
type Router struct {
	session   *Session
	transport device.Transport
	logger    *logrus.Logger

	events  chan device.Event
	calls   chan func()
	stopped chan struct{}

	started   atomic.Bool
	cancel    context.CancelFunc
	closeOnce sync.Once
	closeErr  error
}

// NewRouter creates a router around a new Session.
func NewRouter(transport device.Transport, sink logbook.Sink, opts Options, logger *logrus.Logger) *Router {
	if logger == nil {
		logger = logrus.New()
	}
	r := &Router{
		transport: transport,
		logger:    logger,
		events:    make(chan device.Event, DefaultEventBuffer),
		calls:     make(chan func()),
		stopped:   make(chan struct{}),
	}
	r.session = New(transport, sink, opts, logger, r.Post)
	return r
}

// Start launches the event loop and opens the transport with Post as its
// event handler. The loop stops when ctx is cancelled or Close is called.
func (r *Router) Start(ctx context.Context) error {
	if !r.started.CompareAndSwap(false, true) {
		return fmt.Errorf("session router already started")
	}

	ctx, r.cancel = context.WithCancel(ctx)
	groutine.Go(ctx, "ble-session-loop", r.run)

	if err := r.transport.Open(ctx, r.Post); err != nil {
		_ = r.Close()
		return fmt.Errorf("failed to open transport: %w", err)
	}
	r.logger.Debug("Session router started")
	return nil
}

// Run starts the router and blocks until ctx is cancelled, then closes it.
func (r *Router) Run(ctx context.Context) error {
	if err := r.Start(ctx); err != nil {
		return err
	}
	<-r.stopped
	return r.Close()
}

func (r *Router) run(ctx context.Context) {
	defer close(r.stopped)
	for {
		select {
		case <-ctx.Done():
			r.session.Shutdown()
			r.logger.WithField("goroutine", groutine.GetName(ctx)).Debug("Session loop stopped")
			return
		case ev := <-r.events:
			r.session.Handle(ev)
		case fn := <-r.calls:
			fn()
		}
	}
}

// Post enqueues a transport event. It implements device.EventHandler and is
// safe to call from any goroutine except the loop itself.
func (r *Router) Post(ev device.Event) {
	select {
	case r.events <- ev:
	case <-r.stopped:
		r.logger.WithField("event", ev.String()).Debug("Event dropped, router stopped")
	}
}

// call runs fn on the loop and waits for it to return. It waits for the loop
// only, never for a BLE result.
func (r *Router) call(fn func() error) error {
	if !r.started.Load() {
		return ErrNotStarted
	}
	res := make(chan error, 1)
	select {
	case r.calls <- func() { res <- fn() }:
	case <-r.stopped:
		return ErrClosed
	}
	select {
	case err := <-res:
		return err
	case <-r.stopped:
		return ErrClosed
	}
}

// StartScanning begins a new scan-to-read cycle.
func (r *Router) StartScanning() error {
	return r.call(r.session.StartScanning)
}

// StopScanning stops an active scan. It is idempotent.
func (r *Router) StopScanning() error {
	return r.call(func() error {
		r.session.StopScanning()
		return nil
	})
}

// ReadCharacteristics reads the configured characteristic of the target.
func (r *Router) ReadCharacteristics() error {
	return r.call(r.session.ReadCharacteristics)
}

// Disconnect drops the link to the target peripheral.
func (r *Router) Disconnect() error {
	return r.call(r.session.Disconnect)
}

// Phase returns the session phase as seen by the loop.
func (r *Router) Phase() (Phase, error) {
	var p Phase
	err := r.call(func() error {
		p = r.session.Phase()
		return nil
	})
	return p, err
}

// Target returns the selected peripheral as seen by the loop.
func (r *Router) Target() (device.Peripheral, bool, error) {
	var (
		p  device.Peripheral
		ok bool
	)
	err := r.call(func() error {
		p, ok = r.session.Target()
		return nil
	})
	return p, ok, err
}

// AdapterState returns the last adapter state as seen by the loop.
func (r *Router) AdapterState() (device.AdapterState, error) {
	var s device.AdapterState
	err := r.call(func() error {
		s = r.session.AdapterState()
		return nil
	})
	return s, err
}

// Done is closed when the loop has stopped.
func (r *Router) Done() <-chan struct{} {
	return r.stopped
}

// Close stops the loop, releases the target and closes the transport.
func (r *Router) Close() error {
	r.closeOnce.Do(func() {
		if r.started.Load() {
			r.cancel()
			<-r.stopped
		}
		r.closeErr = r.transport.Close()
	})
	return r.closeErr
}
