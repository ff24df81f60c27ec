// Package session implements the BLE central session: the adapter session
// that issues scan/connect/discover/read commands and owns the single target
// peripheral, and the event router that serializes transport events, timer
// fires and API calls onto one goroutine.
package session

import (
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
	"github.com/srg/bleread/internal/device"
	"github.com/srg/bleread/internal/logbook"
)

// DefaultScanTimeout bounds the Scanning phase when Options.ScanTimeout is unset.
const DefaultScanTimeout = 5 * time.Second

// Options configures a Session.
type Options struct {
	ServiceID        device.Identifier // required
	LegacyServiceID  device.Identifier // optional 16-bit alias accepted in advertisements
	CharacteristicID device.Identifier // required
	ScanTimeout      time.Duration
	AutoRead         bool // read as soon as the service is found
	Clock            Clock

	// OnCycleEnd is called on the session goroutine when a started cycle
	// finishes: nil after a completed read, the failure otherwise.
	OnCycleEnd func(err error)

	// OnTransition is called on the session goroutine for every phase change.
	OnTransition func(from, to Phase)
}

// Session is the mutable context of one scan-to-read cycle.
//
// A Session is not safe for concurrent use: every method must be called from
// the goroutine that owns it (normally the Router loop).
type Session struct {
	transport device.Transport
	sink      logbook.Sink
	logger    *logrus.Logger
	opts      Options
	post      func(device.Event)

	adapter       device.AdapterState
	phase         Phase
	target        *device.Peripheral
	targetService *device.Service
	scanTimer     *timeout
	timerGen      uint64
	pendingReads  int
	readErr       error
	disconnecting bool
	cycle         string
}

// New creates an idle session. post is used by the scan timer to deliver
// ScanTimeoutFired back onto the session's event queue.
func New(transport device.Transport, sink logbook.Sink, opts Options, logger *logrus.Logger, post func(device.Event)) *Session {
	if logger == nil {
		logger = logrus.New()
	}
	if opts.ScanTimeout <= 0 {
		opts.ScanTimeout = DefaultScanTimeout
	}
	if opts.Clock == nil {
		opts.Clock = RealClock()
	}
	return &Session{
		transport: transport,
		sink:      sink,
		logger:    logger,
		opts:      opts,
		post:      post,
		adapter:   device.AdapterUnknown,
		phase:     PhaseIdle,
	}
}

// Phase returns the current phase.
func (s *Session) Phase() Phase {
	return s.phase
}

// AdapterState returns the last adapter state reported by the transport.
func (s *Session) AdapterState() device.AdapterState {
	return s.adapter
}

// Target returns the selected peripheral, if any.
func (s *Session) Target() (device.Peripheral, bool) {
	if s.target == nil {
		return device.Peripheral{}, false
	}
	return *s.target, true
}

// TargetService returns the discovered target service, if any.
func (s *Session) TargetService() (device.Service, bool) {
	if s.targetService == nil {
		return device.Service{}, false
	}
	return *s.targetService, true
}

// StartScanning begins a new cycle: it issues a scan filtered by the
// configured service and arms the scan timeout.
func (s *Session) StartScanning() error {
	if !s.adapter.PoweredOn() {
		err := device.Errorf(device.AdapterUnavailable, "adapter is %s", s.adapter)
		s.fail(err)
		return err
	}
	if s.target != nil || s.phase != PhaseIdle {
		err := device.Errorf(device.SessionBusy, "cannot scan while %s", s.busyReason())
		s.fail(err)
		return err
	}

	s.cycle = ulid.Make().String()
	if err := s.transport.Scan(s.serviceFilter()); err != nil {
		serr := device.NewError(device.TransportFailure, "scan", err)
		s.fail(serr)
		return serr
	}

	s.setPhase(PhaseScanning)
	s.armScanTimer()
	s.log(logbook.Info("Start scanning", s.opts.ServiceID.String()))
	return nil
}

// StopScanning stops an active scan and cancels the scan timeout.
// Calling it when no scan is active does nothing.
func (s *Session) StopScanning() {
	if s.phase != PhaseScanning {
		s.entry().Debug("StopScanning ignored, not scanning")
		return
	}
	s.cancelScanTimer()
	s.stopScan()
	s.setPhase(PhaseIdle)
	s.log(logbook.Info("Stop scanning", ""))
}

// ReadCharacteristics discovers the configured characteristic in the target
// service. The read itself is issued once the characteristic is located.
func (s *Session) ReadCharacteristics() error {
	if s.target == nil {
		err := device.Errorf(device.PeripheralUnavailable, "no target peripheral")
		s.fail(err)
		return err
	}
	if s.targetService == nil {
		err := device.Errorf(device.ServiceUnavailable, "service %s not discovered", s.opts.ServiceID)
		s.fail(err)
		return err
	}
	if s.phase != PhaseServiceReady && s.phase != PhaseIdle {
		err := device.Errorf(device.SessionBusy, "cannot read while %s", s.phase)
		s.fail(err)
		return err
	}

	filter := []device.Identifier{s.opts.CharacteristicID}
	if err := s.transport.DiscoverCharacteristics(*s.target, *s.targetService, filter); err != nil {
		serr := device.NewError(device.CharacteristicDiscoveryFailed, s.targetService.ID.String(), err)
		s.abort(serr)
		return serr
	}

	s.setPhase(PhaseDiscoveringCharacteristic)
	s.log(logbook.Info("Discovering characteristics", s.targetService.ID.String()))
	return nil
}

// Disconnect drops the link to the target. A cycle still in progress ends
// with CycleCancelled. The target is released when the transport confirms
// with a Disconnected event.
func (s *Session) Disconnect() error {
	if s.target == nil {
		err := device.Errorf(device.PeripheralUnavailable, "nothing to disconnect")
		s.fail(err)
		return err
	}

	if s.phase != PhaseIdle {
		s.endCycle(device.Errorf(device.CycleCancelled, "disconnect requested while %s", s.phase))
	}
	s.log(logbook.Info("Disconnecting", s.target.DisplayName()))
	return s.cancelConnection()
}

// Shutdown cancels the timer and disconnects the target without logging.
// Used when the owning router stops.
func (s *Session) Shutdown() {
	s.cancelScanTimer()
	if s.phase == PhaseScanning {
		s.stopScan()
	}
	if s.target != nil {
		s.disconnecting = true
		if err := s.transport.CancelConnection(*s.target); err != nil {
			s.entry().WithError(err).Warn("Failed to cancel connection on shutdown")
		}
	}
	s.phase = PhaseIdle
}

func (s *Session) serviceFilter() []device.Identifier {
	filter := []device.Identifier{s.opts.ServiceID}
	if !s.opts.LegacyServiceID.IsZero() {
		filter = append(filter, s.opts.LegacyServiceID)
	}
	return filter
}

func (s *Session) isTarget(id string) bool {
	return s.target != nil && s.target.ID == id
}

func (s *Session) busyReason() string {
	if s.target != nil {
		return "connected to " + s.target.DisplayName()
	}
	return s.phase.String()
}

func (s *Session) setPhase(next Phase) {
	prev := s.phase
	if prev == next {
		return
	}
	if !CanTransition(prev, next) {
		s.entry().WithFields(logrus.Fields{"from": prev, "to": next}).Error("Unexpected phase transition")
	}
	s.phase = next
	s.entry().WithField("from", prev).Debug("Phase changed")
	if s.opts.OnTransition != nil {
		s.opts.OnTransition(prev, next)
	}
}

func (s *Session) armScanTimer() {
	s.cancelScanTimer()
	s.timerGen++
	gen := s.timerGen
	s.scanTimer = &timeout{
		gen: gen,
		timer: s.opts.Clock.AfterFunc(s.opts.ScanTimeout, func() {
			s.post(device.ScanTimeoutFired{Generation: gen})
		}),
	}
}

func (s *Session) cancelScanTimer() {
	s.scanTimer.Cancel()
	s.scanTimer = nil
}

func (s *Session) stopScan() {
	if err := s.transport.StopScan(); err != nil {
		s.entry().WithError(err).Warn("Failed to stop scan")
	}
}

// cancelConnection asks the transport to drop the target. If the request is
// rejected outright no Disconnected will follow, so the target is released here.
func (s *Session) cancelConnection() error {
	s.disconnecting = true
	if err := s.transport.CancelConnection(*s.target); err != nil {
		s.entry().WithError(err).Warn("Failed to cancel connection, releasing target")
		s.releaseTarget()
		return device.NewError(device.TransportFailure, "disconnect", err)
	}
	return nil
}

func (s *Session) releaseTarget() {
	s.target = nil
	s.targetService = nil
	s.pendingReads = 0
	s.disconnecting = false
}

// abort logs err and ends the cycle; the target is kept.
func (s *Session) abort(err *device.SessionError) {
	s.fail(err)
	s.endCycle(err)
}

// release logs err, ends the cycle and drops the link so no connected but
// unusable peripheral is left behind.
func (s *Session) release(err *device.SessionError) {
	s.fail(err)
	if s.target != nil {
		_ = s.cancelConnection()
	}
	s.endCycle(err)
}

func (s *Session) endCycle(err error) {
	s.cancelScanTimer()
	s.setPhase(PhaseIdle)
	if s.opts.OnCycleEnd != nil {
		s.opts.OnCycleEnd(err)
	}
}

func (s *Session) log(e logbook.Entry) {
	stored := s.sink.Append(e)
	s.entry().WithFields(logrus.Fields{
		"entry":   stored.ID,
		"subtext": stored.Subtext,
	}).Info(stored.Text)
}

// fail records exactly one error entry for err.
func (s *Session) fail(err *device.SessionError) {
	var sub []string
	if err.Detail != "" {
		sub = append(sub, err.Detail)
	}
	if err.Err != nil {
		sub = append(sub, err.Err.Error())
	}
	stored := s.sink.Append(logbook.Error(err.Kind.Summary(), strings.Join(sub, ": ")))
	s.entry().WithFields(logrus.Fields{
		"entry": stored.ID,
		"kind":  err.Kind,
	}).WithError(err).Error(stored.Text)
}

func (s *Session) entry() *logrus.Entry {
	fields := logrus.Fields{"phase": s.phase}
	if s.cycle != "" {
		fields["cycle"] = s.cycle
	}
	if s.target != nil {
		fields["peripheral"] = s.target.ID
	}
	return s.logger.WithFields(fields)
}
