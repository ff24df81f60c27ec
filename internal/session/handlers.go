package session

import (
	"unicode/utf8"

	"github.com/sirupsen/logrus"
	"github.com/srg/bleread/internal/device"
	"github.com/srg/bleread/internal/logbook"
)

// Handle advances the state machine by one event. Events that are not valid
// for the current phase, or that concern a peripheral other than the target,
// are ignored.
func (s *Session) Handle(ev device.Event) {
	switch e := ev.(type) {
	case device.AdapterStateChanged:
		s.onAdapterState(e)
	case device.PeripheralDiscovered:
		s.onDiscovered(e)
	case device.ScanTimeoutFired:
		s.onScanTimeout(e)
	case device.Connected:
		s.onConnected(e)
	case device.ServicesDiscovered:
		s.onServices(e)
	case device.CharacteristicsDiscovered:
		s.onCharacteristics(e)
	case device.ValueUpdated:
		s.onValue(e)
	case device.Disconnected:
		s.onDisconnected(e)
	default:
		s.entry().WithField("event", ev).Warn("Unknown event")
	}
}

func (s *Session) ignore(ev device.Event, reason string) {
	s.entry().WithFields(logrus.Fields{"event": ev.String(), "reason": reason}).Debug("Event ignored")
}

func (s *Session) onAdapterState(e device.AdapterStateChanged) {
	s.adapter = e.State
	if e.State.PoweredOn() {
		s.log(logbook.Info("Bluetooth powered on", ""))
		return
	}

	err := device.NewError(device.AdapterUnavailable, e.State.String(), e.Err)
	s.fail(err)
	// The radio is gone, so no link can survive it.
	s.releaseTarget()
	if s.phase != PhaseIdle {
		s.endCycle(err)
	}
}

func (s *Session) onDiscovered(e device.PeripheralDiscovered) {
	p := e.Peripheral
	switch {
	case s.phase != PhaseScanning:
		s.ignore(e, "not scanning")
		return
	case s.target != nil:
		s.ignore(e, "target already selected")
		return
	case !p.Advertises(s.opts.ServiceID, s.opts.LegacyServiceID):
		s.ignore(e, "service not advertised")
		return
	}

	s.cancelScanTimer()
	s.stopScan()
	s.target = &p
	s.log(logbook.Info("Discovered peripheral", p.DisplayName()))

	if err := s.transport.Connect(p); err != nil {
		s.releaseTarget()
		s.abort(device.NewError(device.TransportFailure, "connect "+p.ID, err))
		return
	}
	s.setPhase(PhaseConnecting)
	s.log(logbook.Info("Connecting", p.ID))
}

func (s *Session) onScanTimeout(e device.ScanTimeoutFired) {
	if s.phase != PhaseScanning || s.scanTimer == nil || s.scanTimer.gen != e.Generation {
		s.ignore(e, "stale timer")
		return
	}
	s.scanTimer = nil
	s.stopScan()
	s.abort(device.Errorf(device.ScanTimeout, "no peripheral advertising %s within %s", s.opts.ServiceID, s.opts.ScanTimeout))
}

func (s *Session) onConnected(e device.Connected) {
	if s.phase != PhaseConnecting || !s.isTarget(e.PeripheralID) {
		s.ignore(e, "not connecting to this peripheral")
		return
	}
	s.log(logbook.Info("Connected", s.target.DisplayName()))

	if err := s.transport.DiscoverServices(*s.target, s.serviceFilter()); err != nil {
		s.release(device.NewError(device.TransportFailure, "discover services", err))
		return
	}
	s.setPhase(PhaseDiscoveringService)
}

func (s *Session) onServices(e device.ServicesDiscovered) {
	if s.phase != PhaseDiscoveringService || !s.isTarget(e.PeripheralID) {
		s.ignore(e, "not discovering services")
		return
	}
	if e.Err != nil {
		s.release(device.NewError(device.TransportFailure, "discover services", e.Err))
		return
	}

	var found *device.Service
	for i := range e.Services {
		id := e.Services[i].ID
		if id.Equal(s.opts.ServiceID) || (!s.opts.LegacyServiceID.IsZero() && id.Equal(s.opts.LegacyServiceID)) {
			found = &e.Services[i]
			break
		}
	}
	if found == nil {
		s.release(device.Errorf(device.ServiceNotFound, "%s not offered by %s", s.opts.ServiceID, s.target.DisplayName()))
		return
	}

	svc := *found
	s.targetService = &svc
	s.setPhase(PhaseServiceReady)
	s.log(logbook.Info("Service found", svc.ID.String()))

	if s.opts.AutoRead {
		_ = s.ReadCharacteristics()
	}
}

func (s *Session) onCharacteristics(e device.CharacteristicsDiscovered) {
	if s.phase != PhaseDiscoveringCharacteristic || !s.isTarget(e.PeripheralID) {
		s.ignore(e, "not discovering characteristics")
		return
	}
	if e.Err != nil {
		s.abort(device.NewError(device.CharacteristicDiscoveryFailed, e.Service.String(), e.Err))
		return
	}

	var lastErr error
	issued := 0
	for _, c := range e.Characteristics {
		if !c.ID.Equal(s.opts.CharacteristicID) {
			continue
		}
		if err := s.transport.ReadValue(*s.target, c); err != nil {
			serr := device.NewError(device.TransportFailure, "read "+c.ID.String(), err)
			s.fail(serr)
			lastErr = serr
			continue
		}
		issued++
	}

	switch {
	case issued > 0:
		s.pendingReads = issued
		s.readErr = lastErr
		s.setPhase(PhaseReading)
		s.log(logbook.Info("Reading value", s.opts.CharacteristicID.String()))
	case lastErr != nil:
		s.endCycle(lastErr)
	default:
		s.abort(device.Errorf(device.CharacteristicNotFound, "%s not offered by service %s", s.opts.CharacteristicID, e.Service))
	}
}

func (s *Session) onValue(e device.ValueUpdated) {
	if s.phase != PhaseReading || !s.isTarget(e.PeripheralID) {
		s.ignore(e, "no read outstanding")
		return
	}
	s.pendingReads--

	var serr *device.SessionError
	switch {
	case e.Err != nil:
		serr = device.NewError(device.TransportFailure, "read "+e.Characteristic.String(), e.Err)
	case !utf8.Valid(e.Data):
		serr = device.Errorf(device.InvalidReadPayload, "%s returned %d non UTF-8 bytes", e.Characteristic, len(e.Data))
	}
	if serr != nil {
		s.fail(serr)
		s.readErr = serr
	} else {
		s.log(logbook.Highlight(string(e.Data), e.Characteristic.String()))
	}

	if s.pendingReads <= 0 {
		s.pendingReads = 0
		s.endCycle(s.readErr)
	}
}

func (s *Session) onDisconnected(e device.Disconnected) {
	if !s.isTarget(e.PeripheralID) {
		s.ignore(e, "not the target")
		return
	}

	name := s.target.DisplayName()
	wasActive := s.phase != PhaseIdle
	requested := s.disconnecting
	s.releaseTarget()

	if e.Err == nil && (requested || !wasActive) {
		s.setPhase(PhaseIdle)
		s.log(logbook.Info("Disconnected", name))
		return
	}

	err := device.NewError(device.DisconnectedUnexpectedly, name, e.Err)
	s.fail(err)
	if wasActive {
		s.endCycle(err)
		return
	}
	s.setPhase(PhaseIdle)
}
