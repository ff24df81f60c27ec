package device

import "fmt"

// Event is the closed set of asynchronous notifications a Transport emits.
// The unexported marker method keeps the set sealed to this package.
type Event interface {
	isEvent()
	fmt.Stringer
}

// AdapterStateChanged reports a new adapter power state. Err carries the
// transport error that revealed the state, if any.
type AdapterStateChanged struct {
	State AdapterState
	Err   error
}

// PeripheralDiscovered reports an advertisement that passed the scan filter.
type PeripheralDiscovered struct {
	Peripheral Peripheral
}

// Connected reports that a connect command succeeded.
type Connected struct {
	PeripheralID string
}

// Disconnected reports that the link to a peripheral is gone. Err is nil for
// a requested disconnect and non-nil when the link dropped or never came up.
type Disconnected struct {
	PeripheralID string
	Err          error
}

// ServicesDiscovered carries the result of a DiscoverServices command.
type ServicesDiscovered struct {
	PeripheralID string
	Services     []Service
	Err          error
}

// CharacteristicsDiscovered carries the result of a DiscoverCharacteristics command.
type CharacteristicsDiscovered struct {
	PeripheralID    string
	Service         Identifier
	Characteristics []Characteristic
	Err             error
}

// ValueUpdated carries the result of a ReadValue command.
type ValueUpdated struct {
	PeripheralID   string
	Characteristic Identifier
	Data           []byte
	Err            error
}

// ScanTimeoutFired is posted by the session's own scan timer, never by a
// transport. Generation identifies the timer that fired.
type ScanTimeoutFired struct {
	Generation uint64
}

func (AdapterStateChanged) isEvent()       {}
func (PeripheralDiscovered) isEvent()      {}
func (Connected) isEvent()                 {}
func (Disconnected) isEvent()              {}
func (ServicesDiscovered) isEvent()        {}
func (CharacteristicsDiscovered) isEvent() {}
func (ValueUpdated) isEvent()              {}
func (ScanTimeoutFired) isEvent()          {}

func (e AdapterStateChanged) String() string {
	return fmt.Sprintf("adapter_state_changed(%s)", e.State)
}

func (e PeripheralDiscovered) String() string {
	return fmt.Sprintf("peripheral_discovered(%s)", e.Peripheral.ID)
}

func (e Connected) String() string {
	return fmt.Sprintf("connected(%s)", e.PeripheralID)
}

func (e Disconnected) String() string {
	return fmt.Sprintf("disconnected(%s)", e.PeripheralID)
}

func (e ServicesDiscovered) String() string {
	return fmt.Sprintf("services_discovered(%s, %d)", e.PeripheralID, len(e.Services))
}

func (e CharacteristicsDiscovered) String() string {
	return fmt.Sprintf("characteristics_discovered(%s, %d)", e.Service, len(e.Characteristics))
}

func (e ValueUpdated) String() string {
	return fmt.Sprintf("value_updated(%s, %d bytes)", e.Characteristic, len(e.Data))
}

func (e ScanTimeoutFired) String() string {
	return fmt.Sprintf("scan_timeout_fired(%d)", e.Generation)
}
