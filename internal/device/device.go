package device

import (
	"context"
	"strings"
)

// AdapterState represents the power/availability state of the local BLE adapter.
// Values follow the CoreBluetooth numbering, which go-ble also reports in its
// "invalid state" errors.
type AdapterState int

const (
	AdapterUnknown AdapterState = iota
	AdapterResetting
	AdapterUnsupported
	AdapterUnauthorized
	AdapterPoweredOff
	AdapterPoweredOn
)

var adapterStateNames = map[AdapterState]string{
	AdapterUnknown:      "unknown",
	AdapterResetting:    "resetting",
	AdapterUnsupported:  "unsupported",
	AdapterUnauthorized: "unauthorized",
	AdapterPoweredOff:   "powered_off",
	AdapterPoweredOn:    "powered_on",
}

func (s AdapterState) String() string {
	if name, ok := adapterStateNames[s]; ok {
		return name
	}
	return adapterStateNames[AdapterUnknown]
}

// PoweredOn reports whether scan/connect commands may be issued in this state.
func (s AdapterState) PoweredOn() bool {
	return s == AdapterPoweredOn
}

// Peripheral is the identity of a remote device as seen in an advertisement.
type Peripheral struct {
	ID       string // transport address, e.g. "AA:BB:CC:DD:EE:FF" or a CoreBluetooth UUID
	Name     string
	Services []Identifier // advertised service identifiers
	RSSI     int
}

// DisplayName returns the advertised name, falling back to the ID.
func (p Peripheral) DisplayName() string {
	if strings.TrimSpace(p.Name) == "" {
		return p.ID
	}
	return p.Name
}

// Advertises reports whether any of the advertised services equals one of ids.
func (p Peripheral) Advertises(ids ...Identifier) bool {
	for _, adv := range p.Services {
		for _, id := range ids {
			if !id.IsZero() && adv.Equal(id) {
				return true
			}
		}
	}
	return false
}

// Service is a GATT service discovered on the connected peripheral.
// Handle is the transport's own reference, passed back on later commands.
type Service struct {
	ID     Identifier
	Handle any
}

// Characteristic is a GATT characteristic discovered within a Service.
type Characteristic struct {
	ID     Identifier
	Handle any
}

// EventHandler receives transport events. Implementations must not block for
// long; the session router only enqueues them.
type EventHandler func(Event)

// Transport is the BLE central-role capability the session drives.
//
// Command methods return an error only when the command is rejected
// immediately (e.g. the adapter was never opened or the handle is unknown).
// Every other outcome, success or failure, arrives later as an Event,
// delivered from the transport's own goroutines and never from inside the
// command call.
type Transport interface {
	// Open initialises the radio and starts delivering events to handler.
	// The first event is always an AdapterStateChanged.
	Open(ctx context.Context, handler EventHandler) error

	Scan(filter []Identifier) error
	StopScan() error
	Connect(p Peripheral) error
	CancelConnection(p Peripheral) error
	DiscoverServices(p Peripheral, filter []Identifier) error
	DiscoverCharacteristics(p Peripheral, s Service, filter []Identifier) error
	ReadValue(p Peripheral, c Characteristic) error

	// Close stops scanning, drops any connection and stops event delivery.
	Close() error
}
