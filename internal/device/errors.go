package device

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies a session failure.
type ErrorKind string

const (
	AdapterUnavailable            ErrorKind = "adapter_unavailable"
	ScanTimeout                   ErrorKind = "scan_timeout"
	PeripheralUnavailable         ErrorKind = "peripheral_unavailable"
	ServiceUnavailable            ErrorKind = "service_unavailable"
	ServiceNotFound               ErrorKind = "service_not_found"
	CharacteristicNotFound        ErrorKind = "characteristic_not_found"
	CharacteristicDiscoveryFailed ErrorKind = "characteristic_discovery_failed"
	InvalidReadPayload            ErrorKind = "invalid_read_payload"
	TransportFailure              ErrorKind = "transport_error"
	DisconnectedUnexpectedly      ErrorKind = "disconnected_unexpectedly"
	SessionBusy                   ErrorKind = "session_busy"
	CycleCancelled                ErrorKind = "cycle_cancelled"
)

// summaries are the short, user-facing texts shown in log entries.
var summaries = map[ErrorKind]string{
	AdapterUnavailable:            "Bluetooth unavailable",
	ScanTimeout:                   "Scan timeout",
	PeripheralUnavailable:         "Peripheral unavailable",
	ServiceUnavailable:            "Service unavailable",
	ServiceNotFound:               "Service not found",
	CharacteristicNotFound:        "Characteristic not found",
	CharacteristicDiscoveryFailed: "Characteristic discovery failed",
	InvalidReadPayload:            "Invalid Data",
	TransportFailure:              "Transport error",
	DisconnectedUnexpectedly:      "Disconnected unexpectedly",
	SessionBusy:                   "Session busy",
	CycleCancelled:                "Cycle cancelled",
}

// Summary returns the short text used for log entries of this kind.
func (k ErrorKind) Summary() string {
	if s, ok := summaries[k]; ok {
		return s
	}
	return string(k)
}

// SessionError is the single error type surfaced by the session core.
// Detail is an optional human-readable explanation; Err is the wrapped cause.
type SessionError struct {
	Kind   ErrorKind
	Detail string
	Err    error
}

// Error implements the error interface
func (e *SessionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	parts := []string{string(e.Kind)}
	if e.Detail != "" {
		parts = append(parts, e.Detail)
	}
	if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}
	return strings.Join(parts, ": ")
}

func (e *SessionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is allows errors.Is to compare SessionError values by Kind
func (e *SessionError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*SessionError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Predefined sentinel errors, one per kind
var (
	ErrAdapterUnavailable            = &SessionError{Kind: AdapterUnavailable}
	ErrScanTimeout                   = &SessionError{Kind: ScanTimeout}
	ErrPeripheralUnavailable         = &SessionError{Kind: PeripheralUnavailable}
	ErrServiceUnavailable            = &SessionError{Kind: ServiceUnavailable}
	ErrServiceNotFound               = &SessionError{Kind: ServiceNotFound}
	ErrCharacteristicNotFound        = &SessionError{Kind: CharacteristicNotFound}
	ErrCharacteristicDiscoveryFailed = &SessionError{Kind: CharacteristicDiscoveryFailed}
	ErrInvalidReadPayload            = &SessionError{Kind: InvalidReadPayload}
	ErrTransport                     = &SessionError{Kind: TransportFailure}
	ErrDisconnectedUnexpectedly      = &SessionError{Kind: DisconnectedUnexpectedly}
	ErrSessionBusy                   = &SessionError{Kind: SessionBusy}
	ErrCycleCancelled                = &SessionError{Kind: CycleCancelled}
)

// NewError builds a SessionError of the given kind.
func NewError(kind ErrorKind, detail string, cause error) *SessionError {
	return &SessionError{Kind: kind, Detail: detail, Err: cause}
}

// Errorf builds a SessionError with a formatted detail and no cause.
func Errorf(kind ErrorKind, format string, args ...any) *SessionError {
	return &SessionError{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of the first SessionError in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var serr *SessionError
	if errors.As(err, &serr) {
		return serr.Kind, true
	}
	return "", false
}
