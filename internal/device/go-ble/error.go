package goble

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/srg/bleread/internal/device"
)

// darwin: "central manager has invalid state: have=4 want=5: is Bluetooth turned on?"
var haveStateRe = regexp.MustCompile(`have=(\d+)`)

// NormalizeError maps known go-ble link errors to the session error taxonomy.
// Unknown errors, including GATT and ATT failures, are returned unchanged.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := device.KindOf(err); ok {
		return err
	}

	msg := err.Error()
	switch {
	case containsIgnoreCase(msg, "device not connected"),
		containsIgnoreCase(msg, "disconnected"):
		return device.NewError(device.DisconnectedUnexpectedly, "", err)
	default:
		return err
	}
}

// NormalizeAdapterError is NormalizeError for adapter initialisation and
// scan errors, which may also reveal an unusable radio.
func NormalizeAdapterError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := device.KindOf(err); ok {
		return err
	}
	if AdapterStateFromError(err) != device.AdapterUnknown {
		return device.NewError(device.AdapterUnavailable, "", err)
	}
	return NormalizeError(err)
}

// AdapterStateFromError infers the adapter state an initialisation or scan
// error reveals. It returns AdapterPoweredOn for nil and AdapterUnknown when
// the error says nothing about the radio.
func AdapterStateFromError(err error) device.AdapterState {
	if err == nil {
		return device.AdapterPoweredOn
	}
	msg := err.Error()

	if m := haveStateRe.FindStringSubmatch(msg); m != nil {
		if n, convErr := strconv.Atoi(m[1]); convErr == nil && n >= int(device.AdapterUnknown) && n <= int(device.AdapterPoweredOn) {
			return device.AdapterState(n)
		}
	}

	switch {
	case containsIgnoreCase(msg, "bluetooth is turned off"),
		containsIgnoreCase(msg, "powered off"):
		return device.AdapterPoweredOff
	case containsIgnoreCase(msg, "unauthorized"),
		containsIgnoreCase(msg, "not authorized"),
		containsIgnoreCase(msg, "operation not permitted"):
		return device.AdapterUnauthorized
	case containsIgnoreCase(msg, "not supported"),
		containsIgnoreCase(msg, "unsupported"),
		containsIgnoreCase(msg, "no devices available"),
		containsIgnoreCase(msg, "can't init hci"):
		return device.AdapterUnsupported
	case containsIgnoreCase(msg, "resetting"):
		return device.AdapterResetting
	default:
		return device.AdapterUnknown
	}
}

// containsIgnoreCase checks the substring case-insensitively
func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
