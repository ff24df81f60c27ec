package main

import (
	"errors"
	"strings"

	"github.com/srg/bleread/internal/device"
)

// Command-level errors
var (
	// ErrAdapterSilent means the transport never reported an adapter state.
	ErrAdapterSilent = errors.New("bluetooth adapter did not report its state")
)

var hints = map[device.ErrorKind]string{
	device.AdapterUnavailable:     "check that Bluetooth is turned on and that this program may use it",
	device.ScanTimeout:            "make sure the peripheral is advertising and in range, or raise --timeout",
	device.ServiceNotFound:        "the peripheral advertised the service but did not offer it; check --service",
	device.CharacteristicNotFound: "check --char against the characteristics of the service",
	device.SessionBusy:            "wait for the current cycle to finish",
}

// FormatUserError renders err for the terminal: session errors as their
// summary, detail and a hint; anything else unchanged.
func FormatUserError(err error) string {
	if err == nil {
		return ""
	}
	var serr *device.SessionError
	if !errors.As(err, &serr) {
		return err.Error()
	}

	parts := []string{serr.Kind.Summary()}
	if serr.Detail != "" {
		parts = append(parts, serr.Detail)
	}
	if serr.Err != nil {
		parts = append(parts, serr.Err.Error())
	}
	msg := strings.Join(parts, ": ")
	if hint, ok := hints[serr.Kind]; ok {
		msg += "\n  hint: " + hint
	}
	return msg
}
