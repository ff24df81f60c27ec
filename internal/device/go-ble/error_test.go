package goble

import (
	"errors"
	"testing"

	"github.com/srg/bleread/internal/device"
	"github.com/stretchr/testify/assert"
)

func TestAdapterStateFromError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want device.AdapterState
	}{
		{"nil means powered on", nil, device.AdapterPoweredOn},
		{"darwin powered off", errors.New("central manager has invalid state: have=4 want=5: is Bluetooth turned on?"), device.AdapterPoweredOff},
		{"darwin unauthorized", errors.New("central manager has invalid state: have=3 want=5"), device.AdapterUnauthorized},
		{"darwin unsupported", errors.New("central manager has invalid state: have=2 want=5"), device.AdapterUnsupported},
		{"out of range state", errors.New("have=9 want=5"), device.AdapterUnknown},
		{"turned off", errors.New("Bluetooth is turned off"), device.AdapterPoweredOff},
		{"linux no adapter", errors.New("can't init hci: no devices available: (hci0: can't down device: no such device)"), device.AdapterUnsupported},
		{"linux permission", errors.New("can't set socket option: operation not permitted"), device.AdapterUnauthorized},
		{"unrelated", errors.New("att: read failed"), device.AdapterUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AdapterStateFromError(tt.err), "state MUST be inferred from the message")
		})
	}
}

func TestNormalizeError(t *testing.T) {
	assert.NoError(t, NormalizeError(nil))

	lost := NormalizeError(errors.New("device not connected"))
	assert.ErrorIs(t, lost, device.ErrDisconnectedUnexpectedly)

	plain := errors.New("att: read failed")
	assert.Same(t, plain, NormalizeError(plain), "unknown errors MUST pass through unchanged")

	already := device.Errorf(device.ScanTimeout, "x")
	assert.Same(t, already, NormalizeError(already), "classified errors MUST NOT be rewrapped")

	for _, msg := range []string{
		"ATT request failed: input channel: Request Not Supported",
		"operation not supported by the remote device",
	} {
		gatt := errors.New(msg)
		assert.Same(t, gatt, NormalizeError(gatt), "GATT errors MUST NOT be read as adapter state: %s", msg)
		assert.NotErrorIs(t, NormalizeError(gatt), device.ErrAdapterUnavailable)
	}
}

func TestNormalizeAdapterError(t *testing.T) {
	assert.NoError(t, NormalizeAdapterError(nil))

	off := NormalizeAdapterError(errors.New("central manager has invalid state: have=4 want=5: is Bluetooth turned on?"))
	assert.ErrorIs(t, off, device.ErrAdapterUnavailable, "power errors MUST map to AdapterUnavailable")
	assert.Contains(t, off.Error(), "have=4", "original message MUST be preserved")

	denied := NormalizeAdapterError(errors.New("can't set socket option: operation not permitted"))
	assert.ErrorIs(t, denied, device.ErrAdapterUnavailable)

	lost := NormalizeAdapterError(errors.New("device not connected"))
	assert.ErrorIs(t, lost, device.ErrDisconnectedUnexpectedly, "link errors MUST keep their mapping")

	plain := errors.New("scan: busy")
	assert.Same(t, plain, NormalizeAdapterError(plain))
}

func TestNameFromManufacturerData(t *testing.T) {
	assert.Equal(t, "Thermo", nameFromManufacturerData([]byte{0x4c, 0x00, 'T', 'h', 'e', 'r', 'm', 'o'}))
	assert.Equal(t, "", nameFromManufacturerData([]byte{0x01, 0x02, 0x03, 0x04, 0x05}), "binary data MUST yield no name")
	assert.Equal(t, "", nameFromManufacturerData([]byte{'1', '2', '3', '4'}), "names MUST contain a letter")
	assert.Equal(t, "", nameFromManufacturerData([]byte{'a'}), "short data MUST yield no name")
}
