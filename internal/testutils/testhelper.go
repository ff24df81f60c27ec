//go:build test

package testutils

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/srg/bleread/internal/device"
)

type TestHelper struct {
	T      *testing.T
	Logger *logrus.Logger
}

// NewTestHelper creates a test helper with a debug-level logger.
func NewTestHelper(t *testing.T) *TestHelper {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel) // enable debug logs to track execution flow
	return &TestHelper{
		T:      t,
		Logger: logger,
	}
}

// ID parses a UUID string and fails the test on error.
func (h *TestHelper) ID(s string) device.Identifier {
	h.T.Helper()
	id, err := device.ParseIdentifier(s)
	if err != nil {
		h.T.Fatalf("invalid identifier %q: %v", s, err)
	}
	return id
}

// Peripheral builds an advertised peripheral offering the given services.
func Peripheral(id, name string, services ...string) device.Peripheral {
	p := device.Peripheral{ID: id, Name: name, RSSI: -50}
	for _, s := range services {
		p.Services = append(p.Services, device.MustParseIdentifier(s))
	}
	return p
}

// Service builds a discovered service with a string handle.
func Service(uuid string) device.Service {
	return device.Service{ID: device.MustParseIdentifier(uuid), Handle: "svc-" + uuid}
}

// Characteristic builds a discovered characteristic with a string handle.
func Characteristic(uuid string) device.Characteristic {
	return device.Characteristic{ID: device.MustParseIdentifier(uuid), Handle: "char-" + uuid}
}
