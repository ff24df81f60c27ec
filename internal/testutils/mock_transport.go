//go:build test

package testutils

import (
	"context"
	"sync"

	"github.com/srg/bleread/internal/device"
	"github.com/stretchr/testify/mock"
)

// MockTransport is a testify mock of device.Transport. Commands are recorded
// and answered by expectations; events are injected with Emit.
//
// Typical usage:
//
//	tr := testutils.NewMockTransport()
//	tr.AcceptAll()
//	s := session.New(tr, book, opts, logger, tr.Emit)
//	tr.SetHandler(s.Handle)
//	tr.Emit(device.AdapterStateChanged{State: device.AdapterPoweredOn})
type MockTransport struct {
	mock.Mock

	mu      sync.Mutex
	handler device.EventHandler
}

var _ device.Transport = (*MockTransport)(nil)

func NewMockTransport() *MockTransport {
	return &MockTransport{}
}

// commandArity is the argument count of each device.Transport method.
var commandArity = map[string]int{
	"Open":                    2,
	"Scan":                    1,
	"StopScan":                0,
	"Connect":                 1,
	"CancelConnection":        1,
	"DiscoverServices":        2,
	"DiscoverCharacteristics": 3,
	"ReadValue":               2,
	"Close":                   0,
}

// AcceptAll makes every command succeed. Expectations registered before it
// take precedence, since testify matches them in order.
func (m *MockTransport) AcceptAll() *MockTransport {
	for method, n := range commandArity {
		args := make([]interface{}, n)
		for i := range args {
			args[i] = mock.Anything
		}
		m.On(method, args...).Maybe().Return(nil)
	}
	return m
}

// SetHandler installs the event handler without going through Open.
func (m *MockTransport) SetHandler(h device.EventHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = h
}

// Emit delivers ev to the installed handler.
func (m *MockTransport) Emit(ev device.Event) {
	m.mu.Lock()
	h := m.handler
	m.mu.Unlock()
	if h == nil {
		panic("MockTransport.Emit: no handler installed")
	}
	h(ev)
}

// Count returns how many times method was called.
func (m *MockTransport) Count(method string) int {
	n := 0
	for _, c := range m.Calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

func (m *MockTransport) Open(ctx context.Context, handler device.EventHandler) error {
	m.SetHandler(handler)
	return m.Called(ctx, handler).Error(0)
}

func (m *MockTransport) Scan(filter []device.Identifier) error {
	return m.Called(filter).Error(0)
}

func (m *MockTransport) StopScan() error {
	return m.Called().Error(0)
}

func (m *MockTransport) Connect(p device.Peripheral) error {
	return m.Called(p).Error(0)
}

func (m *MockTransport) CancelConnection(p device.Peripheral) error {
	return m.Called(p).Error(0)
}

func (m *MockTransport) DiscoverServices(p device.Peripheral, filter []device.Identifier) error {
	return m.Called(p, filter).Error(0)
}

func (m *MockTransport) DiscoverCharacteristics(p device.Peripheral, s device.Service, filter []device.Identifier) error {
	return m.Called(p, s, filter).Error(0)
}

func (m *MockTransport) ReadValue(p device.Peripheral, c device.Characteristic) error {
	return m.Called(p, c).Error(0)
}

func (m *MockTransport) Close() error {
	return m.Called().Error(0)
}
