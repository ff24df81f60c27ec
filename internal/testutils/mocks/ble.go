//go:build test

// Package mocks provides testify mocks of the go-ble transport's radio and
// GATT client interfaces.
package mocks

import (
	"context"
	"sync"

	"github.com/go-ble/ble"
	goble "github.com/srg/bleread/internal/device/go-ble"
	"github.com/stretchr/testify/mock"
)

// MockCentral mocks goble.Central. Scan replays Advertisements to the handler
// and then blocks until its context is cancelled, like a real radio.
type MockCentral struct {
	mock.Mock

	mu             sync.Mutex
	Advertisements []ble.Advertisement
}

var _ goble.Central = (*MockCentral)(nil)

// WithAdvertisements sets the advertisements replayed by the next Scan.
func (m *MockCentral) WithAdvertisements(ads ...ble.Advertisement) *MockCentral {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Advertisements = ads
	return m
}

func (m *MockCentral) Scan(ctx context.Context, allowDup bool, h ble.AdvHandler) error {
	args := m.Called(allowDup)
	if err := args.Error(0); err != nil {
		return err
	}
	m.mu.Lock()
	ads := append([]ble.Advertisement(nil), m.Advertisements...)
	m.mu.Unlock()
	for _, adv := range ads {
		h(adv)
	}
	<-ctx.Done()
	return ctx.Err()
}

// Dial returns the client configured for the address. A nil client with a nil
// error makes Dial block until its context is cancelled.
func (m *MockCentral) Dial(ctx context.Context, addr ble.Addr) (goble.GATTClient, error) {
	args := m.Called(addr.String())
	if err := args.Error(1); err != nil {
		return nil, err
	}
	client, _ := args.Get(0).(goble.GATTClient)
	if client == nil {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return client, nil
}

func (m *MockCentral) Stop() error {
	return m.Called().Error(0)
}

// MockGATTClient mocks goble.GATTClient and exposes a Disconnected channel
// that Drop closes to simulate a lost link.
type MockGATTClient struct {
	mock.Mock

	once         sync.Once
	disconnected chan struct{}
}

var _ goble.GATTClient = (*MockGATTClient)(nil)

func NewMockGATTClient() *MockGATTClient {
	return &MockGATTClient{disconnected: make(chan struct{})}
}

func (m *MockGATTClient) DiscoverServices(filter []ble.UUID) ([]*ble.Service, error) {
	args := m.Called(filter)
	svcs, _ := args.Get(0).([]*ble.Service)
	return svcs, args.Error(1)
}

func (m *MockGATTClient) DiscoverCharacteristics(filter []ble.UUID, s *ble.Service) ([]*ble.Characteristic, error) {
	args := m.Called(filter, s)
	chars, _ := args.Get(0).([]*ble.Characteristic)
	return chars, args.Error(1)
}

func (m *MockGATTClient) ReadCharacteristic(c *ble.Characteristic) ([]byte, error) {
	args := m.Called(c)
	data, _ := args.Get(0).([]byte)
	return data, args.Error(1)
}

// CancelConnection records the call and closes the Disconnected channel.
func (m *MockGATTClient) CancelConnection() error {
	err := m.Called().Error(0)
	m.Drop()
	return err
}

func (m *MockGATTClient) Disconnected() <-chan struct{} {
	return m.disconnected
}

// Drop closes the Disconnected channel once.
func (m *MockGATTClient) Drop() {
	m.once.Do(func() { close(m.disconnected) })
}
