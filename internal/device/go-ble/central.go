package goble

import (
	"context"

	"github.com/go-ble/ble"
)

// Central is the part of ble.Device the transport drives.
type Central interface {
	Scan(ctx context.Context, allowDup bool, h ble.AdvHandler) error
	Dial(ctx context.Context, addr ble.Addr) (GATTClient, error)
	Stop() error
}

// GATTClient is the part of ble.Client the transport drives.
type GATTClient interface {
	DiscoverServices(filter []ble.UUID) ([]*ble.Service, error)
	DiscoverCharacteristics(filter []ble.UUID, s *ble.Service) ([]*ble.Characteristic, error)
	ReadCharacteristic(c *ble.Characteristic) ([]byte, error)
	CancelConnection() error
}

// DeviceFactory creates ble.Device instances (can be overridden in tests)
//
//nolint:revive // DeviceFactory name is intentional for test mocking
var DeviceFactory = newPlatformDevice

// bleCentral adapts a ble.Device to Central.
type bleCentral struct {
	dev ble.Device
}

// NewCentral opens the platform BLE device through DeviceFactory.
func NewCentral() (Central, error) {
	dev, err := DeviceFactory()
	if err != nil {
		return nil, err
	}
	return &bleCentral{dev: dev}, nil
}

func (c *bleCentral) Scan(ctx context.Context, allowDup bool, h ble.AdvHandler) error {
	return c.dev.Scan(ctx, allowDup, h)
}

func (c *bleCentral) Dial(ctx context.Context, addr ble.Addr) (GATTClient, error) {
	client, err := c.dev.Dial(ctx, addr)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func (c *bleCentral) Stop() error {
	return c.dev.Stop()
}
