package goble

import (
	"context"

	"github.com/go-ble/ble"
)

// Device is the part of ble.Device the adapter drives.
type Device interface {
	Scan(ctx context.Context, allowDup bool, h ble.AdvHandler) error
	Dial(ctx context.Context, a ble.Addr) (ble.Client, error)
	Stop() error
}

// Client is the part of ble.Client the adapter drives.
type Client interface {
	DiscoverServices(filter []ble.UUID) ([]*ble.Service, error)
	DiscoverCharacteristics(filter []ble.UUID, s *ble.Service) ([]*ble.Characteristic, error)
	DiscoverDescriptors(filter []ble.UUID, c *ble.Characteristic) ([]*ble.Descriptor, error)
	ReadCharacteristic(c *ble.Characteristic) ([]byte, error)
	ReadDescriptor(d *ble.Descriptor) ([]byte, error)
	CancelConnection() error
	Disconnected() <-chan struct{}
}

// DeviceFactory opens the platform BLE device (can be overridden in tests).
//
//nolint:gochecknoglobals // overridden by tests, like the platform factories it wraps
var DeviceFactory = func() (Device, error) {
	return newPlatformDevice()
}
