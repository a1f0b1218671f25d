//go:build darwin

package goble

import "github.com/go-ble/ble/darwin"

func newPlatformDevice() (Device, error) {
	dev, err := darwin.NewDevice()
	if err != nil {
		return nil, err
	}
	return dev, nil
}
