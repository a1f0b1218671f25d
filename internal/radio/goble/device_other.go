//go:build !darwin && !linux

package goble

import (
	"fmt"
	"runtime"

	"github.com/srg/blescan/internal/radio"
)

func newPlatformDevice() (Device, error) {
	return nil, fmt.Errorf("%s: %w", runtime.GOOS, radio.ErrUnsupported)
}
