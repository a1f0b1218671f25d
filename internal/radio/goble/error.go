package goble

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/srg/blescan/internal/radio"
)

// ErrConnectionLost is reported when the link drops without a disconnect request.
var ErrConnectionLost = errors.New("connection lost")

// NormalizeError maps known go-ble error strings to the radio error kinds.
// The original error is kept in the chain.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}
	for _, known := range []error{radio.ErrBluetoothOff, radio.ErrUnauthorized, radio.ErrUnsupported, radio.ErrNotConnected} {
		if errors.Is(err, known) {
			return err
		}
	}

	msg := err.Error()
	switch {
	case msg == "central manager has invalid state: have=4 want=5: is Bluetooth turned on?":
		return fmt.Errorf("%w: %w", radio.ErrBluetoothOff, err)
	case containsIgnoreCase(msg, "bluetooth is turned off"),
		containsIgnoreCase(msg, "powered off"):
		return fmt.Errorf("%w: %w", radio.ErrBluetoothOff, err)
	case containsIgnoreCase(msg, "have=3 want=5"),
		containsIgnoreCase(msg, "not authorized"),
		containsIgnoreCase(msg, "operation not permitted"):
		return fmt.Errorf("%w: %w", radio.ErrUnauthorized, err)
	case containsIgnoreCase(msg, "have=2 want=5"),
		containsIgnoreCase(msg, "no such device"),
		containsIgnoreCase(msg, "not supported"):
		return fmt.Errorf("%w: %w", radio.ErrUnsupported, err)
	case containsIgnoreCase(msg, "device not connected"),
		containsIgnoreCase(msg, "disconnected"):
		return fmt.Errorf("%w: %w", radio.ErrNotConnected, err)
	default:
		return err
	}
}

// isCancellation reports whether err only reflects a cancelled context.
func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled)
}

func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
