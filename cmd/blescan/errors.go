package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/srg/blescan/internal/radio"
)

// Command-level errors
var (
	// ErrPeripheralNotFound means the peripheral did not advertise while we were searching for it.
	ErrPeripheralNotFound = errors.New("peripheral not found")
)

// FormatUserError turns an error into a message for the terminal.
func FormatUserError(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, radio.ErrBluetoothOff):
		return "Bluetooth is turned off. Turn it on and try again."
	case errors.Is(err, radio.ErrUnauthorized):
		return "Bluetooth access is not authorized. Allow this terminal to use Bluetooth in the system settings."
	case errors.Is(err, radio.ErrUnsupported):
		return "Bluetooth Low Energy is not available on this system."
	case errors.Is(err, ErrPeripheralNotFound):
		return fmt.Sprintf("%v. Make sure it is powered, advertising and in range.", err)
	case errors.Is(err, radio.ErrConnectionFailed):
		return fmt.Sprintf("Could not connect: %v", err)
	case errors.Is(err, radio.ErrUnexpectedDisconnect):
		return fmt.Sprintf("The peripheral disconnected: %v", err)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Sprintf("Timed out: %v", err)
	default:
		return err.Error()
	}
}
