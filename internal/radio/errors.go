package radio

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the session layer.
var (
	// ErrRadioUnavailable means the radio is not powered on; the command was ignored.
	ErrRadioUnavailable = errors.New("radio unavailable")
	// ErrConnectionFailed wraps the hardware error of a failed connection attempt.
	ErrConnectionFailed = errors.New("connection failed")
	// ErrUnexpectedDisconnect marks a disconnect that was not requested by the user.
	ErrUnexpectedDisconnect = errors.New("unexpected disconnect")
	// ErrStaleCallback marks a callback for a connection epoch that has moved on.
	ErrStaleCallback = errors.New("stale callback")
	// ErrUnknownPeripheral means the peripheral was never discovered in this session.
	ErrUnknownPeripheral = errors.New("unknown peripheral")
)

// Errors reported by radio implementations.
var (
	ErrBluetoothOff = errors.New("bluetooth is turned off")
	ErrUnauthorized = errors.New("bluetooth access is not authorized")
	ErrUnsupported  = errors.New("bluetooth low energy is not supported")
	ErrNotConnected = errors.New("not connected")
	ErrNotFound     = errors.New("attribute not found")
)

// StateForError maps a radio initialization error to the power state it implies.
func StateForError(err error) State {
	switch {
	case err == nil:
		return StatePoweredOn
	case errors.Is(err, ErrBluetoothOff):
		return StatePoweredOff
	case errors.Is(err, ErrUnauthorized):
		return StateUnauthorized
	case errors.Is(err, ErrUnsupported):
		return StateUnsupported
	default:
		return StateUnknown
	}
}

// ErrorForState explains why a radio in state s cannot be used. Returns nil for StatePoweredOn.
func ErrorForState(s State) error {
	switch s {
	case StatePoweredOn:
		return nil
	case StatePoweredOff:
		return ErrBluetoothOff
	case StateUnauthorized:
		return ErrUnauthorized
	case StateUnsupported:
		return ErrUnsupported
	default:
		return fmt.Errorf("%w: radio is %s", ErrRadioUnavailable, s)
	}
}
