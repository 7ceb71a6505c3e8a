package device

import (
	"context"
	"errors"
)

// Control errors. Transport implementations wrap or return these so the
// cache and dispatcher can classify failures without knowing the protocol.
var (
	// ErrTimeout indicates the device did not answer within the probe timeout.
	ErrTimeout = errors.New("device timeout")
	// ErrUnreachable indicates the device could not be contacted at all.
	ErrUnreachable = errors.New("device unreachable")
	// ErrBadToken indicates the device rejected the configured token.
	ErrBadToken = errors.New("invalid device token")
)

// Controller issues low-level control calls to a single device.
// Implementations must be safe for use from one goroutine at a time;
// the dispatcher and cache serialize calls per device.
type Controller interface {
	// GetState queries the device's live power, brightness, and color temperature.
	GetState(ctx context.Context) (State, error)

	// SetPower turns the device on or off.
	SetPower(ctx context.Context, on bool) error

	// SetBrightness sets the absolute brightness (1-100).
	SetBrightness(ctx context.Context, level int) error

	// SetColorTemp sets the color temperature in Kelvin.
	SetColorTemp(ctx context.Context, kelvin int) error
}

// IsTransient reports whether err is a transient device failure: the device
// stays registered, its cached state is preserved, and only its online flag
// changes.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrUnreachable) ||
		errors.Is(err, context.DeadlineExceeded)
}
