package trip

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidQueueLength is returned when a ring buffer depth is not
	// positive.
	ErrInvalidQueueLength = errors.New("queue length must be >= 1")

	// ErrMissingPeer is returned in client mode when no peer host was
	// specified.
	ErrMissingPeer = errors.New("peer host not specified")

	// ErrInvalidMode is returned for unknown session modes.
	ErrInvalidMode = errors.New("invalid session mode")

	// ErrChannelMismatch is returned when the audio binding does not have
	// the configured number of channels.
	ErrChannelMismatch = errors.New("audio binding channel count mismatch")

	// ErrInvalidPort is returned for ports outside the valid range.
	ErrInvalidPort = errors.New("invalid port")

	ErrAlreadyStarted = errors.New("session already started")
	ErrSessionClosed  = errors.New("session closed")
)

// ConfigError is a fatal configuration error detected before any part of a
// session is constructed.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s configuration: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

func makeConfigError(field string, err error) *ConfigError {
	return &ConfigError{Field: field, Err: err}
}

// IsConfigError returns true if err is (or wraps) a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
