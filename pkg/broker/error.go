package broker

import (
	"errors"
	"fmt"
)

// Venue error codes carried on order updates and rejection errors.
const (
	CodeNotSupported = 9016
	CodeRejected     = 9017
	CodeBroker       = 9081
	CodeUnknown      = 9090
)

var (
	ErrZeroQuantity   = errors.New("order quantity is zero")
	ErrFractionalLots = errors.New("order quantity is not a whole number of lots")
	ErrUnknownOrder   = errors.New("venue order id not found")
	ErrNotSupported   = errors.New("operation not supported by venue")
)

// ConfigError is fatal: unsupported venue or bad startup configuration.
// It is the only error kind that terminates the process.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string { return "config: " + e.Msg }

func NewConfigError(format string, args ...interface{}) *ConfigError {
	return &ConfigError{Msg: fmt.Sprintf(format, args...)}
}

// TransportError is a network or timeout failure talking to the venue.
// For writes the outcome is unknown; the next reconciliation pass is the
// source of truth.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("transport: %s: %v", e.Op, e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

// RejectionError is an explicit venue rejection or cancellation of an order.
// It propagates to the position as ERROR and halts the strategy.
type RejectionError struct {
	VenueOrderID string
	Code         int
	Message      string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("venue rejected order %s (code=%d): %s", e.VenueOrderID, e.Code, e.Message)
}

func IsConfig(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

func IsRejection(err error) bool {
	var re *RejectionError
	return errors.As(err, &re)
}
