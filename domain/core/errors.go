package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Not found errors
	ErrNotFound       = errors.New("resource not found")
	ErrColumnNotFound = fmt.Errorf("%w: column", ErrNotFound)
	ErrRowNotFound    = fmt.Errorf("%w: row", ErrNotFound)

	// Capability and data availability errors
	ErrMissingCapability   = errors.New("missing required capability")
	ErrInsufficientData    = errors.New("insufficient data for analysis")
	ErrDegenerateStatistic = errors.New("degenerate statistic")

	// Construction and argument errors
	ErrInvalidTable    = errors.New("invalid table")
	ErrInvalidArgument = errors.New("invalid argument")
)

// Error constructors with context
func NewColumnNotFoundError(column string) error {
	return fmt.Errorf("%w: %s", ErrColumnNotFound, column)
}

func NewMissingCapabilityError(capability string) error {
	return fmt.Errorf("%w: %s", ErrMissingCapability, capability)
}

// NewMissingTemporalError reports an absent temporal column. It matches both
// ErrMissingCapability and ErrColumnNotFound.
func NewMissingTemporalError() error {
	return fmt.Errorf("%w: %w: no temporal column", ErrMissingCapability, ErrColumnNotFound)
}

func NewInvalidArgumentError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

func NewInsufficientDataError(reason string) error {
	return fmt.Errorf("%w: %s", ErrInsufficientData, reason)
}

func NewRowNotFoundError(index, rows int) error {
	return fmt.Errorf("%w: index %d outside [0, %d)", ErrRowNotFound, index, rows)
}

// Error checking helpers
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsCapabilityError(err error) bool {
	return errors.Is(err, ErrMissingCapability)
}

func IsDataError(err error) bool {
	return errors.Is(err, ErrInsufficientData) ||
		errors.Is(err, ErrDegenerateStatistic)
}
