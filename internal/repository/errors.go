package repository

import "errors"

// ErrUnsupportedDriver is returned for a database driver with no implementation.
var ErrUnsupportedDriver = errors.New("unsupported database driver")

// Page limits shared by the list queries.
const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// ClampLimit applies DefaultListLimit to non-positive values and caps at MaxListLimit.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultListLimit
	case limit > MaxListLimit:
		return MaxListLimit
	default:
		return limit
	}
}
