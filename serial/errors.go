package serial

import "github.com/pkg/errors"

// Errors returned by cursors and the registry.
var (
	// ErrOutOfRange is returned when a read or write would cross the buffer bounds.
	ErrOutOfRange = errors.New("serial: out of range")
	// ErrStringTooLong is returned when a string does not fit the one-byte length prefix.
	ErrStringTooLong = errors.New("serial: string too long")
	// ErrInvalidString is returned for strings that are not valid UTF-8.
	ErrInvalidString = errors.New("serial: invalid utf-8 string")
	// ErrCountTooLarge is returned when a collection does not fit the two-byte count.
	ErrCountTooLarge = errors.New("serial: collection count too large")
	// ErrUnregisteredType is returned when no handlers exist for a type.
	ErrUnregisteredType = errors.New("serial: type not registered")
	// ErrDuplicateType is returned when a type is registered twice.
	ErrDuplicateType = errors.New("serial: type already registered")
)
