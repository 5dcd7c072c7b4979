package buffer

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrVersion is returned when buffer was encoded with incompatible
	// protocol version.
	ErrVersion = errors.New("incompatible version")
	// ErrMalformed is returned when declared length exceeds remaining
	// buffer space.
	ErrMalformed = errors.New("malformed packet")
	// ErrOutOfRange is returned when fd index doesn't point to attached
	// descriptor.
	ErrOutOfRange = errors.New("fd index out of range")
	// ErrNotPresent is returned when buffer is too short to hold header.
	ErrNotPresent = errors.New("header not present")
	// ErrType is returned when packet is parsed as wrong type.
	ErrType = errors.New("unexpected packet type")
	// ErrTooManyDescriptors is returned when more than MaxFDs descriptors
	// are added to the buffer.
	ErrTooManyDescriptors = errors.New("too many descriptors")
	// ErrReleased is returned when buffer is used after steal or clear.
	ErrReleased = errors.New("buffer released")
)

// ProtocolError is a hard decode failure. Offset points to the start of
// the packet that failed to decode.
type ProtocolError struct {
	Offset int
	Err    error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error at offset %d: %v", e.Offset, e.Err)
}

// Unwrap returns the underlying sentinel error.
func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// closeErrors wraps errors that occur when multiple descriptors fail to
// close.
type closeErrors []error

func (e closeErrors) Error() string {
	s := make([]string, 0, len(e))
	for _, ce := range e {
		s = append(s, ce.Error())
	}
	return strings.Join(s, ",")
}

// Unwrap allows to match any of wrapped errors.
func (e closeErrors) Unwrap() []error {
	return e
}

// ret returns untyped nil if error list is empty.
func (e closeErrors) ret() error {
	if len(e) > 0 {
		return e
	}
	return nil
}
