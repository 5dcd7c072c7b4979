// Package buffer implements the binary protocol used to exchange buffer
// descriptors and control events between producer and consumer.
//
// A buffer is a little endian byte stream:
//
//	preamble {version u32, length u32}
//	header   {flags u32, seq u32, pts i64, dts_offset i64}
//	packets  {type u32, length u32, payload [length]byte}...
//
// File descriptors travel next to the stream and are referenced by index
// from FDPayload packets.
package buffer

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/sys/unix"
)

// Version is the current version of the protocol.
const Version uint32 = 0

// MaxFDs is the maximum number of descriptors attached to a single
// buffer. It's limited by ancillary data size of a socket message.
const MaxFDs = 16

const (
	preambleSize = 8
	// HeaderSize is the size of encoded header.
	HeaderSize = 24
	packetSize = 8
	dataOffset = preambleSize + HeaderSize
)

var order = binary.LittleEndian

// Header is the fixed header of every buffer.
type Header struct {
	Flags     uint32
	Seq       uint32
	PTS       int64
	DTSOffset int64
}

type state int

const (
	live state = iota
	stolen
	cleared
)

// Buffer is an immutable encoded buffer with attached descriptors.
// Descriptors are owned by buffer until it's stolen or cleared.
type Buffer struct {
	data  []byte
	fds   []int
	state state
}

// FromMemory wraps data and received descriptors as a buffer. Data is
// not copied and remains owned by the caller. Ownership of descriptors
// is transferred to the buffer.
func FromMemory(data []byte, fds []int) *Buffer {
	return &Buffer{
		data: data,
		fds:  fds,
	}
}

// Header returns decoded header. ErrVersion is returned if the buffer
// was encoded with other version.
func (b *Buffer) Header(version uint32) (Header, error) {
	if b.state != live {
		return Header{}, ErrReleased
	}
	if err := b.check(version); err != nil {
		return Header{}, err
	}
	h := b.data[preambleSize:dataOffset]
	return Header{
		Flags:     order.Uint32(h[0:]),
		Seq:       order.Uint32(h[4:]),
		PTS:       int64(order.Uint64(h[8:])),
		DTSOffset: int64(order.Uint64(h[16:])),
	}, nil
}

// check validates preamble of the buffer.
func (b *Buffer) check(version uint32) error {
	if len(b.data) < dataOffset {
		return &ProtocolError{Offset: 0, Err: ErrNotPresent}
	}
	if v := order.Uint32(b.data[0:]); v != version {
		return &ProtocolError{
			Offset: 0,
			Err:    fmt.Errorf("%w: have %d want %d", ErrVersion, v, version),
		}
	}
	if l := int(order.Uint32(b.data[4:])); l < dataOffset || l > len(b.data) {
		return &ProtocolError{
			Offset: 4,
			Err:    fmt.Errorf("%w: length %d of %d bytes", ErrMalformed, l, len(b.data)),
		}
	}
	return nil
}

// length returns declared length of the buffer.
func (b *Buffer) length() int {
	return int(order.Uint32(b.data[4:]))
}

// FD returns descriptor attached at provided index. Descriptor remains
// owned by buffer.
func (b *Buffer) FD(index int) (int, error) {
	if b.state != live {
		return -1, ErrReleased
	}
	if index < 0 || index >= len(b.fds) {
		return -1, fmt.Errorf("%w: %d of %d", ErrOutOfRange, index, len(b.fds))
	}
	return b.fds[index], nil
}

// NumFDs returns number of attached descriptors.
func (b *Buffer) NumFDs() int {
	return len(b.fds)
}

// Bytes returns encoded data of the buffer. It must not be modified.
func (b *Buffer) Bytes() []byte {
	if b.state != live {
		return nil
	}
	return b.data
}

// FDs returns attached descriptors. They remain owned by buffer.
func (b *Buffer) FDs() []int {
	if b.state != live {
		return nil
	}
	return b.fds
}

// Steal relinquishes ownership of data and descriptors to the caller.
// Any further call on the buffer returns ErrReleased.
func (b *Buffer) Steal() ([]byte, []int, error) {
	if b.state != live {
		return nil, nil, ErrReleased
	}
	data, fds := b.data, b.fds
	b.data, b.fds = nil, nil
	b.state = stolen
	return data, fds, nil
}

// Clear releases buffer and closes owned descriptors. It's safe to call
// Clear multiple times: descriptors are closed only once.
func (b *Buffer) Clear() error {
	if b.state != live {
		return nil
	}
	var errs closeErrors
	for _, fd := range b.fds {
		if err := unix.Close(fd); err != nil {
			errs = append(errs, fmt.Errorf("close fd %d: %w", fd, err))
		}
	}
	b.data, b.fds = nil, nil
	b.state = cleared
	return errs.ret()
}

// Released returns true if buffer was stolen or cleared.
func (b *Buffer) Released() bool {
	return b.state != live
}
