package buffer

import (
	"fmt"
	"math"

	"golang.org/x/sys/unix"
)

const defaultCapacity = 256

// payload is a packet that can be appended to the builder.
type payload interface {
	size() int
	put([]byte)
}

// Builder encodes a new buffer. Descriptors added to the builder are
// owned by it until End transfers them to the buffer.
type Builder struct {
	version uint32
	header  Header
	data    []byte
	fds     [MaxFDs]int
	numFDs  int
	ended   bool
}

// NewBuilder returns builder for provided protocol version.
func NewBuilder(version uint32) *Builder {
	return &Builder{
		version: version,
		data:    make([]byte, dataOffset, defaultCapacity),
	}
}

// SetHeader sets header of the buffer.
func (b *Builder) SetHeader(h Header) {
	b.header = h
}

// AddFD attaches descriptor to the buffer and returns its index.
// ErrTooManyDescriptors is returned when MaxFDs descriptors are already
// attached. Descriptor is not added in this case and remains owned by
// the caller.
func (b *Builder) AddFD(fd int) (int, error) {
	if b.ended {
		return -1, ErrReleased
	}
	if b.numFDs == MaxFDs {
		return -1, fmt.Errorf("%w: limit is %d", ErrTooManyDescriptors, MaxFDs)
	}
	b.fds[b.numFDs] = fd
	b.numFDs++
	return b.numFDs - 1, nil
}

// AddFDPayload appends FDPayload packet. Index must point to descriptor
// added with AddFD.
func (b *Builder) AddFDPayload(p FD) error {
	if b.ended {
		return ErrReleased
	}
	if p.Index < 0 || int(p.Index) >= b.numFDs {
		return fmt.Errorf("%w: %d of %d", ErrOutOfRange, p.Index, b.numFDs)
	}
	return b.add(FDPayload, p)
}

// AddFormatChange appends FormatChange packet.
func (b *Builder) AddFormatChange(p Format) error {
	return b.add(FormatChange, p)
}

// AddPropertyChange appends PropertyChange packet.
func (b *Builder) AddPropertyChange(p Property) error {
	return b.add(PropertyChange, p)
}

func (b *Builder) add(t Type, p payload) error {
	if b.ended {
		return ErrReleased
	}
	size := p.size()
	if uint64(len(b.data)+packetSize+size) > math.MaxUint32 {
		return fmt.Errorf("%w: %v of %d bytes exceeds buffer limit", ErrMalformed, t, size)
	}
	offset := len(b.data)
	b.data = append(b.data, make([]byte, packetSize+size)...)
	packet := b.data[offset:]
	order.PutUint32(packet[0:], uint32(t))
	order.PutUint32(packet[4:], uint32(size))
	p.put(packet[packetSize:])
	return nil
}

// End finalizes the buffer. Ownership of descriptors is transferred to
// the returned buffer and builder can't be used anymore.
func (b *Builder) End() (*Buffer, error) {
	if b.ended {
		return nil, ErrReleased
	}
	order.PutUint32(b.data[0:], b.version)
	order.PutUint32(b.data[4:], uint32(len(b.data)))
	h := b.data[preambleSize:dataOffset]
	order.PutUint32(h[0:], b.header.Flags)
	order.PutUint32(h[4:], b.header.Seq)
	order.PutUint64(h[8:], uint64(b.header.PTS))
	order.PutUint64(h[16:], uint64(b.header.DTSOffset))

	var fds []int
	if b.numFDs > 0 {
		fds = make([]int, b.numFDs)
		copy(fds, b.fds[:b.numFDs])
	}
	buf := FromMemory(b.data, fds)
	b.data = nil
	b.numFDs = 0
	b.ended = true
	return buf, nil
}

// Clear discards the builder and closes attached descriptors. It's a
// no-op after End or previous Clear.
func (b *Builder) Clear() error {
	if b.ended {
		return nil
	}
	var errs closeErrors
	for _, fd := range b.fds[:b.numFDs] {
		if err := unix.Close(fd); err != nil {
			errs = append(errs, fmt.Errorf("close fd %d: %w", fd, err))
		}
	}
	b.data = nil
	b.numFDs = 0
	b.ended = true
	return errs.ret()
}
