package buffer

import "fmt"

// Iter iterates over packets of the buffer. Packet data is exposed
// without copy and is valid as long as buffer is not released.
//
//	it := b.Iter(buffer.Version)
//	for it.Next() {
//		switch it.Type() {
//		case buffer.FDPayload:
//			...
//		}
//	}
//	if err := it.Err(); err != nil {
//		...
//	}
type Iter struct {
	b    *Buffer
	next int
	end  int
	typ  Type
	data []byte
	err  error
}

// Iter returns packet iterator for provided protocol version. Version
// and length of the buffer are validated before first packet is read.
func (b *Buffer) Iter(version uint32) *Iter {
	it := &Iter{b: b}
	if b.state != live {
		it.err = ErrReleased
		return it
	}
	if err := b.check(version); err != nil {
		it.err = err
		return it
	}
	it.next = dataOffset
	it.end = b.length()
	return it
}

// Next advances iterator to the next packet. It returns false when
// there are no more packets or decoding failed. Iterator doesn't
// advance past malformed packet.
func (it *Iter) Next() bool {
	if it.err != nil {
		return false
	}
	if it.b.state != live {
		it.err = ErrReleased
		return false
	}
	it.typ, it.data = Invalid, nil
	remaining := it.end - it.next
	if remaining == 0 {
		return false
	}
	if remaining < packetSize {
		it.err = &ProtocolError{
			Offset: it.next,
			Err:    fmt.Errorf("%w: %d trailing bytes", ErrMalformed, remaining),
		}
		return false
	}
	p := it.b.data[it.next:it.end]
	length := order.Uint32(p[4:])
	if uint64(length) > uint64(remaining-packetSize) {
		it.err = &ProtocolError{
			Offset: it.next,
			Err:    fmt.Errorf("%w: length %d exceeds %d bytes", ErrMalformed, length, remaining-packetSize),
		}
		return false
	}
	it.typ = Type(order.Uint32(p[0:]))
	it.data = p[packetSize : packetSize+int(length)]
	it.next += packetSize + int(length)
	return true
}

// Type returns type of the current packet.
func (it *Iter) Type() Type {
	return it.typ
}

// Data returns payload of the current packet.
func (it *Iter) Data() []byte {
	return it.data
}

// Offset returns position of the iterator in the buffer. After failed
// Next it points to the packet that failed to decode.
func (it *Iter) Offset() int {
	return it.next
}

// Err returns the error that stopped iteration.
func (it *Iter) Err() error {
	return it.err
}

// FD parses current packet as FDPayload.
func (it *Iter) FD() (FD, error) {
	var p FD
	err := it.parse(FDPayload, p.parse)
	return p, err
}

// Format parses current packet as FormatChange.
func (it *Iter) Format() (Format, error) {
	var p Format
	err := it.parse(FormatChange, p.parse)
	return p, err
}

// Property parses current packet as PropertyChange.
func (it *Iter) Property() (Property, error) {
	var p Property
	err := it.parse(PropertyChange, p.parse)
	return p, err
}

func (it *Iter) parse(t Type, fn func([]byte) error) error {
	if it.typ != t {
		return fmt.Errorf("%w: %v is not %v", ErrType, it.typ, t)
	}
	if err := fn(it.data); err != nil {
		return &ProtocolError{Offset: it.next - packetSize - len(it.data), Err: err}
	}
	return nil
}
