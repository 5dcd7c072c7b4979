package buffer

import "fmt"

// Type of the packet.
type Type uint32

// Packet types.
const (
	Invalid Type = iota
	FDPayload
	FormatChange
	PropertyChange
)

func (t Type) String() string {
	switch t {
	case FDPayload:
		return "fd-payload"
	case FormatChange:
		return "format-change"
	case PropertyChange:
		return "property-change"
	}
	return fmt.Sprintf("invalid(%d)", uint32(t))
}

const (
	fdPayloadSize      = 24
	formatChangeSize   = 4
	propertyChangeSize = 8
)

type (
	// FD describes data span of Size bytes at Offset inside the file
	// referenced by Index. Index is resolved with Buffer.FD.
	FD struct {
		ID     uint32
		Index  int32
		Offset uint64
		Size   uint64
	}

	// Format carries serialized format of the stream with provided ID.
	Format struct {
		ID     uint32
		Format []byte
	}

	// Property carries new value of property.
	Property struct {
		ID    uint32
		Key   string
		Value []byte
	}
)

func (p FD) size() int {
	return fdPayloadSize
}

func (p FD) put(b []byte) {
	order.PutUint32(b[0:], p.ID)
	order.PutUint32(b[4:], uint32(p.Index))
	order.PutUint64(b[8:], p.Offset)
	order.PutUint64(b[16:], p.Size)
}

func (p *FD) parse(b []byte) error {
	if len(b) < fdPayloadSize {
		return fmt.Errorf("%w: fd payload of %d bytes", ErrMalformed, len(b))
	}
	p.ID = order.Uint32(b[0:])
	p.Index = int32(order.Uint32(b[4:]))
	p.Offset = order.Uint64(b[8:])
	p.Size = order.Uint64(b[16:])
	return nil
}

func (p Format) size() int {
	return formatChangeSize + len(p.Format)
}

func (p Format) put(b []byte) {
	order.PutUint32(b[0:], p.ID)
	copy(b[formatChangeSize:], p.Format)
}

func (p *Format) parse(b []byte) error {
	if len(b) < formatChangeSize {
		return fmt.Errorf("%w: format change of %d bytes", ErrMalformed, len(b))
	}
	p.ID = order.Uint32(b[0:])
	p.Format = b[formatChangeSize:]
	return nil
}

func (p Property) size() int {
	return propertyChangeSize + len(p.Key) + len(p.Value)
}

func (p Property) put(b []byte) {
	order.PutUint32(b[0:], p.ID)
	order.PutUint32(b[4:], uint32(len(p.Key)))
	n := copy(b[propertyChangeSize:], p.Key)
	copy(b[propertyChangeSize+n:], p.Value)
}

func (p *Property) parse(b []byte) error {
	if len(b) < propertyChangeSize {
		return fmt.Errorf("%w: property change of %d bytes", ErrMalformed, len(b))
	}
	p.ID = order.Uint32(b[0:])
	l := order.Uint32(b[4:])
	if uint64(l) > uint64(len(b)-propertyChangeSize) {
		return fmt.Errorf("%w: key length %d exceeds %d bytes", ErrMalformed, l, len(b)-propertyChangeSize)
	}
	key := b[propertyChangeSize : propertyChangeSize+int(l)]
	p.Key = string(key)
	p.Value = b[propertyChangeSize+int(l):]
	return nil
}
