/*
Package stream transfers sample blocks between processes.

Every block is written into anonymous memory file and sent as a buffer
with FDPayload packet that references it. The first buffer of the stream
starts with FormatChange packet that carries encoded audio.RawInfo.
Receiver applies format and property changes in order, so they affect
payloads that follow them in the same buffer.
*/
package stream

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"golang.org/x/sys/unix"

	"pipelined.dev/graph/audio"
	"pipelined.dev/graph/buffer"
)

// FormatID identifies the raw audio format in format change packets.
const FormatID = 1

var (
	// ErrUnsupported is returned when samples can't be converted.
	ErrUnsupported = errors.New("unsupported stream format")
	// ErrNoFormat is returned when payload arrives before format.
	ErrNoFormat = errors.New("payload before format")
	// ErrOverflow is returned when payload doesn't fit the block.
	ErrOverflow = errors.New("payload exceeds block size")
)

func supported(info audio.RawInfo) error {
	if err := info.Validate(); err != nil {
		return err
	}
	if info.Layout != audio.Interleaved {
		return fmt.Errorf("%w: %v", ErrUnsupported, info.Layout)
	}
	switch info.Format {
	case audio.S16LE, audio.F32LE, audio.F64LE:
		return nil
	}
	return fmt.Errorf("%w: %v", ErrUnsupported, info.Format)
}

// Encoder converts blocks into buffers.
type Encoder struct {
	version uint32
	info    audio.RawInfo
	seq     uint32
	frames  int64
	data    []byte
}

// NewEncoder returns encoder that produces samples in provided format.
func NewEncoder(version uint32, info audio.RawInfo) (*Encoder, error) {
	if err := supported(info); err != nil {
		return nil, err
	}
	return &Encoder{
		version: version,
		info:    info,
	}, nil
}

// Info returns format of encoded samples.
func (e *Encoder) Info() audio.RawInfo {
	return e.info
}

// Encode returns buffer with interleaved samples. Sequence number and
// presentation time in frames are set in the header.
func (e *Encoder) Encode(samples []float64) (*buffer.Buffer, error) {
	bb := buffer.NewBuilder(e.version)
	bb.SetHeader(buffer.Header{
		Seq: e.seq,
		PTS: e.frames,
	})
	b, err := e.encode(bb, samples)
	if err != nil {
		return nil, errors.Join(err, bb.Clear())
	}
	e.seq++
	e.frames += int64(len(samples) / int(e.info.Channels))
	return b, nil
}

func (e *Encoder) encode(bb *buffer.Builder, samples []float64) (*buffer.Buffer, error) {
	if e.seq == 0 {
		format, err := e.info.MarshalBinary()
		if err != nil {
			return nil, err
		}
		if err := bb.AddFormatChange(buffer.Format{ID: FormatID, Format: format}); err != nil {
			return nil, err
		}
	}

	size := len(samples) * e.info.Format.Width()
	if cap(e.data) < size {
		e.data = make([]byte, size)
	}
	e.data = e.data[:size]
	put(e.info.Format, e.data, samples)

	fd, err := unix.MemfdCreate("mediagraph-block", unix.MFD_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("memfd: %w", err)
	}
	index, err := bb.AddFD(fd)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}
	if err := writeAll(fd, e.data); err != nil {
		return nil, err
	}
	if err := bb.AddFDPayload(buffer.FD{
		ID:    e.seq,
		Index: int32(index),
		Size:  uint64(size),
	}); err != nil {
		return nil, err
	}
	return bb.End()
}

func writeAll(fd int, data []byte) error {
	for len(data) > 0 {
		n, err := unix.Write(fd, data)
		if err != nil {
			return fmt.Errorf("write memfd: %w", err)
		}
		data = data[n:]
	}
	return nil
}

// Decoder converts buffers into blocks. It keeps the format announced by
// the peer.
type Decoder struct {
	version uint32
	info    audio.RawInfo
	known   bool
	data    []byte
}

// NewDecoder returns decoder of buffers of provided protocol version.
func NewDecoder(version uint32) *Decoder {
	return &Decoder{version: version}
}

// Info returns current format. False is returned if format wasn't
// received yet.
func (d *Decoder) Info() (audio.RawInfo, bool) {
	return d.info, d.known
}

// Decode applies packets of the buffer in order and converts payloads
// into dst. Number of decoded samples is returned. Buffer is cleared.
func (d *Decoder) Decode(b *buffer.Buffer, dst []float64) (n int, err error) {
	defer func() {
		err = errors.Join(err, b.Clear())
	}()
	it := b.Iter(d.version)
	for it.Next() {
		switch it.Type() {
		case buffer.FormatChange:
			p, err := it.Format()
			if err != nil {
				return n, err
			}
			if err := d.setFormat(p); err != nil {
				return n, err
			}
		case buffer.PropertyChange:
			p, err := it.Property()
			if err != nil {
				return n, err
			}
			if err := d.setProperty(p); err != nil {
				return n, err
			}
		case buffer.FDPayload:
			p, err := it.FD()
			if err != nil {
				return n, err
			}
			read, err := d.payload(b, p, dst[n:])
			n += read
			if err != nil {
				return n, err
			}
		}
	}
	return n, it.Err()
}

func (d *Decoder) setFormat(p buffer.Format) error {
	if p.ID != FormatID {
		return fmt.Errorf("%w: format id %d", ErrUnsupported, p.ID)
	}
	var info audio.RawInfo
	if err := info.UnmarshalBinary(p.Format); err != nil {
		return err
	}
	if err := supported(info); err != nil {
		return err
	}
	d.info, d.known = info, true
	return nil
}

func (d *Decoder) setProperty(p buffer.Property) error {
	if !d.known {
		return fmt.Errorf("%w: property %s", ErrNoFormat, p.Key)
	}
	info := d.info
	if err := info.SetProperty(p.Key, p.Value); err != nil {
		return err
	}
	if err := supported(info); err != nil {
		return err
	}
	d.info = info
	return nil
}

func (d *Decoder) payload(b *buffer.Buffer, p buffer.FD, dst []float64) (int, error) {
	if !d.known {
		return 0, fmt.Errorf("%w: payload %d", ErrNoFormat, p.ID)
	}
	fd, err := b.FD(int(p.Index))
	if err != nil {
		return 0, err
	}
	width := uint64(d.info.Format.Width())
	if p.Size%width != 0 {
		return 0, fmt.Errorf("%w: payload %d size %d is not multiple of sample width %d", buffer.ErrMalformed, p.ID, p.Size, width)
	}
	samples := p.Size / width
	if samples > uint64(len(dst)) {
		return 0, fmt.Errorf("%w: %d samples, block %d", ErrOverflow, samples, len(dst))
	}
	size := int(samples * width)
	if cap(d.data) < size {
		d.data = make([]byte, size)
	}
	d.data = d.data[:size]
	if err := readAt(fd, d.data, int64(p.Offset)); err != nil {
		return 0, err
	}
	get(d.info.Format, dst, d.data)
	return int(samples), nil
}

func readAt(fd int, data []byte, offset int64) error {
	for len(data) > 0 {
		n, err := unix.Pread(fd, data, offset)
		if err != nil {
			return fmt.Errorf("read payload: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("read payload: %w", io.ErrUnexpectedEOF)
		}
		data = data[n:]
		offset += int64(n)
	}
	return nil
}

func put(f audio.Format, dst []byte, samples []float64) {
	switch f {
	case audio.S16LE:
		for i, v := range samples {
			binary.LittleEndian.PutUint16(dst[2*i:], uint16(toInt16(v)))
		}
	case audio.F32LE:
		for i, v := range samples {
			binary.LittleEndian.PutUint32(dst[4*i:], math.Float32bits(float32(v)))
		}
	case audio.F64LE:
		for i, v := range samples {
			binary.LittleEndian.PutUint64(dst[8*i:], math.Float64bits(v))
		}
	}
}

func get(f audio.Format, dst []float64, data []byte) {
	switch f {
	case audio.S16LE:
		for i := 0; i < len(data)/2; i++ {
			dst[i] = float64(int16(binary.LittleEndian.Uint16(data[2*i:]))) / 32768
		}
	case audio.F32LE:
		for i := 0; i < len(data)/4; i++ {
			dst[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:])))
		}
	case audio.F64LE:
		for i := 0; i < len(data)/8; i++ {
			dst[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[8*i:]))
		}
	}
}

func toInt16(v float64) int16 {
	switch {
	case v >= 1:
		return math.MaxInt16
	case v < -1:
		return math.MinInt16
	}
	return int16(v * 32768)
}
