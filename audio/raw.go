// Package audio describes raw audio formats exchanged in format and
// property change packets.
package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Format of samples.
type Format uint32

// Sample formats.
const (
	Unknown Format = iota
	S8
	U8
	S16LE
	S16BE
	U16LE
	U16BE
	S24_32LE
	S24_32BE
	U24_32LE
	U24_32BE
	S32LE
	S32BE
	U32LE
	U32BE
	S24LE
	S24BE
	U24LE
	U24BE
	S20LE
	S20BE
	U20LE
	U20BE
	S18LE
	S18BE
	U18LE
	U18BE
	F32LE
	F32BE
	F64LE
	F64BE
)

// Native endian aliases.
const (
	S16 = S16LE
	S32 = S32LE
	F32 = F32LE
	F64 = F64LE
)

var formats = [...]struct {
	name  string
	width int
}{
	Unknown:  {"UNKNOWN", 0},
	S8:       {"S8", 1},
	U8:       {"U8", 1},
	S16LE:    {"S16LE", 2},
	S16BE:    {"S16BE", 2},
	U16LE:    {"U16LE", 2},
	U16BE:    {"U16BE", 2},
	S24_32LE: {"S24_32LE", 4},
	S24_32BE: {"S24_32BE", 4},
	U24_32LE: {"U24_32LE", 4},
	U24_32BE: {"U24_32BE", 4},
	S32LE:    {"S32LE", 4},
	S32BE:    {"S32BE", 4},
	U32LE:    {"U32LE", 4},
	U32BE:    {"U32BE", 4},
	S24LE:    {"S24LE", 3},
	S24BE:    {"S24BE", 3},
	U24LE:    {"U24LE", 3},
	U24BE:    {"U24BE", 3},
	S20LE:    {"S20LE", 3},
	S20BE:    {"S20BE", 3},
	U20LE:    {"U20LE", 3},
	U20BE:    {"U20BE", 3},
	S18LE:    {"S18LE", 3},
	S18BE:    {"S18BE", 3},
	U18LE:    {"U18LE", 3},
	U18BE:    {"U18BE", 3},
	F32LE:    {"F32LE", 4},
	F32BE:    {"F32BE", 4},
	F64LE:    {"F64LE", 8},
	F64BE:    {"F64BE", 8},
}

func (f Format) String() string {
	if int(f) < len(formats) {
		return formats[f].name
	}
	return fmt.Sprintf("Format(%d)", uint32(f))
}

// Width returns number of bytes per sample.
func (f Format) Width() int {
	if int(f) < len(formats) {
		return formats[f].width
	}
	return 0
}

// ParseFormat returns format by its name.
func ParseFormat(name string) (Format, error) {
	for f := S8; int(f) < len(formats); f++ {
		if formats[f].name == name {
			return f, nil
		}
	}
	return Unknown, fmt.Errorf("%w: %q", ErrFormat, name)
}

// Flags of raw audio.
type Flags uint32

// FlagUnpositioned means channels have no position.
const (
	FlagNone         Flags = 0
	FlagUnpositioned Flags = 1 << 0
)

// Layout of samples in memory.
type Layout uint32

// Sample layouts.
const (
	Interleaved Layout = iota
	NonInterleaved
)

func (l Layout) String() string {
	switch l {
	case Interleaved:
		return "interleaved"
	case NonInterleaved:
		return "non-interleaved"
	}
	return fmt.Sprintf("Layout(%d)", uint32(l))
}

var (
	// ErrFormat is returned for unknown sample format.
	ErrFormat = errors.New("unknown sample format")
	// ErrLayout is returned for unknown layout.
	ErrLayout = errors.New("unknown layout")
	// ErrRate is returned when sample rate is zero.
	ErrRate = errors.New("invalid sample rate")
	// ErrChannels is returned when number of channels is zero.
	ErrChannels = errors.New("invalid number of channels")
	// ErrProperty is returned when property doesn't exist.
	ErrProperty = errors.New("unknown property")
	// ErrSize is returned when encoded value has wrong size.
	ErrSize = errors.New("invalid size")
)

// Property names of raw audio info.
const (
	PropFormat      = "format"
	PropFlags       = "flags"
	PropLayout      = "layout"
	PropRate        = "rate"
	PropChannels    = "channels"
	PropChannelMask = "channel-mask"
)

// RawInfo describes raw audio stream.
type RawInfo struct {
	Format      Format
	Flags       Flags
	Layout      Layout
	Rate        uint32
	Channels    uint32
	ChannelMask uint32
}

// rawInfoSize is the size of encoded RawInfo.
const rawInfoSize = 24

// DefaultRawInfo returns 16 bit interleaved stereo at 44100 Hz.
func DefaultRawInfo() RawInfo {
	return RawInfo{
		Format:   S16,
		Flags:    FlagNone,
		Layout:   Interleaved,
		Rate:     44100,
		Channels: 2,
	}
}

// Validate checks if info describes a valid stream.
func (i RawInfo) Validate() error {
	switch {
	case i.Format == Unknown || int(i.Format) >= len(formats):
		return fmt.Errorf("%w: %v", ErrFormat, i.Format)
	case i.Layout > NonInterleaved:
		return fmt.Errorf("%w: %v", ErrLayout, i.Layout)
	case i.Rate < 1:
		return ErrRate
	case i.Channels < 1:
		return ErrChannels
	}
	return nil
}

// FrameSize returns number of bytes in a single frame.
func (i RawInfo) FrameSize() int {
	return i.Format.Width() * int(i.Channels)
}

func (i RawInfo) String() string {
	return fmt.Sprintf("%v %dHz %dch %v", i.Format, i.Rate, i.Channels, i.Layout)
}

// MarshalBinary encodes info as little endian values.
func (i RawInfo) MarshalBinary() ([]byte, error) {
	b := make([]byte, rawInfoSize)
	binary.LittleEndian.PutUint32(b[0:], uint32(i.Format))
	binary.LittleEndian.PutUint32(b[4:], uint32(i.Flags))
	binary.LittleEndian.PutUint32(b[8:], uint32(i.Layout))
	binary.LittleEndian.PutUint32(b[12:], i.Rate)
	binary.LittleEndian.PutUint32(b[16:], i.Channels)
	binary.LittleEndian.PutUint32(b[20:], i.ChannelMask)
	return b, nil
}

// UnmarshalBinary decodes info and validates it.
func (i *RawInfo) UnmarshalBinary(b []byte) error {
	if len(b) != rawInfoSize {
		return fmt.Errorf("%w: raw info of %d bytes", ErrSize, len(b))
	}
	v := RawInfo{
		Format:      Format(binary.LittleEndian.Uint32(b[0:])),
		Flags:       Flags(binary.LittleEndian.Uint32(b[4:])),
		Layout:      Layout(binary.LittleEndian.Uint32(b[8:])),
		Rate:        binary.LittleEndian.Uint32(b[12:]),
		Channels:    binary.LittleEndian.Uint32(b[16:]),
		ChannelMask: binary.LittleEndian.Uint32(b[20:]),
	}
	if err := v.Validate(); err != nil {
		return err
	}
	*i = v
	return nil
}

// field returns pointer to property value.
func (i *RawInfo) field(key string) (*uint32, error) {
	switch key {
	case PropFormat:
		return (*uint32)(&i.Format), nil
	case PropFlags:
		return (*uint32)(&i.Flags), nil
	case PropLayout:
		return (*uint32)(&i.Layout), nil
	case PropRate:
		return &i.Rate, nil
	case PropChannels:
		return &i.Channels, nil
	case PropChannelMask:
		return &i.ChannelMask, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrProperty, key)
}

// Property returns encoded value of property.
func (i *RawInfo) Property(key string) ([]byte, error) {
	p, err := i.field(key)
	if err != nil {
		return nil, err
	}
	return binary.LittleEndian.AppendUint32(nil, *p), nil
}

// SetProperty sets property from encoded value. Info is not changed if
// new value makes it invalid.
func (i *RawInfo) SetProperty(key string, value []byte) error {
	if len(value) != 4 {
		return fmt.Errorf("%w: property %q of %d bytes", ErrSize, key, len(value))
	}
	v := *i
	p, err := v.field(key)
	if err != nil {
		return err
	}
	*p = binary.LittleEndian.Uint32(value)
	if err := v.Validate(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	*i = v
	return nil
}
