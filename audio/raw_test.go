package audio_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"pipelined.dev/graph/audio"
)

func TestFormat(t *testing.T) {
	tests := []struct {
		name   string
		format audio.Format
		width  int
	}{
		{name: "S8", format: audio.S8, width: 1},
		{name: "S16LE", format: audio.S16, width: 2},
		{name: "S24_32BE", format: audio.S24_32BE, width: 4},
		{name: "U20LE", format: audio.U20LE, width: 3},
		{name: "F64BE", format: audio.F64BE, width: 8},
	}
	for _, test := range tests {
		f, err := audio.ParseFormat(test.name)
		assert.Nil(t, err)
		assert.Equal(t, test.format, f)
		assert.Equal(t, test.name, f.String())
		assert.Equal(t, test.width, f.Width())
	}
	_, err := audio.ParseFormat("UNKNOWN")
	assert.True(t, errors.Is(err, audio.ErrFormat))
	assert.Equal(t, "Format(100)", audio.Format(100).String())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		description string
		modify      func(*audio.RawInfo)
		expected    error
	}{
		{
			description: "default",
			modify:      func(*audio.RawInfo) {},
		},
		{
			description: "unknown format",
			modify:      func(i *audio.RawInfo) { i.Format = audio.Unknown },
			expected:    audio.ErrFormat,
		},
		{
			description: "unknown layout",
			modify:      func(i *audio.RawInfo) { i.Layout = 5 },
			expected:    audio.ErrLayout,
		},
		{
			description: "zero rate",
			modify:      func(i *audio.RawInfo) { i.Rate = 0 },
			expected:    audio.ErrRate,
		},
		{
			description: "zero channels",
			modify:      func(i *audio.RawInfo) { i.Channels = 0 },
			expected:    audio.ErrChannels,
		},
	}
	for _, test := range tests {
		info := audio.DefaultRawInfo()
		test.modify(&info)
		err := info.Validate()
		if test.expected == nil {
			assert.Nil(t, err, test.description)
			continue
		}
		assert.True(t, errors.Is(err, test.expected), test.description)
	}
}

func TestMarshal(t *testing.T) {
	info := audio.RawInfo{
		Format:      audio.F32,
		Flags:       audio.FlagUnpositioned,
		Layout:      audio.NonInterleaved,
		Rate:        48000,
		Channels:    6,
		ChannelMask: 0x3f,
	}
	b, err := info.MarshalBinary()
	assert.Nil(t, err)
	assert.Equal(t, 24, len(b))

	var decoded audio.RawInfo
	assert.Nil(t, decoded.UnmarshalBinary(b))
	assert.Equal(t, info, decoded)
	assert.Equal(t, 24, decoded.FrameSize())
	assert.Equal(t, "F32LE 48000Hz 6ch non-interleaved", decoded.String())

	err = decoded.UnmarshalBinary(b[:20])
	assert.True(t, errors.Is(err, audio.ErrSize))

	invalid := audio.RawInfo{Format: audio.S16}
	b, _ = invalid.MarshalBinary()
	assert.True(t, errors.Is(decoded.UnmarshalBinary(b), audio.ErrRate))
	assert.Equal(t, info, decoded)
}

func TestProperty(t *testing.T) {
	info := audio.DefaultRawInfo()
	v, err := info.Property(audio.PropRate)
	assert.Nil(t, err)
	assert.Equal(t, []byte{0x44, 0xac, 0, 0}, v)

	assert.Nil(t, info.SetProperty(audio.PropChannels, []byte{1, 0, 0, 0}))
	assert.Equal(t, uint32(1), info.Channels)
	assert.Nil(t, info.SetProperty(audio.PropFormat, []byte{byte(audio.F64LE), 0, 0, 0}))
	assert.Equal(t, audio.F64, info.Format)

	// invalid value leaves info unchanged.
	err = info.SetProperty(audio.PropRate, []byte{0, 0, 0, 0})
	assert.True(t, errors.Is(err, audio.ErrRate))
	assert.Equal(t, uint32(44100), info.Rate)

	_, err = info.Property("volume")
	assert.True(t, errors.Is(err, audio.ErrProperty))
	err = info.SetProperty(audio.PropRate, []byte{1})
	assert.True(t, errors.Is(err, audio.ErrSize))
}
