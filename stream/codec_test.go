package stream_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"pipelined.dev/graph/audio"
	"pipelined.dev/graph/buffer"
	"pipelined.dev/graph/stream"
)

var samples = []float64{0, 0.5, -0.5, 0.25}

func stereo(f audio.Format) audio.RawInfo {
	info := audio.DefaultRawInfo()
	info.Format = f
	return info
}

func packetTypes(t *testing.T, b *buffer.Buffer) []buffer.Type {
	t.Helper()
	var types []buffer.Type
	it := b.Iter(buffer.Version)
	for it.Next() {
		types = append(types, it.Type())
	}
	require.NoError(t, it.Err())
	return types
}

// memfd returns anonymous file with provided content.
func memfd(t *testing.T, content []byte) int {
	t.Helper()
	fd, err := unix.MemfdCreate("stream-test", unix.MFD_CLOEXEC)
	require.NoError(t, err)
	_, err = unix.Write(fd, content)
	require.NoError(t, err)
	return fd
}

func TestRoundTrip(t *testing.T) {
	for _, f := range []audio.Format{audio.S16LE, audio.F32LE, audio.F64LE} {
		t.Run(f.String(), func(t *testing.T) {
			e, err := stream.NewEncoder(buffer.Version, stereo(f))
			require.NoError(t, err)
			d := stream.NewDecoder(buffer.Version)

			first, err := e.Encode(samples)
			require.NoError(t, err)
			assert.Equal(t, []buffer.Type{buffer.FormatChange, buffer.FDPayload}, packetTypes(t, first))
			second, err := e.Encode(samples)
			require.NoError(t, err)
			assert.Equal(t, []buffer.Type{buffer.FDPayload}, packetTypes(t, second))
			h, err := second.Header(buffer.Version)
			require.NoError(t, err)
			assert.Equal(t, uint32(1), h.Seq)
			assert.Equal(t, int64(2), h.PTS)

			dst := make([]float64, 8)
			n, err := d.Decode(first, dst)
			require.NoError(t, err)
			assert.Equal(t, samples, dst[:n])
			assert.True(t, first.Released())
			info, ok := d.Info()
			assert.True(t, ok)
			assert.Equal(t, stereo(f), info)

			n, err = d.Decode(second, dst)
			require.NoError(t, err)
			assert.Equal(t, samples, dst[:n])
		})
	}
}

func TestPropertyChange(t *testing.T) {
	format, err := stereo(audio.F64LE).MarshalBinary()
	require.NoError(t, err)
	content := make([]byte, 16)

	bb := buffer.NewBuilder(buffer.Version)
	require.NoError(t, bb.AddFormatChange(buffer.Format{ID: stream.FormatID, Format: format}))
	require.NoError(t, bb.AddPropertyChange(buffer.Property{Key: audio.PropChannels, Value: []byte{1, 0, 0, 0}}))
	index, err := bb.AddFD(memfd(t, content))
	require.NoError(t, err)
	require.NoError(t, bb.AddFDPayload(buffer.FD{Index: int32(index), Size: uint64(len(content))}))
	b, err := bb.End()
	require.NoError(t, err)

	d := stream.NewDecoder(buffer.Version)
	n, err := d.Decode(b, make([]float64, 2))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	info, _ := d.Info()
	assert.Equal(t, uint32(1), info.Channels)
}

func TestDecodeErrors(t *testing.T) {
	// payload before format.
	bb := buffer.NewBuilder(buffer.Version)
	index, err := bb.AddFD(memfd(t, make([]byte, 8)))
	require.NoError(t, err)
	require.NoError(t, bb.AddFDPayload(buffer.FD{Index: int32(index), Size: 8}))
	b, err := bb.End()
	require.NoError(t, err)
	_, err = stream.NewDecoder(buffer.Version).Decode(b, make([]float64, 8))
	assert.True(t, errors.Is(err, stream.ErrNoFormat))
	assert.True(t, b.Released())

	// payload doesn't fit.
	e, err := stream.NewEncoder(buffer.Version, stereo(audio.F32LE))
	require.NoError(t, err)
	b, err = e.Encode(samples)
	require.NoError(t, err)
	_, err = stream.NewDecoder(buffer.Version).Decode(b, make([]float64, 2))
	assert.True(t, errors.Is(err, stream.ErrOverflow))

	format, err := stereo(audio.F32LE).MarshalBinary()
	require.NoError(t, err)
	bb = buffer.NewBuilder(buffer.Version)
	require.NoError(t, bb.AddFormatChange(buffer.Format{ID: stream.FormatID, Format: format}))
	index, err = bb.AddFD(memfd(t, make([]byte, 8)))
	require.NoError(t, err)
	// partial trailing sample.
	require.NoError(t, bb.AddFDPayload(buffer.FD{Index: int32(index), Size: 7}))
	b, err = bb.End()
	require.NoError(t, err)
	_, err = stream.NewDecoder(buffer.Version).Decode(b, make([]float64, 8))
	assert.True(t, errors.Is(err, buffer.ErrMalformed))
	assert.True(t, b.Released())

	// unknown format id.
	bb = buffer.NewBuilder(buffer.Version)
	require.NoError(t, bb.AddFormatChange(buffer.Format{ID: 7, Format: format}))
	b, err = bb.End()
	require.NoError(t, err)
	_, err = stream.NewDecoder(buffer.Version).Decode(b, nil)
	assert.True(t, errors.Is(err, stream.ErrUnsupported))
}

func TestUnsupported(t *testing.T) {
	_, err := stream.NewEncoder(buffer.Version, stereo(audio.S24LE))
	assert.True(t, errors.Is(err, stream.ErrUnsupported))

	info := stereo(audio.F32LE)
	info.Layout = audio.NonInterleaved
	_, err = stream.NewEncoder(buffer.Version, info)
	assert.True(t, errors.Is(err, stream.ErrUnsupported))

	info.Rate = 0
	_, err = stream.NewEncoder(buffer.Version, info)
	assert.True(t, errors.Is(err, audio.ErrRate))
}
