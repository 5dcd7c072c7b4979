// Package mp3 provides graph node that encodes blocks into mp3 stream.
package mp3

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/viert/lame"

	"pipelined.dev/graph"
	"pipelined.dev/graph/pool"
)

const bitDepth = 16

var (
	// ErrNoPort is returned when node doesn't have required port.
	ErrNoPort = errors.New("node has no port")
	// ErrUnknownBuffer is returned when buffer id doesn't point to block.
	ErrUnknownBuffer = errors.New("unknown buffer")
	// ErrChannels is returned when more than two channels are provided.
	ErrChannels = errors.New("only mono and stereo are supported")
)

// Sink encodes received blocks as 16 bit samples. It has a single input
// port.
type Sink struct {
	wr     *lame.LameWriter
	pool   *pool.Pool
	ints   []int
	data   []byte
	frames int
	err    error
}

// NewSink creates mp3 sink that writes into w and takes blocks from
// provided pool.
func NewSink(w io.Writer, p *pool.Pool, bitRate, quality int) (*Sink, error) {
	format := p.Format()
	if format.NumChannels < 1 || format.NumChannels > 2 {
		return nil, fmt.Errorf("%w: %d", ErrChannels, format.NumChannels)
	}
	s := Sink{
		wr:   lame.NewWriter(w),
		pool: p,
		ints: make([]int, p.BlockSize()),
		data: make([]byte, 2*p.BlockSize()),
	}
	s.wr.Encoder.SetBitrate(bitRate)
	s.wr.Encoder.SetQuality(quality)
	s.wr.Encoder.SetNumChannels(format.NumChannels)
	s.wr.Encoder.SetInSamplerate(format.SampleRate)
	if format.NumChannels == 2 {
		s.wr.Encoder.SetMode(lame.JOINT_STEREO)
	}
	s.wr.Encoder.SetVBR(lame.VBR_RH)
	s.wr.Encoder.InitParams()
	return &s, nil
}

// ProcessInput encodes received block and reuses it upstream. NeedBuffer
// is returned to request the next block.
func (s *Sink) ProcessInput(n *graph.Node) graph.Result {
	in, ok := n.Port(graph.Input, 0)
	if !ok {
		s.err = fmt.Errorf("mp3 %v: %w", n, ErrNoPort)
		return graph.Error
	}
	pio := in.IO()
	if pio.Status != graph.HaveBuffer {
		pio.Status = graph.NeedBuffer
		return graph.NeedBuffer
	}
	block, ok := s.pool.Get(pio.BufferID)
	if !ok {
		s.err = fmt.Errorf("mp3 %v: %w %d", n, ErrUnknownBuffer, pio.BufferID)
		return graph.Error
	}
	samples := pool.FloatToInt(s.ints, block.Data, bitDepth)
	for i := 0; i < samples; i++ {
		binary.LittleEndian.PutUint16(s.data[2*i:], uint16(int16(s.ints[i])))
	}
	if _, err := s.wr.Write(s.data[:2*samples]); err != nil {
		s.err = fmt.Errorf("encode: %w", err)
		return graph.Error
	}
	s.frames += samples / block.Format.NumChannels
	if r := in.Peer().ReuseBuffer(pio.BufferID); r == graph.Error {
		s.err = fmt.Errorf("mp3 %v: reuse %d failed", n, pio.BufferID)
		return graph.Error
	}
	pio.Status = graph.NeedBuffer
	return graph.NeedBuffer
}

// ProcessOutput implements graph.Processor. Sink has no outputs.
func (s *Sink) ProcessOutput(*graph.Node) graph.Result {
	return graph.OK
}

// Frames returns number of encoded frames.
func (s *Sink) Frames() int {
	return s.frames
}

// Err returns the error that failed the sink.
func (s *Sink) Err() error {
	return s.err
}

// Close flushes encoder. Underlying writer is not closed.
func (s *Sink) Close() error {
	return s.wr.Close()
}
