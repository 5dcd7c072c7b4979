// Package wav provides graph nodes that read and write wav files.
package wav

import (
	"errors"
	"fmt"
	"io"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"pipelined.dev/graph"
	"pipelined.dev/graph/pool"
)

type (
	// Source reads blocks from wav file. It has a single output port and
	// publishes id of decoded block on it. Block is returned to the pool
	// when consumer reuses it.
	Source struct {
		decoder  *wav.Decoder
		pool     *pool.Pool
		ib       *audio.IntBuffer
		bitDepth int
		done     bool
		err      error
	}

	// Sink saves blocks to wav file. It has a single input port.
	Sink struct {
		encoder  *wav.Encoder
		pool     *pool.Pool
		ib       *audio.IntBuffer
		bitDepth int
		frames   int
		err      error
	}
)

var (
	// ErrInvalidFile is returned when wav file can't be decoded.
	ErrInvalidFile = errors.New("invalid wav file")
	// ErrUnsupportedBitDepth is returned when unsupported bit depth is used.
	ErrUnsupportedBitDepth = errors.New("only 16, 24 and 32 bit depth is supported")
	// ErrUnknownBuffer is returned when buffer id doesn't point to block.
	ErrUnknownBuffer = errors.New("unknown buffer")
	// ErrNoPort is returned when node doesn't have required port.
	ErrNoPort = errors.New("node has no port")
)

func supported(bitDepth int) bool {
	return bitDepth == 16 || bitDepth == 24 || bitDepth == 32
}

// NewSource creates a new wav source. Pool of provided number of blocks
// is allocated, every block holds provided number of frames.
func NewSource(r io.ReadSeeker, blocks, frames int) (*Source, error) {
	decoder := wav.NewDecoder(r)
	if !decoder.IsValidFile() {
		return nil, ErrInvalidFile
	}
	bitDepth := int(decoder.BitDepth)
	if !supported(bitDepth) {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedBitDepth, bitDepth)
	}
	format := decoder.Format()
	return &Source{
		decoder:  decoder,
		pool:     pool.New(blocks, frames, format),
		bitDepth: bitDepth,
		ib: &audio.IntBuffer{
			Format:         format,
			Data:           make([]int, frames*format.NumChannels),
			SourceBitDepth: bitDepth,
		},
	}, nil
}

// Pool returns pool of decoded blocks.
func (s *Source) Pool() *pool.Pool {
	return s.pool
}

// BitDepth returns bit depth of the file.
func (s *Source) BitDepth() int {
	return s.bitDepth
}

// Done returns true when the whole file was read.
func (s *Source) Done() bool {
	return s.done
}

// Err returns the error that failed the source.
func (s *Source) Err() error {
	return s.err
}

// ProcessInput implements graph.Processor. Source has no inputs.
func (s *Source) ProcessInput(*graph.Node) graph.Result {
	return graph.OK
}

// ProcessOutput decodes the next block. OK is returned when there are no
// more samples or all blocks are in use.
func (s *Source) ProcessOutput(n *graph.Node) graph.Result {
	out, ok := n.Port(graph.Output, 0)
	if !ok {
		s.err = fmt.Errorf("source %v: %w", n, ErrNoPort)
		return graph.Error
	}
	pio := out.IO()
	if s.done {
		pio.Status = graph.OK
		return graph.OK
	}
	id, block, ok := s.pool.Acquire()
	if !ok {
		return graph.OK
	}
	read, err := s.decoder.PCMBuffer(s.ib)
	if err != nil && !errors.Is(err, io.EOF) {
		s.pool.Release(id)
		s.err = fmt.Errorf("decode: %w", err)
		return graph.Error
	}
	if read == 0 {
		s.pool.Release(id)
		s.done = true
		pio.Status = graph.OK
		return graph.OK
	}
	block.Data = block.Data[:pool.IntToFloat(block.Data, s.ib.Data[:read], s.bitDepth)]
	pio.BufferID = id
	pio.Status = graph.HaveBuffer
	return graph.HaveBuffer
}

// ReuseBuffer implements graph.BufferReuser.
func (s *Source) ReuseBuffer(_ *graph.Port, id uint32) graph.Result {
	if !s.pool.Release(id) {
		return graph.Error
	}
	return graph.OK
}

// NewSink creates new wav sink that takes blocks from provided pool.
func NewSink(w io.WriteSeeker, p *pool.Pool, bitDepth int) (*Sink, error) {
	if !supported(bitDepth) {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedBitDepth, bitDepth)
	}
	format := p.Format()
	return &Sink{
		encoder:  wav.NewEncoder(w, format.SampleRate, bitDepth, format.NumChannels, 1),
		pool:     p,
		bitDepth: bitDepth,
		ib: &audio.IntBuffer{
			Format:         format,
			Data:           make([]int, p.BlockSize()),
			SourceBitDepth: bitDepth,
		},
	}, nil
}

// ProcessInput writes received block and reuses it upstream. NeedBuffer
// is returned to request the next block.
func (s *Sink) ProcessInput(n *graph.Node) graph.Result {
	in, ok := n.Port(graph.Input, 0)
	if !ok {
		s.err = fmt.Errorf("sink %v: %w", n, ErrNoPort)
		return graph.Error
	}
	pio := in.IO()
	if pio.Status != graph.HaveBuffer {
		pio.Status = graph.NeedBuffer
		return graph.NeedBuffer
	}
	block, ok := s.pool.Get(pio.BufferID)
	if !ok {
		s.err = fmt.Errorf("sink %v: %w %d", n, ErrUnknownBuffer, pio.BufferID)
		return graph.Error
	}
	s.ib.Data = s.ib.Data[:cap(s.ib.Data)]
	s.ib.Data = s.ib.Data[:pool.FloatToInt(s.ib.Data, block.Data, s.bitDepth)]
	if err := s.encoder.Write(s.ib); err != nil {
		s.err = fmt.Errorf("encode: %w", err)
		return graph.Error
	}
	s.frames += len(s.ib.Data) / s.ib.Format.NumChannels
	if r := in.Peer().ReuseBuffer(pio.BufferID); r == graph.Error {
		s.err = fmt.Errorf("sink %v: reuse %d failed", n, pio.BufferID)
		return graph.Error
	}
	pio.Status = graph.NeedBuffer
	return graph.NeedBuffer
}

// ProcessOutput implements graph.Processor. Sink has no outputs.
func (s *Sink) ProcessOutput(*graph.Node) graph.Result {
	return graph.OK
}

// Frames returns number of written frames.
func (s *Sink) Frames() int {
	return s.frames
}

// Err returns the error that failed the sink.
func (s *Sink) Err() error {
	return s.err
}

// Close flushes encoder and finalizes wav header.
func (s *Sink) Close() error {
	return s.encoder.Close()
}
