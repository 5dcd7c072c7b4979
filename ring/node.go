package ring

import (
	"context"
	"errors"
	"fmt"
	"io"

	"pipelined.dev/graph"
	"pipelined.dev/graph/pool"
)

var (
	// ErrOverrun is returned when sink receives a block and all slots
	// are in use.
	ErrOverrun = errors.New("ring overrun")
	// ErrBlockSize is returned when ring slots and pool blocks differ in
	// size.
	ErrBlockSize = errors.New("ring slot and pool block sizes differ")
	// ErrNoPort is returned when node doesn't have required port.
	ErrNoPort = errors.New("node has no port")
	// ErrUnknownBuffer is returned when buffer id doesn't point to block.
	ErrUnknownBuffer = errors.New("unknown buffer")
)

type (
	// Sink copies received blocks into the ring and reuses them right
	// away. It's the producer of the ring and has a single input port.
	// Worker consumes the ring with Next and Release.
	Sink struct {
		ring *Ring
		pool *pool.Pool
		err  error
	}

	// Source publishes blocks committed to the ring. It's the consumer
	// of the ring and has a single output port. Worker fills the ring
	// with Acquire and Commit.
	Source struct {
		ring      *Ring
		pool      *pool.Pool
		underruns int
		done      bool
		err       error
	}
)

// NewSink returns sink that takes blocks of provided pool.
func NewSink(r *Ring, p *pool.Pool) (*Sink, error) {
	if r.BlockSize() != p.BlockSize() {
		return nil, fmt.Errorf("%w: %d and %d", ErrBlockSize, r.BlockSize(), p.BlockSize())
	}
	return &Sink{
		ring: r,
		pool: p,
	}, nil
}

// Ring returns the ring filled by the sink.
func (s *Sink) Ring() *Ring {
	return s.ring
}

// Err returns the error that failed the sink.
func (s *Sink) Err() error {
	return s.err
}

// Wait blocks until the sink can take the next block without overrun.
// It's called by the driver between scheduling passes.
func (s *Sink) Wait(ctx context.Context) error {
	return s.ring.Reserve(ctx)
}

// Close tells the worker that no more blocks will come.
func (s *Sink) Close() {
	s.ring.Close()
}

// ProcessInput copies received block into free slot.
func (s *Sink) ProcessInput(n *graph.Node) graph.Result {
	in, ok := n.Port(graph.Input, 0)
	if !ok {
		s.err = fmt.Errorf("ring %v: %w", n, ErrNoPort)
		return graph.Error
	}
	pio := in.IO()
	if pio.Status != graph.HaveBuffer {
		pio.Status = graph.NeedBuffer
		return graph.NeedBuffer
	}
	block, ok := s.pool.Get(pio.BufferID)
	if !ok {
		s.err = fmt.Errorf("ring %v: %w %d", n, ErrUnknownBuffer, pio.BufferID)
		return graph.Error
	}
	i, slot, ok := s.ring.TryAcquire()
	if !ok {
		s.err = fmt.Errorf("ring %v: %w", n, ErrOverrun)
		return graph.Error
	}
	s.ring.Commit(i, copy(slot, block.Data))
	if r := in.Peer().ReuseBuffer(pio.BufferID); r == graph.Error {
		s.err = fmt.Errorf("ring %v: reuse %d failed", n, pio.BufferID)
		return graph.Error
	}
	pio.Status = graph.NeedBuffer
	return graph.NeedBuffer
}

// ProcessOutput implements graph.Processor. Sink has no outputs.
func (s *Sink) ProcessOutput(*graph.Node) graph.Result {
	return graph.OK
}

// NewSource returns source that publishes ring slots as blocks of
// provided pool.
func NewSource(r *Ring, p *pool.Pool) (*Source, error) {
	if r.BlockSize() != p.BlockSize() {
		return nil, fmt.Errorf("%w: %d and %d", ErrBlockSize, r.BlockSize(), p.BlockSize())
	}
	return &Source{
		ring: r,
		pool: p,
	}, nil
}

// Ring returns the ring consumed by the source.
func (s *Source) Ring() *Ring {
	return s.ring
}

// Pool returns pool of published blocks.
func (s *Source) Pool() *pool.Pool {
	return s.pool
}

// Done returns true when the ring was closed and drained.
func (s *Source) Done() bool {
	return s.done
}

// Underruns returns how many times the source had nothing to publish.
func (s *Source) Underruns() int {
	return s.underruns
}

// Err returns the error that failed the source.
func (s *Source) Err() error {
	return s.err
}

// Wait blocks until the source has a block to publish or the ring is
// drained. It's called by the driver between scheduling passes.
func (s *Source) Wait(ctx context.Context) error {
	return s.ring.Wait(ctx)
}

// ProcessInput implements graph.Processor. Source has no inputs.
func (s *Source) ProcessInput(*graph.Node) graph.Result {
	return graph.OK
}

// ProcessOutput publishes the next committed slot. OK is returned and
// demand stays pending when the ring is empty.
func (s *Source) ProcessOutput(n *graph.Node) graph.Result {
	out, ok := n.Port(graph.Output, 0)
	if !ok {
		s.err = fmt.Errorf("ring %v: %w", n, ErrNoPort)
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
	i, slot, err := s.ring.TryNext()
	switch err {
	case nil:
	case ErrEmpty:
		s.pool.Release(id)
		s.underruns++
		return graph.OK
	case io.EOF:
		s.pool.Release(id)
		s.done = true
		pio.Status = graph.OK
		return graph.OK
	}
	block.Data = block.Data[:copy(block.Data, slot)]
	s.ring.Release(i)
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
