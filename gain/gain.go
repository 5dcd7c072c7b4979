// Package gain provides in-place volume filter node.
package gain

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"

	"pipelined.dev/graph"
	"pipelined.dev/graph/pool"
)

var (
	// ErrNoPort is returned when node doesn't have required port.
	ErrNoPort = errors.New("node has no port")
	// ErrUnknownBuffer is returned when buffer id doesn't point to block.
	ErrUnknownBuffer = errors.New("unknown buffer")
)

// Filter multiplies samples of received blocks by gain factor. It has a
// single input and a single output port. Blocks are processed in place
// and forwarded downstream by id, reuse is forwarded upstream.
type Filter struct {
	pool   *pool.Pool
	factor atomic.Uint64
	err    error
}

// New returns filter that processes blocks of provided pool.
func New(p *pool.Pool, factor float64) *Filter {
	f := Filter{pool: p}
	f.SetFactor(factor)
	return &f
}

// SetFactor changes gain factor. It's safe to call it while the graph is
// scheduled.
func (f *Filter) SetFactor(factor float64) {
	f.factor.Store(math.Float64bits(factor))
}

// Factor returns current gain factor.
func (f *Filter) Factor() float64 {
	return math.Float64frombits(f.factor.Load())
}

// Err returns the error that failed the filter.
func (f *Filter) Err() error {
	return f.err
}

func (f *Filter) ports(n *graph.Node) (in, out *graph.Port, ok bool) {
	if in, ok = n.Port(graph.Input, 0); !ok {
		return
	}
	out, ok = n.Port(graph.Output, 0)
	return
}

// ProcessInput applies gain to received block and publishes it on the
// output. End of stream is passed through as OK.
func (f *Filter) ProcessInput(n *graph.Node) graph.Result {
	in, out, ok := f.ports(n)
	if !ok {
		f.err = fmt.Errorf("gain %v: %w", n, ErrNoPort)
		return graph.Error
	}
	iio, oio := in.IO(), out.IO()
	if iio.Status != graph.HaveBuffer {
		oio.Status = graph.OK
		return graph.OK
	}
	block, ok := f.pool.Get(iio.BufferID)
	if !ok {
		f.err = fmt.Errorf("gain %v: %w %d", n, ErrUnknownBuffer, iio.BufferID)
		return graph.Error
	}
	factor := f.Factor()
	for i := range block.Data {
		block.Data[i] *= factor
	}
	oio.BufferID = iio.BufferID
	oio.Status = graph.HaveBuffer
	iio.Status = graph.NeedBuffer
	return graph.HaveBuffer
}

// ProcessOutput requests the next block from upstream.
func (f *Filter) ProcessOutput(n *graph.Node) graph.Result {
	in, _, ok := f.ports(n)
	if !ok {
		f.err = fmt.Errorf("gain %v: %w", n, ErrNoPort)
		return graph.Error
	}
	in.IO().Status = graph.NeedBuffer
	return graph.NeedBuffer
}

// ReuseBuffer implements graph.BufferReuser. Block is returned to the
// node that produced it.
func (f *Filter) ReuseBuffer(p *graph.Port, id uint32) graph.Result {
	in, ok := p.Node().Port(graph.Input, 0)
	if !ok || in.Peer() == nil {
		return graph.Error
	}
	return in.Peer().ReuseBuffer(id)
}
