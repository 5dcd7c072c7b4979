// Package repeat provides a node that sends every block to multiple
// outputs.
package repeat

import (
	"errors"
	"fmt"

	"pipelined.dev/graph"
)

// ErrNoPort is returned when node doesn't have input port.
var ErrNoPort = errors.New("node has no port")

// Repeater publishes received block on all linked outputs. Block is
// reused upstream after every output reused it. Repeater is driven by
// push, so all branches consume the block in the same traversal.
type Repeater struct {
	refs int
	id   uint32
	err  error
}

// New returns a new repeater.
func New() *Repeater {
	return &Repeater{}
}

// Err returns the error that failed the repeater.
func (r *Repeater) Err() error {
	return r.err
}

// ProcessInput publishes received block on linked outputs.
func (r *Repeater) ProcessInput(n *graph.Node) graph.Result {
	in, ok := n.Port(graph.Input, 0)
	if !ok {
		r.err = fmt.Errorf("repeat %v: %w", n, ErrNoPort)
		return graph.Error
	}
	iio := in.IO()
	if iio.Status != graph.HaveBuffer {
		for _, p := range n.Ports(graph.Output) {
			p.IO().Status = graph.OK
		}
		return graph.OK
	}
	r.refs = 0
	for _, p := range n.Ports(graph.Output) {
		if p.Peer() == nil {
			continue
		}
		p.IO().BufferID = iio.BufferID
		p.IO().Status = graph.HaveBuffer
		r.refs++
	}
	if r.refs == 0 {
		if in.Peer().ReuseBuffer(iio.BufferID) == graph.Error {
			r.err = fmt.Errorf("repeat %v: reuse %d failed", n, iio.BufferID)
			return graph.Error
		}
		iio.Status = graph.NeedBuffer
		return graph.NeedBuffer
	}
	r.id = iio.BufferID
	return graph.HaveBuffer
}

// ProcessOutput requests the next block once all outputs reused the
// current one.
func (r *Repeater) ProcessOutput(n *graph.Node) graph.Result {
	if r.refs > 0 {
		return graph.OK
	}
	in, ok := n.Port(graph.Input, 0)
	if !ok {
		r.err = fmt.Errorf("repeat %v: %w", n, ErrNoPort)
		return graph.Error
	}
	in.IO().Status = graph.NeedBuffer
	return graph.NeedBuffer
}

// ReuseBuffer implements graph.BufferReuser. The last reuse is forwarded
// upstream.
func (r *Repeater) ReuseBuffer(p *graph.Port, id uint32) graph.Result {
	if r.refs == 0 || id != r.id {
		return graph.Error
	}
	r.refs--
	if r.refs > 0 {
		return graph.OK
	}
	in, ok := p.Node().Port(graph.Input, 0)
	if !ok || in.Peer() == nil {
		return graph.Error
	}
	return in.Peer().ReuseBuffer(id)
}
