// Package mixer provides a node that mixes multiple inputs into a single
// output.
package mixer

import (
	"errors"
	"fmt"

	"github.com/go-audio/audio"

	"pipelined.dev/graph"
	"pipelined.dev/graph/pool"
)

var (
	// ErrFormat is returned when input format doesn't match the output.
	ErrFormat = errors.New("input format mismatch")
	// ErrNoInput is returned when input port has no pool assigned.
	ErrNoInput = errors.New("no pool for input")
	// ErrExhausted is returned when all output blocks are in use.
	ErrExhausted = errors.New("no free output blocks")
	// ErrNoPort is returned when node doesn't have output port.
	ErrNoPort = errors.New("node has no port")
)

// input tracks the state of a single input port.
type input struct {
	pool      *pool.Pool
	requested bool
	ended     bool
}

// Mixer averages samples of its inputs. Input ports are matched to pools
// in order of addition by port id. Mixer is driven by pull: inputs that
// reached the end are skipped and mixing continues until all of them
// are done.
type Mixer struct {
	pool   *pool.Pool
	inputs []input
	counts []int
	err    error
}

// New returns mixer with output pool of provided size.
func New(format *audio.Format, blocks, frames int) *Mixer {
	p := pool.New(blocks, frames, format)
	return &Mixer{
		pool:   p,
		counts: make([]int, p.BlockSize()),
	}
}

// Pool returns pool of mixed blocks.
func (m *Mixer) Pool() *pool.Pool {
	return m.pool
}

// AddInput assigns pool to the next input port.
func (m *Mixer) AddInput(p *pool.Pool) error {
	in, out := p.Format(), m.pool.Format()
	if in.NumChannels != out.NumChannels || in.SampleRate != out.SampleRate {
		return fmt.Errorf("%w: %d channels %d Hz, expected %d channels %d Hz",
			ErrFormat, in.NumChannels, in.SampleRate, out.NumChannels, out.SampleRate)
	}
	m.inputs = append(m.inputs, input{pool: p})
	return nil
}

// Done returns true when all inputs reached the end.
func (m *Mixer) Done() bool {
	for i := range m.inputs {
		if !m.inputs[i].ended {
			return false
		}
	}
	return true
}

// Err returns the error that failed the mixer.
func (m *Mixer) Err() error {
	return m.err
}

// ProcessInput mixes blocks of all inputs.
func (m *Mixer) ProcessInput(n *graph.Node) graph.Result {
	return m.mix(n)
}

// ProcessOutput mixes blocks left by inputs that ran ahead of others and
// requests new blocks otherwise.
func (m *Mixer) ProcessOutput(n *graph.Node) graph.Result {
	pending := false
	for _, p := range n.Ports(graph.Input) {
		if p.IO().Status == graph.HaveBuffer {
			pending = true
			break
		}
	}
	if pending {
		return m.mix(n)
	}
	r := m.request(n)
	if r == graph.OK {
		out, ok := n.Port(graph.Output, 0)
		if !ok {
			m.err = fmt.Errorf("mixer %v: %w", n, ErrNoPort)
			return graph.Error
		}
		out.IO().Status = graph.OK
	}
	return r
}

// request asks inputs that are not done for the next block. OK is
// returned if all inputs are done.
func (m *Mixer) request(n *graph.Node) graph.Result {
	r := graph.OK
	for _, p := range n.Ports(graph.Input) {
		in := m.input(p)
		if in == nil || in.ended {
			continue
		}
		pio := p.IO()
		if pio.Status == graph.OK && in.requested {
			in.ended = true
			continue
		}
		if pio.Status != graph.HaveBuffer {
			pio.Status = graph.NeedBuffer
			in.requested = true
		}
		r = graph.NeedBuffer
	}
	return r
}

func (m *Mixer) input(p *graph.Port) *input {
	if int(p.ID()) >= len(m.inputs) {
		return nil
	}
	return &m.inputs[p.ID()]
}

func (m *Mixer) mix(n *graph.Node) graph.Result {
	out, ok := n.Port(graph.Output, 0)
	if !ok {
		m.err = fmt.Errorf("mixer %v: %w", n, ErrNoPort)
		return graph.Error
	}
	id, block, ok := m.pool.Acquire()
	if !ok {
		m.err = fmt.Errorf("mixer %v: %w", n, ErrExhausted)
		return graph.Error
	}
	for i := range block.Data {
		block.Data[i] = 0
		m.counts[i] = 0
	}

	// counts holds number of blocks that cover every sample.
	length, signals := 0, 0
	for _, p := range n.Ports(graph.Input) {
		pio := p.IO()
		if pio.Status != graph.HaveBuffer {
			continue
		}
		in := m.input(p)
		if in == nil {
			m.pool.Release(id)
			m.err = fmt.Errorf("mixer %v port %v: %w", n, p, ErrNoInput)
			return graph.Error
		}
		b, ok := in.pool.Get(pio.BufferID)
		if !ok {
			m.pool.Release(id)
			m.err = fmt.Errorf("mixer %v port %v: unknown buffer %d", n, p, pio.BufferID)
			return graph.Error
		}
		l := min(len(b.Data), len(block.Data))
		for i := 0; i < l; i++ {
			block.Data[i] += b.Data[i]
			m.counts[i]++
		}
		length = max(length, l)
		signals++
		if r := p.Peer().ReuseBuffer(pio.BufferID); r == graph.Error {
			m.pool.Release(id)
			m.err = fmt.Errorf("mixer %v port %v: reuse %d failed", n, p, pio.BufferID)
			return graph.Error
		}
		pio.Status = graph.NeedBuffer
		in.requested = true
	}
	if signals == 0 {
		m.pool.Release(id)
		r := m.request(n)
		if r == graph.OK {
			out.IO().Status = graph.OK
		}
		return r
	}
	for i := range block.Data[:length] {
		if m.counts[i] > 1 {
			block.Data[i] /= float64(m.counts[i])
		}
	}
	block.Data = block.Data[:length]
	out.IO().BufferID = id
	out.IO().Status = graph.HaveBuffer
	return graph.HaveBuffer
}

// ReuseBuffer implements graph.BufferReuser.
func (m *Mixer) ReuseBuffer(_ *graph.Port, id uint32) graph.Result {
	if !m.pool.Release(id) {
		return graph.Error
	}
	return graph.OK
}
