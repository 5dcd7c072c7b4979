package repeat_test

import (
	"errors"
	"testing"

	"github.com/go-audio/audio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipelined.dev/graph"
	"pipelined.dev/graph/pool"
	"pipelined.dev/graph/repeat"
)

// source produces numbered blocks.
type source struct {
	pool   *pool.Pool
	blocks int
	next   float64
}

func (s *source) ProcessInput(*graph.Node) graph.Result {
	return graph.OK
}

func (s *source) ProcessOutput(n *graph.Node) graph.Result {
	out, _ := n.Port(graph.Output, 0)
	if s.blocks == 0 {
		out.IO().Status = graph.OK
		return graph.OK
	}
	id, b, ok := s.pool.Acquire()
	if !ok {
		return graph.OK
	}
	s.next++
	b.Data[0] = s.next
	s.blocks--
	out.IO().BufferID = id
	out.IO().Status = graph.HaveBuffer
	return graph.HaveBuffer
}

func (s *source) ReuseBuffer(_ *graph.Port, id uint32) graph.Result {
	if !s.pool.Release(id) {
		return graph.Error
	}
	return graph.OK
}

// branch records the first sample of received blocks.
type branch struct {
	pool   *pool.Pool
	values []float64
}

func (b *branch) ProcessInput(n *graph.Node) graph.Result {
	in, _ := n.Port(graph.Input, 0)
	if in.IO().Status == graph.HaveBuffer {
		block, ok := b.pool.Get(in.IO().BufferID)
		if !ok {
			return graph.Error
		}
		b.values = append(b.values, block.Data[0])
		if in.Peer().ReuseBuffer(in.IO().BufferID) != graph.OK {
			return graph.Error
		}
	}
	in.IO().Status = graph.NeedBuffer
	return graph.NeedBuffer
}

func (b *branch) ProcessOutput(*graph.Node) graph.Result {
	return graph.OK
}

func TestRepeat(t *testing.T) {
	tests := []struct {
		description string
		branches    int
		unlinked    int
	}{
		{description: "single branch", branches: 1},
		{description: "two branches", branches: 2},
		{description: "unlinked output", branches: 2, unlinked: 1},
		{description: "no branches", unlinked: 1},
	}
	for _, test := range tests {
		p := pool.New(2, 4, &audio.Format{NumChannels: 1, SampleRate: 8000})
		src := &source{pool: p, blocks: 3}
		g := graph.New()
		srcNode, err := g.AddNode(src)
		require.NoError(t, err)
		repNode, err := g.AddNode(repeat.New())
		require.NoError(t, err)
		out, _ := srcNode.AddPort(graph.Output)
		in, _ := repNode.AddPort(graph.Input)
		_, err = g.Link(out, in)
		require.NoError(t, err)

		branches := make([]*branch, test.branches)
		for i := range branches {
			branches[i] = &branch{pool: p}
			n, err := g.AddNode(branches[i])
			require.NoError(t, err)
			out, _ := repNode.AddPort(graph.Output)
			in, _ := n.AddPort(graph.Input)
			_, err = g.Link(out, in)
			require.NoError(t, err)
		}
		for i := 0; i < test.unlinked; i++ {
			repNode.AddPort(graph.Output)
		}

		s := graph.NewScheduler(g)
		for i := 0; i < 4; i++ {
			require.NoError(t, s.Push(srcNode), test.description)
		}
		for _, b := range branches {
			assert.Equal(t, []float64{1, 2, 3}, b.values, test.description)
		}
		assert.Zero(t, src.blocks, test.description)
		assert.Equal(t, 2, p.Available(), test.description)
	}
}

func TestErrors(t *testing.T) {
	r := repeat.New()
	g := graph.New()
	n, err := g.AddNode(r)
	require.NoError(t, err)
	assert.Equal(t, graph.Error, r.ProcessInput(n))
	assert.True(t, errors.Is(r.Err(), repeat.ErrNoPort))
	assert.Equal(t, graph.Error, r.ProcessOutput(n))

	// nothing to reuse.
	out, _ := n.AddPort(graph.Output)
	assert.Equal(t, graph.Error, out.ReuseBuffer(0))
}
