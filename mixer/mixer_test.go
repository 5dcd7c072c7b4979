package mixer_test

import (
	"errors"
	"testing"

	"github.com/go-audio/audio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipelined.dev/graph"
	"pipelined.dev/graph/mixer"
	"pipelined.dev/graph/pool"
)

var format = &audio.Format{NumChannels: 1, SampleRate: 8000}

// track produces blocks filled with constant value.
type track struct {
	pool   *pool.Pool
	blocks int
	length int
	value  float64
}

func (t *track) ProcessInput(*graph.Node) graph.Result {
	return graph.OK
}

func (t *track) ProcessOutput(n *graph.Node) graph.Result {
	out, _ := n.Port(graph.Output, 0)
	if t.blocks == 0 {
		out.IO().Status = graph.OK
		return graph.OK
	}
	id, b, ok := t.pool.Acquire()
	if !ok {
		return graph.OK
	}
	b.Data = b.Data[:t.length]
	for i := range b.Data {
		b.Data[i] = t.value
	}
	t.blocks--
	out.IO().BufferID = id
	out.IO().Status = graph.HaveBuffer
	return graph.HaveBuffer
}

func (t *track) ReuseBuffer(_ *graph.Port, id uint32) graph.Result {
	if !t.pool.Release(id) {
		return graph.Error
	}
	return graph.OK
}

// collector records mixed blocks.
type collector struct {
	pool   *pool.Pool
	blocks [][]float64
}

func (c *collector) ProcessInput(n *graph.Node) graph.Result {
	in, _ := n.Port(graph.Input, 0)
	if in.IO().Status == graph.HaveBuffer {
		b, ok := c.pool.Get(in.IO().BufferID)
		if !ok {
			return graph.Error
		}
		c.blocks = append(c.blocks, append([]float64(nil), b.Data...))
		if in.Peer().ReuseBuffer(in.IO().BufferID) != graph.OK {
			return graph.Error
		}
	}
	in.IO().Status = graph.NeedBuffer
	return graph.NeedBuffer
}

func (c *collector) ProcessOutput(*graph.Node) graph.Result {
	return graph.OK
}

func TestMixer(t *testing.T) {
	tests := []struct {
		description string
		tracks      []*track
		expected    [][]float64
	}{
		{
			description: "equal tracks",
			tracks: []*track{
				{blocks: 2, length: 4, value: 0.5},
				{blocks: 2, length: 4, value: 0.25},
			},
			expected: [][]float64{
				{0.375, 0.375, 0.375, 0.375},
				{0.375, 0.375, 0.375, 0.375},
			},
		},
		{
			description: "shorter track",
			tracks: []*track{
				{blocks: 3, length: 4, value: 0.5},
				{blocks: 1, length: 4, value: 0.25},
			},
			expected: [][]float64{
				{0.375, 0.375, 0.375, 0.375},
				{0.5, 0.5, 0.5, 0.5},
				{0.5, 0.5, 0.5, 0.5},
			},
		},
		{
			description: "shorter block",
			tracks: []*track{
				{blocks: 1, length: 4, value: 0.5},
				{blocks: 1, length: 2, value: 0.25},
				{blocks: 1, length: 2, value: 0},
			},
			expected: [][]float64{
				{0.25, 0.25, 0.5, 0.5},
			},
		},
	}
	for _, test := range tests {
		m := mixer.New(format, 2, 4)
		c := &collector{pool: m.Pool()}
		g := graph.New()
		mixNode, err := g.AddNode(m)
		require.NoError(t, err)
		sinkNode, err := g.AddNode(c)
		require.NoError(t, err)
		out, _ := mixNode.AddPort(graph.Output)
		in, _ := sinkNode.AddPort(graph.Input)
		_, err = g.Link(out, in)
		require.NoError(t, err)
		for _, tr := range test.tracks {
			tr.pool = pool.New(2, 4, format)
			require.NoError(t, m.AddInput(tr.pool))
			n, err := g.AddNode(tr)
			require.NoError(t, err)
			out, _ := n.AddPort(graph.Output)
			in, _ := mixNode.AddPort(graph.Input)
			_, err = g.Link(out, in)
			require.NoError(t, err)
		}

		s := graph.NewScheduler(g)
		for i := 0; !m.Done(); i++ {
			require.Less(t, i, 20, test.description)
			require.NoError(t, s.Pull(sinkNode), test.description)
		}
		assert.Equal(t, test.expected, c.blocks, test.description)
		assert.NoError(t, m.Err(), test.description)
		assert.Equal(t, 2, m.Pool().Available(), test.description)
		for _, tr := range test.tracks {
			assert.Equal(t, 2, tr.pool.Available(), test.description)
		}
	}
}

func TestErrors(t *testing.T) {
	m := mixer.New(format, 1, 4)
	err := m.AddInput(pool.New(1, 4, &audio.Format{NumChannels: 2, SampleRate: 8000}))
	assert.True(t, errors.Is(err, mixer.ErrFormat))

	g := graph.New()
	n, err := g.AddNode(m)
	require.NoError(t, err)
	assert.Equal(t, graph.Error, m.ProcessInput(n))
	assert.True(t, errors.Is(m.Err(), mixer.ErrNoPort))

	// input port without pool.
	n.AddPort(graph.Output)
	in, _ := n.AddPort(graph.Input)
	in.IO().Status = graph.HaveBuffer
	assert.Equal(t, graph.Error, m.ProcessInput(n))
	assert.True(t, errors.Is(m.Err(), mixer.ErrNoInput))
	assert.Equal(t, 1, m.Pool().Available())
}
