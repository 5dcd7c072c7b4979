package graph_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"pipelined.dev/graph"
	"pipelined.dev/graph/mock"
)

// plain is a processor that doesn't support buffer reuse.
type plain struct{}

func (plain) ProcessInput(*graph.Node) graph.Result  { return graph.OK }
func (plain) ProcessOutput(*graph.Node) graph.Result { return graph.OK }

func addNode(t *testing.T, g *graph.Graph, p graph.Processor, inputs, outputs int, options ...graph.NodeOption) *graph.Node {
	t.Helper()
	n, err := g.AddNode(p, options...)
	assert.Nil(t, err)
	for i := 0; i < inputs; i++ {
		_, err := n.AddPort(graph.Input)
		assert.Nil(t, err)
	}
	for i := 0; i < outputs; i++ {
		_, err := n.AddPort(graph.Output)
		assert.Nil(t, err)
	}
	return n
}

func link(t *testing.T, g *graph.Graph, from *graph.Node, out uint32, to *graph.Node, in uint32) *graph.Link {
	t.Helper()
	op, ok := from.Port(graph.Output, out)
	assert.True(t, ok)
	ip, ok := to.Port(graph.Input, in)
	assert.True(t, ok)
	l, err := g.Link(op, ip)
	assert.Nil(t, err)
	return l
}

func TestAddNode(t *testing.T) {
	g := graph.New(graph.WithName("test"))
	_, err := g.AddNode(nil)
	assert.True(t, errors.Is(err, graph.ErrNilProcessor))

	n := addNode(t, g, plain{}, 2, 1, graph.Named("mixer"), graph.Async())
	assert.Equal(t, "mixer", n.Name())
	assert.NotEmpty(t, n.UID())
	assert.True(t, n.IsAsync())
	assert.Equal(t, 0, n.RequiredIn())
	assert.True(t, n.Eligible())
	assert.Equal(t, graph.OK, n.State())

	inputs := n.Ports(graph.Input)
	assert.Equal(t, 2, len(inputs))
	for i, p := range inputs {
		assert.Equal(t, uint32(i), p.ID())
		assert.Equal(t, graph.Input, p.Direction())
		assert.Equal(t, n, p.Node())
		assert.Nil(t, p.Peer())
	}
	_, ok := n.Port(graph.Output, 1)
	assert.False(t, ok)

	found, ok := g.Node(n.ID())
	assert.True(t, ok)
	assert.Equal(t, n, found)
	assert.Equal(t, []*graph.Node{n}, g.Nodes())
}

func TestLink(t *testing.T) {
	g := graph.New()
	a := addNode(t, g, plain{}, 1, 1, graph.Named("a"))
	b := addNode(t, g, plain{}, 1, 1, graph.Named("b"))
	other := addNode(t, graph.New(), plain{}, 1, 1)
	aIn, _ := a.Port(graph.Input, 0)
	aOut, _ := a.Port(graph.Output, 0)
	bIn, _ := b.Port(graph.Input, 0)
	bOut, _ := b.Port(graph.Output, 0)
	otherIn, _ := other.Port(graph.Input, 0)

	tests := []struct {
		description string
		out, in     *graph.Port
		expected    error
	}{
		{
			description: "input as output",
			out:         aIn,
			in:          bIn,
			expected:    graph.ErrDirection,
		},
		{
			description: "output as input",
			out:         aOut,
			in:          bOut,
			expected:    graph.ErrDirection,
		},
		{
			description: "self link",
			out:         aOut,
			in:          aIn,
			expected:    graph.ErrSelfLink,
		},
		{
			description: "foreign node",
			out:         aOut,
			in:          otherIn,
			expected:    graph.ErrForeignNode,
		},
		{
			description: "nil output",
			in:          bIn,
			expected:    graph.ErrNilPort,
		},
		{
			description: "nil input",
			out:         aOut,
			expected:    graph.ErrNilPort,
		},
		{
			description: "nil ports",
			expected:    graph.ErrNilPort,
		},
	}
	for _, test := range tests {
		_, err := g.Link(test.out, test.in)
		assert.True(t, errors.Is(err, test.expected), test.description)
	}

	l, err := g.Link(aOut, bIn)
	assert.Nil(t, err)
	assert.Equal(t, bIn, aOut.Peer())
	assert.Equal(t, aOut, bIn.Peer())
	assert.Equal(t, l, aOut.Link())
	assert.True(t, aOut.IO() == bIn.IO(), "linked ports share io")
	assert.True(t, l.IO() == aOut.IO())
	assert.Equal(t, 1, b.RequiredIn())
	assert.Equal(t, 0, a.RequiredIn())
	assert.Equal(t, graph.PortRef{Node: a.ID(), Direction: graph.Output, Port: 0}, l.Output())
	assert.Equal(t, graph.PortRef{Node: b.ID(), Direction: graph.Input, Port: 0}, l.Input())

	_, err = g.Link(aOut, bIn)
	assert.True(t, errors.Is(err, graph.ErrAlreadyLinked))
	var se *graph.StructuralError
	assert.True(t, errors.As(err, &se))
	assert.Equal(t, "link", se.Op)
	assert.Equal(t, a.String(), se.Node)
	assert.Equal(t, "output:0", se.Port)

	assert.Nil(t, g.Unlink(l))
	assert.Nil(t, aOut.Peer())
	assert.Nil(t, bIn.Peer())
	assert.False(t, aOut.IO() == bIn.IO())
	assert.Equal(t, 0, b.RequiredIn())
	assert.True(t, errors.Is(g.Unlink(l), graph.ErrNotLinked))
	assert.Empty(t, g.Links())
}

func TestRemoveNode(t *testing.T) {
	g := graph.New()
	a := addNode(t, g, plain{}, 0, 2)
	b := addNode(t, g, plain{}, 1, 0)
	c := addNode(t, g, plain{}, 1, 0)
	link(t, g, a, 0, b, 0)
	link(t, g, a, 1, c, 0)
	assert.Equal(t, 2, len(g.Links()))

	id := a.ID()
	assert.Nil(t, g.RemoveNode(a))
	assert.Empty(t, g.Links())
	for _, n := range []*graph.Node{b, c} {
		in, _ := n.Port(graph.Input, 0)
		assert.Nil(t, in.Peer())
		assert.Equal(t, 0, n.RequiredIn())
	}
	_, ok := g.Node(id)
	assert.False(t, ok)
	assert.True(t, errors.Is(g.RemoveNode(a), graph.ErrForeignNode))
	_, err := a.AddPort(graph.Output)
	assert.True(t, errors.Is(err, graph.ErrForeignNode))

	// slot is reused with new generation.
	d := addNode(t, g, plain{}, 0, 0)
	assert.Equal(t, id.Index, d.ID().Index)
	assert.NotEqual(t, id.Gen, d.ID().Gen)
	_, ok = g.Node(id)
	assert.False(t, ok)
	assert.Equal(t, 3, len(g.Nodes()))
}

func TestReuseBuffer(t *testing.T) {
	g := graph.New()
	m := &mock.Node{OnReuse: graph.OK}
	a := addNode(t, g, m, 0, 1)
	b := addNode(t, g, plain{}, 1, 0)
	link(t, g, a, 0, b, 0)

	in, _ := b.Port(graph.Input, 0)
	assert.Equal(t, graph.OK, in.Peer().ReuseBuffer(3))
	assert.Equal(t, []uint32{3}, m.Reused)
	// plain processor can't recycle buffers.
	assert.Equal(t, graph.Error, in.ReuseBuffer(3))
}

func TestStrings(t *testing.T) {
	assert.Equal(t, "have-buffer", graph.HaveBuffer.String())
	assert.Equal(t, "unknown", graph.Result(10).String())
	assert.Equal(t, graph.Output, graph.Input.Reverse())
	assert.Equal(t, "input", graph.Output.Reverse().String())
	g := graph.New(graph.WithName("g"))
	n := addNode(t, g, plain{}, 0, 0)
	assert.Equal(t, n.UID(), n.String())
	assert.Contains(t, g.String(), "g ")
}
