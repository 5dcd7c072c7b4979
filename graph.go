package graph

import (
	"fmt"
	"sync/atomic"

	"github.com/petermattis/goid"
	"github.com/rs/xid"
)

type (
	// Graph owns nodes and links between their ports. Nodes are kept in
	// a slot map, so stale NodeID never resolves to a new node.
	Graph struct {
		uid    string
		name   string
		slots  []slot
		free   []uint32
		links  map[*Link]struct{}
		log    Logger
		metric bool
		// goroutine id of in-flight traversal, zero if idle.
		busy atomic.Int64
	}

	// NodeID is a stable generation-checked index of node in graph.
	NodeID struct {
		Index uint32
		Gen   uint32
	}

	slot struct {
		node *Node
		gen  uint32
	}

	// Option provides a way to set functional parameters to graph.
	Option func(g *Graph)
)

// Logger is a global interface for graph loggers.
type Logger interface {
	Debug(...interface{})
	Info(...interface{})
}

// newUID returns new unique id value.
func newUID() string {
	return xid.New().String()
}

// New creates a new empty graph and applies provided options.
func New(options ...Option) *Graph {
	g := &Graph{
		uid:   newUID(),
		links: make(map[*Link]struct{}),
		log:   defaultLogger,
	}
	for _, option := range options {
		option(g)
	}
	return g
}

// WithLogger sets logger to Graph. If this option is not provided, silent
// logger is used.
func WithLogger(logger Logger) Option {
	return func(g *Graph) {
		g.log = logger
	}
}

// WithName sets name to Graph.
func WithName(n string) Option {
	return func(g *Graph) {
		g.name = n
	}
}

// WithMetric enables metrics for all nodes added to the graph.
func WithMetric() Option {
	return func(g *Graph) {
		g.metric = true
	}
}

// AddNode creates a new node with provided processor.
func (g *Graph) AddNode(p Processor, options ...NodeOption) (*Node, error) {
	if err := g.checkIdle("add node", nil, nil); err != nil {
		return nil, err
	}
	if p == nil {
		return nil, structuralErr("add node", nil, nil, ErrNilProcessor)
	}
	n := newNode(g, p, options...)

	if l := len(g.free); l > 0 {
		idx := g.free[l-1]
		g.free = g.free[:l-1]
		g.slots[idx].node = n
		n.id = NodeID{Index: idx, Gen: g.slots[idx].gen}
	} else {
		g.slots = append(g.slots, slot{node: n})
		n.id = NodeID{Index: uint32(len(g.slots) - 1)}
	}
	g.log.Debug(fmt.Sprintf("%v: added node %v", g, n))
	return n, nil
}

// RemoveNode tears down all links of the node and removes it from the
// graph. Removed node cannot be used anymore.
func (g *Graph) RemoveNode(n *Node) error {
	if err := g.checkIdle("remove node", n, nil); err != nil {
		return err
	}
	if !g.owns(n) {
		return structuralErr("remove node", n, nil, ErrForeignNode)
	}
	for d := range n.ports {
		for _, p := range n.ports[d] {
			if p.link != nil {
				g.unlink(p.link)
			}
		}
	}
	s := &g.slots[n.id.Index]
	s.node = nil
	s.gen++
	g.free = append(g.free, n.id.Index)
	n.graph = nil
	g.log.Debug(fmt.Sprintf("%v: removed node %v", g, n))
	return nil
}

// Node returns the node for provided id. False is returned if id
// doesn't point to a live node.
func (g *Graph) Node(id NodeID) (*Node, bool) {
	if int(id.Index) >= len(g.slots) {
		return nil, false
	}
	s := g.slots[id.Index]
	if s.node == nil || s.gen != id.Gen {
		return nil, false
	}
	return s.node, true
}

// Nodes returns live nodes ordered by their index.
func (g *Graph) Nodes() []*Node {
	nodes := make([]*Node, 0, len(g.slots)-len(g.free))
	for _, s := range g.slots {
		if s.node != nil {
			nodes = append(nodes, s.node)
		}
	}
	return nodes
}

// Links returns all links of the graph in no particular order.
func (g *Graph) Links() []*Link {
	links := make([]*Link, 0, len(g.links))
	for l := range g.links {
		links = append(links, l)
	}
	return links
}

// Link connects output port to input port. Ports of linked nodes share
// the same io area.
func (g *Graph) Link(out, in *Port) (*Link, error) {
	switch {
	case out == nil && in == nil:
		return nil, structuralErr("link", nil, nil, ErrNilPort)
	case out == nil:
		return nil, structuralErr("link", in.node, in, ErrNilPort)
	case in == nil:
		return nil, structuralErr("link", out.node, out, ErrNilPort)
	}
	if err := g.checkIdle("link", out.node, out); err != nil {
		return nil, err
	}
	switch {
	case out.dir != Output:
		return nil, structuralErr("link", out.node, out, ErrDirection)
	case in.dir != Input:
		return nil, structuralErr("link", in.node, in, ErrDirection)
	case !g.owns(out.node):
		return nil, structuralErr("link", out.node, out, ErrForeignNode)
	case !g.owns(in.node):
		return nil, structuralErr("link", in.node, in, ErrForeignNode)
	case out.node == in.node:
		return nil, structuralErr("link", out.node, out, ErrSelfLink)
	case out.peer != nil:
		return nil, structuralErr("link", out.node, out, ErrAlreadyLinked)
	case in.peer != nil:
		return nil, structuralErr("link", in.node, in, ErrAlreadyLinked)
	}

	l := &Link{
		out: out,
		in:  in,
	}
	out.attach(l, in)
	in.attach(l, out)
	in.node.requiredIn++
	g.links[l] = struct{}{}
	g.log.Debug(fmt.Sprintf("%v: linked %v", g, l))
	return l, nil
}

// Unlink tears down the link. Both ports lose their peers.
func (g *Graph) Unlink(l *Link) error {
	if err := g.checkIdle("unlink", nil, nil); err != nil {
		return err
	}
	if _, ok := g.links[l]; !ok {
		return structuralErr("unlink", nil, nil, ErrNotLinked)
	}
	g.unlink(l)
	return nil
}

func (g *Graph) unlink(l *Link) {
	// both peers must be cleared before any port is released.
	l.out.detach()
	l.in.detach()
	n := l.in.node
	n.requiredIn--
	if n.readyIn > n.requiredIn {
		n.readyIn = n.requiredIn
	}
	delete(g.links, l)
	g.log.Debug(fmt.Sprintf("%v: unlinked %v", g, l))
}

func (g *Graph) owns(n *Node) bool {
	if n == nil || n.graph != g {
		return false
	}
	s, ok := g.Node(n.id)
	return ok && s == n
}

// enter marks the graph busy with traversal of the calling goroutine.
func (g *Graph) enter() (int64, bool) {
	id := goid.Get()
	if g.busy.CompareAndSwap(0, id) {
		return id, true
	}
	return g.busy.Load(), false
}

func (g *Graph) leave() {
	g.busy.Store(0)
}

func (g *Graph) checkIdle(op string, n *Node, p *Port) error {
	if id := g.busy.Load(); id != 0 {
		return structuralErr(op, n, p, fmt.Errorf("%w on goroutine %d", ErrBusy, id))
	}
	return nil
}

// Convert graph to string. Name is included if has value.
func (g *Graph) String() string {
	if g.name == "" {
		return g.uid
	}
	return fmt.Sprintf("%v %v", g.name, g.uid)
}

type silentLogger struct{}

func (silentLogger) Debug(args ...interface{}) {}

func (silentLogger) Info(args ...interface{}) {}

var defaultLogger silentLogger
