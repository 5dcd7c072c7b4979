package graph

import (
	"fmt"

	"pipelined.dev/graph/metric"
)

type (
	// Processor is implemented by the owner of the node. Callbacks are
	// executed on the thread that drives the scheduler and must not block
	// or allocate. Callbacks communicate readiness by mutating io status
	// of node ports.
	Processor interface {
		ProcessInput(*Node) Result
		ProcessOutput(*Node) Result
	}

	// BufferReuser is implemented by processors that recycle buffers
	// once consumer is done with them.
	BufferReuser interface {
		ReuseBuffer(p *Port, bufferID uint32) Result
	}

	// Node is a processing unit of the graph.
	Node struct {
		id        NodeID
		uid       string
		name      string
		label     string
		graph     *Graph
		processor Processor
		reuser    BufferReuser
		async     bool
		ports     [2][]*Port

		readyIn    int
		requiredIn int
		state      Result

		// intrusive link of the scheduler ready set.
		ready readyLink

		measure metric.MeasureFunc
	}

	// NodeOption provides a way to set functional parameters to node.
	NodeOption func(n *Node)
)

// Async marks node as asynchronous: its completion is not synchronous
// with activation call, so its output is never counted as ready eagerly.
func Async() NodeOption {
	return func(n *Node) {
		n.async = true
	}
}

// Named sets name to node. It's used in logs and errors.
func Named(name string) NodeOption {
	return func(n *Node) {
		n.name = name
	}
}

func newNode(g *Graph, p Processor, options ...NodeOption) *Node {
	n := &Node{
		uid:       newUID(),
		graph:     g,
		processor: p,
	}
	if r, ok := p.(BufferReuser); ok {
		n.reuser = r
	}
	for _, option := range options {
		option(n)
	}
	if n.name == "" {
		n.label = n.uid
	} else {
		n.label = fmt.Sprintf("%v %v", n.name, n.uid)
	}
	if g.metric {
		n.measure = metric.Meter(p)
	}
	return n
}

// AddPort appends a new port in provided direction. Port ids are
// assigned sequentially per direction.
func (n *Node) AddPort(d Direction) (*Port, error) {
	if n.graph == nil {
		return nil, structuralErr("add port", n, nil, ErrForeignNode)
	}
	if err := n.graph.checkIdle("add port", n, nil); err != nil {
		return nil, err
	}
	p := &Port{
		id:   uint32(len(n.ports[d])),
		dir:  d,
		node: n,
	}
	p.io = &p.own
	n.ports[d] = append(n.ports[d], p)
	return p, nil
}

// Ports returns ports of provided direction in the order they were
// added. Returned slice must not be modified.
func (n *Node) Ports(d Direction) []*Port {
	return n.ports[d]
}

// Port returns port of provided direction and id.
func (n *Node) Port(d Direction, id uint32) (*Port, bool) {
	if int(id) >= len(n.ports[d]) {
		return nil, false
	}
	return n.ports[d][id], true
}

// ID returns the index of the node in graph.
func (n *Node) ID() NodeID {
	return n.id
}

// UID returns unique id of the node.
func (n *Node) UID() string {
	return n.uid
}

// Name returns the name of the node.
func (n *Node) Name() string {
	return n.name
}

// Processor returns the processor of the node.
func (n *Node) Processor() Processor {
	return n.processor
}

// IsAsync returns true if node was added with Async option.
func (n *Node) IsAsync() bool {
	return n.async
}

// ReadyIn returns the number of currently satisfied input dependencies.
func (n *Node) ReadyIn() int {
	return n.readyIn
}

// RequiredIn returns the number of input dependencies that must be
// satisfied before the node consumes input. It equals the number of
// linked input ports.
func (n *Node) RequiredIn() int {
	return n.requiredIn
}

// State returns the result of last activation.
func (n *Node) State() Result {
	return n.state
}

// Eligible returns true if the node may process input. Nodes without
// input dependencies are always eligible.
func (n *Node) Eligible() bool {
	return n.requiredIn == 0 || n.readyIn == n.requiredIn
}

// Queued returns true if node is a member of scheduler ready set.
func (n *Node) Queued() bool {
	return n.ready.queued
}

// Convert node to string. Name is included if has value.
func (n *Node) String() string {
	return n.label
}

// recomputeReadyIn counts linked input ports which have data available
// from synchronous peers.
func (n *Node) recomputeReadyIn() {
	n.readyIn = 0
	for _, p := range n.ports[Input] {
		if p.peer == nil || p.peer.node.async {
			continue
		}
		if p.io.Status == OK {
			n.readyIn++
		}
	}
}

func (n *Node) processInput() Result {
	n.state = n.processor.ProcessInput(n)
	if n.measure != nil {
		n.measure(metric.Input, int(n.state))
	}
	return n.state
}

func (n *Node) processOutput() Result {
	n.state = n.processor.ProcessOutput(n)
	if n.measure != nil {
		n.measure(metric.Output, int(n.state))
	}
	return n.state
}
