package graph

import "fmt"

type (
	// IO is the io area of the port. Status is the only readiness signal
	// the scheduler reads. It's mutated by node callbacks. BufferID
	// identifies the buffer exchanged through the port.
	IO struct {
		Status   Result
		BufferID uint32
	}

	// Port is an attachment point of the node.
	Port struct {
		id   uint32
		dir  Direction
		node *Node
		peer *Port
		link *Link
		io   *IO
		own  IO
	}

	// Link connects output port to input port. Linked ports share the io
	// area owned by the link.
	Link struct {
		out *Port
		in  *Port
		io  IO
	}

	// PortRef addresses the port by node id, direction and port id.
	PortRef struct {
		Node      NodeID
		Direction Direction
		Port      uint32
	}
)

// ID returns port id. Ids are unique per node and direction.
func (p *Port) ID() uint32 {
	return p.id
}

// Direction returns the direction of the port.
func (p *Port) Direction() Direction {
	return p.dir
}

// Node returns the owner of the port.
func (p *Port) Node() *Node {
	return p.node
}

// Peer returns the port on the other end of the link. Nil is returned if
// port is not linked.
func (p *Port) Peer() *Port {
	return p.peer
}

// Link returns the link of the port. Nil is returned if port is not
// linked.
func (p *Port) Link() *Link {
	return p.link
}

// IO returns the io area of the port.
func (p *Port) IO() *IO {
	return p.io
}

// Ref returns index-based reference of the port.
func (p *Port) Ref() PortRef {
	return PortRef{
		Node:      p.node.id,
		Direction: p.dir,
		Port:      p.id,
	}
}

// ReuseBuffer notifies the owner of the port that buffer can be recycled.
// Error is returned if owner doesn't support buffer reuse.
func (p *Port) ReuseBuffer(bufferID uint32) Result {
	if p.node.reuser == nil {
		return Error
	}
	return p.node.reuser.ReuseBuffer(p, bufferID)
}

// Convert port to string.
func (p *Port) String() string {
	return fmt.Sprintf("%v:%d", p.dir, p.id)
}

func (p *Port) attach(l *Link, peer *Port) {
	p.link = l
	p.peer = peer
	p.io = &l.io
}

func (p *Port) detach() {
	p.link = nil
	p.peer = nil
	p.own = IO{}
	p.io = &p.own
}

// Output returns reference to the output port of the link.
func (l *Link) Output() PortRef {
	return l.out.Ref()
}

// Input returns reference to the input port of the link.
func (l *Link) Input() PortRef {
	return l.in.Ref()
}

// IO returns the io area shared by linked ports.
func (l *Link) IO() *IO {
	return &l.io
}

// Convert link to string.
func (l *Link) String() string {
	return fmt.Sprintf("%v %v -> %v %v", l.out.node, l.out, l.in.node, l.in)
}
