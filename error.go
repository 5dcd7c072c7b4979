package graph

import (
	"errors"
	"fmt"
)

var (
	// ErrNilProcessor is returned when node is added without processor.
	ErrNilProcessor = errors.New("nil processor")
	// ErrNilPort is returned when nil port is linked.
	ErrNilPort = errors.New("nil port")
	// ErrDirection is returned when ports of wrong direction are linked.
	ErrDirection = errors.New("wrong port direction")
	// ErrAlreadyLinked is returned if port already has a peer.
	ErrAlreadyLinked = errors.New("port already linked")
	// ErrNotLinked is returned when removed link is not part of the graph.
	ErrNotLinked = errors.New("not linked")
	// ErrForeignNode is returned when node doesn't belong to the graph.
	ErrForeignNode = errors.New("node is not in graph")
	// ErrSelfLink is returned when node is linked to itself.
	ErrSelfLink = errors.New("node linked to itself")
	// ErrBusy is returned if graph is modified or scheduled while
	// traversal is in flight.
	ErrBusy = errors.New("traversal in flight")
)

// StructuralError is returned by graph edits that would leave the graph
// malformed. It's reported immediately by the failing edit.
type StructuralError struct {
	Op   string
	Node string
	Port string
	Err  error
}

func (e *StructuralError) Error() string {
	switch {
	case e.Node != "" && e.Port != "":
		return fmt.Sprintf("%s node %s port %s: %v", e.Op, e.Node, e.Port, e.Err)
	case e.Node != "":
		return fmt.Sprintf("%s node %s: %v", e.Op, e.Node, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying sentinel error.
func (e *StructuralError) Unwrap() error {
	return e.Err
}

// SchedulingError is returned by pull and push when a node callback
// reports Error. The traversal is aborted and no retry is made.
type SchedulingError struct {
	Op    string
	Node  string
	State Result
	Err   error
}

func (e *SchedulingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: node %s: %v", e.Op, e.Node, e.Err)
	}
	return fmt.Sprintf("%s: node %s returned %v", e.Op, e.Node, e.State)
}

// Unwrap returns the underlying error, if any.
func (e *SchedulingError) Unwrap() error {
	return e.Err
}

func structuralErr(op string, n *Node, p *Port, err error) error {
	e := &StructuralError{Op: op, Err: err}
	if n != nil {
		e.Node = n.String()
	}
	if p != nil {
		e.Port = p.String()
	}
	return e
}
