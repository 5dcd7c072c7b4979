package graph

import "fmt"

// Scheduler drives the graph. Pull and push are synchronous recursive
// calls executed on the driver thread. They don't allocate and don't
// block unless node callbacks do.
type Scheduler struct {
	graph *Graph
}

// NewScheduler returns a scheduler for provided graph.
func NewScheduler(g *Graph) *Scheduler {
	return &Scheduler{graph: g}
}

// Pull satisfies input demand of the node by producing from upstream
// peers. Error is returned if any activated node returns Error.
func (s *Scheduler) Pull(n *Node) error {
	if err := s.enter("pull", n); err != nil {
		return err
	}
	defer s.graph.leave()
	return s.pull(n)
}

// Push propagates output of the node to downstream peers. Error is
// returned if any activated node returns Error.
func (s *Scheduler) Push(n *Node) error {
	if err := s.enter("push", n); err != nil {
		return err
	}
	defer s.graph.leave()
	return s.push(n)
}

// Iterate is the entry point of non-recursive scheduling. It's not
// implemented by this scheduler and always returns false.
func (s *Scheduler) Iterate() bool {
	return false
}

func (s *Scheduler) enter(op string, n *Node) error {
	if !s.graph.owns(n) {
		return structuralErr(op, n, nil, ErrForeignNode)
	}
	if id, ok := s.graph.enter(); !ok {
		return &SchedulingError{
			Op:   op,
			Node: n.String(),
			Err:  fmt.Errorf("%w on goroutine %d", ErrBusy, id),
		}
	}
	return nil
}

func (s *Scheduler) pull(node *Node) error {
	var ready readyList

	node.readyIn = 0
	for _, p := range node.ports[Input] {
		peer := p.peer
		if peer == nil {
			continue
		}
		switch {
		case peer.io.Status == NeedBuffer:
			ready.append(peer.node)
		case peer.io.Status == OK && !peer.node.async:
			node.readyIn++
		}
	}

	var err error
	for n := ready.head; n != nil; {
		if err == nil {
			err = s.pullFrom(node, n)
		}
		next := n.ready.next
		ready.remove(n)
		n = next
	}
	if err != nil {
		return err
	}

	if node.requiredIn > 0 && node.readyIn == node.requiredIn {
		switch node.processInput() {
		case Error:
			return s.fail("pull", node)
		case HaveBuffer:
			for _, p := range node.ports[Output] {
				if p.io.Status == HaveBuffer && p.peer != nil {
					p.peer.node.readyIn++
				}
			}
		}
	}
	return nil
}

// pullFrom activates output of upstream node n on behalf of node.
func (s *Scheduler) pullFrom(node, n *Node) error {
	switch n.processOutput() {
	case Error:
		return s.fail("pull", n)
	case NeedBuffer:
		return s.pull(n)
	}
	for _, p := range n.ports[Output] {
		if p.io.Status == HaveBuffer {
			node.readyIn++
		}
	}
	return nil
}

func (s *Scheduler) push(node *Node) error {
	var ready readyList

	for _, p := range node.ports[Output] {
		peer := p.peer
		if peer == nil {
			continue
		}
		pn := peer.node
		if peer.io.Status == HaveBuffer {
			pn.readyIn++
		}
		if pn.requiredIn > 0 && pn.readyIn == pn.requiredIn {
			ready.append(pn)
		}
	}

	var err error
	for n := ready.head; n != nil; {
		if err == nil {
			err = s.pushTo(n)
		}
		next := n.ready.next
		ready.remove(n)
		n = next
	}
	if err != nil {
		return err
	}

	switch node.processOutput() {
	case Error:
		return s.fail("push", node)
	case NeedBuffer:
		node.recomputeReadyIn()
	}
	return nil
}

// pushTo activates input of downstream node n.
func (s *Scheduler) pushTo(n *Node) error {
	switch n.processInput() {
	case Error:
		return s.fail("push", n)
	case HaveBuffer:
		return s.push(n)
	}
	n.recomputeReadyIn()
	return nil
}

func (s *Scheduler) fail(op string, n *Node) error {
	s.graph.log.Info(fmt.Sprintf("%v: %s failed on node %v", s.graph, op, n))
	return &SchedulingError{
		Op:    op,
		Node:  n.String(),
		State: Error,
	}
}
