package graph

// readyLink is embedded into every node. It threads the node through the
// ready set of a single pull or push call.
type readyLink struct {
	prev, next *Node
	queued     bool
}

// readyList is a FIFO of nodes linked through their readyLink. The list
// header lives on the stack of the traversal, so no allocation happens.
type readyList struct {
	head, tail *Node
}

// append adds node to the tail. Node that is already queued by another
// traversal is not added and false is returned.
func (l *readyList) append(n *Node) bool {
	if n.ready.queued {
		return false
	}
	n.ready.queued = true
	n.ready.prev = l.tail
	n.ready.next = nil
	if l.tail == nil {
		l.head = n
	} else {
		l.tail.ready.next = n
	}
	l.tail = n
	return true
}

// remove unlinks node from the list.
func (l *readyList) remove(n *Node) {
	if n.ready.prev == nil {
		l.head = n.ready.next
	} else {
		n.ready.prev.ready.next = n.ready.next
	}
	if n.ready.next == nil {
		l.tail = n.ready.prev
	} else {
		n.ready.next.ready.prev = n.ready.prev
	}
	n.ready = readyLink{}
}
