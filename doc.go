/*
Package graph schedules processing of media graphs.

# Concept

A graph consists of nodes connected through ports. Every link joins one
output port to one input port and both ports share the same io area. Node
callbacks communicate readiness by setting io status of their ports:

	NeedBuffer - node wants data on this port;
	HaveBuffer - node has data on this port;
	OK - nothing to do;
	Error - processing failed.

The scheduler only reads io status. It never touches buffers.

# Scheduling

Scheduler offers two entry points. Pull is consumer driven: it activates
outputs of upstream nodes that need data and then consumes input of the
pulled node once all its dependencies are ready. Push is producer driven:
it delivers output of the node to downstream peers whose dependencies
became complete and then lets the node produce again.

	g := graph.New()
	src, _ := g.AddNode(source)
	sink, _ := g.AddNode(consumer)
	out, _ := src.AddPort(graph.Output)
	in, _ := sink.AddPort(graph.Input)
	g.Link(out, in)

	s := graph.NewScheduler(g)
	if err := s.Pull(sink); err != nil {
	    // handle error
	}

Both calls are synchronous and executed on the caller goroutine. They
don't allocate memory, so they can be used from real-time threads like
audio device callbacks. Nodes that complete asynchronously are added with
Async option and are never counted as ready eagerly.

Graph can't be modified while traversal is in flight. Structural edits
made from node callbacks return ErrBusy.
*/
package graph
