package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"pipelined.dev/graph"
	"pipelined.dev/graph/log"
	"pipelined.dev/graph/metric"
)

func (a *app) newGraph(name string) *graph.Graph {
	options := []graph.Option{
		graph.WithName(name),
		graph.WithLogger(log.Component(a.log, "graph")),
	}
	if a.cfg.Metrics {
		options = append(options, graph.WithMetric())
	}
	return graph.New(options...)
}

// chain adds processors to the graph and links them one after another.
func chain(g *graph.Graph, processors ...graph.Processor) ([]*graph.Node, error) {
	nodes := make([]*graph.Node, 0, len(processors))
	for _, p := range processors {
		name := strings.TrimPrefix(fmt.Sprintf("%T", p), "*")
		n, err := g.AddNode(p, graph.Named(name))
		if err != nil {
			return nil, err
		}
		if len(nodes) > 0 {
			if err := connect(g, nodes[len(nodes)-1], n); err != nil {
				return nil, err
			}
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

// connect links new output port of the first node to new input port of
// the second one.
func connect(g *graph.Graph, from, to *graph.Node) error {
	out, err := from.AddPort(graph.Output)
	if err != nil {
		return err
	}
	in, err := to.AddPort(graph.Input)
	if err != nil {
		return err
	}
	_, err = g.Link(out, in)
	return err
}

// drain pulls the last node until done returns true. Errors of failed
// processors are joined to the scheduling error.
func drain(ctx context.Context, g *graph.Graph, nodes []*graph.Node, done func() bool) error {
	return drainPaced(ctx, g, nodes, done, nil)
}

// drainPaced is drain that calls wait before every pull. Ring nodes
// block there, so the graph is scheduled only when it can make progress.
func drainPaced(ctx context.Context, g *graph.Graph, nodes []*graph.Node, done func() bool, wait func(context.Context) error) error {
	s := graph.NewScheduler(g)
	sink := nodes[len(nodes)-1]
	for !done() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if wait != nil {
			if err := wait(ctx); err != nil {
				return err
			}
		}
		if err := s.Pull(sink); err != nil {
			return errors.Join(err, processorErrors(nodes))
		}
	}
	return nil
}

// flood pushes the first node until done returns true.
func flood(ctx context.Context, g *graph.Graph, nodes []*graph.Node, done func() bool) error {
	s := graph.NewScheduler(g)
	source := nodes[0]
	for !done() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.Push(source); err != nil {
			return errors.Join(err, processorErrors(nodes))
		}
	}
	return nil
}

func processorErrors(nodes []*graph.Node) error {
	var errs []error
	for _, n := range nodes {
		if f, ok := n.Processor().(interface{ Err() error }); ok && f.Err() != nil {
			errs = append(errs, f.Err())
		}
	}
	return errors.Join(errs...)
}

func (a *app) printMetrics(w io.Writer) {
	if !a.cfg.Metrics {
		return
	}
	all := metric.GetAll()
	types := make([]string, 0, len(all))
	for t := range all {
		types = append(types, t)
	}
	sort.Strings(types)
	for _, t := range types {
		counters := all[t]
		names := make([]string, 0, len(counters))
		for name := range counters {
			names = append(names, name)
		}
		sort.Strings(names)
		fmt.Fprintf(w, "%s:\n", t)
		for _, name := range names {
			fmt.Fprintf(w, "\t%s: %s\n", name, counters[name])
		}
	}
}
