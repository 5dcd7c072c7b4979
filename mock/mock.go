// Package mock provides mocks for graph nodes and allows to execute
// scheduling tests.
package mock

import (
	"fmt"

	"pipelined.dev/graph"
)

// Op is the mocked callback.
type Op int

// Mocked callbacks.
const (
	ProcessInput Op = iota
	ProcessOutput
	ReuseBuffer
)

func (op Op) String() string {
	switch op {
	case ProcessInput:
		return "input"
	case ProcessOutput:
		return "output"
	case ReuseBuffer:
		return "reuse"
	}
	return "unknown"
}

type (
	// Call is a single recorded activation.
	Call struct {
		Node string
		Op   Op
	}

	// Recorder records activations of multiple nodes in call order.
	Recorder struct {
		Calls []Call
	}

	// ScriptFunc is executed instead of node callback.
	ScriptFunc func(*graph.Node) graph.Result

	// Node mocks a graph.Processor and graph.BufferReuser interfaces.
	// If script is not provided, callback returns graph.OK.
	Node struct {
		counter
		Name     string
		Recorder *Recorder
		OnInput  ScriptFunc
		OnOutput ScriptFunc
		OnReuse  graph.Result
		// ReadyIn holds ready_in value observed on each input call.
		ReadyIn []int
		// Reused holds ids of recycled buffers.
		Reused []uint32
	}
)

// ProcessInput implements graph.Processor.
func (m *Node) ProcessInput(n *graph.Node) graph.Result {
	m.inputs++
	m.ReadyIn = append(m.ReadyIn, n.ReadyIn())
	m.record(ProcessInput)
	if m.OnInput == nil {
		return graph.OK
	}
	return m.OnInput(n)
}

// ProcessOutput implements graph.Processor.
func (m *Node) ProcessOutput(n *graph.Node) graph.Result {
	m.outputs++
	m.record(ProcessOutput)
	if m.OnOutput == nil {
		return graph.OK
	}
	return m.OnOutput(n)
}

// ReuseBuffer implements graph.BufferReuser.
func (m *Node) ReuseBuffer(p *graph.Port, id uint32) graph.Result {
	m.Reused = append(m.Reused, id)
	m.record(ReuseBuffer)
	return m.OnReuse
}

func (m *Node) record(op Op) {
	if m.Recorder == nil {
		return
	}
	m.Recorder.Calls = append(m.Recorder.Calls, Call{Node: m.Name, Op: op})
}

// Produce sets io status of all output ports to HaveBuffer and returns
// HaveBuffer.
func Produce() ScriptFunc {
	return func(n *graph.Node) graph.Result {
		Set(n, graph.Output, graph.HaveBuffer)
		return graph.HaveBuffer
	}
}

// Consume sets io status of all input ports to NeedBuffer and returns
// NeedBuffer.
func Consume() ScriptFunc {
	return func(n *graph.Node) graph.Result {
		Set(n, graph.Input, graph.NeedBuffer)
		return graph.NeedBuffer
	}
}

// Demand sets io status of all input ports to NeedBuffer and returns
// NeedBuffer. It's used for output callbacks of filters.
func Demand() ScriptFunc {
	return Consume()
}

// Return returns provided result without side effects.
func Return(r graph.Result) ScriptFunc {
	return func(*graph.Node) graph.Result {
		return r
	}
}

// Sequence executes scripts in order, one per call. The last script is
// repeated once the sequence is exhausted.
func Sequence(scripts ...ScriptFunc) ScriptFunc {
	var i int
	return func(n *graph.Node) graph.Result {
		s := scripts[i]
		if i < len(scripts)-1 {
			i++
		}
		return s(n)
	}
}

// Set sets io status of all ports in provided direction.
func Set(n *graph.Node, d graph.Direction, status graph.Result) {
	for _, p := range n.Ports(d) {
		p.IO().Status = status
	}
}

// Count returns number of input and output calls.
func (c *counter) Count() (int, int) {
	return c.inputs, c.outputs
}

// Inputs returns number of input calls.
func (c *counter) Inputs() int {
	return c.inputs
}

// Outputs returns number of output calls.
func (c *counter) Outputs() int {
	return c.outputs
}

// counter counts activations.
type counter struct {
	inputs  int
	outputs int
}

// String returns recorded calls as "node:op" values.
func (r *Recorder) String() string {
	return fmt.Sprint(r.Strings())
}

// Strings returns recorded calls as "node:op" values.
func (r *Recorder) Strings() []string {
	s := make([]string, 0, len(r.Calls))
	for _, c := range r.Calls {
		s = append(s, fmt.Sprintf("%s:%v", c.Node, c.Op))
	}
	return s
}
