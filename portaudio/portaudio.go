// Package portaudio plays graph output on the default audio device. The
// device clock drives the graph: every stream callback pulls one block
// into the sink. Callbacks run on the audio thread, so the pulled graph
// must only hold nodes that never block, e.g. ring.Source fed by a
// reader goroutine followed by in-memory processors.
package portaudio

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"

	"pipelined.dev/graph"
	"pipelined.dev/graph/pool"
)

var (
	// ErrNoPort is returned when node doesn't have required port.
	ErrNoPort = errors.New("node has no port")
	// ErrUnknownBuffer is returned when buffer id doesn't point to block.
	ErrUnknownBuffer = errors.New("unknown buffer")
)

type (
	// Sink copies received blocks into the device buffer. Silence is
	// written when no block is available. It has a single input port.
	Sink struct {
		pool      *pool.Pool
		out       []float32
		requested bool
		frames    int
		err       error
		done      chan struct{}
		once      sync.Once
	}

	// Player opens the default output stream and schedules the graph
	// from the stream callback. File or network reads belong to a
	// worker that fills a ring consumed by the graph.
	Player struct {
		scheduler *graph.Scheduler
		node      *graph.Node
		sink      *Sink
		stream    *portaudio.Stream
		errs      chan error
	}
)

// NewSink returns sink that takes blocks from provided pool.
func NewSink(p *pool.Pool) *Sink {
	return &Sink{
		pool: p,
		done: make(chan struct{}),
	}
}

// Done is closed when upstream reports end of stream.
func (s *Sink) Done() <-chan struct{} {
	return s.done
}

// Frames returns number of played frames.
func (s *Sink) Frames() int {
	return s.frames
}

// Err returns the error that failed the sink.
func (s *Sink) Err() error {
	return s.err
}

// ProcessInput copies received block into device buffer and reuses it
// upstream.
func (s *Sink) ProcessInput(n *graph.Node) graph.Result {
	in, ok := n.Port(graph.Input, 0)
	if !ok {
		s.err = fmt.Errorf("portaudio %v: %w", n, ErrNoPort)
		return graph.Error
	}
	pio := in.IO()
	switch pio.Status {
	case graph.HaveBuffer:
	case graph.OK:
		if s.requested {
			s.once.Do(func() { close(s.done) })
			return graph.OK
		}
		s.requested = true
		pio.Status = graph.NeedBuffer
		return graph.NeedBuffer
	default:
		return graph.NeedBuffer
	}
	block, ok := s.pool.Get(pio.BufferID)
	if !ok {
		s.err = fmt.Errorf("portaudio %v: %w %d", n, ErrUnknownBuffer, pio.BufferID)
		return graph.Error
	}
	written := min(len(s.out), len(block.Data))
	for i := 0; i < written; i++ {
		s.out[i] = float32(block.Data[i])
	}
	s.silence(written)
	s.frames += written / block.Format.NumChannels
	if r := in.Peer().ReuseBuffer(pio.BufferID); r == graph.Error {
		s.err = fmt.Errorf("portaudio %v: reuse %d failed", n, pio.BufferID)
		return graph.Error
	}
	s.requested = true
	pio.Status = graph.NeedBuffer
	return graph.NeedBuffer
}

func (s *Sink) silence(from int) {
	for i := from; i < len(s.out); i++ {
		s.out[i] = 0
	}
}

// ProcessOutput implements graph.Processor. Sink has no outputs.
func (s *Sink) ProcessOutput(*graph.Node) graph.Result {
	return graph.OK
}

// NewPlayer returns player that pulls provided sink node.
func NewPlayer(s *graph.Scheduler, n *graph.Node, sink *Sink) *Player {
	return &Player{
		scheduler: s,
		node:      n,
		sink:      sink,
		errs:      make(chan error, 1),
	}
}

// Errors returns channel that receives the first scheduling error.
func (p *Player) Errors() <-chan error {
	return p.errs
}

// process is the stream callback.
func (p *Player) process(out []float32) {
	p.sink.out = out
	p.sink.silence(0)
	if err := p.scheduler.Pull(p.node); err != nil {
		select {
		case p.errs <- err:
		default:
		}
	}
}

// Start initializes portaudio and starts the default output stream. The
// sink is primed before the stream is started.
func (p *Player) Start() error {
	p.process(nil)
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("initialize portaudio: %w", err)
	}
	format := p.sink.pool.Format()
	frames := p.sink.pool.BlockSize() / format.NumChannels
	stream, err := portaudio.OpenDefaultStream(0, format.NumChannels, float64(format.SampleRate), frames, p.process)
	if err != nil {
		portaudio.Terminate()
		return fmt.Errorf("open stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return fmt.Errorf("start stream: %w", err)
	}
	p.stream = stream
	return nil
}

// Stop stops the stream and terminates portaudio.
func (p *Player) Stop() error {
	if p.stream == nil {
		return nil
	}
	var errs []error
	if err := p.stream.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("stop stream: %w", err))
	}
	if err := p.stream.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close stream: %w", err))
	}
	if err := portaudio.Terminate(); err != nil {
		errs = append(errs, fmt.Errorf("terminate portaudio: %w", err))
	}
	p.stream = nil
	return errors.Join(errs...)
}
