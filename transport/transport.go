// Package transport carries encoded buffers over unix seqpacket sockets.
// Every buffer is sent as a single message and its descriptors travel in
// SCM_RIGHTS control data.
//
// Transport blocks on socket i/o and must never be used from node
// callbacks.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sys/unix"

	"pipelined.dev/graph"
	"pipelined.dev/graph/buffer"
)

const network = "unixpacket"

// DefaultMaxMessageSize is the default limit of a single buffer.
const DefaultMaxMessageSize = 64 * 1024

// dialTimeout limits how long Dial waits for the listener to appear.
const dialTimeout = 5 * time.Second

// Span attributes.
const (
	AttrSize = "buffer.size"
	AttrFDs  = "buffer.fds"
	AttrSeq  = "buffer.seq"
)

var (
	// ErrTruncated is returned when message or its control data didn't
	// fit into receive buffers.
	ErrTruncated = errors.New("message truncated")
	// ErrMessageSize is returned when buffer exceeds max message size.
	ErrMessageSize = errors.New("message too large")
)

// aLongTimeAgo is used to unblock pending i/o on context cancel.
var aLongTimeAgo = time.Unix(1, 0)

type (
	// Conn is a connection that sends and receives buffers.
	Conn struct {
		conn    *net.UnixConn
		options options
		data    []byte
		oob     []byte
	}

	// Listener accepts connections on unix seqpacket socket.
	Listener struct {
		listener *net.UnixListener
		options  options
	}

	options struct {
		tracer         trace.Tracer
		log            graph.Logger
		maxMessageSize int
		version        uint32
	}

	// Option provides a way to set functional parameters to connection.
	Option func(*options)
)

// WithTracer sets tracer that records spans for every sent and received
// buffer. No-op tracer is used by default.
func WithTracer(t trace.Tracer) Option {
	return func(o *options) {
		o.tracer = t
	}
}

// WithLogger sets logger to connection.
func WithLogger(l graph.Logger) Option {
	return func(o *options) {
		o.log = l
	}
}

// WithMaxMessageSize limits the size of a single buffer.
func WithMaxMessageSize(size int) Option {
	return func(o *options) {
		o.maxMessageSize = size
	}
}

// WithVersion sets protocol version that received buffers are validated
// against.
func WithVersion(v uint32) Option {
	return func(o *options) {
		o.version = v
	}
}

func newOptions(opts []Option) options {
	o := options{
		tracer:         noop.NewTracerProvider().Tracer("pipelined.dev/graph/transport"),
		log:            silentLogger{},
		maxMessageSize: DefaultMaxMessageSize,
		version:        buffer.Version,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func newConn(c *net.UnixConn, o options) *Conn {
	return &Conn{
		conn:    c,
		options: o,
		data:    make([]byte, o.maxMessageSize),
		oob:     make([]byte, unix.CmsgSpace(buffer.MaxFDs*4)),
	}
}

// Pair returns two connected connections.
func Pair(opts ...Option) (*Conn, *Conn, error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_SEQPACKET|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("socketpair: %w", err)
	}
	o := newOptions(opts)
	conns := make([]*Conn, 0, 2)
	for i, fd := range fds {
		c, err := fileConn(fd, fmt.Sprintf("pair-%d", i))
		if err != nil {
			for _, created := range conns {
				created.Close()
			}
			for _, rest := range fds[i+1:] {
				unix.Close(rest)
			}
			return nil, nil, err
		}
		conns = append(conns, newConn(c, o))
	}
	return conns[0], conns[1], nil
}

// fileConn converts socket descriptor into connection. Descriptor is
// closed.
func fileConn(fd int, name string) (*net.UnixConn, error) {
	f := os.NewFile(uintptr(fd), name)
	defer f.Close()
	c, err := net.FileConn(f)
	if err != nil {
		return nil, fmt.Errorf("file conn %s: %w", name, err)
	}
	uc, ok := c.(*net.UnixConn)
	if !ok {
		c.Close()
		return nil, fmt.Errorf("file conn %s: unexpected type %T", name, c)
	}
	return uc, nil
}

// Listen announces on the unix socket path.
func Listen(path string, opts ...Option) (*Listener, error) {
	l, err := net.ListenUnix(network, &net.UnixAddr{Name: path, Net: network})
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", path, err)
	}
	o := newOptions(opts)
	o.log.Debug(fmt.Sprintf("transport: listening on %s", path))
	return &Listener{listener: l, options: o}, nil
}

// Accept waits for the next connection.
func (l *Listener) Accept(ctx context.Context) (*Conn, error) {
	stop := context.AfterFunc(ctx, func() {
		l.listener.SetDeadline(aLongTimeAgo)
	})
	defer func() {
		stop()
		l.listener.SetDeadline(time.Time{})
	}()

	c, err := l.listener.AcceptUnix()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("accept: %w", err)
	}
	l.options.log.Debug(fmt.Sprintf("transport: accepted %v", c.RemoteAddr()))
	return newConn(c, l.options), nil
}

// Addr returns address of the listener.
func (l *Listener) Addr() net.Addr {
	return l.listener.Addr()
}

// Close stops listening and removes the socket file.
func (l *Listener) Close() error {
	return l.listener.Close()
}

// Dial connects to the listener at path. It retries with exponential
// backoff while the listener doesn't exist yet.
func Dial(ctx context.Context, path string, opts ...Option) (*Conn, error) {
	o := newOptions(opts)
	var d net.Dialer
	c, err := backoff.Retry(ctx, func() (*net.UnixConn, error) {
		c, err := d.DialContext(ctx, network, path)
		if err != nil {
			if errors.Is(err, unix.ENOENT) || errors.Is(err, unix.ECONNREFUSED) {
				o.log.Debug(fmt.Sprintf("transport: dial %s: %v", path, err))
				return nil, err
			}
			return nil, backoff.Permanent(err)
		}
		return c.(*net.UnixConn), nil
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(dialTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", path, err)
	}
	return newConn(c, o), nil
}

// Send writes the buffer as a single message. Descriptors of the buffer
// are passed to the peer and buffer is cleared on success, so local
// copies of descriptors are closed.
func (c *Conn) Send(ctx context.Context, b *buffer.Buffer) (err error) {
	ctx, span := c.options.tracer.Start(ctx, "transport.send",
		trace.WithSpanKind(trace.SpanKindProducer),
	)
	defer func() {
		endSpan(span, err)
	}()

	if b.Released() {
		return buffer.ErrReleased
	}
	data, fds := b.Bytes(), b.FDs()
	span.SetAttributes(
		attribute.Int(AttrSize, len(data)),
		attribute.Int(AttrFDs, len(fds)),
	)
	if h, err := b.Header(c.options.version); err == nil {
		span.SetAttributes(attribute.Int64(AttrSeq, int64(h.Seq)))
	}
	if len(data) > c.options.maxMessageSize {
		return fmt.Errorf("%w: %d bytes, limit %d", ErrMessageSize, len(data), c.options.maxMessageSize)
	}
	// receiver's control buffer holds MaxFDs rights only.
	if len(fds) > buffer.MaxFDs {
		return fmt.Errorf("%w: %d descriptors, limit %d", buffer.ErrTooManyDescriptors, len(fds), buffer.MaxFDs)
	}
	var oob []byte
	if len(fds) > 0 {
		oob = unix.UnixRights(fds...)
	}

	stop := c.deadline(ctx, c.conn.SetWriteDeadline)
	defer stop()
	n, oobn, err := c.conn.WriteMsgUnix(data, oob, nil)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("send: %w", err)
	}
	if n != len(data) || oobn != len(oob) {
		return fmt.Errorf("send: %w: wrote %d of %d bytes", io.ErrShortWrite, n, len(data))
	}
	return b.Clear()
}

// Receive reads the next buffer. Returned buffer owns received
// descriptors and must be cleared by the caller. io.EOF is returned when
// peer closed the connection.
func (c *Conn) Receive(ctx context.Context) (b *buffer.Buffer, err error) {
	ctx, span := c.options.tracer.Start(ctx, "transport.receive",
		trace.WithSpanKind(trace.SpanKindConsumer),
	)
	defer func() {
		endSpan(span, err)
	}()

	stop := c.deadline(ctx, c.conn.SetReadDeadline)
	defer stop()
	n, oobn, flags, _, err := c.conn.ReadMsgUnix(c.data, c.oob)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("receive: %w", err)
	}
	fds, err := parseRights(c.oob[:oobn])
	if err != nil {
		return nil, err
	}
	if flags&(unix.MSG_TRUNC|unix.MSG_CTRUNC) != 0 {
		closeAll(fds)
		return nil, &buffer.ProtocolError{Offset: n, Err: ErrTruncated}
	}
	if n == 0 && len(fds) == 0 {
		return nil, io.EOF
	}
	span.SetAttributes(
		attribute.Int(AttrSize, n),
		attribute.Int(AttrFDs, len(fds)),
	)

	// data is reused by the next receive.
	data := make([]byte, n)
	copy(data, c.data[:n])
	b = buffer.FromMemory(data, fds)
	h, err := b.Header(c.options.version)
	if err != nil {
		b.Clear()
		return nil, err
	}
	span.SetAttributes(attribute.Int64(AttrSeq, int64(h.Seq)))
	return b, nil
}

// Close closes the connection.
func (c *Conn) Close() error {
	return c.conn.Close()
}

// deadline unblocks pending i/o when context is done. Returned function
// must be called when i/o is finished.
func (c *Conn) deadline(ctx context.Context, set func(time.Time) error) func() {
	stop := context.AfterFunc(ctx, func() {
		set(aLongTimeAgo)
	})
	return func() {
		stop()
		set(time.Time{})
	}
}

// parseRights returns descriptors passed in control messages.
func parseRights(oob []byte) ([]int, error) {
	if len(oob) == 0 {
		return nil, nil
	}
	msgs, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return nil, fmt.Errorf("parse control message: %w", err)
	}
	var fds []int
	for i := range msgs {
		if msgs[i].Header.Level != unix.SOL_SOCKET || msgs[i].Header.Type != unix.SCM_RIGHTS {
			continue
		}
		rights, err := unix.ParseUnixRights(&msgs[i])
		if err != nil {
			closeAll(fds)
			return nil, fmt.Errorf("parse rights: %w", err)
		}
		fds = append(fds, rights...)
	}
	return fds, nil
}

func closeAll(fds []int) {
	for _, fd := range fds {
		unix.Close(fd)
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil && !errors.Is(err, io.EOF) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

type silentLogger struct{}

func (silentLogger) Debug(args ...interface{}) {}

func (silentLogger) Info(args ...interface{}) {}
