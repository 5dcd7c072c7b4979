package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	goaudio "github.com/go-audio/audio"

	"pipelined.dev/graph/audio"
	"pipelined.dev/graph/buffer"
	"pipelined.dev/graph/pool"
	"pipelined.dev/graph/ring"
)

type (
	// Sender delivers buffers to the peer.
	Sender interface {
		Send(context.Context, *buffer.Buffer) error
	}

	// Receiver reads buffers from the peer. io.EOF is returned when
	// peer is done.
	Receiver interface {
		Receive(context.Context) (*buffer.Buffer, error)
	}

	// Sink sends received blocks to the peer. Graph callbacks only copy
	// blocks into the ring, Run encodes and sends them.
	Sink struct {
		*ring.Sink
		sender  Sender
		encoder *Encoder
		sent    atomic.Int64
	}

	// Source publishes blocks received from the peer. Run receives and
	// decodes buffers into the ring, graph callbacks only copy them out.
	Source struct {
		*ring.Source
		receiver Receiver
		decoder  *Decoder
		pending  *buffer.Buffer
		info     atomic.Pointer[audio.RawInfo]
	}
)

// NewSink returns sink that sends blocks of provided pool in format.
// Format rate and channels are taken from the pool. Up to blocks blocks
// are queued for sending.
func NewSink(s Sender, p *pool.Pool, blocks int, version uint32, format audio.Format) (*Sink, error) {
	pf := p.Format()
	encoder, err := NewEncoder(version, audio.RawInfo{
		Format:   format,
		Layout:   audio.Interleaved,
		Rate:     uint32(pf.SampleRate),
		Channels: uint32(pf.NumChannels),
	})
	if err != nil {
		return nil, err
	}
	rs, err := ring.NewSink(ring.New(blocks, p.BlockSize()), p)
	if err != nil {
		return nil, err
	}
	return &Sink{
		Sink:    rs,
		sender:  s,
		encoder: encoder,
	}, nil
}

// Sent returns number of sent buffers.
func (s *Sink) Sent() int {
	return int(s.sent.Load())
}

// Run sends queued blocks until the sink is closed and drained.
func (s *Sink) Run(ctx context.Context) error {
	r := s.Ring()
	for {
		i, samples, err := r.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		b, err := s.encoder.Encode(samples)
		r.Release(i)
		if err != nil {
			return fmt.Errorf("encode: %w", err)
		}
		if err := s.sender.Send(ctx, b); err != nil {
			return errors.Join(err, b.Clear())
		}
		s.sent.Add(1)
	}
}

// NewSource receives the first buffer to learn stream format and
// allocates pool of blocks in that format.
func NewSource(ctx context.Context, r Receiver, version uint32, blocks, frames int) (*Source, error) {
	b, err := r.Receive(ctx)
	if err != nil {
		return nil, fmt.Errorf("receive format: %w", err)
	}
	info, err := peekFormat(b, version)
	if err != nil {
		return nil, errors.Join(err, b.Clear())
	}
	p := pool.New(blocks, frames, &goaudio.Format{
		NumChannels: int(info.Channels),
		SampleRate:  int(info.Rate),
	})
	rs, err := ring.NewSource(ring.New(blocks, p.BlockSize()), p)
	if err != nil {
		return nil, errors.Join(err, b.Clear())
	}
	return &Source{
		Source:   rs,
		receiver: r,
		decoder:  NewDecoder(version),
		pending:  b,
	}, nil
}

// peekFormat returns format announced by the first format change.
func peekFormat(b *buffer.Buffer, version uint32) (audio.RawInfo, error) {
	it := b.Iter(version)
	for it.Next() {
		if it.Type() != buffer.FormatChange {
			continue
		}
		p, err := it.Format()
		if err != nil {
			return audio.RawInfo{}, err
		}
		var info audio.RawInfo
		if err := info.UnmarshalBinary(p.Format); err != nil {
			return audio.RawInfo{}, err
		}
		return info, supported(info)
	}
	if err := it.Err(); err != nil {
		return audio.RawInfo{}, err
	}
	return audio.RawInfo{}, ErrNoFormat
}

// Info returns stream format of the last decoded buffer.
func (s *Source) Info() audio.RawInfo {
	if info := s.info.Load(); info != nil {
		return *info
	}
	return audio.RawInfo{}
}

// Run receives buffers until the peer finishes the stream. The ring is
// closed when Run returns.
func (s *Source) Run(ctx context.Context) error {
	r := s.Ring()
	defer r.Close()
	for {
		i, slot, err := r.Acquire(ctx)
		if err != nil {
			return err
		}
		n, err := s.receive(ctx, slot)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		r.Commit(i, n)
	}
}

// receive decodes buffers into slot until one of them carries samples.
func (s *Source) receive(ctx context.Context, slot []float64) (int, error) {
	for {
		b := s.pending
		s.pending = nil
		if b == nil {
			var err error
			if b, err = s.receiver.Receive(ctx); err != nil {
				return 0, err
			}
		}
		n, err := s.decoder.Decode(b, slot)
		if info, ok := s.decoder.Info(); ok {
			s.info.Store(&info)
		}
		if err != nil {
			return 0, fmt.Errorf("decode: %w", err)
		}
		// buffers with format changes only carry no samples.
		if n > 0 {
			return n, nil
		}
	}
}

// Close clears the buffer that wasn't processed. It's called after Run
// returned.
func (s *Source) Close() error {
	if s.pending == nil {
		return nil
	}
	b := s.pending
	s.pending = nil
	return b.Clear()
}
