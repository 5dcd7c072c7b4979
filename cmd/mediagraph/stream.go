package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"pipelined.dev/graph/audio"
	"pipelined.dev/graph/buffer"
	"pipelined.dev/graph/log"
	"pipelined.dev/graph/stream"
	"pipelined.dev/graph/transport"
	"pipelined.dev/graph/wav"
)

// receiveBitDepth is the bit depth of received wav files.
const receiveBitDepth = 16

func (a *app) transportOptions() []transport.Option {
	return []transport.Option{
		transport.WithLogger(log.Component(a.log, "transport")),
		transport.WithMaxMessageSize(a.cfg.MaxMessageSize),
		transport.WithVersion(buffer.Version),
	}
}

// savingSender writes every buffer into directory before it's sent. It
// runs on the sink worker, never on the scheduling goroutine.
type savingSender struct {
	stream.Sender
	dir string
}

func (s savingSender) Send(ctx context.Context, b *buffer.Buffer) error {
	h, err := b.Header(buffer.Version)
	if err != nil {
		return err
	}
	path := filepath.Join(s.dir, fmt.Sprintf("%08d.buf", h.Seq))
	if err := os.WriteFile(path, b.Bytes(), 0o644); err != nil {
		return err
	}
	return s.Sender.Send(ctx, b)
}

func (a *app) sendCmd() *cobra.Command {
	var (
		in     string
		format string
		save   string
	)
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Stream wav file to receiver over unix socket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sampleFormat, err := audio.ParseFormat(format)
			if err != nil {
				return err
			}
			f, err := os.Open(in)
			if err != nil {
				return err
			}
			defer f.Close()
			source, err := wav.NewSource(f, blocks, a.cfg.BufferSize)
			if err != nil {
				return fmt.Errorf("%s: %w", in, err)
			}

			ctx := cmd.Context()
			conn, err := transport.Dial(ctx, a.cfg.Socket, a.transportOptions()...)
			if err != nil {
				return err
			}
			var sender stream.Sender = conn
			if save != "" {
				if err := os.MkdirAll(save, 0o755); err != nil {
					return errors.Join(err, conn.Close())
				}
				sender = savingSender{Sender: conn, dir: save}
			}
			sink, err := stream.NewSink(sender, source.Pool(), blocks, buffer.Version, sampleFormat)
			if err != nil {
				return errors.Join(err, conn.Close())
			}

			g := a.newGraph("send")
			nodes, err := chain(g, source, sink)
			if err != nil {
				return errors.Join(err, conn.Close())
			}
			grp, gctx := errgroup.WithContext(ctx)
			grp.Go(func() error {
				return sink.Run(gctx)
			})
			grp.Go(func() error {
				defer sink.Close()
				return drainPaced(gctx, g, nodes, source.Done, sink.Wait)
			})
			err = grp.Wait()
			a.log.Debugf("sent %d buffers to %s", sink.Sent(), a.cfg.Socket)
			a.printMetrics(cmd.OutOrStdout())
			return errors.Join(err, conn.Close())
		},
	}
	cmd.Flags().StringVar(&in, "in", "", "input wav file")
	cmd.Flags().String("socket", "", "unix socket path")
	cmd.Flags().StringVar(&format, "format", audio.F32LE.String(), "transferred sample format: S16LE, F32LE or F64LE")
	cmd.Flags().StringVar(&save, "save", "", "directory to save sent buffers to")
	_ = cmd.MarkFlagRequired("in")
	return cmd
}

func (a *app) receiveCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "receive",
		Short: "Receive stream from sender and save it to wav file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			ctx := cmd.Context()
			l, err := transport.Listen(a.cfg.Socket, a.transportOptions()...)
			if err != nil {
				return err
			}
			defer l.Close()
			conn, err := l.Accept(ctx)
			if err != nil {
				return err
			}
			defer conn.Close()

			source, err := stream.NewSource(ctx, conn, buffer.Version, blocks, a.cfg.BufferSize)
			if err != nil {
				return err
			}
			defer source.Close()
			f, err := os.Create(out)
			if err != nil {
				return err
			}
			defer func() {
				err = errors.Join(err, f.Close())
			}()
			sink, err := wav.NewSink(f, source.Pool(), receiveBitDepth)
			if err != nil {
				return err
			}

			g := a.newGraph("receive")
			nodes, err := chain(g, source, sink)
			if err != nil {
				return err
			}
			grp, gctx := errgroup.WithContext(ctx)
			grp.Go(func() error {
				return source.Run(gctx)
			})
			grp.Go(func() error {
				return drainPaced(gctx, g, nodes, source.Done, source.Wait)
			})
			err = errors.Join(grp.Wait(), sink.Close())
			a.log.Debugf("received %d frames in %v", sink.Frames(), source.Info())
			a.printMetrics(cmd.OutOrStdout())
			return err
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "output wav file")
	cmd.Flags().String("socket", "", "unix socket path")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}
