package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"pipelined.dev/graph"
	"pipelined.dev/graph/gain"
	"pipelined.dev/graph/log"
	"pipelined.dev/graph/pool"
	"pipelined.dev/graph/portaudio"
	"pipelined.dev/graph/ring"
	"pipelined.dev/graph/wav"
)

func (a *app) playCmd() *cobra.Command {
	var (
		in     string
		factor float64
	)
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Play wav file on the default output device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			f, err := os.Open(in)
			if err != nil {
				return err
			}
			defer f.Close()
			source, err := wav.NewSource(f, blocks, a.cfg.BufferSize)
			if err != nil {
				return fmt.Errorf("%s: %w", in, err)
			}

			// file is decoded by reader graph, device callback only
			// takes decoded blocks from the ring.
			r := ring.New(blocks, source.Pool().BlockSize())
			feed, err := ring.NewSink(r, source.Pool())
			if err != nil {
				return err
			}
			reader := a.newGraph("read")
			readNodes, err := chain(reader, source, feed)
			if err != nil {
				return err
			}
			playback, err := ring.NewSource(r, pool.New(blocks, a.cfg.BufferSize, source.Pool().Format()))
			if err != nil {
				return err
			}
			sink := portaudio.NewSink(playback.Pool())
			g := a.newGraph("play")
			nodes, err := chain(g, playback, gain.New(playback.Pool(), factor), sink)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			grp, gctx := errgroup.WithContext(ctx)
			grp.Go(func() error {
				defer feed.Close()
				if err := drainPaced(gctx, reader, readNodes, source.Done, feed.Wait); err != nil {
					return err
				}
				log.Component(a.log, "reader").Debugf("decoded %s", in)
				return nil
			})
			defer func() {
				cancel()
				if werr := grp.Wait(); !errors.Is(werr, context.Canceled) {
					err = errors.Join(err, werr)
				}
			}()
			// device starts with the first block decoded.
			if err := playback.Wait(gctx); err != nil {
				return err
			}

			player := portaudio.NewPlayer(graph.NewScheduler(g), nodes[len(nodes)-1], sink)
			if err := player.Start(); err != nil {
				return err
			}
			a.log.Debugf("playing %s", in)
			select {
			case <-sink.Done():
			case err = <-player.Errors():
				err = errors.Join(err, processorErrors(nodes))
			case <-gctx.Done():
				// reader error is joined by the deferred wait.
				err = cmd.Context().Err()
			}
			err = errors.Join(err, player.Stop())
			a.log.Debugf("played %d frames, %d underruns", sink.Frames(), playback.Underruns())
			a.printMetrics(cmd.OutOrStdout())
			return err
		},
	}
	cmd.Flags().StringVar(&in, "in", "", "input wav file")
	cmd.Flags().Float64Var(&factor, "gain", 1, "gain factor")
	_ = cmd.MarkFlagRequired("in")
	return cmd
}
