package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"pipelined.dev/graph"
	"pipelined.dev/graph/gain"
	"pipelined.dev/graph/mp3"
	"pipelined.dev/graph/pool"
	"pipelined.dev/graph/repeat"
	"pipelined.dev/graph/wav"
)

// Default mp3 encoder settings.
const (
	defaultBitRate = 192
	defaultQuality = 2
)

type renderFlags struct {
	in      string
	out     []string
	gain    float64
	bitRate int
	quality int
}

func (a *app) renderCmd() *cobra.Command {
	var f renderFlags
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render wav file into wav or mp3 files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.render(cmd, f)
		},
	}
	cmd.Flags().StringVar(&f.in, "in", "", "input wav file")
	cmd.Flags().StringSliceVar(&f.out, "out", nil, "output .wav or .mp3 files")
	cmd.Flags().Float64Var(&f.gain, "gain", 1, "gain factor")
	cmd.Flags().IntVar(&f.bitRate, "bitrate", defaultBitRate, "mp3 bit rate")
	cmd.Flags().IntVar(&f.quality, "quality", defaultQuality, "mp3 quality")
	_ = cmd.MarkFlagRequired("in")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

// fileSink is a sink that must be flushed before file is closed.
type fileSink interface {
	graph.Processor
	Close() error
}

func newFileSink(w io.WriteSeeker, path string, p *pool.Pool, bitDepth int, f renderFlags) (fileSink, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".wav":
		return wav.NewSink(w, p, bitDepth)
	case ".mp3":
		return mp3.NewSink(w, p, f.bitRate, f.quality)
	default:
		return nil, fmt.Errorf("unsupported output format %q", ext)
	}
}

// openSink creates output file and sink that writes into it. Returned
// function flushes the sink and closes the file.
func openSink(path string, p *pool.Pool, bitDepth int, f renderFlags) (fileSink, func() error, error) {
	out, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	s, err := newFileSink(out, path, p, bitDepth, f)
	if err != nil {
		return nil, nil, errors.Join(err, out.Close())
	}
	return s, func() error {
		return errors.Join(s.Close(), out.Close())
	}, nil
}

// render pulls single output. Multiple outputs are fed by repeater and
// pushed from the source.
func (a *app) render(cmd *cobra.Command, f renderFlags) (err error) {
	in, err := os.Open(f.in)
	if err != nil {
		return err
	}
	defer in.Close()
	source, err := wav.NewSource(in, blocks, a.cfg.BufferSize)
	if err != nil {
		return fmt.Errorf("%s: %w", f.in, err)
	}

	sinks := make([]fileSink, 0, len(f.out))
	for _, path := range f.out {
		s, closeSink, openErr := openSink(path, source.Pool(), source.BitDepth(), f)
		if openErr != nil {
			return openErr
		}
		defer func() {
			err = errors.Join(err, closeSink())
		}()
		sinks = append(sinks, s)
	}

	g := a.newGraph("render")
	filter := gain.New(source.Pool(), f.gain)
	a.log.Debugf("render %s to %v", f.in, f.out)
	if len(sinks) == 1 {
		nodes, err := chain(g, source, filter, sinks[0])
		if err != nil {
			return err
		}
		err = drain(cmd.Context(), g, nodes, source.Done)
		a.printMetrics(cmd.OutOrStdout())
		return err
	}

	nodes, err := chain(g, source, filter, repeat.New())
	if err != nil {
		return err
	}
	repeater := nodes[len(nodes)-1]
	for _, s := range sinks {
		branch, err := chain(g, s)
		if err != nil {
			return err
		}
		if err := connect(g, repeater, branch[0]); err != nil {
			return err
		}
		nodes = append(nodes, branch[0])
	}
	err = flood(cmd.Context(), g, nodes, source.Done)
	a.printMetrics(cmd.OutOrStdout())
	return err
}
