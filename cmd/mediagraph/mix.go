package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"pipelined.dev/graph"
	"pipelined.dev/graph/mixer"
	"pipelined.dev/graph/wav"
)

// mixBitDepth is the bit depth of mixed wav files.
const mixBitDepth = 16

func (a *app) mixCmd() *cobra.Command {
	var (
		in  []string
		out string
	)
	cmd := &cobra.Command{
		Use:   "mix",
		Short: "Mix wav files of the same format into wav file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			g := a.newGraph("mix")
			var (
				m     *mixer.Mixer
				nodes []*graph.Node
			)
			for _, path := range in {
				f, err := os.Open(path)
				if err != nil {
					return err
				}
				defer f.Close()
				source, err := wav.NewSource(f, blocks, a.cfg.BufferSize)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				if m == nil {
					m = mixer.New(source.Pool().Format(), blocks, a.cfg.BufferSize)
					mixNodes, err := chain(g, m)
					if err != nil {
						return err
					}
					nodes = append(nodes, mixNodes[0])
				}
				if err := m.AddInput(source.Pool()); err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				sourceNodes, err := chain(g, source)
				if err != nil {
					return err
				}
				if err := connect(g, sourceNodes[0], nodes[0]); err != nil {
					return err
				}
				nodes = append(nodes, sourceNodes[0])
			}

			if m == nil {
				return errors.New("no inputs")
			}
			s, closeSink, err := openSink(out, m.Pool(), mixBitDepth, renderFlags{
				bitRate: defaultBitRate,
				quality: defaultQuality,
			})
			if err != nil {
				return err
			}
			defer func() {
				err = errors.Join(err, closeSink())
			}()
			sinkNodes, err := chain(g, s)
			if err != nil {
				return err
			}
			if err := connect(g, nodes[0], sinkNodes[0]); err != nil {
				return err
			}
			nodes = append(nodes, sinkNodes[0])

			a.log.Debugf("mix %v to %s", in, out)
			err = drain(cmd.Context(), g, nodes, m.Done)
			a.printMetrics(cmd.OutOrStdout())
			return err
		},
	}
	cmd.Flags().StringSliceVar(&in, "in", nil, "input wav files")
	cmd.Flags().StringVar(&out, "out", "", "output .wav or .mp3 file")
	_ = cmd.MarkFlagRequired("in")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}
