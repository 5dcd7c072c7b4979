package main

import (
	"fmt"
	"io"
	"os"

	"github.com/davecgh/go-spew/spew"
	"github.com/spf13/cobra"

	"pipelined.dev/graph/audio"
	"pipelined.dev/graph/buffer"
)

func (a *app) dumpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dump file...",
		Short: "Print packets of saved buffers",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s:\n", path)
				if err := dump(cmd.OutOrStdout(), buffer.FromMemory(data, nil)); err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
			}
			return nil
		},
	}
}

// dump prints header and packets of the buffer. Saved buffers carry no
// descriptors, so payloads are printed as they are.
func dump(w io.Writer, b *buffer.Buffer) error {
	config := spew.ConfigState{
		Indent:                  "\t",
		DisableCapacities:       true,
		DisablePointerAddresses: true,
	}
	h, err := b.Header(buffer.Version)
	if err != nil {
		return err
	}
	config.Fdump(w, h)
	it := b.Iter(buffer.Version)
	for it.Next() {
		fmt.Fprintf(w, "%v, %d bytes:\n", it.Type(), len(it.Data()))
		switch it.Type() {
		case buffer.FDPayload:
			p, err := it.FD()
			if err != nil {
				return err
			}
			config.Fdump(w, p)
		case buffer.FormatChange:
			p, err := it.Format()
			if err != nil {
				return err
			}
			var info audio.RawInfo
			if err := info.UnmarshalBinary(p.Format); err != nil {
				config.Fdump(w, p)
				continue
			}
			fmt.Fprintf(w, "format %d: %v\n", p.ID, info)
		case buffer.PropertyChange:
			p, err := it.Property()
			if err != nil {
				return err
			}
			config.Fdump(w, p)
		default:
			config.Fdump(w, it.Data())
		}
	}
	return it.Err()
}
