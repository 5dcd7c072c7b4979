// Command mediagraph renders, plays and streams wav files through the
// media graph.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"pipelined.dev/graph/config"
	"pipelined.dev/graph/log"
)

var version = "dev"

// blocks is the number of blocks in source pools.
const blocks = 4

// app holds state shared by commands.
type app struct {
	cfgFile string
	cfg     config.Config
	log     *logrus.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "mediagraph",
		Short:         "Render, play and stream audio through media graph",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
	}
	root.PersistentFlags().StringVarP(&a.cfgFile, "config", "c", "",
		"config file (default: defaults and MEDIAGRAPH_* environment)")
	root.PersistentFlags().Bool("debug", false, "enable debug logging")
	root.PersistentFlags().Bool("metrics", false, "print node metrics when done")
	root.PersistentFlags().Int("buffer-size", 0, "frames per block")

	root.AddCommand(
		a.renderCmd(),
		a.mixCmd(),
		a.playCmd(),
		a.sendCmd(),
		a.receiveCmd(),
		a.dumpCmd(),
	)
	return root
}

// init loads configuration and applies flags that were set.
func (a *app) init(cmd *cobra.Command) error {
	cfg, err := config.Load(a.cfgFile)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("debug") {
		cfg.Debug, _ = flags.GetBool("debug")
	}
	if flags.Changed("metrics") {
		cfg.Metrics, _ = flags.GetBool("metrics")
	}
	if flags.Changed("buffer-size") {
		cfg.BufferSize, _ = flags.GetInt("buffer-size")
	}
	if flags.Lookup("socket") != nil && flags.Changed("socket") {
		cfg.Socket, _ = flags.GetString("socket")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	a.cfg = cfg
	a.log = log.GetLogger()
	if cfg.Debug {
		a.log.SetLevel(logrus.DebugLevel)
	}
	a.log.SetOutput(cmd.ErrOrStderr())
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Command failed: %v\n", err)
		os.Exit(1)
	}
}
