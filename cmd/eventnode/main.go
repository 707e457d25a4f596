// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Command eventnode runs one site of a schema-defined event protocol. A
// Server listens for peers; a Client dials one and can send a probe event
// on an interval. Every event the site handles is logged.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/golang/glog"
	"github.com/spf13/cobra"

	"github.com/luxfi/eventrpc/config"
)

var errBadProbeInterval = errors.New("probe interval must be positive")

func newRootCommand() *cobra.Command {
	var (
		configPath    string
		probe         string
		probeInterval time.Duration
	)
	cmd := &cobra.Command{
		Use:           "eventnode",
		Short:         "Run a client or server node of an event protocol",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_ = flag.CommandLine.Parse(nil)
			if probe != "" && probeInterval <= 0 {
				return fmt.Errorf("%w: %v", errBadProbeInterval, probeInterval)
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			n, err := newNode(cfg)
			if err != nil {
				return err
			}
			if probe != "" {
				n.probe(probe, probeInterval)
			}
			return n.run(cmd.Context())
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", os.Getenv(config.EnvPrefix+"CONFIG"), "YAML configuration file")
	cmd.Flags().StringVar(&probe, "probe", "", "event a client sends to the server on every probe interval")
	cmd.Flags().DurationVar(&probeInterval, "probe-interval", 4*time.Second, "interval between probe events")
	cmd.Flags().AddGoFlagSet(flag.CommandLine)
	return cmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := newRootCommand().ExecuteContext(ctx)
	log.Flush()
	if err != nil {
		fmt.Fprintln(os.Stderr, "eventnode:", err)
		stop()
		os.Exit(1)
	}
}
