// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Command eventc compiles event schemas and inspects running catalogs.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/golang/glog"
	"github.com/spf13/cobra"

	"github.com/luxfi/eventrpc/protocol"
	"github.com/luxfi/eventrpc/schema"
)

var version = "dev"

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "eventc",
		Short:         "Compile event schemas into wire contracts",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			// glog refuses to log until its flags are parsed.
			_ = flag.CommandLine.Parse(nil)
		},
	}
	root.PersistentFlags().AddGoFlagSet(flag.CommandLine)

	root.AddCommand(newCheckCommand())
	root.AddCommand(newDescribeCommand())
	root.AddCommand(newFingerprintCommand())
	root.AddCommand(newQueryCommand())
	return root
}

// compileFile loads and compiles one schema file.
func compileFile(path string) (*protocol.Compiled, error) {
	ns, err := schema.LoadFile(path)
	if err != nil {
		return nil, err
	}
	if err := ns.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	p, err := protocol.CompileNamespace(ns)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := newRootCommand().ExecuteContext(ctx)
	log.Flush()
	if err != nil {
		fmt.Fprintln(os.Stderr, "eventc:", err)
		stop()
		os.Exit(1)
	}
}
