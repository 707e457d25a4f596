// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/luxfi/eventrpc/catalog"
)

func newDescribeCommand() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "describe <schema.yaml>",
		Short: "Print event ids, fields and sites of a schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := compileFile(args[0])
			if err != nil {
				return err
			}
			d := catalog.Describe(p)
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), d)
			}
			return writeProtocol(cmd.OutOrStdout(), &d)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the catalog description as JSON")
	return cmd
}

func newFingerprintCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "fingerprint <schema.yaml>...",
		Short: "Print the wire contract fingerprint of each schema",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, path := range args {
				p, err := compileFile(path)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", p.Fingerprint(), path)
			}
			return nil
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeProtocol(w io.Writer, d *catalog.Protocol) error {
	fmt.Fprintf(w, "%s (%s) %s\n\n", d.Name, d.Namespace, d.Fingerprint)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tEVENT\tSITES\tFIELDS")
	for _, e := range d.Events {
		fields := make([]string, len(e.Fields))
		for i, f := range e.Fields {
			fields[i] = f.Name + " " + f.Type
		}
		sites := strings.Join(e.Sites, ",")
		if sites == "" {
			sites = "-"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", e.ID, e.Name, sites, strings.Join(fields, ", "))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	for _, s := range d.Sites {
		fmt.Fprintf(w, "\n%s: %s, %s\n  %s\n", s.Name, s.Factory, s.Handlers, strings.Join(s.Events, " "))
	}
	return nil
}
