// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/luxfi/eventrpc/catalog"
)

func newQueryCommand() *cobra.Command {
	var (
		asJSON  bool
		headers []string
	)
	cmd := &cobra.Command{
		Use:   "query <url> [protocol]",
		Short: "List or describe the protocols a node serves",
		Long: `Query calls the JSON-RPC catalog of a running node. Without a protocol
name it lists the served protocols; with one it prints its description.`,
		Example: "  eventc query http://127.0.0.1:9701/catalog GameProtocol",
		Args:    cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var opts []catalog.Option
			for _, h := range headers {
				k, v, ok := strings.Cut(h, ":")
				if !ok {
					return fmt.Errorf("bad header %q, want key:value", h)
				}
				opts = append(opts, catalog.WithHeader(strings.TrimSpace(k), strings.TrimSpace(v)))
			}
			c, err := catalog.NewClient(args[0], opts...)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(args) == 1 {
				names, err := c.List(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(out, names)
				}
				for _, n := range names {
					fmt.Fprintln(out, n)
				}
				return nil
			}

			d, err := c.Describe(cmd.Context(), args[1])
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(out, d)
			}
			return writeProtocol(out, d)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	cmd.Flags().StringArrayVarP(&headers, "header", "H", nil, "extra request header, key:value")
	return cmd
}
