// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/golang/glog"
	"github.com/spf13/cobra"
)

// settle coalesces the burst of events an editor produces on save.
const settle = 100 * time.Millisecond

func newCheckCommand() *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "check <schema.yaml>",
		Short: "Validate and compile a schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			err := check(cmd.OutOrStdout(), path)
			if !watch {
				return err
			}
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), err)
			}
			return watchFile(cmd.Context(), path, func() {
				if err := check(cmd.OutOrStdout(), path); err != nil {
					fmt.Fprintln(cmd.ErrOrStderr(), err)
				}
			})
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "recompile whenever the file changes")
	return cmd
}

func check(w io.Writer, path string) error {
	p, err := compileFile(path)
	if err != nil {
		return err
	}
	d := p.Descriptor()
	fmt.Fprintf(w, "ok %s (%s): %d events, %d sites, fingerprint %s\n",
		d.Name, d.Namespace, len(p.Events()), len(p.Sites()), p.Fingerprint().Short())
	return nil
}

// watchFile calls fn after every change to path until ctx is done. The
// parent directory is watched so that editors replacing the file by rename
// are seen.
func watchFile(ctx context.Context, path string, fn func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}
	log.Infof("watching %s", abs)

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs || !ev.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			log.V(1).Infof("schema changed: %s", ev)
			pending = time.After(settle)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warningf("watch %s: %v", path, err)
		case <-pending:
			pending = nil
			fn()
		}
	}
}
