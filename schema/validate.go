// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package schema

import (
	"errors"
	"fmt"
)

var (
	ErrNoName         = errors.New("schema: name is required")
	ErrDuplicateEvent = errors.New("schema: duplicate event")
	ErrDuplicateField = errors.New("schema: duplicate field")
	ErrDuplicateSite  = errors.New("schema: duplicate site")
)

// Validate checks the structural rules of a single event: a name, unique
// field names and unique sites. Field types are checked by the compiler.
func (e EventType) Validate() error {
	if e.Name == "" {
		return fmt.Errorf("%w: event", ErrNoName)
	}
	sites := make(map[Site]struct{}, len(e.Sites))
	for _, s := range e.Sites {
		if s == "" {
			return fmt.Errorf("%w: site of %s", ErrNoName, e.Name)
		}
		if _, ok := sites[s]; ok {
			return fmt.Errorf("%w: %s on %s", ErrDuplicateSite, s, e.Name)
		}
		sites[s] = struct{}{}
	}
	fields := make(map[string]struct{}, len(e.Fields))
	for _, f := range e.Fields {
		if f.Name == "" {
			return fmt.Errorf("%w: field of %s", ErrNoName, e.Name)
		}
		if _, ok := fields[f.Name]; ok {
			return fmt.Errorf("%w: %s.%s", ErrDuplicateField, e.Name, f.Name)
		}
		fields[f.Name] = struct{}{}
	}
	return nil
}

// Validate checks the namespace and each of its events.
func (n *Namespace) Validate() error {
	if n.Name == "" {
		return ErrNoNamespace
	}
	if n.Protocol == "" {
		return fmt.Errorf("%w: namespace %s", ErrNoProtocol, n.Name)
	}
	seen := make(map[string]struct{}, len(n.Events))
	for _, e := range n.Events {
		if err := e.Validate(); err != nil {
			return err
		}
		if _, ok := seen[e.Name]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateEvent, e.Name)
		}
		seen[e.Name] = struct{}{}
	}
	return nil
}
