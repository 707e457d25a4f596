// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package protocol

import (
	"errors"
	"fmt"
	"strings"

	"github.com/luxfi/eventrpc/wire"
)

var (
	ErrNoDescriptor      = errors.New("protocol: descriptor name is required")
	ErrNoNamespace       = errors.New("protocol: namespace is required")
	ErrNamespaceMismatch = errors.New("protocol: descriptor namespace mismatch")
	ErrTooManyEvents     = errors.New("protocol: too many events")
	ErrUnknownSite       = errors.New("protocol: unknown site")
	ErrUnknownEvent      = errors.New("protocol: unknown event")
	ErrNotOnSite         = errors.New("protocol: event not handled on site")
	ErrDuplicateProtocol = errors.New("protocol: duplicate protocol")
)

// SchemaError reports why a namespace failed to compile. Event, Field and
// Type are set when the failure is tied to one field.
type SchemaError struct {
	Namespace string
	Event     string
	Field     string
	Type      wire.Type
	Err       error
}

func (e *SchemaError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "compile %s", e.Namespace)
	if e.Event != "" {
		fmt.Fprintf(&b, ": event %s", e.Event)
	}
	if e.Field != "" {
		fmt.Fprintf(&b, ": field %s (%s)", e.Field, e.Type)
	}
	fmt.Fprintf(&b, ": %v", e.Err)
	return b.String()
}

func (e *SchemaError) Unwrap() error { return e.Err }
