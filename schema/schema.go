// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package schema describes event types before they are compiled: their
// ordered fields, the process roles that handle them and the namespace
// they belong to.
//
// Declaration order is part of the protocol. The compiler assigns event
// ids by position, so reordering events in a namespace changes the wire
// format.
package schema

import (
	"slices"

	"github.com/luxfi/eventrpc/wire"
)

// Site names a process role that handles an event, e.g. Client or Server.
// The set of sites is open.
type Site string

const (
	Client Site = "Client"
	Server Site = "Server"
)

// Field is one payload field of an event.
type Field struct {
	Name string
	Type wire.Type
}

// EventType declares an event. An event with no sites is compiled but never
// dispatched.
type EventType struct {
	Name   string
	Sites  []Site
	Fields []Field
}

// HandledOn reports whether the event is tagged for site.
func (e EventType) HandledOn(site Site) bool {
	return slices.Contains(e.Sites, site)
}

// Enum is a named enumeration. Enum fields are accepted here and rejected
// by the compiler until the wire format defines them.
type Enum struct {
	Name   string   `yaml:"name"`
	Values []string `yaml:"values"`
}

// Namespace groups the events of one protocol.
type Namespace struct {
	// Name is the namespace id.
	Name string
	// Protocol is the descriptor name, used as the transport procedure name.
	Protocol string
	Enums    []Enum
	Events   []EventType
}

// IsEnum reports whether name is a declared enum.
func (n *Namespace) IsEnum(name string) bool {
	return slices.ContainsFunc(n.Enums, func(e Enum) bool { return e.Name == name })
}

// F is shorthand for a Field.
func F(name string, t wire.Type) Field {
	return Field{Name: name, Type: t}
}

// E is shorthand for an EventType.
func E(name string, sites []Site, fields ...Field) EventType {
	return EventType{Name: name, Sites: sites, Fields: fields}
}
