// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package schema

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/luxfi/eventrpc/wire"
)

var (
	ErrNoNamespace = errors.New("schema: namespace is required")
	ErrNoProtocol  = errors.New("schema: protocol is required")
	ErrNoType      = errors.New("schema: field type is required")
)

type namespaceFile struct {
	Namespace string      `yaml:"namespace"`
	Protocol  string      `yaml:"protocol"`
	Enums     []Enum      `yaml:"enums"`
	Events    []eventFile `yaml:"events"`
}

type eventFile struct {
	Name   string      `yaml:"name"`
	Sites  []Site      `yaml:"sites"`
	Fields []fieldFile `yaml:"fields"`
}

type fieldFile struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

// Load reads a namespace definition:
//
//	namespace: game
//	protocol: GameProtocol
//	enums:
//	  - name: Team
//	    values: [Red, Blue]
//	events:
//	  - name: Ping
//	    sites: [Client, Server]
//	    fields:
//	      - {name: value, type: int32}
//
// Events keep their file order. Unknown keys are rejected.
func Load(r io.Reader) (*Namespace, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f namespaceFile
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrNoNamespace
		}
		return nil, fmt.Errorf("parse schema: %w", err)
	}
	if f.Namespace == "" {
		return nil, ErrNoNamespace
	}
	if f.Protocol == "" {
		return nil, fmt.Errorf("%w: namespace %s", ErrNoProtocol, f.Namespace)
	}

	ns := &Namespace{
		Name:     f.Namespace,
		Protocol: f.Protocol,
		Enums:    f.Enums,
		Events:   make([]EventType, 0, len(f.Events)),
	}
	for _, ef := range f.Events {
		ev := EventType{Name: ef.Name, Sites: ef.Sites}
		for _, ff := range ef.Fields {
			if ff.Type == "" {
				return nil, fmt.Errorf("%w: %s.%s", ErrNoType, ef.Name, ff.Name)
			}
			ev.Fields = append(ev.Fields, Field{
				Name: ff.Name,
				Type: wire.ParseType(ff.Type, ns.IsEnum),
			})
		}
		ns.Events = append(ns.Events, ev)
	}
	return ns, nil
}

// LoadFile reads a namespace definition from path.
func LoadFile(path string) (*Namespace, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	ns, err := Load(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ns, nil
}
