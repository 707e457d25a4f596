// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package catalog serves descriptions of compiled protocols over JSON-RPC
// 2.0 so peers and tools can compare wire contracts before connecting.
//
// Methods:
//
//	Catalog.List     {}              -> {"protocols": [...]}
//	Catalog.Describe {"name": "..."} -> Protocol
package catalog

import (
	"errors"
	"fmt"
	"net/http"

	log "github.com/golang/glog"
	"github.com/gorilla/rpc/v2"
	"github.com/gorilla/rpc/v2/json2"

	"github.com/luxfi/eventrpc/protocol"
)

// Path is the HTTP path the catalog is served on.
const Path = "/catalog"

// codeNotFound is the JSON-RPC error code of an unknown protocol name.
const codeNotFound json2.ErrorCode = -32004

var ErrNotFound = errors.New("catalog: protocol not found")

// Field is one payload field.
type Field struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Event is one compiled event type.
type Event struct {
	ID     uint32   `json:"id"`
	Name   string   `json:"name"`
	Sites  []string `json:"sites"`
	Fields []Field  `json:"fields"`
}

// Site is the partition handled by one process role.
type Site struct {
	Name     string   `json:"name"`
	Factory  string   `json:"factory"`
	Handlers string   `json:"handlers"`
	Events   []string `json:"events"`
}

// Protocol describes a compiled protocol.
type Protocol struct {
	Name        string  `json:"name"`
	Namespace   string  `json:"namespace"`
	Fingerprint string  `json:"fingerprint"`
	Events      []Event `json:"events"`
	Sites       []Site  `json:"sites"`
}

// Describe returns the description of p.
func Describe(p *protocol.Compiled) Protocol {
	d := p.Descriptor()
	out := Protocol{
		Name:        d.Name,
		Namespace:   d.Namespace,
		Fingerprint: p.Fingerprint().String(),
	}
	for _, e := range p.Events() {
		ev := Event{ID: e.ID, Name: e.Name, Sites: []string{}, Fields: []Field{}}
		for _, s := range e.Sites {
			ev.Sites = append(ev.Sites, string(s))
		}
		for _, f := range e.Fields {
			ev.Fields = append(ev.Fields, Field{Name: f.Name, Type: f.Type.String()})
		}
		out.Events = append(out.Events, ev)
	}
	for _, name := range p.Sites() {
		s, _ := p.Site(name)
		site := Site{Name: string(name), Factory: s.FactoryName, Handlers: s.HandlersName}
		for _, e := range s.Events {
			site.Events = append(site.Events, e.Name)
		}
		out.Sites = append(out.Sites, site)
	}
	return out
}

// Service is the JSON-RPC receiver registered as "Catalog".
type Service struct {
	lib *protocol.Library
}

type ListArgs struct{}

type ListReply struct {
	Protocols []string `json:"protocols"`
}

type DescribeArgs struct {
	Name string `json:"name"`
}

// List returns the names of all served protocols.
func (s *Service) List(_ *http.Request, _ *ListArgs, reply *ListReply) error {
	reply.Protocols = s.lib.Names()
	return nil
}

// Describe returns one protocol.
func (s *Service) Describe(r *http.Request, args *DescribeArgs, reply *Protocol) error {
	p, ok := s.lib.Lookup(args.Name)
	if !ok {
		log.V(1).Infof("catalog: %s asked for unknown protocol %q", r.RemoteAddr, args.Name)
		return &json2.Error{Code: codeNotFound, Message: fmt.Sprintf("protocol %q not found", args.Name)}
	}
	*reply = Describe(p)
	return nil
}

// NewHandler returns the JSON-RPC handler serving lib.
func NewHandler(lib *protocol.Library) (http.Handler, error) {
	s := rpc.NewServer()
	s.RegisterCodec(json2.NewCodec(), "application/json")
	if err := s.RegisterService(&Service{lib: lib}, "Catalog"); err != nil {
		return nil, err
	}
	return s, nil
}
