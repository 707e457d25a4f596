// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package protocol compiles event schemas into wire codecs, event ids and
// per-site factories and handler tables.
//
// Compilation is a pure function of its input. Ids are minted here and
// nowhere else: the event at position i of the input gets id i.
//
//	ns, _ := schema.LoadFile("game.yaml")
//	p, err := protocol.CompileNamespace(ns)
//	f, _ := p.NewFactory(schema.Client)   // "EventFactoryOnClient"
//	h, _ := p.NewHandlers(schema.Client)  // "EventHandlersOnClient"
package protocol

import (
	"fmt"
	"math"
	"slices"

	log "github.com/golang/glog"

	"github.com/luxfi/eventrpc/event"
	"github.com/luxfi/eventrpc/schema"
	"github.com/luxfi/eventrpc/wire"
)

// Descriptor is the identity of a compiled namespace. Name is the
// procedure name transports register.
type Descriptor struct {
	Name      string `json:"name"`
	Namespace string `json:"namespace"`
}

// EventInfo is one compiled event type.
type EventInfo struct {
	ID     uint32
	Name   string
	Sites  []schema.Site
	Fields []schema.Field

	layout *event.Layout
}

// Layout returns the event codec.
func (e *EventInfo) Layout() *event.Layout { return e.layout }

// HandledOn reports whether the event is tagged for site.
func (e *EventInfo) HandledOn(site schema.Site) bool {
	return slices.Contains(e.Sites, site)
}

// SiteInfo is the partition of a protocol handled by one site.
type SiteInfo struct {
	Name         schema.Site
	FactoryName  string
	HandlersName string
	// Events in id order.
	Events []*EventInfo
}

// FactoryName returns the artifact name of a site's factory.
func FactoryName(site schema.Site) string { return "EventFactoryOn" + string(site) }

// HandlersName returns the artifact name of a site's handler table.
func HandlersName(site schema.Site) string { return "EventHandlersOn" + string(site) }

// Compiled is the output of Compile. It is immutable and safe for
// concurrent use.
type Compiled struct {
	desc        Descriptor
	events      []*EventInfo
	byName      map[string]*EventInfo
	sites       map[schema.Site]*SiteInfo
	siteNames   []schema.Site
	fingerprint Fingerprint
}

// CompileNamespace compiles a loaded namespace.
func CompileNamespace(ns *schema.Namespace) (*Compiled, error) {
	return Compile(ns.Name, Descriptor{Name: ns.Protocol, Namespace: ns.Name}, ns.Events)
}

// Compile assigns ids by position, resolves every field codec and
// partitions the events by site. The first failure aborts the namespace
// with a *SchemaError and no output.
func Compile(namespace string, desc Descriptor, events []schema.EventType) (*Compiled, error) {
	fail := func(err error) (*Compiled, error) {
		return nil, &SchemaError{Namespace: namespace, Err: err}
	}
	switch {
	case namespace == "":
		return fail(ErrNoNamespace)
	case desc.Name == "":
		return fail(ErrNoDescriptor)
	case desc.Namespace == "":
		desc.Namespace = namespace
	case desc.Namespace != namespace:
		return fail(fmt.Errorf("%w: %s", ErrNamespaceMismatch, desc.Namespace))
	}
	if int64(len(events)) > math.MaxInt32 {
		return fail(fmt.Errorf("%w: %d", ErrTooManyEvents, len(events)))
	}

	c := &Compiled{
		desc:   desc,
		events: make([]*EventInfo, 0, len(events)),
		byName: make(map[string]*EventInfo, len(events)),
		sites:  make(map[schema.Site]*SiteInfo),
	}
	for i, et := range events {
		info, err := compileEvent(namespace, uint32(i), et)
		if err != nil {
			return nil, err
		}
		if _, ok := c.byName[info.Name]; ok {
			return nil, &SchemaError{Namespace: namespace, Event: et.Name, Err: schema.ErrDuplicateEvent}
		}
		c.byName[info.Name] = info
		c.events = append(c.events, info)

		if len(info.Sites) == 0 {
			log.V(1).Infof("protocol %s: event %s has no sites and is never dispatched", desc.Name, info.Name)
		}
		for _, site := range info.Sites {
			s, ok := c.sites[site]
			if !ok {
				s = &SiteInfo{
					Name:         site,
					FactoryName:  FactoryName(site),
					HandlersName: HandlersName(site),
				}
				c.sites[site] = s
				c.siteNames = append(c.siteNames, site)
			}
			s.Events = append(s.Events, info)
		}
	}
	slices.Sort(c.siteNames)

	fp, err := fingerprintOf(c)
	if err != nil {
		return nil, fmt.Errorf("fingerprint %s: %w", desc.Name, err)
	}
	c.fingerprint = fp

	log.V(1).Infof("compiled protocol %s: %d events, sites %v, fingerprint %s",
		desc.Name, len(c.events), c.siteNames, fp.Short())
	return c, nil
}

func compileEvent(namespace string, id uint32, et schema.EventType) (*EventInfo, error) {
	if err := et.Validate(); err != nil {
		return nil, &SchemaError{Namespace: namespace, Event: et.Name, Err: err}
	}
	fields := make([]event.Field, len(et.Fields))
	for i, f := range et.Fields {
		codec, err := wire.Resolve(f.Type)
		if err != nil {
			return nil, &SchemaError{
				Namespace: namespace,
				Event:     et.Name,
				Field:     f.Name,
				Type:      f.Type,
				Err:       err,
			}
		}
		fields[i] = event.Field{Name: f.Name, Type: f.Type, Codec: codec}
	}
	return &EventInfo{
		ID:     id,
		Name:   et.Name,
		Sites:  slices.Clone(et.Sites),
		Fields: slices.Clone(et.Fields),
		layout: event.NewLayout(id, et.Name, fields),
	}, nil
}

func (c *Compiled) Descriptor() Descriptor   { return c.desc }
func (c *Compiled) Fingerprint() Fingerprint { return c.fingerprint }

// Events returns every event in id order, including events without sites.
func (c *Compiled) Events() []*EventInfo { return slices.Clone(c.events) }

// Event looks up an event by name.
func (c *Compiled) Event(name string) (*EventInfo, bool) {
	e, ok := c.byName[name]
	return e, ok
}

// EventByID looks up an event by id.
func (c *Compiled) EventByID(id uint32) (*EventInfo, bool) {
	if int64(id) >= int64(len(c.events)) {
		return nil, false
	}
	return c.events[id], true
}

// Sites returns the declared sites in sorted order.
func (c *Compiled) Sites() []schema.Site { return slices.Clone(c.siteNames) }

// Site returns the partition of one site.
func (c *Compiled) Site(site schema.Site) (*SiteInfo, bool) {
	s, ok := c.sites[site]
	return s, ok
}

// NewFactory returns a factory for every event handled on site.
func (c *Compiled) NewFactory(site schema.Site) (*event.Factory, error) {
	s, ok := c.sites[site]
	if !ok {
		return nil, fmt.Errorf("%w: %s in %s", ErrUnknownSite, site, c.desc.Name)
	}
	f := event.NewFactory(s.FactoryName)
	for _, e := range s.Events {
		if err := f.Register(e.layout); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// NewEvent returns an unpooled event for sending.
func (c *Compiled) NewEvent(name string) (*event.Event, error) {
	e, ok := c.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s in %s", ErrUnknownEvent, name, c.desc.Name)
	}
	return e.layout.New(), nil
}
