// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package protocol

import (
	"context"
	"fmt"

	"github.com/luxfi/eventrpc/event"
	"github.com/luxfi/eventrpc/schema"
)

// HandlerFunc handles one dispatched event. The event is released when the
// handler returns; handlers that keep it must Clone it.
type HandlerFunc func(ctx context.Context, e *event.Event) error

// Handlers has one callback slot per event handled on a site. Slots are
// filled during startup; Dispatch may then be called from any goroutine.
type Handlers struct {
	name  string
	site  schema.Site
	slots map[uint32]HandlerFunc
	ids   map[string]uint32
}

// NewHandlers returns an empty handler table for site.
func (c *Compiled) NewHandlers(site schema.Site) (*Handlers, error) {
	s, ok := c.sites[site]
	if !ok {
		return nil, fmt.Errorf("%w: %s in %s", ErrUnknownSite, site, c.desc.Name)
	}
	h := &Handlers{
		name:  s.HandlersName,
		site:  site,
		slots: make(map[uint32]HandlerFunc, len(s.Events)),
		ids:   make(map[string]uint32, len(s.Events)),
	}
	for _, e := range s.Events {
		h.slots[e.ID] = nil
		h.ids[e.Name] = e.ID
	}
	return h, nil
}

func (h *Handlers) Name() string      { return h.name }
func (h *Handlers) Site() schema.Site { return h.site }

// Handles reports whether the event id has a slot on this site.
func (h *Handlers) Handles(id uint32) bool {
	_, ok := h.slots[id]
	return ok
}

// Bound reports whether the slot of the event id holds a handler.
func (h *Handlers) Bound(id uint32) bool {
	return h.slots[id] != nil
}

// On fills the slot of the named event, replacing any previous handler.
func (h *Handlers) On(name string, fn HandlerFunc) error {
	id, ok := h.ids[name]
	if !ok {
		return fmt.Errorf("%w: %s on %s", ErrNotOnSite, name, h.site)
	}
	h.slots[id] = fn
	return nil
}

// Dispatch invokes the slot of e. An empty slot drops the event.
func (h *Handlers) Dispatch(ctx context.Context, e *event.Event) error {
	fn, ok := h.slots[e.ID()]
	if !ok {
		return fmt.Errorf("%w: %s on %s", ErrNotOnSite, e.Name(), h.site)
	}
	if fn == nil {
		return nil
	}
	return fn(ctx, e)
}
