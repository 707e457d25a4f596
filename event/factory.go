// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package event

import (
	"fmt"
	"slices"
	"sync"

	"github.com/luxfi/eventrpc/wire"
)

type entry struct {
	layout *Layout
	pool   sync.Pool
}

// Factory rebuilds events from buffers. Layouts are registered once from
// compiler output; after that a Factory is safe for concurrent use.
type Factory struct {
	name string

	mu      sync.RWMutex
	entries map[uint32]*entry
}

// NewFactory returns an empty factory.
func NewFactory(name string) *Factory {
	return &Factory{name: name, entries: make(map[uint32]*entry)}
}

func (f *Factory) Name() string { return f.name }

// Register adds the codec for one event id.
func (f *Factory) Register(l *Layout) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.entries[l.id]; ok {
		return fmt.Errorf("%w: %d in %s", ErrDuplicateID, l.id, f.name)
	}
	ent := &entry{layout: l}
	ent.pool.New = func() any {
		e := l.New()
		e.owner = f
		return e
	}
	f.entries[l.id] = ent
	return nil
}

// Has reports whether id is registered.
func (f *Factory) Has(id uint32) bool {
	_, ok := f.lookup(id)
	return ok
}

// IDs returns the registered event ids in ascending order.
func (f *Factory) IDs() []uint32 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	ids := make([]uint32, 0, len(f.entries))
	for id := range f.entries {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (f *Factory) lookup(id uint32) (*entry, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	ent, ok := f.entries[id]
	return ent, ok
}

// Recreate decodes one event. Failures are *wire.DecodeError wrapping
// ErrUnknownEventID, wire.ErrTruncated or wire.ErrFieldMismatch; no
// partially decoded event is ever returned.
func (f *Factory) Recreate(buf []byte) (*Event, error) {
	r := wire.NewReader(buf)
	id, err := r.Uint32()
	if err != nil {
		return nil, &wire.DecodeError{Field: "eventId", Err: err}
	}
	ent, ok := f.lookup(id)
	if !ok {
		return nil, &wire.DecodeError{Field: "eventId", Err: fmt.Errorf("%w %d in %s", ErrUnknownEventID, id, f.name)}
	}

	e := ent.pool.Get().(*Event)
	if err := ent.layout.decode(r, e); err != nil {
		e.reset()
		ent.pool.Put(e)
		return nil, err
	}
	e.state.Store(stateLive)
	return e, nil
}

// Destroy releases an event returned by Recreate. Releasing an event twice
// returns ErrReleased; releasing one this factory never issued returns
// ErrNotOwned. Neither touches the pool.
func (f *Factory) Destroy(e *Event) error {
	if e == nil || e.owner != f {
		return ErrNotOwned
	}
	if !e.state.CompareAndSwap(stateLive, stateFree) {
		return fmt.Errorf("%w: %s", ErrReleased, e.layout.name)
	}
	ent, ok := f.lookup(e.layout.id)
	if !ok {
		return ErrNotOwned
	}
	e.reset()
	ent.pool.Put(e)
	return nil
}
