// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package event holds runtime event instances and the factories that
// rebuild them from wire buffers.
//
// Every encoded event starts with a fixed header:
//
//	int32 eventId
//	int32 sourceObjectId
//	int32 targetObjectId
//
// followed by the payload fields in declaration order. A [Layout] is the
// compiled codec of one event type; a [Factory] maps event ids to layouts
// and pools the instances it hands out.
package event

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"sync/atomic"

	"github.com/luxfi/eventrpc/wire"
)

// HeaderSize is the encoded size of eventId, sourceObjectId and
// targetObjectId.
const HeaderSize = 12

var (
	ErrUnknownEventID = errors.New("event: unknown event id")
	ErrUnknownField   = errors.New("event: unknown field")
	ErrDuplicateID    = errors.New("event: duplicate event id")
	ErrNotOwned       = errors.New("event: not issued by this factory")
	ErrReleased       = errors.New("event: already released")
)

// Field is a payload field with its resolved codec.
type Field struct {
	Name  string
	Type  wire.Type
	Codec wire.Codec
}

// Layout is the codec of one event type.
type Layout struct {
	id     uint32
	name   string
	fields []Field
	index  map[string]int
}

// NewLayout returns the layout of event type name with the given id and
// ordered fields. Every field must carry a codec.
func NewLayout(id uint32, name string, fields []Field) *Layout {
	l := &Layout{
		id:     id,
		name:   name,
		fields: fields,
		index:  make(map[string]int, len(fields)),
	}
	for i, f := range fields {
		l.index[f.Name] = i
	}
	return l
}

func (l *Layout) ID() uint32      { return l.id }
func (l *Layout) Name() string    { return l.name }
func (l *Layout) Fields() []Field { return l.fields }

// New returns an unpooled event with zero-valued fields.
func (l *Layout) New() *Event {
	e := &Event{layout: l, values: make([]any, len(l.fields))}
	e.reset()
	return e
}

func (l *Layout) encode(w *wire.Writer, e *Event) error {
	w.PutUint32(l.id)
	w.PutInt32(e.Source)
	w.PutInt32(e.Target)
	for i, f := range l.fields {
		if err := f.Codec.Encode(w, e.values[i]); err != nil {
			return fmt.Errorf("encode %s.%s: %w", l.name, f.Name, err)
		}
	}
	return nil
}

// decode reads everything after the event id.
func (l *Layout) decode(r *wire.Reader, e *Event) error {
	var err error
	if e.Source, err = r.Int32(); err != nil {
		return &wire.DecodeError{Field: "sourceObjectId", Offset: r.Offset(), Err: err}
	}
	if e.Target, err = r.Int32(); err != nil {
		return &wire.DecodeError{Field: "targetObjectId", Offset: r.Offset(), Err: err}
	}
	for i, f := range l.fields {
		if e.values[i], err = f.Codec.Decode(r); err != nil {
			return &wire.DecodeError{Field: l.name + "." + f.Name, Offset: r.Offset(), Err: err}
		}
	}
	if n := r.Remaining(); n != 0 {
		return &wire.DecodeError{
			Field:  l.name,
			Offset: r.Offset(),
			Err:    fmt.Errorf("%w: %d trailing bytes", wire.ErrFieldMismatch, n),
		}
	}
	return nil
}

const (
	stateFree uint32 = iota
	stateLive
)

// Event is a decoded or locally built event. Events issued by a Factory
// must be released with Factory.Destroy exactly once and not used after.
type Event struct {
	layout *Layout
	values []any

	// Source and Target are the sending and addressed object ids.
	Source int32
	Target int32
	// Origin is the peer a server-bound event arrived from. It is unset on
	// outbound events.
	Origin netip.AddrPort

	owner *Factory
	state atomic.Uint32
}

func (e *Event) ID() uint32      { return e.layout.id }
func (e *Event) Name() string    { return e.layout.name }
func (e *Event) Layout() *Layout { return e.layout }

// Get returns the value of the named field.
func (e *Event) Get(name string) (any, bool) {
	i, ok := e.layout.index[name]
	if !ok {
		return nil, false
	}
	return e.values[i], true
}

// Set assigns the named field. Value types are checked when the event is
// encoded.
func (e *Event) Set(name string, v any) error {
	i, ok := e.layout.index[name]
	if !ok {
		return fmt.Errorf("%w: %s.%s", ErrUnknownField, e.layout.name, name)
	}
	e.values[i] = v
	return nil
}

// Value returns the named field as T.
func Value[T any](e *Event, name string) (T, bool) {
	v, ok := e.Get(name)
	if !ok {
		var zero T
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}

// MarshalBinary encodes the header and payload.
func (e *Event) MarshalBinary() ([]byte, error) {
	w := wire.NewWriter(HeaderSize + 8*len(e.values))
	if err := e.layout.encode(w, e); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// Clone returns an unpooled copy that outlives the release of e.
func (e *Event) Clone() *Event {
	c := &Event{
		layout: e.layout,
		values: make([]any, len(e.values)),
		Source: e.Source,
		Target: e.Target,
		Origin: e.Origin,
	}
	copy(c.values, e.values)
	return c
}

func (e *Event) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s#%d{source=%d target=%d", e.layout.name, e.layout.id, e.Source, e.Target)
	if e.Origin.IsValid() {
		fmt.Fprintf(&b, " origin=%s", e.Origin)
	}
	for i, f := range e.layout.fields {
		fmt.Fprintf(&b, " %s=%v", f.Name, e.values[i])
	}
	b.WriteByte('}')
	return b.String()
}

func (e *Event) reset() {
	e.Source, e.Target = 0, 0
	e.Origin = netip.AddrPort{}
	for i, f := range e.layout.fields {
		e.values[i] = wire.Zero(f.Type)
	}
}
