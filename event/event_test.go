// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package event

import (
	"bytes"
	"errors"
	"net/netip"
	"reflect"
	"strings"
	"testing"

	"github.com/luxfi/eventrpc/wire"
)

func layout(t *testing.T, id uint32, name string, fields ...wire.Type) *Layout {
	t.Helper()
	var fs []Field
	for i, ft := range fields {
		c, err := wire.Resolve(ft)
		if err != nil {
			t.Fatalf("Resolve(%s): %v", ft, err)
		}
		fs = append(fs, Field{Name: string(rune('a' + i)), Type: ft, Codec: c})
	}
	return NewLayout(id, name, fs)
}

func TestPingRoundTrip(t *testing.T) {
	ping := layout(t, 0, "Ping", wire.Int32)
	f := NewFactory("EventFactoryOnClient")
	if err := f.Register(ping); err != nil {
		t.Fatal(err)
	}

	out := ping.New()
	out.Source, out.Target = 1, 2
	if err := out.Set("a", int32(42)); err != nil {
		t.Fatal(err)
	}
	buf, err := out.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	if len(buf) != HeaderSize+4 {
		t.Fatalf("encoded %d bytes", len(buf))
	}

	in, err := f.Recreate(buf)
	if err != nil {
		t.Fatalf("Recreate: %v", err)
	}
	if in.ID() != 0 || in.Source != 1 || in.Target != 2 {
		t.Fatalf("header = %d/%d/%d", in.ID(), in.Source, in.Target)
	}
	if v, _ := Value[int32](in, "a"); v != 42 {
		t.Fatalf("value = %d", v)
	}
	if err := f.Destroy(in); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
}

func TestBatchPayload(t *testing.T) {
	batch := layout(t, 1, "Batch", wire.ArrayOf(wire.Int32))
	e := batch.New()
	if err := e.Set("a", []int32{7, 8, 9}); err != nil {
		t.Fatal(err)
	}
	buf, err := e.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{
		0x03, 0, 0, 0,
		0x07, 0, 0, 0,
		0x08, 0, 0, 0,
		0x09, 0, 0, 0,
	}
	if !bytes.Equal(buf[HeaderSize:], want) {
		t.Fatalf("payload = % x", buf[HeaderSize:])
	}
	if !bytes.Equal(buf[:4], []byte{1, 0, 0, 0}) {
		t.Fatalf("event id bytes = % x", buf[:4])
	}

	f := NewFactory("f")
	if err := f.Register(batch); err != nil {
		t.Fatal(err)
	}
	in, err := f.Recreate(buf)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Destroy(in)
	got, _ := in.Get("a")
	if !reflect.DeepEqual(got, []any{int32(7), int32(8), int32(9)}) {
		t.Fatalf("items = %#v", got)
	}
}

func TestRecreateErrors(t *testing.T) {
	f := NewFactory("f")
	l := layout(t, 0, "Move", wire.ArrayOf(wire.Float32), wire.String)
	if err := f.Register(l); err != nil {
		t.Fatal(err)
	}
	e := l.New()
	e.Set("a", []float32{1, 2})
	e.Set("b", "north")
	good, err := e.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}

	unknown := append([]byte{9, 0, 0, 0}, good[4:]...)
	badLen := bytes.Clone(good)
	badLen[HeaderSize] = 0xff

	tests := []struct {
		name string
		buf  []byte
		want error
	}{
		{"empty", nil, wire.ErrTruncated},
		{"short id", []byte{0, 0}, wire.ErrTruncated},
		{"unknown id", unknown, ErrUnknownEventID},
		{"header only", good[:HeaderSize-1], wire.ErrTruncated},
		{"truncated length", good[:HeaderSize+2], wire.ErrTruncated},
		{"string past end", good[:len(good)-2], wire.ErrFieldMismatch},
		{"array length", badLen, wire.ErrFieldMismatch},
		{"trailing bytes", append(bytes.Clone(good), 0), wire.ErrFieldMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := f.Recreate(tt.buf)
			if ev != nil {
				t.Fatalf("partial event returned: %v", ev)
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
			var de *wire.DecodeError
			if !errors.As(err, &de) {
				t.Fatalf("%T is not a DecodeError", err)
			}
		})
	}
}

func TestDestroyGuards(t *testing.T) {
	l := layout(t, 0, "Ping", wire.Int32)
	f := NewFactory("f")
	other := NewFactory("g")
	for _, fac := range []*Factory{f, other} {
		if err := fac.Register(l); err != nil {
			t.Fatal(err)
		}
	}

	out := l.New()
	buf, _ := out.MarshalBinary()

	if err := f.Destroy(out); !errors.Is(err, ErrNotOwned) {
		t.Errorf("unpooled Destroy = %v", err)
	}
	if err := f.Destroy(nil); !errors.Is(err, ErrNotOwned) {
		t.Errorf("nil Destroy = %v", err)
	}

	in, err := f.Recreate(buf)
	if err != nil {
		t.Fatal(err)
	}
	if err := other.Destroy(in); !errors.Is(err, ErrNotOwned) {
		t.Errorf("foreign Destroy = %v", err)
	}
	if err := f.Destroy(in); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if err := f.Destroy(in); !errors.Is(err, ErrReleased) {
		t.Errorf("second Destroy = %v", err)
	}
}

func TestDestroyResets(t *testing.T) {
	l := layout(t, 0, "Join", wire.String, wire.Address)
	f := NewFactory("f")
	f.Register(l)

	e := l.New()
	e.Source = 5
	e.Set("a", "alice")
	e.Set("b", netip.MustParseAddrPort("10.0.0.1:7777"))
	buf, _ := e.MarshalBinary()

	in, err := f.Recreate(buf)
	if err != nil {
		t.Fatal(err)
	}
	in.Origin = netip.MustParseAddrPort("192.0.2.1:1")
	f.Destroy(in)

	if in.Source != 0 || in.Origin.IsValid() {
		t.Errorf("header not reset: %v", in)
	}
	if s, _ := Value[string](in, "a"); s != "" {
		t.Errorf("payload not reset: %q", s)
	}
}

func TestRegisterDuplicate(t *testing.T) {
	f := NewFactory("f")
	if err := f.Register(layout(t, 3, "A")); err != nil {
		t.Fatal(err)
	}
	if err := f.Register(layout(t, 3, "B")); !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("got %v", err)
	}
	f.Register(layout(t, 1, "C"))
	if got := f.IDs(); !reflect.DeepEqual(got, []uint32{1, 3}) {
		t.Fatalf("IDs = %v", got)
	}
	if !f.Has(1) || f.Has(2) {
		t.Error("Has")
	}
}

func TestCloneOutlivesDestroy(t *testing.T) {
	l := layout(t, 0, "Chat", wire.String)
	f := NewFactory("f")
	f.Register(l)

	e := l.New()
	e.Set("a", "hello")
	buf, _ := e.MarshalBinary()

	in, _ := f.Recreate(buf)
	kept := in.Clone()
	f.Destroy(in)

	if s, _ := Value[string](kept, "a"); s != "hello" {
		t.Fatalf("clone lost payload: %q", s)
	}
	if err := f.Destroy(kept); !errors.Is(err, ErrNotOwned) {
		t.Fatalf("clone Destroy = %v", err)
	}
}

func TestSetAndString(t *testing.T) {
	l := layout(t, 2, "Ping", wire.Int32)
	e := l.New()
	if err := e.Set("missing", 1); !errors.Is(err, ErrUnknownField) {
		t.Fatalf("Set = %v", err)
	}
	e.Set("a", "not an int")
	if _, err := e.MarshalBinary(); !errors.Is(err, wire.ErrValueType) {
		t.Fatalf("MarshalBinary = %v", err)
	}
	e.Set("a", int32(7))
	if s := e.String(); !strings.HasPrefix(s, "Ping#2{") || !strings.Contains(s, "a=7") {
		t.Fatalf("String = %s", s)
	}
}
