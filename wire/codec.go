// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package wire

import (
	"fmt"
	"net/netip"
	"unicode/utf8"
)

// NetworkID is the opaque handle of a networked object.
type NetworkID uint64

// AddressSize is the fixed encoded size of an address: one family byte,
// sixteen address bytes and a two byte port.
const AddressSize = 1 + 16 + 2

// Codec encodes and decodes values of one field type.
type Codec interface {
	Type() Type
	Encode(w *Writer, v any) error
	Decode(r *Reader) (any, error)
	// MinSize is the smallest number of bytes an encoded value occupies.
	MinSize() int
}

type scalarCodec struct {
	typ  Type
	size int
	enc  func(w *Writer, v any) bool
	dec  func(r *Reader) (any, error)
}

func (c *scalarCodec) Type() Type   { return c.typ }
func (c *scalarCodec) MinSize() int { return c.size }

func (c *scalarCodec) Encode(w *Writer, v any) error {
	if !c.enc(w, v) {
		return fmt.Errorf("%w: %T is not %s", ErrValueType, v, c.typ)
	}
	return nil
}

func (c *scalarCodec) Decode(r *Reader) (any, error) {
	return c.dec(r)
}

func put[T any](fn func(*Writer, T)) func(*Writer, any) bool {
	return func(w *Writer, v any) bool {
		x, ok := v.(T)
		if ok {
			fn(w, x)
		}
		return ok
	}
}

func get[T any](read func(*Reader) (T, error)) func(*Reader) (any, error) {
	return func(r *Reader) (any, error) {
		v, err := read(r)
		if err != nil {
			return nil, err
		}
		return v, nil
	}
}

// scalars is the codec rule table for every directly encodable kind.
var scalars = map[Kind]*scalarCodec{
	KindBool:      {typ: Bool, size: 1, enc: put((*Writer).PutBool), dec: get((*Reader).Bool)},
	KindInt8:      {typ: Int8, size: 1, enc: put((*Writer).PutInt8), dec: get((*Reader).Int8)},
	KindUint8:     {typ: Uint8, size: 1, enc: put((*Writer).PutUint8), dec: get((*Reader).Uint8)},
	KindInt16:     {typ: Int16, size: 2, enc: put((*Writer).PutInt16), dec: get((*Reader).Int16)},
	KindUint16:    {typ: Uint16, size: 2, enc: put((*Writer).PutUint16), dec: get((*Reader).Uint16)},
	KindInt32:     {typ: Int32, size: 4, enc: put((*Writer).PutInt32), dec: get((*Reader).Int32)},
	KindUint32:    {typ: Uint32, size: 4, enc: put((*Writer).PutUint32), dec: get((*Reader).Uint32)},
	KindFloat32:   {typ: Float32, size: 4, enc: put((*Writer).PutFloat32), dec: get((*Reader).Float32)},
	KindFloat64:   {typ: Float64, size: 8, enc: put((*Writer).PutFloat64), dec: get((*Reader).Float64)},
	KindString:    {typ: String, size: 4, enc: putText, dec: get(readText)},
	KindNetworkID: {typ: NetID, size: 8, enc: put(PutNetworkID), dec: get(ReadNetworkID)},
	KindAddress:   {typ: Address, size: AddressSize, enc: put(PutAddress), dec: get(ReadAddress)},
}

func putText(w *Writer, v any) bool {
	s, ok := v.(string)
	if !ok || !utf8.ValidString(s) {
		return false
	}
	w.PutString(s)
	return true
}

func readText(r *Reader) (string, error) {
	start := r.Offset()
	s, err := r.Text()
	if err != nil {
		return "", err
	}
	if !utf8.ValidString(s) {
		r.off = start
		return "", ErrFieldMismatch
	}
	return s, nil
}

// PutNetworkID appends an object handle.
func PutNetworkID(w *Writer, id NetworkID) { w.PutUint64(uint64(id)) }

// ReadNetworkID reads an object handle.
func ReadNetworkID(r *Reader) (NetworkID, error) {
	v, err := r.Uint64()
	return NetworkID(v), err
}

// PutAddress appends the fixed-width encoding of ap.
func PutAddress(w *Writer, ap netip.AddrPort) {
	var family byte
	switch addr := ap.Addr(); {
	case !ap.IsValid():
	case addr.Is4():
		family = 4
	default:
		family = 6
	}
	w.PutUint8(family)
	raw := ap.Addr().As16()
	if family == 0 {
		raw = [16]byte{}
	}
	w.PutBytes(raw[:])
	w.PutUint16(ap.Port())
}

// ReadAddress reads an address written by PutAddress. IPv6 zones are not
// carried on the wire.
func ReadAddress(r *Reader) (netip.AddrPort, error) {
	start := r.Offset()
	b, err := r.Bytes(AddressSize)
	if err != nil {
		return netip.AddrPort{}, err
	}
	var raw [16]byte
	copy(raw[:], b[1:17])
	port := uint16(b[17]) | uint16(b[18])<<8
	switch b[0] {
	case 0:
		return netip.AddrPort{}, nil
	case 4:
		return netip.AddrPortFrom(netip.AddrFrom16(raw).Unmap(), port), nil
	case 6:
		return netip.AddrPortFrom(netip.AddrFrom16(raw), port), nil
	}
	r.off = start
	return netip.AddrPort{}, ErrFieldMismatch
}

type arrayCodec struct {
	typ  Type
	elem Codec
}

func (c *arrayCodec) Type() Type   { return c.typ }
func (c *arrayCodec) MinSize() int { return 4 }

func (c *arrayCodec) Encode(w *Writer, v any) error {
	items, ok := asSlice(v)
	if !ok {
		return fmt.Errorf("%w: %T is not %s", ErrValueType, v, c.typ)
	}
	w.PutInt32(int32(len(items)))
	for i, item := range items {
		if err := c.elem.Encode(w, item); err != nil {
			return fmt.Errorf("element %d: %w", i, err)
		}
	}
	return nil
}

func (c *arrayCodec) Decode(r *Reader) (any, error) {
	n, err := r.Length(c.elem.MinSize())
	if err != nil {
		return nil, err
	}
	items := make([]any, n)
	for i := range items {
		if items[i], err = c.elem.Decode(r); err != nil {
			return nil, err
		}
	}
	return items, nil
}

// asSlice accepts []any and slices of scalar value types.
func asSlice(v any) ([]any, bool) {
	switch s := v.(type) {
	case []any:
		return s, true
	case nil:
		return nil, true
	case []bool:
		return toAny(s), true
	case []int8:
		return toAny(s), true
	case []uint8:
		return toAny(s), true
	case []int16:
		return toAny(s), true
	case []uint16:
		return toAny(s), true
	case []int32:
		return toAny(s), true
	case []uint32:
		return toAny(s), true
	case []float32:
		return toAny(s), true
	case []float64:
		return toAny(s), true
	case []string:
		return toAny(s), true
	case []NetworkID:
		return toAny(s), true
	case []netip.AddrPort:
		return toAny(s), true
	}
	return nil, false
}

func toAny[T any](s []T) []any {
	out := make([]any, len(s))
	for i, v := range s {
		out[i] = v
	}
	return out
}

// Resolve returns the codec for t, applying the array rule recursively.
// Enums and composites have no codec.
func Resolve(t Type) (Codec, error) {
	switch t.Kind {
	case KindArray:
		if t.Elem == nil {
			return nil, fmt.Errorf("%w: array without element type", ErrUnsupportedType)
		}
		elem, err := Resolve(*t.Elem)
		if err != nil {
			return nil, err
		}
		return &arrayCodec{typ: t, elem: elem}, nil
	case KindEnum:
		return nil, fmt.Errorf("%w: %s", ErrEnumNotEncodable, t)
	}
	if c, ok := scalars[t.Kind]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, t)
}

// Supports reports whether values of t can be encoded.
func Supports(t Type) bool {
	_, err := Resolve(t)
	return err == nil
}

// Encode appends the encoding of v as type t.
func Encode(w *Writer, t Type, v any) error {
	c, err := Resolve(t)
	if err != nil {
		return err
	}
	return c.Encode(w, v)
}

// Decode reads one value of type t.
func Decode(r *Reader, t Type) (any, error) {
	c, err := Resolve(t)
	if err != nil {
		return nil, err
	}
	return c.Decode(r)
}

// Zero returns the value a freshly constructed field of type t holds.
func Zero(t Type) any {
	switch t.Kind {
	case KindBool:
		return false
	case KindInt8:
		return int8(0)
	case KindUint8:
		return uint8(0)
	case KindInt16:
		return int16(0)
	case KindUint16:
		return uint16(0)
	case KindInt32:
		return int32(0)
	case KindUint32:
		return uint32(0)
	case KindFloat32:
		return float32(0)
	case KindFloat64:
		return float64(0)
	case KindString:
		return ""
	case KindNetworkID:
		return NetworkID(0)
	case KindAddress:
		return netip.AddrPort{}
	case KindArray:
		return []any{}
	}
	return nil
}
