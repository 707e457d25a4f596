// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package wire

import (
	"strings"
)

// Kind classifies a field type.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindBool
	KindInt8
	KindUint8
	KindInt16
	KindUint16
	KindInt32
	KindUint32
	KindFloat32
	KindFloat64
	KindString
	KindNetworkID // opaque network object handle
	KindAddress   // opaque peer address handle
	KindArray
	KindEnum      // accepted by schemas, not encodable
	KindComposite // any other named type
)

var kindNames = map[Kind]string{
	KindBool:      "bool",
	KindInt8:      "int8",
	KindUint8:     "uint8",
	KindInt16:     "int16",
	KindUint16:    "uint16",
	KindInt32:     "int32",
	KindUint32:    "uint32",
	KindFloat32:   "float32",
	KindFloat64:   "float64",
	KindString:    "string",
	KindNetworkID: "netid",
	KindAddress:   "address",
}

// aliases maps the accepted spellings of scalar tags to their kind.
var aliases = map[string]Kind{
	"bool":    KindBool,
	"int8":    KindInt8,
	"sbyte":   KindInt8,
	"uint8":   KindUint8,
	"byte":    KindUint8,
	"int16":   KindInt16,
	"short":   KindInt16,
	"uint16":  KindUint16,
	"ushort":  KindUint16,
	"int32":   KindInt32,
	"int":     KindInt32,
	"uint32":  KindUint32,
	"uint":    KindUint32,
	"float32": KindFloat32,
	"float":   KindFloat32,
	"float64": KindFloat64,
	"double":  KindFloat64,
	"string":  KindString,
	"netid":   KindNetworkID,
	"address": KindAddress,
}

// Type describes the wire type of a single field. Elem is set for arrays,
// Name for enums and composites.
type Type struct {
	Kind Kind
	Elem *Type
	Name string
}

// Scalar types.
var (
	Bool    = Type{Kind: KindBool}
	Int8    = Type{Kind: KindInt8}
	Uint8   = Type{Kind: KindUint8}
	Int16   = Type{Kind: KindInt16}
	Uint16  = Type{Kind: KindUint16}
	Int32   = Type{Kind: KindInt32}
	Uint32  = Type{Kind: KindUint32}
	Float32 = Type{Kind: KindFloat32}
	Float64 = Type{Kind: KindFloat64}
	String  = Type{Kind: KindString}
	NetID   = Type{Kind: KindNetworkID}
	Address = Type{Kind: KindAddress}
)

// ArrayOf returns the array type with the given element type.
func ArrayOf(elem Type) Type {
	return Type{Kind: KindArray, Elem: &elem}
}

// EnumOf returns a named enum type.
func EnumOf(name string) Type {
	return Type{Kind: KindEnum, Name: name}
}

// Named returns a named composite type.
func Named(name string) Type {
	return Type{Kind: KindComposite, Name: name}
}

// ParseType parses a type tag such as "int32", "[]string" or "[][]float".
// Identifiers that are not scalar tags are returned as composites; enums
// reports which of those names are declared enums. ParseType never fails
// on an unknown name: rejecting it is the compiler's job.
func ParseType(tag string, enums func(string) bool) Type {
	tag = strings.TrimSpace(tag)
	if rest, ok := strings.CutPrefix(tag, "[]"); ok {
		return ArrayOf(ParseType(rest, enums))
	}
	if k, ok := aliases[tag]; ok {
		return Type{Kind: k}
	}
	if enums != nil && enums(tag) {
		return EnumOf(tag)
	}
	return Named(tag)
}

// String returns the canonical tag of t.
func (t Type) String() string {
	switch t.Kind {
	case KindArray:
		if t.Elem == nil {
			return "[]?"
		}
		return "[]" + t.Elem.String()
	case KindEnum, KindComposite:
		return t.Name
	case KindInvalid:
		return "invalid"
	}
	return kindNames[t.Kind]
}

// Equal reports whether t and u describe the same type.
func (t Type) Equal(u Type) bool {
	if t.Kind != u.Kind || t.Name != u.Name {
		return false
	}
	if t.Kind != KindArray {
		return true
	}
	if t.Elem == nil || u.Elem == nil {
		return t.Elem == u.Elem
	}
	return t.Elem.Equal(*u.Elem)
}
