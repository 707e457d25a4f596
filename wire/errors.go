// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package wire

import (
	"errors"
	"fmt"
)

var (
	// ErrTruncated is returned when the buffer ends inside a field.
	ErrTruncated = errors.New("wire: truncated buffer")
	// ErrFieldMismatch is returned when encoded bytes cannot form a value
	// of the expected type, e.g. an array length larger than the buffer.
	ErrFieldMismatch = errors.New("wire: field mismatch")

	ErrUnsupportedType  = errors.New("wire: unsupported type")
	ErrEnumNotEncodable = errors.New("wire: enum types are not encodable")
	ErrValueType        = errors.New("wire: value does not match field type")
)

// DecodeError records where decoding stopped.
type DecodeError struct {
	Field  string
	Offset int
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("decode at offset %d: %v", e.Offset, e.Err)
	}
	return fmt.Sprintf("decode %s at offset %d: %v", e.Field, e.Offset, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
