// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package wire

import (
	"encoding/binary"
	"math"
)

// Writer appends little-endian encoded values to a byte slice.
type Writer struct {
	buf []byte
}

// NewWriter returns a Writer whose buffer has room for size bytes.
func NewWriter(size int) *Writer {
	return &Writer{buf: make([]byte, 0, size)}
}

// Bytes returns the encoded bytes. The slice aliases the writer's buffer.
func (w *Writer) Bytes() []byte { return w.buf }

// Len returns the number of bytes written.
func (w *Writer) Len() int { return len(w.buf) }

// Reset empties the buffer, keeping its capacity.
func (w *Writer) Reset() { w.buf = w.buf[:0] }

func (w *Writer) PutBool(v bool) {
	if v {
		w.buf = append(w.buf, 1)
	} else {
		w.buf = append(w.buf, 0)
	}
}

func (w *Writer) PutUint8(v uint8)   { w.buf = append(w.buf, v) }
func (w *Writer) PutInt8(v int8)     { w.buf = append(w.buf, byte(v)) }
func (w *Writer) PutUint16(v uint16) { w.buf = binary.LittleEndian.AppendUint16(w.buf, v) }
func (w *Writer) PutInt16(v int16)   { w.PutUint16(uint16(v)) }
func (w *Writer) PutUint32(v uint32) { w.buf = binary.LittleEndian.AppendUint32(w.buf, v) }
func (w *Writer) PutInt32(v int32)   { w.PutUint32(uint32(v)) }
func (w *Writer) PutUint64(v uint64) { w.buf = binary.LittleEndian.AppendUint64(w.buf, v) }

func (w *Writer) PutFloat32(v float32) { w.PutUint32(math.Float32bits(v)) }
func (w *Writer) PutFloat64(v float64) { w.PutUint64(math.Float64bits(v)) }

// PutBytes appends raw bytes with no length prefix.
func (w *Writer) PutBytes(b []byte) { w.buf = append(w.buf, b...) }

// PutString appends an int32 byte length followed by the bytes of s.
func (w *Writer) PutString(s string) {
	w.PutInt32(int32(len(s)))
	w.buf = append(w.buf, s...)
}

// Reader consumes little-endian encoded values from a byte slice. Every
// read that runs past the end of the buffer fails with ErrTruncated and
// leaves the offset unchanged.
type Reader struct {
	buf []byte
	off int
}

// NewReader returns a Reader over b.
func NewReader(b []byte) *Reader {
	return &Reader{buf: b}
}

// Offset returns the number of bytes consumed so far.
func (r *Reader) Offset() int { return r.off }

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.buf) - r.off }

func (r *Reader) next(n int) ([]byte, error) {
	if n < 0 || r.Remaining() < n {
		return nil, ErrTruncated
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *Reader) Bool() (bool, error) {
	b, err := r.next(1)
	if err != nil {
		return false, err
	}
	switch b[0] {
	case 0:
		return false, nil
	case 1:
		return true, nil
	}
	r.off--
	return false, ErrFieldMismatch
}

func (r *Reader) Uint8() (uint8, error) {
	b, err := r.next(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *Reader) Int8() (int8, error) {
	v, err := r.Uint8()
	return int8(v), err
}

func (r *Reader) Uint16() (uint16, error) {
	b, err := r.next(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (r *Reader) Int16() (int16, error) {
	v, err := r.Uint16()
	return int16(v), err
}

func (r *Reader) Uint32() (uint32, error) {
	b, err := r.next(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *Reader) Int32() (int32, error) {
	v, err := r.Uint32()
	return int32(v), err
}

func (r *Reader) Uint64() (uint64, error) {
	b, err := r.next(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (r *Reader) Float32() (float32, error) {
	v, err := r.Uint32()
	return math.Float32frombits(v), err
}

func (r *Reader) Float64() (float64, error) {
	v, err := r.Uint64()
	return math.Float64frombits(v), err
}

// Bytes returns the next n bytes. The result aliases the reader's buffer.
func (r *Reader) Bytes(n int) ([]byte, error) {
	return r.next(n)
}

// Length reads an int32 count and checks that at least count*minSize bytes
// remain. A negative or unsatisfiable count is ErrFieldMismatch.
func (r *Reader) Length(minSize int) (int, error) {
	n, err := r.Int32()
	if err != nil {
		return 0, err
	}
	if n < 0 || int64(n)*int64(minSize) > int64(r.Remaining()) {
		r.off -= 4
		return 0, ErrFieldMismatch
	}
	return int(n), nil
}

// Text reads an int32 byte length followed by that many bytes.
func (r *Reader) Text() (string, error) {
	n, err := r.Length(1)
	if err != nil {
		return "", err
	}
	b, err := r.next(n)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
