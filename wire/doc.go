// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package wire is the codec rule table for event fields.
//
// Supported field types are bool, signed and unsigned 8/16/32-bit integers,
// float32, float64, UTF-8 strings, network object handles ([NetworkID]) and
// peer addresses (netip.AddrPort). Arrays of any supported type are encoded
// as an int32 element count followed by the elements. All integers are
// little-endian.
//
// Enums and other named types parse but have no codec; [Resolve] rejects
// them so that schemas using them fail at compile time.
package wire
