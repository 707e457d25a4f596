// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package eventrpc

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"net/netip"
)

var (
	ErrClosed             = errors.New("eventrpc: connection closed")
	ErrUnknownTransport   = errors.New("eventrpc: unknown transport")
	ErrUnknownProcedure   = errors.New("eventrpc: unknown procedure")
	ErrDuplicateProcedure = errors.New("eventrpc: procedure already registered")
	ErrUnknownPeer        = errors.New("eventrpc: unknown peer")
	ErrDuplicatePeer      = errors.New("eventrpc: peer already connected")
	ErrTooManyPeers       = errors.New("eventrpc: too many peers")
	ErrFrameTooLarge      = errors.New("eventrpc: frame too large")
	ErrBadFrame           = errors.New("eventrpc: malformed frame")
)

// MessageType identifies frame types
type MessageType uint8

const (
	MsgNotify MessageType = 0x04
)

// frameHeaderSize covers the type byte and the procedure length.
const frameHeaderSize = 1 + 2

// frameConn is one reliable ordered stream of frames. WriteFrame is safe
// for concurrent use; ReadFrame is called from a single goroutine.
type frameConn interface {
	WriteFrame(ctx context.Context, procedure string, payload []byte) error
	ReadFrame() (procedure string, payload []byte, err error)
	RemoteAddr() netip.AddrPort
	Close() error
}

// appendFrame encodes [1 type][2 procLen][proc][payload].
func appendFrame(buf []byte, procedure string, payload []byte) ([]byte, error) {
	if len(procedure) > math.MaxUint16 {
		return nil, fmt.Errorf("%w: procedure name of %d bytes", ErrBadFrame, len(procedure))
	}
	buf = append(buf, byte(MsgNotify))
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(procedure)))
	buf = append(buf, procedure...)
	return append(buf, payload...), nil
}

// parseFrame decodes a frame written by appendFrame. The payload aliases
// msg.
func parseFrame(msg []byte) (string, []byte, error) {
	if len(msg) < frameHeaderSize {
		return "", nil, fmt.Errorf("%w: %d bytes", ErrBadFrame, len(msg))
	}
	if t := MessageType(msg[0]); t != MsgNotify {
		return "", nil, fmt.Errorf("%w: message type %#x", ErrBadFrame, t)
	}
	n := int(binary.BigEndian.Uint16(msg[1:3]))
	if len(msg) < frameHeaderSize+n {
		return "", nil, fmt.Errorf("%w: procedure overruns frame", ErrBadFrame)
	}
	return string(msg[3 : 3+n]), msg[3+n:], nil
}

type peerKey struct{}

// withPeer attaches the sender address to ctx.
func withPeer(ctx context.Context, addr netip.AddrPort) context.Context {
	return context.WithValue(ctx, peerKey{}, addr)
}

// PeerFromContext returns the address of the peer that sent the frame
// being handled.
func PeerFromContext(ctx context.Context) (netip.AddrPort, bool) {
	addr, ok := ctx.Value(peerKey{}).(netip.AddrPort)
	return addr, ok && addr.IsValid()
}
