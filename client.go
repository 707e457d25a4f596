// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package eventrpc

import (
	"context"
	"net/netip"
)

// Endpoint is the transport surface event dispatch needs: a way to send
// and a way to receive frames by procedure name.
type Endpoint interface {
	Sender

	// Handle registers the handler for a procedure name.
	Handle(procedure string, h RawHandler) error
}

// Client is a connection to one server. Frames pushed by the server are
// delivered to the handlers registered with Handle.
type Client interface {
	Endpoint

	// Notify sends a one-way frame to the server.
	Notify(ctx context.Context, procedure string, payload []byte) error

	// RemoteAddr returns the server address.
	RemoteAddr() netip.AddrPort

	// Done is closed when the connection is lost or closed.
	Done() <-chan struct{}

	Close() error
}

// Server accepts clients and exchanges one-way frames with them.
type Server interface {
	Endpoint

	// Serve accepts connections until the context is cancelled or the
	// server is closed.
	Serve(ctx context.Context) error

	// Notify sends a frame to one connected peer.
	Notify(ctx context.Context, to netip.AddrPort, procedure string, payload []byte) error

	// Broadcast sends a frame to every connected peer.
	Broadcast(ctx context.Context, procedure string, payload []byte) error

	// Peers returns the addresses of connected peers.
	Peers() []netip.AddrPort

	Close() error

	// Addr returns the server's listen address.
	Addr() string
}

// RawHandler handles an inbound frame. The sender address is available
// through PeerFromContext. Handlers of one connection run in arrival order.
type RawHandler func(ctx context.Context, payload []byte) error

// Destination selects the receivers of an outbound frame.
type Destination struct {
	Addr      netip.AddrPort
	Broadcast bool
}

// To addresses a single peer.
func To(addr netip.AddrPort) Destination { return Destination{Addr: addr} }

// Everyone addresses every connected peer.
var Everyone = Destination{Broadcast: true}

func (d Destination) String() string {
	if d.Broadcast {
		return "broadcast"
	}
	return d.Addr.String()
}

// Sender delivers frames reliably and in order. It is the only delivery
// mode this package offers.
type Sender interface {
	SendReliableOrdered(ctx context.Context, payload []byte, dst Destination, procedure string) error
}

// DialOption configures client connections
type DialOption func(*dialOptions)

type dialOptions struct {
	transport string
	maxFrame  int
}

// WithTransport explicitly sets the transport type
func WithTransport(t string) DialOption {
	return func(o *dialOptions) { o.transport = t }
}

// WithMaxFrameSize bounds the size of frames the client accepts.
func WithMaxFrameSize(n int) DialOption {
	return func(o *dialOptions) { o.maxFrame = n }
}

// ServerOption configures servers
type ServerOption func(*serverOptions)

type serverOptions struct {
	transport string
	maxFrame  int
	maxPeers  int
}

// WithServerTransport explicitly sets the transport type for the server
func WithServerTransport(t string) ServerOption {
	return func(o *serverOptions) { o.transport = t }
}

// WithServerMaxFrameSize bounds the size of frames the server accepts.
func WithServerMaxFrameSize(n int) ServerOption {
	return func(o *serverOptions) { o.maxFrame = n }
}

// WithMaxPeers limits the number of connected peers. Zero means no limit.
func WithMaxPeers(n int) ServerOption {
	return func(o *serverOptions) { o.maxPeers = n }
}
