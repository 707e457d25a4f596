// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package eventrpc

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"time"

	log "github.com/golang/glog"

	"github.com/luxfi/eventrpc/event"
	"github.com/luxfi/eventrpc/protocol"
	"github.com/luxfi/eventrpc/schema"
)

// DefaultQueueSize is the number of inbound frames a node buffers between
// updates.
const DefaultQueueSize = 1024

var ErrQueueFull = errors.New("eventrpc: inbound queue full")

// NodeOption configures a Node.
type NodeOption func(*nodeOptions)

type nodeOptions struct {
	queueSize int
	role      Role
	shimOpts  []ShimOption
}

// Role is the network side a node takes, independent of its site name.
type Role uint8

const (
	// RoleAuto picks RoleServer for schema.Server and RoleClient otherwise.
	RoleAuto Role = iota
	RoleClient
	RoleServer
)

func (r Role) String() string {
	switch r {
	case RoleClient:
		return "client"
	case RoleServer:
		return "server"
	}
	return "auto"
}

// WithRole sets the network side of the node. A server-side node takes
// the server path of the shim and stamps every event with its sender.
func WithRole(r Role) NodeOption {
	return func(o *nodeOptions) { o.role = r }
}

// WithQueueSize sets the inbound queue capacity.
func WithQueueSize(n int) NodeOption {
	return func(o *nodeOptions) { o.queueSize = n }
}

// WithShimOptions passes options to the node's shim.
func WithShimOptions(opts ...ShimOption) NodeOption {
	return func(o *nodeOptions) { o.shimOpts = append(o.shimOpts, opts...) }
}

type inbound struct {
	ctx     context.Context
	payload []byte
	sender  netip.AddrPort
}

// Node runs one site of a compiled protocol. Transport goroutines only
// queue inbound frames; decoding, dispatch and registry access happen in
// Update, on the goroutine that calls it.
//
// Events are routed to the site handler when one is bound for the event,
// and to the registry's target object otherwise.
type Node struct {
	proto    *protocol.Compiled
	site     schema.Site
	role     Role
	factory  *event.Factory
	handlers *protocol.Handlers
	shim     *Shim
	registry *Registry
	queue    chan inbound
}

// NewNode builds the factory, handler table, shim and registry of site.
// The shim path follows the node's role; with no WithRole option a site
// named schema.Server is a server and every other site is a client.
func NewNode(p *protocol.Compiled, site schema.Site, opts ...NodeOption) (*Node, error) {
	o := nodeOptions{queueSize: DefaultQueueSize}
	for _, opt := range opts {
		opt(&o)
	}
	if o.role == RoleAuto {
		o.role = RoleClient
		if site == schema.Server {
			o.role = RoleServer
		}
	}

	factory, err := p.NewFactory(site)
	if err != nil {
		return nil, err
	}
	handlers, err := p.NewHandlers(site)
	if err != nil {
		return nil, err
	}
	n := &Node{
		proto:    p,
		site:     site,
		role:     o.role,
		factory:  factory,
		handlers: handlers,
		shim:     NewShim(factory, o.shimOpts...),
		registry: NewRegistry(p.Descriptor().Name, nil),
		queue:    make(chan inbound, o.queueSize),
	}
	if o.role == RoleServer {
		err = n.shim.SetServer(n.route)
	} else {
		err = n.shim.SetClient(n.route)
	}
	if err != nil {
		return nil, err
	}
	if err := n.shim.Validate(); err != nil {
		return nil, err
	}
	return n, nil
}

func (n *Node) Protocol() *protocol.Compiled { return n.proto }
func (n *Node) Site() schema.Site            { return n.site }
func (n *Node) Role() Role                   { return n.role }
func (n *Node) Factory() *event.Factory      { return n.factory }
func (n *Node) Handlers() *protocol.Handlers { return n.handlers }
func (n *Node) Registry() *Registry          { return n.registry }

// Bind registers the node's procedure on t and sends through it.
func (n *Node) Bind(t Endpoint) error {
	if err := t.Handle(n.proto.Descriptor().Name, n.enqueue); err != nil {
		return err
	}
	n.registry.SetSender(t)
	return nil
}

func (n *Node) enqueue(ctx context.Context, payload []byte) error {
	sender, _ := PeerFromContext(ctx)
	select {
	case n.queue <- inbound{ctx: ctx, payload: payload, sender: sender}:
		return nil
	default:
		queueDropped.Inc()
		return fmt.Errorf("%w: %d frames", ErrQueueFull, cap(n.queue))
	}
}

func (n *Node) route(ctx context.Context, e *event.Event) error {
	if n.handlers.Bound(e.ID()) {
		return n.handlers.Dispatch(ctx, e)
	}
	return n.registry.PostEvent(ctx, e)
}

// Update handles the frames queued when it is called and returns how many
// it handled. A frame that fails is logged and dropped.
func (n *Node) Update() int {
	pending := len(n.queue)
	for i := 0; i < pending; i++ {
		in := <-n.queue
		var err error
		if n.role == RoleServer {
			err = n.shim.ToServer(in.ctx, in.payload, in.sender)
		} else {
			err = n.shim.ToClient(in.ctx, in.payload)
		}
		if err != nil {
			log.V(1).Infof("%s: dropped frame from %s: %v", n.proto.Descriptor().Name, in.sender, err)
		}
	}
	return pending
}

// Run calls Update every interval until ctx is done.
func (n *Node) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			n.Update()
			return nil
		case <-ticker.C:
			n.Update()
		}
	}
}

// Send encodes e and sends it to dst.
func (n *Node) Send(ctx context.Context, e *event.Event, dst Destination) error {
	return n.registry.SendEvent(ctx, e, dst)
}

// Broadcast encodes e and sends it to every peer.
func (n *Node) Broadcast(ctx context.Context, e *event.Event) error {
	return n.registry.Broadcast(ctx, e)
}
