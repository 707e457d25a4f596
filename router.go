// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package eventrpc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/netip"
	"slices"
	"sync"
	"sync/atomic"

	log "github.com/golang/glog"
)

// router maps procedure names to handlers.
type router struct {
	mu       sync.RWMutex
	handlers map[string]RawHandler
}

func (r *router) Handle(procedure string, h RawHandler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.handlers == nil {
		r.handlers = make(map[string]RawHandler)
	}
	if _, ok := r.handlers[procedure]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateProcedure, procedure)
	}
	r.handlers[procedure] = h
	return nil
}

func (r *router) dispatch(ctx context.Context, procedure string, payload []byte) error {
	r.mu.RLock()
	h, ok := r.handlers[procedure]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProcedure, procedure)
	}
	return h(ctx, payload)
}

// readLoop delivers frames from fc until it fails. Handler errors are
// logged and do not end the loop.
func (r *router) readLoop(ctx context.Context, fc frameConn) error {
	ctx = withPeer(ctx, fc.RemoteAddr())
	for {
		procedure, payload, err := fc.ReadFrame()
		if err != nil {
			return err
		}
		if err := r.dispatch(ctx, procedure, payload); err != nil {
			log.Warningf("%s: %s: %v", fc.RemoteAddr(), procedure, err)
			received.WithLabelValues(procedure, "error").Inc()
			continue
		}
		received.WithLabelValues(procedure, "ok").Inc()
	}
}

// isClosed reports whether err only says that the stream ended.
func isClosed(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, ErrClosed)
}

// hub is the transport-independent half of a server: the procedure table
// and the set of connected peers.
type hub struct {
	router
	maxPeers int

	mu     sync.RWMutex
	peers  map[netip.AddrPort]frameConn
	closed atomic.Bool
}

func newHub(maxPeers int) *hub {
	return &hub{maxPeers: maxPeers, peers: make(map[netip.AddrPort]frameConn)}
}

func (h *hub) add(fc frameConn) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed.Load() {
		return ErrClosed
	}
	if h.maxPeers > 0 && len(h.peers) >= h.maxPeers {
		return fmt.Errorf("%w: limit %d", ErrTooManyPeers, h.maxPeers)
	}
	addr := fc.RemoteAddr()
	if _, ok := h.peers[addr]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicatePeer, addr)
	}
	h.peers[addr] = fc
	peersGauge.Inc()
	return nil
}

func (h *hub) remove(fc frameConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cur, ok := h.peers[fc.RemoteAddr()]; ok && cur == fc {
		delete(h.peers, fc.RemoteAddr())
		peersGauge.Dec()
	}
}

// serveConn owns fc for its lifetime.
func (h *hub) serveConn(ctx context.Context, fc frameConn) {
	defer fc.Close()
	if err := h.add(fc); err != nil {
		log.Warningf("rejecting %s: %v", fc.RemoteAddr(), err)
		return
	}
	defer h.remove(fc)

	log.V(1).Infof("peer %s connected", fc.RemoteAddr())
	err := h.readLoop(ctx, fc)
	if err != nil && !isClosed(err) {
		log.Warningf("peer %s: %v", fc.RemoteAddr(), err)
	}
	log.V(1).Infof("peer %s disconnected", fc.RemoteAddr())
}

func (h *hub) Notify(ctx context.Context, to netip.AddrPort, procedure string, payload []byte) error {
	h.mu.RLock()
	fc, ok := h.peers[to]
	h.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPeer, to)
	}
	if err := fc.WriteFrame(ctx, procedure, payload); err != nil {
		return err
	}
	sent.WithLabelValues(procedure).Inc()
	return nil
}

// Broadcast writes to every peer and returns the first failure.
func (h *hub) Broadcast(ctx context.Context, procedure string, payload []byte) error {
	h.mu.RLock()
	conns := make([]frameConn, 0, len(h.peers))
	for _, fc := range h.peers {
		conns = append(conns, fc)
	}
	h.mu.RUnlock()

	var first error
	for _, fc := range conns {
		if err := fc.WriteFrame(ctx, procedure, payload); err != nil {
			log.Warningf("broadcast %s to %s: %v", procedure, fc.RemoteAddr(), err)
			if first == nil {
				first = err
			}
			continue
		}
		sent.WithLabelValues(procedure).Inc()
	}
	return first
}

func (h *hub) SendReliableOrdered(ctx context.Context, payload []byte, dst Destination, procedure string) error {
	if dst.Broadcast {
		return h.Broadcast(ctx, procedure, payload)
	}
	return h.Notify(ctx, dst.Addr, procedure, payload)
}

func (h *hub) Peers() []netip.AddrPort {
	h.mu.RLock()
	defer h.mu.RUnlock()
	addrs := make([]netip.AddrPort, 0, len(h.peers))
	for addr := range h.peers {
		addrs = append(addrs, addr)
	}
	slices.SortFunc(addrs, func(a, b netip.AddrPort) int { return a.Compare(b) })
	return addrs
}

// closePeers marks the hub closed and closes every peer connection. It
// reports whether this call closed the hub.
func (h *hub) closePeers() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed.Swap(true) {
		return false
	}
	for _, fc := range h.peers {
		fc.Close()
	}
	return true
}

// conn is the transport-independent half of a client.
type conn struct {
	router
	fc   frameConn
	done chan struct{}
	once sync.Once
}

func newConn(fc frameConn) *conn {
	c := &conn{fc: fc, done: make(chan struct{})}
	go c.run()
	return c
}

func (c *conn) run() {
	defer c.shutdown()
	err := c.readLoop(context.Background(), c.fc)
	if err != nil && !isClosed(err) {
		log.Warningf("server %s: %v", c.fc.RemoteAddr(), err)
	}
}

func (c *conn) shutdown() {
	c.once.Do(func() {
		c.fc.Close()
		close(c.done)
	})
}

func (c *conn) Notify(ctx context.Context, procedure string, payload []byte) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	if err := c.fc.WriteFrame(ctx, procedure, payload); err != nil {
		return err
	}
	sent.WithLabelValues(procedure).Inc()
	return nil
}

// SendReliableOrdered sends to the server. A client has one peer, so any
// destination other than the server or a broadcast is unknown.
func (c *conn) SendReliableOrdered(ctx context.Context, payload []byte, dst Destination, procedure string) error {
	if !dst.Broadcast && dst.Addr.IsValid() && dst.Addr != c.fc.RemoteAddr() {
		return fmt.Errorf("%w: %s", ErrUnknownPeer, dst.Addr)
	}
	return c.Notify(ctx, procedure, payload)
}

func (c *conn) RemoteAddr() netip.AddrPort { return c.fc.RemoteAddr() }
func (c *conn) Done() <-chan struct{}      { return c.done }

func (c *conn) Close() error {
	c.shutdown()
	return nil
}

// addrPortOf converts a net.Addr to an address and port. Addresses that
// are not IP based convert to the zero value.
func addrPortOf(a net.Addr) netip.AddrPort {
	switch a := a.(type) {
	case *net.TCPAddr:
		ap := a.AddrPort()
		return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
	case nil:
		return netip.AddrPort{}
	}
	ap, err := netip.ParseAddrPort(a.String())
	if err != nil {
		return netip.AddrPort{}
	}
	return ap
}
