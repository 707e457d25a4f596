// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	log "github.com/golang/glog"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/luxfi/eventrpc"
	"github.com/luxfi/eventrpc/catalog"
	"github.com/luxfi/eventrpc/config"
	"github.com/luxfi/eventrpc/event"
	"github.com/luxfi/eventrpc/protocol"
	"github.com/luxfi/eventrpc/schema"
)

const shutdownTimeout = 5 * time.Second

// node is one running process: the event node, its transport endpoint and
// the optional HTTP surfaces.
type node struct {
	cfg   config.Config
	proto *protocol.Compiled
	*eventrpc.Node

	probeEvent    string
	probeInterval time.Duration
}

func newNode(cfg config.Config) (*node, error) {
	ns, err := schema.LoadFile(cfg.Schema)
	if err != nil {
		return nil, err
	}
	if err := ns.Validate(); err != nil {
		return nil, err
	}
	p, err := protocol.CompileNamespace(ns)
	if err != nil {
		return nil, err
	}
	n, err := eventrpc.NewNode(p, cfg.HandledSite(), cfg.NodeOptions()...)
	if err != nil {
		return nil, err
	}
	if site, ok := p.Site(cfg.HandledSite()); ok {
		for _, e := range site.Events {
			if err := n.Handlers().On(e.Name, logEvent); err != nil {
				return nil, err
			}
		}
	}
	log.Infof("%s %s on %s: %d events, fingerprint %s",
		p.Descriptor().Name, cfg.Role, cfg.Transport, len(p.Events()), p.Fingerprint().Short())
	return &node{cfg: cfg, proto: p, Node: n}, nil
}

func logEvent(_ context.Context, e *event.Event) error {
	log.Infof("handled %s from %s", e, e.Origin)
	return nil
}

func (n *node) probe(name string, interval time.Duration) {
	n.probeEvent = name
	n.probeInterval = interval
}

// run serves until ctx is done or a component fails.
func (n *node) run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if n.cfg.IsServer() {
		srv, err := eventrpc.Listen(n.cfg.Listen, n.cfg.ServerOptions()...)
		if err != nil {
			return err
		}
		if err := n.Bind(srv); err != nil {
			srv.Close()
			return err
		}
		log.Infof("listening on %s", srv.Addr())
		g.Go(func() error { return srv.Serve(ctx) })
	} else {
		c, err := eventrpc.Dial(ctx, n.cfg.Dial, n.cfg.DialOptions()...)
		if err != nil {
			return err
		}
		if err := n.Bind(c); err != nil {
			c.Close()
			return err
		}
		log.Infof("connected to %s", c.RemoteAddr())
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return c.Close()
			case <-c.Done():
				return fmt.Errorf("%s: %w", n.cfg.Dial, eventrpc.ErrClosed)
			}
		})
		if n.probeEvent != "" {
			g.Go(func() error { return n.sendProbes(ctx, eventrpc.To(c.RemoteAddr())) })
		}
	}

	for _, s := range n.httpServers() {
		g.Go(func() error { return serveHTTP(ctx, s) })
	}
	g.Go(func() error { return n.Run(ctx, n.cfg.Tick) })

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// sendProbes sends the probe event to the server on every interval. The
// event is created and released on the probe goroutine; only its bytes
// cross to the transport.
func (n *node) sendProbes(ctx context.Context, server eventrpc.Destination) error {
	if _, ok := n.proto.Event(n.probeEvent); !ok {
		return fmt.Errorf("%w: %s", protocol.ErrUnknownEvent, n.probeEvent)
	}
	ticker := time.NewTicker(n.probeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		e, err := n.proto.NewEvent(n.probeEvent)
		if err != nil {
			return err
		}
		if err := n.Send(ctx, e, server); err != nil {
			log.Warningf("probe %s: %v", n.probeEvent, err)
			continue
		}
		log.V(1).Infof("sent %s", e)
	}
}

// httpServers groups the catalog and metrics handlers by listen address.
func (n *node) httpServers() []*http.Server {
	muxes := map[string]*http.ServeMux{}
	mux := func(addr string) *http.ServeMux {
		m, ok := muxes[addr]
		if !ok {
			m = http.NewServeMux()
			muxes[addr] = m
		}
		return m
	}
	if n.cfg.Catalog != "" {
		lib := protocol.NewLibrary()
		if err := lib.Add(n.proto); err == nil {
			if h, err := catalog.NewHandler(lib); err == nil {
				mux(n.cfg.Catalog).Handle(catalog.Path, h)
			} else {
				log.Errorf("catalog: %v", err)
			}
		}
	}
	if n.cfg.Metrics != "" {
		mux(n.cfg.Metrics).Handle("/metrics", promhttp.Handler())
	}

	servers := make([]*http.Server, 0, len(muxes))
	for addr, m := range muxes {
		servers = append(servers, &http.Server{
			Addr:              addr,
			Handler:           m,
			ReadHeaderTimeout: 10 * time.Second,
		})
	}
	return servers
}

func serveHTTP(ctx context.Context, s *http.Server) error {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return err
	}
	log.Infof("http on %s", ln.Addr())
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = s.Shutdown(shutdownCtx)
	}()
	if err := s.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
