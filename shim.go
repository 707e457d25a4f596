// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package eventrpc

import (
	"context"
	"errors"
	"fmt"
	"net/netip"

	log "github.com/golang/glog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/luxfi/eventrpc/event"
)

const tracerName = "github.com/luxfi/eventrpc"

var (
	ErrMisconfigured = errors.New("eventrpc: exactly one of the client and server callbacks must be set")
	ErrCallbackSet   = errors.New("eventrpc: callback already set")
)

// Callback receives every event decoded by a shim. The event is released
// when the callback returns; callbacks that keep it must Clone it.
type Callback func(ctx context.Context, e *event.Event) error

// ShimOption configures a Shim.
type ShimOption func(*Shim)

// WithTracerProvider sets the provider of the shim's spans. The global
// provider is used otherwise.
func WithTracerProvider(tp trace.TracerProvider) ShimOption {
	return func(s *Shim) { s.tracer = tp.Tracer(tracerName) }
}

// Shim is the entry point transports call with inbound event buffers. A
// process sets exactly one callback: the client callback when it acts as a
// client, the server callback when it acts as a server.
type Shim struct {
	factory *event.Factory
	tracer  trace.Tracer
	client  Callback
	server  Callback
}

// NewShim returns a shim decoding with f.
func NewShim(f *event.Factory, opts ...ShimOption) *Shim {
	s := &Shim{factory: f, tracer: otel.Tracer(tracerName)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetClient sets the client callback. It may be set once.
func (s *Shim) SetClient(cb Callback) error {
	if s.client != nil {
		return fmt.Errorf("%w: client", ErrCallbackSet)
	}
	s.client = cb
	return nil
}

// SetServer sets the server callback. It may be set once.
func (s *Shim) SetServer(cb Callback) error {
	if s.server != nil {
		return fmt.Errorf("%w: server", ErrCallbackSet)
	}
	s.server = cb
	return nil
}

// Validate is the startup check that exactly one callback is set.
func (s *Shim) Validate() error {
	if (s.client == nil) == (s.server == nil) {
		return ErrMisconfigured
	}
	return nil
}

// ToClient decodes a client-bound event, delivers it to the client
// callback and releases it.
func (s *Shim) ToClient(ctx context.Context, buf []byte) error {
	if s.client == nil {
		return fmt.Errorf("%w: no client callback", ErrMisconfigured)
	}
	return s.deliver(ctx, "client", buf, netip.AddrPort{}, s.client)
}

// ToServer decodes a server-bound event, stamps the sender as its origin,
// delivers it to the server callback and releases it.
func (s *Shim) ToServer(ctx context.Context, buf []byte, sender netip.AddrPort) error {
	if s.server == nil {
		return fmt.Errorf("%w: no server callback", ErrMisconfigured)
	}
	return s.deliver(ctx, "server", buf, sender, s.server)
}

// Handler returns the transport handler for the configured direction.
// The server path takes the sender from PeerFromContext.
func (s *Shim) Handler() RawHandler {
	return func(ctx context.Context, payload []byte) error {
		if s.server != nil {
			sender, _ := PeerFromContext(ctx)
			return s.ToServer(ctx, payload, sender)
		}
		return s.ToClient(ctx, payload)
	}
}

func (s *Shim) deliver(ctx context.Context, direction string, buf []byte, sender netip.AddrPort, cb Callback) error {
	name := "eventrpc.ToClient"
	if direction == "server" {
		name = "eventrpc.ToServer"
	}
	ctx, span := s.tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()
	span.SetAttributes(
		attribute.String("eventrpc.factory", s.factory.Name()),
		attribute.Int("eventrpc.bytes", len(buf)),
	)

	e, err := s.factory.Recreate(buf)
	if err != nil {
		shimEvents.WithLabelValues(direction, "decode_error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "decode")
		log.Warningf("dropping %s-bound event from %s: %v", direction, sender, err)
		return err
	}
	if sender.IsValid() {
		e.Origin = sender
	}
	span.SetAttributes(
		attribute.String("eventrpc.event", e.Name()),
		attribute.Int64("eventrpc.event_id", int64(e.ID())),
		attribute.Int64("eventrpc.source", int64(e.Source)),
		attribute.Int64("eventrpc.target", int64(e.Target)),
	)

	cbErr := cb(ctx, e)
	if err := s.factory.Destroy(e); err != nil {
		shimEvents.WithLabelValues(direction, "release_error").Inc()
		log.Errorf("release %s: %v", e.Name(), err)
	}
	if cbErr != nil {
		shimEvents.WithLabelValues(direction, "handler_error").Inc()
		span.RecordError(cbErr)
		span.SetStatus(codes.Error, "handler")
		return cbErr
	}
	shimEvents.WithLabelValues(direction, "ok").Inc()
	return nil
}
