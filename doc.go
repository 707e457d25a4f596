// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package eventrpc routes schema-defined events between client and server
// processes.
//
// A protocol is compiled once from an event schema (see the protocol and
// schema packages). Each process runs one site of it: a factory that decodes
// the events the site handles, a handler table, an entry shim and a
// registry of networked objects.
//
// # Dispatch
//
// Inbound frames arrive on a transport goroutine and are queued by a Node.
// Node.Update drains the queue on the calling goroutine:
//
//	payload -> Shim.ToClient / Shim.ToServer -> Factory.Recreate
//	        -> site handler, or Registry.PostEvent(target) -> Object.HandleEvent
//	        -> Factory.Destroy
//
// The shim releases every event after its callback returns. Handlers that
// keep event data past the call use Event.Clone.
//
// # Usage
//
// Server usage:
//
//	p, err := protocol.CompileNamespace(ns)
//	node, err := eventrpc.NewNode(p, schema.Server)
//	node.Handlers().On("Ping", func(ctx context.Context, e *event.Event) error {
//	    v, _ := e.Get("value")
//	    ...
//	})
//
//	server, err := eventrpc.Listen(":9700")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	node.Bind(server)
//	go server.Serve(ctx)
//	node.Run(ctx, 15*time.Millisecond)
//
// Client usage:
//
//	client, err := eventrpc.Dial(ctx, "localhost:9700")
//	node, err := eventrpc.NewNode(p, schema.Client)
//	node.Bind(client)
//
//	e, _ := p.NewEvent("Ping")
//	e.Set("value", int32(7))
//	node.Send(ctx, e, eventrpc.To(client.RemoteAddr()))
//
// # Transport Selection
//
// Transports deliver reliable ordered one-way frames keyed by a procedure
// name, which is the protocol name:
//
//	zap   framed TCP (default)
//	ws    websocket binary messages on /events
//	grpc  gRPC bidirectional stream
//	mem   in-process pipes, for tests
//
// # Architecture
//
//   - client.go: Endpoint, Client and Server interfaces, options
//   - transport.go: transport registry
//   - dial.go: Dial and Listen factory functions
//   - frame.go, router.go: frame layout and per-connection dispatch
//   - zap.go, websocket.go, dial_grpc.go, memory.go: transports
//   - shim.go: entry shims for the client and server paths
//   - registry.go: networked objects addressed by id
//   - node.go: the tick pump binding it all together
//
// Application code should only depend on the Endpoint interfaces, making
// transport selection a deployment decision rather than a code change.
package eventrpc
