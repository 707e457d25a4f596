// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package eventrpc

import (
	"context"
	"errors"
	"net/netip"
	"testing"
	"time"

	"github.com/luxfi/eventrpc/event"
	"github.com/luxfi/eventrpc/protocol"
	"github.com/luxfi/eventrpc/schema"
	"github.com/luxfi/eventrpc/wire"
)

// pump calls Update until n frames were handled.
func pump(t *testing.T, node *Node, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	handled := 0
	for handled < n {
		if time.Now().After(deadline) {
			t.Fatalf("handled %d of %d frames", handled, n)
		}
		handled += node.Update()
		time.Sleep(time.Millisecond)
	}
}

func TestNodeEndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	p := gameProtocol(t)
	serverNode, err := NewNode(p, schema.Server)
	if err != nil {
		t.Fatal(err)
	}
	clientNode, err := NewNode(p, schema.Client)
	if err != nil {
		t.Fatal(err)
	}

	server, client := startPair(t, TransportMem)
	if err := serverNode.Bind(server); err != nil {
		t.Fatal(err)
	}
	if err := clientNode.Bind(client); err != nil {
		t.Fatal(err)
	}
	peers := waitPeers(t, server, 1)

	// Client to server object.
	target := &player{id: 2}
	serverNode.Registry().Register(target)
	ping, _ := p.NewEvent("Ping")
	ping.Source, ping.Target = 1, 2
	ping.Set("value", int32(42))
	if err := clientNode.Send(ctx, ping, To(client.RemoteAddr())); err != nil {
		t.Fatalf("Send: %v", err)
	}
	pump(t, serverNode, 1)
	if len(target.got) != 1 || target.got[0] != "Ping" {
		t.Fatalf("server object got %v", target.got)
	}

	// A bound site handler takes precedence over object routing and sees
	// the sender as origin.
	var origin netip.AddrPort
	var items []any
	serverNode.Handlers().On("Batch", func(_ context.Context, e *event.Event) error {
		origin = e.Origin
		items, _ = event.Value[[]any](e, "items")
		return nil
	})
	batch, _ := p.NewEvent("Batch")
	batch.Target = 404
	batch.Set("items", []int32{7, 8, 9})
	if err := clientNode.Broadcast(ctx, batch); err != nil {
		t.Fatal(err)
	}
	pump(t, serverNode, 1)
	if origin != peers[0] {
		t.Fatalf("origin = %s, want %s", origin, peers[0])
	}
	if len(items) != 3 || items[2] != int32(9) {
		t.Fatalf("items = %v", items)
	}

	// Server to client object; a miss is dropped and the next event still
	// arrives.
	avatar := &player{id: 5}
	clientNode.Registry().Register(avatar)
	miss, _ := p.NewEvent("Chat")
	miss.Target = 99
	chat, _ := p.NewEvent("Chat")
	chat.Target = 5
	chat.Set("text", "welcome")
	if err := serverNode.Broadcast(ctx, miss); err != nil {
		t.Fatal(err)
	}
	if err := serverNode.Send(ctx, chat, To(peers[0])); err != nil {
		t.Fatal(err)
	}
	pump(t, clientNode, 2)
	if len(avatar.got) != 1 || avatar.got[0] != "Chat" {
		t.Fatalf("client object got %v", avatar.got)
	}
}

func TestNodeRun(t *testing.T) {
	p := gameProtocol(t)
	node, err := NewNode(p, schema.Client)
	if err != nil {
		t.Fatal(err)
	}
	got := make(chan int32, 1)
	node.Handlers().On("Ping", func(_ context.Context, e *event.Event) error {
		v, _ := event.Value[int32](e, "value")
		got <- v
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- node.Run(ctx, time.Millisecond) }()

	if err := node.enqueue(context.Background(), encode(t, p, "Ping", 0, 0, map[string]any{"value": int32(3)})); err != nil {
		t.Fatal(err)
	}
	select {
	case v := <-got:
		if v != 3 {
			t.Fatalf("value = %d", v)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("event not dispatched")
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run = %v", err)
	}
}

func TestNodeQueueFull(t *testing.T) {
	node, err := NewNode(gameProtocol(t), schema.Server, WithQueueSize(1))
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := node.enqueue(ctx, []byte{0}); err != nil {
		t.Fatal(err)
	}
	if err := node.enqueue(ctx, []byte{0}); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("enqueue = %v", err)
	}
	if n := node.Update(); n != 1 {
		t.Fatalf("Update = %d", n)
	}
}

func TestNodeUnknownSite(t *testing.T) {
	if _, err := NewNode(gameProtocol(t), "Relay"); !errors.Is(err, protocol.ErrUnknownSite) {
		t.Fatalf("NewNode = %v", err)
	}
}

func frontEndProtocol(t *testing.T) *protocol.Compiled {
	t.Helper()
	p, err := protocol.Compile("frontend", protocol.Descriptor{Name: "FrontEnd"}, []schema.EventType{
		schema.E("ConnectionTest", []schema.Site{"FrontEndServer"}, schema.F("seq", wire.Int32)),
	})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	return p
}

func TestNodeServerRoleOnNamedSite(t *testing.T) {
	p := frontEndProtocol(t)
	node, err := NewNode(p, "FrontEndServer", WithRole(RoleServer))
	if err != nil {
		t.Fatal(err)
	}
	if node.Role() != RoleServer {
		t.Fatalf("role = %s", node.Role())
	}

	var origin netip.AddrPort
	if err := node.Handlers().On("ConnectionTest", func(_ context.Context, e *event.Event) error {
		origin = e.Origin
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	sender := netip.MustParseAddrPort("10.0.0.9:5000")
	payload := encode(t, p, "ConnectionTest", 1, 0, map[string]any{"seq": int32(3)})
	if err := node.enqueue(withPeer(context.Background(), sender), payload); err != nil {
		t.Fatal(err)
	}
	if n := node.Update(); n != 1 {
		t.Fatalf("Update = %d", n)
	}
	if origin != sender {
		t.Fatalf("origin = %v, want %v", origin, sender)
	}
}

func TestNodeDefaultRole(t *testing.T) {
	tests := []struct {
		site schema.Site
		opts []NodeOption
		want Role
	}{
		{schema.Server, nil, RoleServer},
		{schema.Client, nil, RoleClient},
		{schema.Client, []NodeOption{WithRole(RoleServer)}, RoleServer},
		{schema.Server, []NodeOption{WithRole(RoleClient)}, RoleClient},
	}
	for _, tt := range tests {
		node, err := NewNode(gameProtocol(t), tt.site, tt.opts...)
		if err != nil {
			t.Fatal(err)
		}
		if node.Role() != tt.want {
			t.Errorf("%s role = %s, want %s", tt.site, node.Role(), tt.want)
		}
	}
}
