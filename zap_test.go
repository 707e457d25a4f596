// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package eventrpc

import (
	"bytes"
	"context"
	"errors"
	"net"
	"testing"
	"time"
)

type frame struct {
	peer    string
	payload []byte
}

func collect(ch chan<- frame) RawHandler {
	return func(ctx context.Context, payload []byte) error {
		peer, _ := PeerFromContext(ctx)
		ch <- frame{peer: peer.String(), payload: bytes.Clone(payload)}
		return nil
	}
}

func recv(t testing.TB, ch <-chan frame) frame {
	t.Helper()
	select {
	case f := <-ch:
		return f
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for frame")
	}
	return frame{}
}

func TestZAPRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	server, err := Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer server.Close()

	got := make(chan frame, 1)
	server.Handle("echo", collect(got))
	go server.Serve(ctx)

	client, err := Dial(ctx, server.Addr())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	payload := []byte("hello world")
	if err := client.Notify(ctx, "echo", payload); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	f := recv(t, got)
	if string(f.payload) != string(payload) {
		t.Errorf("got %q, want %q", f.payload, payload)
	}
	if host, _, _ := net.SplitHostPort(f.peer); host != "127.0.0.1" {
		t.Errorf("peer = %q", f.peer)
	}
}

func TestZAPFrameLimit(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	server, err := Listen("127.0.0.1:0", WithServerMaxFrameSize(32))
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer server.Close()
	got := make(chan frame, 1)
	server.Handle("echo", collect(got))
	go server.Serve(ctx)

	client, err := Dial(ctx, server.Addr(), WithMaxFrameSize(32))
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	if err := client.Notify(ctx, "echo", make([]byte, 64)); !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("oversized Notify = %v", err)
	}
	if err := client.Notify(ctx, "echo", []byte("small")); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	recv(t, got)
}

func TestZAPServerDropsOversizedFrame(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	server, err := Listen("127.0.0.1:0", WithServerMaxFrameSize(32))
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer server.Close()
	go server.Serve(ctx)

	client, err := Dial(ctx, server.Addr())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	if err := client.Notify(ctx, "echo", make([]byte, 64)); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	select {
	case <-client.Done():
	case <-ctx.Done():
		t.Fatal("server kept a connection that sent an oversized frame")
	}
}

func TestParseFrame(t *testing.T) {
	buf, err := appendFrame(nil, "GameProtocol", []byte{1, 2, 3})
	if err != nil {
		t.Fatal(err)
	}
	proc, payload, err := parseFrame(buf)
	if err != nil || proc != "GameProtocol" || !bytes.Equal(payload, []byte{1, 2, 3}) {
		t.Fatalf("parseFrame = %q % x %v", proc, payload, err)
	}

	for _, bad := range [][]byte{
		nil,
		{byte(MsgNotify), 0},
		{0x01, 0, 0},
		{byte(MsgNotify), 0, 9, 'a'},
	} {
		if _, _, err := parseFrame(bad); !errors.Is(err, ErrBadFrame) {
			t.Errorf("parseFrame(% x) = %v", bad, err)
		}
	}
}

func BenchmarkZAPNotify(b *testing.B) {
	ctx := context.Background()

	server, err := Listen("127.0.0.1:0")
	if err != nil {
		b.Fatalf("Listen: %v", err)
	}
	defer server.Close()

	done := make(chan struct{}, 1024)
	server.Handle("bench", func(context.Context, []byte) error {
		done <- struct{}{}
		return nil
	})
	go server.Serve(ctx)

	client, err := Dial(ctx, server.Addr())
	if err != nil {
		b.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	payload := make([]byte, 1024)

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if err := client.Notify(ctx, "bench", payload); err != nil {
			b.Fatal(err)
		}
		<-done
	}
}
