// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/luxfi/eventrpc"
	"github.com/luxfi/eventrpc/catalog"
	"github.com/luxfi/eventrpc/config"
	"github.com/luxfi/eventrpc/event"
	"github.com/luxfi/eventrpc/schema"
)

const gameSchema = "../../schema/testdata/game.yaml"

func testConfig(role schema.Site, addr string) config.Config {
	cfg := config.Default()
	cfg.Role = string(role)
	cfg.Transport = eventrpc.TransportMem
	cfg.Listen = addr
	cfg.Dial = addr
	cfg.Schema = gameSchema
	cfg.Tick = 5 * time.Millisecond
	return cfg
}

func TestProbeReachesServer(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	addr := "eventnode/" + t.Name()

	srv, err := newNode(testConfig(schema.Server, addr))
	if err != nil {
		t.Fatalf("server: %v", err)
	}
	got := make(chan int32, 16)
	err = srv.Handlers().On("Ping", func(_ context.Context, e *event.Event) error {
		v, _ := e.Get("value")
		select {
		case got <- v.(int32):
		default:
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	srvDone := make(chan error, 1)
	go func() { srvDone <- srv.run(ctx) }()

	// Wait for the server to listen.
	for {
		c, err := eventrpc.Dial(ctx, addr, eventrpc.WithTransport(eventrpc.TransportMem))
		if err == nil {
			c.Close()
			break
		}
		select {
		case <-ctx.Done():
			t.Fatal("server never listened")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cli, err := newNode(testConfig(schema.Client, addr))
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	cli.probe("Ping", 10*time.Millisecond)
	cliCtx, cliCancel := context.WithCancel(ctx)
	cliDone := make(chan error, 1)
	go func() { cliDone <- cli.run(cliCtx) }()

	select {
	case v := <-got:
		if v != 0 {
			t.Fatalf("probe value = %d", v)
		}
	case <-ctx.Done():
		t.Fatal("probe never handled")
	}

	cliCancel()
	if err := <-cliDone; err != nil {
		t.Fatalf("client run: %v", err)
	}
	cancel()
	if err := <-srvDone; err != nil {
		t.Fatalf("server run: %v", err)
	}
}

func TestUnknownProbe(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	addr := "eventnode/" + t.Name()

	srv, err := newNode(testConfig(schema.Server, addr))
	if err != nil {
		t.Fatal(err)
	}
	srvCtx, srvCancel := context.WithCancel(ctx)
	defer srvCancel()
	go srv.run(srvCtx)

	for {
		c, err := eventrpc.Dial(ctx, addr, eventrpc.WithTransport(eventrpc.TransportMem))
		if err == nil {
			c.Close()
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	cli, err := newNode(testConfig(schema.Client, addr))
	if err != nil {
		t.Fatal(err)
	}
	cli.probe("Teleport", time.Millisecond)
	if err := cli.run(ctx); err == nil || !strings.Contains(err.Error(), "Teleport") {
		t.Fatalf("run = %v, want unknown event error", err)
	}
}

func TestHTTPServers(t *testing.T) {
	cfg := testConfig(schema.Server, "unused")
	cfg.Catalog = "127.0.0.1:0"
	cfg.Metrics = "127.0.0.1:0"
	n, err := newNode(cfg)
	if err != nil {
		t.Fatal(err)
	}
	servers := n.httpServers()
	if len(servers) != 1 {
		t.Fatalf("servers = %d, want catalog and metrics sharing one", len(servers))
	}
	ts := httptest.NewServer(servers[0].Handler)
	defer ts.Close()

	c, err := catalog.NewClient(ts.URL + catalog.Path)
	if err != nil {
		t.Fatal(err)
	}
	d, err := c.Describe(context.Background(), "GameProtocol")
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}
	if d.Fingerprint != n.proto.Fingerprint().String() {
		t.Fatalf("fingerprint = %s", d.Fingerprint)
	}

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics status = %d", resp.StatusCode)
	}
}

func TestNewNodeErrors(t *testing.T) {
	cfg := testConfig(schema.Server, "x")
	cfg.Schema = "testdata/missing.yaml"
	if _, err := newNode(cfg); err == nil {
		t.Fatal("expected missing schema error")
	}
}

func TestRejectsNonPositiveProbeInterval(t *testing.T) {
	for _, interval := range []string{"0s", "-1s"} {
		cmd := newRootCommand()
		cmd.SetArgs([]string{"--probe", "Ping", "--probe-interval", interval})
		if err := cmd.Execute(); !errors.Is(err, errBadProbeInterval) {
			t.Fatalf("interval %s: Execute = %v, want errBadProbeInterval", interval, err)
		}
	}
}
