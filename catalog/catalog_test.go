// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package catalog

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"syscall"
	"testing"

	"github.com/luxfi/eventrpc/protocol"
	"github.com/luxfi/eventrpc/schema"
	"github.com/luxfi/eventrpc/wire"
)

func testLibrary(t *testing.T) (*protocol.Library, *protocol.Compiled) {
	t.Helper()
	p, err := protocol.Compile("game", protocol.Descriptor{Name: "GameProtocol"}, []schema.EventType{
		schema.E("Ping", []schema.Site{schema.Client, schema.Server}, schema.F("value", wire.Int32)),
		schema.E("Batch", []schema.Site{schema.Server}, schema.F("items", wire.ArrayOf(wire.Int32))),
	})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	lib := protocol.NewLibrary()
	if err := lib.Add(p); err != nil {
		t.Fatalf("Add: %v", err)
	}
	return lib, p
}

func startCatalog(t *testing.T, lib *protocol.Library) *Client {
	t.Helper()
	h, err := NewHandler(lib)
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}
	mux := http.NewServeMux()
	mux.Handle(Path, h)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c, err := NewClient(srv.URL + Path)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestDescribe(t *testing.T) {
	_, p := testLibrary(t)
	d := Describe(p)
	if d.Name != "GameProtocol" || d.Namespace != "game" {
		t.Fatalf("descriptor = %s/%s", d.Name, d.Namespace)
	}
	if d.Fingerprint != p.Fingerprint().String() {
		t.Fatalf("fingerprint = %s", d.Fingerprint)
	}
	if len(d.Events) != 2 {
		t.Fatalf("events = %d", len(d.Events))
	}
	batch := d.Events[1]
	if batch.ID != 1 || batch.Name != "Batch" || batch.Fields[0].Type != "[]int32" {
		t.Fatalf("batch = %+v", batch)
	}
	if len(d.Sites) != 2 {
		t.Fatalf("sites = %+v", d.Sites)
	}
	for _, s := range d.Sites {
		want := 1
		if s.Name == string(schema.Server) {
			want = 2
		}
		if len(s.Events) != want {
			t.Errorf("site %s events = %v", s.Name, s.Events)
		}
	}
}

func TestClientList(t *testing.T) {
	lib, _ := testLibrary(t)
	c := startCatalog(t, lib)

	names, err := c.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(names) != 1 || names[0] != "GameProtocol" {
		t.Fatalf("names = %v", names)
	}
}

func TestClientDescribe(t *testing.T) {
	lib, p := testLibrary(t)
	c := startCatalog(t, lib)

	d, err := c.Describe(context.Background(), "GameProtocol")
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}
	if d.Fingerprint != p.Fingerprint().String() {
		t.Fatalf("fingerprint = %s, want %s", d.Fingerprint, p.Fingerprint())
	}
	if len(d.Events) != 2 || d.Events[0].Name != "Ping" {
		t.Fatalf("events = %+v", d.Events)
	}

	_, err = c.Describe(context.Background(), "Missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Describe(Missing) = %v, want ErrNotFound", err)
	}
}

func TestSendJSONRequestOptions(t *testing.T) {
	lib, _ := testLibrary(t)
	h, err := NewHandler(lib)
	if err != nil {
		t.Fatal(err)
	}
	var gotHeader, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("X-Node")
		gotQuery = r.URL.Query().Get("trace")
		h.ServeHTTP(w, r)
	}))
	defer srv.Close()

	uri, _ := url.Parse(srv.URL)
	var reply ListReply
	err = SendJSONRequest(context.Background(), uri, "Catalog.List", &ListArgs{}, &reply,
		WithHeader("X-Node", "a"), WithQueryParam("trace", "1"))
	if err != nil {
		t.Fatalf("SendJSONRequest: %v", err)
	}
	if gotHeader != "a" || gotQuery != "1" {
		t.Fatalf("header=%q query=%q", gotHeader, gotQuery)
	}
}

func TestSendJSONRequestStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	defer srv.Close()

	uri, _ := url.Parse(srv.URL)
	var reply ListReply
	if err := SendJSONRequest(context.Background(), uri, "Catalog.List", &ListArgs{}, &reply); err == nil {
		t.Fatal("expected status error")
	}
}

func TestTransient(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{io.ErrUnexpectedEOF, true},
		{&net.OpError{Op: "read", Err: os.NewSyscallError("read", syscall.ECONNRESET)}, true},
		{&url.Error{Op: "Post", Err: &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}}, true},
		{errors.New("bad request"), false},
		{ErrNotFound, false},
	}
	for _, tt := range tests {
		if got := transient(tt.err); got != tt.want {
			t.Errorf("transient(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestSendJSONRequestRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	uri, _ := url.Parse(srv.URL)
	srv.Close()

	var reply ListReply
	err := SendJSONRequest(context.Background(), uri, "Catalog.List", &ListArgs{}, &reply)
	if !errors.Is(err, syscall.ECONNREFUSED) {
		t.Fatalf("SendJSONRequest = %v, want connection refused after retries", err)
	}
}
