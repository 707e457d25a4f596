// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package eventrpc

import (
	"context"
	"errors"
	"net/netip"
	"sync"
	"testing"

	log "github.com/golang/glog"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/luxfi/eventrpc/event"
)

type player struct {
	id  int32
	got []string
}

func (p *player) ObjectID() int32 { return p.id }

func (p *player) HandleEvent(_ context.Context, e *event.Event) error {
	p.got = append(p.got, e.Name())
	return nil
}

type sentFrame struct {
	payload   []byte
	dst       Destination
	procedure string
}

type recordingSender struct {
	mu     sync.Mutex
	frames []sentFrame
	err    error
}

func (s *recordingSender) SendReliableOrdered(_ context.Context, payload []byte, dst Destination, procedure string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.frames = append(s.frames, sentFrame{payload, dst, procedure})
	return nil
}

func TestRegistryRegister(t *testing.T) {
	r := NewRegistry("GameProtocol", nil)
	first := &player{id: 7}
	if err := r.Register(first); err != nil {
		t.Fatal(err)
	}

	before := testutil.ToFloat64(registryConflicts)
	if err := r.Register(&player{id: 7}); !errors.Is(err, ErrDuplicateObject) {
		t.Fatalf("duplicate Register = %v", err)
	}
	if testutil.ToFloat64(registryConflicts)-before != 1 {
		t.Error("conflict not counted")
	}
	if o, ok := r.Get(7); !ok || o != first {
		t.Fatal("duplicate replaced the original object")
	}
	if r.Len() != 1 {
		t.Fatalf("Len = %d", r.Len())
	}
	if !r.Unregister(7) || r.Unregister(7) {
		t.Fatal("Unregister")
	}
}

func TestRegistryPostEvent(t *testing.T) {
	p := gameProtocol(t)
	r := NewRegistry("GameProtocol", nil)
	target := &player{id: 2}
	r.Register(target)

	e, _ := p.NewEvent("Ping")
	e.Target = 2
	if err := r.PostEvent(context.Background(), e); err != nil {
		t.Fatalf("PostEvent: %v", err)
	}
	if len(target.got) != 1 || target.got[0] != "Ping" {
		t.Fatalf("target got %v", target.got)
	}
}

func TestRegistryTargetMiss(t *testing.T) {
	p := gameProtocol(t)
	r := NewRegistry("GameProtocol", nil)
	r.Register(&player{id: 1})

	if o, ok := r.Get(99); ok || o != nil {
		t.Fatalf("Get(99) = %v, %v", o, ok)
	}

	before := testutil.ToFloat64(registryMisses)
	warnings := log.Stats.Warning.Lines()
	e, _ := p.NewEvent("Ping")
	e.Target = 99
	if err := r.PostEvent(context.Background(), e); !errors.Is(err, ErrTargetMiss) {
		t.Fatalf("PostEvent = %v", err)
	}
	if testutil.ToFloat64(registryMisses)-before != 1 {
		t.Error("miss not counted")
	}
	if log.Stats.Warning.Lines() == warnings {
		t.Error("miss not logged at warning level")
	}
	if r.Len() != 1 {
		t.Fatalf("registry changed: Len = %d", r.Len())
	}
}

func TestRegistrySend(t *testing.T) {
	p := gameProtocol(t)
	e, _ := p.NewEvent("Ping")
	e.Source, e.Target = 1, 2
	e.Set("value", int32(5))

	r := NewRegistry("GameProtocol", nil)
	if err := r.Broadcast(context.Background(), e); !errors.Is(err, ErrNoSender) {
		t.Fatalf("Broadcast without sender = %v", err)
	}

	s := &recordingSender{}
	r.SetSender(s)
	to := netip.MustParseAddrPort("10.0.0.2:4000")
	if err := r.SendEvent(context.Background(), e, To(to)); err != nil {
		t.Fatal(err)
	}
	if err := r.Broadcast(context.Background(), e); err != nil {
		t.Fatal(err)
	}
	if len(s.frames) != 2 {
		t.Fatalf("sent %d frames", len(s.frames))
	}
	if f := s.frames[0]; f.dst.Addr != to || f.dst.Broadcast || f.procedure != "GameProtocol" {
		t.Errorf("SendEvent frame = %+v", f)
	}
	if f := s.frames[1]; !f.dst.Broadcast {
		t.Errorf("Broadcast frame = %+v", f)
	}

	f, _ := p.NewFactory("Server")
	in, err := f.Recreate(s.frames[0].payload)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Destroy(in)
	if v, _ := event.Value[int32](in, "value"); v != 5 || in.Target != 2 {
		t.Fatalf("decoded %v", in)
	}

	s.err = ErrClosed
	if err := r.SendEvent(context.Background(), e, Everyone); !errors.Is(err, ErrClosed) {
		t.Fatalf("SendEvent = %v", err)
	}
}
