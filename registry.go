// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package eventrpc

import (
	"context"
	"errors"
	"fmt"
	"sync"

	log "github.com/golang/glog"

	"github.com/luxfi/eventrpc/event"
)

var (
	ErrDuplicateObject = errors.New("eventrpc: object id already registered")
	ErrTargetMiss      = errors.New("eventrpc: no object with target id")
	ErrNoSender        = errors.New("eventrpc: registry has no sender")
)

// Object is a process-local entity addressable by id.
type Object interface {
	ObjectID() int32
	HandleEvent(ctx context.Context, e *event.Event) error
}

// Registry maps object ids to local objects, routes inbound events to
// their target and hands outbound events to the transport under the
// protocol's procedure name. Lookups take a read lock; HandleEvent runs
// with no lock held.
type Registry struct {
	procedure string

	mu      sync.RWMutex
	sender  Sender
	objects map[int32]Object
}

// NewRegistry returns an empty registry sending through s. s may be nil
// until SetSender is called.
func NewRegistry(procedure string, s Sender) *Registry {
	return &Registry{
		procedure: procedure,
		sender:    s,
		objects:   make(map[int32]Object),
	}
}

// SetSender replaces the transport used by SendEvent and Broadcast.
func (r *Registry) SetSender(s Sender) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sender = s
}

// Register adds o. An id that is already present is logged and rejected;
// the existing object stays.
func (r *Registry) Register(o Object) error {
	id := o.ObjectID()
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.objects[id]; ok {
		registryConflicts.Inc()
		log.Warningf("object %d already registered", id)
		return fmt.Errorf("%w: %d", ErrDuplicateObject, id)
	}
	r.objects[id] = o
	return nil
}

// Unregister removes the object with id and reports whether it existed.
func (r *Registry) Unregister(id int32) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.objects[id]
	delete(r.objects, id)
	return ok
}

// Get returns the object with id. A miss is logged.
func (r *Registry) Get(id int32) (Object, bool) {
	r.mu.RLock()
	o, ok := r.objects[id]
	r.mu.RUnlock()
	if !ok {
		registryMisses.Inc()
		log.Warningf("no object %d", id)
	}
	return o, ok
}

// Len returns the number of registered objects.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.objects)
}

// PostEvent delivers e to the object named by e.Target. A missing target
// is an ErrTargetMiss and leaves the registry unchanged.
func (r *Registry) PostEvent(ctx context.Context, e *event.Event) error {
	o, ok := r.Get(e.Target)
	if !ok {
		return fmt.Errorf("%w: %d for %s", ErrTargetMiss, e.Target, e.Name())
	}
	return o.HandleEvent(ctx, e)
}

// SendEvent encodes e and sends it to dst.
func (r *Registry) SendEvent(ctx context.Context, e *event.Event, dst Destination) error {
	r.mu.RLock()
	s := r.sender
	r.mu.RUnlock()
	if s == nil {
		return ErrNoSender
	}
	payload, err := e.MarshalBinary()
	if err != nil {
		return err
	}
	if err := s.SendReliableOrdered(ctx, payload, dst, r.procedure); err != nil {
		return fmt.Errorf("send %s to %s: %w", e.Name(), dst, err)
	}
	return nil
}

// Broadcast sends e to every peer.
func (r *Registry) Broadcast(ctx context.Context, e *event.Event) error {
	return r.SendEvent(ctx, e, Everyone)
}
