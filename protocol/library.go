// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package protocol

import (
	"fmt"
	"slices"
	"sync"
)

// Library holds compiled protocols by descriptor name.
type Library struct {
	mu    sync.RWMutex
	items map[string]*Compiled
}

func NewLibrary() *Library {
	return &Library{items: make(map[string]*Compiled)}
}

// Add stores c. A second protocol with the same descriptor name is
// rejected.
func (l *Library) Add(c *Compiled) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	name := c.desc.Name
	if _, ok := l.items[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateProtocol, name)
	}
	l.items[name] = c
	return nil
}

// Lookup returns the protocol registered under name.
func (l *Library) Lookup(name string) (*Compiled, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	c, ok := l.items[name]
	return c, ok
}

// Names returns the registered descriptor names, sorted.
func (l *Library) Names() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	names := make([]string, 0, len(l.items))
	for name := range l.items {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
