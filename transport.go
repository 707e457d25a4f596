// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package eventrpc

import (
	"context"
	"slices"
	"sync"
)

// Transport types
const (
	TransportZAP  = "zap"  // framed TCP, default
	TransportWS   = "ws"   // websocket binary messages
	TransportGRPC = "grpc" // gRPC bidirectional stream
	TransportMem  = "mem"  // in-process pipes
)

// DefaultTransport is the default transport type (ZAP)
const DefaultTransport = TransportZAP

// DefaultMaxFrameSize bounds a single frame unless overridden.
const DefaultMaxFrameSize = 64 * 1024 * 1024

type dialFunc func(ctx context.Context, addr string, o *dialOptions) (Client, error)
type listenFunc func(addr string, o *serverOptions) (Server, error)

type transportFuncs struct {
	dial   dialFunc
	listen listenFunc
}

var (
	transportsMu sync.RWMutex
	transports   = map[string]transportFuncs{}
)

// registerTransport registers a new transport. Each transport registers
// itself from init.
func registerTransport(name string, dial dialFunc, listen listenFunc) {
	transportsMu.Lock()
	defer transportsMu.Unlock()
	transports[name] = transportFuncs{dial, listen}
}

func lookupTransport(name string) (transportFuncs, bool) {
	transportsMu.RLock()
	defer transportsMu.RUnlock()
	t, ok := transports[name]
	return t, ok
}

// AvailableTransports returns the registered transport types, sorted.
func AvailableTransports() []string {
	transportsMu.RLock()
	defer transportsMu.RUnlock()
	result := make([]string, 0, len(transports))
	for name := range transports {
		result = append(result, name)
	}
	slices.Sort(result)
	return result
}

// HasTransport checks if a transport is available
func HasTransport(name string) bool {
	_, ok := lookupTransport(name)
	return ok
}
