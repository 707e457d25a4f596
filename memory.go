// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package eventrpc

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
)

// The mem transport connects clients and servers of one process through
// net.Pipe. Listen addresses are arbitrary names. Each end gets a distinct
// loopback address so servers can tell their peers apart.

func init() {
	registerTransport(TransportMem, dialMem, listenMem)
}

var (
	memMu        sync.Mutex
	memListeners = map[string]*memListener{}
	memPort      atomic.Uint32
)

func nextMemAddr() *net.TCPAddr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: int(10000 + memPort.Add(1)%50000)}
}

type memListener struct {
	name  string
	addr  *net.TCPAddr
	conns chan net.Conn
	done  chan struct{}
	once  sync.Once
}

func (l *memListener) Accept() (net.Conn, error) {
	select {
	case c := <-l.conns:
		return c, nil
	case <-l.done:
		return nil, net.ErrClosed
	}
}

func (l *memListener) Close() error {
	l.once.Do(func() {
		memMu.Lock()
		if memListeners[l.name] == l {
			delete(memListeners, l.name)
		}
		memMu.Unlock()
		close(l.done)
	})
	return nil
}

func (l *memListener) Addr() net.Addr { return memName(l.name) }

type memName string

func (memName) Network() string  { return TransportMem }
func (n memName) String() string { return string(n) }

// memConn gives a pipe end IP addresses.
type memConn struct {
	net.Conn
	local, remote net.Addr
}

func (c *memConn) LocalAddr() net.Addr  { return c.local }
func (c *memConn) RemoteAddr() net.Addr { return c.remote }

func listenMem(addr string, o *serverOptions) (Server, error) {
	l := &memListener{
		name:  addr,
		addr:  nextMemAddr(),
		conns: make(chan net.Conn),
		done:  make(chan struct{}),
	}
	memMu.Lock()
	defer memMu.Unlock()
	if _, ok := memListeners[addr]; ok {
		return nil, fmt.Errorf("mem listen %s: address in use", addr)
	}
	memListeners[addr] = l
	return newZAPServer(l, o), nil
}

func dialMem(ctx context.Context, addr string, o *dialOptions) (Client, error) {
	memMu.Lock()
	l, ok := memListeners[addr]
	memMu.Unlock()
	if !ok {
		return nil, fmt.Errorf("mem dial %s: %w", addr, net.ErrClosed)
	}

	local := nextMemAddr()
	client, server := net.Pipe()
	select {
	case l.conns <- &memConn{Conn: server, local: l.addr, remote: local}:
	case <-l.done:
		client.Close()
		server.Close()
		return nil, fmt.Errorf("mem dial %s: %w", addr, net.ErrClosed)
	case <-ctx.Done():
		client.Close()
		server.Close()
		return nil, ctx.Err()
	}
	return newConn(newZAPConn(&memConn{Conn: client, local: local, remote: l.addr}, o.maxFrame)), nil
}
