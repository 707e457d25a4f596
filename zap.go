// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package eventrpc

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/golang/glog"
)

// zapWriteTimeout bounds a frame write when the context has no earlier
// deadline.
const zapWriteTimeout = 30 * time.Second

func init() {
	registerTransport(TransportZAP, dialZAP, listenZAP)
}

// ZAPConn carries frames over a byte stream:
//
//	[4 len][1 type][2 procLen][proc][payload]
//
// All integers are big-endian.
type ZAPConn struct {
	conn     net.Conn
	remote   netip.AddrPort
	maxFrame int
	writeMu  sync.Mutex
	closed   atomic.Bool
	header   [4]byte
}

func newZAPConn(c net.Conn, maxFrame int) *ZAPConn {
	return &ZAPConn{
		conn:     c,
		remote:   addrPortOf(c.RemoteAddr()),
		maxFrame: maxFrame,
	}
}

// ZAPDial connects to a ZAP server
func ZAPDial(ctx context.Context, addr string, maxFrame int) (*ZAPConn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("zap dial: %w", err)
	}
	return newZAPConn(conn, maxFrame), nil
}

// WriteFrame sends one frame.
func (z *ZAPConn) WriteFrame(ctx context.Context, procedure string, payload []byte) error {
	if z.closed.Load() {
		return ErrClosed
	}
	buf := make([]byte, 4, 4+frameHeaderSize+len(procedure)+len(payload))
	buf, err := appendFrame(buf, procedure, payload)
	if err != nil {
		return err
	}
	msgLen := len(buf) - 4
	if msgLen > z.maxFrame {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, msgLen)
	}
	binary.BigEndian.PutUint32(buf[0:4], uint32(msgLen))

	deadline := time.Now().Add(zapWriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	z.writeMu.Lock()
	defer z.writeMu.Unlock()
	z.conn.SetWriteDeadline(deadline)
	if _, err := z.conn.Write(buf); err != nil {
		return fmt.Errorf("zap write: %w", err)
	}
	return nil
}

// ReadFrame reads one frame. The returned payload is owned by the caller.
func (z *ZAPConn) ReadFrame() (string, []byte, error) {
	if _, err := io.ReadFull(z.conn, z.header[:]); err != nil {
		return "", nil, err
	}
	msgLen := binary.BigEndian.Uint32(z.header[:])
	if msgLen == 0 {
		return "", nil, fmt.Errorf("%w: empty frame", ErrBadFrame)
	}
	if int64(msgLen) > int64(z.maxFrame) {
		return "", nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, msgLen)
	}
	msg := make([]byte, msgLen)
	if _, err := io.ReadFull(z.conn, msg); err != nil {
		return "", nil, err
	}
	return parseFrame(msg)
}

func (z *ZAPConn) RemoteAddr() netip.AddrPort { return z.remote }

// Close closes the connection
func (z *ZAPConn) Close() error {
	if z.closed.Swap(true) {
		return nil
	}
	return z.conn.Close()
}

// dialZAP creates a ZAP client
func dialZAP(ctx context.Context, addr string, o *dialOptions) (Client, error) {
	zc, err := ZAPDial(ctx, addr, o.maxFrame)
	if err != nil {
		return nil, err
	}
	return newConn(zc), nil
}

// listenZAP creates a ZAP server
func listenZAP(addr string, o *serverOptions) (Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return newZAPServer(listener, o), nil
}

// ZAPServer accepts ZAP connections from any net.Listener.
type ZAPServer struct {
	*hub
	listener net.Listener
	maxFrame int
}

func newZAPServer(listener net.Listener, o *serverOptions) *ZAPServer {
	return &ZAPServer{
		hub:      newHub(o.maxPeers),
		listener: listener,
		maxFrame: o.maxFrame,
	}
}

// Serve starts serving connections
func (s *ZAPServer) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { s.Close() })
	defer stop()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.closed.Load() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				log.Warningf("zap accept: %v", err)
				continue
			}
			return fmt.Errorf("zap accept: %w", err)
		}
		go s.serveConn(ctx, newZAPConn(conn, s.maxFrame))
	}
}

// Close closes the server
func (s *ZAPServer) Close() error {
	if !s.closePeers() {
		return nil
	}
	return s.listener.Close()
}

// Addr returns the listener address
func (s *ZAPServer) Addr() string {
	return s.listener.Addr().String()
}
