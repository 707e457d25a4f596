// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package eventrpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/golang/glog"
	"github.com/gorilla/websocket"
)

// WSPath is the HTTP path the websocket transport upgrades on.
const WSPath = "/events"

func init() {
	registerTransport(TransportWS, dialWS, listenWS)
}

// wsConn carries one frame per binary websocket message.
type wsConn struct {
	conn    *websocket.Conn
	remote  netip.AddrPort
	writeMu sync.Mutex
	closed  atomic.Bool
}

func (w *wsConn) WriteFrame(ctx context.Context, procedure string, payload []byte) error {
	if w.closed.Load() {
		return ErrClosed
	}
	buf, err := appendFrame(make([]byte, 0, frameHeaderSize+len(procedure)+len(payload)), procedure, payload)
	if err != nil {
		return err
	}

	deadline := time.Now().Add(zapWriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	w.conn.SetWriteDeadline(deadline)
	if err := w.conn.WriteMessage(websocket.BinaryMessage, buf); err != nil {
		return fmt.Errorf("ws write: %w", err)
	}
	return nil
}

func (w *wsConn) ReadFrame() (string, []byte, error) {
	for {
		mt, msg, err := w.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return "", nil, ErrClosed
			}
			return "", nil, err
		}
		if mt != websocket.BinaryMessage {
			log.V(2).Infof("ws %s: ignoring message type %d", w.remote, mt)
			continue
		}
		return parseFrame(msg)
	}
}

func (w *wsConn) RemoteAddr() netip.AddrPort { return w.remote }

func (w *wsConn) Close() error {
	if w.closed.Swap(true) {
		return nil
	}
	w.writeMu.Lock()
	w.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	w.writeMu.Unlock()
	return w.conn.Close()
}

func wsURL(addr string) string {
	if strings.HasPrefix(addr, "ws://") || strings.HasPrefix(addr, "wss://") {
		return addr
	}
	return "ws://" + addr + WSPath
}

func dialWS(ctx context.Context, addr string, o *dialOptions) (Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL(addr), nil)
	if err != nil {
		return nil, fmt.Errorf("ws dial: %w", err)
	}
	conn.SetReadLimit(int64(o.maxFrame))
	return newConn(&wsConn{conn: conn, remote: addrPortOf(conn.RemoteAddr())}), nil
}

// wsServer upgrades HTTP requests on WSPath.
type wsServer struct {
	*hub
	listener net.Listener
	upgrader websocket.Upgrader
	maxFrame int
	srv      *http.Server
}

func listenWS(addr string, o *serverOptions) (Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	s := &wsServer{
		hub:      newHub(o.maxPeers),
		listener: listener,
		maxFrame: o.maxFrame,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	mux := http.NewServeMux()
	mux.HandleFunc(WSPath, s.upgrade)
	s.srv = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	return s, nil
}

func (s *wsServer) upgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warningf("ws upgrade from %s: %v", r.RemoteAddr, err)
		return
	}
	conn.SetReadLimit(int64(s.maxFrame))
	s.serveConn(r.Context(), &wsConn{conn: conn, remote: addrPortOf(conn.RemoteAddr())})
}

func (s *wsServer) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { s.Close() })
	defer stop()
	if err := s.srv.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) && !s.closed.Load() {
		return fmt.Errorf("ws serve: %w", err)
	}
	return nil
}

func (s *wsServer) Close() error {
	if !s.closePeers() {
		return nil
	}
	s.srv.Close()
	s.listener.Close()
	return nil
}

func (s *wsServer) Addr() string {
	return s.listener.Addr().String()
}
