// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package eventrpc

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

// Frames travel as raw messages on one bidirectional stream per client.
const grpcMethod = "/eventrpc.Events/Stream"

var grpcStreamDesc = &grpc.StreamDesc{
	StreamName:    "Stream",
	ServerStreams: true,
	ClientStreams: true,
}

func init() {
	registerTransport(TransportGRPC, dialGRPC, listenGRPC)
}

type msgStream interface {
	SendMsg(m any) error
	RecvMsg(m any) error
}

// grpcStream adapts a gRPC stream to frameConn.
type grpcStream struct {
	stream  msgStream
	remote  netip.AddrPort
	writeMu sync.Mutex
	closed  atomic.Bool
	onClose func()
}

func (g *grpcStream) WriteFrame(_ context.Context, procedure string, payload []byte) error {
	if g.closed.Load() {
		return ErrClosed
	}
	buf, err := appendFrame(make([]byte, 0, frameHeaderSize+len(procedure)+len(payload)), procedure, payload)
	if err != nil {
		return err
	}
	g.writeMu.Lock()
	defer g.writeMu.Unlock()
	if err := g.stream.SendMsg(&buf); err != nil {
		return fmt.Errorf("grpc send: %w", err)
	}
	return nil
}

func (g *grpcStream) ReadFrame() (string, []byte, error) {
	var msg []byte
	if err := g.stream.RecvMsg(&msg); err != nil {
		return "", nil, err
	}
	return parseFrame(msg)
}

func (g *grpcStream) RemoteAddr() netip.AddrPort { return g.remote }

func (g *grpcStream) Close() error {
	if g.closed.Swap(true) {
		return nil
	}
	if g.onClose != nil {
		g.onClose()
	}
	return nil
}

func dialGRPC(ctx context.Context, addr string, o *dialOptions) (Client, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("grpc dial: %w", err)
	}
	cc, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(
			grpc.ForceCodec(rawCodec{}),
			grpc.MaxCallRecvMsgSize(o.maxFrame),
			grpc.MaxCallSendMsgSize(o.maxFrame),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("grpc dial: %w", err)
	}

	// The stream outlives ctx; ctx only bounds stream setup.
	sctx, cancel := context.WithCancel(context.Background())
	stop := context.AfterFunc(ctx, cancel)
	stream, err := cc.NewStream(sctx, grpcStreamDesc, grpcMethod)
	stop()
	if err != nil {
		cancel()
		cc.Close()
		return nil, fmt.Errorf("grpc stream: %w", err)
	}

	fc := &grpcStream{
		stream: stream,
		remote: addrPortOf(tcpAddr),
		onClose: func() {
			stream.CloseSend()
			cancel()
			cc.Close()
		},
	}
	return newConn(fc), nil
}

// grpcServer serves the event stream on a gRPC server with no registered
// services; the stream is routed through the unknown service handler.
type grpcServer struct {
	*hub
	srv      *grpc.Server
	listener net.Listener
}

func listenGRPC(addr string, o *serverOptions) (Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	s := &grpcServer{hub: newHub(o.maxPeers), listener: listener}
	s.srv = grpc.NewServer(
		grpc.UnknownServiceHandler(s.stream),
		grpc.ForceServerCodec(rawCodec{}),
		grpc.MaxRecvMsgSize(o.maxFrame),
		grpc.MaxSendMsgSize(o.maxFrame),
	)
	return s, nil
}

func (s *grpcServer) stream(_ any, stream grpc.ServerStream) error {
	method, _ := grpc.MethodFromServerStream(stream)
	if method != grpcMethod {
		return status.Errorf(codes.Unimplemented, "unknown method %s", method)
	}
	var remote netip.AddrPort
	if p, ok := peer.FromContext(stream.Context()); ok {
		remote = addrPortOf(p.Addr)
	}
	s.serveConn(stream.Context(), &grpcStream{stream: stream, remote: remote})
	return nil
}

func (s *grpcServer) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { s.Close() })
	defer stop()
	if err := s.srv.Serve(s.listener); err != nil && !s.closed.Load() {
		return fmt.Errorf("grpc serve: %w", err)
	}
	return nil
}

func (s *grpcServer) Close() error {
	if !s.closePeers() {
		return nil
	}
	s.srv.Stop()
	s.listener.Close()
	return nil
}

func (s *grpcServer) Addr() string {
	return s.listener.Addr().String()
}
