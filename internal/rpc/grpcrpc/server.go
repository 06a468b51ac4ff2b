package grpcrpc

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"rulecluster/internal/rpc"
	"rulecluster/pkg/logx"
)

// Server hosts exported SchedulerServices on a single gRPC server.
type Server struct {
	log  logx.Logger
	grpc *grpc.Server

	mu       sync.RWMutex
	services map[string]*hosted
}

type hosted struct {
	svc      rpc.SchedulerService
	disposed atomic.Bool
}

var (
	_ rpc.Exporter = (*Server)(nil)
	_ Host         = (*Server)(nil)
)

func NewServer(log logx.Logger, opts ...grpc.ServerOption) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Server{
		log:      log.With(logx.String("comp", "grpc-server")),
		services: map[string]*hosted{},
	}
	opts = append([]grpc.ServerOption{
		grpc.ChainUnaryInterceptor(s.logUnary),
		grpc.ChainStreamInterceptor(s.logStream),
	}, opts...)
	s.grpc = grpc.NewServer(opts...)
	s.grpc.RegisterService(&serviceDesc, s)
	return s
}

// Export publishes svc under address until the handle is disposed.
func (s *Server) Export(address string, svc rpc.SchedulerService) (rpc.Disposable, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, errors.New("grpcrpc: empty address")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.services[address]; ok && !cur.disposed.Load() {
		return nil, rpc.ErrAddressInUse
	}
	h := &hosted{svc: svc}
	s.services[address] = h
	s.log.Info("service exported", logx.String("address", address))
	return &exportHandle{srv: s, address: address, h: h}, nil
}

// Lookup returns the service named by the x-service-address metadata of ctx.
func (s *Server) Lookup(ctx context.Context) (rpc.SchedulerService, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	vals := md.Get(addressKey)
	if len(vals) == 0 {
		return nil, status.Error(codes.InvalidArgument, "missing "+addressKey)
	}
	address := vals[0]
	s.mu.RLock()
	h, ok := s.services[address]
	s.mu.RUnlock()
	if !ok || h.disposed.Load() {
		return nil, status.Error(codes.NotFound, notFoundMessage+address)
	}
	return h.svc, nil
}

// Addresses lists the live exports.
func (s *Server) Addresses() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.services))
	for a, h := range s.services {
		if !h.disposed.Load() {
			out = append(out, a)
		}
	}
	return out
}

func (s *Server) Serve(lis net.Listener) error {
	s.log.Info("grpc serving", logx.String("addr", lis.Addr().String()))
	err := s.grpc.Serve(lis)
	if errors.Is(err, grpc.ErrServerStopped) {
		return nil
	}
	return err
}

// Stop drains in-flight calls, falling back to a hard stop once ctx is done.
func (s *Server) Stop(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.grpc.Stop()
		<-done
	}
}

func (s *Server) logUnary(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	s.logCall(info.FullMethod, start, err)
	return resp, err
}

func (s *Server) logStream(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	start := time.Now()
	err := handler(srv, ss)
	s.logCall(info.FullMethod, start, err)
	return err
}

func (s *Server) logCall(method string, start time.Time, err error) {
	if err != nil {
		s.log.Debug("call failed", logx.String("method", method), logx.Duration("took", time.Since(start)), logx.Err(err))
		return
	}
	if s.log.Enabled(logx.LevelTrace) {
		s.log.Trace("call", logx.String("method", method), logx.Duration("took", time.Since(start)))
	}
}

type exportHandle struct {
	srv     *Server
	address string
	h       *hosted
}

func (e *exportHandle) Dispose() error {
	if !e.h.disposed.CompareAndSwap(false, true) {
		return nil
	}
	e.srv.mu.Lock()
	if e.srv.services[e.address] == e.h {
		delete(e.srv.services, e.address)
	}
	e.srv.mu.Unlock()
	e.srv.log.Info("service unexported", logx.String("address", e.address))
	return nil
}

func (e *exportHandle) IsDisposed() bool { return e.h.disposed.Load() }

// toStatus maps service errors onto gRPC status codes.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded), rpc.IsTimeout(err):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, rpc.ErrServiceNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, rpc.ErrDisposed):
		return status.Error(codes.Unavailable, err.Error())
	}
	return status.Error(codes.Unknown, err.Error())
}
