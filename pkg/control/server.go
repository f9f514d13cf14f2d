package control

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"github.com/switchml/switchio/pkg/observability"
)

// defaultShutdownTimeout is how long Stop waits for in-flight calls before
// forcibly closing every connection.
const defaultShutdownTimeout = 5 * time.Second

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithLogger sets the server logger. Calls are logged at debug level.
func WithLogger(l *zap.Logger) ServerOption {
	return func(s *Server) {
		s.log = l
	}
}

// WithMetrics counts handled calls and errors.
func WithMetrics(m *observability.Metrics) ServerOption {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithShutdownTimeout bounds how long Stop drains in-flight calls.
func WithShutdownTimeout(d time.Duration) ServerOption {
	return func(s *Server) {
		s.shutdownTimeout = d
	}
}

// WithGRPCOptions appends raw gRPC server options.
func WithGRPCOptions(opts ...grpc.ServerOption) ServerOption {
	return func(s *Server) {
		s.grpcOpts = append(s.grpcOpts, opts...)
	}
}

// Server exposes a Handler over gRPC.
type Server struct {
	grpc            *grpc.Server
	log             *zap.Logger
	metrics         *observability.Metrics
	shutdownTimeout time.Duration
	grpcOpts        []grpc.ServerOption

	mu      sync.Mutex
	stopped bool
}

// NewServer creates a Server dispatching to h.
func NewServer(h Handler, opts ...ServerOption) *Server {
	s := &Server{
		log:             zap.NewNop(),
		shutdownTimeout: defaultShutdownTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	gopts := append([]grpc.ServerOption{
		grpc.ForceServerCodec(codec{}),
		grpc.MaxRecvMsgSize(MaxMessageBytes),
		grpc.MaxSendMsgSize(MaxMessageBytes),
		grpc.ChainUnaryInterceptor(s.intercept),
	}, s.grpcOpts...)
	s.grpc = grpc.NewServer(gopts...)
	s.grpc.RegisterService(&serviceDesc, h)
	return s
}

// Serve accepts connections on lis until Stop is called. It returns nil
// after a clean stop.
func (s *Server) Serve(lis net.Listener) error {
	err := s.grpc.Serve(lis)
	if errors.Is(err, grpc.ErrServerStopped) {
		return nil
	}
	return err
}

// Stop stops accepting calls and waits up to the shutdown timeout for
// in-flight calls before closing every connection. Safe to call repeatedly.
func (s *Server) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
		s.log.Debug("control server drained")
	case <-time.After(s.shutdownTimeout):
		s.log.Warn("control server shutdown timeout exceeded, forcing close", zap.Duration("timeout", s.shutdownTimeout))
		s.grpc.Stop()
		<-done
	}
}

func (s *Server) intercept(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	s.metrics.IncControlCall()
	if err != nil {
		s.metrics.IncControlError()
		s.log.Debug("control call failed",
			zap.String("method", info.FullMethod),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("code", status.Code(err).String()),
			zap.Error(err))
		return resp, err
	}
	s.log.Debug("control call",
		zap.String("method", info.FullMethod),
		zap.Duration("elapsed", time.Since(start)))
	return resp, nil
}
