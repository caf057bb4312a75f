package dispatch

import (
	"fmt"
	"net"
	"sync"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"loanpipe/internal/api"
)

// Server serves a Dispatcher over gRPC.
type Server struct {
	listenAddr string
	dispatcher *Dispatcher
	logger     *zap.Logger

	mu         sync.Mutex
	grpcServer *grpc.Server
	lis        net.Listener
	stopped    bool
}

// NewServer creates a server for d on listenAddr.
func NewServer(listenAddr string, d *Dispatcher, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		listenAddr: listenAddr,
		dispatcher: d,
		logger:     logger,
	}
}

// Start listens on the configured address and serves until Stop.
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.listenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.listenAddr, err)
	}
	return s.Serve(lis)
}

// Serve serves on an existing listener until Stop.
func (s *Server) Serve(lis net.Listener) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return lis.Close()
	}
	s.lis = lis
	s.grpcServer = grpc.NewServer(grpc.WaitForHandlers(true))
	api.RegisterDispatcherServer(s.grpcServer, s.dispatcher)
	gs := s.grpcServer
	s.mu.Unlock()

	s.logger.Info("Starting dispatcher", zap.String("addr", lis.Addr().String()))

	if err := gs.Serve(lis); err != nil && err != grpc.ErrServerStopped {
		return fmt.Errorf("failed to serve: %w", err)
	}
	return nil
}

// Addr returns the bound address once serving, or the configured one.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lis != nil {
		return s.lis.Addr().String()
	}
	return s.listenAddr
}

// Stop cancels open subscription streams, which never finish on their own,
// and returns once their handlers have exited.
func (s *Server) Stop() {
	s.mu.Lock()
	gs := s.grpcServer
	s.stopped = true
	s.mu.Unlock()

	if gs != nil {
		s.logger.Info("Stopping dispatcher")
		gs.Stop()
	}
}
