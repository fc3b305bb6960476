package tcp

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/darrnshn/stateline/internal/config"
	"github.com/darrnshn/stateline/internal/core/ports/primary"
	"github.com/darrnshn/stateline/internal/core/ports/secondary"
	"github.com/darrnshn/stateline/internal/core/services/delegator"
	"github.com/darrnshn/stateline/internal/domain"
	"github.com/darrnshn/stateline/internal/tcp/defs"
	"github.com/darrnshn/stateline/internal/tcp/handlers"
	"github.com/darrnshn/stateline/internal/tcp/publishers"
	"github.com/darrnshn/stateline/internal/tcp/transport"
)

const mirrorSyncTimeout = 2 * time.Second

// ErrServerStopped is returned by queries made after Run has returned
var ErrServerStopped = errors.New("delegator server stopped")

// Server is the delegator: a router socket plus the single dispatch loop
// that owns the worker registry and the job tables.
type Server struct {
	address   string
	cfg       *config.DelegatorCfg
	logger    primary.Logger
	router    *transport.Router
	delegator delegator.IDelegatorService
	mirror    secondary.WorkerRegistryMirror
	handlers  map[defs.Subject]primary.MessageHandler
	queries   chan func()
	done      chan struct{}
	syncing   atomic.Bool
}

// ServerOption configures a Server
type ServerOption func(*Server)

// WithAddress sets the listen address, overriding the configured port
func WithAddress(address string) ServerOption {
	return func(s *Server) {
		s.address = address
	}
}

// WithRegistryMirror mirrors the worker registry after every heartbeat round
func WithRegistryMirror(mirror secondary.WorkerRegistryMirror) ServerOption {
	return func(s *Server) {
		s.mirror = mirror
	}
}

// NewServer creates a new delegator server
func NewServer(cfg *config.DelegatorCfg, logger primary.Logger, options ...ServerOption) *Server {
	server := &Server{
		address: fmt.Sprintf(":%d", cfg.Port),
		cfg:     cfg,
		logger:  logger,
		queries: make(chan func()),
		done:    make(chan struct{}),
	}

	for _, option := range options {
		option(server)
	}

	server.router = transport.NewRouter(server.address, logger, transport.WithWriteTimeout(cfg.HeartbeatTimeout))
	link := publishers.NewWorkerLinkPublisher(server.router, logger)
	server.delegator = delegator.NewDelegatorService(link, logger, cfg)

	server.setupMessageHandlers()

	return server
}

// setupMessageHandlers registers all message handlers
func (s *Server) setupMessageHandlers() {
	s.handlers = map[defs.Subject]primary.MessageHandler{
		defs.SubjectHello:      &handlers.WorkerRegistrationHandler{Delegator: s.delegator, Logger: s.logger},
		defs.SubjectHeartbeat:  &handlers.WorkerHeartbeatHandler{Delegator: s.delegator, Logger: s.logger},
		defs.SubjectJobRequest: handlers.NewJobRequestHandler(s.delegator, s.logger),
		defs.SubjectJobResult:  &handlers.JobResultHandler{Delegator: s.delegator, Logger: s.logger},
		defs.SubjectGoodbye:    &handlers.WorkerGoodbyeHandler{Delegator: s.delegator, Logger: s.logger},
	}
}

// Start binds the listener
func (s *Server) Start() error {
	return s.router.Start()
}

// Addr returns the bound address
func (s *Server) Addr() string {
	if addr := s.router.Addr(); addr != nil {
		return addr.String()
	}
	return s.address
}

// Run services worker traffic and heartbeat ticks until ctx is cancelled,
// then closes the socket.
func (s *Server) Run(ctx context.Context) error {
	defer close(s.done)

	ticker := time.NewTicker(s.cfg.HeartbeatRate)
	defer ticker.Stop()

	s.logger.Info("Delegator running",
		"address", s.Addr(),
		"heartbeatRate", s.cfg.HeartbeatRate,
		"heartbeatTimeout", s.cfg.HeartbeatTimeout,
	)

	for {
		select {
		case <-ctx.Done():
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.router.Stop(stopCtx); err != nil {
				s.logger.Error("Failed to stop router cleanly", "error", err)
			}
			s.logger.Info("Delegator stopped", "outstanding", s.delegator.Stats().Jobs.Outstanding)
			return nil

		case frames := <-s.router.Inbox():
			s.dispatch(ctx, frames)

		case <-ticker.C:
			s.delegator.Tick()
			s.syncMirror()

		case query := <-s.queries:
			query()
		}
	}
}

// Workers returns a registry snapshot taken by the dispatch loop
func (s *Server) Workers(ctx context.Context) ([]domain.WorkerInfo, error) {
	var workers []domain.WorkerInfo
	err := s.query(ctx, func() { workers = s.delegator.Workers() })
	return workers, err
}

// Stats returns delegator counters taken by the dispatch loop
func (s *Server) Stats(ctx context.Context) (domain.DelegatorStats, error) {
	var stats domain.DelegatorStats
	err := s.query(ctx, func() { stats = s.delegator.Stats() })
	return stats, err
}

func (s *Server) query(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	wrapped := func() {
		fn()
		close(finished)
	}

	select {
	case s.queries <- wrapped:
	case <-s.done:
		return ErrServerStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	<-finished
	return nil
}

func (s *Server) dispatch(ctx context.Context, frames [][]byte) {
	msg, err := transport.DecodeFrames(frames)
	if err != nil {
		s.logger.Warn("Discarding malformed message", "error", err)
		return
	}

	handler, exists := s.handlers[msg.Subject]
	if !exists {
		s.logger.Warn("Unknown message subject", "subject", msg.Subject, "sender", msg.Sender())
		return
	}

	if err := handler.HandleMessage(ctx, msg); err != nil {
		s.logger.Warn("Discarding message", "subject", msg.Subject, "sender", msg.Sender(), "error", err)
	}
}

// syncMirror pushes a registry snapshot to the mirror without blocking the loop
func (s *Server) syncMirror() {
	if s.mirror == nil || !s.syncing.CompareAndSwap(false, true) {
		return
	}
	workers := s.delegator.Workers()
	cutoff := time.Now().Add(-s.cfg.HeartbeatTimeout)

	go func() {
		defer s.syncing.Store(false)
		ctx, cancel := context.WithTimeout(context.Background(), mirrorSyncTimeout)
		defer cancel()

		if err := s.mirror.Sync(ctx, workers); err != nil {
			s.logger.Error("Failed to sync worker registry mirror", "error", err)
			return
		}
		if err := s.mirror.RemoveInactiveWorkers(ctx, cutoff); err != nil {
			s.logger.Error("Failed to prune worker registry mirror", "error", err)
		}
	}()
}
