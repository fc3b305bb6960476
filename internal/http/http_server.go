package http

// this is entry point of the admin http request handlers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/darrnshn/stateline/internal/core/ports/primary"
	"github.com/darrnshn/stateline/internal/handlers"
)

// RouteRegistrar mounts a group of routes under /api
type RouteRegistrar interface {
	Register(r *mux.Router)
}

type Server struct {
	router      *mux.Router
	Port        int
	ServiceName string
	logger      primary.Logger
	routes      []RouteRegistrar
	auth        *handlers.MiddlewareProvider // nil leaves /api open
}

func NewServer(port int, serviceName string, auth *handlers.MiddlewareProvider, logger primary.Logger, routes ...RouteRegistrar) *Server {
	return &Server{
		Port:        port,
		ServiceName: serviceName,
		logger:      logger,
		routes:      routes,
		auth:        auth,
	}
}

func (s *Server) Init() error {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", handlers.Health).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	if s.auth != nil {
		api.Use(s.auth.JWTMiddleware)
	}
	for _, route := range s.routes {
		route.Register(api)
	}
	s.router = r
	return nil
}

// Handler returns the routed handler; Init must have been called
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	listener, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", srv.Addr, err)
	}

	go func() {
		s.logger.Info("Admin server listening", "service", s.ServiceName, "addr", listener.Addr().String())
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Admin server error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		s.logger.Info("Shutting down admin server...", "service", s.ServiceName)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("Admin server shutdown failed", "error", err)
		}
	}()
	return nil
}
