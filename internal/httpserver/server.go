package httpserver

import (
	"context"
	"log"
	"net/http"
	"time"

	"cartengine/internal/domain"
	"cartengine/internal/service/anonymous"
	"cartengine/internal/service/migration"
	"cartengine/internal/service/voucher"
)

// Deps collects the services the API exposes.
type Deps struct {
	Carts    *migration.Service
	Vouchers *voucher.Service
	Guests   *anonymous.Service
	// Health probes the storage backend for readiness.
	Health func(ctx context.Context) error
	Format domain.FormatContext
}

// Server wraps the HTTP server setup.
type Server struct {
	httpServer *http.Server
	logger     *log.Logger
}

// New builds a Server with the cart API routes.
func New(addr string, logger *log.Logger, deps Deps) (*Server, error) {
	router := buildRouter(logger, deps)

	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return &Server{
		httpServer: httpSrv,
		logger:     logger,
	}, nil
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
