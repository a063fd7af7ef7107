// ABOUTME: Server wires the store, keyring, admin services and HTTP routes together
// ABOUTME: Owns the HTTP listener lifecycle including graceful shutdown on context cancel

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/2389/broodpress/internal/admin"
	"github.com/2389/broodpress/internal/auth"
	"github.com/2389/broodpress/internal/config"
	"github.com/2389/broodpress/internal/metrics"
	"github.com/2389/broodpress/internal/store"
)

// Server is the broodpress HTTP API server.
type Server struct {
	config     *config.Config
	store      *store.SQLiteStore
	keyring    *auth.Keyring
	keys       *admin.KeyService
	articles   *admin.ArticleService
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// New opens the database named by cfg and builds a Server on top of it.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	return NewWithStore(cfg, s, logger), nil
}

// NewWithStore builds a Server using an already opened store. The server
// takes ownership of s and closes it on Shutdown.
func NewWithStore(cfg *config.Config, s *store.SQLiteStore, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	keyring := auth.NewKeyring(s, auth.KeyringConfig{
		Prefix: cfg.Auth.TokenPrefix,
		Logger: logger,
	})

	srv := &Server{
		config:   cfg,
		store:    s,
		keyring:  keyring,
		keys:     admin.NewKeyService(keyring, s, logger),
		articles: admin.NewArticleService(s, logger),
		logger:   logger.With("component", "server"),
	}

	if cfg.Auth.Disabled {
		srv.logger.Warn("authentication is DISABLED; every request is allowed")
	} else if has, err := srv.keys.HasKeys(context.Background()); err == nil && !has {
		srv.logger.Warn("no API keys issued yet; run 'broodpress bootstrap --name NAME'")
	}

	srv.handler = srv.routes()
	srv.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           srv.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// routes builds the mux. Everything except the metrics endpoint passes
// through the request gate; the health path is exempted by the gate itself.
func (s *Server) routes() http.Handler {
	gate := auth.GateConfig{
		Bypass:     s.config.Auth.Disabled,
		HealthPath: s.config.Auth.HealthPath,
		Logger:     s.logger,
	}

	healthPath := gate.HealthPath
	if healthPath == "" {
		healthPath = auth.DefaultHealthPath
	}

	api := http.NewServeMux()
	api.HandleFunc("GET "+healthPath, s.handleHealth)
	s.registerAPIRoutes(api, gate)

	root := http.NewServeMux()
	if s.config.Metrics.Enabled {
		root.Handle("GET "+s.config.Metrics.Path, metrics.Handler())
	}
	root.Handle("/", auth.APIKeyMiddleware(s.keyring, gate)(api))

	var h http.Handler = root
	h = loggingMiddleware(s.logger, h)
	h = recoveryMiddleware(s.logger, h)
	h = requestIDMiddleware(h)
	h = metrics.Middleware(h)
	return h
}

// startServer serves HTTP on ln in a goroutine, returning the error channel.
func (s *Server) startServer(ln net.Listener) chan error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	return errCh
}

// waitForShutdownSignal waits for context cancellation or server error.
func (s *Server) waitForShutdownSignal(ctx context.Context, errCh chan error) error {
	select {
	case <-ctx.Done():
		s.logger.Info("context canceled, initiating shutdown")
		return nil
	case err := <-errCh:
		s.logger.Error("server error", "error", err)
		return err
	}
}

// Run listens on the configured address and blocks until ctx is canceled.
// Returns nil on graceful shutdown, or an error if the server fails.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Server.HTTPAddr)
	if err != nil {
		_ = s.store.Close()
		return fmt.Errorf("listening on HTTP address: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run with a caller-supplied listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := s.startServer(ln)
	serverErr := s.waitForShutdownSignal(ctx, errCh)

	shutdownErr := s.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown shuts down with a fresh context since the run context is
// already canceled.
func (s *Server) gracefulShutdown() error {
	timeout := s.config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.Shutdown(ctx)
}

// Shutdown stops the HTTP server and closes the store.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")

	var errs []error
	if err := s.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("HTTP shutdown: %w", err))
	}
	if err := s.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("store close: %w", err))
	}
	return errors.Join(errs...)
}
