// Package server hosts the S3-compatible HTTP front end.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/harukado/kura/internal/api"
	"github.com/harukado/kura/internal/auth"
	"github.com/harukado/kura/internal/config"
	"github.com/harukado/kura/internal/storage"
)

// Server is the Kura HTTP server over one storage engine.
type Server struct {
	httpServer *http.Server
	engine     *storage.Engine
	config     *config.Config
}

// New creates a new Server instance.
func New(cfg *config.Config) (*Server, error) {
	engine, err := storage.NewEngine(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	apiHandler := api.NewHandler(engine)
	authMiddleware := auth.NewMiddleware(cfg.Auth.AccessKey, cfg.Auth.SecretKey)
	router := NewRouter(apiHandler, authMiddleware)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Address, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		engine:     engine,
		config:     cfg,
	}, nil
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	log.Info().Str("addr", s.httpServer.Addr).Msg("Starting HTTP server")
	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	log.Info().Msg("Shutting down server")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}

	if err := s.engine.Close(); err != nil {
		return fmt.Errorf("storage close error: %w", err)
	}

	return nil
}

// Engine returns the storage engine (for testing).
func (s *Server) Engine() *storage.Engine {
	return s.engine
}
