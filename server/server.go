// Package server serves the recipe page and JSON API over gin
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"recipe-gen/config"
	"recipe-gen/generation"
)

const defaultShutdownTimeout = 15 * time.Second

// Server is the HTTP front end of the recipe generator
type Server struct {
	cfg    config.ServerConfig
	http   *http.Server
	router *gin.Engine
	log    *zap.Logger
}

// New builds the server around loader
func New(cfg config.ServerConfig, loader *generation.Loader, log *zap.Logger) (*Server, error) {
	if log == nil {
		log = zap.NewNop()
	}

	svc := NewRecipeService(loader, log)
	router, err := NewRouter(NewHandler(svc, loader, log), RouterConfig{CORSOrigins: cfg.CORSOrigins}, log)
	if err != nil {
		return nil, err
	}

	return &Server{
		cfg:    cfg,
		router: router,
		log:    log,
		http: &http.Server{
			Addr:         cfg.Addr(),
			Handler:      router,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
	}, nil
}

// Handler returns the root handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is canceled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("HTTP server listening", zap.String("addr", s.http.Addr))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info("Shutting down HTTP server")
	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
