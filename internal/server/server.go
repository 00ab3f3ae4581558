package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/openmined/vcscompare/internal/repository"
	"github.com/openmined/vcscompare/internal/server/auth"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

// Server serves a single repository over http
type Server struct {
	config *Config
	server *http.Server
	repo   *repository.Repository
	auth   *auth.AuthService
}

func New(config *Config) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	repo, err := repository.Open(config.DBPath)
	if err != nil {
		return nil, err
	}

	authSvc := auth.NewAuthService(&config.Auth)

	handler, err := SetupRoutes(config, repo, authSvc)
	if err != nil {
		repo.Close()
		return nil, err
	}

	return &Server{
		config: config,
		repo:   repo,
		auth:   authSvc,
		server: &http.Server{
			Addr:              config.HTTP.Addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// Handler exposes the router for in-process use
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) Repository() *repository.Repository {
	return s.repo
}

// Start serves until ctx is canceled or the listener fails
func (s *Server) Start(ctx context.Context) error {
	slog.Info("server start", "db", s.config.DBPath, "uuid", s.repo.UUID(), "apiLevel", s.config.APILevel)
	defer slog.Info("server stop")

	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		if err := s.runHttpServer(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-egCtx.Done()
		slog.Info("server shutdown signal")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.Stop(shutdownCtx)
	})

	return eg.Wait()
}

func (s *Server) Stop(ctx context.Context) error {
	err := s.server.Shutdown(ctx)
	if cerr := s.repo.Close(); cerr != nil {
		err = errors.Join(err, cerr)
	}
	return err
}

func (s *Server) runHttpServer() error {
	if s.config.HTTP.CertFile != "" && s.config.HTTP.KeyFile != "" {
		slog.Info("server start tls", "addr", s.config.HTTP.Addr, "cert", s.config.HTTP.CertFile, "key", s.config.HTTP.KeyFile)
		return s.server.ListenAndServeTLS(s.config.HTTP.CertFile, s.config.HTTP.KeyFile)
	}
	slog.Info("server start http", "addr", s.config.HTTP.Addr)
	return s.server.ListenAndServe()
}
