package main

import (
	"fmt"
	"time"

	"github.com/rhinocodelab/idms-v3/internal/api"
	"github.com/rhinocodelab/idms-v3/internal/config"
	"github.com/rhinocodelab/idms-v3/internal/infrastructure"
	"github.com/rhinocodelab/idms-v3/pkg/module"
)

// Server owns the process-wide infrastructure and the HTTP listener that
// fronts the API module.
type Server struct {
	infra *infrastructure.Infrastructure
	http  *httpServer
}

func NewServer(cfg *config.Config) (*Server, error) {
	infra, err := infrastructure.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("infrastructure: %w", err)
	}

	apiModule, err := api.NewModule(cfg, infra)
	if err != nil {
		infra.Close()
		return nil, fmt.Errorf("api module: %w", err)
	}

	router := module.NewRouter()
	router.Health(infra.Lifecycle)
	if h := infra.Telemetry.Handler(); h != nil {
		router.HandleNative("GET "+infra.Telemetry.Path(), h.ServeHTTP)
	}
	router.Mount(apiModule)

	infra.Logger.Info(
		"server initialized",
		"addr", cfg.Server.Addr(),
		"api", cfg.API.BasePath,
		"metrics", cfg.Metrics.Exporter,
		"version", cfg.Version,
		"env", cfg.Env(),
	)

	return &Server{
		infra: infra,
		http:  newHTTPServer(&cfg.Server, router, infra.Logger),
	}, nil
}

// Start acquires the instance lock, brings up storage and the database,
// then begins accepting connections. Readiness flips once every
// registered subsystem reports in.
func (s *Server) Start() error {
	if err := s.infra.Start(); err != nil {
		return err
	}
	if err := s.http.Start(s.infra.Lifecycle); err != nil {
		return err
	}

	go func() {
		s.infra.Lifecycle.WaitForStartup()
		s.infra.Logger.Info("ready")
	}()
	return nil
}

// Shutdown drains running workflows and stops every subsystem within timeout.
func (s *Server) Shutdown(timeout time.Duration) error {
	start := time.Now()
	s.infra.Logger.Info("shutting down", "timeout", timeout)

	if err := s.infra.Lifecycle.Shutdown(timeout); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	s.infra.Logger.Info("stopped", "elapsed", time.Since(start).Round(time.Millisecond))
	return nil
}

// Close flushes the log file. It runs after Shutdown.
func (s *Server) Close() error {
	return s.infra.Close()
}
