// Package api assembles the API module with all domain systems and route registration.
package api

import (
	"net/http"

	"github.com/rhinocodelab/idms-v3/internal/config"
	"github.com/rhinocodelab/idms-v3/internal/infrastructure"
	"github.com/rhinocodelab/idms-v3/pkg/middleware"
	"github.com/rhinocodelab/idms-v3/pkg/module"
)

// NewModule creates the API module with all domain handlers and middleware.
func NewModule(cfg *config.Config, infra *infrastructure.Infrastructure) (*module.Module, error) {
	runtime := NewRuntime(cfg, infra)

	domain, err := NewDomain(cfg, runtime)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	registerRoutes(mux, domain, runtime.Logger)

	m := module.New(cfg.API.BasePath, mux)
	m.Use(
		middleware.RequestID(),
		middleware.Logger(runtime.Logger),
		middleware.Recover(runtime.Logger),
		middleware.CORS(&cfg.API.CORS),
	)

	return m, nil
}
