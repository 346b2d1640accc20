package api

import (
	"log/slog"
	"net/http"

	"github.com/rhinocodelab/idms-v3/pkg/routes"
)

func registerRoutes(mux *http.ServeMux, domain *Domain, logger *slog.Logger) {
	groups := []routes.Group{
		domain.Engine.Handler().Routes(),
		domain.Classifications.Handler().Routes(),
		domain.Documents.Handler().Routes(),
	}

	n := routes.Register(mux, groups...)
	logger.Info("routes registered", "count", n)
	for _, p := range routes.Patterns(groups...) {
		logger.Debug("route", "pattern", p)
	}
}
