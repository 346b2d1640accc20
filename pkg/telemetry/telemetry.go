// Package telemetry owns the process meter provider and, when a pull
// exporter is configured, the HTTP handler that serves it.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"

	"github.com/rhinocodelab/idms-v3/pkg/lifecycle"
)

const shutdownTimeout = 5 * time.Second

// System provides instruments to the domain systems and exposes them for
// collection.
type System interface {
	// MeterProvider returns the provider domain systems create instruments from.
	MeterProvider() metric.MeterProvider
	// Handler serves the scrape endpoint. It is nil when no pull exporter is configured.
	Handler() http.Handler
	// Path is the route Handler is mounted on.
	Path() string
	// Start registers a shutdown hook that flushes and releases the provider.
	Start(lc *lifecycle.Coordinator) error
}

type telemetry struct {
	provider metric.MeterProvider
	shutdown func(context.Context) error
	handler  http.Handler
	path     string
	logger   *slog.Logger
}

// New builds the meter provider for cfg.Exporter. The prometheus exporter
// writes to a private registry so only this service's instruments are served.
func New(cfg *Config, version string, logger *slog.Logger) (System, error) {
	t := &telemetry{
		path:   cfg.Path,
		logger: logger.With("system", "telemetry"),
	}

	if cfg.Exporter == ExporterNone {
		t.provider = noop.NewMeterProvider()
		return t, nil
	}

	registry := prometheus.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("prometheus exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
		sdkmetric.WithResource(resource.NewSchemaless(
			attribute.String("service.name", cfg.ServiceName),
			attribute.String("service.version", version),
		)),
	)

	t.provider = mp
	t.shutdown = mp.Shutdown
	t.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return t, nil
}

func (t *telemetry) MeterProvider() metric.MeterProvider {
	return t.provider
}

func (t *telemetry) Handler() http.Handler {
	return t.handler
}

func (t *telemetry) Path() string {
	return t.path
}

func (t *telemetry) Start(lc *lifecycle.Coordinator) error {
	if t.shutdown == nil {
		return nil
	}

	lc.OnShutdown(func() {
		<-lc.Context().Done()

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := t.shutdown(ctx); err != nil {
			t.logger.Error("meter provider shutdown failed", "error", err)
			return
		}
		t.logger.Info("meter provider stopped")
	})

	return nil
}
