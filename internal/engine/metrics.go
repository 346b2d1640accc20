package engine

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/google/uuid"
)

const meterName = "github.com/rhinocodelab/idms-v3/internal/engine"

type metrics struct {
	scans      metric.Int64Counter
	discovered metric.Int64Counter
	completed  metric.Int64Counter
	retried    metric.Int64Counter
	failed     metric.Int64Counter
	duration   metric.Float64Histogram
	running    metric.Int64UpDownCounter
}

func newMetrics(mp metric.MeterProvider) (*metrics, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(meterName)

	var (
		m   metrics
		err error
	)

	if m.scans, err = meter.Int64Counter("idms.ingest.scans",
		metric.WithDescription("Completed folder scans")); err != nil {
		return nil, err
	}
	if m.discovered, err = meter.Int64Counter("idms.ingest.files.discovered",
		metric.WithDescription("Files added to a workflow queue")); err != nil {
		return nil, err
	}
	if m.completed, err = meter.Int64Counter("idms.ingest.items.completed",
		metric.WithDescription("Queue items processed successfully")); err != nil {
		return nil, err
	}
	if m.retried, err = meter.Int64Counter("idms.ingest.items.retried",
		metric.WithDescription("Queue items returned to pending after a failure")); err != nil {
		return nil, err
	}
	if m.failed, err = meter.Int64Counter("idms.ingest.items.failed",
		metric.WithDescription("Queue items that exhausted their retries")); err != nil {
		return nil, err
	}
	if m.duration, err = meter.Float64Histogram("idms.ingest.item.duration",
		metric.WithDescription("Time spent processing one queue item"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.running, err = meter.Int64UpDownCounter("idms.ingest.workflows.running",
		metric.WithDescription("Workflows with an active runner")); err != nil {
		return nil, err
	}

	return &m, nil
}

func workflowAttr(id uuid.UUID) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("workflow_id", id.String()))
}

func (m *metrics) observeItem(ctx context.Context, id uuid.UUID, started, finished time.Time) {
	m.duration.Record(ctx, finished.Sub(started).Seconds(), workflowAttr(id))
}
