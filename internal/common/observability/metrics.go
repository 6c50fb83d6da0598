package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/sdk/metric"

	"signal-workflows/internal/common/logger"
)

// Observability records workflow and activity run measurements through the otel meter API.
// The prometheus exporter publishes them on the default registry next to the promauto metrics.
type Observability struct {
	meterProvider *metric.MeterProvider
	meter         otelmetric.Meter
	runCounter    otelmetric.Int64Counter
	runDuration   otelmetric.Float64Histogram
	agentTurns    otelmetric.Int64Histogram
}

func New(serviceName string, log logger.Logger) *Observability {
	exporter, err := prometheus.New()
	if err != nil {
		log.Warn("Failed to create Prometheus exporter, metrics disabled", map[string]interface{}{
			"error": err.Error(),
		})
		return NewNoop()
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	o := fromMeter(provider.Meter(serviceName))
	o.meterProvider = provider
	return o
}

// NewNoop returns an Observability that records nothing.
func NewNoop() *Observability {
	return fromMeter(noop.NewMeterProvider().Meter("noop"))
}

func fromMeter(meter otelmetric.Meter) *Observability {
	runCounter, _ := meter.Int64Counter(
		"runs.completed",
		otelmetric.WithDescription("Workflow and activity runs by outcome"),
	)

	runDuration, _ := meter.Float64Histogram(
		"runs.duration",
		otelmetric.WithDescription("Workflow and activity run duration"),
		otelmetric.WithUnit("ms"),
	)

	agentTurns, _ := meter.Int64Histogram(
		"agent.turns",
		otelmetric.WithDescription("Model turns used per agent run"),
	)

	return &Observability{
		meter:       meter,
		runCounter:  runCounter,
		runDuration: runDuration,
		agentTurns:  agentTurns,
	}
}

// RecordRun records one finished run. kind is "workflow" or "activity"; status is "completed" or "failed".
func (o *Observability) RecordRun(ctx context.Context, kind, name, status string, duration time.Duration) {
	if o == nil {
		return
	}
	attrs := otelmetric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("name", name),
		attribute.String("status", status),
	)
	if o.runCounter != nil {
		o.runCounter.Add(ctx, 1, attrs)
	}
	if o.runDuration != nil {
		o.runDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
	}
}

// RecordAgentTurns records how many model turns an agent needed.
func (o *Observability) RecordAgentTurns(ctx context.Context, agent string, turns int) {
	if o == nil || o.agentTurns == nil {
		return
	}
	o.agentTurns.Record(ctx, int64(turns), otelmetric.WithAttributes(attribute.String("agent", agent)))
}

func (o *Observability) Shutdown() {
	if o != nil && o.meterProvider != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = o.meterProvider.Shutdown(ctx)
	}
}
