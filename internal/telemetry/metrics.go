// Package telemetry wires OpenTelemetry metrics and tracing the way the
// rest of the fabric does, adapted from packages/go-core/telemetry/metrics.go.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
)

// InitMeterProvider bootstraps the OpenTelemetry MeterProvider with an
// OTLP/gRPC metric exporter targeting the given endpoint. The caller must
// defer mp.Shutdown(ctx) to flush pending metrics.
func InitMeterProvider(ctx context.Context, serviceName string, endpoint string) (*sdkmetric.MeterProvider, error) {
	exporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(endpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
		sdkmetric.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
		)),
	)

	otel.SetMeterProvider(mp)
	return mp, nil
}

// RelayMetrics holds the fabric-specific instruments: outbox dispatch
// outcomes, relay republish outcomes, and stream drift detections. Grouped
// into one struct for construction; cmd/relay/main.go passes each counter
// individually to the component that records it.
type RelayMetrics struct {
	OutboxDispatched metric.Int64Counter
	OutboxFailed     metric.Int64Counter
	RelayRepublished metric.Int64Counter
	RelayNaked       metric.Int64Counter
	BootstrapDrift   metric.Int64Counter
}

// NewRelayMetrics registers the fabric's instruments against the global
// meter provider. Call after InitMeterProvider.
func NewRelayMetrics() (RelayMetrics, error) {
	meter := otel.Meter("sync-relay")

	dispatched, err := meter.Int64Counter("outbox_events_dispatched_total",
		metric.WithDescription("outbox rows successfully published to the broker"))
	if err != nil {
		return RelayMetrics{}, err
	}
	failed, err := meter.Int64Counter("outbox_events_failed_total",
		metric.WithDescription("outbox rows marked FAILED after exhausting retries"))
	if err != nil {
		return RelayMetrics{}, err
	}
	republished, err := meter.Int64Counter("relay_messages_republished_total",
		metric.WithDescription("messages rewritten and republished by the relay engine"))
	if err != nil {
		return RelayMetrics{}, err
	}
	naked, err := meter.Int64Counter("relay_messages_naked_total",
		metric.WithDescription("relay messages Nak'd for redelivery after a republish failure"))
	if err != nil {
		return RelayMetrics{}, err
	}
	drift, err := meter.Int64Counter("bootstrap_stream_drift_total",
		metric.WithDescription("stream config mismatches detected by the periodic drift checker"))
	if err != nil {
		return RelayMetrics{}, err
	}

	return RelayMetrics{
		OutboxDispatched: dispatched,
		OutboxFailed:     failed,
		RelayRepublished: republished,
		RelayNaked:       naked,
		BootstrapDrift:   drift,
	}, nil
}
