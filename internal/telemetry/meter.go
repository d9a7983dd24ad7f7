package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics holds the custom metrics instruments for the application.
type Metrics struct {
	RequestCounter      metric.Int64Counter
	RequestDuration     metric.Float64Histogram
	EventsPublished     metric.Int64Counter
	ReorderItemFailures metric.Int64Counter
	TasksGauge          metric.Int64ObservableGauge
	ClientsGauge        metric.Int64ObservableGauge
}

// Gauges supplies the values behind the observable instruments.
type Gauges struct {
	TaskCount   func(ctx context.Context) (int64, error)
	ClientCount func() int64
}

// InitMeterProvider initializes the OpenTelemetry meter provider.
// It configures an OTLP gRPC exporter and sets up the global meter provider.
func InitMeterProvider(ctx context.Context, serviceName, otlpEndpoint, environment string) (*sdkmetric.MeterProvider, error) {
	conn, err := newConn(otlpEndpoint)
	if err != nil {
		return nil, err
	}

	exporter, err := otlpmetricgrpc.New(ctx, otlpmetricgrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("failed to create metric exporter: %w", err)
	}

	res, err := newResource(serviceName, environment)
	if err != nil {
		return nil, err
	}

	// Create meter provider with periodic reader (10 second interval)
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter,
			sdkmetric.WithInterval(10*time.Second),
		)),
		sdkmetric.WithResource(res),
	)

	otel.SetMeterProvider(mp)

	return mp, nil
}

// NewMetrics creates and registers custom metrics instruments.
func NewMetrics(meter metric.Meter, gauges Gauges) (*Metrics, error) {
	m := &Metrics{}

	var err error

	m.RequestCounter, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request counter: %w", err)
	}

	m.RequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request duration histogram: %w", err)
	}

	m.EventsPublished, err = meter.Int64Counter(
		"task_events_published_total",
		metric.WithDescription("Task events handed to the realtime hub"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create events counter: %w", err)
	}

	m.ReorderItemFailures, err = meter.Int64Counter(
		"reorder_item_failures_total",
		metric.WithDescription("Reorder items that could not be applied"),
		metric.WithUnit("{item}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create reorder failures counter: %w", err)
	}

	if gauges.TaskCount != nil {
		m.TasksGauge, err = meter.Int64ObservableGauge(
			"tasks_total",
			metric.WithDescription("Current number of tasks in the system"),
			metric.WithUnit("{task}"),
			metric.WithInt64Callback(func(ctx context.Context, o metric.Int64Observer) error {
				n, err := gauges.TaskCount(ctx)
				if err != nil {
					return err
				}
				o.Observe(n)
				return nil
			}),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create tasks gauge: %w", err)
		}
	}

	if gauges.ClientCount != nil {
		m.ClientsGauge, err = meter.Int64ObservableGauge(
			"realtime_clients",
			metric.WithDescription("Connected realtime viewers"),
			metric.WithUnit("{client}"),
			metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
				o.Observe(gauges.ClientCount())
				return nil
			}),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create clients gauge: %w", err)
		}
	}

	return m, nil
}
