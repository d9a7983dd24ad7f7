package telemetry

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// Options selects how telemetry is exported.
type Options struct {
	Enabled      bool
	ServiceName  string
	OTLPEndpoint string
	Environment  string
	Level        slog.Leveler
}

// Providers flushes every initialized SDK provider on shutdown.
type Providers struct {
	shutdowns []func(context.Context) error
}

func (p *Providers) Shutdown(ctx context.Context) error {
	var errs []error
	// Reverse order so log records emitted during shutdown still export.
	for i := len(p.shutdowns) - 1; i >= 0; i-- {
		errs = append(errs, p.shutdowns[i](ctx))
	}
	return errors.Join(errs...)
}

// Setup initializes tracing, metrics and logging. When telemetry is disabled
// the global providers are no-ops and logs go to stdout as JSON.
func Setup(ctx context.Context, opts Options) (*Providers, *slog.Logger, error) {
	p := &Providers{}

	if !opts.Enabled {
		otel.SetTracerProvider(tracenoop.NewTracerProvider())
		otel.SetMeterProvider(metricnoop.NewMeterProvider())
		logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: opts.Level}))
		return p, logger, nil
	}

	tp, err := InitTracerProvider(ctx, opts.ServiceName, opts.OTLPEndpoint, opts.Environment)
	if err != nil {
		return nil, nil, err
	}
	p.shutdowns = append(p.shutdowns, tp.Shutdown)

	mp, err := InitMeterProvider(ctx, opts.ServiceName, opts.OTLPEndpoint, opts.Environment)
	if err != nil {
		_ = p.Shutdown(ctx)
		return nil, nil, err
	}
	p.shutdowns = append(p.shutdowns, mp.Shutdown)

	// Logger last so records correlate with the tracer above.
	lp, logger, err := InitLoggerProvider(ctx, opts.ServiceName, opts.OTLPEndpoint, opts.Environment, opts.Level)
	if err != nil {
		_ = p.Shutdown(ctx)
		return nil, nil, err
	}
	p.shutdowns = append(p.shutdowns, lp.Shutdown)

	return p, logger, nil
}
