// Package obs carries the ambient observability stack shared by every
// component of the aggregation pipeline: OpenTelemetry traces/metrics,
// trace-enriched logging, and detail redaction for user-visible errors.
package obs

import (
	"context"

	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Init installs process-wide tracer/meter providers built from the given
// span processors and metric readers. Passing none is valid: the providers
// still record timings (usable by tests and the mock in-process pipeline)
// even with nothing wired up to export them.
func Init(spanProcessors []sdktrace.SpanProcessor, readers []sdkmetric.Reader) (shutdown func(context.Context) error) {
	tpOpts := make([]sdktrace.TracerProviderOption, 0, len(spanProcessors))
	for _, sp := range spanProcessors {
		tpOpts = append(tpOpts, sdktrace.WithSpanProcessor(sp))
	}
	tp := sdktrace.NewTracerProvider(tpOpts...)

	mpOpts := make([]sdkmetric.Option, 0, len(readers))
	for _, r := range readers {
		mpOpts = append(mpOpts, sdkmetric.WithReader(r))
	}
	mp := sdkmetric.NewMeterProvider(mpOpts...)

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)

	return func(ctx context.Context) error {
		var first error
		if err := mp.Shutdown(ctx); err != nil {
			first = err
		}
		if err := tp.Shutdown(ctx); err != nil && first == nil {
			first = err
		}
		return first
	}
}

// Tracer returns the tracer named "aggsearch/rp" from the process-wide
// provider that Init installs.
func Tracer() trace.Tracer {
	return otel.Tracer("aggsearch/rp")
}
