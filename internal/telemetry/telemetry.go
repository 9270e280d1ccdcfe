// Package telemetry installs the OpenTelemetry tracer provider. Without an
// OTLP endpoint spans are still created but never exported.
package telemetry

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/mrlokans/biblioteca/internal/config"
)

// Providers holds what Setup registered globally.
type Providers struct {
	TracerProvider *sdktrace.TracerProvider
	exporting      bool
}

// Exporting reports whether spans leave the process.
func (p *Providers) Exporting() bool {
	return p.exporting
}

// Setup builds a tracer provider for cfg and registers it, together with
// the W3C trace-context propagator, as the global default.
func Setup(ctx context.Context, cfg config.Tracing, opts ...sdktrace.TracerProviderOption) (*Providers, error) {
	name := cfg.ServiceName
	if name == "" {
		name = "biblioteca"
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String(name)),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	tpOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	exporting := false
	if cfg.Endpoint != "" {
		exporter, err := otlptracehttp.New(ctx, exporterOptions(cfg.Endpoint)...)
		if err != nil {
			return nil, fmt.Errorf("create otlp exporter: %w", err)
		}
		tpOpts = append(tpOpts, sdktrace.WithBatcher(exporter))
		exporting = true
		log.Printf("[TRACE] Exporting spans to %s as %s", cfg.Endpoint, name)
	}
	tpOpts = append(tpOpts, opts...)

	tp := sdktrace.NewTracerProvider(tpOpts...)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))
	return &Providers{TracerProvider: tp, exporting: exporting}, nil
}

// exporterOptions accepts either a full URL or a bare host:port, which is
// dialed without TLS.
func exporterOptions(endpoint string) []otlptracehttp.Option {
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return []otlptracehttp.Option{otlptracehttp.WithEndpointURL(endpoint)}
	}
	return []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
	}
}

// Shutdown flushes pending spans.
func (p *Providers) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return p.TracerProvider.Shutdown(ctx)
}
