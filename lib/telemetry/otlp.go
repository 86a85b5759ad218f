package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Exporter is one OTLP destination. The scheme of Endpoint picks the transport: grpc:// for
// gRPC, http:// or https:// for HTTP. An empty Endpoint disables the signal.
type Exporter struct {
	Endpoint string            `json:"endpoint"`
	Headers  map[string]string `json:"headers"`
}

// Config is the shape of telemetry.json5.
type Config struct {
	Traces  Exporter `json:"traces"`
	Metrics Exporter `json:"metrics"`
	// SampleRatio is the share of harvests traced, zero traces all of them.
	SampleRatio float64 `json:"sample_ratio"`
	// MetricIntervalSeconds is how often metrics are pushed, defaults to 5.
	MetricIntervalSeconds int `json:"metric_interval_seconds"`
}

type transport int

const (
	transportGrpc transport = iota
	transportHttp
)

// parseEndpoint splits an exporter endpoint into its transport and the url the exporter is
// given, grpc endpoints are handed over as plain http.
func parseEndpoint(endpoint string) (transport, string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return 0, "", fmt.Errorf("parse otlp endpoint: %w", err)
	}
	switch u.Scheme {
	case "grpc":
		u.Scheme = "http"
		return transportGrpc, u.String(), nil
	case "grpcs":
		u.Scheme = "https"
		return transportGrpc, u.String(), nil
	case "http", "https":
		return transportHttp, u.String(), nil
	default:
		return 0, "", fmt.Errorf("otlp endpoint %q: unknown scheme %q", endpoint, u.Scheme)
	}
}

func newResource(serviceName string) (*resource.Resource, error) {
	return resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
		),
	)
}

func newSpanExporter(ctx context.Context, e Exporter) (trace.SpanExporter, error) {
	kind, endpoint, err := parseEndpoint(e.Endpoint)
	if err != nil {
		return nil, err
	}
	slog.Info("exporting traces", "endpoint", endpoint, "grpc", kind == transportGrpc)
	if kind == transportGrpc {
		return otlptracegrpc.New(
			ctx,
			otlptracegrpc.WithEndpointURL(endpoint),
			otlptracegrpc.WithHeaders(e.Headers),
		)
	}
	return otlptracehttp.New(
		ctx,
		otlptracehttp.WithEndpointURL(endpoint),
		otlptracehttp.WithHeaders(e.Headers),
	)
}

func newMetricExporter(ctx context.Context, e Exporter) (metric.Exporter, error) {
	kind, endpoint, err := parseEndpoint(e.Endpoint)
	if err != nil {
		return nil, err
	}
	slog.Info("exporting metrics", "endpoint", endpoint, "grpc", kind == transportGrpc)
	if kind == transportGrpc {
		return otlpmetricgrpc.New(
			ctx,
			otlpmetricgrpc.WithEndpointURL(endpoint),
			otlpmetricgrpc.WithHeaders(e.Headers),
		)
	}
	return otlpmetrichttp.New(
		ctx,
		otlpmetrichttp.WithEndpointURL(endpoint),
		otlpmetrichttp.WithHeaders(e.Headers),
	)
}

func newTracerProvider(ctx context.Context, r *resource.Resource, config Config) (*trace.TracerProvider, error) {
	if config.Traces.Endpoint == "" {
		return nil, nil
	}
	exporter, err := newSpanExporter(ctx, config.Traces)
	if err != nil {
		return nil, err
	}
	sampler := trace.AlwaysSample()
	if config.SampleRatio > 0 && config.SampleRatio < 1 {
		sampler = trace.TraceIDRatioBased(config.SampleRatio)
	}
	return trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(r),
		trace.WithSampler(trace.ParentBased(sampler)),
	), nil
}

func newMeterProvider(ctx context.Context, r *resource.Resource, config Config) (*metric.MeterProvider, error) {
	if config.Metrics.Endpoint == "" {
		return nil, nil
	}
	exporter, err := newMetricExporter(ctx, config.Metrics)
	if err != nil {
		return nil, err
	}
	interval := 5 * time.Second
	if config.MetricIntervalSeconds > 0 {
		interval = time.Duration(config.MetricIntervalSeconds) * time.Second
	}
	return metric.NewMeterProvider(
		metric.WithReader(metric.NewPeriodicReader(exporter, metric.WithInterval(interval))),
		metric.WithResource(r),
	), nil
}
