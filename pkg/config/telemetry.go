package config

import (
	"context"
	"errors"
	"io"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/mpapenbr/openf1-insights/log"
	"github.com/mpapenbr/openf1-insights/version"
)

const serviceName = "openf1-insights"

type Telemetry struct {
	mp *sdkmetric.MeterProvider
	tp *sdktrace.TracerProvider
}

type TelemetryOption func(*telemetryConfig)

type telemetryConfig struct {
	endpoint       string
	stdout         io.Writer
	metricInterval time.Duration
}

// WithStdout exports traces and metrics to w instead of an OTLP endpoint
func WithStdout(w io.Writer) TelemetryOption {
	return func(c *telemetryConfig) {
		c.stdout = w
	}
}

func WithEndpoint(endpoint string) TelemetryOption {
	return func(c *telemetryConfig) {
		c.endpoint = endpoint
	}
}

func WithMetricInterval(d time.Duration) TelemetryOption {
	return func(c *telemetryConfig) {
		c.metricInterval = d
	}
}

func (t *Telemetry) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := t.mp.Shutdown(ctx); err != nil {
		log.Warn("error shutting down meter provider", log.ErrorField(err))
	}
	if err := t.tp.Shutdown(ctx); err != nil {
		log.Warn("error shutting down tracer provider", log.ErrorField(err))
	}
}

// SetupTelemetry registers global meter and tracer providers.
func SetupTelemetry(ctx context.Context, opts ...TelemetryOption) (*Telemetry, error) {
	cfg := &telemetryConfig{
		endpoint:       TelemetryEndpoint,
		metricInterval: 15 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes("",
			attribute.String("service.name", serviceName),
			attribute.String("service.version", version.Version),
		),
	)
	if err != nil {
		return nil, err
	}

	var metricExporter sdkmetric.Exporter
	var traceExporter sdktrace.SpanExporter
	if cfg.stdout != nil {
		if metricExporter, err = stdoutmetric.New(
			stdoutmetric.WithWriter(cfg.stdout)); err != nil {
			return nil, err
		}
		if traceExporter, err = stdouttrace.New(
			stdouttrace.WithWriter(cfg.stdout)); err != nil {
			return nil, err
		}
	} else {
		if cfg.endpoint == "" {
			return nil, errors.New("no telemetry endpoint configured")
		}
		if metricExporter, err = otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithEndpoint(cfg.endpoint),
			otlpmetricgrpc.WithInsecure()); err != nil {
			return nil, err
		}
		if traceExporter, err = otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(cfg.endpoint),
			otlptracegrpc.WithInsecure()); err != nil {
			return nil, err
		}
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter,
			sdkmetric.WithInterval(cfg.metricInterval))),
	)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(traceExporter),
	)
	otel.SetMeterProvider(mp)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))
	return &Telemetry{mp: mp, tp: tp}, nil
}
