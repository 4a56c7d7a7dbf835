package monitoring

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.uber.org/zap"
)

type TelemetryConfig struct {
	// OTLP/HTTP collector for traces. E.g., "otel-collector:4318"
	TraceEndpoint string

	// OTLP/gRPC collector for metrics. E.g., "otel-collector:4317"
	MetricEndpoint string

	ServiceName    string
	ServiceVersion string
	Environment    string

	// Fraction of traces kept, in (0, 1].
	SampleRatio float64

	Insecure bool
}

// Telemetry owns the global OpenTelemetry providers installed by
// SetupTelemetry.
type Telemetry struct {
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	logger         *zap.SugaredLogger
}

// SetupTelemetry installs OTLP exporters as the global providers. Exporters
// whose endpoint is empty are skipped, leaving the no-op global in place.
func SetupTelemetry(
	ctx context.Context, config TelemetryConfig, logger *zap.SugaredLogger,
) (*Telemetry, error) {
	telemetry := &Telemetry{logger: logger}
	if config.TraceEndpoint == "" && config.MetricEndpoint == "" {
		return telemetry, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(config.ServiceName),
			semconv.ServiceVersion(config.ServiceVersion),
			semconv.DeploymentEnvironment(config.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %v", err)
	}

	if config.TraceEndpoint != "" {
		options := []otlptracehttp.Option{otlptracehttp.WithEndpoint(config.TraceEndpoint)}
		if config.Insecure {
			options = append(options, otlptracehttp.WithInsecure())
		}
		exporter, err := otlptracehttp.New(ctx, options...)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP trace exporter: %v", err)
		}

		ratio := config.SampleRatio
		if ratio <= 0 || ratio > 1 {
			ratio = 1
		}
		telemetry.tracerProvider = sdktrace.NewTracerProvider(
			sdktrace.WithResource(res),
			sdktrace.WithBatcher(exporter),
			sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
		)
		otel.SetTracerProvider(telemetry.tracerProvider)
		logger.Infow("Tracing enabled", "endpoint", config.TraceEndpoint, "sample_ratio", ratio)
	}

	if config.MetricEndpoint != "" {
		options := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(config.MetricEndpoint)}
		if config.Insecure {
			options = append(options, otlpmetricgrpc.WithInsecure())
		}
		exporter, err := otlpmetricgrpc.New(ctx, options...)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP metrics exporter: %v", err)
		}

		telemetry.meterProvider = sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
		)
		otel.SetMeterProvider(telemetry.meterProvider)
		logger.Infow("OTLP metrics enabled", "endpoint", config.MetricEndpoint)
	}

	return telemetry, nil
}

// Shutdown flushes pending spans and metrics.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	if t.tracerProvider != nil {
		if err := t.tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shutdown tracer provider: %v", err))
		}
	}
	if t.meterProvider != nil {
		if err := t.meterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shutdown meter provider: %v", err))
		}
	}
	return errors.Join(errs...)
}
