package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/proagenda/calendar-engine"

// Metrics holds all application metrics
type Metrics struct {
	MergeDuration        metric.Float64Histogram
	ProviderFetchCount   metric.Int64Counter
	ProviderFetchFailure metric.Int64Counter
	SlotComputeDuration  metric.Float64Histogram
	BookingCount         metric.Int64Counter
	GestureCommitCount   metric.Int64Counter
}

// Setup initializes OpenTelemetry trace and metric pipelines.
func Setup(ctx context.Context, serviceName, serviceVersion, endpoint string) (func(context.Context) error, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
	)
	if err != nil {
		return nil, err
	}

	traceExporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	metricExporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(endpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(meterProvider)

	if err := runtime.Start(runtime.WithMinimumReadMemStatsInterval(time.Second)); err != nil {
		return nil, err
	}

	shutdown := func(ctx context.Context) error {
		if err := tracerProvider.Shutdown(ctx); err != nil {
			return err
		}
		return meterProvider.Shutdown(ctx)
	}

	return shutdown, nil
}

// InitMetrics initializes application metrics
func InitMetrics() (*Metrics, error) {
	meter := otel.Meter(instrumentationName)

	mergeDuration, err := meter.Float64Histogram(
		"calendar.merge.duration",
		metric.WithDescription("Merge cycle duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	providerFetchCount, err := meter.Int64Counter(
		"calendar.provider.fetch.count",
		metric.WithDescription("Number of provider calendar fetches"),
	)
	if err != nil {
		return nil, err
	}

	providerFetchFailure, err := meter.Int64Counter(
		"calendar.provider.fetch.failures",
		metric.WithDescription("Number of provider calendar fetches degraded to empty"),
	)
	if err != nil {
		return nil, err
	}

	slotComputeDuration, err := meter.Float64Histogram(
		"calendar.slots.compute.duration",
		metric.WithDescription("Availability slot computation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	bookingCount, err := meter.Int64Counter(
		"calendar.booking.count",
		metric.WithDescription("Number of confirmed bookings"),
	)
	if err != nil {
		return nil, err
	}

	gestureCommitCount, err := meter.Int64Counter(
		"calendar.gesture.commit.count",
		metric.WithDescription("Number of committed move/resize gestures"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		MergeDuration:        mergeDuration,
		ProviderFetchCount:   providerFetchCount,
		ProviderFetchFailure: providerFetchFailure,
		SlotComputeDuration:  slotComputeDuration,
		BookingCount:         bookingCount,
		GestureCommitCount:   gestureCommitCount,
	}, nil
}

// StartSpan starts a new trace span
func StartSpan(ctx context.Context, spanName string) (context.Context, trace.Span) {
	tracer := otel.Tracer(instrumentationName)
	return tracer.Start(ctx, spanName)
}

// RecordError records an error in the current span
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
	}
}

// RecordFetch counts one provider calendar fetch, failed or not.
func RecordFetch(ctx context.Context, metrics *Metrics, source string, failed bool) {
	if metrics == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("calendar.source", source))
	metrics.ProviderFetchCount.Add(ctx, 1, attrs)
	if failed {
		metrics.ProviderFetchFailure.Add(ctx, 1, attrs)
	}
}
