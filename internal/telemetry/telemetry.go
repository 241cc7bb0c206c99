// Package telemetry configures OpenTelemetry tracing and metrics for sweep runs.
//
// Telemetry is disabled by default. Disabled providers are no-ops; enabled
// providers export spans and metrics as JSON to the configured writer.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const (
	// InstrumentationScope names the tracer and meter used by prsweep.
	InstrumentationScope = "github.com/temirov/prsweep"

	defaultServiceNameConstant      = "prsweep"
	serviceNameAttributeConstant    = "service.name"
	serviceVersionAttributeConstant = "service.version"
	traceExporterErrorTemplate      = "telemetry: trace exporter: %w"
	metricExporterErrorTemplate     = "telemetry: metric exporter: %w"
)

// Configuration controls provider construction.
type Configuration struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	Writer         io.Writer
}

// Providers owns the tracer and meter providers of a run.
type Providers struct {
	tracerProvider    trace.TracerProvider
	meterProvider     metric.MeterProvider
	shutdownFunctions []func(context.Context) error
}

// NewProviders builds no-op providers when telemetry is disabled and stdout exporters otherwise.
func NewProviders(configuration Configuration) (*Providers, error) {
	if !configuration.Enabled {
		return &Providers{
			tracerProvider: tracenoop.NewTracerProvider(),
			meterProvider:  metricnoop.NewMeterProvider(),
		}, nil
	}

	writer := configuration.Writer
	if writer == nil {
		writer = os.Stderr
	}

	serviceName := strings.TrimSpace(configuration.ServiceName)
	if len(serviceName) == 0 {
		serviceName = defaultServiceNameConstant
	}
	attributes := []attribute.KeyValue{attribute.String(serviceNameAttributeConstant, serviceName)}
	if serviceVersion := strings.TrimSpace(configuration.ServiceVersion); len(serviceVersion) > 0 {
		attributes = append(attributes, attribute.String(serviceVersionAttributeConstant, serviceVersion))
	}
	serviceResource := resource.NewSchemaless(attributes...)

	spanExporter, spanExporterError := stdouttrace.New(stdouttrace.WithWriter(writer))
	if spanExporterError != nil {
		return nil, fmt.Errorf(traceExporterErrorTemplate, spanExporterError)
	}
	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithResource(serviceResource),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithBatcher(spanExporter),
	)

	metricExporter, metricExporterError := stdoutmetric.New(stdoutmetric.WithWriter(writer))
	if metricExporterError != nil {
		return nil, fmt.Errorf(metricExporterErrorTemplate, metricExporterError)
	}
	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(serviceResource),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)),
	)

	return &Providers{
		tracerProvider:    tracerProvider,
		meterProvider:     meterProvider,
		shutdownFunctions: []func(context.Context) error{tracerProvider.Shutdown, meterProvider.Shutdown},
	}, nil
}

// Tracer returns the prsweep tracer.
func (providers *Providers) Tracer() trace.Tracer {
	return providers.tracerProvider.Tracer(InstrumentationScope)
}

// Meter returns the prsweep meter.
func (providers *Providers) Meter() metric.Meter {
	return providers.meterProvider.Meter(InstrumentationScope)
}

// Shutdown flushes pending spans and metrics.
func (providers *Providers) Shutdown(shutdownContext context.Context) error {
	var shutdownErrors []error
	for _, shutdownFunction := range providers.shutdownFunctions {
		if shutdownError := shutdownFunction(shutdownContext); shutdownError != nil {
			shutdownErrors = append(shutdownErrors, shutdownError)
		}
	}
	providers.shutdownFunctions = nil
	return errors.Join(shutdownErrors...)
}
