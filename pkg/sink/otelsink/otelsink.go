// Package otelsink sends telemetry as OpenTelemetry spans over OTLP/HTTP.
//
// Every event becomes a zero-length span carrying its properties and
// measurements as attributes; every exception becomes a span with a recorded
// error.
package otelsink

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/officedev/addin-telemetry/pkg/sink"
)

const (
	instrumentationName = "github.com/officedev/addin-telemetry/pkg/sink/otelsink"
	apiKeyHeader        = "x-api-key"
)

// identifyingKeys are attribute keys dropped by PurgeIdentifyingContext.
var identifyingKeys = []attribute.Key{
	"host.name",
	"host.id",
	"cloud.account.id",
	"cloud.resource_id",
	"enduser.id",
}

// Config configures the OpenTelemetry sink.
type Config struct {
	// InstrumentationKey is sent in the x-api-key header of every export.
	InstrumentationKey string
	// EndpointURL is the OTLP/HTTP traces URL. When empty the exporter falls
	// back to the OTEL_EXPORTER_OTLP_* environment variables.
	EndpointURL string
	// HTTPClient overrides the client used for exports.
	HTTPClient *http.Client
	// ServiceName and ServiceVersion describe the reporting tool.
	ServiceName    string
	ServiceVersion string
	// Attributes are added to every span until purged.
	Attributes []attribute.KeyValue
	// SpanProcessor replaces the OTLP exporter, mainly for tests.
	SpanProcessor sdktrace.SpanProcessor
}

// Sink is a sink.Sink backed by an OpenTelemetry tracer provider it owns.
type Sink struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer

	mu         sync.RWMutex
	sampling   float64
	attributes []attribute.KeyValue
}

var _ sink.Sink = (*Sink)(nil)

// New creates an OpenTelemetry sink with its own tracer provider. The global
// provider is left alone.
func New(ctx context.Context, cfg Config) (*Sink, error) {
	res, err := resource.New(ctx,
		resource.WithSchemaURL(semconv.SchemaURL),
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			attribute.String("service.instance.id", uuid.NewString()),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	opts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}

	if cfg.SpanProcessor != nil {
		opts = append(opts, sdktrace.WithSpanProcessor(cfg.SpanProcessor))
	} else {
		var exporterOpts []otlptracehttp.Option
		if cfg.EndpointURL != "" {
			exporterOpts = append(exporterOpts, otlptracehttp.WithEndpointURL(cfg.EndpointURL))
		}
		if cfg.InstrumentationKey != "" {
			exporterOpts = append(exporterOpts, otlptracehttp.WithHeaders(map[string]string{
				apiKeyHeader: cfg.InstrumentationKey,
			}))
		}
		if cfg.HTTPClient != nil {
			exporterOpts = append(exporterOpts, otlptracehttp.WithHTTPClient(cfg.HTTPClient))
		}

		exporter, err := otlptracehttp.New(ctx, exporterOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create trace exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exporter,
			sdktrace.WithBatchTimeout(5*time.Second),
			sdktrace.WithMaxExportBatchSize(512),
		))
	}

	provider := sdktrace.NewTracerProvider(opts...)

	return &Sink{
		provider:   provider,
		tracer:     provider.Tracer(instrumentationName),
		sampling:   sink.SamplingOn,
		attributes: slices.Clone(cfg.Attributes),
	}, nil
}

func (s *Sink) TrackEvent(ctx context.Context, event sink.Event) error {
	if event.Name == "" {
		return errors.New("otel: event name is required")
	}
	if !s.sampled() {
		return nil
	}

	attrs := s.commonAttributes()
	for k, v := range event.Properties {
		attrs = append(attrs, attribute.String(k, v))
	}
	for k, v := range event.Measurements {
		attrs = append(attrs, attribute.Float64(k, v))
	}

	_, span := s.tracer.Start(ctx, event.Name, trace.WithAttributes(attrs...))
	span.End()
	return nil
}

func (s *Sink) TrackException(ctx context.Context, exception sink.Exception) error {
	if !s.sampled() {
		return nil
	}

	name := exception.Name
	if name == "" {
		name = "exception"
	}

	_, span := s.tracer.Start(ctx, name, trace.WithAttributes(s.commonAttributes()...))
	span.RecordError(errors.New(exception.Message), trace.WithAttributes(
		attribute.String("exception.stacktrace", exception.Stack()),
	))
	span.SetStatus(codes.Error, exception.Message)
	span.End()
	return nil
}

func (s *Sink) commonAttributes() []attribute.KeyValue {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.attributes)
}

func (s *Sink) sampled() bool {
	p := s.SamplingPercentage()
	switch {
	case p >= sink.SamplingOn:
		return true
	case p <= sink.SamplingOff:
		return false
	default:
		return rand.Float64()*100 < p
	}
}

func (s *Sink) SetSamplingPercentage(percentage float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sampling = percentage
}

func (s *Sink) SamplingPercentage() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sampling
}

func (s *Sink) PurgeIdentifyingContext() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.attributes = slices.DeleteFunc(s.attributes, func(kv attribute.KeyValue) bool {
		return slices.Contains(identifyingKeys, kv.Key)
	})
}

// Close exports pending spans and shuts the tracer provider down.
func (s *Sink) Close(ctx context.Context) error {
	return errors.Join(s.provider.ForceFlush(ctx), s.provider.Shutdown(ctx))
}
