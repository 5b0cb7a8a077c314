// Package appinsights sends telemetry to Azure Application Insights.
package appinsights

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/microsoft/ApplicationInsights-Go/appinsights"
	"github.com/microsoft/ApplicationInsights-Go/appinsights/contracts"

	"github.com/officedev/addin-telemetry/pkg/sink"
)

const defaultCloseTimeout = 10 * time.Second

// Context tags that identify the machine, the cloud role or the account.
const (
	tagCloudRoleInstance = "ai.cloud.roleInstance"
	tagDeviceID          = "ai.device.id"
	tagUserAccountID     = "ai.user.accountId"
	tagSessionID         = "ai.session.id"
)

var identifyingTags = []string{tagCloudRoleInstance, tagDeviceID, tagUserAccountID}

// Config configures the Application Insights sink.
type Config struct {
	// InstrumentationKey identifies the Application Insights resource.
	InstrumentationKey string
	// EndpointURL overrides the ingestion endpoint.
	EndpointURL string
	// HTTPClient overrides the client used for uploads.
	HTTPClient *http.Client
	// MaxBatchInterval overrides how long records are buffered.
	MaxBatchInterval time.Duration
	// Logger receives SDK diagnostics at debug level.
	Logger *slog.Logger
}

// Sink is a sink.Sink backed by an Application Insights telemetry client.
type Sink struct {
	client   appinsights.TelemetryClient
	listener appinsights.DiagnosticsMessageListener

	mu       sync.RWMutex
	sampling float64
}

var _ sink.Sink = (*Sink)(nil)

// New creates an Application Insights sink. Records are buffered and
// uploaded in the background by the SDK.
func New(cfg Config) (*Sink, error) {
	if cfg.InstrumentationKey == "" {
		return nil, errors.New("application insights: instrumentation key is required")
	}

	tc := appinsights.NewTelemetryConfiguration(cfg.InstrumentationKey)
	if cfg.EndpointURL != "" {
		tc.EndpointUrl = cfg.EndpointURL
	}
	if cfg.HTTPClient != nil {
		tc.Client = cfg.HTTPClient
	}
	if cfg.MaxBatchInterval > 0 {
		tc.MaxBatchInterval = cfg.MaxBatchInterval
	}

	s := &Sink{
		client:   appinsights.NewTelemetryClientFromConfig(tc),
		sampling: sink.SamplingOn,
	}
	// A random id per process groups records of one run without tying them
	// to a user or a machine.
	s.client.Context().Tags[tagSessionID] = uuid.NewString()

	if cfg.Logger != nil {
		logger := cfg.Logger
		s.listener = appinsights.NewDiagnosticsMessageListener(func(msg string) error {
			logger.Debug("Application Insights diagnostics", "message", msg)
			return nil
		})
	}

	return s, nil
}

// TelemetryClient exposes the underlying SDK client.
func (s *Sink) TelemetryClient() appinsights.TelemetryClient {
	return s.client
}

func (s *Sink) TrackEvent(_ context.Context, event sink.Event) error {
	if event.Name == "" {
		return errors.New("application insights: event name is required")
	}
	if !s.sampled() {
		return nil
	}

	tel := appinsights.NewEventTelemetry(event.Name)
	for k, v := range event.Properties {
		tel.Properties[k] = v
	}
	for k, v := range event.Measurements {
		tel.Measurements[k] = v
	}

	return s.track(tel)
}

func (s *Sink) TrackException(_ context.Context, exception sink.Exception) error {
	if !s.sampled() {
		return nil
	}

	tel := appinsights.NewExceptionTelemetry(exception.Message)
	tel.SeverityLevel = contracts.Error
	tel.Frames = make([]*contracts.StackFrame, 0, len(exception.Frames))
	for i, f := range exception.Frames {
		tel.Frames = append(tel.Frames, &contracts.StackFrame{
			Level:    i,
			Method:   f.Function,
			FileName: f.File,
			Line:     f.Line,
		})
	}
	if exception.Name != "" {
		tel.Properties["errorName"] = exception.Name
	}

	return s.track(tel)
}

func (s *Sink) track(tel appinsights.Telemetry) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("application insights: track panicked: %v", r)
		}
	}()
	s.client.Track(tel)
	return nil
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
	s.client.SetIsEnabled(percentage > sink.SamplingOff)
}

func (s *Sink) SamplingPercentage() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sampling
}

// PurgeIdentifyingContext blanks the role instance, device id and account id
// tags. Blank rather than delete so nothing downstream fills the tag in.
func (s *Sink) PurgeIdentifyingContext() {
	tags := s.client.Context().Tags
	for _, tag := range identifyingTags {
		tags[tag] = ""
	}
}

// Close flushes buffered records, retrying failed uploads until ctx is done
// or, without a deadline, for ten seconds.
func (s *Sink) Close(ctx context.Context) error {
	if s.listener != nil {
		defer s.listener.Remove()
	}

	timeout := defaultCloseTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}

	select {
	case <-s.client.Channel().Close(timeout):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
