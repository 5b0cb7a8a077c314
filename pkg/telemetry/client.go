// Package telemetry reports usage events and errors for tools whose users
// opted in to data collection.
//
// A Client resolves the opt-in answer for its group once, at construction,
// and gates every event on it. Error reports are masked of file system paths
// before they leave the process.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"os"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/officedev/addin-telemetry/pkg/optin"
	"github.com/officedev/addin-telemetry/pkg/paths"
	"github.com/officedev/addin-telemetry/pkg/prompt"
	"github.com/officedev/addin-telemetry/pkg/sink"
	"github.com/officedev/addin-telemetry/pkg/sink/appinsights"
	"github.com/officedev/addin-telemetry/pkg/sink/otelsink"
	"github.com/officedev/addin-telemetry/pkg/version"
)

// telemetryLogger wraps slog.Logger to automatically prepend "[Telemetry]" to all messages
type telemetryLogger struct {
	logger *slog.Logger
}

func newTelemetryLogger(logger *slog.Logger) *telemetryLogger {
	return &telemetryLogger{logger: logger}
}

func (tl *telemetryLogger) Debug(msg string, args ...any) {
	tl.logger.Debug("[Telemetry] "+msg, args...)
}

func (tl *telemetryLogger) Info(msg string, args ...any) {
	tl.logger.Info("[Telemetry] "+msg, args...)
}

func (tl *telemetryLogger) Warn(msg string, args ...any) {
	tl.logger.Warn("[Telemetry] "+msg, args...)
}

func (tl *telemetryLogger) Error(msg string, args ...any) {
	tl.logger.Error("[Telemetry] "+msg, args...)
}

// Option customizes New.
type Option func(*clientConfig)

type clientConfig struct {
	logger     *slog.Logger
	sink       sink.Sink
	prompter   prompt.Prompter
	httpClient *http.Client
}

// WithSink sends records to s instead of the backend named by
// Options.TelemetryType.
func WithSink(s sink.Sink) Option {
	return func(c *clientConfig) {
		c.sink = s
	}
}

// WithPrompter replaces the terminal prompt.
func WithPrompter(p prompt.Prompter) Option {
	return func(c *clientConfig) {
		c.prompter = p
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *clientConfig) {
		c.logger = logger
	}
}

// WithHTTPClient sets the HTTP client used by the default backend.
func WithHTTPClient(client *http.Client) Option {
	return func(c *clientConfig) {
		c.httpClient = client
	}
}

// Client reports events and errors for one group.
type Client struct {
	logger   *telemetryLogger
	sink     sink.Sink
	prompter prompt.Prompter

	mu        sync.RWMutex
	opts      Options
	optIn     optin.Result
	optInErr  error
	closeOnce sync.Once

	eventsSent     atomic.Int64
	exceptionsSent atomic.Int64
}

// New creates a Client, resolving the opt-in answer for opts.GroupName.
//
// When the answer cannot be resolved, because the opt-in file is malformed
// or the prompt failed, New still returns a Client with telemetry off; the
// cause is logged and available from OptInErr.
func New(ctx context.Context, opts Options, options ...Option) (*Client, error) {
	cfg := clientConfig{logger: slog.Default()}
	for _, o := range options {
		o(&cfg)
	}
	logger := newTelemetryLogger(cfg.logger)

	if opts.InstrumentationKey == "" {
		logger.Error("Failed to create telemetry client", "error", ErrMissingInstrumentationKey)
		return nil, ErrMissingInstrumentationKey
	}
	if opts.PromptQuestion == "" {
		opts.PromptQuestion = DefaultPromptQuestion(opts.ProjectName)
	}
	if opts.TelemetryJSONFilePath == "" {
		opts.TelemetryJSONFilePath = paths.DefaultTelemetryJSONFile()
	}
	if opts.TelemetryType == "" {
		opts.TelemetryType = TypeApplicationInsights
	}

	s := cfg.sink
	if s == nil {
		var err error
		s, err = newSink(ctx, opts, cfg)
		if err != nil {
			logger.Error("Failed to create telemetry client", "error", err)
			return nil, err
		}
	}
	s.PurgeIdentifyingContext()

	p := cfg.prompter
	if p == nil {
		p = prompt.NewTerminal(os.Stdin, os.Stderr)
	}

	c := &Client{
		logger:   logger,
		sink:     s,
		prompter: p,
		opts:     opts,
	}
	c.resolve(ctx)

	logger.Debug("Client created",
		"group", opts.GroupName,
		"type", opts.TelemetryType,
		"opted_in", c.OptedIn(),
		"test_data", opts.TestData)

	return c, nil
}

func newSink(ctx context.Context, opts Options, cfg clientConfig) (sink.Sink, error) {
	switch opts.TelemetryType {
	case TypeApplicationInsights:
		return appinsights.New(appinsights.Config{
			InstrumentationKey: opts.InstrumentationKey,
			EndpointURL:        opts.EndpointURL,
			HTTPClient:         cfg.httpClient,
			Logger:             cfg.logger,
		})
	case TypeOpenTelemetry:
		return otelsink.New(ctx, otelsink.Config{
			InstrumentationKey: opts.InstrumentationKey,
			EndpointURL:        opts.EndpointURL,
			HTTPClient:         cfg.httpClient,
			ServiceName:        opts.ProjectName,
			ServiceVersion:     version.Version,
		})
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTelemetryType, opts.TelemetryType)
	}
}

func (c *Client) request() optin.Request {
	return optin.Request{
		GroupName:   c.opts.GroupName,
		Path:        c.opts.TelemetryJSONFilePath,
		Question:    c.opts.PromptQuestion,
		RaisePrompt: c.opts.RaisePrompt,
		TestData:    c.opts.TestData,
		Default:     c.opts.TelemetryEnabled,
	}
}

func (c *Client) resolve(ctx context.Context) {
	c.mu.RLock()
	req := c.request()
	c.mu.RUnlock()

	res, err := optin.Resolve(ctx, req, c.prompter)
	c.setOptIn(ctx, res, err)
}

// OptIn asks the user again and records the answer for the group, replacing
// any stored value.
func (c *Client) OptIn(ctx context.Context) error {
	c.mu.RLock()
	req := c.request()
	c.mu.RUnlock()

	res, err := optin.Ask(ctx, req, c.prompter)
	c.setOptIn(ctx, res, err)
	return err
}

func (c *Client) setOptIn(ctx context.Context, res optin.Result, err error) {
	if err != nil {
		c.logger.Warn("Failed to resolve telemetry opt-in, telemetry is off", "group", c.opts.GroupName, "error", err)
		res.Enabled = false
	}

	c.mu.Lock()
	c.optIn = res
	c.optInErr = err
	c.opts.TelemetryEnabled = res.Enabled
	c.mu.Unlock()

	if _, ok := errors.AsType[*optin.PromptError](err); ok {
		_ = c.ReportError(ctx, "TelemetryOptIn", err)
	}
}

// ReportEvent sends one event per entry of data when the user opted in.
//
// A failed entry does not stop the others: it is reported through
// ReportError and returned, joined with any other failure, as a *SendError.
func (c *Client) ReportEvent(ctx context.Context, eventName string, data EventData) error {
	if !c.OptedIn() {
		return nil
	}

	var errs []error
	for _, key := range slices.Sorted(maps.Keys(data)) {
		item := data[key]

		if c.opts.TestData {
			c.eventsSent.Add(1)
			continue
		}

		event := sink.Event{
			Name:         eventName,
			Properties:   map[string]string{key: fmt.Sprint(item.Value)},
			Measurements: map[string]float64{sink.DurationElapsedMeasurement: float64(item.ElapsedTime.Milliseconds())},
		}
		if err := c.sink.TrackEvent(ctx, event); err != nil {
			sendErr := &SendError{Event: eventName, Key: key, Err: err}
			c.logger.Debug("Failed to send event", "event", eventName, "key", key, "error", err)
			_ = c.ReportError(ctx, "sendTelemetryEvents", sendErr)
			errs = append(errs, sendErr)
			continue
		}
		c.eventsSent.Add(1)
	}

	return errors.Join(errs...)
}

// ReportError sends err under errorName after masking file system paths from
// its message and from the captured call stack.
//
// Error reports are sent whether or not the user opted in, unless
// Options.GateErrors is set.
func (c *Client) ReportError(ctx context.Context, errorName string, err error) error {
	if err == nil {
		return nil
	}
	if c.opts.GateErrors && !c.OptedIn() {
		return nil
	}

	exception := MaskFilePaths(sink.Exception{
		Name:    errorName,
		Message: err.Error(),
		Frames:  callers(1),
	})

	if c.opts.TestData {
		c.exceptionsSent.Add(1)
		return nil
	}

	if sendErr := c.sink.TrackException(ctx, exception); sendErr != nil {
		c.logger.Debug("Failed to send exception", "name", errorName, "error", sendErr)
		return fmt.Errorf("failed to send telemetry exception %q: %w", errorName, sendErr)
	}
	c.exceptionsSent.Add(1)
	return nil
}

// SetTelemetryOff stops the backend from transmitting anything.
func (c *Client) SetTelemetryOff() {
	c.sink.SetSamplingPercentage(sink.SamplingOff)
}

// SetTelemetryOn lets the backend transmit everything. This is the default.
func (c *Client) SetTelemetryOn() {
	c.sink.SetSamplingPercentage(sink.SamplingOn)
}

// IsTelemetryOn reports whether the backend transmits everything. It is
// independent of the user's opt-in answer.
func (c *Client) IsTelemetryOn() bool {
	return c.sink.SamplingPercentage() == sink.SamplingOn
}

// OptedIn returns the resolved opt-in value.
func (c *Client) OptedIn() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.opts.TelemetryEnabled
}

// OptInResult returns the outcome of the last opt-in resolution.
func (c *Client) OptInResult() optin.Result {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.optIn
}

// OptInErr returns why the last opt-in resolution failed, if it did.
func (c *Client) OptInErr() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.optInErr
}

// Options returns the session options with defaults applied.
func (c *Client) Options() Options {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.opts
}

// InstrumentationKey returns the key of the telemetry resource.
func (c *Client) InstrumentationKey() string {
	return c.opts.InstrumentationKey
}

// EventsSent returns the number of event entries sent, or counted in test
// mode.
func (c *Client) EventsSent() int64 {
	return c.eventsSent.Load()
}

// ExceptionsSent returns the number of error reports sent, or counted in
// test mode.
func (c *Client) ExceptionsSent() int64 {
	return c.exceptionsSent.Load()
}

// Close flushes the backend. Later calls are no-ops.
func (c *Client) Close(ctx context.Context) error {
	var err error
	c.closeOnce.Do(func() {
		err = c.sink.Close(ctx)
		if err != nil {
			c.logger.Warn("Failed to flush telemetry", "error", err)
		}
	})
	return err
}
