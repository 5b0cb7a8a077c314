package telemetry

import (
	"errors"
	"fmt"
	"time"
)

// TelemetryType selects the backend records are sent to.
type TelemetryType string

const (
	// TypeApplicationInsights sends records to Azure Application Insights.
	TypeApplicationInsights TelemetryType = "applicationInsights"
	// TypeOpenTelemetry sends records as OTLP/HTTP spans.
	TypeOpenTelemetry TelemetryType = "otel"
)

var (
	// ErrMissingInstrumentationKey is returned by New when Options has no
	// instrumentation key.
	ErrMissingInstrumentationKey = errors.New("instrumentation key not defined - cannot create telemetry client")
	// ErrUnknownTelemetryType is returned by New for an unsupported backend.
	ErrUnknownTelemetryType = errors.New("unknown telemetry type")
)

// Options describes one tool's telemetry session.
type Options struct {
	// GroupName is the key under which the opt-in answer is stored.
	GroupName string
	// ProjectName is used in the default prompt question.
	ProjectName string
	// InstrumentationKey identifies the telemetry resource. Required.
	InstrumentationKey string
	// PromptQuestion is shown to the user. Defaults to DefaultPromptQuestion.
	PromptQuestion string
	// RaisePrompt asks the user on first use. Tools with their own prompt
	// leave it off and pass the answer as TelemetryEnabled.
	RaisePrompt bool
	// TelemetryEnabled is stored for a new group when no prompt is raised.
	// After New it holds the resolved opt-in value.
	TelemetryEnabled bool
	// TelemetryJSONFilePath overrides the shared opt-in file location.
	TelemetryJSONFilePath string
	// TelemetryType selects the backend. Defaults to TypeApplicationInsights.
	TelemetryType TelemetryType
	// EndpointURL overrides the backend ingestion endpoint.
	EndpointURL string
	// TestData disables prompting and transmission; records are only counted.
	TestData bool
	// GateErrors applies the opt-in value to error reports as well as events.
	GateErrors bool
}

// DefaultPromptQuestion returns the question asked when Options has none.
func DefaultPromptQuestion(projectName string) string {
	return fmt.Sprintf("Help improve %s by allowing the collection of usage data. Would you like to participate? Y/N", projectName)
}

// EventValue is one entry of EventData.
type EventValue struct {
	Value       any
	ElapsedTime time.Duration
}

// EventData holds the values reported with one event, keyed by property name.
type EventData map[string]EventValue

// AddTelemetry sets key in data and returns it. A nil data is allocated.
func AddTelemetry(data EventData, key string, value any, elapsed time.Duration) EventData {
	if data == nil {
		data = make(EventData)
	}
	data[key] = EventValue{Value: value, ElapsedTime: elapsed}
	return data
}

// DeleteTelemetry removes key from data and returns it.
func DeleteTelemetry(data EventData, key string) EventData {
	delete(data, key)
	return data
}

// SendError reports that one entry of an event could not be sent.
type SendError struct {
	Event string
	Key   string
	Err   error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("failed to send telemetry event %q (%s): %v", e.Event, e.Key, e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}
