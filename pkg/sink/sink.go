// Package sink defines the contract between the telemetry client and the
// analytics backends that transmit its records.
package sink

import (
	"context"
	"fmt"
	"strings"
)

// DurationElapsedMeasurement is the measurement name carrying an event's
// elapsed time in milliseconds.
const DurationElapsedMeasurement = "DurationElapsed"

// SamplingOn and SamplingOff are the two sampling percentages the client uses.
const (
	SamplingOn  = 100.0
	SamplingOff = 0.0
)

// Event is a single custom event.
type Event struct {
	Name         string
	Properties   map[string]string
	Measurements map[string]float64
}

// Frame is one entry of a captured call stack.
type Frame struct {
	Function string
	File     string
	Line     int
}

func (f Frame) String() string {
	return fmt.Sprintf("%s\n\t%s:%d", f.Function, f.File, f.Line)
}

// Exception is an error report. Message and frames are expected to be
// sanitized before reaching a sink.
type Exception struct {
	Name    string
	Message string
	Frames  []Frame
}

// Stack renders the frames the way a Go panic trace does.
func (e Exception) Stack() string {
	var sb strings.Builder
	for i, f := range e.Frames {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(f.String())
	}
	return sb.String()
}

// Sink transmits telemetry to a backend.
type Sink interface {
	// TrackEvent queues one event for transmission.
	TrackEvent(ctx context.Context, event Event) error
	// TrackException queues one exception for transmission.
	TrackException(ctx context.Context, exception Exception) error
	// SetSamplingPercentage sets the share of records that are transmitted.
	SetSamplingPercentage(percentage float64)
	// SamplingPercentage returns the current sampling percentage.
	SamplingPercentage() float64
	// PurgeIdentifyingContext removes machine, role and account identifiers
	// from the metadata attached to outgoing records.
	PurgeIdentifyingContext()
	// Close flushes pending records and releases the backend.
	Close(ctx context.Context) error
}
