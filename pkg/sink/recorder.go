package sink

import (
	"context"
	"sync"
)

// Recorder is an in-memory Sink used by tests.
type Recorder struct {
	mu sync.Mutex

	events     []Event
	exceptions []Exception
	sampling   float64
	purged     bool
	closed     bool

	// FailEvent, when set, is consulted before recording an event; a non-nil
	// error is returned instead of recording it.
	FailEvent func(Event) error
	// FailException works like FailEvent for exceptions.
	FailException func(Exception) error
}

// NewRecorder returns a Recorder with sampling on.
func NewRecorder() *Recorder {
	return &Recorder{sampling: SamplingOn}
}

func (r *Recorder) TrackEvent(_ context.Context, event Event) error {
	if r.FailEvent != nil {
		if err := r.FailEvent(event); err != nil {
			return err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sampling > 0 {
		r.events = append(r.events, event)
	}
	return nil
}

func (r *Recorder) TrackException(_ context.Context, exception Exception) error {
	if r.FailException != nil {
		if err := r.FailException(exception); err != nil {
			return err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sampling > 0 {
		r.exceptions = append(r.exceptions, exception)
	}
	return nil
}

func (r *Recorder) SetSamplingPercentage(percentage float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sampling = percentage
}

func (r *Recorder) SamplingPercentage() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sampling
}

func (r *Recorder) PurgeIdentifyingContext() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.purged = true
}

func (r *Recorder) Close(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event{}, r.events...)
}

// Exceptions returns a copy of the recorded exceptions.
func (r *Recorder) Exceptions() []Exception {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Exception{}, r.exceptions...)
}

// Purged reports whether PurgeIdentifyingContext was called.
func (r *Recorder) Purged() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.purged
}

// Closed reports whether Close was called.
func (r *Recorder) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}
