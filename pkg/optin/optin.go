// Package optin decides whether a tool may send telemetry for its group.
//
// The first time a group is seen the user may be asked once; the answer, or a
// caller supplied default, is stored in the shared telemetry config file and
// reused on every later run.
package optin

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/officedev/addin-telemetry/pkg/prompt"
	"github.com/officedev/addin-telemetry/pkg/telemetryconfig"
)

// State is the position of a group in the opt-in flow.
type State int

const (
	// Unknown means no record exists for the group yet.
	Unknown State = iota
	// PendingPrompt means the user is being asked.
	PendingPrompt
	// Recorded means an opt-in value is stored for the group.
	Recorded
)

func (s State) String() string {
	switch s {
	case Unknown:
		return "unknown"
	case PendingPrompt:
		return "pending_prompt"
	case Recorded:
		return "recorded"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// PromptError wraps a failure of the prompt collaborator.
type PromptError struct {
	Err error
}

func (e *PromptError) Error() string {
	return "telemetry opt-in prompt failed: " + e.Err.Error()
}

func (e *PromptError) Unwrap() error {
	return e.Err
}

// Request describes the group being resolved.
type Request struct {
	// GroupName is the key of the group in the config file.
	GroupName string
	// Path is the config file location.
	Path string
	// Question is shown when the user is prompted.
	Question string
	// RaisePrompt asks the user on first use instead of applying Default.
	RaisePrompt bool
	// TestData disables prompting.
	TestData bool
	// Default is stored when the group is new and no prompt is raised.
	Default bool
}

// Result is the outcome of Resolve.
type Result struct {
	// Enabled is the effective opt-in value.
	Enabled bool
	// State is the final state of the group.
	State State
	// Prompted is true when the user was asked.
	Prompted bool
	// Wrote is true when the config file was written.
	Wrote bool
}

// NormalizeAnswer turns a prompt reply into an opt-in value. Only "y" or "Y"
// opt in.
func NormalizeAnswer(answer string) bool {
	return answer == "y" || answer == "Y"
}

// Resolve returns the opt-in value for req.GroupName, asking the user or
// storing req.Default when the group has no record yet. An existing record is
// never overwritten.
//
// A malformed config file is left untouched and reported as an error
// matching telemetryconfig.ErrMalformed; the returned Result then has
// Enabled set to false.
func Resolve(ctx context.Context, req Request, p prompt.Prompter) (Result, error) {
	doc, err := telemetryconfig.Read(req.Path)
	exists := err == nil
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("Cannot read telemetry config", "path", req.Path, "error", err)
		return Result{State: Unknown}, err
	}

	if exists && doc.HasGroup(req.GroupName) {
		enabled, _ := doc.Enabled(req.GroupName)
		slog.Debug("Telemetry opt-in already recorded", "group", req.GroupName, "enabled", enabled)
		return Result{Enabled: enabled, State: Recorded}, nil
	}

	if !req.TestData && req.RaisePrompt {
		return Ask(ctx, req, p)
	}

	if exists {
		doc.Set(req.GroupName, req.Default)
		err = telemetryconfig.Write(req.Path, doc)
	} else {
		err = telemetryconfig.CreateNew(req.Path, req.GroupName, req.Default)
	}
	if err != nil {
		return Result{State: Unknown}, fmt.Errorf("failed to record telemetry opt-in: %w", err)
	}

	slog.Debug("Telemetry opt-in defaulted", "group", req.GroupName, "enabled", req.Default)
	return Result{Enabled: req.Default, State: Recorded, Wrote: true}, nil
}

// Ask prompts the user and records the answer for req.GroupName, replacing
// any value already stored for that group.
func Ask(ctx context.Context, req Request, p prompt.Prompter) (Result, error) {
	answer, err := p.Ask(ctx, req.Question)
	if err != nil {
		return Result{State: PendingPrompt}, &PromptError{Err: err}
	}

	res, err := Record(req, answer)
	if err != nil {
		return res, err
	}
	res.Prompted = true

	if c, ok := p.(prompt.Confirmer); ok && !req.TestData {
		c.Confirm(res.Enabled)
	}
	return res, nil
}

// Record stores the normalized answer for req.GroupName, merging it into the
// existing document.
func Record(req Request, answer string) (Result, error) {
	enabled := NormalizeAnswer(answer)

	err := telemetryconfig.Update(req.Path, func(doc *telemetryconfig.Document) error {
		doc.Set(req.GroupName, enabled)
		return nil
	})
	if err != nil {
		return Result{Enabled: enabled, State: PendingPrompt}, fmt.Errorf("failed to record telemetry opt-in: %w", err)
	}

	slog.Debug("Telemetry opt-in recorded", "group", req.GroupName, "enabled", enabled)
	return Result{Enabled: enabled, State: Recorded, Wrote: true}, nil
}
