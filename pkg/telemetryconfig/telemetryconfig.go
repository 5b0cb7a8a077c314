// Package telemetryconfig reads and writes the shared telemetry opt-in file.
//
// The file holds one JSON document mapping group names to their opt-in state:
//
//	{ "telemetryInstances": { "<group>": { "telemetryEnabled": true } } }
//
// Every access reads or writes the whole document. Groups owned by other
// tools are kept as-is when one group is updated.
package telemetryconfig

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	"github.com/goccy/go-json"
	"github.com/natefinch/atomic"
)

const instancesKey = "telemetryInstances"

// ErrMalformed is returned when the config file exists but does not hold a
// valid telemetry document.
var ErrMalformed = errors.New("malformed telemetry config")

// GroupRecord is the opt-in state stored for one group.
type GroupRecord struct {
	TelemetryEnabled bool `json:"telemetryEnabled"`
}

// UnmarshalJSON accepts both the object form and the bare boolean that older
// writers stored for groups created without a prompt.
func (r *GroupRecord) UnmarshalJSON(data []byte) error {
	var enabled bool
	if err := json.Unmarshal(data, &enabled); err == nil {
		r.TelemetryEnabled = enabled
		return nil
	}

	type plain GroupRecord
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = GroupRecord(p)
	return nil
}

// Document is the parsed content of the config file.
type Document struct {
	// TelemetryInstances maps group names to their opt-in state.
	TelemetryInstances map[string]GroupRecord

	// extra holds unknown top-level keys so they survive a rewrite.
	extra map[string]json.RawMessage
}

// New returns an empty document.
func New() *Document {
	return &Document{TelemetryInstances: make(map[string]GroupRecord)}
}

// HasGroup reports whether the document holds a record for name.
func (d *Document) HasGroup(name string) bool {
	if d == nil {
		return false
	}
	_, ok := d.TelemetryInstances[name]
	return ok
}

// Enabled returns the stored opt-in value for name and whether it exists.
func (d *Document) Enabled(name string) (enabled, ok bool) {
	if d == nil {
		return false, false
	}
	rec, ok := d.TelemetryInstances[name]
	return rec.TelemetryEnabled, ok
}

// Set records the opt-in value for name, leaving other groups untouched.
func (d *Document) Set(name string, enabled bool) {
	if d.TelemetryInstances == nil {
		d.TelemetryInstances = make(map[string]GroupRecord)
	}
	d.TelemetryInstances[name] = GroupRecord{TelemetryEnabled: enabled}
}

// Groups returns the group names in sorted order.
func (d *Document) Groups() []string {
	if d == nil {
		return nil
	}
	names := make([]string, 0, len(d.TelemetryInstances))
	for name := range d.TelemetryInstances {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (d *Document) fields() map[string]any {
	out := make(map[string]any, len(d.extra)+1)
	for k, v := range d.extra {
		out[k] = v
	}
	instances := d.TelemetryInstances
	if instances == nil {
		instances = map[string]GroupRecord{}
	}
	out[instancesKey] = instances
	return out
}

// MarshalJSON implements json.Marshaler.
func (d *Document) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.fields())
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Document) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		return errors.New("document is not an object")
	}

	instances, ok := raw[instancesKey]
	if !ok {
		return fmt.Errorf("missing %q", instancesKey)
	}

	var groups map[string]GroupRecord
	if err := json.Unmarshal(instances, &groups); err != nil {
		return fmt.Errorf("invalid %q: %w", instancesKey, err)
	}
	if groups == nil {
		return fmt.Errorf("%q is null", instancesKey)
	}

	delete(raw, instancesKey)
	if len(raw) == 0 {
		raw = nil
	}

	d.TelemetryInstances = groups
	d.extra = raw
	return nil
}

// Read loads the document at path.
//
// A missing file yields an error matching fs.ErrNotExist; a file that exists
// but cannot be parsed yields an error matching ErrMalformed.
func Read(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read telemetry config: %w", err)
	}

	doc := New()
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("%w %s: %v", ErrMalformed, path, err)
	}
	return doc, nil
}

// Write replaces the file at path with the pretty-printed document.
//
// The write goes through a temporary file and a rename so readers never see
// a partial document. There is no locking between processes: the last writer
// wins.
func Write(path string, doc *Document) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(doc.fields(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal telemetry config: %w", err)
	}
	data = append(data, '\n')

	return atomic.WriteFile(path, bytes.NewReader(data))
}

// CreateNew writes a fresh document holding only group.
func CreateNew(path, group string, enabled bool) error {
	doc := New()
	doc.Set(group, enabled)
	return Write(path, doc)
}

// Update reads the document at path, applies fn and writes the result back.
// A missing file starts from an empty document. A malformed file is left
// untouched and its ErrMalformed error is returned.
func Update(path string, fn func(*Document) error) error {
	doc, err := Read(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		doc = New()
	case err != nil:
		return err
	}

	if err := fn(doc); err != nil {
		return err
	}
	return Write(path, doc)
}
