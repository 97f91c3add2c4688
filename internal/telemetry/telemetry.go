// Package telemetry emits JSONL event records for turn processing.
//
// Events land in <dir>/events.jsonl, one JSON object per line, with the event
// name and an RFC3339Nano timestamp added to the caller's fields. A nil
// *Emitter is safe and emits nothing, so callers never need to nil-check.
package telemetry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Emitter appends event records to a JSONL file.
type Emitter struct {
	dir     string
	enabled bool

	mu sync.Mutex
}

// NewEmitter returns an emitter writing to dir/events.jsonl.
// When enabled is false, Emit is a no-op.
func NewEmitter(dir string, enabled bool) *Emitter {
	return &Emitter{dir: dir, enabled: enabled}
}

// Emit writes a single JSON line for the named event.
// It augments fields with RFC3339Nano time and the event name.
// Write failures are reported on stderr and otherwise ignored; telemetry never
// fails a turn.
func (e *Emitter) Emit(name string, fields map[string]any) {
	if e == nil || !e.enabled {
		return
	}

	// Shallow copy so callers' maps aren't mutated.
	m := make(map[string]any, len(fields)+2)
	for k, v := range fields {
		m[k] = v
	}
	m["time"] = time.Now().UTC().Format(time.RFC3339Nano)
	m["event"] = name

	b, err := json.Marshal(m)
	if err != nil {
		fmt.Fprintf(os.Stderr, "telemetry: marshal: %v\n", err)
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "telemetry: mkdir %s: %v\n", e.dir, err)
		return
	}

	path := filepath.Join(e.dir, "events.jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "telemetry: open %s: %v\n", path, err)
		return
	}
	defer f.Close()

	if _, err := f.Write(append(b, '\n')); err != nil {
		fmt.Fprintf(os.Stderr, "telemetry: write %s: %v\n", path, err)
	}
}
