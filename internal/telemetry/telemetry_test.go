package telemetry

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func readEvents(t *testing.T, dir string) []map[string]any {
	t.Helper()
	f, err := os.Open(filepath.Join(dir, "events.jsonl"))
	if err != nil {
		t.Fatalf("open events: %v", err)
	}
	defer f.Close()

	var out []map[string]any
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var m map[string]any
		if err := json.Unmarshal(sc.Bytes(), &m); err != nil {
			t.Fatalf("bad line %q: %v", sc.Text(), err)
		}
		out = append(out, m)
	}
	return out
}

func TestEmit_WritesEventWithNameAndTime(t *testing.T) {
	dir := t.TempDir()
	e := NewEmitter(dir, true)

	e.Emit("tool_exec", map[string]any{"tool_name": "roll_dice"})

	events := readEvents(t, dir)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0]["event"] != "tool_exec" {
		t.Fatalf("event name: got %v", events[0]["event"])
	}
	if events[0]["tool_name"] != "roll_dice" {
		t.Fatalf("tool_name: got %v", events[0]["tool_name"])
	}
	if _, ok := events[0]["time"].(string); !ok {
		t.Fatalf("missing time field: %v", events[0])
	}
}

func TestEmit_DisabledWritesNothing(t *testing.T) {
	dir := t.TempDir()
	e := NewEmitter(dir, false)

	e.Emit("turn_started", nil)

	if _, err := os.Stat(filepath.Join(dir, "events.jsonl")); !os.IsNotExist(err) {
		t.Fatalf("expected no events file, stat err = %v", err)
	}
}

func TestEmit_NilEmitterIsSafe(t *testing.T) {
	var e *Emitter
	e.Emit("turn_started", map[string]any{"x": 1})
}

func TestEmit_DoesNotMutateCallerFields(t *testing.T) {
	dir := t.TempDir()
	e := NewEmitter(dir, true)

	fields := map[string]any{"a": 1}
	e.Emit("x", fields)
	if _, ok := fields["event"]; ok {
		t.Fatal("caller map was mutated")
	}
}

func TestTurnIDContext_RoundTrip(t *testing.T) {
	ctx := WithTurnID(context.Background(), "turn-123")
	id, ok := TurnIDFromContext(ctx)
	if !ok || id != "turn-123" {
		t.Fatalf("got %q, %v", id, ok)
	}
}

func TestTurnIDContext_MissingAndEmpty(t *testing.T) {
	if _, ok := TurnIDFromContext(context.Background()); ok {
		t.Fatal("expected missing turn ID")
	}
	if _, ok := TurnIDFromContext(WithTurnID(context.Background(), "")); ok {
		t.Fatal("expected empty turn ID to be rejected")
	}
}
