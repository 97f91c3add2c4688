package tooling

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/glyphkeeper/glyphkeeper/internal/llm"
)

type statInput struct {
	EntityName string `json:"entity_name" jsonschema_description:"Entity to look up."`
}

func newTestDispatcher(t *testing.T, defs ...Definition) *Dispatcher {
	t.Helper()
	d, err := NewDispatcher(zap.NewNop(), nil, defs...)
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	return d
}

func countingDef(name string, calls *int) Definition {
	return Definition{
		Name:        name,
		Description: "test tool",
		InputSchema: GenerateSchema[statInput](),
		Handler: func(_ context.Context, _ json.RawMessage) (any, error) {
			*calls++
			return map[string]string{"status": "ok"}, nil
		},
	}
}

func call(name, args string) llm.ToolCall {
	return llm.ToolCall{ID: "tc-1", Name: name, Arguments: json.RawMessage(args)}
}

func TestDispatch_Success(t *testing.T) {
	calls := 0
	d := newTestDispatcher(t, countingDef("get_location_stat", &calls))

	res := d.Dispatch(context.Background(), NewLoopGuard(), call("get_location_stat", `{"entity_name":"Alice"}`))
	if !res.OK {
		t.Fatalf("expected ok result, got %+v", res)
	}
	if calls != 1 {
		t.Fatalf("handler calls: got %d want 1", calls)
	}
	var data map[string]string
	if err := json.Unmarshal(res.Data, &data); err != nil || data["status"] != "ok" {
		t.Fatalf("bad data %s (%v)", res.Data, err)
	}
}

func TestDispatch_UnknownTool(t *testing.T) {
	d := newTestDispatcher(t)

	res := d.Dispatch(context.Background(), NewLoopGuard(), call("open_portal", `{}`))
	if res.OK || res.Reason != "tool not found" {
		t.Fatalf("got %+v", res)
	}
}

func TestDispatch_InvalidArguments(t *testing.T) {
	calls := 0
	d := newTestDispatcher(t, countingDef("inspect_target", &calls))

	res := d.Dispatch(context.Background(), NewLoopGuard(), call("inspect_target", `{"target":`))
	if res.OK || res.Reason != "invalid arguments" {
		t.Fatalf("got %+v", res)
	}
	if calls != 0 {
		t.Fatal("handler must not run on malformed arguments")
	}
}

func TestDispatch_HandlerErrorBecomesResult(t *testing.T) {
	d := newTestDispatcher(t, Definition{
		Name:        "move_entity",
		Description: "t",
		InputSchema: GenerateSchema[statInput](),
		Handler: func(_ context.Context, _ json.RawMessage) (any, error) {
			return nil, errors.New("destination unreachable")
		},
	})

	res := d.Dispatch(context.Background(), NewLoopGuard(), call("move_entity", `{}`))
	if res.OK || res.Reason != "destination unreachable" {
		t.Fatalf("got %+v", res)
	}
}

func TestDispatch_RepeatedCallShortCircuits(t *testing.T) {
	calls := 0
	d := newTestDispatcher(t, countingDef("get_location_stat", &calls))
	guard := NewLoopGuard()
	ctx := context.Background()

	first := d.Dispatch(ctx, guard, call("get_location_stat", `{"entity_name":"Alice"}`))
	if !first.OK {
		t.Fatalf("first call: %+v", first)
	}
	second := d.Dispatch(ctx, guard, call("get_location_stat", `{"entity_name":"Alice"}`))
	if second.OK || second.Reason != "repetition detected" {
		t.Fatalf("second call: %+v", second)
	}
	if calls != 1 {
		t.Fatalf("handler calls: got %d want 1", calls)
	}
	if !guard.Tripped() {
		t.Fatal("guard should be tripped")
	}
}

func TestDispatch_SignatureIgnoresKeyOrderAndWhitespace(t *testing.T) {
	calls := 0
	d := newTestDispatcher(t, countingDef("perform_skill_check", &calls))
	guard := NewLoopGuard()
	ctx := context.Background()

	d.Dispatch(ctx, guard, call("perform_skill_check", `{"entity_name":"Alice","skill":"spot_hidden"}`))
	res := d.Dispatch(ctx, guard, call("perform_skill_check", `{ "skill": "spot_hidden", "entity_name": "Alice" }`))
	if res.OK {
		t.Fatalf("reordered-duplicate call should be flagged, got %+v", res)
	}
	if calls != 1 {
		t.Fatalf("handler calls: got %d want 1", calls)
	}
}

func TestDispatch_WindowIsOnlyTwoCalls(t *testing.T) {
	calls := 0
	d := newTestDispatcher(t, countingDef("get_location_stat", &calls))
	guard := NewLoopGuard()
	ctx := context.Background()

	d.Dispatch(ctx, guard, call("get_location_stat", `{"entity_name":"Alice"}`))
	d.Dispatch(ctx, guard, call("get_location_stat", `{"entity_name":"Bob"}`))
	d.Dispatch(ctx, guard, call("get_location_stat", `{"entity_name":"Carol"}`))
	// "Alice" has rolled off the two-call window; retrying it is legitimate.
	res := d.Dispatch(ctx, guard, call("get_location_stat", `{"entity_name":"Alice"}`))
	if !res.OK {
		t.Fatalf("call outside dedup window should dispatch, got %+v", res)
	}
	if calls != 4 {
		t.Fatalf("handler calls: got %d want 4", calls)
	}
	if guard.Tripped() {
		t.Fatal("guard should not be tripped")
	}
}

func TestDispatch_EmptyArgsNormalizeToEmptyObject(t *testing.T) {
	calls := 0
	d := newTestDispatcher(t, countingDef("get_location_view", &calls))
	guard := NewLoopGuard()
	ctx := context.Background()

	d.Dispatch(ctx, guard, llm.ToolCall{Name: "get_location_view"})
	res := d.Dispatch(ctx, guard, call("get_location_view", `{}`))
	if res.OK {
		t.Fatalf("nil args and {} should produce the same signature, got %+v", res)
	}
}

func TestNewDispatcher_RejectsDuplicateNames(t *testing.T) {
	n := 0
	_, err := NewDispatcher(zap.NewNop(), nil, countingDef("roll_dice", &n), countingDef("roll_dice", &n))
	if err == nil {
		t.Fatal("expected duplicate-name error")
	}
}
