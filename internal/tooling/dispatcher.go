package tooling

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/glyphkeeper/glyphkeeper/internal/llm"
	"github.com/glyphkeeper/glyphkeeper/internal/telemetry"
)

const (
	reasonNotFound    = "tool not found"
	reasonInvalidArgs = "invalid arguments"
	reasonRepetition  = "repetition detected"
)

// LoopGuard tracks tool-call signatures within a single turn. The dedup
// window covers only the last two calls, so a legitimately retried lookup a
// few calls later is not flagged.
type LoopGuard struct {
	recent  []string
	tripped bool
}

// NewLoopGuard returns a guard scoped to one turn.
func NewLoopGuard() *LoopGuard {
	return &LoopGuard{}
}

// Tripped reports whether a repetition was detected; the orchestrator must
// end the tool loop after the current round when true.
func (g *LoopGuard) Tripped() bool {
	return g.tripped
}

func (g *LoopGuard) repeated(sig string) bool {
	for _, s := range g.recent {
		if s == sig {
			return true
		}
	}
	return false
}

func (g *LoopGuard) record(sig string) {
	g.recent = append(g.recent, sig)
	if len(g.recent) > 2 {
		g.recent = g.recent[len(g.recent)-2:]
	}
}

// Dispatcher resolves tool calls against a static capability table.
type Dispatcher struct {
	defs    map[string]Definition
	schemas []llm.ToolSchema
	log     *zap.Logger
	events  *telemetry.Emitter
}

// NewDispatcher builds the name→handler table at startup. Duplicate names are
// a wiring bug and rejected outright.
func NewDispatcher(log *zap.Logger, events *telemetry.Emitter, defs ...Definition) (*Dispatcher, error) {
	if log == nil {
		log = zap.NewNop()
	}
	table := make(map[string]Definition, len(defs))
	schemas := make([]llm.ToolSchema, 0, len(defs))
	for _, d := range defs {
		if d.Name == "" || d.Handler == nil {
			return nil, fmt.Errorf("tool definition missing name or handler: %+v", d)
		}
		if _, dup := table[d.Name]; dup {
			return nil, fmt.Errorf("duplicate tool name %q", d.Name)
		}
		table[d.Name] = d
		schemas = append(schemas, d.Schema())
	}
	return &Dispatcher{defs: table, schemas: schemas, log: log, events: events}, nil
}

// Schemas returns the wire schemas for every registered tool.
func (d *Dispatcher) Schemas() []llm.ToolSchema {
	return d.schemas
}

// Dispatch executes one tool call and returns its observation result.
//
// Failures never propagate as errors: unknown tools, malformed arguments,
// handler errors, and repetitions all come back as Result{OK: false} so the
// turn continues. A repetition additionally trips the guard.
func (d *Dispatcher) Dispatch(ctx context.Context, guard *LoopGuard, call llm.ToolCall) Result {
	start := time.Now()

	canonical, ok := canonicalArgs(call.Arguments)
	if !ok {
		d.emit(ctx, call.Name, start, reasonInvalidArgs)
		return Result{OK: false, Reason: reasonInvalidArgs}
	}

	sig := call.Name + "\x00" + canonical
	if guard.repeated(sig) {
		guard.tripped = true
		d.log.Warn("repeated tool call short-circuited",
			zap.String("tool", call.Name))
		d.emit(ctx, call.Name, start, reasonRepetition)
		return Result{OK: false, Reason: reasonRepetition}
	}
	guard.record(sig)

	def, found := d.defs[call.Name]
	if !found {
		d.emit(ctx, call.Name, start, reasonNotFound)
		return Result{OK: false, Reason: reasonNotFound}
	}

	res := d.invoke(ctx, def, call.Arguments)
	if res.OK {
		d.emit(ctx, call.Name, start, "")
	} else {
		d.emit(ctx, call.Name, start, res.Reason)
	}
	return res
}

// invoke runs the handler, converting errors and panics into observation
// results so a misbehaving tool cannot abort the turn.
func (d *Dispatcher) invoke(ctx context.Context, def Definition, args json.RawMessage) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("tool handler panicked",
				zap.String("tool", def.Name), zap.Any("panic", r))
			res = Result{OK: false, Reason: fmt.Sprintf("tool %s failed", def.Name)}
		}
	}()

	out, err := def.Handler(ctx, args)
	if err != nil {
		return Result{OK: false, Reason: err.Error()}
	}
	data, err := json.Marshal(out)
	if err != nil {
		return Result{OK: false, Reason: fmt.Sprintf("unserializable tool output: %v", err)}
	}
	return Result{OK: true, Data: data}
}

// canonicalArgs normalizes the model's argument JSON into a sorted-key form
// so signature comparison is insensitive to key order and whitespace.
// Empty arguments normalize to the empty object.
func canonicalArgs(args json.RawMessage) (string, bool) {
	if len(args) == 0 {
		return "{}", true
	}
	if !gjson.ValidBytes(args) {
		return "", false
	}
	var v any
	if err := json.Unmarshal(args, &v); err != nil {
		return "", false
	}
	b, err := json.Marshal(v) // map keys marshal sorted
	if err != nil {
		return "", false
	}
	return string(b), true
}

func (d *Dispatcher) emit(ctx context.Context, tool string, start time.Time, reason string) {
	turnID, _ := telemetry.TurnIDFromContext(ctx)
	fields := map[string]any{
		"tool_name":   tool,
		"duration_ms": time.Since(start).Milliseconds(),
		"turn_id":     turnID,
	}
	if reason != "" {
		fields["error"] = reason
	}
	d.events.Emit("tool_exec", fields)
}
