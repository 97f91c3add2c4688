// Package engine runs the turn loop: player text in, streamed narration
// out, with bounded tool-calling rounds in between.
package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/glyphkeeper/glyphkeeper/internal/llm"
	"github.com/glyphkeeper/glyphkeeper/internal/memory"
	"github.com/glyphkeeper/glyphkeeper/internal/prompt"
	"github.com/glyphkeeper/glyphkeeper/internal/telemetry"
	"github.com/glyphkeeper/glyphkeeper/internal/tooling"
	"github.com/glyphkeeper/glyphkeeper/internal/usage"
	"github.com/glyphkeeper/glyphkeeper/internal/world"
)

// WorldReader is the read-only snapshot call the orchestrator makes before
// each turn.
type WorldReader interface {
	Snapshot(ctx context.Context, actorName string) (world.Snapshot, error)
}

// TurnRequest is one player turn.
type TurnRequest struct {
	SessionID string
	Actor     string
	UserText  string
}

// Config carries the orchestrator's collaborators and tuning.
type Config struct {
	Client        llm.Client
	Dispatcher    *tooling.Dispatcher
	Memory        *memory.Manager
	World         WorldReader
	Model         string
	MaxTokens     int
	MaxIterations int
	HistoryWindow int
	Logger        *zap.Logger
	Events        *telemetry.Emitter
	Usage         *usage.Tracker
}

// Orchestrator ties memory, prompt assembly, the model stream, and tool
// dispatch together for one turn at a time.
type Orchestrator struct {
	client     llm.Client
	dispatcher *tooling.Dispatcher
	mem        *memory.Manager
	world      WorldReader
	model      string
	maxTokens  int
	maxIter    int
	histWindow int
	log        *zap.Logger
	events     *telemetry.Emitter
	usage      *usage.Tracker
}

// New returns an orchestrator built from cfg. MaxIterations below 1 is
// raised to 1 so every turn gets at least one model call.
func New(cfg Config) *Orchestrator {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	maxIter := cfg.MaxIterations
	if maxIter < 1 {
		maxIter = 1
	}
	return &Orchestrator{
		client:     cfg.Client,
		dispatcher: cfg.Dispatcher,
		mem:        cfg.Memory,
		world:      cfg.World,
		model:      cfg.Model,
		maxTokens:  cfg.MaxTokens,
		maxIter:    maxIter,
		histWindow: cfg.HistoryWindow,
		log:        log,
		events:     cfg.Events,
		usage:      cfg.Usage,
	}
}

// ProcessTurn runs one full turn. Narration chunks are streamed to emit as
// they are produced; only text inside the narrative delimiters reaches it.
// A model failure aborts the turn with an error and persists no assistant
// turn; tool failures never abort, they become observations.
func (o *Orchestrator) ProcessTurn(ctx context.Context, req TurnRequest, emit func(string)) error {
	turnID := uuid.NewString()
	ctx = telemetry.WithTurnID(ctx, turnID)
	log := o.log.With(zap.String("turn_id", turnID), zap.String("session_id", req.SessionID))

	userRec, err := o.mem.AddDialogue(ctx, req.SessionID, llm.RoleUser, req.UserText)
	if err != nil {
		return fmt.Errorf("persist user turn: %w", err)
	}
	o.events.Emit("turn_started", map[string]any{
		"turn_id":     turnID,
		"session_id":  req.SessionID,
		"turn_number": userRec.TurnNumber,
	})

	snap, err := o.world.Snapshot(ctx, req.Actor)
	if err != nil {
		// A missing or unplaced actor degrades to an empty view; the turn
		// still runs.
		log.Warn("world snapshot unavailable", zap.Error(err))
		snap = world.Snapshot{}
	}
	dual := o.mem.BuildDualContext(ctx, req.UserText)
	history, err := o.mem.RecentWindowBefore(ctx, req.SessionID, userRec.TurnNumber, o.histWindow)
	if err != nil {
		log.Warn("history window unavailable", zap.Error(err))
		history = nil
	}
	mode := prompt.DetectScene(req.UserText, snap.LocationTags)

	guard := tooling.NewLoopGuard()
	var observations []tooling.Observation
	var lastRaw string
	var terminal *narrativeFilter
	streamed := false
	rounds := 0

	for iteration := 1; iteration <= o.maxIter; iteration++ {
		finalRound := iteration == o.maxIter || guard.Tripped()
		sys := prompt.Build(prompt.Input{
			Actor:        req.Actor,
			World:        snap,
			Context:      dual,
			History:      history,
			UserText:     req.UserText,
			Observations: observations,
			Mode:         mode,
			FinalRound:   finalRound,
		})
		var tools []llm.ToolSchema
		if !finalRound {
			tools = o.dispatcher.Schemas()
		}

		// Each round gets its own filter so delimited text from a round
		// that goes on to request tools never reaches the player; only the
		// terminal round's narrative counts. A forced final round cannot
		// request tools, so its filter streams live.
		filter := newNarrativeFilter(nil)
		if finalRound {
			filter = newNarrativeFilter(emit)
		}

		raw, calls, err := o.streamRound(ctx, sys, req.UserText, tools, filter)
		if err != nil {
			return fmt.Errorf("model call (round %d): %w", iteration, err)
		}
		rounds = iteration
		lastRaw = raw

		if len(calls) == 0 || finalRound {
			filter.Flush()
			terminal = filter
			streamed = finalRound
			break
		}
		for _, call := range calls {
			res := o.dispatcher.Dispatch(ctx, guard, call)
			observations = append(observations, tooling.Observation{Tool: call.Name, Result: res})
		}
		if iteration == o.maxIter-1 {
			log.Warn("iteration cap reached, forcing final narrative",
				zap.Int("max_iterations", o.maxIter))
		}
	}

	narrative := ""
	seen := false
	if terminal != nil {
		narrative = terminal.Narrative()
		seen = terminal.Seen()
	}
	switch {
	case !seen:
		// The terminal round never opened a narrative section; fall back to
		// its raw text so the player is not left with silence.
		log.Warn("no narrative delimiter in final response, streaming raw text")
		o.events.Emit("narrative_fallback", map[string]any{"turn_id": turnID})
		narrative = lastRaw
		if emit != nil && narrative != "" {
			emit(narrative)
		}
	case !streamed:
		// The terminal round still had tools enabled, so its filter
		// buffered instead of streaming; deliver the capture now.
		if emit != nil && narrative != "" {
			emit(narrative)
		}
	}

	if _, err := o.mem.AddDialogue(ctx, req.SessionID, llm.RoleAssistant, narrative); err != nil {
		return fmt.Errorf("persist assistant turn: %w", err)
	}
	o.events.Emit("turn_completed", map[string]any{
		"turn_id":    turnID,
		"session_id": req.SessionID,
		"rounds":     rounds,
		"tool_calls": len(observations),
		"scene_mode": string(mode),
	})
	return nil
}

// streamRound makes one model call, feeding text deltas to the narrative
// filter and collecting any tool-call batch.
func (o *Orchestrator) streamRound(ctx context.Context, system, userText string, tools []llm.ToolSchema, filter *narrativeFilter) (string, []llm.ToolCall, error) {
	stream, err := o.client.Chat(ctx, llm.Request{
		Model:     o.model,
		System:    system,
		MaxTokens: o.maxTokens,
		Messages:  []llm.Message{{Role: llm.RoleUser, Content: userText}},
		Tools:     tools,
	})
	if err != nil {
		return "", nil, err
	}
	defer stream.Close()

	var raw []byte
	var calls []llm.ToolCall
	for stream.Next() {
		switch ev := stream.Event().(type) {
		case llm.TextDelta:
			raw = append(raw, ev.Text...)
			filter.Write(ev.Text)
		case llm.ToolCallBatch:
			calls = ev.Calls
		}
	}
	if err := stream.Err(); err != nil {
		return "", nil, err
	}
	o.usage.Add(stream.Usage())
	return string(raw), calls, nil
}
