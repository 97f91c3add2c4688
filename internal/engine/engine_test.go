package engine

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/glyphkeeper/glyphkeeper/internal/db"
	"github.com/glyphkeeper/glyphkeeper/internal/llm"
	"github.com/glyphkeeper/glyphkeeper/internal/llm/llmtest"
	"github.com/glyphkeeper/glyphkeeper/internal/memory"
	"github.com/glyphkeeper/glyphkeeper/internal/tooling"
	"github.com/glyphkeeper/glyphkeeper/internal/usage"
	"github.com/glyphkeeper/glyphkeeper/internal/world"
)

type stubKnowledge struct{}

func (stubKnowledge) Insert(context.Context, string) error          { return nil }
func (stubKnowledge) Query(context.Context, string, int) (string, error) { return "", nil }

type stubSummarizer struct{}

func (stubSummarizer) Summarize(context.Context, []memory.DialogueRecord) (string, error) {
	return "summary", nil
}

type stubWorld struct {
	snap world.Snapshot
	err  error
}

func (w stubWorld) Snapshot(context.Context, string) (world.Snapshot, error) {
	return w.snap, w.err
}

type harness struct {
	orch    *Orchestrator
	fake    *llmtest.Fake
	store   *memory.Store
	tracker *usage.Tracker
	calls   *int
}

func newHarness(t *testing.T, maxIter int, responses ...llmtest.Response) *harness {
	t.Helper()
	conn, err := db.Open(context.Background(), filepath.Join(t.TempDir(), "engine.db"))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	store := memory.NewStore(conn)
	require.NoError(t, store.Migrate(context.Background()))
	mgr := memory.NewManager(memory.ManagerConfig{
		Store:      store,
		Strategy:   memory.TokenThresholdStrategy{MaxTokens: 1 << 30},
		Summarizer: stubSummarizer{},
		Knowledge:  stubKnowledge{},
		TopK:       5,
		Logger:     zap.NewNop(),
	})

	handlerCalls := 0
	dispatcher, err := tooling.NewDispatcher(zap.NewNop(), nil, tooling.Definition{
		Name:        "get_location_stat",
		Description: "read a stat",
		InputSchema: tooling.GenerateSchema[struct {
			EntityName string `json:"entity_name"`
		}](),
		Handler: func(context.Context, json.RawMessage) (any, error) {
			handlerCalls++
			return map[string]int{"value": 3}, nil
		},
	})
	require.NoError(t, err)

	fake := &llmtest.Fake{Responses: responses}
	tracker := &usage.Tracker{}
	orch := New(Config{
		Client:        fake,
		Dispatcher:    dispatcher,
		Memory:        mgr,
		World:         stubWorld{snap: world.Snapshot{Location: "The Study"}},
		Model:         "test-model",
		MaxTokens:     512,
		MaxIterations: maxIter,
		HistoryWindow: 10,
		Logger:        zap.NewNop(),
		Usage:         tracker,
	})
	return &harness{orch: orch, fake: fake, store: store, tracker: tracker, calls: &handlerCalls}
}

func (h *harness) run(t *testing.T) (string, error) {
	t.Helper()
	var out strings.Builder
	err := h.orch.ProcessTurn(context.Background(), TurnRequest{
		SessionID: "s1", Actor: "Rowan", UserText: "I search the desk",
	}, func(s string) { out.WriteString(s) })
	return out.String(), err
}

func statCall(args string) llm.ToolCall {
	return llm.ToolCall{ID: "tc1", Name: "get_location_stat", Arguments: json.RawMessage(args)}
}

func TestTurnWithoutToolCalls(t *testing.T) {
	h := newHarness(t, 5, llmtest.Response{
		Text:  "<narrative>The study is quiet.</narrative>",
		Usage: llm.Usage{InputTokens: 100, OutputTokens: 20},
	})

	out, err := h.run(t)
	require.NoError(t, err)
	require.Equal(t, "The study is quiet.", out)
	require.Len(t, h.fake.Requests, 1)
	require.NotEmpty(t, h.fake.Requests[0].Tools, "first round offers the tool table")
	require.Contains(t, h.fake.Requests[0].System, "you MUST call the appropriate tool")

	recs, err := h.store.RecentWindow(context.Background(), "s1", 10)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	require.Equal(t, llm.RoleAssistant, recs[1].Role)
	require.Equal(t, "The study is quiet.", recs[1].Content)

	in, outTok, calls := h.tracker.Totals()
	require.EqualValues(t, 100, in)
	require.EqualValues(t, 20, outTok)
	require.EqualValues(t, 1, calls)
}

func TestToolRoundFeedsObservationsBack(t *testing.T) {
	h := newHarness(t, 5,
		llmtest.Response{Text: "Checking the desk.", Calls: []llm.ToolCall{statCall(`{"entity_name":"Alice"}`)}},
		llmtest.Response{Text: "<narrative>The desk holds a brass key.</narrative>"},
	)

	out, err := h.run(t)
	require.NoError(t, err)
	require.Equal(t, "The desk holds a brass key.", out)
	require.Equal(t, 1, *h.calls)
	require.Len(t, h.fake.Requests, 2)

	second := h.fake.Requests[1].System
	require.Contains(t, second, "# Observations")
	require.Contains(t, second, `get_location_stat -> {"ok":true,"data":{"value":3}}`)
	require.NotContains(t, h.fake.Requests[0].System, "# Observations")
}

func TestMidLoopNarrativeNeverReachesPlayer(t *testing.T) {
	// A tool-calling round may emit delimited text alongside its tool_use;
	// that text is pre-observation speculation and must be dropped in favor
	// of the terminal round's narrative.
	h := newHarness(t, 5,
		llmtest.Response{
			Text:  "<narrative>You reach for the desk.</narrative>",
			Calls: []llm.ToolCall{statCall(`{"entity_name":"Alice"}`)},
		},
		llmtest.Response{Text: "<narrative>The drawer holds a brass key.</narrative>"},
	)

	out, err := h.run(t)
	require.NoError(t, err)
	require.Equal(t, "The drawer holds a brass key.", out)
	require.NotContains(t, out, "reach for the desk")

	recs, err := h.store.RecentWindow(context.Background(), "s1", 10)
	require.NoError(t, err)
	require.Equal(t, llm.RoleAssistant, recs[1].Role)
	require.Equal(t, "The drawer holds a brass key.", recs[1].Content)
}

func TestRepeatedCallForcesFinalRound(t *testing.T) {
	h := newHarness(t, 5,
		llmtest.Response{Calls: []llm.ToolCall{statCall(`{"entity_name":"Alice"}`)}},
		llmtest.Response{Calls: []llm.ToolCall{statCall(`{"entity_name":"Alice"}`)}},
		llmtest.Response{Text: "<narrative>Nothing more to find.</narrative>"},
	)

	out, err := h.run(t)
	require.NoError(t, err)
	require.Equal(t, "Nothing more to find.", out)
	require.Equal(t, 1, *h.calls, "repeated call must not reach the handler")
	require.Len(t, h.fake.Requests, 3)

	final := h.fake.Requests[2]
	require.Empty(t, final.Tools, "round after a repetition runs with tools disabled")
	require.Contains(t, final.System, "Stop calling tools")
	require.Contains(t, final.System, "repetition detected")
}

func TestIterationCapDisablesTools(t *testing.T) {
	h := newHarness(t, 3,
		llmtest.Response{Calls: []llm.ToolCall{statCall(`{"entity_name":"Alice"}`)}},
		llmtest.Response{Calls: []llm.ToolCall{statCall(`{"entity_name":"Bob"}`)}},
		llmtest.Response{Text: "<narrative>The search turns up nothing conclusive.</narrative>"},
	)

	out, err := h.run(t)
	require.NoError(t, err)
	require.Equal(t, "The search turns up nothing conclusive.", out)
	require.Len(t, h.fake.Requests, 3, "round count never exceeds the cap")
	require.Empty(t, h.fake.Requests[2].Tools)
	require.Contains(t, h.fake.Requests[2].System, "Stop calling tools")
}

func TestModelErrorAbortsTurn(t *testing.T) {
	h := newHarness(t, 5, llmtest.Response{Err: errors.New("overloaded")})

	_, err := h.run(t)
	require.Error(t, err)
	require.Contains(t, err.Error(), "overloaded")

	recs, err := h.store.RecentWindow(context.Background(), "s1", 10)
	require.NoError(t, err)
	require.Len(t, recs, 1, "only the user turn is persisted")
	require.Equal(t, llm.RoleUser, recs[0].Role)
}

func TestMissingDelimiterFallsBackToRawText(t *testing.T) {
	h := newHarness(t, 5, llmtest.Response{Text: "The study is quiet, if cold."})

	out, err := h.run(t)
	require.NoError(t, err)
	require.Equal(t, "The study is quiet, if cold.", out)

	recs, err := h.store.RecentWindow(context.Background(), "s1", 10)
	require.NoError(t, err)
	require.Equal(t, "The study is quiet, if cold.", recs[1].Content)
}

func TestWorldSnapshotFailureDegrades(t *testing.T) {
	h := newHarness(t, 5, llmtest.Response{Text: "<narrative>You are nowhere in particular.</narrative>"})
	h.orch.world = stubWorld{err: errors.New("no such actor")}

	out, err := h.run(t)
	require.NoError(t, err)
	require.Equal(t, "You are nowhere in particular.", out)
	require.Contains(t, h.fake.Requests[0].System, "Location: unknown")
}
