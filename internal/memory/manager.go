package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/glyphkeeper/glyphkeeper/internal/llm"
	"github.com/glyphkeeper/glyphkeeper/internal/telemetry"
)

// Knowledge is the slice of the knowledge engine the memory layer uses:
// depositing consolidated summaries and retrieving the dual-context bundle.
type Knowledge interface {
	Insert(ctx context.Context, text string) error
	Query(ctx context.Context, query string, topK int) (string, error)
}

// DualContext is the two-tier context bundle for one turn: long-term lore,
// consolidated episodic memory, and keeper-only secrets. Every field is
// always populated; sections with no hits carry their placeholder so the
// prompt shape stays stable across turns.
type DualContext struct {
	Lore     string
	Episodic string
	Secrets  string
}

// Placeholders used when a retrieval section comes back empty.
const (
	PlaceholderLore     = "No relevant lore found."
	PlaceholderEpisodic = "No prior events recorded."
	PlaceholderSecrets  = "No secrets for this scene."
)

// Section markers the knowledge engine emits and BuildDualContext parses.
const (
	MarkerLore    = "[Lore]"
	MarkerMemory  = "[Memory]"
	MarkerSecret  = "[Secret]"
	traceTagValue = "consolidated_dialogue"
)

// ManagerConfig carries the manager's collaborators and tuning.
type ManagerConfig struct {
	Store      *Store
	Strategy   ConsolidationStrategy
	Summarizer Summarizer
	Knowledge  Knowledge
	TopK       int
	Logger     *zap.Logger
	Events     *telemetry.Emitter
}

// Manager owns the tiered memory for all sessions. Appends to the same
// session are serialized so turn numbers stay gapless and consolidation
// never races a concurrent append.
type Manager struct {
	store      *Store
	strategy   ConsolidationStrategy
	summarizer Summarizer
	knowledge  Knowledge
	topK       int
	log        *zap.Logger
	events     *telemetry.Emitter

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewManager returns a manager built from cfg. A nil logger is replaced
// with a no-op logger.
func NewManager(cfg ManagerConfig) *Manager {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		store:      cfg.Store,
		strategy:   cfg.Strategy,
		summarizer: cfg.Summarizer,
		knowledge:  cfg.Knowledge,
		topK:       cfg.TopK,
		log:        log,
		events:     cfg.Events,
		locks:      make(map[string]*sync.Mutex),
	}
}

func (m *Manager) sessionLock(sessionID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[sessionID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[sessionID] = l
	}
	return l
}

// AddDialogue appends one turn to the session log and then runs the
// consolidation check. A failed consolidation is logged and left for the
// next append; it never fails the append itself.
func (m *Manager) AddDialogue(ctx context.Context, sessionID string, role llm.Role, content string) (DialogueRecord, error) {
	lock := m.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	rec, err := m.store.AppendDialogue(ctx, uuid.NewString(), sessionID, role, content)
	if err != nil {
		return DialogueRecord{}, err
	}
	if err := m.maybeConsolidate(ctx, sessionID); err != nil {
		m.log.Error("consolidation failed, buffer retained for retry",
			zap.String("session_id", sessionID), zap.Error(err))
	}
	return rec, nil
}

func (m *Manager) maybeConsolidate(ctx context.Context, sessionID string) error {
	buffer, err := m.store.Unconsolidated(ctx, sessionID)
	if err != nil {
		return err
	}
	if !m.strategy.ShouldConsolidate(buffer) {
		return nil
	}

	summary, err := m.summarizer.Summarize(ctx, buffer)
	if err != nil {
		return err
	}
	if err := m.knowledge.Insert(ctx, summary); err != nil {
		return err
	}

	ids := make([]string, len(buffer))
	for i, r := range buffer {
		ids[i] = r.ID
	}
	trace := Trace{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Summary:   summary,
		StartTurn: buffer[0].TurnNumber,
		EndTurn:   buffer[len(buffer)-1].TurnNumber,
		Tags:      []string{traceTagValue, m.strategy.Name()},
	}
	if err := m.store.Consolidate(ctx, trace, ids); err != nil {
		return err
	}

	m.log.Info("dialogue consolidated",
		zap.String("session_id", sessionID),
		zap.Int("start_turn", trace.StartTurn),
		zap.Int("end_turn", trace.EndTurn),
		zap.Int("records", len(buffer)))
	m.events.Emit("consolidation", map[string]any{
		"session_id": sessionID,
		"start_turn": trace.StartTurn,
		"end_turn":   trace.EndTurn,
		"records":    len(buffer),
		"strategy":   m.strategy.Name(),
	})
	return nil
}

// RecentWindow returns the last limit turns of the session in order.
func (m *Manager) RecentWindow(ctx context.Context, sessionID string, limit int) ([]DialogueRecord, error) {
	return m.store.RecentWindow(ctx, sessionID, limit)
}

// RecentWindowBefore returns the last limit turns strictly before beforeTurn.
func (m *Manager) RecentWindowBefore(ctx context.Context, sessionID string, beforeTurn, limit int) ([]DialogueRecord, error) {
	return m.store.RecentWindowBefore(ctx, sessionID, beforeTurn, limit)
}

// BuildDualContext issues one retrieval call and splits the response into
// the three context sections. Retrieval failure degrades to placeholders so
// a turn can always proceed.
func (m *Manager) BuildDualContext(ctx context.Context, query string) DualContext {
	raw := ""
	if m.knowledge != nil {
		resp, err := m.knowledge.Query(ctx, query, m.topK)
		if err != nil {
			m.log.Warn("context retrieval failed, using placeholders", zap.Error(err))
		} else {
			raw = resp
		}
	}
	return parseDualContext(raw)
}

// parseDualContext scans the retrieval response for the three section
// markers. Text between a marker line and the next marker (or end of input)
// becomes that section's body.
func parseDualContext(raw string) DualContext {
	sections := map[string]*strings.Builder{
		MarkerLore:   {},
		MarkerMemory: {},
		MarkerSecret: {},
	}
	var current *strings.Builder
	for _, line := range strings.Split(raw, "\n") {
		trimmed := strings.TrimSpace(strings.TrimLeft(line, "#* "))
		if b, ok := sections[trimmed]; ok {
			current = b
			continue
		}
		if current != nil {
			current.WriteString(line)
			current.WriteString("\n")
		}
	}

	pick := func(marker, placeholder string) string {
		body := strings.TrimSpace(sections[marker].String())
		if body == "" {
			return placeholder
		}
		return body
	}
	return DualContext{
		Lore:     pick(MarkerLore, PlaceholderLore),
		Episodic: pick(MarkerMemory, PlaceholderEpisodic),
		Secrets:  pick(MarkerSecret, PlaceholderSecrets),
	}
}
