package main

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/glyphkeeper/glyphkeeper/internal/config"
	"github.com/glyphkeeper/glyphkeeper/internal/db"
	"github.com/glyphkeeper/glyphkeeper/internal/engine"
	"github.com/glyphkeeper/glyphkeeper/internal/knowledge"
	"github.com/glyphkeeper/glyphkeeper/internal/llm"
	"github.com/glyphkeeper/glyphkeeper/internal/memory"
	"github.com/glyphkeeper/glyphkeeper/internal/rules"
	"github.com/glyphkeeper/glyphkeeper/internal/telemetry"
	"github.com/glyphkeeper/glyphkeeper/internal/tooling"
	"github.com/glyphkeeper/glyphkeeper/internal/usage"
	"github.com/glyphkeeper/glyphkeeper/internal/world"
)

var rootCmd = &cobra.Command{
	Use:           "keeper",
	Short:         "A conversational game master backed by a language model",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(playCmd, ingestCmd, seedCmd)
}

// app holds everything that exists independent of a model connection:
// storage, knowledge engines, memory, and telemetry.
type app struct {
	cfg    config.Config
	log    *zap.Logger
	db     *sql.DB
	events *telemetry.Emitter

	worldStore  *world.Store
	memStore    *memory.Store
	worldEngine *knowledge.Engine
	rulesEngine *knowledge.Engine
}

func newApp(ctx context.Context) (*app, error) {
	// Absent .env files are fine; real env always wins.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	var log *zap.Logger
	if cfg.Debug {
		log, err = zap.NewDevelopment()
	} else {
		log, err = zap.NewProduction()
	}
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	conn, err := db.Open(ctx, cfg.DBPath)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:         cfg,
		log:         log,
		db:          conn,
		events:      telemetry.NewEmitter(cfg.TelemetryDir, cfg.TelemetryEnabled),
		worldStore:  world.NewStore(conn),
		memStore:    memory.NewStore(conn),
		worldEngine: knowledge.NewEngine(conn, knowledge.DomainWorld, log),
		rulesEngine: knowledge.NewEngine(conn, knowledge.DomainRules, log),
	}
	if err := a.migrate(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) migrate(ctx context.Context) error {
	if err := a.memStore.Migrate(ctx); err != nil {
		return err
	}
	if err := a.worldStore.Migrate(ctx); err != nil {
		return err
	}
	return a.worldEngine.Migrate(ctx)
}

func (a *app) Close() {
	_ = a.log.Sync()
	_ = a.db.Close()
}

// memoryManager wires the tiered memory over the world knowledge domain,
// with the model-backed summarizer.
func (a *app) memoryManager(client llm.Client) *memory.Manager {
	return memory.NewManager(memory.ManagerConfig{
		Store:    a.memStore,
		Strategy: memory.TokenThresholdStrategy{MaxTokens: a.cfg.ConsolidateTokens},
		Summarizer: &memory.LLMSummarizer{
			Client:    client,
			Model:     a.cfg.Model,
			MaxTokens: a.cfg.MaxTokens,
		},
		Knowledge: a.worldEngine,
		TopK:      a.cfg.RetrievalTopK,
		Logger:    a.log,
		Events:    a.events,
	})
}

// orchestrator assembles the full turn pipeline. Requires a model API key.
func (a *app) orchestrator() (*engine.Orchestrator, *usage.Tracker, error) {
	if os.Getenv("ANTHROPIC_API_KEY") == "" {
		return nil, nil, fmt.Errorf("missing ANTHROPIC_API_KEY; export it before running")
	}
	client := llm.NewAnthropicClient()

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	worldTools := world.NewProvider(a.worldStore, rng, a.log)
	ruleTools := rules.NewProvider(a.rulesEngine, a.cfg.RetrievalTopK, a.log)

	defs := append(worldTools.Definitions(), ruleTools.Definitions()...)
	dispatcher, err := tooling.NewDispatcher(a.log, a.events, defs...)
	if err != nil {
		return nil, nil, err
	}

	tracker := &usage.Tracker{}
	orch := engine.New(engine.Config{
		Client:        client,
		Dispatcher:    dispatcher,
		Memory:        a.memoryManager(client),
		World:         snapshotter{a.worldStore},
		Model:         a.cfg.Model,
		MaxTokens:     a.cfg.MaxTokens,
		MaxIterations: a.cfg.MaxIterations,
		HistoryWindow: a.cfg.HistoryWindow,
		Logger:        a.log,
		Events:        a.events,
		Usage:         tracker,
	})
	return orch, tracker, nil
}

// snapshotter adapts the world store to the orchestrator's read-only view.
type snapshotter struct {
	store *world.Store
}

func (s snapshotter) Snapshot(ctx context.Context, actor string) (world.Snapshot, error) {
	return s.store.Snapshot(ctx, actor)
}
