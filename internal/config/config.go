// Package config loads runtime configuration from the environment.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config holds every tunable the keeper binary reads at startup.
// All values come from the environment (optionally via a .env file loaded by
// the CLI before parsing).
type Config struct {
	// DBPath is the SQLite database holding dialogue, traces, world state,
	// and the reference knowledge notes.
	DBPath string `env:"KEEPER_DB_PATH" envDefault:"keeper.db"`

	// Model is the Anthropic model identifier used for narration.
	Model string `env:"KEEPER_MODEL" envDefault:"claude-sonnet-4-5"`

	// MaxTokens caps each model response.
	MaxTokens int `env:"KEEPER_MAX_TOKENS" envDefault:"1024"`

	// MaxIterations bounds the tool-calling rounds inside one turn.
	MaxIterations int `env:"KEEPER_MAX_ITERATIONS" envDefault:"5"`

	// HistoryWindow is how many persisted turns feed the prompt history block.
	HistoryWindow int `env:"KEEPER_HISTORY_WINDOW" envDefault:"10"`

	// ConsolidateTokens is the token-proxy threshold over the unconsolidated
	// dialogue buffer that triggers memory consolidation.
	ConsolidateTokens int `env:"KEEPER_CONSOLIDATE_TOKENS" envDefault:"2000"`

	// RetrievalTopK is how many knowledge notes a dual-context query may pull.
	RetrievalTopK int `env:"KEEPER_RETRIEVAL_TOP_K" envDefault:"12"`

	// TelemetryDir receives events.jsonl when telemetry is enabled.
	TelemetryDir     string `env:"KEEPER_TELEMETRY_DIR" envDefault:".keeper"`
	TelemetryEnabled bool   `env:"KEEPER_TELEMETRY" envDefault:"false"`

	// Debug switches zap to development logging.
	Debug bool `env:"KEEPER_DEBUG" envDefault:"false"`
}

// Load parses the environment into a Config and validates the bounds the
// orchestrator depends on.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.MaxIterations < 1 {
		return Config{}, fmt.Errorf("KEEPER_MAX_ITERATIONS must be >= 1, got %d", cfg.MaxIterations)
	}
	if cfg.HistoryWindow < 0 {
		return Config{}, fmt.Errorf("KEEPER_HISTORY_WINDOW must be >= 0, got %d", cfg.HistoryWindow)
	}
	if cfg.ConsolidateTokens < 1 {
		return Config{}, fmt.Errorf("KEEPER_CONSOLIDATE_TOKENS must be >= 1, got %d", cfg.ConsolidateTokens)
	}
	return cfg, nil
}
