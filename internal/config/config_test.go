package config

import "testing"

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.MaxIterations != 5 {
		t.Fatalf("MaxIterations default: got %d want 5", cfg.MaxIterations)
	}
	if cfg.HistoryWindow != 10 {
		t.Fatalf("HistoryWindow default: got %d want 10", cfg.HistoryWindow)
	}
	if cfg.DBPath != "keeper.db" {
		t.Fatalf("DBPath default: got %q", cfg.DBPath)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("KEEPER_MAX_ITERATIONS", "3")
	t.Setenv("KEEPER_MODEL", "claude-haiku-4-5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.MaxIterations != 3 {
		t.Fatalf("MaxIterations: got %d want 3", cfg.MaxIterations)
	}
	if cfg.Model != "claude-haiku-4-5" {
		t.Fatalf("Model: got %q", cfg.Model)
	}
}

func TestLoad_RejectsZeroIterations(t *testing.T) {
	t.Setenv("KEEPER_MAX_ITERATIONS", "0")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for zero iteration cap")
	}
}
