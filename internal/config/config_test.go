package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DOCWORKER_CHUNK_BUDGET", "")
	t.Setenv("DOCWORKER_CONTEXT_WINDOW", "")
	cfg := Load()
	if cfg.ChunkBudget != 3000 {
		t.Fatalf("expected chunk budget 3000, got %d", cfg.ChunkBudget)
	}
	if cfg.ContextWindow != 4097 {
		t.Fatalf("expected context window 4097, got %d", cfg.ContextWindow)
	}
	if cfg.RetryAttempts != 5 || cfg.RetryBaseSeconds != 5 {
		t.Fatalf("unexpected retry defaults: %d/%d", cfg.RetryAttempts, cfg.RetryBaseSeconds)
	}
}

func TestLoadOverridesAndBadValues(t *testing.T) {
	t.Setenv("DOCWORKER_CHUNK_BUDGET", "120")
	t.Setenv("DOCWORKER_CHUNK_OVERLAP", "0.25")
	t.Setenv("DOCWORKER_TEMPERATURE", "warm")
	cfg := Load()
	if cfg.ChunkBudget != 120 {
		t.Fatalf("expected override 120, got %d", cfg.ChunkBudget)
	}
	if cfg.ChunkOverlap != 0.25 {
		t.Fatalf("expected overlap 0.25, got %v", cfg.ChunkOverlap)
	}
	if cfg.Temperature != 0.1 {
		t.Fatalf("bad float should fall back, got %v", cfg.Temperature)
	}
}
