package config

import (
	"strings"
	"testing"
)

func TestExpandPath(t *testing.T) {
	t.Parallel()
	got := ExpandPath("~/memories.db")
	if got == "~/memories.db" {
		t.Fatalf("expected home-expanded path, got %q", got)
	}
	if !strings.Contains(got, "memories.db") {
		t.Fatalf("expected expanded path to contain file name, got %q", got)
	}
}

func TestValidate_RejectsBadTuning(t *testing.T) {
	t.Parallel()
	cfg := Default()
	cfg.ConsolidationTrigger = 1.5
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for consolidation_trigger > 1, got nil")
	}

	cfg = Default()
	cfg.ImportanceThreshold = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for importance_threshold out of range, got nil")
	}

	cfg = Default()
	cfg.EmbeddingProvider = "word2vec"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown embedding_provider, got nil")
	}
}

func TestDefault_IsValid(t *testing.T) {
	t.Parallel()
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default() should validate, got %v", err)
	}
}
