package app

import (
	"context"
	"path/filepath"
	"testing"

	"ThesisScout/internal/config"
	"ThesisScout/internal/infrastructure/llm"
	"ThesisScout/internal/infrastructure/ml"
	"ThesisScout/internal/logging"
)

func TestEmbeddingProviderSelection(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	if p := embeddingProvider(cfg); p != nil {
		t.Fatalf("expected no provider without credentials, got %T", p)
	}

	cfg.Embedding.ServiceURL = "http://localhost:9000"
	if _, ok := embeddingProvider(cfg).(*ml.Client); !ok {
		t.Fatalf("expected self-hosted client")
	}

	cfg.AI.APIKey = "sk-test"
	if _, ok := embeddingProvider(cfg).(*llm.Embedder); !ok {
		t.Fatalf("expected OpenAI embedder to take precedence")
	}
}

func TestNewOpensStoreAndCreatesThesis(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Storage.DSN = filepath.Join(t.TempDir(), "nested", "history.db")
	cfg.Embedding.Dimension = 32

	application, err := New(context.Background(), cfg, logging.Discard())
	if err != nil {
		t.Fatalf("new application: %v", err)
	}
	defer application.Close()

	thesis, err := application.Pipeline().CreateThesis(context.Background(), "", "Heat pumps will outsell gas boilers in Europe")
	if err != nil {
		t.Fatalf("create thesis: %v", err)
	}
	theses, err := application.Pipeline().Theses(context.Background(), true)
	if err != nil {
		t.Fatalf("list theses: %v", err)
	}
	if len(theses) != 1 || theses[0].ID != thesis.ID || theses[0].Embedding.Dimension() != 32 {
		t.Fatalf("unexpected theses: %+v", theses)
	}
}
