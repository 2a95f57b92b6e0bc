package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/forPelevin/clipscout/internal/logger"
	"github.com/forPelevin/clipscout/internal/ports/adapters/openai"
	"github.com/forPelevin/clipscout/internal/ports/adapters/openrouter"
	"github.com/forPelevin/clipscout/internal/types"
	"github.com/forPelevin/clipscout/internal/usecase"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"memory", Config{StoreDriver: DriverMemory}, false},
		{"postgres with url", Config{StoreDriver: DriverPostgres, DatabaseURL: "postgres://x"}, false},
		{"postgres without url", Config{StoreDriver: DriverPostgres}, true},
		{"unknown driver", Config{StoreDriver: "sqlite"}, true},
		{"negative pool", Config{StoreDriver: DriverMemory, PGMaxConns: -1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr && err == nil {
				t.Fatalf("expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestConfigValidateLLM(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"openai", Config{LLMProvider: ProviderOpenAI, OpenAIAPIKey: "sk"}, false},
		{"openai no key", Config{LLMProvider: ProviderOpenAI}, true},
		{"openrouter default host", Config{LLMProvider: ProviderOpenRouter, OpenRouterAPIKey: "k"}, false},
		{"openrouter foreign host", Config{LLMProvider: ProviderOpenRouter, OpenRouterAPIKey: "k", OpenRouterBaseURL: "https://evil.example"}, true},
		{"openrouter no key", Config{LLMProvider: ProviderOpenRouter}, true},
		{"unknown", Config{LLMProvider: "llama"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.ValidateLLM()
			if tt.wantErr && err == nil {
				t.Fatalf("expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestConfigValidateIngest(t *testing.T) {
	if err := (Config{WhisperBin: "whisper"}).ValidateIngest(); err == nil {
		t.Fatalf("expected error without model")
	}
	if err := (Config{WhisperBin: "whisper", WhisperModel: "m.bin"}).ValidateIngest(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNewLLM_SelectsProvider(t *testing.T) {
	if _, ok := newLLM(Config{LLMProvider: ProviderOpenRouter}).(*openrouter.Adapter); !ok {
		t.Fatalf("expected openrouter adapter")
	}
	if _, ok := newLLM(Config{LLMProvider: ProviderOpenAI}).(*openai.Adapter); !ok {
		t.Fatalf("expected openai adapter")
	}
}

func TestOpen_MemoryWithQuotaFile(t *testing.T) {
	dir := t.TempDir()
	plans := filepath.Join(dir, "plans.yaml")
	if err := os.WriteFile(plans, []byte("plans:\n  free: 0\n"), 0o644); err != nil {
		t.Fatalf("write plans: %v", err)
	}

	app, err := Open(context.Background(), Config{
		StoreDriver:    DriverMemory,
		LLMProvider:    ProviderOpenAI,
		QuotaPlansFile: plans,
		Log:            logger.Nop(),
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer app.Close()

	if err := app.Migrate(context.Background()); err != nil {
		t.Fatalf("memory migrate must be a no-op: %v", err)
	}

	src, err := app.Store.CreateSource(context.Background(), types.Source{UserID: uuid.New()}, types.Transcript{Text: "hi"})
	if err != nil {
		t.Fatalf("create source: %v", err)
	}
	// a zero free limit rejects before any model call
	if _, err := app.Clips.GenerateClips(context.Background(), usecase.Input{SourceID: src.ID, UserID: src.UserID}); err == nil {
		t.Fatalf("expected quota error with a zero limit")
	}

	if list, err := app.Review.List(context.Background(), src.UserID, src.ID, ""); err != nil || len(list) != 0 {
		t.Fatalf("review list=%d err=%v", len(list), err)
	}

	n, err := app.Reconcile(context.Background(), time.Minute)
	if err != nil || n != 0 {
		t.Fatalf("reconcile n=%d err=%v", n, err)
	}
	if _, err := app.Reconcile(context.Background(), 0); err == nil {
		t.Fatalf("expected error for zero threshold")
	}
}

func TestOpen_BadQuotaFile(t *testing.T) {
	_, err := Open(context.Background(), Config{
		StoreDriver:    DriverMemory,
		QuotaPlansFile: filepath.Join(t.TempDir(), "missing.yaml"),
	})
	if err == nil {
		t.Fatalf("expected error for missing plans file")
	}
}
