package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"moneyrag/internal/models"
	"moneyrag/pkg/config"

	"go.uber.org/zap"
)

// testSessionConfig wires the openai provider because its constructor makes
// no network calls; nothing in these tests talks to a real backend.
func testSessionConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Provider: config.ProviderConfig{Name: "openai"},
		OpenAI: config.OpenAIConfig{
			APIKey:         "test-key",
			ChatModel:      "gpt-4o-mini",
			EmbeddingModel: "text-embedding-3-small",
		},
		Enrich: config.EnrichConfig{
			Concurrency:   2,
			Delay:         time.Millisecond,
			SearchTimeout: time.Second,
		},
		Agent:   config.AgentConfig{MaxToolRounds: 4},
		Vector:  config.VectorConfig{TopK: 3},
		Storage: config.StorageConfig{TempDir: t.TempDir()},
	}
}

func TestSessionLifecycle(t *testing.T) {
	svc := NewSessionService(testSessionConfig(t), zap.NewNop())
	ctx := context.Background()

	session, err := svc.Create(ctx, "", "", "")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if got, ok := svc.Get(session.ID); !ok || got != session {
		t.Errorf("Get(%s) = %v, %v", session.ID, got, ok)
	}
	if session.Provider.Name() != "openai" {
		t.Errorf("provider = %q, want openai", session.Provider.Name())
	}
	if _, err := os.Stat(filepath.Join(session.TempDir, "money_rag.db")); err != nil {
		t.Errorf("session database missing: %v", err)
	}
	if session.Ready() {
		t.Error("new session reports ready")
	}

	// Chat is blocked until files are ingested and indexed.
	if _, err := svc.Chat(ctx, session, "how much did I spend?"); !errors.Is(err, ErrSessionNotReady) {
		t.Errorf("Chat() error = %v, want ErrSessionNotReady", err)
	}

	svc.Cleanup(session)
	if _, ok := svc.Get(session.ID); ok {
		t.Error("session still registered after Cleanup")
	}
	if _, err := os.Stat(session.TempDir); !os.IsNotExist(err) {
		t.Errorf("session directory survived Cleanup: %v", err)
	}
}

func TestSessionCreateUnknownProvider(t *testing.T) {
	svc := NewSessionService(testSessionConfig(t), zap.NewNop())

	if _, err := svc.Create(context.Background(), "anthropic", "", ""); !errors.Is(err, ErrUnknownProvider) {
		t.Fatalf("Create() error = %v, want ErrUnknownProvider", err)
	}
}

func TestSessionSetupEmptyCorpus(t *testing.T) {
	svc := NewSessionService(testSessionConfig(t), zap.NewNop())
	ctx := context.Background()

	session, err := svc.Create(ctx, "", "", "")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	defer svc.Cleanup(session)

	result, err := svc.Setup(ctx, session, nil)
	if !errors.Is(err, models.ErrEmptyCorpus) {
		t.Fatalf("Setup() error = %v, want models.ErrEmptyCorpus", err)
	}
	if result.Ready || session.Ready() {
		t.Error("session became ready on an empty corpus")
	}
	if _, err := svc.Chat(ctx, session, "anything"); !errors.Is(err, ErrSessionNotReady) {
		t.Errorf("Chat() error = %v, want ErrSessionNotReady", err)
	}
}

func TestSessionCleanupAll(t *testing.T) {
	svc := NewSessionService(testSessionConfig(t), zap.NewNop())
	ctx := context.Background()

	first, err := svc.Create(ctx, "", "", "")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	second, err := svc.Create(ctx, "", "", "")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	svc.CleanupAll()

	for _, session := range []*Session{first, second} {
		if _, ok := svc.Get(session.ID); ok {
			t.Errorf("session %s still registered", session.ID)
		}
		if _, err := os.Stat(session.TempDir); !os.IsNotExist(err) {
			t.Errorf("session directory %s survived", session.TempDir)
		}
	}
}
