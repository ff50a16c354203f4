package service

import (
	"context"
	"errors"
	"testing"

	"moneyrag/internal/models"
	"moneyrag/internal/repository"

	"go.uber.org/zap"
)

func newTestIndex(t *testing.T) (*IndexService, *repository.TransactionRepository, *repository.VectorRepository, *scriptedProvider) {
	t.Helper()
	logger := zap.NewNop()
	db := openTestDB(t)
	txRepo := repository.NewTransactionRepository(db, logger)
	vecRepo := repository.NewVectorRepository(db, logger)
	provider := &scriptedProvider{}
	return NewIndexService(provider, txRepo, vecRepo, logger), txRepo, vecRepo, provider
}

func TestRebuildIndexesEveryTransaction(t *testing.T) {
	indexer, txRepo, vecRepo, _ := newTestIndex(t)
	seedTransactions(t, txRepo, []*models.Transaction{
		testTransaction("STARBUCKS COFFEE", 4.50, "Dining", "a coffee shop"),
		testTransaction("WALMART", 25.00, "Merchandise", "a retail chain"),
		testTransaction("SHELL OIL", 30.00, "Gasoline", ""),
	})

	indexed, err := indexer.Rebuild(context.Background())
	if err != nil {
		t.Fatalf("Rebuild() error = %v", err)
	}
	if indexed != 3 {
		t.Errorf("indexed = %d, want 3", indexed)
	}

	count, err := vecRepo.Count(context.Background())
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if count != 3 {
		t.Errorf("stored vectors = %d, want 3", count)
	}

	// The dimension comes from the probe embedding, not from config.
	dim, err := vecRepo.Dimension(context.Background())
	if err != nil {
		t.Fatalf("Dimension() error = %v", err)
	}
	if dim != 4 {
		t.Errorf("dimension = %d, want 4", dim)
	}
}

func TestRebuildReplacesPreviousIndex(t *testing.T) {
	indexer, txRepo, vecRepo, _ := newTestIndex(t)
	seedTransactions(t, txRepo, []*models.Transaction{
		testTransaction("STARBUCKS COFFEE", 4.50, "Dining", ""),
		testTransaction("WALMART", 25.00, "Merchandise", ""),
	})

	if _, err := indexer.Rebuild(context.Background()); err != nil {
		t.Fatalf("first Rebuild() error = %v", err)
	}

	seedTransactions(t, txRepo, []*models.Transaction{
		testTransaction("SHELL OIL", 30.00, "Gasoline", ""),
		testTransaction("TARGET", 60.00, "Merchandise", ""),
		testTransaction("AMC THEATRES", 15.00, "Entertainment", ""),
	})

	indexed, err := indexer.Rebuild(context.Background())
	if err != nil {
		t.Fatalf("second Rebuild() error = %v", err)
	}
	if indexed != 5 {
		t.Errorf("indexed = %d, want 5", indexed)
	}

	// A rebuild replaces the collection, it never stacks on the old one.
	count, _ := vecRepo.Count(context.Background())
	if count != 5 {
		t.Errorf("stored vectors = %d, want 5", count)
	}
}

func TestRebuildEmptyCorpus(t *testing.T) {
	indexer, _, _, provider := newTestIndex(t)

	_, err := indexer.Rebuild(context.Background())
	if !errors.Is(err, models.ErrEmptyCorpus) {
		t.Fatalf("Rebuild() error = %v, want models.ErrEmptyCorpus", err)
	}
	if provider.embedCalls != 0 {
		t.Errorf("embed calls on empty corpus = %d, want 0", provider.embedCalls)
	}
}

func TestRebuildSearchRoundTrip(t *testing.T) {
	indexer, txRepo, vecRepo, provider := newTestIndex(t)

	coffee := testTransaction("STARBUCKS COFFEE", 4.50, "Dining", "a coffee shop")
	movies := testTransaction("AMC THEATRES 0042", 15.00, "Entertainment", "")
	seedTransactions(t, txRepo, []*models.Transaction{coffee, movies})

	if _, err := indexer.Rebuild(context.Background()); err != nil {
		t.Fatalf("Rebuild() error = %v", err)
	}

	queryEmbedding, err := provider.Embed(context.Background(), composeEmbeddingText(coffee))
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	hits, err := vecRepo.SearchSimilar(context.Background(), queryEmbedding, 1)
	if err != nil {
		t.Fatalf("SearchSimilar() error = %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("hits = %d, want 1", len(hits))
	}

	hit := hits[0]
	if hit.Record.ID != coffee.ID.String() {
		t.Errorf("top hit ID = %s, want %s", hit.Record.ID, coffee.ID)
	}
	if hit.Record.Text != "STARBUCKS COFFEE (Dining) - a coffee shop" {
		t.Errorf("top hit text = %q", hit.Record.Text)
	}
	if hit.Record.Amount != 4.50 || hit.Record.Category != "Dining" {
		t.Errorf("top hit metadata = %+v", hit.Record)
	}
	if hit.Record.TransactionDate != "2011-01-05 00:00:00" {
		t.Errorf("top hit date = %q", hit.Record.TransactionDate)
	}
}

func TestComposeEmbeddingText(t *testing.T) {
	tests := []struct {
		name     string
		enriched string
		want     string
	}{
		{
			name:     "enrichment appended",
			enriched: "a coffee shop",
			want:     "STARBUCKS (Dining) - a coffee shop",
		},
		{
			name:     "unknown enrichment suppressed",
			enriched: models.UnknownEnrichment,
			want:     "STARBUCKS (Dining)",
		},
		{
			name:     "empty enrichment suppressed",
			enriched: "",
			want:     "STARBUCKS (Dining)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := testTransaction("STARBUCKS", 4.50, "Dining", tt.enriched)
			if got := composeEmbeddingText(tx); got != tt.want {
				t.Errorf("composeEmbeddingText() = %q, want %q", got, tt.want)
			}
		})
	}
}
