package service

import (
	"context"
	"fmt"

	"moneyrag/internal/models"
	"moneyrag/internal/repository"

	"go.uber.org/zap"
)

// IndexService maintains the session's vector collection. Rebuild is
// destructive: the collection always reflects the relational rows exactly.
type IndexService struct {
	provider LLMProvider
	txRepo   *repository.TransactionRepository
	vecRepo  *repository.VectorRepository
	logger   *zap.Logger
}

func NewIndexService(provider LLMProvider, txRepo *repository.TransactionRepository, vecRepo *repository.VectorRepository, logger *zap.Logger) *IndexService {
	return &IndexService{
		provider: provider,
		txRepo:   txRepo,
		vecRepo:  vecRepo,
		logger:   logger,
	}
}

// Rebuild drops and recreates the vector collection from the current
// transaction set and returns the number of indexed records. An empty
// corpus is models.ErrEmptyCorpus; the session must not advance to chat.
func (s *IndexService) Rebuild(ctx context.Context) (int, error) {
	transactions, err := s.txRepo.GetAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load transactions: %w", err)
	}
	if len(transactions) == 0 {
		return 0, models.ErrEmptyCorpus
	}

	// The embedding dimension belongs to the model, probe it instead of
	// hard-coding per provider.
	probe, err := s.provider.Embed(ctx, "test")
	if err != nil {
		return 0, fmt.Errorf("failed to probe embedding dimension: %w", err)
	}
	dim := len(probe)

	if err := s.vecRepo.Recreate(ctx, dim); err != nil {
		return 0, fmt.Errorf("failed to recreate vector collection: %w", err)
	}

	records := make([]*models.VectorRecord, 0, len(transactions))
	for _, tx := range transactions {
		text := composeEmbeddingText(tx)
		embedding, err := s.provider.Embed(ctx, text)
		if err != nil {
			return 0, fmt.Errorf("failed to embed transaction %s: %w", tx.ID, err)
		}
		records = append(records, &models.VectorRecord{
			ID:              tx.ID.String(),
			Text:            text,
			Embedding:       embedding,
			Amount:          tx.Amount,
			Category:        tx.Category,
			TransactionDate: tx.TransactionDate.Format("2006-01-02 15:04:05"),
		})
	}

	if err := s.vecRepo.InsertBatch(ctx, records); err != nil {
		return 0, fmt.Errorf("failed to store vector records: %w", err)
	}

	s.logger.Info("Rebuilt vector index",
		zap.Int("records", len(records)),
		zap.Int("dimension", dim),
	)

	return len(records), nil
}

// composeEmbeddingText renders one transaction for embedding. Enrichment is
// appended only when it carries real information.
func composeEmbeddingText(tx *models.Transaction) string {
	text := fmt.Sprintf("%s (%s)", tx.Description, tx.Category)
	if tx.EnrichedInfo != "" && tx.EnrichedInfo != models.UnknownEnrichment {
		text += " - " + tx.EnrichedInfo
	}
	return text
}
