package service

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"moneyrag/internal/models"
	"moneyrag/internal/repository"
	"moneyrag/pkg/sqlite"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "test.db"), zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func seedTransactions(t *testing.T, repo *repository.TransactionRepository, txs []*models.Transaction) {
	t.Helper()
	if err := repo.CreateBatch(context.Background(), txs); err != nil {
		t.Fatalf("failed to seed transactions: %v", err)
	}
}

func testTransaction(desc string, amount float64, category, enriched string) *models.Transaction {
	return &models.Transaction{
		ID:              uuid.New(),
		TransactionDate: time.Date(2011, 1, 5, 0, 0, 0, 0, time.UTC),
		Description:     desc,
		Amount:          amount,
		Category:        category,
		SourceFile:      "test.csv",
		EnrichedInfo:    enriched,
	}
}

func writeTestCSV(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write CSV: %v", err)
	}
	return path
}
