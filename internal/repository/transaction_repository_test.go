package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"moneyrag/internal/models"
	"moneyrag/pkg/sqlite"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func openTransactionRepo(t *testing.T) *TransactionRepository {
	t.Helper()
	db, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "test.db"), zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewTransactionRepository(db, zap.NewNop())
}

func transactionAt(date time.Time, desc string, amount float64) *models.Transaction {
	return &models.Transaction{
		ID:              uuid.New(),
		TransactionDate: date,
		Description:     desc,
		Amount:          amount,
		Category:        "Dining",
		SourceFile:      "test.csv",
		EnrichedInfo:    "a coffee shop",
	}
}

func TestTransactionBatchRoundTrip(t *testing.T) {
	repo := openTransactionRepo(t)
	ctx := context.Background()

	want := transactionAt(time.Date(2011, 1, 5, 0, 0, 0, 0, time.UTC), "STARBUCKS", 4.50)
	if err := repo.CreateBatch(ctx, []*models.Transaction{want}); err != nil {
		t.Fatalf("CreateBatch() error = %v", err)
	}

	all, err := repo.GetAll(ctx)
	if err != nil {
		t.Fatalf("GetAll() error = %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("rows = %d, want 1", len(all))
	}

	got := all[0]
	if got.ID != want.ID {
		t.Errorf("ID = %s, want %s", got.ID, want.ID)
	}
	if !got.TransactionDate.Equal(want.TransactionDate) {
		t.Errorf("date = %v, want %v", got.TransactionDate, want.TransactionDate)
	}
	if got.Description != want.Description || got.Amount != want.Amount {
		t.Errorf("row = %+v, want %+v", got, want)
	}
	if got.Category != want.Category || got.SourceFile != want.SourceFile || got.EnrichedInfo != want.EnrichedInfo {
		t.Errorf("metadata = %+v, want %+v", got, want)
	}
}

func TestTransactionGetAllOrdersByDate(t *testing.T) {
	repo := openTransactionRepo(t)
	ctx := context.Background()

	err := repo.CreateBatch(ctx, []*models.Transaction{
		transactionAt(time.Date(2011, 3, 1, 0, 0, 0, 0, time.UTC), "LATER", 1),
		transactionAt(time.Date(2011, 1, 1, 0, 0, 0, 0, time.UTC), "EARLIER", 1),
		transactionAt(time.Date(2011, 2, 1, 0, 0, 0, 0, time.UTC), "MIDDLE", 1),
	})
	if err != nil {
		t.Fatalf("CreateBatch() error = %v", err)
	}

	all, err := repo.GetAll(ctx)
	if err != nil {
		t.Fatalf("GetAll() error = %v", err)
	}

	var got []string
	for _, tx := range all {
		got = append(got, tx.Description)
	}
	want := []string{"EARLIER", "MIDDLE", "LATER"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestTransactionCreateBatchEmpty(t *testing.T) {
	repo := openTransactionRepo(t)
	ctx := context.Background()

	if err := repo.CreateBatch(ctx, nil); err != nil {
		t.Fatalf("CreateBatch(nil) error = %v", err)
	}

	count, err := repo.Count(ctx)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if count != 0 {
		t.Errorf("count = %d, want 0", count)
	}
}
