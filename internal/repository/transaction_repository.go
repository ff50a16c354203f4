package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"moneyrag/internal/models"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// dateLayout is the stored form of transaction_date. Kept SQL-friendly so
// the agent's date arithmetic (strftime, BETWEEN) works on raw text.
const dateLayout = "2006-01-02 15:04:05"

type TransactionRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewTransactionRepository(db *sql.DB, logger *zap.Logger) *TransactionRepository {
	return &TransactionRepository{
		db:     db,
		logger: logger,
	}
}

// CreateBatch appends one file's transactions in a single database
// transaction. Either every row lands or none does; the store stays
// append-only across files.
func (r *TransactionRepository) CreateBatch(ctx context.Context, transactions []*models.Transaction) error {
	if len(transactions) == 0 {
		return nil
	}

	builder := squirrel.Insert("transactions").
		Columns("id", "transaction_date", "description", "amount", "category", "source_file", "enriched_info").
		PlaceholderFormat(squirrel.Question)

	for _, tx := range transactions {
		builder = builder.Values(
			tx.ID.String(),
			tx.TransactionDate.Format(dateLayout),
			tx.Description,
			tx.Amount,
			tx.Category,
			tx.SourceFile,
			tx.EnrichedInfo,
		)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return err
	}

	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	if _, err := dbTx.ExecContext(ctx, query, args...); err != nil {
		if rbErr := dbTx.Rollback(); rbErr != nil {
			r.logger.Warn("Rollback failed", zap.Error(rbErr))
		}
		return err
	}

	return dbTx.Commit()
}

// GetAll returns the full transaction set ordered by date. The vector
// indexer reads through this to rebuild the collection.
func (r *TransactionRepository) GetAll(ctx context.Context) ([]*models.Transaction, error) {
	query, args, err := squirrel.Select("id", "transaction_date", "description", "amount", "category", "source_file", "enriched_info").
		From("transactions").
		OrderBy("transaction_date ASC").
		PlaceholderFormat(squirrel.Question).
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transactions []*models.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}

	return transactions, rows.Err()
}

func (r *TransactionRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM transactions").Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func scanTransaction(rows *sql.Rows) (*models.Transaction, error) {
	var (
		tx       models.Transaction
		id       string
		date     time.Time
		enriched sql.NullString
	)

	// The driver parses the DATETIME column into time.Time itself.
	if err := rows.Scan(&id, &date, &tx.Description, &tx.Amount, &tx.Category, &tx.SourceFile, &enriched); err != nil {
		return nil, err
	}

	parsedID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("bad transaction id %q: %w", id, err)
	}
	tx.ID = parsedID
	tx.TransactionDate = date
	tx.EnrichedInfo = enriched.String

	return &tx, nil
}
