package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Schema for the canonical transaction table. Amounts are stored with a
// uniform sign convention: positive = spending, negative = payment/refund.
// The vector collection table is owned by its repository because it is
// dropped and recreated on every indexing pass.
const schema = `
CREATE TABLE IF NOT EXISTS transactions (
	id               TEXT PRIMARY KEY,
	transaction_date DATETIME NOT NULL,
	description      TEXT NOT NULL,
	amount           REAL NOT NULL,
	category         TEXT NOT NULL DEFAULT 'Uncategorized',
	source_file      TEXT NOT NULL,
	enriched_info    TEXT
);
`

// Open opens (creating if needed) the session database at path and applies
// the base schema.
func Open(ctx context.Context, path string, logger *zap.Logger) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	logger.Info("Session database ready", zap.String("path", path))

	return db, nil
}
