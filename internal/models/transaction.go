package models

import (
	"time"

	"github.com/google/uuid"
)

// Transaction is the canonical persisted record of one statement row.
// Amount carries a uniform sign regardless of the source file's convention:
// positive = spending (outflow), negative = payment/refund (inflow). Every
// downstream aggregation depends on this.
type Transaction struct {
	ID              uuid.UUID `db:"id"`
	TransactionDate time.Time `db:"transaction_date"`
	Description     string    `db:"description"`
	Amount          float64   `db:"amount"`
	Category        string    `db:"category"`
	SourceFile      string    `db:"source_file"`
	EnrichedInfo    string    `db:"enriched_info"`
}

// DefaultCategory is used when no category column was identified in the
// source file.
const DefaultCategory = "Uncategorized"

// UnknownEnrichment marks a merchant lookup that failed; it is stored but
// treated as absent by the vector indexer.
const UnknownEnrichment = "Unknown"
