package models

// VectorRecord is one entry of the derived vector collection, keyed 1:1 to a
// Transaction at indexing time. The collection is always rebuilt wholesale
// from the relational store, never patched.
type VectorRecord struct {
	ID              string
	Text            string
	Embedding       []float32
	Amount          float64
	Category        string
	TransactionDate string
}

// SearchHit is a ranked semantic-search match.
type SearchHit struct {
	Record VectorRecord
	Score  float64
}
