package models

import (
	"errors"
	"fmt"
)

// ErrEmptyCorpus is returned by the vector indexer when the relational store
// holds no transactions. It blocks chat readiness until ingestion succeeds.
var ErrEmptyCorpus = errors.New("no transactions found in database, ingest CSV files first")

// MappingError reports that a well-formed column mapping could not be
// produced for a file, or that the mapped data could not be parsed. It is
// surfaced per file and never aborts other files.
type MappingError struct {
	File   string
	Reason string
	Err    error
}

func (e *MappingError) Error() string {
	msg := "mapping failed"
	if e.File != "" {
		msg += " for " + e.File
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MappingError) Unwrap() error { return e.Err }

// PersistenceError reports a failed relational write. The file's batch is
// rolled back as a whole; previously ingested files remain valid.
type PersistenceError struct {
	File string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to persist transactions for %s: %v", e.File, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
