package repository

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"moneyrag/internal/models"

	"github.com/Masterminds/squirrel"
	"go.uber.org/zap"
)

// VectorRepository manages the derived vector collection inside the session
// database. The collection is rebuilt wholesale on every indexing pass:
// Recreate drops everything, InsertBatch refills it. Embeddings are stored
// as little-endian float32 blobs and ranked in process by cosine similarity.
type VectorRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewVectorRepository(db *sql.DB, logger *zap.Logger) *VectorRepository {
	return &VectorRepository{
		db:     db,
		logger: logger,
	}
}

// Recreate replaces the collection with an empty one of the given
// dimensionality. The dimension comes from a probe embedding call, never
// from configuration.
func (r *VectorRepository) Recreate(ctx context.Context, dim int) error {
	if dim <= 0 {
		return fmt.Errorf("invalid embedding dimension %d", dim)
	}

	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	stmts := []string{
		`DROP TABLE IF EXISTS vectors`,
		`DROP TABLE IF EXISTS vector_meta`,
		`CREATE TABLE vectors (
			id               TEXT PRIMARY KEY,
			text             TEXT NOT NULL,
			embedding        BLOB NOT NULL,
			amount           REAL NOT NULL,
			category         TEXT NOT NULL,
			transaction_date TEXT NOT NULL
		)`,
		`CREATE TABLE vector_meta (dim INTEGER NOT NULL)`,
	}
	for _, stmt := range stmts {
		if _, err := dbTx.ExecContext(ctx, stmt); err != nil {
			dbTx.Rollback()
			return fmt.Errorf("failed to recreate vector collection: %w", err)
		}
	}

	if _, err := dbTx.ExecContext(ctx, `INSERT INTO vector_meta (dim) VALUES (?)`, dim); err != nil {
		dbTx.Rollback()
		return fmt.Errorf("failed to record collection dimension: %w", err)
	}

	if err := dbTx.Commit(); err != nil {
		return err
	}

	r.logger.Info("Vector collection recreated", zap.Int("dim", dim))
	return nil
}

func (r *VectorRepository) InsertBatch(ctx context.Context, records []*models.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}

	builder := squirrel.Insert("vectors").
		Columns("id", "text", "embedding", "amount", "category", "transaction_date").
		PlaceholderFormat(squirrel.Question)

	for _, rec := range records {
		builder = builder.Values(
			rec.ID,
			rec.Text,
			encodeEmbedding(rec.Embedding),
			rec.Amount,
			rec.Category,
			rec.TransactionDate,
		)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, query, args...)
	return err
}

// SearchSimilar ranks the whole collection against the query embedding and
// returns the topK closest records. Session-scale corpora make the brute
// force scan acceptable.
func (r *VectorRepository) SearchSimilar(ctx context.Context, embedding []float32, topK int) ([]*models.SearchHit, error) {
	dim, err := r.Dimension(ctx)
	if err != nil {
		return nil, err
	}
	if len(embedding) != dim {
		return nil, fmt.Errorf("query embedding has dimension %d, collection expects %d", len(embedding), dim)
	}

	query, args, err := squirrel.Select("id", "text", "embedding", "amount", "category", "transaction_date").
		From("vectors").
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

	var hits []*models.SearchHit
	for rows.Next() {
		var (
			rec  models.VectorRecord
			blob []byte
		)
		if err := rows.Scan(&rec.ID, &rec.Text, &blob, &rec.Amount, &rec.Category, &rec.TransactionDate); err != nil {
			return nil, err
		}
		rec.Embedding = decodeEmbedding(blob)
		hits = append(hits, &models.SearchHit{
			Record: rec,
			Score:  cosineSimilarity(embedding, rec.Embedding),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if topK > 0 && len(hits) > topK {
		hits = hits[:topK]
	}

	return hits, nil
}

func (r *VectorRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM vectors").Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// Dimension returns the collection's embedding dimensionality, or an error
// when no collection exists yet.
func (r *VectorRepository) Dimension(ctx context.Context) (int, error) {
	var dim int
	err := r.db.QueryRowContext(ctx, "SELECT dim FROM vector_meta LIMIT 1").Scan(&dim)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("vector collection not initialized")
	}
	if err != nil {
		return 0, err
	}
	return dim, nil
}

func encodeEmbedding(embedding []float32) []byte {
	buf := make([]byte, 4*len(embedding))
	for i, v := range embedding {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeEmbedding(blob []byte) []float32 {
	embedding := make([]float32, len(blob)/4)
	for i := range embedding {
		embedding[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return embedding
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i] * b[i])
		normA += float64(a[i] * a[i])
		normB += float64(b[i] * b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}
