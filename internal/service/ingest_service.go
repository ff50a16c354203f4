package service

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"moneyrag/internal/models"
	"moneyrag/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// IngestService turns one raw CSV file into canonical transaction rows:
// schema mapping, merchant enrichment, normalization, then an atomic batch
// insert. Rows are append-only; re-ingesting a file duplicates its rows.
type IngestService struct {
	mapper   *SchemaMapper
	enricher *MerchantEnricher
	txRepo   *repository.TransactionRepository
	logger   *zap.Logger
}

func NewIngestService(mapper *SchemaMapper, enricher *MerchantEnricher, txRepo *repository.TransactionRepository, logger *zap.Logger) *IngestService {
	return &IngestService{
		mapper:   mapper,
		enricher: enricher,
		txRepo:   txRepo,
		logger:   logger,
	}
}

// IngestFile processes one CSV end to end and returns the number of rows
// written. Mapping and data problems surface as *models.MappingError, write
// problems as *models.PersistenceError; nothing is written unless every row
// of the file normalized cleanly.
func (s *IngestService) IngestFile(ctx context.Context, path string, cache *MerchantCache) (int, error) {
	fileName := filepath.Base(path)

	headers, records, err := readCSV(path)
	if err != nil {
		return 0, &models.MappingError{File: fileName, Reason: "failed to read CSV", Err: err}
	}
	if len(records) == 0 {
		s.logger.Warn("CSV has no data rows", zap.String("file", fileName))
		return 0, nil
	}

	sample := records
	if len(sample) > maxSampleRows {
		sample = sample[:maxSampleRows]
	}

	mapping, err := s.mapper.Map(ctx, fileName, headers, sample)
	if err != nil {
		return 0, err
	}

	columnIndex := make(map[string]int, len(headers))
	for i, h := range headers {
		columnIndex[h] = i
	}

	descriptions := make([]string, 0, len(records))
	for _, record := range records {
		descriptions = append(descriptions, cellValue(record, columnIndex, mapping.DescCol))
	}

	enrichments, err := s.enricher.EnrichAll(ctx, descriptions, cache)
	if err != nil {
		return 0, fmt.Errorf("enrichment aborted: %w", err)
	}

	transactions := make([]*models.Transaction, 0, len(records))
	for i, record := range records {
		tx, err := s.normalizeRow(record, columnIndex, mapping, fileName, enrichments)
		if err != nil {
			return 0, &models.MappingError{
				File:   fileName,
				Reason: fmt.Sprintf("row %d is malformed", i+2),
				Err:    err,
			}
		}
		transactions = append(transactions, tx)
	}

	if err := s.txRepo.CreateBatch(ctx, transactions); err != nil {
		return 0, &models.PersistenceError{File: fileName, Err: err}
	}

	s.logger.Info("Ingested CSV file",
		zap.String("file", fileName),
		zap.Int("rows", len(transactions)),
	)

	return len(transactions), nil
}

// normalizeRow builds one canonical transaction. The sign rule is applied
// exactly here and nowhere else: stored amounts are spending-positive.
func (s *IngestService) normalizeRow(record []string, columnIndex map[string]int, mapping *models.ColumnMapping, fileName string, enrichments map[string]string) (*models.Transaction, error) {
	rawDate := cellValue(record, columnIndex, mapping.DateCol)
	date, err := parseDate(rawDate)
	if err != nil {
		return nil, err
	}

	rawAmount := cellValue(record, columnIndex, mapping.AmountCol)
	amount, err := parseAmount(rawAmount)
	if err != nil {
		return nil, err
	}
	if mapping.SignConvention == models.SpendingIsNegative {
		amount = -amount
	}

	description := sanitizeUTF8(cellValue(record, columnIndex, mapping.DescCol))

	category := models.DefaultCategory
	if mapping.CategoryCol != "" {
		if v := strings.TrimSpace(cellValue(record, columnIndex, mapping.CategoryCol)); v != "" {
			category = sanitizeUTF8(v)
		}
	}

	return &models.Transaction{
		ID:              uuid.New(),
		TransactionDate: date,
		Description:     description,
		Amount:          amount,
		Category:        category,
		SourceFile:      fileName,
		EnrichedInfo:    enrichments[cellValue(record, columnIndex, mapping.DescCol)],
	}, nil
}

func cellValue(record []string, columnIndex map[string]int, column string) string {
	idx, ok := columnIndex[column]
	if !ok || idx >= len(record) {
		return ""
	}
	return record[idx]
}

// readCSV loads the whole file: first record is the header row, the rest are
// data rows. Ragged rows are tolerated, mapped columns missing from a short
// row read as empty.
func readCSV(path string) (headers []string, records [][]string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, nil, err
	}
	if len(rows) == 0 {
		return nil, nil, fmt.Errorf("empty CSV file")
	}

	headers = make([]string, len(rows[0]))
	for i, h := range rows[0] {
		headers[i] = strings.TrimSpace(h)
	}

	return headers, rows[1:], nil
}
