package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"moneyrag/internal/models"

	"go.uber.org/zap"
)

const maxSampleRows = 10

// SchemaMapper infers how one CSV file maps onto the canonical transaction
// fields by showing the session's LLM the headers and a data sample.
type SchemaMapper struct {
	provider LLMProvider
	logger   *zap.Logger
}

func NewSchemaMapper(provider LLMProvider, logger *zap.Logger) *SchemaMapper {
	return &SchemaMapper{
		provider: provider,
		logger:   logger,
	}
}

const mappingPrompt = `Act as a financial data parser. Analyze this CSV data:
Filename: %s
Headers: %s
Sample Data: %s

TASK:
1. Map the CSV columns to standard fields: date, description, amount, and category.
2. Determine the 'sign_convention' for spending.

RULES:
- If the filename suggests a 'Discover' credit card, spending is usually POSITIVE.
- If the filename suggests a 'Chase' credit card, spending is usually NEGATIVE.

- Analyze the 'sign_convention' for spending (outflows):
    - Look at the sample data for known merchants or spending patterns.
    - If spending (like a restaurant or store) is NEGATIVE (e.g., -25.00), the convention is 'spending_is_negative'.
    - If spending is POSITIVE (e.g., 25.00), the convention is 'spending_is_positive'.

OUTPUT FORMAT (JSON ONLY):
{
"date_col": "column_name",
"desc_col": "column_name",
"amount_col": "column_name",
"category_col": "column_name or null",
"sign_convention": "spending_is_negative" | "spending_is_positive"
}`

// Map asks the LLM for a column mapping and validates it against the file's
// actual headers. Any failure surfaces as *models.MappingError; there is no
// retry here, the caller reports the file as failed.
func (m *SchemaMapper) Map(ctx context.Context, fileName string, headers []string, sample [][]string) (*models.ColumnMapping, error) {
	sampleData, err := renderSampleJSON(headers, sample)
	if err != nil {
		return nil, &models.MappingError{File: fileName, Reason: "failed to render sample data", Err: err}
	}

	prompt := fmt.Sprintf(mappingPrompt, fileName, strings.Join(headers, ", "), sampleData)

	content, err := CompleteText(ctx, m.provider, prompt, m.logger)
	if err != nil {
		return nil, &models.MappingError{File: fileName, Reason: "schema inference failed", Err: err}
	}

	jsonStr, err := extractJSONObject(content)
	if err != nil {
		return nil, &models.MappingError{File: fileName, Reason: "no JSON object in LLM response", Err: err}
	}

	var mapping models.ColumnMapping
	if err := json.Unmarshal([]byte(jsonStr), &mapping); err != nil {
		return nil, &models.MappingError{File: fileName, Reason: "malformed mapping JSON", Err: err}
	}
	// Models occasionally emit the literal string "null" instead of JSON null.
	if strings.EqualFold(mapping.CategoryCol, "null") || strings.EqualFold(mapping.CategoryCol, "none") {
		mapping.CategoryCol = ""
	}

	if err := mapping.Validate(headers); err != nil {
		var mappingErr *models.MappingError
		if errors.As(err, &mappingErr) {
			mappingErr.File = fileName
		}
		return nil, err
	}

	m.logger.Info("Inferred column mapping",
		zap.String("file", fileName),
		zap.String("date_col", mapping.DateCol),
		zap.String("desc_col", mapping.DescCol),
		zap.String("amount_col", mapping.AmountCol),
		zap.String("category_col", mapping.CategoryCol),
		zap.String("sign_convention", string(mapping.SignConvention)),
	)

	return &mapping, nil
}

// renderSampleJSON shows the sample rows as an array of header-keyed objects,
// capped at maxSampleRows.
func renderSampleJSON(headers []string, sample [][]string) (string, error) {
	if len(sample) > maxSampleRows {
		sample = sample[:maxSampleRows]
	}

	rows := make([]map[string]string, 0, len(sample))
	for _, record := range sample {
		row := make(map[string]string, len(headers))
		for i, header := range headers {
			if i < len(record) {
				row[header] = record[i]
			}
		}
		rows = append(rows, row)
	}

	data, err := json.Marshal(rows)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
