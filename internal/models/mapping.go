package models

type SignConvention string

const (
	SpendingIsNegative SignConvention = "spending_is_negative"
	SpendingIsPositive SignConvention = "spending_is_positive"
)

// ColumnMapping is the inferred structure of one uploaded file: which
// columns hold the date, description, amount and (optionally) category, and
// which sign convention the source used for spending. Produced once per file
// by the schema mapper and consumed only by the normalizer for that file.
type ColumnMapping struct {
	DateCol        string         `json:"date_col"`
	DescCol        string         `json:"desc_col"`
	AmountCol      string         `json:"amount_col"`
	CategoryCol    string         `json:"category_col"`
	SignConvention SignConvention `json:"sign_convention"`
}

// Validate checks that the mapping is well formed against the file's actual
// headers: the three required columns must exist, the optional category
// column must exist when named, and the convention must be one of the two
// known values.
func (m *ColumnMapping) Validate(headers []string) error {
	known := make(map[string]struct{}, len(headers))
	for _, h := range headers {
		known[h] = struct{}{}
	}

	required := map[string]string{
		"date_col":   m.DateCol,
		"desc_col":   m.DescCol,
		"amount_col": m.AmountCol,
	}
	for field, col := range required {
		if col == "" {
			return &MappingError{Reason: "missing required field " + field}
		}
		if _, ok := known[col]; !ok {
			return &MappingError{Reason: field + " names unknown column " + col}
		}
	}

	if m.CategoryCol != "" {
		if _, ok := known[m.CategoryCol]; !ok {
			return &MappingError{Reason: "category_col names unknown column " + m.CategoryCol}
		}
	}

	if m.SignConvention != SpendingIsNegative && m.SignConvention != SpendingIsPositive {
		return &MappingError{Reason: "unknown sign_convention " + string(m.SignConvention)}
	}

	return nil
}
