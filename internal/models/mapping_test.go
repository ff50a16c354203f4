package models

import (
	"errors"
	"testing"
)

func TestColumnMappingValidate(t *testing.T) {
	headers := []string{"Trans. Date", "Description", "Amount", "Category"}

	tests := []struct {
		name    string
		mapping ColumnMapping
		wantErr bool
	}{
		{
			name: "complete mapping",
			mapping: ColumnMapping{
				DateCol:        "Trans. Date",
				DescCol:        "Description",
				AmountCol:      "Amount",
				CategoryCol:    "Category",
				SignConvention: SpendingIsPositive,
			},
		},
		{
			name: "category is optional",
			mapping: ColumnMapping{
				DateCol:        "Trans. Date",
				DescCol:        "Description",
				AmountCol:      "Amount",
				SignConvention: SpendingIsNegative,
			},
		},
		{
			name: "missing required column",
			mapping: ColumnMapping{
				DateCol:        "Trans. Date",
				AmountCol:      "Amount",
				SignConvention: SpendingIsPositive,
			},
			wantErr: true,
		},
		{
			name: "unknown required column",
			mapping: ColumnMapping{
				DateCol:        "Posting Date",
				DescCol:        "Description",
				AmountCol:      "Amount",
				SignConvention: SpendingIsPositive,
			},
			wantErr: true,
		},
		{
			name: "unknown category column",
			mapping: ColumnMapping{
				DateCol:        "Trans. Date",
				DescCol:        "Description",
				AmountCol:      "Amount",
				CategoryCol:    "Type",
				SignConvention: SpendingIsPositive,
			},
			wantErr: true,
		},
		{
			name: "unknown sign convention",
			mapping: ColumnMapping{
				DateCol:        "Trans. Date",
				DescCol:        "Description",
				AmountCol:      "Amount",
				SignConvention: SignConvention("spending_is_weird"),
			},
			wantErr: true,
		},
		{
			name: "empty sign convention",
			mapping: ColumnMapping{
				DateCol:   "Trans. Date",
				DescCol:   "Description",
				AmountCol: "Amount",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.mapping.Validate(headers)
			if tt.wantErr {
				var mappingErr *MappingError
				if !errors.As(err, &mappingErr) {
					t.Fatalf("Validate() error = %v, want *MappingError", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate() error = %v", err)
			}
		})
	}
}

func TestMappingErrorMessage(t *testing.T) {
	err := &MappingError{File: "chase.csv", Reason: "row 3 is malformed", Err: errors.New("unparseable amount \"x\"")}
	want := `mapping failed for chase.csv: row 3 is malformed: unparseable amount "x"`
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
