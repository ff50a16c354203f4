package service

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// forbiddenSQLWords are rejected anywhere in the uppercased query, not just
// as statement prefixes.
var forbiddenSQLWords = []string{
	"INSERT", "UPDATE", "DELETE", "DROP", "ALTER", "CREATE", "REPLACE", "TRUNCATE",
}

// QueryTool is the read-only SQL boundary handed to the agent. Every outcome
// is a string: rejections, execution errors and results all flow back to the
// model as tool output, never as a Go error.
type QueryTool struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewQueryTool(db *sql.DB, logger *zap.Logger) *QueryTool {
	return &QueryTool{db: db, logger: logger}
}

// Run executes one query under the read-only gate.
func (t *QueryTool) Run(ctx context.Context, query string) string {
	queryUpper := strings.ToUpper(strings.TrimSpace(query))
	if !strings.HasPrefix(queryUpper, "SELECT") && !strings.HasPrefix(queryUpper, "PRAGMA") {
		return "Error: Only SELECT and PRAGMA queries are allowed"
	}
	for _, word := range forbiddenSQLWords {
		if strings.Contains(queryUpper, word) {
			return "Error: Query contains forbidden operation. Only SELECT queries allowed."
		}
	}

	rows, err := t.db.QueryContext(ctx, query)
	if err != nil {
		return "Error: " + err.Error()
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return "Error: " + err.Error()
	}

	lines := []string{strings.Join(columns, " | ")}
	count := 0
	for rows.Next() {
		values := make([]interface{}, len(columns))
		pointers := make([]interface{}, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return "Error: " + err.Error()
		}

		fields := make([]string, len(values))
		for i, value := range values {
			fields[i] = renderSQLValue(value)
		}
		lines = append(lines, strings.Join(fields, " | "))
		count++
	}
	if err := rows.Err(); err != nil {
		return "Error: " + err.Error()
	}

	if count == 0 {
		return "No results found"
	}

	t.logger.Debug("Executed agent SQL query",
		zap.String("query", query),
		zap.Int("rows", count),
	)

	return strings.Join(lines, "\n")
}

func renderSQLValue(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(v)
	case string:
		return v
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case time.Time:
		return v.Format("2006-01-02 15:04:05")
	default:
		return fmt.Sprintf("%v", v)
	}
}

// SchemaInfo renders the table layout for the system prompt. Failures here
// degrade the prompt, they do not fail the session.
func (t *QueryTool) SchemaInfo(ctx context.Context) string {
	rows, err := t.db.QueryContext(ctx, "SELECT name FROM sqlite_master WHERE type='table' ORDER BY name")
	if err != nil {
		t.logger.Warn("Failed to read schema info", zap.Error(err))
		return ""
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.logger.Warn("Failed to read schema info", zap.Error(err))
			return ""
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		t.logger.Warn("Failed to read schema info", zap.Error(err))
		return ""
	}

	var lines []string
	for _, table := range tables {
		lines = append(lines, "", "Table: "+table, "Columns:")

		colRows, err := t.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%q)", table))
		if err != nil {
			t.logger.Warn("Failed to read table info", zap.String("table", table), zap.Error(err))
			continue
		}
		for colRows.Next() {
			var (
				cid        int
				colName    string
				colType    string
				notNull    int
				defaultVal sql.NullString
				pk         int
			)
			if err := colRows.Scan(&cid, &colName, &colType, &notNull, &defaultVal, &pk); err != nil {
				break
			}
			lines = append(lines, fmt.Sprintf("  - %s (%s)", colName, colType))
		}
		colRows.Close()
	}

	return strings.Join(lines, "\n")
}
