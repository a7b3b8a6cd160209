// ABOUTME: Shared helpers for database/sql backed connectors.
// ABOUTME: Collects rows into the connector result shape with normalized values.

package drivers

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/2389/dbgate/internal/connector"
)

// ReturnsRows reports whether the statement should be run as a query
// (produces a result set) rather than an exec. Mirrors the gateway's
// lexical classification: only statements starting with SELECT qualify.
func ReturnsRows(query string) bool {
	trimmed := strings.TrimSpace(query)
	if len(trimmed) < 6 {
		return false
	}
	return strings.EqualFold(trimmed[:6], "SELECT")
}

// Collect drains rows into a Result. Fields preserve the column order of
// the result set; values are normalized so every cell is a string, a
// number, a bool, or nil.
func Collect(rows *sql.Rows) (*connector.Result, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("reading columns: %w", err)
	}

	result := &connector.Result{
		Fields: cols,
		Rows:   []connector.Row{},
	}

	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		row := make(connector.Row, len(cols))
		for i, col := range cols {
			row[col] = normalize(values[i])
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}

	return result, nil
}

// ExecResult builds the synthetic result returned for statements executed
// without a result set.
func ExecResult(rowsAffected int64) *connector.Result {
	return &connector.Result{
		Fields: []string{"rows_affected"},
		Rows:   []connector.Row{{"rows_affected": rowsAffected}},
	}
}

// normalize flattens driver-specific scan values into the types the
// connector contract promises.
func normalize(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case []byte:
		return string(val)
	case time.Time:
		return val.Format(time.RFC3339)
	default:
		return val
	}
}
