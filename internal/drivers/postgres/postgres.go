// ABOUTME: PostgreSQL connector implementation using the pgx stdlib adapter.
// ABOUTME: Schema descriptions are synthesized from information_schema.columns.

package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/2389/dbgate/internal/connector"
	"github.com/2389/dbgate/internal/drivers"
)

// Connector is a PostgreSQL-backed database connector.
type Connector struct {
	connector.Unimplemented

	db          *sql.DB
	allowWrites bool
	logger      *slog.Logger
}

// New opens a connection pool for the given DSN and verifies connectivity.
func New(ctx context.Context, dsn string, allowWrites bool) (*Connector, error) {
	logger := slog.Default().With("component", "postgres")

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	logger.Info("postgres connector opened", "allow_writes", allowWrites)
	return &Connector{db: db, allowWrites: allowWrites, logger: logger}, nil
}

// ExecuteSQL runs the statement. SELECTs return the scanned result set;
// other statements return a synthetic rows_affected result.
func (c *Connector) ExecuteSQL(ctx context.Context, query string) (*connector.Result, error) {
	if !drivers.ReturnsRows(query) {
		res, err := c.db.ExecContext(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			affected = 0
		}
		return drivers.ExecResult(affected), nil
	}

	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	defer rows.Close()

	return drivers.Collect(rows)
}

// ShowSchema lists every table in the public schema with a synthesized
// CREATE TABLE description built from information_schema.
func (c *Connector) ShowSchema(ctx context.Context) (connector.Schema, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT table_name, column_name, data_type, is_nullable
		FROM information_schema.columns
		WHERE table_schema = 'public'
		ORDER BY table_name, ordinal_position`)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	defer rows.Close()

	type column struct {
		name     string
		dataType string
		nullable string
	}
	tables := make(map[string][]column)
	var order []string

	for rows.Next() {
		var table string
		var col column
		if err := rows.Scan(&table, &col.name, &col.dataType, &col.nullable); err != nil {
			return nil, fmt.Errorf("postgres: scanning schema row: %w", err)
		}
		if _, seen := tables[table]; !seen {
			order = append(order, table)
		}
		tables[table] = append(tables[table], col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}

	schema := make(connector.Schema, len(order))
	for _, table := range order {
		var b strings.Builder
		fmt.Fprintf(&b, "CREATE TABLE %s (\n", table)
		cols := tables[table]
		for i, col := range cols {
			fmt.Fprintf(&b, "  %s %s", col.name, col.dataType)
			if col.nullable == "NO" {
				b.WriteString(" NOT NULL")
			}
			if i < len(cols)-1 {
				b.WriteString(",")
			}
			b.WriteString("\n")
		}
		b.WriteString(")")
		schema[table] = b.String()
	}

	return schema, nil
}

// AllowWrites reports the write policy fixed at construction.
func (c *Connector) AllowWrites() bool { return c.allowWrites }

// Close releases the underlying connection pool.
func (c *Connector) Close() error {
	return c.db.Close()
}
