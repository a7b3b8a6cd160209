// ABOUTME: SQLite connector implementation using modernc.org/sqlite.
// ABOUTME: Schema descriptions come straight from sqlite_master DDL.

package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/2389/dbgate/internal/connector"
	"github.com/2389/dbgate/internal/drivers"
)

// Connector is a SQLite-backed database connector. Parent directories are
// created on open and WAL mode is enabled for concurrent reads.
type Connector struct {
	connector.Unimplemented

	db          *sql.DB
	allowWrites bool
	logger      *slog.Logger
}

// New opens (or creates) the SQLite database at path.
func New(path string, allowWrites bool) (*Connector, error) {
	logger := slog.Default().With("component", "sqlite", "path", path)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	logger.Info("sqlite connector opened", "allow_writes", allowWrites)
	return &Connector{db: db, allowWrites: allowWrites, logger: logger}, nil
}

// ExecuteSQL runs the statement. SELECTs return the scanned result set;
// other statements return a synthetic rows_affected result.
func (c *Connector) ExecuteSQL(ctx context.Context, query string) (*connector.Result, error) {
	if !drivers.ReturnsRows(query) {
		res, err := c.db.ExecContext(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("sqlite: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			affected = 0
		}
		return drivers.ExecResult(affected), nil
	}

	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}
	defer rows.Close()

	return drivers.Collect(rows)
}

// ShowSchema returns the CREATE TABLE text for every user table.
func (c *Connector) ShowSchema(ctx context.Context) (connector.Schema, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT name, sql FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}
	defer rows.Close()

	schema := make(connector.Schema)
	for rows.Next() {
		var name string
		var ddl sql.NullString
		if err := rows.Scan(&name, &ddl); err != nil {
			return nil, fmt.Errorf("sqlite: scanning schema row: %w", err)
		}
		schema[name] = ddl.String
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}

	return schema, nil
}

// AllowWrites reports the write policy fixed at construction.
func (c *Connector) AllowWrites() bool { return c.allowWrites }

// Close releases the underlying connection pool.
func (c *Connector) Close() error {
	return c.db.Close()
}
