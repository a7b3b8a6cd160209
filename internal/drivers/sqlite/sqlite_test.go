// ABOUTME: Tests for the SQLite connector against real temporary databases.
// ABOUTME: Covers DDL, DML, result shaping, schema inspection, and null handling.

package sqlite

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestConnector(t *testing.T) *Connector {
	t.Helper()
	conn, err := New(filepath.Join(t.TempDir(), "test.db"), true)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestExecuteSQL(t *testing.T) {
	ctx := context.Background()
	conn := newTestConnector(t)

	t.Run("ddl returns rows_affected", func(t *testing.T) {
		res, err := conn.ExecuteSQL(ctx, "CREATE TABLE events (id INTEGER PRIMARY KEY, kind TEXT, note TEXT)")
		require.NoError(t, err)
		assert.Equal(t, []string{"rows_affected"}, res.Fields)
	})

	t.Run("insert reports affected rows", func(t *testing.T) {
		res, err := conn.ExecuteSQL(ctx, "INSERT INTO events (kind, note) VALUES ('click', 'a'), ('view', NULL)")
		require.NoError(t, err)
		require.Len(t, res.Rows, 1)
		assert.Equal(t, int64(2), res.Rows[0]["rows_affected"])
	})

	t.Run("select returns scanned rows in column order", func(t *testing.T) {
		res, err := conn.ExecuteSQL(ctx, "SELECT id, kind, note FROM events ORDER BY id")
		require.NoError(t, err)

		assert.Equal(t, []string{"id", "kind", "note"}, res.Fields)
		require.Len(t, res.Rows, 2)
		assert.Equal(t, "click", res.Rows[0]["kind"])
		assert.Equal(t, "a", res.Rows[0]["note"])
		assert.Nil(t, res.Rows[1]["note"], "SQL NULL must map to nil")
	})

	t.Run("empty result set has fields but no rows", func(t *testing.T) {
		res, err := conn.ExecuteSQL(ctx, "SELECT kind FROM events WHERE id = -1")
		require.NoError(t, err)
		assert.Equal(t, []string{"kind"}, res.Fields)
		assert.Empty(t, res.Rows)
	})

	t.Run("invalid sql surfaces the driver error", func(t *testing.T) {
		_, err := conn.ExecuteSQL(ctx, "SELECT * FROM no_such_table")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no_such_table")
	})
}

func TestShowSchema(t *testing.T) {
	ctx := context.Background()
	conn := newTestConnector(t)

	t.Run("empty database yields empty schema", func(t *testing.T) {
		schema, err := conn.ShowSchema(ctx)
		require.NoError(t, err)
		assert.Empty(t, schema)
	})

	t.Run("user tables appear with their ddl", func(t *testing.T) {
		_, err := conn.ExecuteSQL(ctx, "CREATE TABLE users (id INTEGER PRIMARY KEY, email TEXT NOT NULL)")
		require.NoError(t, err)
		_, err = conn.ExecuteSQL(ctx, "CREATE TABLE sessions (token TEXT PRIMARY KEY)")
		require.NoError(t, err)

		schema, err := conn.ShowSchema(ctx)
		require.NoError(t, err)

		require.Contains(t, schema, "users")
		require.Contains(t, schema, "sessions")
		assert.True(t, strings.HasPrefix(schema["users"], "CREATE TABLE"))
		assert.Contains(t, schema["users"], "email")
	})
}

func TestAllowWrites(t *testing.T) {
	writable, err := New(filepath.Join(t.TempDir(), "w.db"), true)
	require.NoError(t, err)
	defer writable.Close()
	assert.True(t, writable.AllowWrites())

	readonly, err := New(filepath.Join(t.TempDir(), "r.db"), false)
	require.NoError(t, err)
	defer readonly.Close()
	assert.False(t, readonly.AllowWrites())
}

func TestNewCreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deep", "test.db")
	conn, err := New(path, false)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.ExecuteSQL(context.Background(), "SELECT 1")
	assert.NoError(t, err)
}
