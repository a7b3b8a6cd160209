// ABOUTME: Connector contract for named database backends: SQL execution and schema introspection.
// ABOUTME: Includes the Unimplemented base that fails loudly instead of silently no-oping.

package connector

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotImplemented is returned by Unimplemented for any operation the
// embedding connector did not override.
var ErrNotImplemented = errors.New("operation not implemented")

// Row maps column names to values. Values are strings, numbers, or nil.
type Row map[string]any

// Result is the outcome of executing a SQL statement.
// Fields lists column names in result order; every key present in a Row
// also appears in Fields.
type Result struct {
	Fields []string `json:"fields"`
	Rows   []Row    `json:"rows"`
}

// Schema maps table names to their definitions, typically CREATE TABLE text.
type Schema map[string]string

// Connector is the contract every database backend must satisfy.
// Implementations own their connection state (handles, pools, credentials);
// the gateway never inspects it.
type Connector interface {
	// ExecuteSQL runs an arbitrary statement against the backing database.
	// Underlying failures (connectivity, syntax, database-layer permissions)
	// are returned as-is with a human-readable message. The contract makes
	// no guarantee about transactional atomicity.
	ExecuteSQL(ctx context.Context, query string) (*Result, error)

	// ShowSchema describes all tables visible to the connector.
	ShowSchema(ctx context.Context) (Schema, error)

	// AllowWrites reports whether mutating statements may proceed against
	// this connector. The value is fixed at construction; changing write
	// policy means replacing the registration.
	AllowWrites() bool
}

// Unimplemented is an embeddable base for partial connector implementations.
// Operations that are not overridden fail with ErrNotImplemented, so a
// misconfigured connector is distinguishable from one returning an empty
// result.
type Unimplemented struct{}

// ExecuteSQL always fails with ErrNotImplemented.
func (Unimplemented) ExecuteSQL(context.Context, string) (*Result, error) {
	return nil, fmt.Errorf("%w: ExecuteSQL", ErrNotImplemented)
}

// ShowSchema always fails with ErrNotImplemented.
func (Unimplemented) ShowSchema(context.Context) (Schema, error) {
	return nil, fmt.Errorf("%w: ShowSchema", ErrNotImplemented)
}

// AllowWrites defaults to read-only.
func (Unimplemented) AllowWrites() bool { return false }
