// ABOUTME: Execution gateway: resolves connectors, classifies SQL, and enforces the write gate.
// ABOUTME: Also hosts the schema inspector and the available-resources exporter.

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/2389/dbgate/internal/connector"
	"github.com/2389/dbgate/internal/registry"
)

// ErrInvalidArgument indicates a required input was missing or empty.
var ErrInvalidArgument = errors.New("invalid argument")

// ErrWriteNotPermitted indicates a mutating statement was sent to a
// connector registered without allow_writes.
var ErrWriteNotPermitted = errors.New("write not permitted")

// ErrUserRejected indicates the confirmation prompt was declined.
var ErrUserRejected = errors.New("rejected by user")

// Config holds construction parameters for the Gateway.
type Config struct {
	Registry  *registry.Registry
	Confirmer Confirmer // optional; nil means allow_writes alone authorizes writes
	Logger    *slog.Logger
}

// Gateway dispatches execute/schema operations against registered
// resources. Invocations are independent and may run in parallel; the
// gateway imposes no cross-call ordering.
type Gateway struct {
	registry  *registry.Registry
	confirmer Confirmer
	logger    *slog.Logger
}

// New creates a Gateway. The registry is required.
func New(cfg Config) (*Gateway, error) {
	if cfg.Registry == nil {
		return nil, errors.New("registry is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		registry:  cfg.Registry,
		confirmer: cfg.Confirmer,
		logger:    logger.With("component", "gateway"),
	}, nil
}

// Mutating classifies a SQL statement lexically: anything whose first token
// is not SELECT (case-insensitive, leading whitespace ignored) counts as
// mutating.
func Mutating(sqlText string) bool {
	trimmed := strings.TrimSpace(sqlText)
	token := trimmed
	if i := strings.IndexFunc(trimmed, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '(' || r == ';'
	}); i >= 0 {
		token = trimmed[:i]
	}
	return !strings.EqualFold(token, "SELECT")
}

// ExecuteQuery resolves the named resource, classifies sqlText, applies the
// authorization policy for mutating statements, and forwards the statement
// to the connector. The statement text reaches the connector unmodified.
func (g *Gateway) ExecuteQuery(ctx context.Context, resource, sqlText string) (*connector.Result, error) {
	if resource == "" {
		return nil, fmt.Errorf("%w: resource name is required", ErrInvalidArgument)
	}
	if strings.TrimSpace(sqlText) == "" {
		return nil, fmt.Errorf("%w: sql statement is required", ErrInvalidArgument)
	}

	conn, err := g.registry.Lookup(resource)
	if err != nil {
		return nil, err
	}

	if Mutating(sqlText) {
		if err := g.authorizeWrite(ctx, resource, sqlText, conn); err != nil {
			return nil, err
		}
	}

	res, err := conn.ExecuteSQL(ctx, sqlText)
	if err != nil {
		g.logger.Warn("statement failed", "resource", resource, "error", err)
		return nil, err
	}

	g.logger.Debug("statement executed", "resource", resource, "rows", len(res.Rows))
	return res, nil
}

// authorizeWrite applies the two-stage gate: the static allow_writes flag
// first, then the interactive confirmation when a Confirmer is configured.
// The connector is never invoked when either stage refuses.
func (g *Gateway) authorizeWrite(ctx context.Context, resource, sqlText string, conn connector.Connector) error {
	if !conn.AllowWrites() {
		g.logger.Warn("mutating statement blocked", "resource", resource)
		return fmt.Errorf("%w: resource %q is read-only", ErrWriteNotPermitted, resource)
	}

	if g.confirmer == nil {
		return nil
	}

	msg := fmt.Sprintf("Execute mutating statement on %q?\n\n%s", resource, sqlText)
	ok, err := g.confirmer.RequestConfirmation(ctx, msg)
	if err != nil {
		return fmt.Errorf("requesting confirmation: %w", err)
	}
	if !ok {
		g.logger.Info("mutating statement rejected by user", "resource", resource)
		return fmt.Errorf("%w: mutating statement on %q", ErrUserRejected, resource)
	}
	return nil
}

// DescribeSchema resolves the named resource and returns its schema
// description. Schema inspection is read-only by contract, so no
// authorization gate applies.
func (g *Gateway) DescribeSchema(ctx context.Context, resource string) (connector.Schema, error) {
	if resource == "" {
		return nil, fmt.Errorf("%w: resource name is required", ErrInvalidArgument)
	}

	conn, err := g.registry.Lookup(resource)
	if err != nil {
		return nil, err
	}

	schema, err := conn.ShowSchema(ctx)
	if err != nil {
		g.logger.Warn("schema inspection failed", "resource", resource, "error", err)
		return nil, err
	}
	return schema, nil
}

// DescribeAvailableResources returns a human-readable listing of the usable
// resource names, for injection into upstream context. Never fails; an
// empty registry yields an explicit message rather than an empty string.
func (g *Gateway) DescribeAvailableResources() string {
	names := g.registry.List()
	if len(names) == 0 {
		return "No database resources are available."
	}

	var b strings.Builder
	b.WriteString("Available database resources:\n")
	for _, name := range names {
		b.WriteString("  - ")
		b.WriteString(name)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// Resources returns the usable resource names for structured consumers.
func (g *Gateway) Resources() []string {
	return g.registry.List()
}
