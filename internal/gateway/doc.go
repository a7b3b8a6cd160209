// Package gateway dispatches SQL operations to registered connectors behind
// a safety gate.
//
// # Overview
//
// The gateway sits between the tool surface and the connectors. Given a
// resource name and a SQL statement it resolves the connector through the
// registry, classifies the statement, applies the write-authorization
// policy, and forwards the call.
//
// # Classification
//
// Classification is purely lexical: the statement is trimmed and its first
// token compared case-insensitively against SELECT. Anything else counts as
// mutating. This is a deliberate constraint, not an attempt at SQL
// parsing - a SELECT buried inside a CTE-prefixed write or a
// multi-statement batch is classified solely by its first token.
//
// # Authorization
//
// Two independent policies gate mutating statements:
//
//   - The connector's allow_writes flag gates capability. A read-only
//     connector rejects every mutating statement with ErrWriteNotPermitted
//     before the connector is invoked.
//   - An optional Confirmer gates intent. When configured, each mutating
//     statement against a write-enabled connector prompts for confirmation
//     naming the resource and the full statement; rejection yields
//     ErrUserRejected. Without a Confirmer, allow_writes alone suffices.
//
// The flag is always checked first, so a confirmation prompt is only ever
// shown for statements the flag would permit.
//
// # Usage
//
//	gw, err := gateway.New(gateway.Config{Registry: reg, Confirmer: c})
//	res, err := gw.ExecuteQuery(ctx, "analytics", "SELECT * FROM events")
//	schema, err := gw.DescribeSchema(ctx, "analytics")
//	listing := gw.DescribeAvailableResources()
package gateway
