// Package mcp exposes the gateway's database tools to external agents over
// the MCP Streamable HTTP transport.
//
// # Overview
//
// The server implements JSON-RPC 2.0 over HTTP POST with in-memory session
// management per the Streamable HTTP transport spec (2025-11-25). Three
// tools are exposed:
//
//	execute_sql    - run a SQL statement against a named resource
//	show_schema    - describe the tables visible to a named resource
//	list_resources - list the resource names available to the caller
//
// # Authorization
//
// Authentication is optional. When enabled, callers present either a static
// access token (URL path or query parameter, validated against the
// TokenStore) or a bearer JWT (validated by the TokenVerifier). Tokens
// carry capabilities: "read" admits the tools, "write" additionally admits
// mutating execute_sql statements. The gateway's own write gate
// (allow_writes flag plus optional confirmation) applies after the
// capability check, so a write-capable token still cannot mutate a
// read-only resource.
//
// # Error mapping
//
// Gateway taxonomy errors map onto the JSON-RPC surface: missing arguments
// and unknown resources become invalid-params errors; disabled resources,
// blocked writes, and user rejections become invalid-request errors with
// the taxonomy message; connector failures are surfaced verbatim as
// tool-result errors so the client sees what the database said.
package mcp
