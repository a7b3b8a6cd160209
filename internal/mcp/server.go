// ABOUTME: MCP-compatible HTTP server for external agents like Claude Code.
// ABOUTME: Implements Streamable HTTP transport (spec 2025-11-25) with session management.

package mcp

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/dbgate/internal/auth"
	"github.com/2389/dbgate/internal/connector"
	"github.com/2389/dbgate/internal/gateway"
	"github.com/2389/dbgate/internal/registry"
)

// Supported MCP protocol versions
var supportedProtocolVersions = map[string]bool{
	"2025-03-26": true,
	"2025-11-25": true,
}

// latestProtocolVersion is the version we advertise in initialize responses
const latestProtocolVersion = "2025-11-25"

// MaxRequestBodySize is the maximum allowed size for request bodies (1MB).
const MaxRequestBodySize = 1 << 20

// Capabilities carried by access tokens.
const (
	CapRead  = "read"
	CapWrite = "write"
)

// JSON-RPC 2.0 types

// JSONRPCRequest represents a JSON-RPC 2.0 request.
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// JSONRPCResponse represents a JSON-RPC 2.0 response.
type JSONRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *JSONRPCError   `json:"error,omitempty"`
}

// JSONRPCError represents a JSON-RPC 2.0 error object.
type JSONRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Standard JSON-RPC error codes
const (
	JSONRPCParseError     = -32700
	JSONRPCInvalidRequest = -32600
	JSONRPCMethodNotFound = -32601
	JSONRPCInvalidParams  = -32602
	JSONRPCInternalError  = -32603
)

// MCP-specific types

// MCPToolInfo represents an MCP tool definition.
type MCPToolInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// MCPListToolsResult is the result for tools/list.
type MCPListToolsResult struct {
	Tools []MCPToolInfo `json:"tools"`
}

// MCPCallToolParams are the params for tools/call.
type MCPCallToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// MCPCallToolResult is the result for tools/call.
type MCPCallToolResult struct {
	Content []MCPContent `json:"content"`
	IsError bool         `json:"isError,omitempty"`
}

// MCPContent represents content in a tool result.
type MCPContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// toolDefs lists the tools this server exposes.
var toolDefs = []MCPToolInfo{
	{
		Name:        "execute_sql",
		Description: "Execute a SQL statement against a named database resource. Statements not starting with SELECT are treated as mutating and pass through the write-authorization gate.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"resource": {"type": "string", "description": "Name of the registered database resource"},
				"sql": {"type": "string", "description": "The SQL statement to execute"}
			},
			"required": ["resource", "sql"]
		}`),
	},
	{
		Name:        "show_schema",
		Description: "Describe all tables visible to a named database resource. Always read-only.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"resource": {"type": "string", "description": "Name of the registered database resource"}
			},
			"required": ["resource"]
		}`),
	},
	{
		Name:        "list_resources",
		Description: "List the database resources available to this session.",
		InputSchema: json.RawMessage(`{"type": "object", "properties": {}}`),
	},
}

// mcpSession tracks an active MCP client session.
type mcpSession struct {
	id              string
	protocolVersion string
	capabilities    []string
	ownerToken      string // auth token used to verify session ownership on DELETE
	createdAt       time.Time
}

// sessionStore manages active MCP sessions (in-memory).
type sessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*mcpSession
}

func newSessionStore() *sessionStore {
	return &sessionStore{sessions: make(map[string]*mcpSession)}
}

func (s *sessionStore) create(protocolVersion string, caps []string, ownerToken string) *mcpSession {
	sess := &mcpSession{
		id:              uuid.New().String(),
		protocolVersion: protocolVersion,
		capabilities:    caps,
		ownerToken:      ownerToken,
		createdAt:       time.Now(),
	}
	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()
	return sess
}

func (s *sessionStore) get(id string) (*mcpSession, bool) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	return sess, ok
}

func (s *sessionStore) delete(id string) bool {
	s.mu.Lock()
	_, existed := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	return existed
}

// Config holds configuration for the MCP server.
type Config struct {
	Gateway       *gateway.Gateway
	Logger        *slog.Logger
	TokenVerifier auth.TokenVerifier
	TokenStore    *TokenStore // Static token auth (URL path or query param)
	RequireAuth   bool        // If true, reject requests without valid auth
	DefaultCaps   []string    // Capabilities to use when no auth is provided
}

// Server implements MCP-compatible HTTP endpoints for external agents.
// Conforms to MCP Streamable HTTP transport specification (2025-11-25).
type Server struct {
	gateway     *gateway.Gateway
	logger      *slog.Logger
	verifier    auth.TokenVerifier
	tokenStore  *TokenStore
	requireAuth bool
	defaultCaps []string
	sessions    *sessionStore
}

// NewServer creates a new MCP server with the given configuration.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Gateway == nil {
		return nil, errors.New("gateway is required")
	}
	if cfg.RequireAuth && cfg.TokenVerifier == nil && cfg.TokenStore == nil {
		return nil, errors.New("token verifier or token store required when auth is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var defaultCaps []string
	if len(cfg.DefaultCaps) > 0 {
		defaultCaps = make([]string, len(cfg.DefaultCaps))
		copy(defaultCaps, cfg.DefaultCaps)
	}

	return &Server{
		gateway:     cfg.Gateway,
		logger:      logger.With("component", "mcp"),
		verifier:    cfg.TokenVerifier,
		tokenStore:  cfg.TokenStore,
		requireAuth: cfg.RequireAuth,
		defaultCaps: defaultCaps,
		sessions:    newSessionStore(),
	}, nil
}

// RegisterRoutes registers the MCP endpoint on the given ServeMux.
// Supports both /mcp (bare) and /mcp/<token> (token-in-path) access patterns.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/mcp", s.handleMCP)
	mux.HandleFunc("/mcp/", s.handleMCP)
}

// handleMCP is the single MCP endpoint supporting POST, GET, and DELETE per
// the Streamable HTTP transport spec (2025-11-25).
func (s *Server) handleMCP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handlePost(w, r)
	case http.MethodGet:
		// We don't support server-initiated SSE streams
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
	case http.MethodDelete:
		s.handleDelete(w, r)
	default:
		w.Header().Set("Allow", "POST, GET, DELETE")
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
	}
}

// handleDelete terminates a session per the Streamable HTTP spec.
// Verifies the caller owns the session to prevent unauthorized termination.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get("Mcp-Session-Id")
	if sessionID == "" {
		http.Error(w, "Bad Request: missing Mcp-Session-Id", http.StatusBadRequest)
		return
	}

	sess, ok := s.sessions.get(sessionID)
	if !ok {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}

	if sess.ownerToken != "" {
		callerToken := s.extractOwnerToken(r)
		if callerToken != sess.ownerToken {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
	}

	s.sessions.delete(sessionID)
	s.logger.Info("MCP session terminated", "session_id", sessionID)
	w.WriteHeader(http.StatusNoContent)
}

// handlePost processes JSON-RPC messages sent via HTTP POST.
func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get("Mcp-Session-Id")
	protoVersion := r.Header.Get("Mcp-Protocol-Version")

	body, err := io.ReadAll(io.LimitReader(r.Body, MaxRequestBodySize+1))
	if err != nil {
		s.sendJSONRPCError(w, nil, JSONRPCParseError, "failed to read request body", nil)
		return
	}
	if int64(len(body)) > MaxRequestBodySize {
		s.sendJSONRPCError(w, nil, JSONRPCInvalidRequest, "request body too large", nil)
		return
	}

	var req JSONRPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.sendJSONRPCError(w, nil, JSONRPCParseError, "invalid JSON", nil)
		return
	}

	if req.JSONRPC != "2.0" {
		s.sendJSONRPCError(w, req.ID, JSONRPCInvalidRequest, "invalid JSON-RPC version", nil)
		return
	}

	isInitialize := req.Method == "initialize"
	isNotification := len(req.ID) == 0 || string(req.ID) == "null"

	// Validate protocol version header (not required on initialize)
	if !isInitialize && protoVersion != "" {
		if !supportedProtocolVersions[protoVersion] {
			http.Error(w, "Bad Request: unsupported MCP-Protocol-Version", http.StatusBadRequest)
			return
		}
	}

	// Validate session on non-initialize requests
	var caps []string
	if isInitialize {
		authCaps, authErr := s.extractCapabilities(r)
		if authErr != nil {
			if errors.Is(authErr, errInvalidToken) {
				s.sendJSONRPCError(w, nil, JSONRPCInvalidRequest, "invalid or expired token", nil)
				return
			}
			if s.requireAuth {
				s.sendJSONRPCError(w, nil, JSONRPCInvalidRequest, "authentication required", nil)
				return
			}
			authCaps = s.defaultCaps
		}
		caps = authCaps
	} else {
		if sessionID == "" {
			http.Error(w, "Bad Request: missing Mcp-Session-Id", http.StatusBadRequest)
			return
		}
		sess, ok := s.sessions.get(sessionID)
		if !ok {
			// Session expired or invalid - client must re-initialize
			http.Error(w, "Not Found", http.StatusNotFound)
			return
		}
		caps = sess.capabilities
	}

	s.logger.Debug("MCP request",
		"method", req.Method,
		"is_notification", isNotification,
		"session_id", sessionID,
	)

	// Handle notifications: accept and return HTTP 202 with no body
	if isNotification {
		if strings.HasPrefix(req.Method, "notifications/") {
			s.logger.Debug("accepted MCP notification", "method", req.Method)
		} else {
			s.logger.Warn("received notification for non-notification method", "method", req.Method)
		}
		w.WriteHeader(http.StatusAccepted)
		return
	}

	switch req.Method {
	case "initialize":
		s.handleInitialize(w, r, req, caps)
	case "tools/list":
		s.handleToolsList(w, req)
	case "tools/call":
		s.handleToolsCall(w, r, req, caps)
	default:
		s.sendJSONRPCError(w, req.ID, JSONRPCMethodNotFound, "method not found", nil)
	}
}

// handleInitialize handles the MCP initialize handshake and creates a session.
func (s *Server) handleInitialize(w http.ResponseWriter, r *http.Request, req JSONRPCRequest, caps []string) {
	// Derive an owner token from the request auth for session ownership
	// verification on DELETE.
	ownerToken := s.extractOwnerToken(r)

	sess := s.sessions.create(latestProtocolVersion, caps, ownerToken)

	s.logger.Info("MCP session created",
		"session_id", sess.id,
		"protocol_version", sess.protocolVersion,
	)

	w.Header().Set("Mcp-Session-Id", sess.id)

	result := map[string]any{
		"protocolVersion": latestProtocolVersion,
		"capabilities": map[string]any{
			"tools": map[string]any{},
		},
		"serverInfo": map[string]any{
			"name":    "dbgate",
			"version": "1.0.0",
		},
	}
	s.sendJSONRPCResult(w, req.ID, result)
}

// handleToolsList handles tools/list requests. All three tools are always
// advertised; write authorization happens at call time.
func (s *Server) handleToolsList(w http.ResponseWriter, req JSONRPCRequest) {
	result := MCPListToolsResult{Tools: toolDefs}

	s.logger.Debug("tools/list", "count", len(result.Tools))
	s.sendJSONRPCResult(w, req.ID, result)
}

// handleToolsCall handles tools/call requests.
func (s *Server) handleToolsCall(w http.ResponseWriter, r *http.Request, req JSONRPCRequest, caps []string) {
	var params MCPCallToolParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			s.sendJSONRPCError(w, req.ID, JSONRPCInvalidParams, "invalid params", nil)
			return
		}
	}

	if params.Name == "" {
		s.sendJSONRPCError(w, req.ID, JSONRPCInvalidParams, "tool name is required", nil)
		return
	}

	args := params.Arguments
	if len(args) == 0 || string(args) == "null" {
		args = json.RawMessage("{}")
	}

	requestID := uuid.New().String()
	s.logger.Debug("tools/call", "tool_name", params.Name, "request_id", requestID)

	switch params.Name {
	case "execute_sql":
		s.callExecuteSQL(w, r, req, args, caps, requestID)
	case "show_schema":
		s.callShowSchema(w, r, req, args, requestID)
	case "list_resources":
		s.callListResources(w, req)
	default:
		s.sendJSONRPCError(w, req.ID, JSONRPCInvalidParams, "tool not found", nil)
	}
}

type executeSQLInput struct {
	Resource string `json:"resource"`
	SQL      string `json:"sql"`
}

func (s *Server) callExecuteSQL(w http.ResponseWriter, r *http.Request, req JSONRPCRequest, args json.RawMessage, caps []string, requestID string) {
	var in executeSQLInput
	if err := json.Unmarshal(args, &in); err != nil {
		s.sendJSONRPCError(w, req.ID, JSONRPCInvalidParams, "invalid arguments", nil)
		return
	}

	// Token capability check rides in front of the gateway's own gate:
	// mutating statements need the write capability when auth is enforced.
	if s.requireAuth && gateway.Mutating(in.SQL) && !hasCapability(caps, CapWrite) {
		s.sendJSONRPCError(w, req.ID, JSONRPCInvalidRequest, "write capability required for mutating statements", nil)
		return
	}

	result, err := s.gateway.ExecuteQuery(r.Context(), in.Resource, in.SQL)
	if err != nil {
		s.sendToolError(w, req.ID, "execute_sql", requestID, err)
		return
	}

	s.sendToolResult(w, req.ID, result)
}

type showSchemaInput struct {
	Resource string `json:"resource"`
}

func (s *Server) callShowSchema(w http.ResponseWriter, r *http.Request, req JSONRPCRequest, args json.RawMessage, requestID string) {
	var in showSchemaInput
	if err := json.Unmarshal(args, &in); err != nil {
		s.sendJSONRPCError(w, req.ID, JSONRPCInvalidParams, "invalid arguments", nil)
		return
	}

	schema, err := s.gateway.DescribeSchema(r.Context(), in.Resource)
	if err != nil {
		s.sendToolError(w, req.ID, "show_schema", requestID, err)
		return
	}

	s.sendToolResult(w, req.ID, schema)
}

func (s *Server) callListResources(w http.ResponseWriter, req JSONRPCRequest) {
	out := map[string]any{
		"resources": s.gateway.Resources(),
		"summary":   s.gateway.DescribeAvailableResources(),
	}
	s.sendToolResult(w, req.ID, out)
}

// errInvalidToken is returned when a token is provided but invalid/expired.
// This is distinct from "no auth" - if a token was provided, we should
// reject invalid tokens rather than falling through to unauthenticated
// access.
var errInvalidToken = errors.New("invalid or expired token")

// extractCapabilities extracts capabilities from the request.
func (s *Server) extractCapabilities(r *http.Request) ([]string, error) {
	// First try token from URL path (e.g., /mcp/<token>)
	if pathToken := strings.TrimPrefix(r.URL.Path, "/mcp/"); pathToken != "" && pathToken != r.URL.Path {
		pathToken = strings.TrimRight(pathToken, "/")
		if strings.Contains(pathToken, "/") {
			return nil, errInvalidToken
		}
		if s.tokenStore != nil {
			if caps := s.tokenStore.GetCapabilities(pathToken); caps != nil {
				return caps, nil
			}
		}
		return nil, errInvalidToken
	}

	// Fall back to token query parameter
	if token := r.URL.Query().Get("token"); token != "" {
		if s.tokenStore != nil {
			if caps := s.tokenStore.GetCapabilities(token); caps != nil {
				return caps, nil
			}
		}
		return nil, errInvalidToken
	}

	// Fall back to Authorization header (for JWT-based auth)
	if s.verifier == nil {
		return nil, errors.New("no authentication provided")
	}

	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return nil, errors.New("missing authorization")
	}

	if !strings.HasPrefix(authHeader, "Bearer ") {
		return nil, errors.New("invalid authorization header format")
	}

	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == "" {
		return nil, errors.New("empty token")
	}

	_, caps, err := s.verifier.Verify(token)
	if err != nil {
		return nil, errInvalidToken
	}

	return caps, nil
}

// extractOwnerToken derives a stable identity string from the request's
// auth credentials. Used to bind sessions to their creator for ownership
// verification.
func (s *Server) extractOwnerToken(r *http.Request) string {
	if pathToken := strings.TrimPrefix(r.URL.Path, "/mcp/"); pathToken != "" && pathToken != r.URL.Path {
		return strings.TrimRight(pathToken, "/")
	}
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return ""
}

// hasCapability checks whether the capability set contains cap.
func hasCapability(caps []string, cap string) bool {
	for _, c := range caps {
		if c == cap {
			return true
		}
	}
	return false
}

// sendToolError maps gateway taxonomy errors onto the JSON-RPC surface.
// Connector failures become tool-result errors with the driver's message
// intact, so nothing is swallowed on the way to the client.
func (s *Server) sendToolError(w http.ResponseWriter, id json.RawMessage, toolName, requestID string, err error) {
	s.logger.Warn("tool execution failed",
		"tool_name", toolName,
		"request_id", requestID,
		"error", err,
	)

	switch {
	case errors.Is(err, gateway.ErrInvalidArgument), errors.Is(err, registry.ErrNotFound):
		s.sendJSONRPCError(w, id, JSONRPCInvalidParams, err.Error(), nil)
	case errors.Is(err, registry.ErrNotEnabled),
		errors.Is(err, gateway.ErrWriteNotPermitted),
		errors.Is(err, gateway.ErrUserRejected):
		s.sendJSONRPCError(w, id, JSONRPCInvalidRequest, err.Error(), nil)
	case errors.Is(err, connector.ErrNotImplemented):
		s.sendJSONRPCError(w, id, JSONRPCInternalError, err.Error(), nil)
	default:
		// Driver error: surface the message verbatim as a tool-result error.
		result := MCPCallToolResult{
			Content: []MCPContent{{Type: "text", Text: err.Error()}},
			IsError: true,
		}
		s.sendJSONRPCResult(w, id, result)
	}
}

// sendToolResult marshals v as the text content of a successful tool call.
func (s *Server) sendToolResult(w http.ResponseWriter, id json.RawMessage, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.sendJSONRPCError(w, id, JSONRPCInternalError, "failed to encode tool result", nil)
		return
	}

	result := MCPCallToolResult{
		Content: []MCPContent{{Type: "text", Text: string(data)}},
	}
	s.sendJSONRPCResult(w, id, result)
}

// sendJSONRPCResult sends a successful JSON-RPC response.
func (s *Server) sendJSONRPCResult(w http.ResponseWriter, id json.RawMessage, result any) {
	resp := JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Result:  result,
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Warn("failed to encode JSON-RPC response", "error", err)
	}
}

// sendJSONRPCError sends a JSON-RPC error response.
func (s *Server) sendJSONRPCError(w http.ResponseWriter, id json.RawMessage, code int, message string, data any) {
	resp := JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &JSONRPCError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Warn("failed to encode JSON-RPC error response", "error", err)
	}
}
