// ABOUTME: MCP token store mapping static access tokens to capabilities.
// ABOUTME: Tokens come from configuration or are minted at runtime for sessions.

package mcp

import (
	"sync"

	"github.com/google/uuid"
)

// TokenStore manages MCP access tokens and their associated capabilities.
type TokenStore struct {
	mu     sync.RWMutex
	tokens map[string][]string // token -> capabilities
}

// NewTokenStore creates a new token store.
func NewTokenStore() *TokenStore {
	return &TokenStore{
		tokens: make(map[string][]string),
	}
}

// Add registers a pre-shared token (typically from configuration).
func (s *TokenStore) Add(token string, capabilities []string) {
	caps := make([]string, len(capabilities))
	copy(caps, capabilities)

	s.mu.Lock()
	s.tokens[token] = caps
	s.mu.Unlock()
}

// CreateToken generates a new random token for the given capabilities.
// Returns the token string that should be included in MCP URLs.
func (s *TokenStore) CreateToken(capabilities []string) string {
	token := uuid.New().String()
	s.Add(token, capabilities)
	return token
}

// GetCapabilities returns the capabilities for a token, or nil if not found.
func (s *TokenStore) GetCapabilities(token string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	caps, ok := s.tokens[token]
	if !ok {
		return nil
	}

	// Return a copy to prevent modification
	result := make([]string, len(caps))
	copy(result, caps)
	return result
}

// InvalidateToken removes a token from the store.
func (s *TokenStore) InvalidateToken(token string) {
	s.mu.Lock()
	delete(s.tokens, token)
	s.mu.Unlock()
}

// TokenCount returns the number of active tokens (for monitoring).
func (s *TokenStore) TokenCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tokens)
}
