// ABOUTME: JWT token verification for authenticating MCP requests.
// ABOUTME: Uses HS256 signing with configurable secret; capabilities ride in the "caps" claim.

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrMissingClaim = errors.New("missing required claim")
)

// TokenVerifier defines the interface for token verification.
type TokenVerifier interface {
	Verify(tokenString string) (principalID string, capabilities []string, err error)
}

// JWTVerifier implements TokenVerifier using HS256 signed JWTs.
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifier creates a new JWT verifier with the given secret.
func NewJWTVerifier(secret []byte) *JWTVerifier {
	return &JWTVerifier{secret: secret}
}

// Verify validates the token and extracts the principal ID from the "sub"
// claim and capabilities from the "caps" claim.
func (v *JWTVerifier) Verify(tokenString string) (string, []string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", nil, ErrExpiredToken
		}
		return "", nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return "", nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", nil, ErrInvalidToken
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", nil, fmt.Errorf("%w: sub", ErrMissingClaim)
	}

	var caps []string
	if raw, ok := claims["caps"].([]any); ok {
		for _, c := range raw {
			if s, ok := c.(string); ok {
				caps = append(caps, s)
			}
		}
	}

	return sub, caps, nil
}

// Generate creates a new JWT token for the given principal ID and
// capabilities with expiration.
func (v *JWTVerifier) Generate(principalID string, capabilities []string, expiresIn time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":  principalID,
		"caps": capabilities,
		"iat":  now.Unix(),
		"exp":  now.Add(expiresIn).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}
