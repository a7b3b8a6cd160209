// ABOUTME: Tests for JWT generation and verification.
// ABOUTME: Covers round trips, capability claims, expiry, and wrong-secret rejection.

package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTRoundTrip(t *testing.T) {
	verifier := NewJWTVerifier([]byte("test-secret"))

	t.Run("generate and verify with capabilities", func(t *testing.T) {
		token, err := verifier.Generate("analyst-1", []string{"read", "write"}, time.Hour)
		require.NoError(t, err)

		sub, caps, err := verifier.Verify(token)
		require.NoError(t, err)
		assert.Equal(t, "analyst-1", sub)
		assert.Equal(t, []string{"read", "write"}, caps)
	})

	t.Run("no capabilities yields nil", func(t *testing.T) {
		token, err := verifier.Generate("reader", nil, time.Hour)
		require.NoError(t, err)

		sub, caps, err := verifier.Verify(token)
		require.NoError(t, err)
		assert.Equal(t, "reader", sub)
		assert.Empty(t, caps)
	})
}

func TestJWTVerifyRejections(t *testing.T) {
	verifier := NewJWTVerifier([]byte("test-secret"))

	t.Run("expired token", func(t *testing.T) {
		token, err := verifier.Generate("analyst-1", []string{"read"}, -time.Minute)
		require.NoError(t, err)

		_, _, err = verifier.Verify(token)
		assert.ErrorIs(t, err, ErrExpiredToken)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := NewJWTVerifier([]byte("other-secret"))
		token, err := other.Generate("analyst-1", []string{"read"}, time.Hour)
		require.NoError(t, err)

		_, _, err = verifier.Verify(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage token", func(t *testing.T) {
		_, _, err := verifier.Verify("not.a.jwt")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("missing sub claim", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"caps": []string{"read"},
			"exp":  time.Now().Add(time.Hour).Unix(),
		})
		signed, err := token.SignedString([]byte("test-secret"))
		require.NoError(t, err)

		_, _, err = verifier.Verify(signed)
		assert.ErrorIs(t, err, ErrMissingClaim)
	})

	t.Run("wrong signing method", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
			"sub": "attacker",
			"exp": time.Now().Add(time.Hour).Unix(),
		})
		signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, _, err = verifier.Verify(signed)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}
