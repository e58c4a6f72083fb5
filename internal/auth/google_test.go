package auth

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testClientID = "client-123.apps.googleusercontent.com"

func signIDToken(t *testing.T, key *rsa.PrivateKey, claims jwt.MapClaims) string {
	t.Helper()
	raw, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	require.NoError(t, err)
	return raw
}

func baseClaims() jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"iss":            "https://accounts.google.com",
		"aud":            testClientID,
		"sub":            "1234567890",
		"iat":            now.Unix(),
		"exp":            now.Add(time.Hour).Unix(),
		"email":          "jane@example.com",
		"email_verified": true,
		"name":           "Jane Doe",
		"picture":        "https://example.com/jane.png",
	}
}

func TestGoogleVerifier(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	other, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	keys := &oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{&key.PublicKey}}
	v := newGoogleVerifier(keys, testClientID)
	ctx := context.Background()

	t.Run("valid", func(t *testing.T) {
		p, err := v.Verify(ctx, signIDToken(t, key, baseClaims()))
		require.NoError(t, err)
		assert.Equal(t, "1234567890", p.Subject)
		assert.Equal(t, "jane@example.com", p.Email)
		assert.Equal(t, "Jane Doe", p.Name)
		assert.Equal(t, "https://example.com/jane.png", p.Picture)
	})

	t.Run("short issuer form", func(t *testing.T) {
		c := baseClaims()
		c["iss"] = "accounts.google.com"
		_, err := v.Verify(ctx, signIDToken(t, key, c))
		assert.NoError(t, err)
	})

	rejects := map[string]func(c jwt.MapClaims){
		"wrong audience":   func(c jwt.MapClaims) { c["aud"] = "someone-else" },
		"expired":          func(c jwt.MapClaims) { c["exp"] = time.Now().Add(-time.Hour).Unix() },
		"foreign issuer":   func(c jwt.MapClaims) { c["iss"] = "https://evil.example.com" },
		"no email":         func(c jwt.MapClaims) { delete(c, "email") },
		"unverified email": func(c jwt.MapClaims) { c["email_verified"] = false },
	}
	for name, mutate := range rejects {
		t.Run(name, func(t *testing.T) {
			c := baseClaims()
			mutate(c)
			_, err := v.Verify(ctx, signIDToken(t, key, c))
			assert.Error(t, err)
		})
	}

	t.Run("wrong signing key", func(t *testing.T) {
		_, err := v.Verify(ctx, signIDToken(t, other, baseClaims()))
		assert.Error(t, err)
	})

	t.Run("not configured", func(t *testing.T) {
		_, err := newGoogleVerifier(keys, "").Verify(ctx, signIDToken(t, key, baseClaims()))
		assert.ErrorIs(t, err, ErrGoogleDisabled)
	})
}
