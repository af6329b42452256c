package auth

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/go-jose/go-jose/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testIssuer   = "https://id.example.com"
	testClientID = "assessor"
)

type tokenSigner struct {
	key    *rsa.PrivateKey
	signer jose.Signer
	now    time.Time
}

func newTokenSigner(t *testing.T) *tokenSigner {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.RS256, Key: key}, (&jose.SignerOptions{}).WithType("JWT"))
	require.NoError(t, err)

	return &tokenSigner{key: key, signer: signer, now: time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)}
}

func (s *tokenSigner) sign(t *testing.T, claims map[string]interface{}) string {
	t.Helper()
	base := map[string]interface{}{
		"iss": testIssuer,
		"aud": testClientID,
		"iat": s.now.Unix(),
		"exp": s.now.Add(time.Hour).Unix(),
	}
	for k, v := range claims {
		base[k] = v
	}
	payload, err := json.Marshal(base)
	require.NoError(t, err)

	obj, err := s.signer.Sign(payload)
	require.NoError(t, err)
	raw, err := obj.CompactSerialize()
	require.NoError(t, err)
	return raw
}

func (s *tokenSigner) authenticator() *OIDCAuthenticator {
	keySet := &oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{&s.key.PublicKey}}
	verifier := oidc.NewVerifier(testIssuer, keySet, &oidc.Config{
		ClientID: testClientID,
		Now:      func() time.Time { return s.now },
	})
	return NewOIDCAuthenticatorWithVerifier(verifier)
}

func bearerRequest(token string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/session", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func TestOIDCAuthenticator_ValidToken(t *testing.T) {
	s := newTokenSigner(t)
	token := s.sign(t, map[string]interface{}{
		"sub":            "U1",
		"email":          "user@example.com",
		"email_verified": true,
		"name":           "Una User",
	})

	identity, err := s.authenticator().Authenticate(bearerRequest(token))
	require.NoError(t, err)
	assert.Equal(t, Identity{UserID: "U1", Email: "user@example.com", Name: "Una User"}, identity)
}

func TestOIDCAuthenticator_Rejections(t *testing.T) {
	s := newTokenSigner(t)
	a := s.authenticator()

	_, err := a.Authenticate(bearerRequest(""))
	assert.ErrorIs(t, err, ErrUnauthenticated)

	tests := []struct {
		name   string
		claims map[string]interface{}
	}{
		{"missing email", map[string]interface{}{"sub": "U1"}},
		{"unverified email", map[string]interface{}{"sub": "U1", "email": "u@example.com", "email_verified": false}},
		{"wrong audience", map[string]interface{}{"sub": "U1", "email": "u@example.com", "aud": "someone-else"}},
		{"expired", map[string]interface{}{"sub": "U1", "email": "u@example.com", "exp": s.now.Add(-time.Minute).Unix()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.Authenticate(bearerRequest(s.sign(t, tt.claims)))
			require.Error(t, err)
			assert.NotErrorIs(t, err, ErrUnauthenticated)
		})
	}

	t.Run("foreign signing key", func(t *testing.T) {
		other := newTokenSigner(t)
		_, err := a.Authenticate(bearerRequest(other.sign(t, map[string]interface{}{"sub": "U1", "email": "u@example.com"})))
		assert.Error(t, err)
	})
}

func TestNewOIDCAuthenticator_RequiresSettings(t *testing.T) {
	_, err := NewOIDCAuthenticator(context.Background(), "", "")
	assert.Error(t, err)
}
