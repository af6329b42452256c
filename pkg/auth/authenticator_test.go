package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/assessor/pkg/contextkeys"
)

type staticAuthenticator struct {
	identity Identity
	err      error
}

func (s staticAuthenticator) Authenticate(*http.Request) (Identity, error) {
	return s.identity, s.err
}

func TestHeaderAuthenticator(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, err := HeaderAuthenticator{}.Authenticate(req)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	req.Header.Set(HeaderUserID, "U1")
	_, err = HeaderAuthenticator{}.Authenticate(req)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnauthenticated)

	req.Header.Set(HeaderEmail, "u1@example.com")
	identity, err := HeaderAuthenticator{}.Authenticate(req)
	require.NoError(t, err)
	assert.Equal(t, "U1", identity.UserID)
}

func TestChain(t *testing.T) {
	want := Identity{UserID: "U2", Email: "u2@example.com"}
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	identity, err := Chain{
		staticAuthenticator{err: ErrUnauthenticated},
		staticAuthenticator{identity: want},
	}.Authenticate(req)
	require.NoError(t, err)
	assert.Equal(t, want, identity)

	_, err = Chain{
		staticAuthenticator{err: errors.New("bad signature")},
		staticAuthenticator{identity: want},
	}.Authenticate(req)
	assert.EqualError(t, err, "bad signature")

	_, err = Chain{}.Authenticate(req)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestBearerToken(t *testing.T) {
	tests := map[string]struct {
		header string
		want   string
		ok     bool
	}{
		"missing":    {"", "", false},
		"basic":      {"Basic abc", "", false},
		"empty":      {"Bearer   ", "", false},
		"valid":      {"Bearer abc.def", "abc.def", true},
		"lowercased": {"bearer abc", "abc", true},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			got, ok := bearerToken(req)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMiddleware(t *testing.T) {
	var seen Identity
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = IdentityFromContext(r.Context())
		assert.Equal(t, seen.UserID, contextkeys.GetUserID(r.Context()))
		w.WriteHeader(http.StatusNoContent)
	})

	t.Run("anonymous", func(t *testing.T) {
		rr := httptest.NewRecorder()
		Middleware(staticAuthenticator{err: ErrUnauthenticated}, nil)(next).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("invalid", func(t *testing.T) {
		rr := httptest.NewRecorder()
		Middleware(staticAuthenticator{err: errors.New("expired")}, nil)(next).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Contains(t, rr.Body.String(), "invalid credentials")
	})

	t.Run("authenticated", func(t *testing.T) {
		rr := httptest.NewRecorder()
		want := Identity{UserID: "U1", Email: "u1@example.com"}
		Middleware(staticAuthenticator{identity: want}, nil)(next).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusNoContent, rr.Code)
		assert.Equal(t, want, seen)
	})
}
