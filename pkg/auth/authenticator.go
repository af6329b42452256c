package auth

import (
	"errors"
	"net/http"
	"strings"
)

// Authenticator extracts an Identity from a request. Implementations return
// ErrUnauthenticated when the request carries none of their credentials.
type Authenticator interface {
	Authenticate(r *http.Request) (Identity, error)
}

// Chain tries each authenticator in order and returns the first identity.
// A credential that is present but invalid stops the chain.
type Chain []Authenticator

// Authenticate implements Authenticator
func (c Chain) Authenticate(r *http.Request) (Identity, error) {
	for _, a := range c {
		identity, err := a.Authenticate(r)
		if errors.Is(err, ErrUnauthenticated) {
			continue
		}
		return identity, err
	}
	return Identity{}, ErrUnauthenticated
}

// Trusted identity headers set by an authenticating proxy
const (
	HeaderUserID = "X-Assessor-User"
	HeaderEmail  = "X-Assessor-Email"
	HeaderName   = "X-Assessor-Name"
)

// HeaderAuthenticator trusts identity headers. Only use it behind a proxy
// that strips these headers from client requests, or in development.
type HeaderAuthenticator struct{}

// Authenticate implements Authenticator
func (HeaderAuthenticator) Authenticate(r *http.Request) (Identity, error) {
	userID := strings.TrimSpace(r.Header.Get(HeaderUserID))
	if userID == "" {
		return Identity{}, ErrUnauthenticated
	}
	identity := Identity{
		UserID: userID,
		Email:  strings.TrimSpace(r.Header.Get(HeaderEmail)),
		Name:   strings.TrimSpace(r.Header.Get(HeaderName)),
	}
	if !identity.Valid() {
		return Identity{}, errors.New("identity headers require both user and email")
	}
	return identity, nil
}

// bearerToken extracts the token from "Authorization: Bearer <token>"
func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}
