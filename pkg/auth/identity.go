package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/platinummonkey/assessor/pkg/contextkeys"
)

// ErrUnauthenticated is returned when a request carries no usable credentials
var ErrUnauthenticated = errors.New("unauthenticated")

// Identity is the authenticated human behind a request
type Identity struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Name   string `json:"name,omitempty"`
}

// Valid reports whether the identity has the fields every caller relies on
func (i Identity) Valid() bool {
	return strings.TrimSpace(i.UserID) != "" && strings.TrimSpace(i.Email) != ""
}

// WithIdentity stores identity on the context
func WithIdentity(ctx context.Context, identity Identity) context.Context {
	ctx = contextkeys.WithIdentity(ctx, identity)
	return contextkeys.WithUserID(ctx, identity.UserID)
}

// IdentityFromContext returns the identity set by Middleware
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(contextkeys.IdentityKey).(Identity)
	return identity, ok
}
