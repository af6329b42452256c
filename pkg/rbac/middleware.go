package rbac

import (
	"context"
	"errors"
	"net/http"

	"github.com/platinummonkey/assessor/pkg/contextkeys"
	"github.com/platinummonkey/assessor/pkg/domainerr"
	"github.com/platinummonkey/assessor/pkg/httputil"
	"github.com/platinummonkey/assessor/pkg/observability"
)

// ErrNoPrincipal is returned by resolvers when the request is anonymous
var ErrNoPrincipal = errors.New("no authenticated principal")

// PrincipalResolver builds the acting principal for a request from
// server-side state only.
type PrincipalResolver interface {
	ResolvePrincipal(r *http.Request) (Principal, error)
}

// PermissionMiddleware gates routes on ServerEnforced checks
type PermissionMiddleware struct {
	enforcer *Enforcer
	resolver PrincipalResolver
	logger   *observability.Logger
}

// NewPermissionMiddleware creates a new permission middleware
func NewPermissionMiddleware(enforcer *Enforcer, resolver PrincipalResolver, logger *observability.Logger) *PermissionMiddleware {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &PermissionMiddleware{enforcer: enforcer, resolver: resolver, logger: logger.WithComponent("rbac")}
}

// RequirePermission rejects requests whose principal lacks p
func (pm *PermissionMiddleware) RequirePermission(p Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, err := pm.resolver.ResolvePrincipal(r)
			if errors.Is(err, ErrNoPrincipal) {
				httputil.WriteUnauthorized(w, "authentication required")
				return
			}
			if err != nil {
				pm.logger.WithError(err).Error("failed to resolve principal")
				httputil.WriteDomainError(w, domainerr.StoreFailure("rbac.RequirePermission", err))
				return
			}

			decision, err := pm.enforcer.Authorize(r.Context(), principal, p)
			if err != nil {
				pm.logger.WithError(err).WithField("permission", string(p)).Error("permission check failed")
				httputil.WriteDomainError(w, err)
				return
			}
			if !decision.Allowed {
				httputil.WriteForbidden(w, "insufficient permissions")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
		})
	}
}

// WithPrincipal stores principal on the context
func WithPrincipal(ctx context.Context, principal Principal) context.Context {
	return context.WithValue(ctx, contextkeys.PrincipalKey, principal)
}

// PrincipalFromContext returns the principal stored by RequirePermission
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	principal, ok := ctx.Value(contextkeys.PrincipalKey).(Principal)
	return principal, ok
}
