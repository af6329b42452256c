package auth

import (
	"errors"
	"net/http"

	"github.com/platinummonkey/assessor/pkg/httputil"
	"github.com/platinummonkey/assessor/pkg/observability"
)

// Middleware rejects requests without a valid identity and stores the
// identity on the request context.
func Middleware(authenticator Authenticator, logger *observability.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	logger = logger.WithComponent("auth")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := authenticator.Authenticate(r)
			if errors.Is(err, ErrUnauthenticated) {
				httputil.WriteUnauthorized(w, "authentication required")
				return
			}
			if err != nil {
				logger.WithError(err).Debug("rejected credentials")
				httputil.WriteUnauthorized(w, "invalid credentials")
				return
			}

			ctx := WithIdentity(r.Context(), identity)
			next.ServeHTTP(w, r.WithContext(observability.WithLogger(ctx, logger.WithField("user_id", identity.UserID))))
		})
	}
}
