package api

import (
	"net/http"

	"github.com/platinummonkey/assessor/pkg/domainerr"
	"github.com/platinummonkey/assessor/pkg/httputil"
	"github.com/platinummonkey/assessor/pkg/rbac"
)

// getUser handles GET /api/v1/admin/users/{id}. Admin tooling uses it to
// confirm an impersonation target's email before starting a session.
func (s *Server) getUser(w http.ResponseWriter, r *http.Request) {
	const op = "api.getUser"

	userID, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	user, err := s.store.GetUser(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, domainerr.StoreFailure(op, err))
		return
	}
	roles, err := s.store.GetRolesForUser(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, domainerr.StoreFailure(op, err))
		return
	}
	_ = httputil.WriteSuccess(w, map[string]interface{}{
		"user":  user,
		"roles": rbac.ViewsOf(rbac.SortByRank(roles)),
	})
}
