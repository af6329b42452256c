package api

import (
	"net/http"

	"github.com/platinummonkey/assessor/pkg/domainerr"
	"github.com/platinummonkey/assessor/pkg/gate"
	"github.com/platinummonkey/assessor/pkg/httputil"
	"github.com/platinummonkey/assessor/pkg/rbac"
)

// FeaturesResponse is the body of GET /api/v1/features
type FeaturesResponse struct {
	gate.View
	Impersonating bool   `json:"impersonating"`
	SubjectID     string `json:"subject_id,omitempty"`
}

// getFeatures handles GET /api/v1/features. While impersonating a user the
// view is computed for the target's highest role and measured against the
// admin's own held roles.
func (s *Server) getFeatures(w http.ResponseWriter, r *http.Request) {
	const op = "api.getFeatures"

	client, err := s.clientFor(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	snap := client.roles.Snapshot()

	session, err := s.store.GetActiveImpersonationSession(r.Context(), client.identity.UserID)
	if err != nil {
		s.writeError(w, r, domainerr.StoreFailure(op, err))
		return
	}
	if session == nil {
		_ = httputil.WriteSuccess(w, FeaturesResponse{View: s.catalog.Evaluate(snap.ActiveRole, snap.HeldRoles)})
		return
	}

	subjectRoles, err := s.store.GetRolesForUser(r.Context(), session.TargetUserID)
	if err != nil {
		s.writeError(w, r, domainerr.StoreFailure(op, err))
		return
	}
	active, _ := rbac.Highest(subjectRoles)
	_ = httputil.WriteSuccess(w, FeaturesResponse{
		View:          s.catalog.Evaluate(active, snap.HeldRoles),
		Impersonating: true,
		SubjectID:     session.TargetUserID,
	})
}
