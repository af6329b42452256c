package api

import (
	"errors"
	"net/http"

	"github.com/platinummonkey/assessor/pkg/auth"
	"github.com/platinummonkey/assessor/pkg/domainerr"
	"github.com/platinummonkey/assessor/pkg/httputil"
	"github.com/platinummonkey/assessor/pkg/impersonation"
	"github.com/platinummonkey/assessor/pkg/observability"
	"github.com/platinummonkey/assessor/pkg/rbac"
	"github.com/platinummonkey/assessor/pkg/rolecontext"
)

// SessionResponse is the body of GET /api/v1/session
type SessionResponse struct {
	ClientID      string                 `json:"client_id"`
	Roles         rolecontext.Snapshot   `json:"role_context"`
	Impersonation impersonation.Snapshot `json:"impersonation"`
	// Permissions granted by the active role. Display hints only.
	Permissions []rbac.Permission `json:"permissions"`
}

type switchRoleRequest struct {
	Role string `json:"role"`
}

// SwitchRoleResponse is the body of POST /api/v1/session/role
type SwitchRoleResponse struct {
	rolecontext.SwitchResult
	Roles rolecontext.Snapshot `json:"role_context"`
}

// getSession handles GET /api/v1/session. Held roles and the impersonation
// session are re-read so grants, revocations and sessions changed from
// another client show up here.
func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	client, err := s.freshClientFor(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	_ = httputil.WriteSuccess(w, s.sessionResponse(client))
}

// switchRole handles POST /api/v1/session/role
func (s *Server) switchRole(w http.ResponseWriter, r *http.Request) {
	var req switchRoleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	client, err := s.clientFor(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	result, err := client.roles.SwitchRole(r.Context(), rbac.Role(req.Role))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	_ = httputil.WriteSuccess(w, SwitchRoleResponse{SwitchResult: result, Roles: client.roles.Snapshot()})
}

// logout handles POST /api/v1/session/logout. The client's context is
// dropped after the preference is cleared.
func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	client, err := s.clientFor(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	client.roles.Logout(r.Context())
	s.clients.remove(client.id)
	httputil.WriteNoContent(w)
}

func (s *Server) sessionResponse(client *clientContext) SessionResponse {
	roles := client.roles.Snapshot()
	perms, err := rbac.PermissionsOf(roles.ActiveRole)
	if err != nil {
		perms = []rbac.Permission{}
	}
	return SessionResponse{
		ClientID:      client.id,
		Roles:         roles,
		Impersonation: client.impersonation.Snapshot(),
		Permissions:   perms,
	}
}

// writeError logs failures that are not the caller's fault and writes the
// classified response.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, auth.ErrUnauthenticated) {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	if !domainerr.UserVisible(err) {
		observability.FromContext(r.Context()).WithError(err).WithField("path", r.URL.Path).Error("request failed")
	}
	httputil.WriteDomainError(w, err)
}
