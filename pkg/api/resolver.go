package api

import (
	"net/http"

	"github.com/platinummonkey/assessor/pkg/auth"
	"github.com/platinummonkey/assessor/pkg/contextkeys"
	"github.com/platinummonkey/assessor/pkg/rbac"
)

// ResolvePrincipal builds the acting principal from server-side state. The
// impersonation session is read from the store on every call rather than
// from the client cache, so a session ended elsewhere stops applying at
// once. The active role comes from the client's role context.
func (s *Server) ResolvePrincipal(r *http.Request) (rbac.Principal, error) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		return rbac.Principal{}, rbac.ErrNoPrincipal
	}
	principal := rbac.Principal{ActorID: identity.UserID, ActorEmail: identity.Email}

	session, err := s.store.GetActiveImpersonationSession(r.Context(), identity.UserID)
	if err != nil {
		return rbac.Principal{}, err
	}
	if session != nil {
		principal.SubjectID = session.TargetUserID
		principal.SubjectEmail = session.TargetEmail
		return principal, nil
	}

	client, err := s.clients.get(r.Context(), contextkeys.GetClientID(r.Context()), identity, false)
	if err != nil {
		return rbac.Principal{}, err
	}
	principal.ActiveRole = client.roles.ActiveRole()
	return principal, nil
}
