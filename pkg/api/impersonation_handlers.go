package api

import (
	"net/http"

	"github.com/platinummonkey/assessor/pkg/httputil"
)

type startImpersonationRequest struct {
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
}

// startImpersonation handles POST /api/v1/impersonation
func (s *Server) startImpersonation(w http.ResponseWriter, r *http.Request) {
	var req startImpersonationRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	client, err := s.clientFor(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := client.impersonation.Start(r.Context(), req.UserID, req.Email); err != nil {
		s.writeError(w, r, err)
		return
	}
	_ = httputil.WriteCreated(w, client.impersonation.Snapshot())
}

// endImpersonation handles DELETE /api/v1/impersonation. The session is
// re-read first: it may have been started, ended or replaced from another
// client since this one last looked.
func (s *Server) endImpersonation(w http.ResponseWriter, r *http.Request) {
	client, err := s.clientFor(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := client.impersonation.Refresh(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := client.impersonation.End(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	_ = httputil.WriteSuccess(w, client.impersonation.Snapshot())
}

// refreshImpersonation handles POST /api/v1/impersonation/refresh
func (s *Server) refreshImpersonation(w http.ResponseWriter, r *http.Request) {
	client, err := s.clientFor(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := client.impersonation.Refresh(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	_ = httputil.WriteSuccess(w, client.impersonation.Snapshot())
}
