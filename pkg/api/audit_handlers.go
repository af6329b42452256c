package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/platinummonkey/assessor/pkg/audit"
	"github.com/platinummonkey/assessor/pkg/domainerr"
	"github.com/platinummonkey/assessor/pkg/httputil"
)

// listAudit handles GET /api/v1/admin/audit. Supported query parameters
// are actor_id, action, since (RFC3339) and limit.
func (s *Server) listAudit(w http.ResponseWriter, r *http.Request) {
	const op = "api.listAudit"

	q := r.URL.Query()
	filter := audit.Filter{
		ActorID: q.Get("actor_id"),
		Action:  audit.Action(q.Get("action")),
	}
	if since := q.Get("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			s.writeError(w, r, domainerr.Invalid(op, "since must be an RFC3339 timestamp"))
			return
		}
		filter.Since = t
	}
	if limit := q.Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 0 {
			s.writeError(w, r, domainerr.Invalid(op, "limit must be a non-negative integer"))
			return
		}
		filter.Limit = n
	}

	records, err := s.store.ListAuditRecords(r.Context(), filter)
	if err != nil {
		s.writeError(w, r, domainerr.StoreFailure(op, err))
		return
	}
	if records == nil {
		records = []audit.Record{}
	}
	_ = httputil.WriteSuccess(w, map[string]interface{}{
		"records": records,
		"limit":   filter.EffectiveLimit(),
	})
}
