package rbac

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/assessor/pkg/domainerr"
	"github.com/platinummonkey/assessor/pkg/httputil"
	"github.com/platinummonkey/assessor/pkg/observability"
)

// RoleView is the JSON form of a role
type RoleView struct {
	Role  Role   `json:"role"`
	Label string `json:"label"`
	Rank  int    `json:"rank"`
}

// ViewOf describes a registered role. Unknown roles are reported with a
// zero rank and their raw name as label.
func ViewOf(r Role) RoleView {
	label, err := Label(r)
	if err != nil {
		label = string(r)
	}
	rank, _ := Rank(r)
	return RoleView{Role: r, Label: label, Rank: rank}
}

// ViewsOf describes each role in order
func ViewsOf(roles []Role) []RoleView {
	views := make([]RoleView, 0, len(roles))
	for _, r := range roles {
		views = append(views, ViewOf(r))
	}
	return views
}

// Handlers exposes role assignment over HTTP
type Handlers struct {
	assigner   *Assigner
	roles      RoleSource
	middleware *PermissionMiddleware
	logger     *observability.Logger
}

// NewHandlers creates new RBAC handlers
func NewHandlers(assigner *Assigner, roles RoleSource, middleware *PermissionMiddleware, logger *observability.Logger) *Handlers {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &Handlers{assigner: assigner, roles: roles, middleware: middleware, logger: logger.WithComponent("rbac")}
}

// RegisterRoutes registers the role assignment routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	manageUsers := h.middleware.RequirePermission(PermManageUsers)
	manageRoles := h.middleware.RequirePermission(PermManageRoles)

	router.Handle("/admin/roles", manageUsers(http.HandlerFunc(h.ListRoles))).Methods("GET")
	router.Handle("/admin/users/{id}/roles", manageUsers(http.HandlerFunc(h.GetUserRoles))).Methods("GET")
	router.Handle("/admin/users/{id}/roles", manageRoles(http.HandlerFunc(h.AssignRole))).Methods("POST")
	router.Handle("/admin/users/{id}/roles/{role}", manageRoles(http.HandlerFunc(h.RevokeRole))).Methods("DELETE")
}

// ListRoles returns the full role registry
func (h *Handlers) ListRoles(w http.ResponseWriter, r *http.Request) {
	_ = httputil.WriteSuccess(w, map[string]interface{}{"roles": ViewsOf(AllRoles())})
}

// GetUserRoles returns the roles held by a user
func (h *Handlers) GetUserRoles(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	roles, err := h.roles.GetRolesForUser(r.Context(), userID)
	if err != nil {
		h.logger.WithError(err).WithField("user_id", userID).Error("failed to load user roles")
		httputil.WriteDomainError(w, domainerr.StoreFailure("rbac.GetUserRoles", err))
		return
	}

	_ = httputil.WriteSuccess(w, map[string]interface{}{
		"user_id": userID,
		"roles":   ViewsOf(SortByRank(roles)),
	})
}

type assignRequest struct {
	Role string `json:"role"`
}

// AssignRole grants a role to a user
func (h *Handlers) AssignRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	var req assignRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	role, err := ParseRole(req.Role)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	if err := h.assigner.Assign(r.Context(), principal, userID, role); err != nil {
		h.logFailure(err, "assign", userID, role)
		httputil.WriteDomainError(w, err)
		return
	}

	_ = httputil.WriteCreated(w, map[string]interface{}{"user_id": userID, "role": ViewOf(role)})
}

// RevokeRole removes a role from a user
func (h *Handlers) RevokeRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	name, ok := httputil.ParsePathStringOrError(w, r, "role")
	if !ok {
		return
	}
	role, err := ParseRole(name)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	if err := h.assigner.Revoke(r.Context(), principal, userID, role); err != nil {
		h.logFailure(err, "revoke", userID, role)
		httputil.WriteDomainError(w, err)
		return
	}

	httputil.WriteNoContent(w)
}

func (h *Handlers) logFailure(err error, op, userID string, role Role) {
	log := h.logger.WithError(err).WithFields(map[string]interface{}{
		"op":      op,
		"user_id": userID,
		"role":    string(role),
	})
	if domainerr.UserVisible(err) {
		log.Info("role change rejected")
		return
	}
	log.Error("role change failed")
}
