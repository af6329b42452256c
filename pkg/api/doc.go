// Package api serves the assessor HTTP API.
//
// Every /api/v1 route requires an authenticated identity. A browser or
// device is identified by the assessor_client cookie, issued on first
// contact; the server keeps one role context and one impersonation context
// per client in an expiring LRU cache.
//
// Role and impersonation state returned by the session endpoints is for
// rendering only. Admin routes resolve the acting principal from the
// store on every request: an open impersonation session makes the target
// user the subject, otherwise the client's active role narrows the caller.
//
// When a rate limiter is configured, role switches, impersonation start and
// end and the /admin role routes share one budget per user.
//
// Routes:
//
//	GET    /healthz
//	GET    /api/v1/session
//	POST   /api/v1/session/role                  {"role": "co_chair"}
//	POST   /api/v1/session/logout
//	GET    /api/v1/features
//	POST   /api/v1/impersonation                 {"user_id": "...", "email": "..."}
//	DELETE /api/v1/impersonation
//	POST   /api/v1/impersonation/refresh
//	GET    /api/v1/admin/roles
//	GET    /api/v1/admin/users/{id}/roles
//	POST   /api/v1/admin/users/{id}/roles        {"role": "chair"}
//	DELETE /api/v1/admin/users/{id}/roles/{role}
//	GET    /api/v1/admin/audit?actor_id=&action=&since=&limit=
package api
