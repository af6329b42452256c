// Package httputil collects the JSON response helpers, request parsing and
// generic middleware shared by the HTTP handlers.
//
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return
//	}
//	if err := manager.Start(ctx, req.UserID, req.Email); err != nil {
//		httputil.WriteDomainError(w, err)
//		return
//	}
//	httputil.WriteSuccess(w, snapshot)
package httputil
