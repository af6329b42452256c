// Package auth establishes who is making a request.
//
// Two authenticators are provided:
//
//	// production: ID tokens from the identity provider
//	oidcAuth, err := auth.NewOIDCAuthenticator(ctx, issuerURL, clientID)
//
//	// development, or behind a proxy that owns the headers
//	headerAuth := auth.HeaderAuthenticator{}
//
// Combine them with Chain and install Middleware in front of every API
// route. Handlers then read the caller with IdentityFromContext.
//
// Authentication says nothing about privileges. Roles are always fetched
// from the session store at the point of use; see package rbac.
package auth
