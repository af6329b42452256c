// Package rolecontext holds the role state of one signed-in client: who the
// user is, which roles they hold, and which role currently drives the UI.
//
// A Manager is created per client instance by the HTTP layer and is never a
// process-wide singleton. Its verdicts are ClientHint only.
package rolecontext
