// Package impersonation lets a super admin act as another user for a fixed
// period.
//
// Each admin gets its own Manager. Start creates a session in the session
// store, superseding any previous one; End records the exit and then ends
// the session; Refresh re-reads the store. The manager's cache only drives
// the UI banner. Server-side authorization always re-reads the active
// session from the store, so a stale cache can never widen privileges.
package impersonation
