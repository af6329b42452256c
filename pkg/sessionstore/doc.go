// Package sessionstore persists role assignments, impersonation sessions and
// the audit trail.
//
// SQLStore is the production implementation on PostgreSQL. MemoryStore
// mirrors its rules for development mode and unit tests.
//
// Impersonation sessions have a fixed lifetime. Expiry is checked whenever a
// session is read, so an expired session is indistinguishable from one that
// was ended; the Janitor only tidies rows. A partial unique index keeps at
// most one open session per admin.
package sessionstore
