// Package preference remembers which role a client last chose to act as.
//
// The value survives page reloads and process restarts when backed by
// Redis. It carries no authority: readers must check it against the
// user's held roles before use.
package preference
