// Package resolver turns session claims into actor snapshots.
//
// A snapshot merges the static role table with dynamic permissions fetched
// from a DynamicStore. Until the fetch settles the snapshot is loading and
// every check returns Indeterminate, which callers treat as not allowed.
package resolver
