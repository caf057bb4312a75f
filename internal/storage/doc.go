// Package storage holds the record store's authoritative book records in
// memory and persists the full record set through a Persister after every
// update, so an acknowledged write survives a crash.
package storage
