// Package replication mirrors record store updates to a peer store.
// Mirroring is best effort: the local write is already durable when the peer
// is contacted, and a slow or failed peer is logged and counted, never
// reported to the caller.
package replication
