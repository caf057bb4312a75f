// Package failover sends record store operations to a primary store and
// falls back to a secondary when the primary does not answer in time.
//
// Writes that only the secondary applied are queued in order and replayed
// onto the primary by a periodic resync once the primary answers a probe.
// Replay stops at the first entry the primary does not accept, leaving that
// entry and everything behind it queued for the next pass. Between the
// secondary write and its replay a read against the primary returns stale
// data; the system is eventually consistent, not linearizable.
//
// One mutex guards both connection handles and the queue, so requests and
// resync passes never overlap on a handle and each handle has at most one
// exchange in flight.
package failover
