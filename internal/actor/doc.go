// Package actor implements the topic-bound workers that carry out loan
// requests. A worker fetches the book through its failover client, applies
// the lending rule for the request kind to a private copy, and writes the
// copy back only if the rule accepted it. Requests are handled one at a time
// in arrival order.
package actor
