// Package dispatch implements the load dispatcher. Callers submit loan
// requests; the dispatcher publishes each one on the topic named by its kind,
// waits for the worker's reply and returns it to the caller. Workers reach it
// over a server stream for requests and a unary call for replies.
package dispatch
