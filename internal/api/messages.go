package api

import (
	"loanpipe/internal/book"
)

// Store request types.
const (
	TypeGetRecord    = "GET_RECORD"
	TypeUpdateRecord = "UPDATE_RECORD"
)

// Result statuses.
const (
	StatusOK    = "OK"
	StatusError = "ERROR"
)

// PingISBN is a reserved key used to probe a store for liveness. It is never
// seeded, so a live store answers it with a not-found error.
const PingISBN = "__PING__"

// StoreRequest is a record store operation.
type StoreRequest struct {
	Type   string       `json:"type"`
	ISBN   string       `json:"isbn,omitempty"`
	Record *book.Record `json:"record,omitempty"`
}

// GetRecord builds a read for isbn.
func GetRecord(isbn string) StoreRequest {
	return StoreRequest{Type: TypeGetRecord, ISBN: isbn}
}

// UpdateRecord builds a full-record overwrite.
func UpdateRecord(rec *book.Record) StoreRequest {
	return StoreRequest{Type: TypeUpdateRecord, Record: rec}
}

// IsWrite reports whether the request mutates the store.
func (r StoreRequest) IsWrite() bool {
	return r.Type == TypeUpdateRecord
}

// Result is the reply shape shared by stores, workers and the dispatcher.
// ID echoes a dispatcher correlation id on worker replies.
type Result struct {
	Status  string       `json:"status"`
	Message string       `json:"message,omitempty"`
	Record  *book.Record `json:"record,omitempty"`
	ID      string       `json:"id,omitempty"`
}

// OK builds a success result.
func OK(message string, rec *book.Record) Result {
	return Result{Status: StatusOK, Message: message, Record: rec}
}

// Error builds a failure result.
func Error(message string) Result {
	return Result{Status: StatusError, Message: message}
}

// IsOK reports whether the result is a success.
func (r Result) IsOK() bool {
	return r.Status == StatusOK
}

// Subscription is the opening message of a dispatcher subscription stream.
type Subscription struct {
	Topics []book.Kind `json:"topics"`
}

// Ack is the dispatcher's acknowledgement of a worker reply.
var Ack = Result{Status: StatusOK, Message: "ACK"}
