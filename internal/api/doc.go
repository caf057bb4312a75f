// Package api defines the JSON messages exchanged between the request
// source, dispatcher, workers and record stores, and the gRPC services that
// carry them.
//
// Every message travels as a google.protobuf.Struct whose fields are exactly
// the documented JSON object, so any gRPC client can speak the protocol
// without generated stubs. The service descriptors below are written by hand
// in the shape protoc-gen-go-grpc would emit.
package api
