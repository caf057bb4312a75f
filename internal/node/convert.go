package node

import (
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"loanpipe/internal/api"
)

// protoToStoreRequest decodes an incoming store request.
func protoToStoreRequest(pb *structpb.Struct) (api.StoreRequest, error) {
	var req api.StoreRequest
	if err := api.FromStruct(pb, &req); err != nil {
		return api.StoreRequest{}, status.Errorf(codes.InvalidArgument, "malformed store request: %v", err)
	}
	return req, nil
}

// resultToProto encodes a result for the wire.
func resultToProto(res api.Result) (*structpb.Struct, error) {
	pb, err := api.ToStruct(res)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode result: %v", err)
	}
	return pb, nil
}
