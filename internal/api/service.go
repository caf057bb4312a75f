package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// Fully-qualified method names.
const (
	RecordStoreExchange = "/loanpipe.v1.RecordStore/Exchange"
	DispatcherSubmit    = "/loanpipe.v1.Dispatcher/Submit"
	DispatcherReply     = "/loanpipe.v1.Dispatcher/Reply"
	DispatcherSubscribe = "/loanpipe.v1.Dispatcher/Subscribe"
)

// RecordStoreServer is implemented by record store nodes. Exchange takes a
// StoreRequest and answers a Result.
type RecordStoreServer interface {
	Exchange(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// RegisterRecordStoreServer registers srv on s.
func RegisterRecordStoreServer(s grpc.ServiceRegistrar, srv RecordStoreServer) {
	s.RegisterService(&recordStoreServiceDesc, srv)
}

func recordStoreExchangeHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RecordStoreServer).Exchange(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: RecordStoreExchange,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(RecordStoreServer).Exchange(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

var recordStoreServiceDesc = grpc.ServiceDesc{
	ServiceName: "loanpipe.v1.RecordStore",
	HandlerType: (*RecordStoreServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Exchange",
			Handler:    recordStoreExchangeHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "loanpipe/v1/loanpipe.proto",
}

// RecordStoreClient is the client side of RecordStoreServer.
type RecordStoreClient interface {
	Exchange(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type recordStoreClient struct {
	cc grpc.ClientConnInterface
}

// NewRecordStoreClient wraps a client connection.
func NewRecordStoreClient(cc grpc.ClientConnInterface) RecordStoreClient {
	return &recordStoreClient{cc: cc}
}

func (c *recordStoreClient) Exchange(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, RecordStoreExchange, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// DispatcherServer is implemented by the load dispatcher.
//
// Submit takes a book.Request from a caller and answers the worker's Result.
// Subscribe takes a Subscription and streams every request published on the
// subscribed topics. Reply takes a worker Result and answers Ack.
type DispatcherServer interface {
	Submit(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Reply(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Subscribe(*structpb.Struct, DispatcherSubscribeServer) error
}

// DispatcherSubscribeServer is the server side of a subscription stream.
type DispatcherSubscribeServer interface {
	Send(*structpb.Struct) error
	grpc.ServerStream
}

type dispatcherSubscribeServer struct {
	grpc.ServerStream
}

func (x *dispatcherSubscribeServer) Send(m *structpb.Struct) error {
	return x.ServerStream.SendMsg(m)
}

// RegisterDispatcherServer registers srv on s.
func RegisterDispatcherServer(s grpc.ServiceRegistrar, srv DispatcherServer) {
	s.RegisterService(&dispatcherServiceDesc, srv)
}

func dispatcherSubmitHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DispatcherServer).Submit(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: DispatcherSubmit,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(DispatcherServer).Submit(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func dispatcherReplyHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DispatcherServer).Reply(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: DispatcherReply,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(DispatcherServer).Reply(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func dispatcherSubscribeHandler(srv interface{}, stream grpc.ServerStream) error {
	m := new(structpb.Struct)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(DispatcherServer).Subscribe(m, &dispatcherSubscribeServer{stream})
}

var dispatcherServiceDesc = grpc.ServiceDesc{
	ServiceName: "loanpipe.v1.Dispatcher",
	HandlerType: (*DispatcherServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Submit",
			Handler:    dispatcherSubmitHandler,
		},
		{
			MethodName: "Reply",
			Handler:    dispatcherReplyHandler,
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Subscribe",
			Handler:       dispatcherSubscribeHandler,
			ServerStreams: true,
		},
	},
	Metadata: "loanpipe/v1/loanpipe.proto",
}

// DispatcherClient is the client side of DispatcherServer.
type DispatcherClient interface {
	Submit(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	Reply(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	Subscribe(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (DispatcherSubscribeClient, error)
}

// DispatcherSubscribeClient is the client side of a subscription stream.
type DispatcherSubscribeClient interface {
	Recv() (*structpb.Struct, error)
	grpc.ClientStream
}

type dispatcherClient struct {
	cc grpc.ClientConnInterface
}

// NewDispatcherClient wraps a client connection.
func NewDispatcherClient(cc grpc.ClientConnInterface) DispatcherClient {
	return &dispatcherClient{cc: cc}
}

func (c *dispatcherClient) Submit(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, DispatcherSubmit, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *dispatcherClient) Reply(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, DispatcherReply, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *dispatcherClient) Subscribe(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (DispatcherSubscribeClient, error) {
	stream, err := c.cc.NewStream(ctx, &dispatcherServiceDesc.Streams[0], DispatcherSubscribe, opts...)
	if err != nil {
		return nil, err
	}
	x := &dispatcherSubscribeClient{stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

type dispatcherSubscribeClient struct {
	grpc.ClientStream
}

func (x *dispatcherSubscribeClient) Recv() (*structpb.Struct, error) {
	m := new(structpb.Struct)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}
