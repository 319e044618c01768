// Package rpc is the protocol spoken between bsdrive peers:
// a gRPC service named bsdrive.Peer whose messages are protobuf wrapper types.
//
//	service Peer {
//	  // Hello tells whether the server has joined the topic with the given discovery key.
//	  rpc Hello(google.protobuf.BytesValue) returns (google.protobuf.BoolValue);
//	  // Head returns the root ref of the drive with the given discovery key.
//	  rpc Head(google.protobuf.BytesValue) returns (google.protobuf.BytesValue);
//	  // Get returns the blob with the given ref.
//	  rpc Get(google.protobuf.BytesValue) returns (google.protobuf.BytesValue);
//	  // Has tells whether the server has the blob with the given ref.
//	  rpc Has(google.protobuf.BytesValue) returns (google.protobuf.BoolValue);
//	}
package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const serviceName = "bsdrive.Peer"

// PeerServer is the server API for the bsdrive.Peer service.
type PeerServer interface {
	Hello(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BoolValue, error)
	Head(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
	Get(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
	Has(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BoolValue, error)
}

// RegisterPeerServer registers srv with s.
func RegisterPeerServer(s grpc.ServiceRegistrar, srv PeerServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// ServiceDesc describes the bsdrive.Peer service.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*PeerServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Hello",
			Handler: unaryHandler("Hello", func(srv PeerServer, ctx context.Context, in *wrapperspb.BytesValue) (interface{}, error) {
				return srv.Hello(ctx, in)
			}),
		},
		{
			MethodName: "Head",
			Handler: unaryHandler("Head", func(srv PeerServer, ctx context.Context, in *wrapperspb.BytesValue) (interface{}, error) {
				return srv.Head(ctx, in)
			}),
		},
		{
			MethodName: "Get",
			Handler: unaryHandler("Get", func(srv PeerServer, ctx context.Context, in *wrapperspb.BytesValue) (interface{}, error) {
				return srv.Get(ctx, in)
			}),
		},
		{
			MethodName: "Has",
			Handler: unaryHandler("Has", func(srv PeerServer, ctx context.Context, in *wrapperspb.BytesValue) (interface{}, error) {
				return srv.Has(ctx, in)
			}),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "bsdrive/peer.proto",
}

func fullMethod(name string) string {
	return "/" + serviceName + "/" + name
}

// All methods take a BytesValue, so one handler shape serves them all.
func unaryHandler(name string, call func(PeerServer, context.Context, *wrapperspb.BytesValue) (interface{}, error)) grpc.MethodHandler {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(wrapperspb.BytesValue)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(PeerServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: fullMethod(name),
		}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(PeerServer), ctx, req.(*wrapperspb.BytesValue))
		}
		return interceptor(ctx, in, info, handler)
	}
}
