package grpcstream

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Сервис описан вручную поверх well-known типов, .proto не генерируется:
//
//	service SnapshotStream {
//	  rpc Subscribe(google.protobuf.Empty) returns (stream google.protobuf.StringValue);
//	  rpc SetStatus(google.protobuf.Struct) returns (google.protobuf.Struct);
//	}
const (
	ServiceName         = "yard.v1.SnapshotStream"
	SubscribeFullMethod = "/" + ServiceName + "/Subscribe"
	SetStatusFullMethod = "/" + ServiceName + "/SetStatus"
)

type SnapshotStreamServer interface {
	Subscribe(*emptypb.Empty, SnapshotStream_SubscribeServer) error
	SetStatus(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type SnapshotStream_SubscribeServer interface {
	Send(*wrapperspb.StringValue) error
	grpc.ServerStream
}

type subscribeServer struct {
	grpc.ServerStream
}

func (x *subscribeServer) Send(m *wrapperspb.StringValue) error {
	return x.ServerStream.SendMsg(m)
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SnapshotStreamServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "SetStatus", Handler: setStatusHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Subscribe", Handler: subscribeHandler, ServerStreams: true},
	},
	Metadata: "yard/v1/snapshot.proto",
}

func RegisterSnapshotStreamServer(s grpc.ServiceRegistrar, srv SnapshotStreamServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func setStatusHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SnapshotStreamServer).SetStatus(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: SetStatusFullMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SnapshotStreamServer).SetStatus(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func subscribeHandler(srv interface{}, stream grpc.ServerStream) error {
	m := new(emptypb.Empty)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(SnapshotStreamServer).Subscribe(m, &subscribeServer{stream})
}

// Client — клиент сервиса, используется консольными утилитами и тестами.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

type SnapshotStream_SubscribeClient interface {
	Recv() (*wrapperspb.StringValue, error)
	grpc.ClientStream
}

type subscribeClient struct {
	grpc.ClientStream
}

func (x *subscribeClient) Recv() (*wrapperspb.StringValue, error) {
	m := new(wrapperspb.StringValue)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (c *Client) Subscribe(ctx context.Context, opts ...grpc.CallOption) (SnapshotStream_SubscribeClient, error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], SubscribeFullMethod, opts...)
	if err != nil {
		return nil, err
	}
	x := &subscribeClient{stream}
	if err := x.ClientStream.SendMsg(&emptypb.Empty{}); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

func (c *Client) SetStatus(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, SetStatusFullMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
