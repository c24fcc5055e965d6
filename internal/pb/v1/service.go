package v1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// Fully-qualified names of the fault collector service and its methods.
const (
	FaultStateServiceName = "acsalarm.v1.FaultStateService"
	PushMethod            = "/" + FaultStateServiceName + "/Push"
	ListMethod            = "/" + FaultStateServiceName + "/List"
)

// FaultStateServiceServer is the server API of the fault collector.
type FaultStateServiceServer interface {
	// Push accepts one encoded fault state.
	Push(ctx context.Context, in *structpb.Struct) (*emptypb.Empty, error)
	// List returns the latest record per fault triplet.
	List(ctx context.Context, in *emptypb.Empty) (*structpb.ListValue, error)
}

// RegisterFaultStateServiceServer registers srv on s.
func RegisterFaultStateServiceServer(s grpc.ServiceRegistrar, srv FaultStateServiceServer) {
	s.RegisterService(&faultStateServiceDesc, srv)
}

//nolint:gochecknoglobals // grpc.ServiceDesc must be addressable for RegisterService.
var faultStateServiceDesc = grpc.ServiceDesc{
	ServiceName: FaultStateServiceName,
	HandlerType: (*FaultStateServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Push",
			Handler:    pushHandler,
		},
		{
			MethodName: "List",
			Handler:    listHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "acsalarm/v1/faultstate.proto",
}

func pushHandler(
	srv any,
	ctx context.Context, //nolint:revive // Signature is fixed by grpc.MethodHandler.
	dec func(any) error,
	interceptor grpc.UnaryServerInterceptor,
) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}

	if interceptor == nil {
		return srv.(FaultStateServiceServer).Push(ctx, in)
	}

	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: PushMethod,
	}

	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(FaultStateServiceServer).Push(ctx, req.(*structpb.Struct))
	}

	return interceptor(ctx, in, info, handler)
}

func listHandler(
	srv any,
	ctx context.Context, //nolint:revive // Signature is fixed by grpc.MethodHandler.
	dec func(any) error,
	interceptor grpc.UnaryServerInterceptor,
) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}

	if interceptor == nil {
		return srv.(FaultStateServiceServer).List(ctx, in)
	}

	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: ListMethod,
	}

	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(FaultStateServiceServer).List(ctx, req.(*emptypb.Empty))
	}

	return interceptor(ctx, in, info, handler)
}

// FaultStateServiceClient is the client API of the fault collector.
type FaultStateServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewFaultStateServiceClient wraps a client connection.
func NewFaultStateServiceClient(cc grpc.ClientConnInterface) *FaultStateServiceClient {
	return &FaultStateServiceClient{
		cc: cc,
	}
}

// Push sends one encoded fault state.
func (c *FaultStateServiceClient) Push(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) error {
	return c.cc.Invoke(ctx, PushMethod, in, new(emptypb.Empty), opts...)
}

// List fetches the records held by the collector.
func (c *FaultStateServiceClient) List(ctx context.Context, opts ...grpc.CallOption) (*structpb.ListValue, error) {
	out := new(structpb.ListValue)
	if err := c.cc.Invoke(ctx, ListMethod, new(emptypb.Empty), out, opts...); err != nil {
		return nil, err
	}

	return out, nil
}
