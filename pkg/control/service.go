package control

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "switchio.control.v1.SwitchIO"

const (
	methodReadMissingSlice = "/" + ServiceName + "/ReadMissingSlice"
	methodRetransmission   = "/" + ServiceName + "/Retransmission"
)

// Handler answers control-plane calls. Implementations must be safe for
// concurrent use: each call runs on its own goroutine.
type Handler interface {
	ReadMissingSlice(ctx context.Context, req *MissingSliceRequest) (*MissingSliceResponse, error)
	Retransmission(ctx context.Context, req *RetransmissionRequest) (*RetransmissionAck, error)
}

func readMissingSliceHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(MissingSliceRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Handler).ReadMissingSlice(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodReadMissingSlice}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(Handler).ReadMissingSlice(ctx, req.(*MissingSliceRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func retransmissionHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(RetransmissionRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Handler).Retransmission(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodRetransmission}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(Handler).Retransmission(ctx, req.(*RetransmissionRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// serviceDesc is written by hand; messages travel through the swbuf codec so
// no generated protobuf code is involved.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*Handler)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ReadMissingSlice", Handler: readMissingSliceHandler},
		{MethodName: "Retransmission", Handler: retransmissionHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "switchio/control/v1",
}
