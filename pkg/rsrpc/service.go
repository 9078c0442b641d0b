package rsrpc

import (
	context "context"

	grpc "google.golang.org/grpc"
	codes "google.golang.org/grpc/codes"
	status "google.golang.org/grpc/status"
)

// This is a compile-time assertion to ensure this file is compatible with
// the grpc package it is being compiled against.
const _ = grpc.SupportPackageIsVersion7

// RecoveryClient is the client API for the recovery RPC service.
type RecoveryClient interface {
	PhantomReceive(ctx context.Context, in *PhantomReceiveRequest, opts ...grpc.CallOption) (*Status, error)
	ReplayFragments(ctx context.Context, in *ReplayFragmentsRequest, opts ...grpc.CallOption) (*Status, error)
	PhantomUpdate(ctx context.Context, in *PhantomUpdateRequest, opts ...grpc.CallOption) (*PhantomUpdateResponse, error)
	ReplayComplete(ctx context.Context, in *ReplayCompleteRequest, opts ...grpc.CallOption) (*Status, error)
	PhantomPrepareRanges(ctx context.Context, in *PhantomPrepareRangesRequest, opts ...grpc.CallOption) (*Status, error)
	PhantomPrepareComplete(ctx context.Context, in *PhantomPrepareCompleteRequest, opts ...grpc.CallOption) (*Status, error)
	PhantomCommitRanges(ctx context.Context, in *PhantomCommitRangesRequest, opts ...grpc.CallOption) (*Status, error)
	PhantomCommitComplete(ctx context.Context, in *PhantomCommitCompleteRequest, opts ...grpc.CallOption) (*Status, error)
	AcknowledgeLoad(ctx context.Context, in *AcknowledgeLoadRequest, opts ...grpc.CallOption) (*AcknowledgeLoadResponse, error)
}

type recoveryClient struct {
	cc grpc.ClientConnInterface
}

func NewRecoveryClient(cc grpc.ClientConnInterface) RecoveryClient {
	return &recoveryClient{cc}
}

func (c *recoveryClient) PhantomReceive(ctx context.Context, in *PhantomReceiveRequest, opts ...grpc.CallOption) (*Status, error) {
	out := new(Status)
	if err := c.cc.Invoke(ctx, "/recovery.Recovery/PhantomReceive", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *recoveryClient) ReplayFragments(ctx context.Context, in *ReplayFragmentsRequest, opts ...grpc.CallOption) (*Status, error) {
	out := new(Status)
	if err := c.cc.Invoke(ctx, "/recovery.Recovery/ReplayFragments", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *recoveryClient) PhantomUpdate(ctx context.Context, in *PhantomUpdateRequest, opts ...grpc.CallOption) (*PhantomUpdateResponse, error) {
	out := new(PhantomUpdateResponse)
	if err := c.cc.Invoke(ctx, "/recovery.Recovery/PhantomUpdate", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *recoveryClient) ReplayComplete(ctx context.Context, in *ReplayCompleteRequest, opts ...grpc.CallOption) (*Status, error) {
	out := new(Status)
	if err := c.cc.Invoke(ctx, "/recovery.Recovery/ReplayComplete", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *recoveryClient) PhantomPrepareRanges(ctx context.Context, in *PhantomPrepareRangesRequest, opts ...grpc.CallOption) (*Status, error) {
	out := new(Status)
	if err := c.cc.Invoke(ctx, "/recovery.Recovery/PhantomPrepareRanges", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *recoveryClient) PhantomPrepareComplete(ctx context.Context, in *PhantomPrepareCompleteRequest, opts ...grpc.CallOption) (*Status, error) {
	out := new(Status)
	if err := c.cc.Invoke(ctx, "/recovery.Recovery/PhantomPrepareComplete", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *recoveryClient) PhantomCommitRanges(ctx context.Context, in *PhantomCommitRangesRequest, opts ...grpc.CallOption) (*Status, error) {
	out := new(Status)
	if err := c.cc.Invoke(ctx, "/recovery.Recovery/PhantomCommitRanges", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *recoveryClient) PhantomCommitComplete(ctx context.Context, in *PhantomCommitCompleteRequest, opts ...grpc.CallOption) (*Status, error) {
	out := new(Status)
	if err := c.cc.Invoke(ctx, "/recovery.Recovery/PhantomCommitComplete", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *recoveryClient) AcknowledgeLoad(ctx context.Context, in *AcknowledgeLoadRequest, opts ...grpc.CallOption) (*AcknowledgeLoadResponse, error) {
	out := new(AcknowledgeLoadResponse)
	if err := c.cc.Invoke(ctx, "/recovery.Recovery/AcknowledgeLoad", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// RecoveryServer is the server API for the recovery RPC service. All
// implementations must embed UnimplementedRecoveryServer.
type RecoveryServer interface {
	PhantomReceive(context.Context, *PhantomReceiveRequest) (*Status, error)
	ReplayFragments(context.Context, *ReplayFragmentsRequest) (*Status, error)
	PhantomUpdate(context.Context, *PhantomUpdateRequest) (*PhantomUpdateResponse, error)
	ReplayComplete(context.Context, *ReplayCompleteRequest) (*Status, error)
	PhantomPrepareRanges(context.Context, *PhantomPrepareRangesRequest) (*Status, error)
	PhantomPrepareComplete(context.Context, *PhantomPrepareCompleteRequest) (*Status, error)
	PhantomCommitRanges(context.Context, *PhantomCommitRangesRequest) (*Status, error)
	PhantomCommitComplete(context.Context, *PhantomCommitCompleteRequest) (*Status, error)
	AcknowledgeLoad(context.Context, *AcknowledgeLoadRequest) (*AcknowledgeLoadResponse, error)
	mustEmbedUnimplementedRecoveryServer()
}

// UnimplementedRecoveryServer must be embedded to have forward compatible implementations.
type UnimplementedRecoveryServer struct{}

func (UnimplementedRecoveryServer) PhantomReceive(context.Context, *PhantomReceiveRequest) (*Status, error) {
	return nil, status.Errorf(codes.Unimplemented, "method PhantomReceive not implemented")
}
func (UnimplementedRecoveryServer) ReplayFragments(context.Context, *ReplayFragmentsRequest) (*Status, error) {
	return nil, status.Errorf(codes.Unimplemented, "method ReplayFragments not implemented")
}
func (UnimplementedRecoveryServer) PhantomUpdate(context.Context, *PhantomUpdateRequest) (*PhantomUpdateResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method PhantomUpdate not implemented")
}
func (UnimplementedRecoveryServer) ReplayComplete(context.Context, *ReplayCompleteRequest) (*Status, error) {
	return nil, status.Errorf(codes.Unimplemented, "method ReplayComplete not implemented")
}
func (UnimplementedRecoveryServer) PhantomPrepareRanges(context.Context, *PhantomPrepareRangesRequest) (*Status, error) {
	return nil, status.Errorf(codes.Unimplemented, "method PhantomPrepareRanges not implemented")
}
func (UnimplementedRecoveryServer) PhantomPrepareComplete(context.Context, *PhantomPrepareCompleteRequest) (*Status, error) {
	return nil, status.Errorf(codes.Unimplemented, "method PhantomPrepareComplete not implemented")
}
func (UnimplementedRecoveryServer) PhantomCommitRanges(context.Context, *PhantomCommitRangesRequest) (*Status, error) {
	return nil, status.Errorf(codes.Unimplemented, "method PhantomCommitRanges not implemented")
}
func (UnimplementedRecoveryServer) PhantomCommitComplete(context.Context, *PhantomCommitCompleteRequest) (*Status, error) {
	return nil, status.Errorf(codes.Unimplemented, "method PhantomCommitComplete not implemented")
}
func (UnimplementedRecoveryServer) AcknowledgeLoad(context.Context, *AcknowledgeLoadRequest) (*AcknowledgeLoadResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method AcknowledgeLoad not implemented")
}
func (UnimplementedRecoveryServer) mustEmbedUnimplementedRecoveryServer() {}

// UnsafeRecoveryServer may be embedded to opt out of forward compatibility.
type UnsafeRecoveryServer interface {
	mustEmbedUnimplementedRecoveryServer()
}

func RegisterRecoveryServer(s grpc.ServiceRegistrar, srv RecoveryServer) {
	s.RegisterService(&Recovery_ServiceDesc, srv)
}

func _Recovery_PhantomReceive_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(PhantomReceiveRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RecoveryServer).PhantomReceive(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/recovery.Recovery/PhantomReceive"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(RecoveryServer).PhantomReceive(ctx, req.(*PhantomReceiveRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Recovery_ReplayFragments_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(ReplayFragmentsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RecoveryServer).ReplayFragments(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/recovery.Recovery/ReplayFragments"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(RecoveryServer).ReplayFragments(ctx, req.(*ReplayFragmentsRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Recovery_PhantomUpdate_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(PhantomUpdateRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RecoveryServer).PhantomUpdate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/recovery.Recovery/PhantomUpdate"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(RecoveryServer).PhantomUpdate(ctx, req.(*PhantomUpdateRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Recovery_ReplayComplete_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(ReplayCompleteRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RecoveryServer).ReplayComplete(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/recovery.Recovery/ReplayComplete"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(RecoveryServer).ReplayComplete(ctx, req.(*ReplayCompleteRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Recovery_PhantomPrepareRanges_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(PhantomPrepareRangesRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RecoveryServer).PhantomPrepareRanges(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/recovery.Recovery/PhantomPrepareRanges"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(RecoveryServer).PhantomPrepareRanges(ctx, req.(*PhantomPrepareRangesRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Recovery_PhantomPrepareComplete_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(PhantomPrepareCompleteRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RecoveryServer).PhantomPrepareComplete(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/recovery.Recovery/PhantomPrepareComplete"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(RecoveryServer).PhantomPrepareComplete(ctx, req.(*PhantomPrepareCompleteRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Recovery_PhantomCommitRanges_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(PhantomCommitRangesRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RecoveryServer).PhantomCommitRanges(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/recovery.Recovery/PhantomCommitRanges"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(RecoveryServer).PhantomCommitRanges(ctx, req.(*PhantomCommitRangesRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Recovery_PhantomCommitComplete_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(PhantomCommitCompleteRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RecoveryServer).PhantomCommitComplete(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/recovery.Recovery/PhantomCommitComplete"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(RecoveryServer).PhantomCommitComplete(ctx, req.(*PhantomCommitCompleteRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Recovery_AcknowledgeLoad_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(AcknowledgeLoadRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RecoveryServer).AcknowledgeLoad(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/recovery.Recovery/AcknowledgeLoad"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(RecoveryServer).AcknowledgeLoad(ctx, req.(*AcknowledgeLoadRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// Recovery_ServiceDesc is the grpc.ServiceDesc for the Recovery service.
var Recovery_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "recovery.Recovery",
	HandlerType: (*RecoveryServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "PhantomReceive", Handler: _Recovery_PhantomReceive_Handler},
		{MethodName: "ReplayFragments", Handler: _Recovery_ReplayFragments_Handler},
		{MethodName: "PhantomUpdate", Handler: _Recovery_PhantomUpdate_Handler},
		{MethodName: "ReplayComplete", Handler: _Recovery_ReplayComplete_Handler},
		{MethodName: "PhantomPrepareRanges", Handler: _Recovery_PhantomPrepareRanges_Handler},
		{MethodName: "PhantomPrepareComplete", Handler: _Recovery_PhantomPrepareComplete_Handler},
		{MethodName: "PhantomCommitRanges", Handler: _Recovery_PhantomCommitRanges_Handler},
		{MethodName: "PhantomCommitComplete", Handler: _Recovery_PhantomCommitComplete_Handler},
		{MethodName: "AcknowledgeLoad", Handler: _Recovery_AcknowledgeLoad_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "rsrpc/recovery.go",
}
