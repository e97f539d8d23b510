// Package proto defines the gRPC service interface for gophermedia.
//
// Messages are plain Go structs carried by the JSON codec registered in
// codec.go, so no generated code is needed.
package proto

import (
	"context"

	"google.golang.org/grpc"
)

const serviceName = "gophermedia.MediaService"

// MediaServiceServer is the server-side interface for the MediaService.
type MediaServiceServer interface {
	RegisterMedia(context.Context, *RegisterMediaRequest) (*MediaReply, error)
	GetMedia(context.Context, *GetMediaRequest) (*MediaReply, error)
	ListMedia(context.Context, *ListMediaRequest) (*ListMediaReply, error)
	ProcessMedia(context.Context, *ProcessMediaRequest) (*ProcessMediaReply, error)
	UpdateStatus(context.Context, *UpdateStatusRequest) (*MediaReply, error)
}

// MediaServiceClient is the client-side interface for the MediaService.
type MediaServiceClient interface {
	RegisterMedia(ctx context.Context, in *RegisterMediaRequest, opts ...grpc.CallOption) (*MediaReply, error)
	GetMedia(ctx context.Context, in *GetMediaRequest, opts ...grpc.CallOption) (*MediaReply, error)
	ListMedia(ctx context.Context, in *ListMediaRequest, opts ...grpc.CallOption) (*ListMediaReply, error)
	ProcessMedia(ctx context.Context, in *ProcessMediaRequest, opts ...grpc.CallOption) (*ProcessMediaReply, error)
	UpdateStatus(ctx context.Context, in *UpdateStatusRequest, opts ...grpc.CallOption) (*MediaReply, error)
}

// ServiceDesc is the grpc.ServiceDesc for the MediaService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*MediaServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "RegisterMedia", Handler: unary("RegisterMedia", func(s MediaServiceServer, ctx context.Context, in *RegisterMediaRequest) (any, error) {
			return s.RegisterMedia(ctx, in)
		})},
		{MethodName: "GetMedia", Handler: unary("GetMedia", func(s MediaServiceServer, ctx context.Context, in *GetMediaRequest) (any, error) {
			return s.GetMedia(ctx, in)
		})},
		{MethodName: "ListMedia", Handler: unary("ListMedia", func(s MediaServiceServer, ctx context.Context, in *ListMediaRequest) (any, error) {
			return s.ListMedia(ctx, in)
		})},
		{MethodName: "ProcessMedia", Handler: unary("ProcessMedia", func(s MediaServiceServer, ctx context.Context, in *ProcessMediaRequest) (any, error) {
			return s.ProcessMedia(ctx, in)
		})},
		{MethodName: "UpdateStatus", Handler: unary("UpdateStatus", func(s MediaServiceServer, ctx context.Context, in *UpdateStatusRequest) (any, error) {
			return s.UpdateStatus(ctx, in)
		})},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "proto/gophermedia.proto",
}

// RegisterMediaServiceServer registers the server implementation with a gRPC server.
func RegisterMediaServiceServer(s grpc.ServiceRegistrar, srv MediaServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// unary adapts a typed method to grpc's MethodHandler, running interceptors
// the way generated code does.
func unary[Req any](method string, call func(MediaServiceServer, context.Context, *Req) (any, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		s := srv.(MediaServiceServer)
		if interceptor == nil {
			return call(s, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/" + method}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(s, ctx, req.(*Req))
		})
	}
}

type mediaServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewMediaServiceClient creates a MediaService client. Every call uses the
// JSON codec.
func NewMediaServiceClient(cc grpc.ClientConnInterface) MediaServiceClient {
	return &mediaServiceClient{cc: cc}
}

func invoke[Out any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Out, error) {
	out := new(Out)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, "/"+serviceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *mediaServiceClient) RegisterMedia(ctx context.Context, in *RegisterMediaRequest, opts ...grpc.CallOption) (*MediaReply, error) {
	return invoke[MediaReply](ctx, c.cc, "RegisterMedia", in, opts)
}

func (c *mediaServiceClient) GetMedia(ctx context.Context, in *GetMediaRequest, opts ...grpc.CallOption) (*MediaReply, error) {
	return invoke[MediaReply](ctx, c.cc, "GetMedia", in, opts)
}

func (c *mediaServiceClient) ListMedia(ctx context.Context, in *ListMediaRequest, opts ...grpc.CallOption) (*ListMediaReply, error) {
	return invoke[ListMediaReply](ctx, c.cc, "ListMedia", in, opts)
}

func (c *mediaServiceClient) ProcessMedia(ctx context.Context, in *ProcessMediaRequest, opts ...grpc.CallOption) (*ProcessMediaReply, error) {
	return invoke[ProcessMediaReply](ctx, c.cc, "ProcessMedia", in, opts)
}

func (c *mediaServiceClient) UpdateStatus(ctx context.Context, in *UpdateStatusRequest, opts ...grpc.CallOption) (*MediaReply, error) {
	return invoke[MediaReply](ctx, c.cc, "UpdateStatus", in, opts)
}
