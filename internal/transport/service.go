package transport

import (
	"context"

	"google.golang.org/grpc"
)

const serviceName = "tcrpc.tcRpc"

const (
	methodTransferInit   = "TransferInitV2"
	methodStorageInit    = "StorageInitV2"
	methodUploadInit     = "UploadInitV2"
	methodUploadSlot     = "UploadBasicV4"
	methodTransferFinish = "TransferFinishV2"
	methodStorageFinish  = "StorageFinishV2"
	methodDownload       = "Download"
	methodDelete         = "Delete"
)

func fullMethod(name string) string {
	return "/" + serviceName + "/" + name
}

// Server is implemented by transport backends.
type Server interface {
	TransferInit(context.Context, *TransferInitRequest) (*InitResponse, error)
	StorageInit(context.Context, *StorageInitRequest) (*InitResponse, error)
	UploadInit(context.Context, *UploadInitRequest) (*UploadInitResponse, error)
	UploadSlot(UploadSlotServer) error
	TransferFinish(context.Context, *FinishRequest) (*FinishResponse, error)
	StorageFinish(context.Context, *FinishRequest) (*FinishResponse, error)
	Download(*DownloadRequest, DownloadServer) error
	Delete(context.Context, *DeleteRequest) (*DeleteResponse, error)
}

type UploadSlotServer interface {
	Context() context.Context
	Recv() (*UploadChunk, error)
	SendAndClose(*UploadResponse) error
}

type DownloadServer interface {
	Context() context.Context
	Send(*DownloadChunk) error
}

func RegisterServer(s grpc.ServiceRegistrar, srv Server) {
	s.RegisterService(&ServiceDesc, srv)
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*Server)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: methodTransferInit, Handler: unary(methodTransferInit, func(s Server, ctx context.Context, req *TransferInitRequest) (any, error) {
			return s.TransferInit(ctx, req)
		})},
		{MethodName: methodStorageInit, Handler: unary(methodStorageInit, func(s Server, ctx context.Context, req *StorageInitRequest) (any, error) {
			return s.StorageInit(ctx, req)
		})},
		{MethodName: methodUploadInit, Handler: unary(methodUploadInit, func(s Server, ctx context.Context, req *UploadInitRequest) (any, error) {
			return s.UploadInit(ctx, req)
		})},
		{MethodName: methodTransferFinish, Handler: unary(methodTransferFinish, func(s Server, ctx context.Context, req *FinishRequest) (any, error) {
			return s.TransferFinish(ctx, req)
		})},
		{MethodName: methodStorageFinish, Handler: unary(methodStorageFinish, func(s Server, ctx context.Context, req *FinishRequest) (any, error) {
			return s.StorageFinish(ctx, req)
		})},
		{MethodName: methodDelete, Handler: unary(methodDelete, func(s Server, ctx context.Context, req *DeleteRequest) (any, error) {
			return s.Delete(ctx, req)
		})},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: methodUploadSlot, Handler: uploadSlotHandler, ClientStreams: true},
		{StreamName: methodDownload, Handler: downloadHandler, ServerStreams: true},
	},
}

func unary[Req any](name string, call func(Server, context.Context, *Req) (any, error)) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(Server), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(Server), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

type uploadSlotServer struct {
	grpc.ServerStream
}

func (x *uploadSlotServer) Recv() (*UploadChunk, error) {
	m := new(UploadChunk)
	if err := x.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (x *uploadSlotServer) SendAndClose(m *UploadResponse) error {
	return x.ServerStream.SendMsg(m)
}

func uploadSlotHandler(srv any, stream grpc.ServerStream) error {
	return srv.(Server).UploadSlot(&uploadSlotServer{stream})
}

type downloadServer struct {
	grpc.ServerStream
}

func (x *downloadServer) Send(m *DownloadChunk) error {
	return x.ServerStream.SendMsg(m)
}

func downloadHandler(srv any, stream grpc.ServerStream) error {
	m := new(DownloadRequest)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(Server).Download(m, &downloadServer{stream})
}
