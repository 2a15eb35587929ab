package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"log/slog"
	"net"
	"strings"
	"time"

	"transferchain/go-sdk/internal/apperrors"
	"transferchain/go-sdk/internal/observability"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

// Service is the slot-oriented file transport the orchestrators drive.
type Service interface {
	TransferInit(ctx context.Context, req *TransferInitRequest) (*InitResponse, error)
	StorageInit(ctx context.Context, req *StorageInitRequest) (*InitResponse, error)
	UploadInit(ctx context.Context, meta UploadMeta, req *UploadInitRequest) (*UploadInitResponse, error)
	UploadSlot(ctx context.Context, meta UploadMeta) (SlotUploader, error)
	TransferFinish(ctx context.Context, req *FinishRequest) error
	StorageFinish(ctx context.Context, req *FinishRequest) error
	Download(ctx context.Context, req *DownloadRequest) (ChunkReceiver, error)
	Delete(ctx context.Context, req *DeleteRequest) error
}

// SlotUploader streams the chunks of one slot.
type SlotUploader interface {
	Send(*UploadChunk) error
	CloseAndRecv() (*UploadResponse, error)
}

// ChunkReceiver yields downloaded chunks until io.EOF.
type ChunkReceiver interface {
	Recv() (*DownloadChunk, error)
}

type DialConfig struct {
	Target   string
	Insecure bool
	CertFile string
	// Dialer overrides the network dialer, e.g. for in-memory listeners.
	Dialer func(context.Context, string) (net.Conn, error)
}

type Options struct {
	Metrics *observability.Metrics
	Logger  *slog.Logger
}

// Client is the gRPC implementation of Service. One Client owns one shared
// connection and is safe for concurrent use.
type Client struct {
	conn    grpc.ClientConnInterface
	closer  io.Closer
	creds   Credentials
	metrics *observability.Metrics
	logger  *slog.Logger
}

var _ Service = (*Client)(nil)

// Dial opens the shared connection. TLS is used unless Insecure is set;
// CertFile pins a root certificate.
func Dial(cfg DialConfig, creds Credentials, opts Options) (*Client, error) {
	target := strings.TrimSpace(cfg.Target)
	if target == "" {
		return nil, apperrors.Validation("transport target is required")
	}
	var tc credentials.TransportCredentials
	switch {
	case cfg.Insecure:
		tc = insecure.NewCredentials()
	case cfg.CertFile != "":
		var err error
		if tc, err = credentials.NewClientTLSFromFile(cfg.CertFile, ""); err != nil {
			return nil, apperrors.Validation("load rpc certificate: %v", err)
		}
	default:
		tc = credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(tc),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(jsonCodec{})),
	}
	if cfg.Dialer != nil {
		dialOpts = append(dialOpts, grpc.WithContextDialer(cfg.Dialer))
	}
	conn, err := grpc.NewClient(target, dialOpts...)
	if err != nil {
		return nil, apperrors.Transport("dial", err)
	}
	c := NewClient(conn, creds, opts)
	c.closer = conn
	return c, nil
}

// NewClient wraps an existing connection; the caller keeps ownership of it.
func NewClient(conn grpc.ClientConnInterface, creds Credentials, opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{conn: conn, creds: creds, metrics: opts.Metrics, logger: logger}
}

func (c *Client) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer.Close()
}

func (c *Client) invoke(ctx context.Context, method string, in, out any, extra ...string) (err error) {
	started := time.Now()
	defer func() { c.metrics.ObserveRPC(method, started, err) }()
	ctx = outgoing(ctx, c.creds, extra...)
	if err := c.conn.Invoke(ctx, fullMethod(method), in, out, grpc.ForceCodec(jsonCodec{})); err != nil {
		c.logger.Debug("rpc failed", "component", "transport", "operation", method, "code", status.Code(err).String())
		return rpcError(method, err)
	}
	return nil
}

func (c *Client) TransferInit(ctx context.Context, req *TransferInitRequest) (*InitResponse, error) {
	out := new(InitResponse)
	if err := c.invoke(ctx, methodTransferInit, req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) StorageInit(ctx context.Context, req *StorageInitRequest) (*InitResponse, error) {
	out := new(InitResponse)
	if err := c.invoke(ctx, methodStorageInit, req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) UploadInit(ctx context.Context, meta UploadMeta, req *UploadInitRequest) (*UploadInitResponse, error) {
	out := new(UploadInitResponse)
	if err := c.invoke(ctx, methodUploadInit, req, out, meta.pairs()...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) TransferFinish(ctx context.Context, req *FinishRequest) error {
	return c.invoke(ctx, methodTransferFinish, req, new(FinishResponse))
}

func (c *Client) StorageFinish(ctx context.Context, req *FinishRequest) error {
	return c.invoke(ctx, methodStorageFinish, req, new(FinishResponse))
}

func (c *Client) Delete(ctx context.Context, req *DeleteRequest) error {
	return c.invoke(ctx, methodDelete, req, new(DeleteResponse))
}

func (c *Client) UploadSlot(ctx context.Context, meta UploadMeta) (SlotUploader, error) {
	ctx = outgoing(ctx, c.creds, meta.pairs()...)
	cs, err := c.conn.NewStream(ctx, &ServiceDesc.Streams[0], fullMethod(methodUploadSlot), grpc.ForceCodec(jsonCodec{}))
	if err != nil {
		c.metrics.ObserveRPC(methodUploadSlot, time.Now(), err)
		return nil, rpcError(methodUploadSlot, err)
	}
	return &slotUploader{cs: cs, client: c, started: time.Now()}, nil
}

func (c *Client) Download(ctx context.Context, req *DownloadRequest) (ChunkReceiver, error) {
	started := time.Now()
	ctx = outgoing(ctx, c.creds)
	cs, err := c.conn.NewStream(ctx, &ServiceDesc.Streams[1], fullMethod(methodDownload), grpc.ForceCodec(jsonCodec{}))
	if err == nil {
		err = cs.SendMsg(req)
	}
	if err == nil {
		err = cs.CloseSend()
	}
	if err != nil {
		c.metrics.ObserveRPC(methodDownload, started, err)
		return nil, rpcError(methodDownload, err)
	}
	return &chunkReceiver{cs: cs, client: c, started: started}, nil
}

type slotUploader struct {
	cs      grpc.ClientStream
	client  *Client
	started time.Time
}

func (u *slotUploader) Send(chunk *UploadChunk) error {
	err := u.cs.SendMsg(chunk)
	if errors.Is(err, io.EOF) {
		// The server ended the stream; the real status comes from RecvMsg.
		_, err = u.CloseAndRecv()
		if err == nil {
			err = apperrors.Transport(methodUploadSlot, io.ErrUnexpectedEOF)
		}
		return err
	}
	if err != nil {
		return rpcError(methodUploadSlot, err)
	}
	return nil
}

func (u *slotUploader) CloseAndRecv() (resp *UploadResponse, err error) {
	defer func() { u.client.metrics.ObserveRPC(methodUploadSlot, u.started, err) }()
	if err := u.cs.CloseSend(); err != nil {
		return nil, rpcError(methodUploadSlot, err)
	}
	out := new(UploadResponse)
	if err := u.cs.RecvMsg(out); err != nil {
		return nil, rpcError(methodUploadSlot, err)
	}
	return out, nil
}

type chunkReceiver struct {
	cs      grpc.ClientStream
	client  *Client
	started time.Time
	done    bool
}

func (r *chunkReceiver) Recv() (*DownloadChunk, error) {
	out := new(DownloadChunk)
	err := r.cs.RecvMsg(out)
	if err == nil {
		return out, nil
	}
	if !r.done {
		r.done = true
		if errors.Is(err, io.EOF) {
			r.client.metrics.ObserveRPC(methodDownload, r.started, nil)
		} else {
			r.client.metrics.ObserveRPC(methodDownload, r.started, err)
		}
	}
	if errors.Is(err, io.EOF) {
		return nil, io.EOF
	}
	return nil, rpcError(methodDownload, err)
}

// rpcError keeps the remote status message as the error detail.
func rpcError(method string, err error) error {
	if st, ok := status.FromError(err); ok {
		return apperrors.Transport(method, errors.New(st.Message()))
	}
	return apperrors.Transport(method, err)
}
