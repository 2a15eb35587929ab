package fakenet

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"testing"

	"transferchain/go-sdk/internal/transport"
	"transferchain/go-sdk/pkg/models"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

const (
	DefaultSlotSize   = 64 * 1024
	downloadChunkSize = 32 * 1024
)

type slotEntry struct {
	slot models.Slot
	data []byte
}

// Transport is an in-memory transport.Server. Files are cut into slots of
// SlotSize bytes.
type Transport struct {
	mu       sync.Mutex
	slotSize int64
	sessions map[string]bool
	slots    map[string]*slotEntry
	finished []string
	deleted  []string
	streams  int

	uploadStatus   int32
	failFinish     bool
	failUploadInit bool
	failDelete     func(slotUUID string) bool
	onUploadInit   func(req *transport.UploadInitRequest)
}

var _ transport.Server = (*Transport)(nil)

func NewTransport(slotSize int64) *Transport {
	if slotSize <= 0 {
		slotSize = DefaultSlotSize
	}
	return &Transport{
		slotSize: slotSize,
		sessions: make(map[string]bool),
		slots:    make(map[string]*slotEntry),
	}
}

// StartTransport serves a fresh Transport over an in-memory listener and
// returns a client dialed to it.
func StartTransport(t testing.TB, slotSize int64, creds transport.Credentials) (*Transport, *transport.Client) {
	t.Helper()
	fake := NewTransport(slotSize)
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(transport.ServerOptions()...)
	transport.RegisterServer(srv, fake)
	go func() { _ = srv.Serve(lis) }()

	client, err := transport.Dial(transport.DialConfig{
		Target:   "passthrough:///bufnet",
		Insecure: true,
		Dialer: func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		},
	}, creds, transport.Options{})
	if err != nil {
		t.Fatalf("dial fake transport: %v", err)
	}
	t.Cleanup(func() {
		_ = client.Close()
		srv.Stop()
	})
	return fake, client
}

func (f *Transport) TransferInit(ctx context.Context, req *transport.TransferInitRequest) (*transport.InitResponse, error) {
	if _, err := transport.CredentialsFromContext(ctx); err != nil {
		return nil, err
	}
	if len(req.Paths) == 0 {
		return nil, status.Error(codes.InvalidArgument, "no files")
	}
	return f.newSession(req.Paths), nil
}

func (f *Transport) StorageInit(ctx context.Context, req *transport.StorageInitRequest) (*transport.InitResponse, error) {
	if _, err := transport.CredentialsFromContext(ctx); err != nil {
		return nil, err
	}
	if len(req.Paths) == 0 {
		return nil, status.Error(codes.InvalidArgument, "no files")
	}
	return f.newSession(req.Paths), nil
}

func (f *Transport) newSession(paths []string) *transport.InitResponse {
	resp := &transport.InitResponse{SessionID: uuid.NewString(), BaseUUIDs: make(map[string]string, len(paths))}
	for _, p := range paths {
		resp.BaseUUIDs[p] = uuid.NewString()
	}
	f.mu.Lock()
	f.sessions[resp.SessionID] = true
	f.mu.Unlock()
	return resp
}

func (f *Transport) UploadInit(ctx context.Context, req *transport.UploadInitRequest) (*transport.UploadInitResponse, error) {
	creds, err := transport.CredentialsFromContext(ctx)
	if err != nil {
		return nil, err
	}
	meta := transport.UploadMetaFromContext(ctx)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.onUploadInit != nil {
		f.onUploadInit(req)
	}
	if f.failUploadInit {
		return nil, status.Error(codes.ResourceExhausted, "quota exceeded")
	}
	if !f.sessions[req.SessionID] {
		return nil, status.Error(codes.NotFound, "unknown session")
	}
	baseUUID := meta.BaseUUID
	if baseUUID == "" {
		baseUUID = uuid.NewString()
	}
	storageCode := "sc-" + baseUUID[:8]
	resp := &transport.UploadInitResponse{BaseUUID: baseUUID, Address: "fake-storage-node", StorageCode: storageCode}
	remaining := req.FileSize
	for remaining > 0 || len(resp.Slots) == 0 {
		size := min(remaining, f.slotSize)
		slot := models.Slot{
			UUID:           uuid.NewString(),
			BaseUUID:       baseUUID,
			StorageService: "memory",
			Address:        "fake-storage-node",
			Size:           size,
			SizeRL:         size,
			StorageCode:    storageCode,
			UserID:         creds.UserID,
		}
		f.slots[slot.UUID] = &slotEntry{slot: slot}
		resp.Slots = append(resp.Slots, slot)
		remaining -= size
	}
	return resp, nil
}

func (f *Transport) UploadSlot(stream transport.UploadSlotServer) error {
	if _, err := transport.CredentialsFromContext(stream.Context()); err != nil {
		return err
	}
	defer f.openStream()()
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		f.mu.Lock()
		entry, ok := f.slots[chunk.Slot.UUID]
		if ok {
			entry.data = append(entry.data, chunk.Chunk...)
		}
		f.mu.Unlock()
		if !ok {
			return status.Error(codes.NotFound, "unknown slot "+chunk.Slot.UUID)
		}
	}
	f.mu.Lock()
	code := f.uploadStatus
	f.mu.Unlock()
	if code == 0 {
		code = transport.StatusOK
	}
	return stream.SendAndClose(&transport.UploadResponse{StatusCode: code})
}

func (f *Transport) TransferFinish(ctx context.Context, req *transport.FinishRequest) (*transport.FinishResponse, error) {
	return f.finish(ctx, req)
}

func (f *Transport) StorageFinish(ctx context.Context, req *transport.FinishRequest) (*transport.FinishResponse, error) {
	return f.finish(ctx, req)
}

func (f *Transport) finish(ctx context.Context, req *transport.FinishRequest) (*transport.FinishResponse, error) {
	if _, err := transport.CredentialsFromContext(ctx); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFinish {
		return nil, status.Error(codes.Unavailable, "finish failed")
	}
	if !f.sessions[req.SessionID] {
		return nil, status.Error(codes.NotFound, "unknown session")
	}
	f.finished = append(f.finished, req.SessionID)
	return &transport.FinishResponse{}, nil
}

func (f *Transport) Download(req *transport.DownloadRequest, stream transport.DownloadServer) error {
	if _, err := transport.CredentialsFromContext(stream.Context()); err != nil {
		return err
	}
	defer f.openStream()()
	for _, slot := range req.Slots {
		f.mu.Lock()
		entry, ok := f.slots[slot.UUID]
		var data []byte
		if ok {
			data = append([]byte(nil), entry.data...)
		}
		f.mu.Unlock()
		if !ok {
			return status.Error(codes.NotFound, "slot not found: "+slot.UUID)
		}
		for len(data) > 0 {
			n := min(len(data), downloadChunkSize)
			if err := stream.Send(&transport.DownloadChunk{Chunk: data[:n]}); err != nil {
				return err
			}
			data = data[n:]
		}
	}
	return nil
}

func (f *Transport) openStream() func() {
	f.mu.Lock()
	f.streams++
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		f.streams--
		f.mu.Unlock()
	}
}

func (f *Transport) Delete(ctx context.Context, req *transport.DeleteRequest) (*transport.DeleteResponse, error) {
	if _, err := transport.CredentialsFromContext(ctx); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failDelete != nil && f.failDelete(req.UUID) {
		return nil, status.Error(codes.Internal, fmt.Sprintf("delete %s failed", req.UUID))
	}
	if _, ok := f.slots[req.UUID]; !ok {
		return nil, status.Error(codes.NotFound, "slot not found: "+req.UUID)
	}
	delete(f.slots, req.UUID)
	f.deleted = append(f.deleted, req.UUID)
	return &transport.DeleteResponse{}, nil
}

// Failure injection and inspection.

func (f *Transport) SetUploadStatus(code int32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploadStatus = code
}

func (f *Transport) SetFailFinish(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failFinish = fail
}

func (f *Transport) SetFailUploadInit(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failUploadInit = fail
}

func (f *Transport) SetFailDelete(fn func(slotUUID string) bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failDelete = fn
}

// OnUploadInit observes every UploadInit request.
func (f *Transport) OnUploadInit(fn func(req *transport.UploadInitRequest)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onUploadInit = fn
}

func (f *Transport) Deleted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...)
}

func (f *Transport) Finished() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.finished...)
}

// SlotCount is the number of slots currently held.
func (f *Transport) SlotCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.slots)
}

// SlotData returns the bytes stored for one slot.
func (f *Transport) SlotData(slotUUID string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry, ok := f.slots[slotUUID]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), entry.data...), true
}

// OpenStreams reports how many upload or download streams are still being
// served.
func (f *Transport) OpenStreams() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.streams
}
