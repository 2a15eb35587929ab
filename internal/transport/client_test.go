package transport_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"transferchain/go-sdk/internal/apperrors"
	"transferchain/go-sdk/internal/testutil/fakenet"
	"transferchain/go-sdk/internal/transport"
)

var testCreds = transport.Credentials{UserID: 7, APIToken: "tok", APISecret: "sec"}

func uploadAll(t *testing.T, c *transport.Client, meta transport.UploadMeta, plan *transport.UploadInitResponse, data []byte) {
	t.Helper()
	ctx := context.Background()
	offset := int64(0)
	for i, slot := range plan.Slots {
		up, err := c.UploadSlot(ctx, meta)
		if err != nil {
			t.Fatalf("open slot stream: %v", err)
		}
		end := offset + slot.Size
		if i == len(plan.Slots)-1 {
			end = int64(len(data))
		}
		if err := up.Send(&transport.UploadChunk{Chunk: data[offset:end], Slot: slot, LastSlot: i == len(plan.Slots)-1}); err != nil {
			t.Fatalf("send: %v", err)
		}
		resp, err := up.CloseAndRecv()
		if err != nil {
			t.Fatalf("close: %v", err)
		}
		if resp.StatusCode != transport.StatusOK {
			t.Fatalf("unexpected status: %d", resp.StatusCode)
		}
		offset = end
	}
}

func TestUploadDownloadRoundTrip(t *testing.T) {
	fake, c := fakenet.StartTransport(t, 1000, testCreds)
	ctx := context.Background()

	data := bytes.Repeat([]byte("0123456789"), 250)
	session, err := c.TransferInit(ctx, &transport.TransferInitRequest{
		Files:          []string{"a.bin"},
		TotalSize:      int64(len(data)),
		UserID:         testCreds.UserID,
		RecipientCount: 1,
		Paths:          []string{"/tmp/a.bin"},
		DeleteAfter:    transport.TransferRetentionHours,
	})
	if err != nil {
		t.Fatalf("transfer init: %v", err)
	}
	fileUUID := session.BaseUUIDs["/tmp/a.bin"]
	if session.SessionID == "" || fileUUID == "" {
		t.Fatalf("unexpected session: %+v", session)
	}

	meta := transport.UploadMeta{UUID: fileUUID, BaseUUID: fileUUID, SessionID: session.SessionID}
	plan, err := c.UploadInit(ctx, meta, &transport.UploadInitRequest{
		SessionID: session.SessionID,
		FileName:  "/tmp/a.bin",
		FileSize:  int64(len(data)),
		UserID:    testCreds.UserID,
	})
	if err != nil {
		t.Fatalf("upload init: %v", err)
	}
	if len(plan.Slots) != 3 || plan.BaseUUID != fileUUID {
		t.Fatalf("unexpected plan: %d slots, base %q", len(plan.Slots), plan.BaseUUID)
	}
	if plan.Slots[0].UserID != testCreds.UserID {
		t.Fatalf("credentials not propagated: %+v", plan.Slots[0])
	}
	uploadAll(t, c, meta, plan, data)

	if err := c.TransferFinish(ctx, &transport.FinishRequest{SessionID: session.SessionID, UserID: testCreds.UserID}); err != nil {
		t.Fatalf("finish: %v", err)
	}
	if got := fake.Finished(); len(got) != 1 || got[0] != session.SessionID {
		t.Fatalf("unexpected finished sessions: %v", got)
	}

	recv, err := c.Download(ctx, &transport.DownloadRequest{UUID: fileUUID, Slots: plan.Slots, UserID: testCreds.UserID})
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	var got bytes.Buffer
	for {
		chunk, err := recv.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("recv: %v", err)
		}
		got.Write(chunk.Chunk)
	}
	if !bytes.Equal(got.Bytes(), data) {
		t.Fatalf("downloaded %d bytes, want %d", got.Len(), len(data))
	}

	for _, slot := range plan.Slots {
		if err := c.Delete(ctx, &transport.DeleteRequest{UUID: slot.UUID, StorageCode: slot.StorageCode, Slot: slot, UserID: testCreds.UserID}); err != nil {
			t.Fatalf("delete: %v", err)
		}
	}
	if fake.SlotCount() != 0 || len(fake.Deleted()) != 3 {
		t.Fatalf("slots not deleted: count=%d", fake.SlotCount())
	}
	err = c.Delete(ctx, &transport.DeleteRequest{UUID: plan.Slots[0].UUID, UserID: testCreds.UserID})
	if !errors.Is(err, apperrors.ErrTransport) || !strings.Contains(err.Error(), "slot not found") {
		t.Fatalf("expected remote message in transport error, got %v", err)
	}
}

func TestUploadStatusIsReported(t *testing.T) {
	fake, c := fakenet.StartTransport(t, 0, testCreds)
	fake.SetUploadStatus(3)
	ctx := context.Background()

	session, err := c.StorageInit(ctx, &transport.StorageInitRequest{Paths: []string{"f"}, OpCode: transport.OpCodeStorage, UserID: 7})
	if err != nil {
		t.Fatalf("storage init: %v", err)
	}
	meta := transport.UploadMeta{UUID: session.BaseUUIDs["f"], BaseUUID: session.BaseUUIDs["f"], SessionID: session.SessionID}
	plan, err := c.UploadInit(ctx, meta, &transport.UploadInitRequest{SessionID: session.SessionID, FileName: "f", FileSize: 10})
	if err != nil {
		t.Fatalf("upload init: %v", err)
	}
	up, err := c.UploadSlot(ctx, meta)
	if err != nil {
		t.Fatalf("open slot stream: %v", err)
	}
	if err := up.Send(&transport.UploadChunk{Chunk: make([]byte, 10), Slot: plan.Slots[0], LastSlot: true}); err != nil {
		t.Fatalf("send: %v", err)
	}
	resp, err := up.CloseAndRecv()
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if resp.StatusCode == transport.StatusOK {
		t.Fatal("expected a failing status code")
	}
}

func TestCallsRequireCredentials(t *testing.T) {
	_, c := fakenet.StartTransport(t, 0, transport.Credentials{UserID: 7})
	_, err := c.TransferInit(context.Background(), &transport.TransferInitRequest{Paths: []string{"x"}})
	if !errors.Is(err, apperrors.ErrTransport) || !strings.Contains(err.Error(), "missing api credentials") {
		t.Fatalf("expected unauthenticated transport error, got %v", err)
	}
}

func TestDialValidatesTarget(t *testing.T) {
	if _, err := transport.Dial(transport.DialConfig{Target: " "}, testCreds, transport.Options{}); !apperrors.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestOpCodeString(t *testing.T) {
	if transport.OpCodeTransfer.String() != "transfer" || transport.OpCodeStorage.String() != "storage" || transport.OpCode(9).String() != "unknown" {
		t.Fatal("unexpected op code names")
	}
}
