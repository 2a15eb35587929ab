package slotio_test

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"transferchain/go-sdk/internal/apperrors"
	"transferchain/go-sdk/internal/slotio"
	"transferchain/go-sdk/internal/testutil/fakenet"
	"transferchain/go-sdk/internal/testutil/fsperm"
	"transferchain/go-sdk/internal/transport"
	"transferchain/go-sdk/pkg/models"
)

var testCreds = transport.Credentials{UserID: 7, APIToken: "tok", APISecret: "sec"}

type fixture struct {
	fake     *fakenet.Transport
	client   *transport.Client
	pipeline *slotio.Pipeline
}

func newFixture(t *testing.T, slotSize int64) fixture {
	t.Helper()
	fake, client := fakenet.StartTransport(t, slotSize, testCreds)
	p := slotio.New(client, slotio.Account{UserID: 7, WalletID: 101}, slotio.Options{TempDir: t.TempDir()})
	return fixture{fake: fake, client: client, pipeline: p}
}

func writeRandomFile(t *testing.T, dir, name string, size int) (string, []byte) {
	t.Helper()
	data := make([]byte, size)
	if _, err := rand.Read(data); err != nil {
		t.Fatalf("rand: %v", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path, data
}

func (f fixture) upload(t *testing.T, path string) (*slotio.EncryptedFile, *transport.UploadInitResponse, error) {
	t.Helper()
	ctx := context.Background()
	session, err := f.client.TransferInit(ctx, &transport.TransferInitRequest{Paths: []string{path}})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	enc, err := f.pipeline.Encrypt(path)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	t.Cleanup(func() { _ = enc.Remove() })
	plan, err := f.pipeline.UploadFile(ctx, slotio.Upload{
		SessionID: session.SessionID,
		FileUUID:  session.BaseUUIDs[path],
		FileName:  path,
		OpCode:    transport.OpCodeTransfer,
	}, enc)
	return enc, plan, err
}

func TestUploadSlotsFollowPlanAndDownloadRoundTrip(t *testing.T) {
	f := newFixture(t, 1000)
	dir := t.TempDir()
	path, data := writeRandomFile(t, dir, "report.bin", 5000)

	enc, plan, err := f.upload(t, path)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if enc.Size != int64(len(data))+81 {
		t.Fatalf("unexpected ciphertext size: %d", enc.Size)
	}
	if len(plan.Slots) != 6 {
		t.Fatalf("expected 6 slots, got %d", len(plan.Slots))
	}
	fsperm.AssertPrivateDirPerm(t, filepath.Dir(enc.Path))
	fsperm.AssertPrivateFilePerm(t, enc.Path)
	cipher, err := os.ReadFile(enc.Path)
	if err != nil {
		t.Fatalf("read ciphertext: %v", err)
	}
	offset := int64(0)
	for i, slot := range plan.Slots {
		got, ok := f.fake.SlotData(slot.UUID)
		if !ok {
			t.Fatalf("slot %d missing", i)
		}
		if !bytes.Equal(got, cipher[offset:offset+slot.Size]) {
			t.Fatalf("slot %d holds the wrong byte range", i)
		}
		offset += slot.Size
	}

	out := t.TempDir()
	target, err := f.pipeline.Download(context.Background(), slotio.Download{
		UUID:        plan.BaseUUID,
		Slots:       plan.Slots,
		Size:        enc.Size,
		FileName:    "report.bin",
		KeyAES:      enc.KeyAES,
		KeyHMAC:     enc.KeyHMAC,
		Destination: out,
		OpCode:      transport.OpCodeTransfer,
	})
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	got, err := os.ReadFile(target)
	if err != nil || !bytes.Equal(got, data) {
		t.Fatalf("recovered file differs (%v)", err)
	}
	fsperm.AssertPrivateFilePerm(t, target)
}

func TestUploadLargerThanOneChunk(t *testing.T) {
	f := newFixture(t, 3*slotio.UploadChunkSize/2)
	path, _ := writeRandomFile(t, t.TempDir(), "big.bin", 2*slotio.UploadChunkSize)
	enc, plan, err := f.upload(t, path)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	var total int
	for _, slot := range plan.Slots {
		got, _ := f.fake.SlotData(slot.UUID)
		total += len(got)
	}
	if int64(total) != enc.Size {
		t.Fatalf("uploaded %d bytes, want %d", total, enc.Size)
	}
}

func TestFailedSlotCancelsGrantedSlots(t *testing.T) {
	f := newFixture(t, 1000)
	f.fake.SetUploadStatus(2)
	path, _ := writeRandomFile(t, t.TempDir(), "a.bin", 3000)

	_, _, err := f.upload(t, path)
	if !errors.Is(err, apperrors.ErrTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if f.fake.SlotCount() != 0 || len(f.fake.Deleted()) != 4 {
		t.Fatalf("granted slots must be cancelled: left=%d deleted=%d", f.fake.SlotCount(), len(f.fake.Deleted()))
	}
}

func plannedSlots(t *testing.T, f fixture, n int64) []models.Slot {
	t.Helper()
	ctx := context.Background()
	session, err := f.client.StorageInit(ctx, &transport.StorageInitRequest{Paths: []string{"x"}})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	plan, err := f.client.UploadInit(ctx, transport.UploadMeta{SessionID: session.SessionID},
		&transport.UploadInitRequest{SessionID: session.SessionID, FileSize: n * 100})
	if err != nil {
		t.Fatalf("upload init: %v", err)
	}
	return plan.Slots
}

func TestCancelUploadStopsAtFirstFailure(t *testing.T) {
	f := newFixture(t, 100)
	slots := plannedSlots(t, f, 4)
	f.fake.SetFailDelete(func(id string) bool { return id == slots[1].UUID })

	err := f.pipeline.CancelUpload(context.Background(), slots, transport.OpCodeStorage)
	if err == nil {
		t.Fatal("expected error")
	}
	if got := f.fake.Deleted(); len(got) != 1 || got[0] != slots[0].UUID {
		t.Fatalf("cancel must stop after the first failure, deleted %v", got)
	}
}

func TestDeleteSlotsAttemptsEverySlot(t *testing.T) {
	f := newFixture(t, 100)
	slots := plannedSlots(t, f, 5)
	f.fake.SetFailDelete(func(id string) bool { return id == slots[1].UUID || id == slots[3].UUID })

	err := f.pipeline.DeleteSlots(context.Background(), slots, transport.OpCodeTransfer)
	if !errors.Is(err, apperrors.ErrTransport) {
		t.Fatalf("expected aggregated transport error, got %v", err)
	}
	if len(f.fake.Deleted()) != 3 || f.fake.SlotCount() != 2 {
		t.Fatalf("expected 3 deletions to stick, got %d", len(f.fake.Deleted()))
	}

	f.fake.SetFailDelete(nil)
	if err := f.pipeline.DeleteSlots(context.Background(), slots[1:2], transport.OpCodeTransfer); err != nil {
		t.Fatalf("retry delete: %v", err)
	}
}

func TestDownloadWithWrongKeyLeavesNothing(t *testing.T) {
	f := newFixture(t, 1000)
	path, _ := writeRandomFile(t, t.TempDir(), "a.bin", 1500)
	enc, plan, err := f.upload(t, path)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	out := t.TempDir()
	_, err = f.pipeline.Download(context.Background(), slotio.Download{
		UUID:        plan.BaseUUID,
		Slots:       plan.Slots,
		Size:        enc.Size,
		FileName:    "a.bin",
		KeyAES:      enc.KeyAES,
		KeyHMAC:     "0123456789abcdef0123456789abcdef",
		Destination: out,
	})
	if !errors.Is(err, apperrors.ErrIntegrity) {
		t.Fatalf("expected integrity error, got %v", err)
	}
	if _, statErr := os.Stat(filepath.Join(out, "a.bin")); !os.IsNotExist(statErr) {
		t.Fatal("no file may be left at the destination")
	}
}

func TestFailedDownloadKeepsExistingFile(t *testing.T) {
	f := newFixture(t, 1000)
	path, _ := writeRandomFile(t, t.TempDir(), "a.bin", 1500)
	enc, plan, err := f.upload(t, path)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	out := t.TempDir()
	existing := []byte("keep me")
	if err := os.WriteFile(filepath.Join(out, "a.bin"), existing, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err = f.pipeline.Download(context.Background(), slotio.Download{
		UUID:        plan.BaseUUID,
		Slots:       plan.Slots,
		Size:        enc.Size,
		FileName:    "a.bin",
		KeyAES:      enc.KeyAES,
		KeyHMAC:     "0123456789abcdef0123456789abcdef",
		Destination: out,
	})
	if !errors.Is(err, apperrors.ErrIntegrity) {
		t.Fatalf("expected integrity error, got %v", err)
	}
	got, err := os.ReadFile(filepath.Join(out, "a.bin"))
	if err != nil {
		t.Fatalf("existing file is gone: %v", err)
	}
	if !bytes.Equal(got, existing) {
		t.Fatalf("existing file was overwritten: %q", got)
	}
	entries, err := os.ReadDir(out)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".tcsdk-") {
			t.Fatalf("partial output %s left behind", e.Name())
		}
	}
}

func TestFailedSlotReadReleasesStream(t *testing.T) {
	f := newFixture(t, 1000)
	path, _ := writeRandomFile(t, t.TempDir(), "a.bin", 1500)
	ctx := context.Background()
	session, err := f.client.TransferInit(ctx, &transport.TransferInitRequest{Paths: []string{path}})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	enc, err := f.pipeline.Encrypt(path)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	t.Cleanup(func() { _ = enc.Remove() })
	// A directory in place of the ciphertext opens fine but fails on read.
	if err := os.Remove(enc.Path); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := os.Mkdir(enc.Path, 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	_, err = f.pipeline.UploadFile(ctx, slotio.Upload{
		SessionID: session.SessionID,
		FileUUID:  session.BaseUUIDs[path],
		FileName:  path,
		OpCode:    transport.OpCodeTransfer,
	}, enc)
	if err == nil {
		t.Fatal("expected read failure")
	}
	deadline := time.Now().Add(5 * time.Second)
	for f.fake.OpenStreams() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("upload stream still open after the slot failed")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestDownloadValidation(t *testing.T) {
	f := newFixture(t, 0)
	dir := t.TempDir()
	filePath, _ := writeRandomFile(t, dir, "plain", 1)
	valid := slotio.Download{
		UUID: "u", Slots: []models.Slot{{UUID: "s"}}, Size: 1, FileName: "f",
		KeyAES: "a", KeyHMAC: "h", Destination: dir,
	}
	cases := map[string]func(d *slotio.Download){
		"uuid":        func(d *slotio.Download) { d.UUID = "" },
		"slots":       func(d *slotio.Download) { d.Slots = nil },
		"size":        func(d *slotio.Download) { d.Size = 0 },
		"name":        func(d *slotio.Download) { d.FileName = "../escape" },
		"key_aes":     func(d *slotio.Download) { d.KeyAES = "" },
		"key_hmac":    func(d *slotio.Download) { d.KeyHMAC = "" },
		"missing dir": func(d *slotio.Download) { d.Destination = filepath.Join(dir, "nope") },
		"not a dir":   func(d *slotio.Download) { d.Destination = filePath },
	}
	for name, mutate := range cases {
		d := valid
		mutate(&d)
		if _, err := f.pipeline.Download(context.Background(), d); !apperrors.IsValidation(err) {
			t.Fatalf("%s: expected validation error, got %v", name, err)
		}
	}
}

func TestEachRecoversPanics(t *testing.T) {
	out := slotio.Each(context.Background(), 5, 2,
		func(_ context.Context, i int) error {
			if i == 3 {
				panic("boom")
			}
			return nil
		},
		func(_ int, v any) error { return slotio.PanicError(v) },
	)
	for i, err := range out {
		if (i == 3) != (err != nil) {
			t.Fatalf("unexpected result at %d: %v", i, err)
		}
	}
}
