package transfer_test

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"transferchain/go-sdk/internal/apperrors"
	"transferchain/go-sdk/internal/blockchain"
	"transferchain/go-sdk/internal/identity"
	"transferchain/go-sdk/internal/slotio"
	"transferchain/go-sdk/internal/testutil/fakenet"
	"transferchain/go-sdk/internal/transaction"
	"transferchain/go-sdk/internal/transfer"
	"transferchain/go-sdk/internal/transport"
	"transferchain/go-sdk/pkg/models"
)

var testMnemonic = strings.Repeat("abandon ", 23) + "art"

type fixture struct {
	node  *fakenet.ReadNode
	fake  *fakenet.Transport
	svc   *transfer.Service
	user  models.User
	other models.User
	now   time.Time
}

// smallUser builds a user with a master and three disposable addresses.
func smallUser(t *testing.T, id string) models.User {
	t.Helper()
	password := "user-" + id
	master, err := identity.KeysFromMnemonic(testMnemonic, password)
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	u := models.User{ID: id, ParentUserID: id, Master: true}
	u.MasterAddress = models.Address{Key: master.Record(), Master: true}
	u.Addresses = append(u.Addresses, u.MasterAddress)
	for i := 0; i < 3; i++ {
		k, err := identity.KeysFromMnemonic(testMnemonic, identity.AddressPassword(password, i))
		if err != nil {
			t.Fatalf("keys: %v", err)
		}
		u.Addresses = append(u.Addresses, models.Address{Key: k.Record(), MasterAddress: master.Address})
	}
	return u
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	node, srv := fakenet.StartReadNode(t)
	chain, err := blockchain.New(srv.URL, blockchain.Options{})
	if err != nil {
		t.Fatalf("blockchain: %v", err)
	}
	fake, rpc := fakenet.StartTransport(t, 1024, transport.Credentials{UserID: 7, APIToken: "t", APISecret: "s"})
	pipeline := slotio.New(rpc, slotio.Account{UserID: 7, WalletID: 101}, slotio.Options{TempDir: t.TempDir()})
	f := &fixture{
		node:  node,
		fake:  fake,
		user:  smallUser(t, "7"),
		other: smallUser(t, "8"),
		now:   time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	f.svc = transfer.New(rpc, pipeline, chain, transfer.Options{Now: func() time.Time { return f.now }})
	return f
}

func writeFile(t *testing.T, name string, size int) (string, []byte) {
	t.Helper()
	data := make([]byte, size)
	_, _ = rand.Read(data)
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path, data
}

func TestUploadAnnouncesToEveryRecipient(t *testing.T) {
	f := newFixture(t)
	a, _ := writeFile(t, "a.txt", 3000)
	b, _ := writeFile(t, "b.txt", 10)
	sender := f.user.Addresses[1]
	recipients := []string{f.other.Addresses[1].Key.Address, f.other.Addresses[2].Key.Address}

	var mu sync.Mutex
	var notified []string
	report, err := f.svc.Upload(context.Background(), transfer.UploadRequest{
		Files:      []string{a, b},
		Sender:     sender,
		Recipients: recipients,
		Note:       "hello",
		OnFile: func(r models.FileResult) {
			mu.Lock()
			notified = append(notified, r.Path)
			mu.Unlock()
		},
	})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if len(report.Files) != 2 || len(report.Failed()) != 0 || len(notified) != 2 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if got := f.fake.Finished(); len(got) != 1 || got[0] != report.SessionID {
		t.Fatalf("session not finished: %v", got)
	}

	rec := report.Files[0].Transfer
	if rec == nil || rec.FileName != "a.txt" || len(rec.Slots) != 4 || rec.SenderAddress != sender.Key.Address {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if rec.UploadDate != "2024-05-01T12:00:00Z" || rec.EndTime != "2024-05-08T12:00:00Z" {
		t.Fatalf("unexpected dates: %s %s", rec.UploadDate, rec.EndTime)
	}

	txs := f.node.Transactions(models.TxTypeTransfer)
	if len(txs) != 6 {
		t.Fatalf("expected 2 recipients + 1 sent record per file, got %d", len(txs))
	}
	recipientKeys, _ := identity.KeysFromRecord(f.other.Addresses[2].Key)
	senderKeys, _ := identity.KeysFromRecord(sender.Key)
	var sawNormal, sawSent bool
	for _, tx := range txs {
		var p models.TransferPayload
		switch tx.RecipientAddress {
		case recipientKeys.Address:
			if err := transaction.OpenTransaction(tx, recipientKeys, false, &p); err != nil {
				t.Fatalf("recipient open: %v", err)
			}
			if p.Typ != models.TransferNormal || p.ReceivedAddress != recipientKeys.Address || p.Message != "hello" {
				t.Fatalf("unexpected recipient payload: %+v", p)
			}
			sawNormal = true
		case senderKeys.Address:
			if err := transaction.OpenTransaction(tx, senderKeys, false, &p); err != nil {
				t.Fatalf("sender open: %v", err)
			}
			if p.Typ != models.TransferSentMark || len(p.ReceivedAddresses) != 2 || p.ReceivedAddress != recipients[0] {
				t.Fatalf("unexpected sent payload: %+v", p)
			}
			if p.UUID == rec.UUID && tx.TxID != rec.TxID {
				t.Fatal("record must carry the sent transaction id")
			}
			sawSent = true
		}
	}
	if !sawNormal || !sawSent {
		t.Fatal("missing recipient or sent transactions")
	}
}

func TestUploadDownloadRoundTrip(t *testing.T) {
	f := newFixture(t)
	path, data := writeFile(t, "doc.bin", 1024)
	sender := f.user.Addresses[2]
	report, err := f.svc.Upload(context.Background(), transfer.UploadRequest{
		Files: []string{path}, Sender: sender, Recipients: []string{sender.Key.Address},
	})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	rec := report.Files[0].Transfer
	if rec == nil || len(rec.Slots) == 0 {
		t.Fatalf("upload failed: %v", report.Files[0].Err)
	}
	out, err := f.svc.Download(context.Background(), transfer.DownloadRequest{
		UUID: rec.UUID, Slots: rec.Slots, Size: rec.Size, FileName: rec.FileName,
		KeyAES: rec.KeyAES, KeyHMAC: rec.KeyHMAC, Destination: t.TempDir(),
	})
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	got, _ := os.ReadFile(out)
	if !bytes.Equal(got, data) {
		t.Fatal("downloaded content differs")
	}
}

func TestRejectedAnnouncementCancelsOnlyThatFile(t *testing.T) {
	f := newFixture(t)
	good, _ := writeFile(t, "good.txt", 100)
	bad, _ := writeFile(t, "bad.txt", 100)
	f.node.SetRejectBroadcast(func(tx models.Transaction) string {
		if tx.TxType != models.TxTypeTransfer {
			return ""
		}
		var p models.TransferPayload
		keys, _ := identity.KeysFromRecord(f.other.Addresses[1].Key)
		if transaction.OpenTransaction(tx, keys, false, &p) == nil && p.FileName == "bad.txt" {
			return "rejected"
		}
		return ""
	})

	report, err := f.svc.Upload(context.Background(), transfer.UploadRequest{
		Files:      []string{good, bad},
		Sender:     f.user.Addresses[1],
		Recipients: []string{f.other.Addresses[1].Key.Address},
	})
	if err != nil {
		t.Fatalf("finish should still succeed: %v", err)
	}
	failed := report.Failed()
	if len(failed) != 1 || failed[0].Path != bad || !errors.Is(failed[0].Err, apperrors.ErrPublication) {
		t.Fatalf("unexpected failures: %+v", failed)
	}
	if f.fake.SlotCount() != len(report.Files[0].Slots()) {
		t.Fatalf("only the rejected file may be cancelled, %d slots left", f.fake.SlotCount())
	}
}

func TestFinishFailureRollsBackEveryFile(t *testing.T) {
	f := newFixture(t)
	a, _ := writeFile(t, "a", 2000)
	b, _ := writeFile(t, "b", 500)
	f.fake.SetFailFinish(true)

	report, err := f.svc.Upload(context.Background(), transfer.UploadRequest{
		Files:      []string{a, b},
		Sender:     f.user.Addresses[1],
		Recipients: []string{f.other.Addresses[1].Key.Address},
	})
	if !errors.Is(err, apperrors.ErrTransport) {
		t.Fatalf("expected finish transport error, got %v", err)
	}
	if len(report.Files) != 2 || len(report.Failed()) != 0 {
		t.Fatal("per-file results must survive a failed finish")
	}
	if f.fake.SlotCount() != 0 {
		t.Fatalf("finish failure must cancel every slot, %d left", f.fake.SlotCount())
	}
}

func TestUploadValidation(t *testing.T) {
	f := newFixture(t)
	path, _ := writeFile(t, "a", 10)
	sender := f.user.Addresses[1]
	cases := []transfer.UploadRequest{
		{Files: []string{path}, Sender: sender},
		{Files: []string{path}, Sender: sender, Recipients: []string{"not-an-address"}},
		{Files: nil, Sender: sender, Recipients: []string{sender.Key.Address}},
		{Files: []string{path + ".missing"}, Sender: sender, Recipients: []string{sender.Key.Address}},
		{Files: []string{path}, Sender: models.Address{}, Recipients: []string{sender.Key.Address}},
	}
	for i, req := range cases {
		if _, err := f.svc.Upload(context.Background(), req); !apperrors.IsValidation(err) {
			t.Fatalf("case %d: expected validation error, got %v", i, err)
		}
	}
	if len(f.node.Transactions("")) != 0 || f.fake.SlotCount() != 0 {
		t.Fatal("validation failures must not reach the network")
	}
}

func TestDeleteReceived(t *testing.T) {
	f := newFixture(t)
	if err := f.svc.DeleteReceived(context.Background(), f.other, "file-uuid", "tx-1"); err != nil {
		t.Fatalf("delete received: %v", err)
	}
	txs := f.node.Transactions(models.TxTypeTransferReceiveDelete)
	if len(txs) != 1 {
		t.Fatalf("expected one tombstone, got %d", len(txs))
	}
	to, ok := f.other.FindAddress(txs[0].RecipientAddress)
	if !ok || to.Master {
		t.Fatal("tombstone must go to a disposable address of the user")
	}
	keys, _ := identity.KeysFromRecord(to.Key)
	var p models.TransferReceiveDeletePayload
	if err := transaction.OpenTransaction(txs[0], keys, false, &p); err != nil {
		t.Fatalf("open: %v", err)
	}
	if p.UUID != "file-uuid" || p.TxID != "tx-1" || p.Typ != models.TransferTypeSent {
		t.Fatalf("unexpected payload: %+v", p)
	}

	if err := f.svc.DeleteReceived(context.Background(), f.other, " ", ""); !apperrors.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func uploadOne(t *testing.T, f *fixture, recipients []string) *models.TransferRecord {
	t.Helper()
	path, _ := writeFile(t, "f.bin", 3000)
	report, err := f.svc.Upload(context.Background(), transfer.UploadRequest{
		Files: []string{path}, Sender: f.user.Addresses[1], Recipients: recipients,
	})
	if err != nil || report.Files[0].Transfer == nil {
		t.Fatalf("upload: %v / %v", err, report.Files[0].Err)
	}
	return report.Files[0].Transfer
}

func TestDeleteSentRemovesSlotsAndNotifies(t *testing.T) {
	f := newFixture(t)
	recipients := []string{f.other.Addresses[1].Key.Address, f.other.Addresses[3].Key.Address}
	rec := uploadOne(t, f, recipients)

	if err := f.svc.DeleteSent(context.Background(), f.user, *rec); err != nil {
		t.Fatalf("delete sent: %v", err)
	}
	if f.fake.SlotCount() != 0 {
		t.Fatal("slots must be deleted")
	}
	cancels := f.node.Transactions(models.TxTypeTransferCancel)
	if len(cancels) != 3 {
		t.Fatalf("expected one cancel per recipient plus one to self, got %d", len(cancels))
	}
	for i, r := range recipients {
		if cancels[i].RecipientAddress != r {
			t.Fatalf("cancel %d went to %s", i, cancels[i].RecipientAddress)
		}
	}
	if _, ok := f.user.FindAddress(cancels[2].RecipientAddress); !ok {
		t.Fatal("last cancel must go to the sender's own address")
	}
}

func TestDeleteSentFallsBackToSingleRecipient(t *testing.T) {
	f := newFixture(t)
	rec := uploadOne(t, f, []string{f.other.Addresses[2].Key.Address})
	rec.ReceivedAddresses = nil
	if err := f.svc.DeleteSent(context.Background(), f.user, *rec); err != nil {
		t.Fatalf("delete sent: %v", err)
	}
	cancels := f.node.Transactions(models.TxTypeTransferCancel)
	if len(cancels) != 2 || cancels[0].RecipientAddress != rec.ReceivedAddress {
		t.Fatalf("unexpected cancels: %d", len(cancels))
	}
}

func TestDeleteSentStopsWhenSlotsFail(t *testing.T) {
	f := newFixture(t)
	rec := uploadOne(t, f, []string{f.other.Addresses[1].Key.Address})
	f.fake.SetFailDelete(func(id string) bool { return id == rec.Slots[0].UUID })

	err := f.svc.DeleteSent(context.Background(), f.user, *rec)
	if !errors.Is(err, apperrors.ErrTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if n := len(f.node.Transactions(models.TxTypeTransferCancel)); n != 0 {
		t.Fatalf("no cancel may be announced after a failed slot delete, got %d", n)
	}
	if f.fake.SlotCount() != 1 {
		t.Fatalf("other slots stay deleted, %d left", f.fake.SlotCount())
	}
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	rec := uploadOne(t, f, []string{f.other.Addresses[1].Key.Address})
	if err := f.svc.Cancel(context.Background(), rec.Slots); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if f.fake.SlotCount() != 0 {
		t.Fatal("slots must be cancelled")
	}
	if err := f.svc.Cancel(context.Background(), nil); !apperrors.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRetention(t *testing.T) {
	if transfer.Retention != 7*24*time.Hour {
		t.Fatalf("unexpected retention %v", transfer.Retention)
	}
}
