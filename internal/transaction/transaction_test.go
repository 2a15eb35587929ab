package transaction

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"transferchain/go-sdk/internal/apperrors"
	"transferchain/go-sdk/internal/identity"
	"transferchain/go-sdk/pkg/models"
)

func mustKeys(t *testing.T, password string) *identity.Keys {
	t.Helper()
	keys, err := identity.KeysFromMnemonic(strings.Repeat("abandon ", 23)+"art", password)
	if err != nil {
		t.Fatalf("derive keys: %v", err)
	}
	return keys
}

func TestCreateVerifyOpen(t *testing.T) {
	sender := mustKeys(t, "user-1")
	recipient := mustKeys(t, "user-2")
	payload := models.StorageDeletePayload{UUID: "u1", TxID: "t1", FileName: "a.txt"}

	tx, err := Create(models.TxTypeStorageDelete, sender, recipient.Address, payload)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if tx.Version != models.TransactionVersion || tx.Fee != 0 {
		t.Fatalf("unexpected header: %+v", tx)
	}
	if len(tx.TxID) != 128 {
		t.Fatalf("tx id must be sha512 hex, got %d chars", len(tx.TxID))
	}
	if !Verify(tx) {
		t.Fatal("expected transaction to verify")
	}

	var got models.StorageDeletePayload
	if err := OpenTransaction(tx, recipient, false, &got); err != nil {
		t.Fatalf("open: %v", err)
	}
	if got != payload {
		t.Fatalf("unexpected payload: %+v", got)
	}
	if err := Open(Record(tx, 1), sender, false, &got); !errors.Is(err, apperrors.ErrDecryption) {
		t.Fatalf("sender cannot open a message sealed to another key, got %v", err)
	}
}

func TestVerifyRejectsTampering(t *testing.T) {
	sender := mustKeys(t, "user-1")
	tx, err := Create(models.TxTypeTransfer, sender, sender.Address, map[string]string{"k": "v"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	changed := tx
	changed.TxType = models.TxTypeStorage
	if Verify(changed) {
		t.Fatal("changed type must not verify")
	}
	changed = tx
	changed.RecipientAddress = mustKeys(t, "other").Address
	if Verify(changed) {
		t.Fatal("changed recipient must not verify")
	}
	changed = tx
	changed.TxID = strings.Repeat("0", 128)
	if Verify(changed) {
		t.Fatal("changed tx id must not verify")
	}
}

func TestSigningBytesShape(t *testing.T) {
	tx := models.Transaction{
		Version:          2,
		TxType:           models.TxTypeTransfer,
		SenderAddress:    "S",
		RecipientAddress: "R",
		Data:             "a+b/<c>=",
	}
	got, err := SigningBytes(tx)
	if err != nil {
		t.Fatalf("signing bytes: %v", err)
	}
	want := `{"id":"","version":2,"type":"transfer","sender_addr":"S","recipient_addr":"R","data":"a+b/<c>=","sign":null,"fee":0}`
	if string(got) != want {
		t.Fatalf("unexpected signing bytes:\n%s\n%s", got, want)
	}
}

func TestCompressedRoundtrip(t *testing.T) {
	owner := mustKeys(t, "user-9")
	list := models.AddressList{UserID: 9, Addresses: []models.Address{{Key: owner.Record(), UserID: 9}}}
	tx, err := CreateCompressed(models.TxTypeAddresses, owner, owner.Address, list)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	var got models.AddressList
	if err := Open(Record(tx, 3), owner, true, &got); err != nil {
		t.Fatalf("open: %v", err)
	}
	if got.UserID != 9 || len(got.Addresses) != 1 || got.Addresses[0].Key.Address != owner.Address {
		t.Fatalf("unexpected list: %+v", got)
	}
	if err := Open(Record(tx, 3), owner, false, &got); err == nil {
		t.Fatal("compressed payload must not decode as plain json")
	}
}

func TestOpenRejectsBadData(t *testing.T) {
	owner := mustKeys(t, "x")
	rec := models.TxRecord{SenderAddr: owner.Address, Data: models.TxDataBlob{Bytes: "%%"}}
	var v map[string]any
	if err := Open(rec, owner, false, &v); !errors.Is(err, apperrors.ErrDecryption) {
		t.Fatalf("expected ErrDecryption, got %v", err)
	}
	rec.Data.Bytes = base64.StdEncoding.EncodeToString([]byte("short"))
	if err := Open(rec, owner, false, &v); !errors.Is(err, apperrors.ErrDecryption) {
		t.Fatalf("expected ErrDecryption, got %v", err)
	}
	if _, err := Create(models.TxTypeTransfer, nil, owner.Address, v); !apperrors.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
