package securestore

import (
	"errors"
	"testing"
)

func TestEncryptDecryptRoundtrip(t *testing.T) {
	data, err := Encrypt("pass", []byte("secret"))
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}
	plain, err := Decrypt("pass", data)
	if err != nil {
		t.Fatalf("decrypt failed: %v", err)
	}
	if string(plain) != "secret" {
		t.Fatalf("unexpected plaintext: %q", string(plain))
	}
}

func TestDecryptTamperedFailsDeterministically(t *testing.T) {
	data, err := Encrypt("pass", []byte("secret"))
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}
	data[len(data)-2] ^= 0xFF
	if _, err = Decrypt("pass", data); !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("expected ErrAuthFailed, got %v", err)
	}
}

func TestSealOpenJSON(t *testing.T) {
	type record struct {
		ID   string `json:"id"`
		Size int    `json:"size"`
	}
	sealed, err := Seal("words", record{ID: "7", Size: 3})
	if err != nil {
		t.Fatalf("seal failed: %v", err)
	}
	var got record
	if err := Open("words", sealed, &got); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if got.ID != "7" || got.Size != 3 {
		t.Fatalf("unexpected record: %+v", got)
	}
	if err := Open("other", sealed, &got); !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("expected ErrAuthFailed, got %v", err)
	}
	if err := Open("words", "%%%", &got); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
	if _, err := Seal(" ", record{}); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid for empty passphrase, got %v", err)
	}
}
