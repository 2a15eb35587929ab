package securestore

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"

	"transferchain/go-sdk/internal/crypto"
)

var (
	ErrAuthFailed = errors.New("securestore authentication failed")
	ErrInvalid    = errors.New("securestore envelope is invalid")
)

// Seal marshals v to JSON, encrypts it with the local AES-GCM scheme keyed
// by passphrase and returns the base64 text stored on disk.
func Seal(passphrase string, v any) (string, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	encrypted, err := Encrypt(passphrase, payload)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(encrypted), nil
}

// Open reverses Seal into v.
func Open(passphrase, sealed string, v any) error {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(sealed))
	if err != nil {
		return ErrInvalid
	}
	plain, err := Decrypt(passphrase, raw)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(plain, v); err != nil {
		return ErrInvalid
	}
	return nil
}

func Encrypt(passphrase string, plaintext []byte) ([]byte, error) {
	if strings.TrimSpace(passphrase) == "" {
		return nil, ErrInvalid
	}
	return crypto.EncryptLocal(plaintext, passphrase)
}

func Decrypt(passphrase string, data []byte) ([]byte, error) {
	if strings.TrimSpace(passphrase) == "" {
		return nil, ErrInvalid
	}
	plain, err := crypto.DecryptLocal(data, passphrase)
	if err != nil {
		return nil, errors.Join(ErrAuthFailed, err)
	}
	return plain, nil
}
