package crypto

import (
	"crypto/rand"
	"encoding/hex"
)

// FileKeySize is the length of the AES and HMAC keys generated per upload.
const FileKeySize = 32

// GenerateEncryptKey returns size random hex characters. The characters
// themselves are the key bytes; the string form is what travels inside
// transaction payloads.
func GenerateEncryptKey(size int) (string, error) {
	if size <= 0 {
		return "", nil
	}
	raw := make([]byte, (size+1)/2)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw)[:size], nil
}

// FileKeys is a fresh AES/HMAC pair for one file.
func FileKeys() (aesKey, hmacKey string, err error) {
	if aesKey, err = GenerateEncryptKey(FileKeySize); err != nil {
		return "", "", err
	}
	if hmacKey, err = GenerateEncryptKey(FileKeySize); err != nil {
		return "", "", err
	}
	return aesKey, hmacKey, nil
}
