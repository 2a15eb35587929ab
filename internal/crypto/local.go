package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"transferchain/go-sdk/internal/apperrors"
)

const (
	localNonceSize = 16
	localTagSize   = 16
)

// HashTo32Bytes turns an arbitrary key string into an AES-256 key.
func HashTo32Bytes(key string) []byte {
	sum := sha256.Sum256([]byte(key))
	return sum[:]
}

// EncryptLocal is AES-256-GCM under SHA-256(key) with a 16-byte nonce.
// Output: nonce || ciphertext || tag.
func EncryptLocal(plaintext []byte, key string) ([]byte, error) {
	aead, err := localAEAD(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, localNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

func DecryptLocal(data []byte, key string) ([]byte, error) {
	if len(data) < localNonceSize+localTagSize {
		return nil, fmt.Errorf("%w: local payload too short", apperrors.ErrDecryption)
	}
	aead, err := localAEAD(key)
	if err != nil {
		return nil, err
	}
	plain, err := aead.Open(nil, data[:localNonceSize], data[localNonceSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrDecryption, err)
	}
	return plain, nil
}

func localAEAD(key string) (cipher.AEAD, error) {
	block, err := aes.NewCipher(HashTo32Bytes(key))
	if err != nil {
		return nil, err
	}
	return cipher.NewGCMWithNonceSize(block, localNonceSize)
}
