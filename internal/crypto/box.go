package crypto

import (
	"crypto/rand"
	"fmt"

	"transferchain/go-sdk/internal/apperrors"
	"transferchain/go-sdk/internal/identity"

	"golang.org/x/crypto/nacl/box"
)

const nonceSize = 24

// EncryptAsymmetric seals plaintext for the owner of recipientAddress with
// the sender's Curve25519 private key (the raw seed). The output is
// nonce || box.
func EncryptAsymmetric(senderSeed []byte, recipientAddress string, plaintext []byte) ([]byte, error) {
	priv, err := key32(senderSeed)
	if err != nil {
		return nil, err
	}
	recipientPub, err := identity.PublicEncryptKeyFromAddress(recipientAddress)
	if err != nil {
		return nil, err
	}
	pub, err := key32(recipientPub)
	if err != nil {
		return nil, err
	}

	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, err
	}
	return box.Seal(nonce[:], plaintext, &nonce, pub, priv), nil
}

// DecryptAsymmetric opens a message sealed by the owner of senderAddress.
func DecryptAsymmetric(senderAddress string, recipientSeed []byte, encrypted []byte) ([]byte, error) {
	priv, err := key32(recipientSeed)
	if err != nil {
		return nil, err
	}
	senderPub, err := identity.PublicEncryptKeyFromAddress(senderAddress)
	if err != nil {
		return nil, err
	}
	pub, err := key32(senderPub)
	if err != nil {
		return nil, err
	}
	if len(encrypted) < nonceSize+box.Overhead {
		return nil, fmt.Errorf("%w: message too short", apperrors.ErrDecryption)
	}

	var nonce [nonceSize]byte
	copy(nonce[:], encrypted[:nonceSize])
	plain, ok := box.Open(nil, encrypted[nonceSize:], &nonce, pub, priv)
	if !ok {
		return nil, apperrors.ErrDecryption
	}
	return plain, nil
}

func key32(raw []byte) (*[32]byte, error) {
	if len(raw) != 32 {
		return nil, fmt.Errorf("%w: key must be 32 bytes, got %d", apperrors.ErrInvalidSeed, len(raw))
	}
	var out [32]byte
	copy(out[:], raw)
	return &out, nil
}
