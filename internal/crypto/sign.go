package crypto

import (
	"crypto/ed25519"
	"fmt"

	"transferchain/go-sdk/internal/apperrors"
	"transferchain/go-sdk/internal/identity"
)

// Sign returns a detached Ed25519 signature. privateKeySign is the 64-byte
// seed||public key form.
func Sign(privateKeySign []byte, data []byte) ([]byte, error) {
	if len(privateKeySign) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("%w: signing key must be %d bytes", apperrors.ErrInvalidSeed, ed25519.PrivateKeySize)
	}
	return ed25519.Sign(ed25519.PrivateKey(privateKeySign), data), nil
}

// Verify checks signature against the signing half of address. Any
// malformed input reports false.
func Verify(address string, data, signature []byte) bool {
	pub, err := identity.PublicSignKeyFromAddress(address)
	if err != nil || len(signature) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub), data, signature)
}
