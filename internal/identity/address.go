package identity

import (
	"encoding/hex"
	"fmt"

	"transferchain/go-sdk/internal/apperrors"

	"github.com/mr-tron/base58/base58"
)

const (
	publicKeySize = 32
	addressSize   = 2 * publicKeySize
)

func EncodeBase58(raw []byte) string {
	return base58.Encode(raw)
}

func DecodeBase58(encoded string) ([]byte, error) {
	return base58.Decode(encoded)
}

// EncodeBase58Hex encodes hex-encoded bytes.
func EncodeBase58Hex(hexValue string) (string, error) {
	raw, err := hex.DecodeString(hexValue)
	if err != nil {
		return "", err
	}
	return base58.Encode(raw), nil
}

// DecodeBase58Hex decodes into a hex string.
func DecodeBase58Hex(encoded string) (string, error) {
	raw, err := base58.Decode(encoded)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(raw), nil
}

func JoinAddress(signPub, encryptPub []byte) (string, error) {
	if len(signPub) != publicKeySize || len(encryptPub) != publicKeySize {
		return "", fmt.Errorf("%w: public keys must be %d bytes", apperrors.ErrInvalidAddress, publicKeySize)
	}
	raw := make([]byte, 0, addressSize)
	raw = append(raw, signPub...)
	raw = append(raw, encryptPub...)
	return base58.Encode(raw), nil
}

// SplitAddress returns the Ed25519 and Curve25519 halves of an address.
func SplitAddress(address string) (signPub, encryptPub []byte, err error) {
	if address == "" {
		return nil, nil, apperrors.ErrInvalidAddress
	}
	raw, err := base58.Decode(address)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidAddress, err)
	}
	if len(raw) != addressSize {
		return nil, nil, fmt.Errorf("%w: decoded length %d", apperrors.ErrInvalidAddress, len(raw))
	}
	return raw[:publicKeySize], raw[publicKeySize:], nil
}

func PublicSignKeyFromAddress(address string) ([]byte, error) {
	signPub, _, err := SplitAddress(address)
	return signPub, err
}

func PublicEncryptKeyFromAddress(address string) ([]byte, error) {
	_, encryptPub, err := SplitAddress(address)
	return encryptPub, err
}

// ValidAddress reports whether address decodes to exactly 64 bytes.
func ValidAddress(address string) bool {
	_, _, err := SplitAddress(address)
	return err == nil
}
