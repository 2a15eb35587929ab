package identity

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"transferchain/go-sdk/internal/apperrors"
	"transferchain/go-sdk/pkg/models"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/pbkdf2"
)

const (
	SeedSize       = 32
	seedIterations = 2048
	seedSaltPrefix = "mnemonic"
)

// DeriveSeed is PBKDF2-HMAC-SHA256(mnemonic, "mnemonic"+password, 2048, 32).
// The same inputs always regenerate the same address hierarchy.
func DeriveSeed(mnemonic, password string) []byte {
	return pbkdf2.Key([]byte(mnemonic), []byte(seedSaltPrefix+password), seedIterations, SeedSize, sha256.New)
}

// KeysFromMnemonic derives the seed and the full key material of one address.
func KeysFromMnemonic(mnemonic, password string) (*Keys, error) {
	if mnemonic == "" {
		return nil, fmt.Errorf("%w: empty mnemonic", apperrors.ErrInvalidSeed)
	}
	return GenerateKeys(hex.EncodeToString(DeriveSeed(mnemonic, password)))
}

func GenerateKeys(seedHex string) (*Keys, error) {
	if seedHex == "" {
		return nil, apperrors.ErrInvalidSeed
	}
	seed, err := hex.DecodeString(seedHex)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidSeed, err)
	}
	if len(seed) != SeedSize {
		return nil, fmt.Errorf("%w: seed must be %d bytes, got %d", apperrors.ErrInvalidSeed, SeedSize, len(seed))
	}

	encryptPub, err := curve25519.X25519(seed, curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidSeed, err)
	}
	signPriv := ed25519.NewKeyFromSeed(seed)
	signPub := signPriv.Public().(ed25519.PublicKey)

	address, err := JoinAddress(signPub, encryptPub)
	if err != nil {
		return nil, err
	}
	return &Keys{
		Seed:             seed,
		PrivateKeySign:   signPriv,
		PublicKeySign:    signPub,
		PublicKeyEncrypt: encryptPub,
		Address:          address,
	}, nil
}

// Record converts the key material into its protocol (hex string) form.
func (k *Keys) Record() models.KeyRecord {
	return models.KeyRecord{
		Seed:               k.SeedHex(),
		Seed58:             k.Seed58(),
		PrivateKeySign:     hex.EncodeToString(k.PrivateKeySign),
		PublicKeySign:      hex.EncodeToString(k.PublicKeySign),
		PublicKeySign58:    k.PublicKeySign58(),
		PublicKeyEncrypt:   hex.EncodeToString(k.PublicKeyEncrypt),
		PublicKeyEncrypt58: k.PublicKeyEncrypt58(),
		Address:            k.Address,
	}
}

// KeysFromRecord regenerates key material from the record's seed and checks
// that the stored address matches it.
func KeysFromRecord(rec models.KeyRecord) (*Keys, error) {
	keys, err := GenerateKeys(rec.Seed)
	if err != nil {
		return nil, err
	}
	if rec.Address != "" && rec.Address != keys.Address {
		return nil, fmt.Errorf("%w: record address does not match its seed", apperrors.ErrInvalidAddress)
	}
	return keys, nil
}

// UserPassword is the PBKDF2 password of a (sub-)user's master address.
func UserPassword(userID int64, subUserID string) string {
	if strings.TrimSpace(subUserID) != "" {
		return fmt.Sprintf("user-%d-%s", userID, subUserID)
	}
	return fmt.Sprintf("user-%d", userID)
}

// AddressPassword fans a user password out to the i-th disposable address.
func AddressPassword(userPassword string, i int) string {
	return fmt.Sprintf("%s-%d", userPassword, i)
}
