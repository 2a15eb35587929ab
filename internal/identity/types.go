package identity

import (
	"crypto/ed25519"
	"encoding/hex"
)

// Keys is the key material of one address. It lives in memory only; the
// persisted form is models.KeyRecord.
type Keys struct {
	Seed             []byte             // 32 bytes, X25519 private scalar and Ed25519 signing seed
	PrivateKeySign   ed25519.PrivateKey // 64 bytes: signing seed || verify key
	PublicKeySign    ed25519.PublicKey  // 32 bytes
	PublicKeyEncrypt []byte             // 32 bytes, Curve25519
	Address          string             // Base58(PublicKeySign || PublicKeyEncrypt)
}

func (k *Keys) SeedHex() string {
	return hex.EncodeToString(k.Seed)
}

func (k *Keys) Seed58() string {
	return EncodeBase58(k.Seed)
}

func (k *Keys) PublicKeySign58() string {
	return EncodeBase58(k.PublicKeySign)
}

func (k *Keys) PublicKeyEncrypt58() string {
	return EncodeBase58(k.PublicKeyEncrypt)
}
