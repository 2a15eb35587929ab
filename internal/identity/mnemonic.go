package identity

import (
	"strings"

	"transferchain/go-sdk/internal/apperrors"

	"github.com/tyler-smith/go-bip39"
)

const (
	// MnemonicWords is the length of every recovery phrase.
	MnemonicWords = 24
	entropyBits   = 256
)

// CreateMnemonic draws 256 bits of entropy and encodes them, with an 8-bit
// SHA-256 checksum, as 24 words of the English BIP39 dictionary.
func CreateMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(entropyBits)
	if err != nil {
		return "", err
	}
	return MnemonicFromEntropy(entropy)
}

// MnemonicFromEntropy maps entropy||checksum, 11 bits at a time and MSB
// first within every byte, to dictionary words.
func MnemonicFromEntropy(entropy []byte) (string, error) {
	if len(entropy) != entropyBits/8 {
		return "", apperrors.Validation("entropy must be %d bytes, got %d", entropyBits/8, len(entropy))
	}
	return bip39.NewMnemonic(entropy)
}

// ValidateWordCount is the only check applied to caller-supplied phrases.
func ValidateWordCount(mnemonic string) error {
	if n := len(strings.Fields(mnemonic)); n != MnemonicWords {
		return apperrors.Validation("mnemonic must have %d words, got %d", MnemonicWords, n)
	}
	return nil
}
