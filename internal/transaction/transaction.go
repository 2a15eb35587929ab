// Package transaction builds, signs, verifies and opens the encrypted
// records broadcast to the read node.
package transaction

import (
	"bytes"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"

	"transferchain/go-sdk/internal/apperrors"
	"transferchain/go-sdk/internal/crypto"
	"transferchain/go-sdk/internal/identity"
	"transferchain/go-sdk/pkg/models"

	"github.com/klauspost/compress/gzip"
)

// signingRecord fixes the field order of the signed representation.
type signingRecord struct {
	ID            string        `json:"id"`
	Version       int           `json:"version"`
	Type          models.TxType `json:"type"`
	SenderAddr    string        `json:"sender_addr"`
	RecipientAddr string        `json:"recipient_addr"`
	Data          string        `json:"data"`
	Sign          *string       `json:"sign"`
	Fee           int64         `json:"fee"`
}

// Create encrypts the JSON form of payload to recipientAddress and returns
// the signed transaction. No network I/O happens here.
func Create(txType models.TxType, sender *identity.Keys, recipientAddress string, payload any) (models.Transaction, error) {
	plain, err := json.Marshal(payload)
	if err != nil {
		return models.Transaction{}, fmt.Errorf("marshal %s payload: %w", txType, err)
	}
	return seal(txType, sender, recipientAddress, plain)
}

// CreateCompressed is Create with the JSON gzip-compressed before
// encryption. Used for address list payloads.
func CreateCompressed(txType models.TxType, sender *identity.Keys, recipientAddress string, payload any) (models.Transaction, error) {
	plain, err := json.Marshal(payload)
	if err != nil {
		return models.Transaction{}, fmt.Errorf("marshal %s payload: %w", txType, err)
	}
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(plain); err != nil {
		return models.Transaction{}, err
	}
	if err := zw.Close(); err != nil {
		return models.Transaction{}, err
	}
	return seal(txType, sender, recipientAddress, buf.Bytes())
}

func seal(txType models.TxType, sender *identity.Keys, recipientAddress string, plain []byte) (models.Transaction, error) {
	if sender == nil {
		return models.Transaction{}, apperrors.Validation("sender keys are required")
	}
	if txType == "" {
		return models.Transaction{}, apperrors.Validation("transaction type is required")
	}
	ciphertext, err := crypto.EncryptAsymmetric(sender.Seed, recipientAddress, plain)
	if err != nil {
		return models.Transaction{}, err
	}

	tx := models.Transaction{
		TxID:             TxID(ciphertext),
		Version:          models.TransactionVersion,
		Data:             base64.StdEncoding.EncodeToString(ciphertext),
		TxType:           txType,
		SenderAddress:    sender.Address,
		RecipientAddress: recipientAddress,
	}
	msg, err := SigningBytes(tx)
	if err != nil {
		return models.Transaction{}, err
	}
	sig, err := crypto.Sign(sender.PrivateKeySign, msg)
	if err != nil {
		return models.Transaction{}, err
	}
	tx.Sign = base64.StdEncoding.EncodeToString(sig)
	return tx, nil
}

// TxID is the hex SHA-512 digest of the ciphertext.
func TxID(ciphertext []byte) string {
	sum := sha512.Sum512(ciphertext)
	return hex.EncodeToString(sum[:])
}

// SigningBytes is the compact JSON the signature covers:
// {"id":"","version":2,"type":..,"sender_addr":..,"recipient_addr":..,"data":..,"sign":null,"fee":0}.
func SigningBytes(tx models.Transaction) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	err := enc.Encode(signingRecord{
		Version:       tx.Version,
		Type:          tx.TxType,
		SenderAddr:    tx.SenderAddress,
		RecipientAddr: tx.RecipientAddress,
		Data:          tx.Data,
	})
	if err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// Verify checks the signature against the sender address and the tx id
// against the carried ciphertext.
func Verify(tx models.Transaction) bool {
	ciphertext, err := base64.StdEncoding.DecodeString(tx.Data)
	if err != nil || TxID(ciphertext) != tx.TxID {
		return false
	}
	sig, err := base64.StdEncoding.DecodeString(tx.Sign)
	if err != nil {
		return false
	}
	msg, err := SigningBytes(tx)
	if err != nil {
		return false
	}
	return crypto.Verify(tx.SenderAddress, msg, sig)
}

// Open decodes a searched transaction addressed to keys into v.
func Open(record models.TxRecord, keys *identity.Keys, compressed bool, v any) error {
	return open(record.SenderAddr, record.Data.Bytes, keys, compressed, v)
}

// OpenTransaction is Open for the broadcast wire shape.
func OpenTransaction(tx models.Transaction, keys *identity.Keys, compressed bool, v any) error {
	return open(tx.SenderAddress, tx.Data, keys, compressed, v)
}

func open(senderAddress, data string, keys *identity.Keys, compressed bool, v any) error {
	if keys == nil {
		return apperrors.Validation("recipient keys are required")
	}
	ciphertext, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return fmt.Errorf("%w: transaction data is not base64", apperrors.ErrDecryption)
	}
	plain, err := crypto.DecryptAsymmetric(senderAddress, keys.Seed, ciphertext)
	if err != nil {
		return err
	}
	if compressed {
		zr, err := gzip.NewReader(bytes.NewReader(plain))
		if err != nil {
			return fmt.Errorf("%w: %v", apperrors.ErrDecryption, err)
		}
		defer zr.Close()
		if plain, err = io.ReadAll(zr); err != nil {
			return fmt.Errorf("%w: %v", apperrors.ErrDecryption, err)
		}
	}
	if err := json.Unmarshal(plain, v); err != nil {
		return fmt.Errorf("decode transaction payload: %w", err)
	}
	return nil
}

// Record converts a broadcast transaction to the shape tx_search returns.
func Record(tx models.Transaction, height int64) models.TxRecord {
	return models.TxRecord{
		ID:            tx.TxID,
		Height:        height,
		Hash:          tx.TxID,
		Type:          tx.TxType,
		SenderAddr:    tx.SenderAddress,
		RecipientAddr: tx.RecipientAddress,
		Data:          models.TxDataBlob{Bytes: tx.Data},
		Fee:           tx.Fee,
	}
}
