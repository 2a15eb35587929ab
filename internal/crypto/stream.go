package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha512"
	"errors"
	"fmt"
	"io"

	"transferchain/go-sdk/internal/apperrors"
)

const (
	// StreamVersion is the first byte of every encrypted file.
	StreamVersion byte = 0x01
	// legacyStreamVersion is the ASCII '1' older clients wrote.
	legacyStreamVersion byte = '1'

	streamIVSize     = aes.BlockSize
	streamDigestSize = sha512.Size
	streamBufferSize = 16 * 1024
	streamHeaderSize = 1 + streamIVSize
)

// StreamOverhead is the number of bytes EncryptStream adds to the input.
const StreamOverhead = streamHeaderSize + streamDigestSize

// EncryptStream writes version || IV || AES-256-CTR(in) || HMAC-SHA512(IV ||
// ciphertext) to out and returns the number of ciphertext body bytes.
func EncryptStream(in io.Reader, out io.Writer, aesKey, hmacKey []byte) (int64, error) {
	block, err := aes.NewCipher(aesKey)
	if err != nil {
		return 0, fmt.Errorf("aes key: %w", err)
	}
	iv := make([]byte, streamIVSize)
	if _, err := rand.Read(iv); err != nil {
		return 0, err
	}
	stream := cipher.NewCTR(block, iv)
	mac := hmac.New(sha512.New, hmacKey)
	mac.Write(iv)

	if _, err := out.Write([]byte{StreamVersion}); err != nil {
		return 0, err
	}
	if _, err := out.Write(iv); err != nil {
		return 0, err
	}

	var total int64
	buf := make([]byte, streamBufferSize)
	for {
		n, readErr := in.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			stream.XORKeyStream(chunk, chunk)
			mac.Write(chunk)
			if _, err := out.Write(chunk); err != nil {
				return total, err
			}
			total += int64(n)
		}
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			return total, readErr
		}
	}
	if _, err := out.Write(mac.Sum(nil)); err != nil {
		return total, err
	}
	return total, nil
}

// DecryptStream authenticates the whole input before writing any plaintext
// to out, then decrypts it. It returns the number of plaintext bytes.
func DecryptStream(in io.ReadSeeker, out io.Writer, aesKey, hmacKey []byte) (int64, error) {
	size, err := in.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, err
	}
	if _, err := in.Seek(0, io.SeekStart); err != nil {
		return 0, err
	}

	header := make([]byte, streamHeaderSize)
	n, err := io.ReadFull(in, header)
	if n == 0 {
		return 0, fmt.Errorf("%w: empty stream", apperrors.ErrTruncatedStream)
	}
	if v := header[0]; v != StreamVersion && v != legacyStreamVersion {
		return 0, fmt.Errorf("%w: %#x", apperrors.ErrUnsupportedVersion, v)
	}
	if err != nil {
		return 0, fmt.Errorf("%w: short header", apperrors.ErrTruncatedStream)
	}
	iv := header[1:]
	bodySize := size - streamHeaderSize - streamDigestSize
	if bodySize < 0 {
		return 0, apperrors.ErrTruncatedStream
	}

	mac := hmac.New(sha512.New, hmacKey)
	mac.Write(iv)
	if _, err := io.CopyN(mac, in, bodySize); err != nil {
		return 0, err
	}
	digest := make([]byte, streamDigestSize)
	if _, err := io.ReadFull(in, digest); err != nil {
		return 0, fmt.Errorf("%w: %v", apperrors.ErrTruncatedStream, err)
	}
	if !hmac.Equal(mac.Sum(nil), digest) {
		return 0, apperrors.ErrIntegrity
	}

	block, err := aes.NewCipher(aesKey)
	if err != nil {
		return 0, fmt.Errorf("aes key: %w", err)
	}
	if _, err := in.Seek(streamHeaderSize, io.SeekStart); err != nil {
		return 0, err
	}
	reader := cipher.StreamReader{S: cipher.NewCTR(block, iv), R: io.LimitReader(in, bodySize)}
	return io.CopyBuffer(out, reader, make([]byte, streamBufferSize))
}
