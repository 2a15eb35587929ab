// Package slotio moves encrypted files through the slot transport: stream
// encryption to a temp file, ordered slot upload, download and verified
// decryption, and the two slot cleanup paths.
package slotio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"transferchain/go-sdk/internal/apperrors"
	"transferchain/go-sdk/internal/crypto"
	"transferchain/go-sdk/internal/observability"
	"transferchain/go-sdk/internal/transport"
	"transferchain/go-sdk/pkg/models"

	"github.com/google/uuid"
)

// UploadChunkSize is the largest chunk sent on a slot stream.
const UploadChunkSize = 1 << 20

const defaultParallelDeletes = 16

// Account identifies who pays for and owns transport operations.
type Account struct {
	UserID   int64
	WalletID int64
}

type Options struct {
	Metrics *observability.Metrics
	Logger  *slog.Logger
	// TempDir holds encrypted working copies; empty means os.TempDir.
	TempDir            string
	MaxParallelDeletes int
}

// Pipeline is safe for concurrent use; it holds no per-call state.
type Pipeline struct {
	svc             transport.Service
	account         Account
	metrics         *observability.Metrics
	logger          *slog.Logger
	tempDir         string
	parallelDeletes int
}

func New(svc transport.Service, account Account, opts Options) *Pipeline {
	p := &Pipeline{
		svc:             svc,
		account:         account,
		metrics:         opts.Metrics,
		logger:          opts.Logger,
		tempDir:         opts.TempDir,
		parallelDeletes: opts.MaxParallelDeletes,
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.parallelDeletes <= 0 {
		p.parallelDeletes = defaultParallelDeletes
	}
	return p
}

func (p *Pipeline) Account() Account {
	return p.account
}

// EncryptedFile is the ciphertext working copy of one source file.
type EncryptedFile struct {
	Path    string
	Size    int64
	KeyAES  string
	KeyHMAC string
	dir     string
}

// Remove deletes the working copy.
func (f *EncryptedFile) Remove() error {
	if f == nil || f.dir == "" {
		return nil
	}
	return os.RemoveAll(f.dir)
}

// Encrypt stream-encrypts src under fresh file keys into a private temp
// directory.
func (p *Pipeline) Encrypt(src string) (enc *EncryptedFile, retErr error) {
	aesKey, hmacKey, err := crypto.FileKeys()
	if err != nil {
		return nil, err
	}
	in, err := os.Open(src)
	if err != nil {
		return nil, err
	}
	defer in.Close()

	dir, err := os.MkdirTemp(p.tempDir, "tcsdk-")
	if err != nil {
		return nil, err
	}
	defer func() {
		if retErr != nil {
			_ = os.RemoveAll(dir)
		}
	}()
	path := filepath.Join(dir, uuid.NewString())
	out, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	if _, err := crypto.EncryptStream(in, out, []byte(aesKey), []byte(hmacKey)); err != nil {
		_ = out.Close()
		return nil, err
	}
	if err := out.Close(); err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	return &EncryptedFile{Path: path, Size: info.Size(), KeyAES: aesKey, KeyHMAC: hmacKey, dir: dir}, nil
}

// Upload describes one file inside an init session.
type Upload struct {
	SessionID      string
	FileUUID       string
	FileName       string
	OpCode         transport.OpCode
	DeleteAfter    int64
	RecipientCount int
	SenderAddress  string
}

// UploadFile asks for a slot plan and streams the ciphertext into it. When
// any slot fails the granted slots are cancelled before the error returns.
func (p *Pipeline) UploadFile(ctx context.Context, u Upload, file *EncryptedFile) (*transport.UploadInitResponse, error) {
	meta := transport.UploadMeta{UUID: u.FileUUID, BaseUUID: u.FileUUID, SessionID: u.SessionID}
	plan, err := p.svc.UploadInit(ctx, meta, &transport.UploadInitRequest{
		SessionID:      u.SessionID,
		FileName:       u.FileName,
		FileSize:       file.Size,
		OpCode:         u.OpCode,
		UserID:         p.account.UserID,
		WalletID:       p.account.WalletID,
		DeleteAfter:    u.DeleteAfter,
		RecipientCount: u.RecipientCount,
		TransferOpCode: transport.TransferOpCodeNormal,
		SenderAddress:  u.SenderAddress,
	})
	if err != nil {
		return nil, err
	}
	if len(plan.Slots) == 0 {
		return nil, apperrors.Transport("upload_init", errors.New("empty slot plan"))
	}
	if err := p.uploadSlots(ctx, meta, plan.Slots, file); err != nil {
		if cancelErr := p.CancelUpload(ctx, plan.Slots, u.OpCode); cancelErr != nil {
			p.logger.Warn("cancel upload failed",
				"component", "slotio",
				"operation", "cancel_upload",
				"error", cancelErr.Error(),
			)
		}
		return nil, err
	}
	return plan, nil
}

// uploadSlots sends the slots in plan order. Every slot but the last gets
// exactly slot.Size bytes; the last one takes the rest of the file.
func (p *Pipeline) uploadSlots(ctx context.Context, meta transport.UploadMeta, slots []models.Slot, file *EncryptedFile) error {
	f, err := os.Open(file.Path)
	if err != nil {
		return err
	}
	defer f.Close()

	buf := make([]byte, UploadChunkSize)
	for i, slot := range slots {
		last := i == len(slots)-1
		var src io.Reader = f
		if !last {
			src = io.LimitReader(f, slot.Size)
		}
		n, err := p.uploadSlot(ctx, meta, slot, last, src, buf)
		p.metrics.AddBytes("upload", n)
		if err != nil {
			return fmt.Errorf("slot %d/%d: %w", i+1, len(slots), err)
		}
	}
	return nil
}

func (p *Pipeline) uploadSlot(ctx context.Context, meta transport.UploadMeta, slot models.Slot, last bool, src io.Reader, buf []byte) (int64, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stream, err := p.svc.UploadSlot(ctx, meta)
	if err != nil {
		return 0, err
	}
	var sent int64
	for {
		n, readErr := io.ReadFull(src, buf)
		if n > 0 {
			chunk := &transport.UploadChunk{Chunk: buf[:n], Slot: slot, LastSlot: last}
			if err := stream.Send(chunk); err != nil {
				return sent, err
			}
			sent += int64(n)
		}
		if errors.Is(readErr, io.EOF) || errors.Is(readErr, io.ErrUnexpectedEOF) {
			break
		}
		if readErr != nil {
			return sent, readErr
		}
	}
	resp, err := stream.CloseAndRecv()
	if err != nil {
		return sent, err
	}
	if resp.StatusCode != transport.StatusOK {
		return sent, apperrors.Transport("upload_slot", fmt.Errorf("upload result is not ok, result code: %d", resp.StatusCode))
	}
	return sent, nil
}

// Download describes a stored or transferred file to fetch.
type Download struct {
	UUID        string
	Slots       []models.Slot
	Size        int64
	FileName    string
	KeyAES      string
	KeyHMAC     string
	Destination string
	OpCode      transport.OpCode
}

func (d Download) validate() error {
	switch {
	case strings.TrimSpace(d.UUID) == "":
		return apperrors.Validation("invalid file uuid")
	case len(d.Slots) == 0:
		return apperrors.Validation("invalid slots")
	case d.Size <= 0:
		return apperrors.Validation("invalid file size")
	case strings.TrimSpace(d.FileName) == "" || d.FileName != filepath.Base(d.FileName):
		return apperrors.Validation("invalid file name %q", d.FileName)
	case d.KeyAES == "":
		return apperrors.Validation("invalid key_aes")
	case d.KeyHMAC == "":
		return apperrors.Validation("invalid key_hmac")
	case strings.TrimSpace(d.Destination) == "":
		return apperrors.Validation("invalid destination")
	}
	info, err := os.Stat(d.Destination)
	if err != nil {
		return apperrors.Validation("destination does not exist")
	}
	if !info.IsDir() {
		return apperrors.Validation("destination must be a folder")
	}
	return nil
}

// Download fetches the slots into a temp file, authenticates and decrypts
// it into Destination/FileName, and returns that path. The target is only
// replaced once the whole file has been authenticated.
func (p *Pipeline) Download(ctx context.Context, d Download) (string, error) {
	if err := d.validate(); err != nil {
		return "", err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	recv, err := p.svc.Download(ctx, &transport.DownloadRequest{
		UUID:     d.UUID,
		Slots:    d.Slots,
		WalletID: p.account.WalletID,
		UserID:   p.account.UserID,
		OpCode:   d.OpCode,
	})
	if err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(p.tempDir, "tcsdk-download-")
	if err != nil {
		return "", err
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()
	var received int64
	for {
		chunk, err := recv.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}
		n, err := tmp.Write(chunk.Chunk)
		received += int64(n)
		if err != nil {
			return "", err
		}
	}
	p.metrics.AddBytes("download", received)
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return "", err
	}

	out, err := os.CreateTemp(d.Destination, ".tcsdk-*")
	if err != nil {
		return "", err
	}
	_, decErr := crypto.DecryptStream(tmp, out, []byte(d.KeyAES), []byte(d.KeyHMAC))
	closeErr := out.Close()
	if decErr == nil {
		decErr = closeErr
	}
	if decErr != nil {
		_ = os.Remove(out.Name())
		return "", decErr
	}
	target := filepath.Join(d.Destination, d.FileName)
	if err := os.Rename(out.Name(), target); err != nil {
		_ = os.Remove(out.Name())
		return "", err
	}
	return target, nil
}
