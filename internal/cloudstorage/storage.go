// Package cloudstorage keeps a user's own files in encrypted storage.
package cloudstorage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"transferchain/go-sdk/internal/apperrors"
	"transferchain/go-sdk/internal/blockchain"
	"transferchain/go-sdk/internal/identity"
	"transferchain/go-sdk/internal/observability"
	"transferchain/go-sdk/internal/slotio"
	"transferchain/go-sdk/internal/transaction"
	"transferchain/go-sdk/internal/transport"
	"transferchain/go-sdk/pkg/models"
)

// MaxFiles is the largest batch one Upload accepts.
const MaxFiles = 20

type Options struct {
	Metrics            *observability.Metrics
	Logger             *slog.Logger
	MaxParallelUploads int
	Now                func() time.Time
}

type Service struct {
	rpc      transport.Service
	pipeline *slotio.Pipeline
	node     blockchain.Node
	metrics  *observability.Metrics
	logger   *slog.Logger
	parallel int
	now      func() time.Time
}

func New(rpc transport.Service, pipeline *slotio.Pipeline, node blockchain.Node, opts Options) *Service {
	s := &Service{
		rpc:      rpc,
		pipeline: pipeline,
		node:     node,
		metrics:  opts.Metrics,
		logger:   opts.Logger,
		parallel: opts.MaxParallelUploads,
		now:      opts.Now,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Upload stores files for user. Each file is announced from one random
// disposable address of the user to another.
func (s *Service) Upload(ctx context.Context, user models.User, files []string, onFile func(models.FileResult)) (models.UploadReport, error) {
	started := time.Now()
	defer s.metrics.ObserveOperation("storage_upload", started)

	if len(files) > MaxFiles {
		return models.UploadReport{}, apperrors.Validation("at most %d files per upload, got %d", MaxFiles, len(files))
	}
	if len(user.Addresses) < 2 {
		return models.UploadReport{}, apperrors.Validation("user %q has no disposable addresses", user.ID)
	}
	names, total, err := slotio.StatFiles(files)
	if err != nil {
		return models.UploadReport{}, err
	}
	account := s.pipeline.Account()
	session, err := s.rpc.StorageInit(ctx, &transport.StorageInitRequest{
		Files:     names,
		TotalSize: total,
		OpCode:    transport.OpCodeStorage,
		UserID:    account.UserID,
		WalletID:  account.WalletID,
		Paths:     files,
	})
	if err != nil {
		return models.UploadReport{}, fmt.Errorf("storage init: %w", err)
	}

	notifier := slotio.NewNotifier(onFile)
	results := slotio.Each(ctx, len(files), s.parallel,
		func(ctx context.Context, i int) models.FileResult {
			r := s.uploadOne(ctx, session, user, files[i])
			notifier.Notify(r)
			return r
		},
		func(i int, v any) models.FileResult {
			r := models.FileResult{Path: files[i], Err: slotio.PanicError(v)}
			notifier.Notify(r)
			return r
		},
	)
	report := models.UploadReport{SessionID: session.SessionID, Files: results}

	if err := s.rpc.StorageFinish(ctx, &transport.FinishRequest{
		SessionID: session.SessionID,
		UserID:    account.UserID,
		WalletID:  account.WalletID,
	}); err != nil {
		if rbErr := s.pipeline.RollbackSuccessful(ctx, results, transport.OpCodeStorage); rbErr != nil {
			s.logger.Warn("storage rollback incomplete",
				"component", "cloudstorage",
				"operation", "rollback",
				"error", rbErr.Error(),
			)
		}
		return report, fmt.Errorf("storage finish: %w", err)
	}
	s.logger.Info("storage uploaded",
		"component", "cloudstorage",
		"operation", "upload",
		"files", len(results),
		"failed", len(report.Failed()),
		"user_id", user.ID,
	)
	return report, nil
}

func (s *Service) uploadOne(ctx context.Context, session *transport.InitResponse, user models.User, path string) (result models.FileResult) {
	result.Path = path
	defer s.metrics.UploadStarted()()
	defer func() { s.metrics.ObserveFile("storage_upload", result.Err) }()

	fileUUID, ok := session.BaseUUIDs[path]
	if !ok {
		result.Err = apperrors.Transport("storage_init", fmt.Errorf("no content id for %s", filepath.Base(path)))
		return result
	}
	sender, recipient, err := addressPair(user)
	if err != nil {
		result.Err = err
		return result
	}
	enc, err := s.pipeline.Encrypt(path)
	if err != nil {
		result.Err = err
		return result
	}
	defer enc.Remove()

	plan, err := s.pipeline.UploadFile(ctx, slotio.Upload{
		SessionID:     session.SessionID,
		FileUUID:      fileUUID,
		FileName:      path,
		OpCode:        transport.OpCodeStorage,
		SenderAddress: sender.Address,
	}, enc)
	if err != nil {
		result.Err = err
		return result
	}

	payload := models.StoragePayload{
		UUID:        plan.BaseUUID,
		FileName:    filepath.Base(path),
		Size:        enc.Size,
		Slots:       models.CloneSlots(plan.Slots),
		KeyAES:      enc.KeyAES,
		KeyHMAC:     enc.KeyHMAC,
		StorageCode: plan.StorageCode,
		Address:     plan.Address,
		UploadDate:  models.FormatTimestamp(s.now()),
	}
	tx, err := transaction.Create(models.TxTypeStorage, sender, recipient, payload)
	if err == nil {
		_, err = s.node.Broadcast(ctx, tx)
	}
	if err != nil {
		if cancelErr := s.pipeline.CancelUpload(ctx, plan.Slots, transport.OpCodeStorage); cancelErr != nil {
			err = errors.Join(err, fmt.Errorf("cancel upload: %w", cancelErr))
		}
		result.Err = err
		return result
	}

	result.Storage = &models.StorageRecord{
		TxID:             tx.TxID,
		FileName:         payload.FileName,
		UUID:             plan.BaseUUID,
		SenderAddress:    sender.Address,
		RecipientAddress: recipient,
		Size:             enc.Size,
		UploadDate:       payload.UploadDate,
		KeyAES:           enc.KeyAES,
		KeyHMAC:          enc.KeyHMAC,
		Address:          plan.Address,
		StorageCode:      plan.StorageCode,
		Slots:            payload.Slots,
	}
	return result
}

// Download fetches and decrypts a stored file into destination.
func (s *Service) Download(ctx context.Context, rec models.StorageRecord, destination string) (path string, err error) {
	started := time.Now()
	defer func() {
		s.metrics.ObserveOperation("storage_download", started)
		s.metrics.ObserveFile("storage_download", err)
	}()
	return s.pipeline.Download(ctx, slotio.Download{
		UUID:        rec.UUID,
		Slots:       rec.Slots,
		Size:        rec.Size,
		FileName:    rec.FileName,
		KeyAES:      rec.KeyAES,
		KeyHMAC:     rec.KeyHMAC,
		Destination: destination,
		OpCode:      transport.OpCodeStorage,
	})
}

// Delete removes every slot of rec in parallel and then publishes the
// storage tombstone. A failed slot aborts before the tombstone.
func (s *Service) Delete(ctx context.Context, user models.User, rec models.StorageRecord) error {
	if strings.TrimSpace(rec.UUID) == "" {
		return apperrors.Validation("invalid uuid")
	}
	sender, recipient, err := addressPair(user)
	if err != nil {
		return err
	}
	if err := s.pipeline.DeleteSlots(ctx, rec.Slots, transport.OpCodeStorage); err != nil {
		return fmt.Errorf("storage delete slots: %w", err)
	}
	payload := models.StorageDeletePayload{
		UUID:      rec.UUID,
		TxID:      rec.TxID,
		FileName:  rec.FileName,
		Timestamp: models.FormatTimestamp(s.now()),
	}
	tx, err := transaction.Create(models.TxTypeStorageDelete, sender, recipient, payload)
	if err != nil {
		return err
	}
	if _, err := s.node.Broadcast(ctx, tx); err != nil {
		return fmt.Errorf("storage delete: %w", err)
	}
	return nil
}

// Cancel deletes slots in order and stops at the first failure.
func (s *Service) Cancel(ctx context.Context, slots []models.Slot) error {
	if len(slots) == 0 {
		return apperrors.Validation("invalid slots")
	}
	return s.pipeline.CancelUpload(ctx, slots, transport.OpCodeStorage)
}

func addressPair(user models.User) (*identity.Keys, string, error) {
	first, err := user.RandomAddress()
	if err != nil {
		return nil, "", apperrors.Validation("%v", err)
	}
	second, err := user.RandomAddress()
	if err != nil {
		return nil, "", apperrors.Validation("%v", err)
	}
	keys, err := identity.KeysFromRecord(first.Key)
	if err != nil {
		return nil, "", err
	}
	return keys, second.Key.Address, nil
}
