// Package transfer sends files to other addresses: upload with per-recipient
// announcements, download, and the delete and cancel paths of both sides.
package transfer

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

	"go.uber.org/multierr"
)

// Retention is how long transferred content stays downloadable.
const Retention = transport.TransferRetentionHours * time.Hour

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

type UploadRequest struct {
	Files      []string
	Sender     models.Address
	Recipients []string
	Note       string
	// OnFile, when set, is called once per file as soon as it settles.
	OnFile func(models.FileResult)
}

func (r UploadRequest) validate() (*identity.Keys, error) {
	if len(r.Recipients) == 0 {
		return nil, apperrors.Validation("recipient_addresses is required")
	}
	for _, addr := range r.Recipients {
		if !identity.ValidAddress(addr) {
			return nil, apperrors.Validation("invalid recipient address %q", addr)
		}
	}
	keys, err := identity.KeysFromRecord(r.Sender.Key)
	if err != nil {
		return nil, apperrors.Validation("invalid sender address: %v", err)
	}
	return keys, nil
}

// Upload transfers files from Sender to every recipient. The report lists
// one result per file even when the call fails; the error is non-nil when
// the session could not be opened or finished.
func (s *Service) Upload(ctx context.Context, req UploadRequest) (models.UploadReport, error) {
	started := time.Now()
	defer s.metrics.ObserveOperation("transfer_upload", started)

	sender, err := req.validate()
	if err != nil {
		return models.UploadReport{}, err
	}
	names, total, err := slotio.StatFiles(req.Files)
	if err != nil {
		return models.UploadReport{}, err
	}
	account := s.pipeline.Account()
	session, err := s.rpc.TransferInit(ctx, &transport.TransferInitRequest{
		Files:          names,
		TotalSize:      total,
		OpCode:         transport.OpCodeTransfer,
		UserID:         account.UserID,
		WalletID:       account.WalletID,
		RecipientCount: len(req.Recipients),
		TransferOpCode: transport.TransferOpCodeNormal,
		Notes:          req.Note,
		Paths:          req.Files,
		DeleteAfter:    transport.TransferRetentionHours,
	})
	if err != nil {
		return models.UploadReport{}, fmt.Errorf("transfer init: %w", err)
	}

	notifier := slotio.NewNotifier(req.OnFile)
	results := slotio.Each(ctx, len(req.Files), s.parallel,
		func(ctx context.Context, i int) models.FileResult {
			r := s.uploadOne(ctx, session, req, sender, req.Files[i])
			notifier.Notify(r)
			return r
		},
		func(i int, v any) models.FileResult {
			r := models.FileResult{Path: req.Files[i], Err: slotio.PanicError(v)}
			notifier.Notify(r)
			return r
		},
	)
	report := models.UploadReport{SessionID: session.SessionID, Files: results}

	if err := s.rpc.TransferFinish(ctx, &transport.FinishRequest{
		SessionID: session.SessionID,
		UserID:    account.UserID,
		WalletID:  account.WalletID,
	}); err != nil {
		if rbErr := s.pipeline.RollbackSuccessful(ctx, results, transport.OpCodeTransfer); rbErr != nil {
			s.logger.Warn("transfer rollback incomplete",
				"component", "transfer",
				"operation", "rollback",
				"error", rbErr.Error(),
			)
		}
		return report, fmt.Errorf("transfer finish: %w", err)
	}
	s.logger.Info("transfer uploaded",
		"component", "transfer",
		"operation", "upload",
		"files", len(results),
		"failed", len(report.Failed()),
		"sender_address", sender.Address,
	)
	return report, nil
}

func (s *Service) uploadOne(ctx context.Context, session *transport.InitResponse, req UploadRequest, sender *identity.Keys, path string) (result models.FileResult) {
	result.Path = path
	defer s.metrics.UploadStarted()()
	defer func() {
		s.metrics.ObserveFile("transfer_upload", result.Err)
		if result.Err != nil {
			s.logger.Warn("transfer file failed",
				"component", "transfer",
				"operation", "upload_file",
				"file", filepath.Base(path),
				"error", result.Err.Error(),
			)
		}
	}()

	fileUUID, ok := session.BaseUUIDs[path]
	if !ok {
		result.Err = apperrors.Transport("transfer_init", fmt.Errorf("no content id for %s", filepath.Base(path)))
		return result
	}
	enc, err := s.pipeline.Encrypt(path)
	if err != nil {
		result.Err = err
		return result
	}
	defer enc.Remove()

	plan, err := s.pipeline.UploadFile(ctx, slotio.Upload{
		SessionID:      session.SessionID,
		FileUUID:       fileUUID,
		FileName:       path,
		OpCode:         transport.OpCodeTransfer,
		DeleteAfter:    transport.TransferRetentionHours,
		RecipientCount: len(req.Recipients),
		SenderAddress:  sender.Address,
	}, enc)
	if err != nil {
		result.Err = err
		return result
	}

	uploadDate := s.now()
	payload := models.TransferPayload{
		SenderMasterAddress: req.Sender.MasterAddress,
		UUID:                plan.BaseUUID,
		FileName:            filepath.Base(path),
		Size:                enc.Size,
		Slots:               models.CloneSlots(plan.Slots),
		KeyAES:              enc.KeyAES,
		KeyHMAC:             enc.KeyHMAC,
		Message:             req.Note,
		StorageCode:         plan.StorageCode,
		Address:             plan.Address,
		UploadDate:          models.FormatTimestamp(uploadDate),
		EndTime:             models.FormatTimestamp(uploadDate.Add(Retention)),
		Typ:                 models.TransferNormal,
	}
	for _, recipient := range req.Recipients {
		p := payload
		p.ReceivedAddress = recipient
		if _, err := s.broadcast(ctx, sender, recipient, p); err != nil {
			result.Err = s.compensate(ctx, plan.Slots, err)
			return result
		}
	}

	sent := payload
	sent.ReceivedAddress = req.Recipients[0]
	sent.ReceivedAddresses = append([]string(nil), req.Recipients...)
	sent.Typ = models.TransferSentMark
	txID, err := s.broadcast(ctx, sender, sender.Address, sent)
	if err != nil {
		result.Err = s.compensate(ctx, plan.Slots, err)
		return result
	}

	result.Transfer = &models.TransferRecord{
		FileName:            payload.FileName,
		UUID:                plan.BaseUUID,
		TxID:                txID,
		SenderAddress:       sender.Address,
		SenderMasterAddress: req.Sender.MasterAddress,
		ReceivedAddress:     sent.ReceivedAddress,
		ReceivedAddresses:   sent.ReceivedAddresses,
		Size:                enc.Size,
		UploadDate:          payload.UploadDate,
		EndTime:             payload.EndTime,
		KeyAES:              enc.KeyAES,
		KeyHMAC:             enc.KeyHMAC,
		Address:             plan.Address,
		StorageCode:         plan.StorageCode,
		Slots:               payload.Slots,
	}
	return result
}

func (s *Service) broadcast(ctx context.Context, sender *identity.Keys, recipient string, payload models.TransferPayload) (string, error) {
	tx, err := transaction.Create(models.TxTypeTransfer, sender, recipient, payload)
	if err != nil {
		return "", err
	}
	if _, err := s.node.Broadcast(ctx, tx); err != nil {
		return "", err
	}
	return tx.TxID, nil
}

// compensate cancels the slots of an upload whose announcement failed.
func (s *Service) compensate(ctx context.Context, slots []models.Slot, cause error) error {
	if err := s.pipeline.CancelUpload(ctx, slots, transport.OpCodeTransfer); err != nil {
		return errors.Join(cause, fmt.Errorf("cancel upload: %w", err))
	}
	return cause
}

// DownloadRequest is what a sent record or a received transfer carries.
type DownloadRequest struct {
	UUID        string
	Slots       []models.Slot
	Size        int64
	FileName    string
	KeyAES      string
	KeyHMAC     string
	Destination string
}

// Download fetches and decrypts a transfer into Destination/FileName.
func (s *Service) Download(ctx context.Context, req DownloadRequest) (path string, err error) {
	started := time.Now()
	defer func() {
		s.metrics.ObserveOperation("transfer_download", started)
		s.metrics.ObserveFile("transfer_download", err)
	}()
	return s.pipeline.Download(ctx, slotio.Download{
		UUID:        req.UUID,
		Slots:       req.Slots,
		Size:        req.Size,
		FileName:    req.FileName,
		KeyAES:      req.KeyAES,
		KeyHMAC:     req.KeyHMAC,
		Destination: req.Destination,
		OpCode:      transport.OpCodeTransfer,
	})
}

// DeleteReceived hides a received transfer for user. It publishes a
// tombstone between two of the user's disposable addresses.
func (s *Service) DeleteReceived(ctx context.Context, user models.User, uuid, txID string) error {
	if strings.TrimSpace(uuid) == "" {
		return apperrors.Validation("invalid uuid")
	}
	from, to, err := addressPair(user)
	if err != nil {
		return err
	}
	payload := models.TransferReceiveDeletePayload{
		UUID:      uuid,
		TxID:      txID,
		Typ:       models.TransferTypeSent,
		Timestamp: models.FormatTimestamp(s.now()),
	}
	tx, err := transaction.Create(models.TxTypeTransferReceiveDelete, from, to, payload)
	if err != nil {
		return err
	}
	if _, err := s.node.Broadcast(ctx, tx); err != nil {
		return fmt.Errorf("transfer received delete: %w", err)
	}
	return nil
}

// DeleteSent removes the content of a sent transfer and tells every
// recipient, then the sender, that it is gone. Slot deletion runs first and
// in parallel; any failed slot aborts before the announcements.
func (s *Service) DeleteSent(ctx context.Context, user models.User, rec models.TransferRecord) error {
	if strings.TrimSpace(rec.UUID) == "" {
		return apperrors.Validation("invalid uuid")
	}
	from, self, err := addressPair(user)
	if err != nil {
		return err
	}
	if err := s.pipeline.DeleteSlots(ctx, rec.Slots, transport.OpCodeTransfer); err != nil {
		return fmt.Errorf("transfer delete slots: %w", err)
	}

	payload := models.TransferDeletePayload{
		UUID:      rec.UUID,
		TxID:      rec.TxID,
		FileName:  rec.FileName,
		Typ:       models.TransferTypeSent,
		Timestamp: models.FormatTimestamp(s.now()),
	}
	recipients := rec.ReceivedAddresses
	if len(recipients) == 0 && rec.ReceivedAddress != "" {
		recipients = []string{rec.ReceivedAddress}
	}
	var errs error
	for _, recipient := range append(append([]string(nil), recipients...), self) {
		tx, err := transaction.Create(models.TxTypeTransferCancel, from, recipient, payload)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if _, err := s.node.Broadcast(ctx, tx); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	if errs != nil {
		return fmt.Errorf("transfer delete: %w", errs)
	}
	return nil
}

// Cancel compensates an upload by deleting its slots in order, stopping at
// the first failure.
func (s *Service) Cancel(ctx context.Context, slots []models.Slot) error {
	if len(slots) == 0 {
		return apperrors.Validation("invalid slots")
	}
	return s.pipeline.CancelUpload(ctx, slots, transport.OpCodeTransfer)
}

// addressPair draws a signing address and a recipient address from user's
// disposable addresses.
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
