package transferchain

import (
	"context"

	"transferchain/go-sdk/internal/transfer"
	"transferchain/go-sdk/pkg/models"
)

type (
	// TransferRequest describes one batch transfer. Sender must be one of
	// the caller's addresses; Recipients are Base58 addresses.
	TransferRequest = transfer.UploadRequest
	// DownloadRequest carries what a received transfer or a sent record
	// holds about the content.
	DownloadRequest = transfer.DownloadRequest
)

// DownloadFromRecord builds the download request for a sent record.
func DownloadFromRecord(rec models.TransferRecord, destination string) DownloadRequest {
	return DownloadRequest{
		UUID:        rec.UUID,
		Slots:       rec.Slots,
		Size:        rec.Size,
		FileName:    rec.FileName,
		KeyAES:      rec.KeyAES,
		KeyHMAC:     rec.KeyHMAC,
		Destination: destination,
	}
}

// TransferFiles uploads req.Files and announces them to every recipient.
// The report holds one result per file even when err is non-nil.
func (c *Client) TransferFiles(ctx context.Context, req TransferRequest) (models.UploadReport, error) {
	return c.transfers.Upload(ctx, req)
}

func (c *Client) TransferDownload(ctx context.Context, req DownloadRequest) (string, error) {
	return c.transfers.Download(ctx, req)
}

// TransferReceivedDelete hides a received transfer for the user userID.
func (c *Client) TransferReceivedDelete(ctx context.Context, userID, uuid, txID string) error {
	user, err := c.GetUser(userID)
	if err != nil {
		return err
	}
	return c.transfers.DeleteReceived(ctx, user, uuid, txID)
}

// TransferSentDelete deletes the content behind rec and notifies its
// recipients.
func (c *Client) TransferSentDelete(ctx context.Context, userID string, rec models.TransferRecord) error {
	user, err := c.GetUser(userID)
	if err != nil {
		return err
	}
	return c.transfers.DeleteSent(ctx, user, rec)
}

func (c *Client) TransferCancel(ctx context.Context, slots []models.Slot) error {
	return c.transfers.Cancel(ctx, slots)
}

// StorageUpload keeps files in the storage of the user userID.
func (c *Client) StorageUpload(ctx context.Context, userID string, files []string, onFile func(models.FileResult)) (models.UploadReport, error) {
	user, err := c.GetUser(userID)
	if err != nil {
		return models.UploadReport{}, err
	}
	return c.storage.Upload(ctx, user, files, onFile)
}

func (c *Client) StorageDownload(ctx context.Context, rec models.StorageRecord, destination string) (string, error) {
	return c.storage.Download(ctx, rec, destination)
}

func (c *Client) StorageDelete(ctx context.Context, userID string, rec models.StorageRecord) error {
	user, err := c.GetUser(userID)
	if err != nil {
		return err
	}
	return c.storage.Delete(ctx, user, rec)
}

func (c *Client) StorageCancel(ctx context.Context, slots []models.Slot) error {
	return c.storage.Cancel(ctx, slots)
}
