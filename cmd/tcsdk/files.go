package main

import (
	"context"
	"fmt"

	"transferchain/go-sdk/pkg/models"
	"transferchain/go-sdk/pkg/transferchain"

	"github.com/spf13/cobra"
)

type fileOutcome struct {
	Path     string                 `json:"path"`
	Error    string                 `json:"error,omitempty"`
	Transfer *models.TransferRecord `json:"transfer,omitempty"`
	Storage  *models.StorageRecord  `json:"storage,omitempty"`
}

type reportOutput struct {
	SessionID string        `json:"session_id"`
	Files     []fileOutcome `json:"files"`
	Error     string        `json:"error,omitempty"`
}

func toOutput(report models.UploadReport, err error) reportOutput {
	out := reportOutput{SessionID: report.SessionID}
	if err != nil {
		out.Error = err.Error()
	}
	for _, f := range report.Files {
		o := fileOutcome{Path: f.Path, Transfer: f.Transfer, Storage: f.Storage}
		if f.Err != nil {
			o.Error = f.Err.Error()
		}
		out.Files = append(out.Files, o)
	}
	return out
}

// reportError turns a batch with failed files into a non-zero exit.
func reportError(report models.UploadReport, err error) error {
	if err != nil {
		return err
	}
	if n := len(report.Failed()); n > 0 {
		return fmt.Errorf("%d of %d files failed", n, len(report.Files))
	}
	return nil
}

func newTransferCommand(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transfer",
		Short: "Send files to other addresses and manage sent transfers",
	}

	var (
		userID     string
		senderAddr string
		recipients []string
		note       string
	)
	send := &cobra.Command{
		Use:   "send <file>...",
		Short: "Upload files and announce them to every recipient",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, flags, func(ctx context.Context, c *transferchain.Client) error {
				user, err := c.GetUser(userID)
				if err != nil {
					return err
				}
				sender, err := pickSender(user, senderAddr)
				if err != nil {
					return err
				}
				report, err := c.TransferFiles(ctx, transferchain.TransferRequest{
					Files:      args,
					Sender:     sender,
					Recipients: recipients,
					Note:       note,
				})
				if perr := printJSON(cmd.OutOrStdout(), toOutput(report, err)); perr != nil {
					return perr
				}
				return reportError(report, err)
			})
		},
	}
	send.Flags().StringVar(&userID, "user", "", "id of the sending user")
	send.Flags().StringVar(&senderAddr, "from", "", "sender address (default: a random disposable address of the user)")
	send.Flags().StringSliceVar(&recipients, "to", nil, "recipient addresses")
	send.Flags().StringVar(&note, "note", "", "note attached to the transfer")
	_ = send.MarkFlagRequired("user")
	_ = send.MarkFlagRequired("to")

	var recordPath, destination string
	download := &cobra.Command{
		Use:   "download",
		Short: "Download the content of a transfer record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var rec models.TransferRecord
			if err := readJSONFile(recordPath, &rec); err != nil {
				return err
			}
			return withClient(cmd, flags, func(ctx context.Context, c *transferchain.Client) error {
				path, err := c.TransferDownload(ctx, transferchain.DownloadFromRecord(rec, destination))
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), path)
				return nil
			})
		},
	}
	download.Flags().StringVar(&recordPath, "record", "", "JSON file holding a transfer record")
	download.Flags().StringVar(&destination, "out", ".", "destination directory")
	_ = download.MarkFlagRequired("record")

	var deleteUser, deleteRecord string
	deleteSent := &cobra.Command{
		Use:   "delete-sent",
		Short: "Delete a sent transfer and notify its recipients",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var rec models.TransferRecord
			if err := readJSONFile(deleteRecord, &rec); err != nil {
				return err
			}
			return withClient(cmd, flags, func(ctx context.Context, c *transferchain.Client) error {
				return c.TransferSentDelete(ctx, deleteUser, rec)
			})
		},
	}
	deleteSent.Flags().StringVar(&deleteUser, "user", "", "id of the sending user")
	deleteSent.Flags().StringVar(&deleteRecord, "record", "", "JSON file holding the transfer record")
	_ = deleteSent.MarkFlagRequired("user")
	_ = deleteSent.MarkFlagRequired("record")

	var receivedUser, receivedUUID, receivedTxID string
	deleteReceived := &cobra.Command{
		Use:   "delete-received",
		Short: "Hide a received transfer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(cmd, flags, func(ctx context.Context, c *transferchain.Client) error {
				return c.TransferReceivedDelete(ctx, receivedUser, receivedUUID, receivedTxID)
			})
		},
	}
	deleteReceived.Flags().StringVar(&receivedUser, "user", "", "id of the receiving user")
	deleteReceived.Flags().StringVar(&receivedUUID, "uuid", "", "content uuid of the transfer")
	deleteReceived.Flags().StringVar(&receivedTxID, "tx-id", "", "transaction id of the transfer")
	_ = deleteReceived.MarkFlagRequired("user")
	_ = deleteReceived.MarkFlagRequired("uuid")

	var cancelRecord string
	cancel := &cobra.Command{
		Use:   "cancel",
		Short: "Delete the slots of a transfer record in order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var rec models.TransferRecord
			if err := readJSONFile(cancelRecord, &rec); err != nil {
				return err
			}
			return withClient(cmd, flags, func(ctx context.Context, c *transferchain.Client) error {
				return c.TransferCancel(ctx, rec.Slots)
			})
		},
	}
	cancel.Flags().StringVar(&cancelRecord, "record", "", "JSON file holding the transfer record")
	_ = cancel.MarkFlagRequired("record")

	cmd.AddCommand(send, download, deleteSent, deleteReceived, cancel)
	return cmd
}

func newStorageCommand(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "storage",
		Short: "Keep files in the account's encrypted storage",
	}

	var userID string
	upload := &cobra.Command{
		Use:   "upload <file>...",
		Short: "Upload up to 20 files to storage",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, flags, func(ctx context.Context, c *transferchain.Client) error {
				report, err := c.StorageUpload(ctx, userID, args, nil)
				if perr := printJSON(cmd.OutOrStdout(), toOutput(report, err)); perr != nil {
					return perr
				}
				return reportError(report, err)
			})
		},
	}
	upload.Flags().StringVar(&userID, "user", "", "id of the owning user")
	_ = upload.MarkFlagRequired("user")

	var recordPath, destination string
	download := &cobra.Command{
		Use:   "download",
		Short: "Download a stored file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var rec models.StorageRecord
			if err := readJSONFile(recordPath, &rec); err != nil {
				return err
			}
			return withClient(cmd, flags, func(ctx context.Context, c *transferchain.Client) error {
				path, err := c.StorageDownload(ctx, rec, destination)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), path)
				return nil
			})
		},
	}
	download.Flags().StringVar(&recordPath, "record", "", "JSON file holding a storage record")
	download.Flags().StringVar(&destination, "out", ".", "destination directory")
	_ = download.MarkFlagRequired("record")

	var deleteUser, deleteRecord string
	del := &cobra.Command{
		Use:   "delete",
		Short: "Delete a stored file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var rec models.StorageRecord
			if err := readJSONFile(deleteRecord, &rec); err != nil {
				return err
			}
			return withClient(cmd, flags, func(ctx context.Context, c *transferchain.Client) error {
				return c.StorageDelete(ctx, deleteUser, rec)
			})
		},
	}
	del.Flags().StringVar(&deleteUser, "user", "", "id of the owning user")
	del.Flags().StringVar(&deleteRecord, "record", "", "JSON file holding the storage record")
	_ = del.MarkFlagRequired("user")
	_ = del.MarkFlagRequired("record")

	var cancelRecord string
	cancel := &cobra.Command{
		Use:   "cancel",
		Short: "Delete the slots of a storage record in order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var rec models.StorageRecord
			if err := readJSONFile(cancelRecord, &rec); err != nil {
				return err
			}
			return withClient(cmd, flags, func(ctx context.Context, c *transferchain.Client) error {
				return c.StorageCancel(ctx, rec.Slots)
			})
		},
	}
	cancel.Flags().StringVar(&cancelRecord, "record", "", "JSON file holding the storage record")
	_ = cancel.MarkFlagRequired("record")

	cmd.AddCommand(upload, download, del, cancel)
	return cmd
}

func pickSender(user models.User, address string) (models.Address, error) {
	if address == "" {
		return user.RandomAddress()
	}
	a, ok := user.FindAddress(address)
	if !ok {
		return models.Address{}, fmt.Errorf("address %s does not belong to user %s", address, user.ID)
	}
	return a, nil
}
