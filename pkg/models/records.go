package models

// TransferRecord is the sender-side receipt of one uploaded transfer. It is
// the only handle for later download, delete or cancel of the content.
type TransferRecord struct {
	FileName            string   `json:"filename"`
	UUID                string   `json:"uuid"`
	TxID                string   `json:"tx_id"`
	SenderAddress       string   `json:"sender_address"`
	SenderMasterAddress string   `json:"sender_master_address"`
	ReceivedAddress     string   `json:"received_address"`
	ReceivedAddresses   []string `json:"received_addresses"`
	Size                int64    `json:"size"`
	UploadDate          string   `json:"upload_date"`
	EndTime             string   `json:"end_time"`
	KeyAES              string   `json:"key_aes"`
	KeyHMAC             string   `json:"key_hmac"`
	Address             string   `json:"address"`
	StorageCode         string   `json:"storage_code"`
	Slots               []Slot   `json:"slots"`
}

// StorageRecord is the owner-side receipt of one file placed in storage.
type StorageRecord struct {
	TxID             string `json:"tx_id"`
	FileName         string `json:"filename"`
	UUID             string `json:"uuid"`
	SenderAddress    string `json:"sender_address"`
	RecipientAddress string `json:"recipient_address"`
	Size             int64  `json:"size"`
	UploadDate       string `json:"upload_date"`
	KeyAES           string `json:"key_aes"`
	KeyHMAC          string `json:"key_hmac"`
	Address          string `json:"address"`
	StorageCode      string `json:"storage_code"`
	Slots            []Slot `json:"slots"`
}

// FileResult is the outcome of one file inside a batch upload. Exactly one
// of Transfer/Storage is set on success; Err is set on failure.
type FileResult struct {
	Path     string
	Transfer *TransferRecord
	Storage  *StorageRecord
	Err      error
}

func (r FileResult) Success() bool {
	return r.Err == nil
}

// Slots returns the slot list of whichever record the result carries.
func (r FileResult) Slots() []Slot {
	switch {
	case r.Transfer != nil:
		return r.Transfer.Slots
	case r.Storage != nil:
		return r.Storage.Slots
	default:
		return nil
	}
}

// UploadReport aggregates a batch upload. Files is populated even when the
// batch as a whole failed, so partial failures stay observable.
type UploadReport struct {
	SessionID string
	Files     []FileResult
}

// Failed returns the per-file results that did not succeed.
func (r UploadReport) Failed() []FileResult {
	var out []FileResult
	for _, f := range r.Files {
		if f.Err != nil {
			out = append(out, f)
		}
	}
	return out
}
