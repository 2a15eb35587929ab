package models

// TxType is the token the remote indexer matches transactions on.
type TxType string

const (
	TxTypeMaster                TxType = "initial_storage"
	TxTypeAddress               TxType = "interim_storage"
	TxTypeAddresses             TxType = "interim_storages"
	TxTypeSubMaster             TxType = "initial_sub_storage"
	TxTypeSubAddresses          TxType = "interim_sub_storages"
	TxTypeTransfer              TxType = "transfer"
	TxTypeTransferCancel        TxType = "transfer_Cancel"
	TxTypeTransferSent          TxType = "transfer_sent"
	TxTypeTransferReceiveDelete TxType = "transfer_receive_delete"
	TxTypeStorage               TxType = "storage"
	TxTypeStorageDelete         TxType = "storage_delete"
)

// TransactionVersion is the protocol version stamped on every transaction.
const TransactionVersion = 2

// Transaction is the broadcast wire shape.
type Transaction struct {
	Fee              int64  `json:"fee"`
	TxID             string `json:"tx_id"`
	Version          int    `json:"version"`
	Data             string `json:"data"`
	Sign             string `json:"sign"`
	TxType           TxType `json:"tx_type"`
	SenderAddress    string `json:"sender_address"`
	RecipientAddress string `json:"recipient_address"`
}

// TxRecord is a transaction as returned by the read node's search endpoint.
type TxRecord struct {
	ID            string     `json:"id"`
	Height        int64      `json:"height"`
	Hash          string     `json:"hash"`
	Type          TxType     `json:"typ"`
	SenderAddr    string     `json:"sender_addr"`
	RecipientAddr string     `json:"recipient_addr"`
	Data          TxDataBlob `json:"data"`
	Fee           int64      `json:"fee"`
}

type TxDataBlob struct {
	Bytes string `json:"Bytes"`
}

// Transfer markers carried in the Typ field of transfer payloads.
const (
	TransferNormal   = "normal"
	TransferSentMark = "sent"
	TransferNone     = "non"

	TransferTypeSent     = "sent"
	TransferTypeReceived = "received"
)

type TransferPayload struct {
	SenderMasterAddress string   `json:"SenderMasterAddress"`
	ReceivedAddress     string   `json:"ReceivedAddress"`
	ReceivedAddresses   []string `json:"ReceivedAddresses"`
	UUID                string   `json:"UUID"`
	FileName            string   `json:"FileName"`
	Size                int64    `json:"Size"`
	Slots               []Slot   `json:"Slots"`
	KeyAES              string   `json:"KeyAES"`
	KeyHMAC             string   `json:"KeyHMAC"`
	Message             string   `json:"Message"`
	StorageCode         string   `json:"StorageCode"`
	Address             string   `json:"Address"`
	UploadDate          string   `json:"UploadDate"`
	EndTime             string   `json:"EndTime"`
	Typ                 string   `json:"Typ"`
}

type TransferDeletePayload struct {
	UUID      string `json:"UUID"`
	TxID      string `json:"TxID"`
	FileName  string `json:"FileName"`
	Typ       string `json:"Typ"`
	Timestamp string `json:"Timestamp"`
}

type TransferReceiveDeletePayload struct {
	UUID      string `json:"UUID"`
	TxID      string `json:"TxID"`
	Typ       string `json:"Typ"`
	Timestamp string `json:"Timestamp"`
}

type StoragePayload struct {
	UUID        string `json:"UUID"`
	FileName    string `json:"FileName"`
	Size        int64  `json:"Size"`
	Slots       []Slot `json:"Slots"`
	KeyAES      string `json:"KeyAES"`
	KeyHMAC     string `json:"KeyHMAC"`
	StorageCode string `json:"StorageCode"`
	Address     string `json:"Address"`
	UploadDate  string `json:"UploadDate"`
}

type StorageDeletePayload struct {
	UUID      string `json:"UUID"`
	TxID      string `json:"TxID"`
	FileName  string `json:"FileName"`
	Timestamp string `json:"Timestamp"`
}
