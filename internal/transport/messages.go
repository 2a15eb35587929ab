package transport

import "transferchain/go-sdk/pkg/models"

// OpCode selects the product line an upload belongs to.
type OpCode int32

const (
	OpCodeTransfer OpCode = 0
	OpCodeStorage  OpCode = 1
)

func (c OpCode) String() string {
	switch c {
	case OpCodeTransfer:
		return "transfer"
	case OpCodeStorage:
		return "storage"
	default:
		return "unknown"
	}
}

type TransferOpCode int32

const TransferOpCodeNormal TransferOpCode = 0

// StatusOK is the only upload status code that means success.
const StatusOK int32 = 1

// TransferRetentionHours is how long transferred content stays available.
const TransferRetentionHours = 7 * 24

type TransferInitRequest struct {
	Files          []string       `json:"files"`
	TotalSize      int64          `json:"totalSize"`
	OpCode         OpCode         `json:"opCode"`
	UserID         int64          `json:"userID"`
	WalletID       int64          `json:"walletID"`
	RecipientCount int            `json:"recipientCount"`
	TransferOpCode TransferOpCode `json:"transferOpCode"`
	Notes          string         `json:"notes"`
	Paths          []string       `json:"paths"`
	DeleteAfter    int64          `json:"DeleteAfter"`
}

type StorageInitRequest struct {
	Files     []string `json:"files"`
	TotalSize int64    `json:"totalSize"`
	OpCode    OpCode   `json:"OpCode"`
	UserID    int64    `json:"userID"`
	WalletID  int64    `json:"walletID"`
	Paths     []string `json:"paths"`
}

// InitResponse maps every requested path to its provisional content id.
type InitResponse struct {
	SessionID string            `json:"SessionID"`
	BaseUUIDs map[string]string `json:"BaseUUIDs"`
}

type UploadInitRequest struct {
	SessionID      string         `json:"sessionID"`
	FileName       string         `json:"fileName"`
	FileSize       int64          `json:"fileSize"`
	OpCode         OpCode         `json:"opCode"`
	UserID         int64          `json:"userID"`
	WalletID       int64          `json:"walletID"`
	DeleteAfter    int64          `json:"DeleteAfter"`
	RecipientCount int            `json:"recipientCount"`
	TransferOpCode TransferOpCode `json:"transferOpCode"`
	SenderAddress  string         `json:"senderAddress"`
}

// UploadInitResponse is the slot plan. Slot order is authoritative.
type UploadInitResponse struct {
	Slots       []models.Slot `json:"Slots"`
	BaseUUID    string        `json:"BaseUUID"`
	Address     string        `json:"Address"`
	StorageCode string        `json:"StorageCode"`
}

type UploadChunk struct {
	Chunk    []byte      `json:"Chunk"`
	Slot     models.Slot `json:"Slot"`
	LastSlot bool        `json:"LastSlot"`
}

type UploadResponse struct {
	StatusCode int32 `json:"statusCode"`
}

type FinishRequest struct {
	SessionID string `json:"SessionID"`
	UserID    int64  `json:"UserID"`
	WalletID  int64  `json:"WalletID"`
}

type FinishResponse struct{}

type DownloadRequest struct {
	UUID     string        `json:"uuid"`
	Slots    []models.Slot `json:"Slots"`
	WalletID int64         `json:"WalletID"`
	UserID   int64         `json:"UserID"`
	OpCode   OpCode        `json:"opCode"`
}

type DownloadChunk struct {
	Chunk []byte `json:"chunk"`
}

type DeleteRequest struct {
	UUID        string      `json:"uuid"`
	StorageCode string      `json:"StorageCode"`
	WalletID    int64       `json:"WalletID"`
	Slot        models.Slot `json:"slot"`
	OpCode      OpCode      `json:"opCode"`
	UserID      int64       `json:"UserID"`
}

type DeleteResponse struct{}
