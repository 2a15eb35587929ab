package models

import "time"

// TimestampLayout is the wire format for every timestamp carried inside a
// transaction payload.
const TimestampLayout = "2006-01-02T15:04:05Z"

func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

func ParseTimestamp(value string) (time.Time, error) {
	return time.Parse(TimestampLayout, value)
}

// KeyRecord is the serialized form of one address's key material. Field
// names are part of the network protocol: restore decodes them back from
// the blockchain.
type KeyRecord struct {
	Seed               string `json:"Seed"`
	Seed58             string `json:"Seed58"`
	PrivateKeySign     string `json:"PrivateKeySign"`
	PublicKeySign      string `json:"PublicKeySign"`
	PublicKeySign58    string `json:"PublicKeySign58"`
	PublicKeyEncrypt   string `json:"PublicKeyEncrypt"`
	PublicKeyEncrypt58 string `json:"PublicKeyEncrypt58"`
	Address            string `json:"Address"`
}

type Address struct {
	Key           KeyRecord `json:"Key"`
	Mnemonics     string    `json:"Mnemonics"`
	Master        bool      `json:"Master"`
	UserID        int64     `json:"UserID"`
	MasterAddress string    `json:"MasterAddress"`
	SubUserID     string    `json:"SubUserID"`
}

// AddressList is the payload of the interim_storages and
// interim_sub_storages transactions.
type AddressList struct {
	UserID    int64     `json:"UserID"`
	Addresses []Address `json:"Addresses"`
}

type Slot struct {
	UUID           string `json:"UUID"`
	BaseUUID       string `json:"BaseUUID"`
	StorageService string `json:"StorageService"`
	Address        string `json:"Address"`
	Size           int64  `json:"Size"`
	SizeRL         int64  `json:"SizeRL"`
	StorageCode    string `json:"StorageCode"`
	UserID         int64  `json:"userID"`
}

func CloneSlots(in []Slot) []Slot {
	if in == nil {
		return nil
	}
	return append([]Slot(nil), in...)
}
