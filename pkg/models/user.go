package models

import (
	"crypto/rand"
	"errors"
	"math/big"
)

// DisposableAddressCount is the number of single-use addresses generated
// next to every master address.
const DisposableAddressCount = 250

var ErrNoOperationalAddress = errors.New("user has no disposable addresses")

type User struct {
	ID            string    `json:"id"`
	ParentUserID  string    `json:"parent_user_id"`
	MasterAddress Address   `json:"master_address"`
	Master        bool      `json:"master"`
	Addresses     []Address `json:"addresses"`
}

// Complete reports whether the user carries the full hierarchy: the master
// at index 0 followed by every disposable address.
func (u User) Complete() bool {
	if len(u.Addresses) != DisposableAddressCount+1 {
		return false
	}
	return u.Addresses[0].Key.Address == u.MasterAddress.Key.Address
}

// RandomAddress picks one of the disposable addresses uniformly at random.
// Index 0 (the master) is never returned.
func (u User) RandomAddress() (Address, error) {
	if len(u.Addresses) < 2 {
		return Address{}, ErrNoOperationalAddress
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(u.Addresses)-1)))
	if err != nil {
		return Address{}, err
	}
	return u.Addresses[1+int(n.Int64())], nil
}

// FindAddress returns the address whose Base58 form equals addr.
func (u User) FindAddress(addr string) (Address, bool) {
	for _, a := range u.Addresses {
		if a.Key.Address == addr {
			return a, true
		}
	}
	return Address{}, false
}
