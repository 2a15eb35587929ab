// Package restore rebuilds users from the account mnemonic by reading the
// address transactions back from the read node.
package restore

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"transferchain/go-sdk/internal/apperrors"
	"transferchain/go-sdk/internal/blockchain"
	"transferchain/go-sdk/internal/identity"
	"transferchain/go-sdk/internal/observability"
	"transferchain/go-sdk/internal/transaction"
	"transferchain/go-sdk/pkg/models"
)

const (
	DefaultPageSize = 100
	// DefaultMaxPages bounds sub-user pagination against a read node whose
	// total_count never converges.
	DefaultMaxPages = 1000
)

type Options struct {
	Metrics  *observability.Metrics
	Logger   *slog.Logger
	PageSize int
	MaxPages int
}

type Restorer struct {
	node     blockchain.Node
	metrics  *observability.Metrics
	logger   *slog.Logger
	pageSize int
	maxPages int
}

func New(node blockchain.Node, opts Options) *Restorer {
	r := &Restorer{
		node:     node,
		metrics:  opts.Metrics,
		logger:   opts.Logger,
		pageSize: opts.PageSize,
		maxPages: opts.MaxPages,
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.pageSize <= 0 {
		r.pageSize = DefaultPageSize
	}
	if r.maxPages <= 0 {
		r.maxPages = DefaultMaxPages
	}
	return r
}

// RestoreMaster re-derives the keys of password and returns one page of
// txType transactions addressed to them, oldest first.
func (r *Restorer) RestoreMaster(ctx context.Context, mnemonic, password string, txType models.TxType, limit, offset int) (*identity.Keys, blockchain.SearchResult, error) {
	keys, err := identity.KeysFromMnemonic(mnemonic, password)
	if err != nil {
		return nil, blockchain.SearchResult{}, err
	}
	res, err := r.node.TxSearch(ctx, blockchain.RecipientQuery(keys.Address, txType, limit, offset))
	if err != nil {
		return keys, blockchain.SearchResult{}, err
	}
	return keys, res, nil
}

// ExtractTransaction decrypts record with keys into v; compressed payloads
// are gunzipped first.
func ExtractTransaction(record models.TxRecord, keys *identity.Keys, compressed bool, v any) error {
	return transaction.Open(record, keys, compressed, v)
}

// RestoreMasterUser rebuilds the master user of userID. A master
// transaction that names another user id fails with
// ErrAuthorizationMismatch.
func (r *Restorer) RestoreMasterUser(ctx context.Context, mnemonic string, userID int64) (models.User, error) {
	if err := checkArgs(mnemonic, userID); err != nil {
		return models.User{}, err
	}
	keys, res, err := r.RestoreMaster(ctx, mnemonic, identity.UserPassword(userID, ""), models.TxTypeMaster, 1, 0)
	if err != nil {
		return models.User{}, err
	}
	if len(res.Txs) == 0 {
		return models.User{}, fmt.Errorf("master transaction: %w", apperrors.ErrNotFound)
	}
	var master models.Address
	if err := ExtractTransaction(res.Txs[0], keys, false, &master); err != nil {
		return models.User{}, err
	}
	if err := authorize(master, userID); err != nil {
		return models.User{}, err
	}
	addrs, err := r.hierarchy(ctx, master, keys, models.TxTypeAddresses)
	if err != nil {
		return models.User{}, err
	}
	id := strconv.FormatInt(master.UserID, 10)
	r.metrics.ObserveRestore("master", 1)
	return models.User{
		ID:            id,
		ParentUserID:  id,
		MasterAddress: master,
		Master:        true,
		Addresses:     addrs,
	}, nil
}

// RestoreSubUsers rebuilds every sub-user registered under the master of
// userID, one User per sub-master transaction.
func (r *Restorer) RestoreSubUsers(ctx context.Context, mnemonic string, userID int64) ([]models.User, error) {
	if err := checkArgs(mnemonic, userID); err != nil {
		return nil, err
	}
	password := identity.UserPassword(userID, "")
	var users []models.User
	for page := 1; ; page++ {
		if page > r.maxPages {
			r.logger.Warn("sub user restore stopped at page limit",
				"component", "restore",
				"operation", "restore_sub_users",
				"pages", r.maxPages,
				"restored", len(users),
			)
			break
		}
		offset := (page - 1) * r.pageSize
		keys, res, err := r.RestoreMaster(ctx, mnemonic, password, models.TxTypeSubMaster, r.pageSize, offset)
		if err != nil {
			return nil, err
		}
		if len(res.Txs) == 0 {
			break
		}
		for _, record := range res.Txs {
			user, err := r.subUser(ctx, record, keys, userID)
			if err != nil {
				return nil, err
			}
			users = append(users, user)
		}
		if len(users) >= res.TotalCount {
			break
		}
	}
	r.metrics.ObserveRestore("sub", len(users))
	return users, nil
}

func (r *Restorer) subUser(ctx context.Context, record models.TxRecord, parentKeys *identity.Keys, userID int64) (models.User, error) {
	var master models.Address
	if err := ExtractTransaction(record, parentKeys, false, &master); err != nil {
		return models.User{}, err
	}
	if err := authorize(master, userID); err != nil {
		return models.User{}, err
	}
	subKeys, err := identity.KeysFromRecord(master.Key)
	if err != nil {
		return models.User{}, err
	}
	addrs, err := r.hierarchy(ctx, master, subKeys, models.TxTypeSubAddresses)
	if err != nil {
		return models.User{}, err
	}
	return models.User{
		ID:            master.SubUserID,
		ParentUserID:  strconv.FormatInt(master.UserID, 10),
		MasterAddress: master,
		Master:        false,
		Addresses:     addrs,
	}, nil
}

// hierarchy fetches the address list published by master and places the
// master in front of it. A list of the wrong length is rejected.
func (r *Restorer) hierarchy(ctx context.Context, master models.Address, keys *identity.Keys, listType models.TxType) ([]models.Address, error) {
	res, err := r.node.TxSearch(ctx, blockchain.RecipientQuery(master.Key.Address, listType, 1, 0))
	if err != nil {
		return nil, err
	}
	if len(res.Txs) == 0 {
		return nil, fmt.Errorf("%s transaction: %w", listType, apperrors.ErrNotFound)
	}
	var list models.AddressList
	if err := ExtractTransaction(res.Txs[0], keys, true, &list); err != nil {
		return nil, err
	}
	if len(list.Addresses) != models.DisposableAddressCount {
		return nil, apperrors.Wrap(apperrors.CategoryPublication,
			fmt.Errorf("%w: list holds %d addresses, want %d",
				apperrors.ErrAddressListPublication, len(list.Addresses), models.DisposableAddressCount))
	}
	first := master
	first.MasterAddress = master.Key.Address
	addrs := make([]models.Address, 0, len(list.Addresses)+1)
	addrs = append(addrs, first)
	return append(addrs, list.Addresses...), nil
}

func authorize(master models.Address, userID int64) error {
	if master.UserID != userID {
		return apperrors.Wrap(apperrors.CategoryAuthorization,
			fmt.Errorf("%w: master transaction belongs to user %d", apperrors.ErrAuthorizationMismatch, master.UserID))
	}
	return nil
}

func checkArgs(mnemonic string, userID int64) error {
	if userID <= 0 {
		return apperrors.Validation("user id must be positive")
	}
	return identity.ValidateWordCount(mnemonic)
}
