// Package addresses builds and publishes the address hierarchy of a master
// user or sub-user: one master address plus the disposable addresses that
// transfers and storage operations draw from.
package addresses

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"strconv"
	"strings"

	"transferchain/go-sdk/internal/apperrors"
	"transferchain/go-sdk/internal/blockchain"
	"transferchain/go-sdk/internal/identity"
	"transferchain/go-sdk/internal/observability"
	"transferchain/go-sdk/internal/transaction"
	"transferchain/go-sdk/pkg/models"

	"golang.org/x/sync/errgroup"
)

// State is a step of the generation flow.
type State int

const (
	StateStart State = iota
	StateMasterDerived
	StateMasterBroadcast
	StateAddressesDerived
	StateAddressesBroadcast
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateMasterDerived:
		return "master_derived"
	case StateMasterBroadcast:
		return "master_broadcast"
	case StateAddressesDerived:
		return "addresses_derived"
	case StateAddressesBroadcast:
		return "addresses_broadcast"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

type Options struct {
	Metrics *observability.Metrics
	Logger  *slog.Logger
	// OnState observes every state transition.
	OnState func(State)
	// Workers bounds concurrent key derivation; zero means GOMAXPROCS.
	Workers int
}

type Generator struct {
	node    blockchain.Node
	metrics *observability.Metrics
	logger  *slog.Logger
	onState func(State)
	workers int
}

func NewGenerator(node blockchain.Node, opts Options) *Generator {
	g := &Generator{
		node:    node,
		metrics: opts.Metrics,
		logger:  opts.Logger,
		onState: opts.OnState,
		workers: opts.Workers,
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}
	if g.workers <= 0 {
		g.workers = runtime.GOMAXPROCS(0)
	}
	return g
}

type request struct {
	userID    int64
	subUserID string
	mnemonic  string
	// masterTxRecipient receives the master transaction; empty means self.
	masterTxRecipient string
	masterType        models.TxType
	listType          models.TxType
}

// GenerateUser creates the hierarchy of the account's master user. The
// master transaction is addressed to the master address itself.
func (g *Generator) GenerateUser(ctx context.Context, userID int64, mnemonic string) (models.User, error) {
	if err := validate(userID, mnemonic); err != nil {
		return models.User{}, err
	}
	addrs, err := g.generate(ctx, request{
		userID:     userID,
		mnemonic:   mnemonic,
		masterType: models.TxTypeMaster,
		listType:   models.TxTypeAddresses,
	})
	if err != nil {
		return models.User{}, err
	}
	id := strconv.FormatInt(userID, 10)
	return models.User{
		ID:            id,
		ParentUserID:  id,
		MasterAddress: addrs[0],
		Master:        true,
		Addresses:     addrs,
	}, nil
}

// GenerateSubUser creates the hierarchy of a sub-user. Its master
// transaction is addressed to the parent's master address so that restore
// can discover it from the account mnemonic alone.
func (g *Generator) GenerateSubUser(ctx context.Context, userID int64, parentMaster models.Address, mnemonic, subUserID string) (models.User, error) {
	if err := validate(userID, mnemonic); err != nil {
		return models.User{}, err
	}
	if strings.TrimSpace(subUserID) == "" {
		return models.User{}, apperrors.Validation("sub user id is required")
	}
	if !identity.ValidAddress(parentMaster.Key.Address) {
		return models.User{}, apperrors.Validation("parent master address is invalid")
	}
	addrs, err := g.generate(ctx, request{
		userID:            userID,
		subUserID:         subUserID,
		mnemonic:          mnemonic,
		masterTxRecipient: parentMaster.Key.Address,
		masterType:        models.TxTypeSubMaster,
		listType:          models.TxTypeSubAddresses,
	})
	if err != nil {
		return models.User{}, err
	}
	return models.User{
		ID:            subUserID,
		ParentUserID:  strconv.FormatInt(userID, 10),
		MasterAddress: addrs[0],
		Master:        false,
		Addresses:     addrs,
	}, nil
}

func validate(userID int64, mnemonic string) error {
	if userID <= 0 {
		return apperrors.Validation("user id must be positive")
	}
	return identity.ValidateWordCount(mnemonic)
}

func (g *Generator) generate(ctx context.Context, req request) (addrs []models.Address, err error) {
	state := StateStart
	g.transition(state)
	defer func() {
		if err != nil {
			g.logger.Warn("address generation failed",
				"component", "addresses",
				"operation", string(req.masterType),
				"user_id", req.userID,
				"sub_user_id", req.subUserID,
				"state", state.String(),
				"error", err.Error(),
			)
			g.transition(StateFailed)
		}
	}()

	userPassword := identity.UserPassword(req.userID, req.subUserID)
	masterKeys, err := identity.KeysFromMnemonic(req.mnemonic, userPassword)
	if err != nil {
		return nil, err
	}
	master := models.Address{
		Key:       masterKeys.Record(),
		Mnemonics: req.mnemonic,
		Master:    true,
		UserID:    req.userID,
		SubUserID: req.subUserID,
	}
	state = StateMasterDerived
	g.transition(state)

	recipient := req.masterTxRecipient
	if recipient == "" {
		recipient = masterKeys.Address
	}
	if err := g.publish(ctx, req.masterType, masterKeys, recipient, master, false); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryPublication,
			fmt.Errorf("%w: %w", apperrors.ErrAddressPublication, err))
	}
	state = StateMasterBroadcast
	g.transition(state)

	disposable, err := g.derive(ctx, req, userPassword, masterKeys.Address)
	if err != nil {
		return nil, err
	}
	state = StateAddressesDerived
	g.transition(state)

	list := models.AddressList{UserID: req.userID, Addresses: disposable}
	if err := g.publish(ctx, req.listType, masterKeys, masterKeys.Address, list, true); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryPublication,
			fmt.Errorf("%w: %w", apperrors.ErrAddressListPublication, err))
	}
	state = StateAddressesBroadcast
	g.transition(state)

	addrs = make([]models.Address, 0, len(disposable)+1)
	addrs = append(addrs, master)
	addrs = append(addrs, disposable...)
	g.metrics.AddAddresses(len(addrs))
	state = StateDone
	g.transition(state)
	return addrs, nil
}

// derive computes the disposable addresses. Output order follows the
// password index regardless of which worker finishes first.
func (g *Generator) derive(ctx context.Context, req request, userPassword, masterAddress string) ([]models.Address, error) {
	out := make([]models.Address, models.DisposableAddressCount)
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.workers)
	for i := range out {
		i := i
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			keys, err := identity.KeysFromMnemonic(req.mnemonic, identity.AddressPassword(userPassword, i))
			if err != nil {
				return err
			}
			out[i] = models.Address{
				Key:           keys.Record(),
				Mnemonics:     req.mnemonic,
				UserID:        req.userID,
				MasterAddress: masterAddress,
				SubUserID:     req.subUserID,
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (g *Generator) publish(ctx context.Context, txType models.TxType, sender *identity.Keys, recipient string, payload any, compressed bool) error {
	create := transaction.Create
	if compressed {
		create = transaction.CreateCompressed
	}
	tx, err := create(txType, sender, recipient, payload)
	if err != nil {
		return err
	}
	_, err = g.node.Broadcast(ctx, tx)
	return err
}

func (g *Generator) transition(s State) {
	if g.onState != nil {
		g.onState(s)
	}
}
