package addresses_test

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"transferchain/go-sdk/internal/addresses"
	"transferchain/go-sdk/internal/apperrors"
	"transferchain/go-sdk/internal/blockchain"
	"transferchain/go-sdk/internal/identity"
	"transferchain/go-sdk/internal/testutil/fakenet"
	"transferchain/go-sdk/internal/transaction"
	"transferchain/go-sdk/pkg/models"
)

var testMnemonic = strings.Repeat("abandon ", 23) + "art"

func newGenerator(t *testing.T, opts addresses.Options) (*fakenet.ReadNode, *addresses.Generator) {
	t.Helper()
	node, srv := fakenet.StartReadNode(t)
	client, err := blockchain.New(srv.URL, blockchain.Options{})
	if err != nil {
		t.Fatalf("blockchain client: %v", err)
	}
	return node, addresses.NewGenerator(client, opts)
}

func TestGenerateUserPublishesHierarchy(t *testing.T) {
	var states []addresses.State
	node, gen := newGenerator(t, addresses.Options{OnState: func(s addresses.State) { states = append(states, s) }})

	user, err := gen.GenerateUser(context.Background(), 42, testMnemonic)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(user.Addresses) != models.DisposableAddressCount+1 || !user.Complete() {
		t.Fatalf("unexpected hierarchy size: %d", len(user.Addresses))
	}
	if user.ID != "42" || user.ParentUserID != "42" || !user.Master {
		t.Fatalf("unexpected user identity: %+v", user)
	}

	masterKeys, _ := identity.KeysFromMnemonic(testMnemonic, "user-42")
	if user.MasterAddress.Key.Address != masterKeys.Address {
		t.Fatal("master address must derive from user-42")
	}
	third, _ := identity.KeysFromMnemonic(testMnemonic, "user-42-2")
	if user.Addresses[3].Key.Address != third.Address || user.Addresses[3].MasterAddress != masterKeys.Address {
		t.Fatalf("disposable addresses out of order: %+v", user.Addresses[3])
	}

	masterTxs := node.Transactions(models.TxTypeMaster)
	if len(masterTxs) != 1 || masterTxs[0].RecipientAddress != masterKeys.Address || masterTxs[0].SenderAddress != masterKeys.Address {
		t.Fatalf("unexpected master transactions: %+v", masterTxs)
	}
	var published models.Address
	if err := transaction.OpenTransaction(masterTxs[0], masterKeys, false, &published); err != nil {
		t.Fatalf("open master tx: %v", err)
	}
	if published.UserID != 42 || !published.Master || published.Key.Address != masterKeys.Address {
		t.Fatalf("unexpected master payload: %+v", published)
	}

	listTxs := node.Transactions(models.TxTypeAddresses)
	if len(listTxs) != 1 {
		t.Fatalf("expected one address list transaction, got %d", len(listTxs))
	}
	var list models.AddressList
	if err := transaction.OpenTransaction(listTxs[0], masterKeys, true, &list); err != nil {
		t.Fatalf("open list tx: %v", err)
	}
	if list.UserID != 42 || len(list.Addresses) != models.DisposableAddressCount {
		t.Fatalf("unexpected list payload: user=%d len=%d", list.UserID, len(list.Addresses))
	}

	want := []addresses.State{
		addresses.StateStart,
		addresses.StateMasterDerived,
		addresses.StateMasterBroadcast,
		addresses.StateAddressesDerived,
		addresses.StateAddressesBroadcast,
		addresses.StateDone,
	}
	if !reflect.DeepEqual(states, want) {
		t.Fatalf("unexpected transitions: %v", states)
	}
}

func TestGenerateSubUserAddressesParent(t *testing.T) {
	node, gen := newGenerator(t, addresses.Options{})
	ctx := context.Background()
	parent, err := gen.GenerateUser(ctx, 42, testMnemonic)
	if err != nil {
		t.Fatalf("generate master: %v", err)
	}
	sub, err := gen.GenerateSubUser(ctx, 42, parent.MasterAddress, testMnemonic, "sub-1")
	if err != nil {
		t.Fatalf("generate sub: %v", err)
	}
	if sub.ID != "sub-1" || sub.ParentUserID != "42" || sub.Master || !sub.Complete() {
		t.Fatalf("unexpected sub user: id=%s parent=%s master=%v", sub.ID, sub.ParentUserID, sub.Master)
	}
	subKeys, _ := identity.KeysFromMnemonic(testMnemonic, "user-42-sub-1")
	if sub.MasterAddress.Key.Address != subKeys.Address || sub.MasterAddress.SubUserID != "sub-1" {
		t.Fatalf("unexpected sub master: %+v", sub.MasterAddress)
	}

	txs := node.Transactions(models.TxTypeSubMaster)
	if len(txs) != 1 || txs[0].RecipientAddress != parent.MasterAddress.Key.Address || txs[0].SenderAddress != subKeys.Address {
		t.Fatalf("sub master tx must go to the parent master: %+v", txs)
	}
	lists := node.Transactions(models.TxTypeSubAddresses)
	if len(lists) != 1 || lists[0].RecipientAddress != subKeys.Address {
		t.Fatalf("sub address list must be self-addressed: %+v", lists)
	}
}

func TestGenerateFailsWhenMasterIsNotPublished(t *testing.T) {
	var last addresses.State
	node, gen := newGenerator(t, addresses.Options{OnState: func(s addresses.State) { last = s }})
	node.SetRejectBroadcast(func(models.Transaction) string { return "node down" })

	_, err := gen.GenerateUser(context.Background(), 42, testMnemonic)
	if !errors.Is(err, apperrors.ErrAddressPublication) {
		t.Fatalf("expected address publication error, got %v", err)
	}
	if apperrors.Category(err) != apperrors.CategoryPublication {
		t.Fatalf("unexpected category: %s", apperrors.Category(err))
	}
	if len(node.Transactions(models.TxTypeAddresses)) != 0 {
		t.Fatal("address list must not be published after a failed master broadcast")
	}
	if last != addresses.StateFailed {
		t.Fatalf("unexpected final state: %v", last)
	}
}

func TestGenerateFailsWhenAddressListIsNotPublished(t *testing.T) {
	node, gen := newGenerator(t, addresses.Options{})
	node.SetRejectBroadcast(func(tx models.Transaction) string {
		if tx.TxType == models.TxTypeAddresses {
			return "too large"
		}
		return ""
	})
	user, err := gen.GenerateUser(context.Background(), 42, testMnemonic)
	if !errors.Is(err, apperrors.ErrAddressListPublication) {
		t.Fatalf("expected address list publication error, got %v", err)
	}
	if len(user.Addresses) != 0 {
		t.Fatal("no user may be returned on failure")
	}
	if len(node.Transactions(models.TxTypeMaster)) != 1 {
		t.Fatal("master broadcast stays published")
	}
}

func TestGenerateRejectsBadArguments(t *testing.T) {
	node, gen := newGenerator(t, addresses.Options{})
	ctx := context.Background()
	if _, err := gen.GenerateUser(ctx, 0, testMnemonic); !apperrors.IsValidation(err) {
		t.Fatalf("expected validation error for user id, got %v", err)
	}
	if _, err := gen.GenerateUser(ctx, 1, "too short"); !apperrors.IsValidation(err) {
		t.Fatalf("expected validation error for mnemonic, got %v", err)
	}
	if _, err := gen.GenerateSubUser(ctx, 1, models.Address{}, testMnemonic, "x"); !apperrors.IsValidation(err) {
		t.Fatalf("expected validation error for parent, got %v", err)
	}
	if len(node.Transactions("")) != 0 {
		t.Fatal("validation failures must not reach the network")
	}
}

func TestStateString(t *testing.T) {
	if addresses.StateMasterBroadcast.String() != "master_broadcast" || addresses.State(99).String() != "unknown" {
		t.Fatal("unexpected state names")
	}
}
