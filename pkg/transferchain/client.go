// Package transferchain is the public entry point of the SDK. A Client owns
// one transport connection, one read node client and one local user store,
// and exposes the account, transfer and storage operations on top of them.
package transferchain

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"transferchain/go-sdk/internal/addresses"
	"transferchain/go-sdk/internal/apperrors"
	"transferchain/go-sdk/internal/blockchain"
	"transferchain/go-sdk/internal/cloudstorage"
	"transferchain/go-sdk/internal/config"
	"transferchain/go-sdk/internal/observability"
	"transferchain/go-sdk/internal/platform/privacylog"
	"transferchain/go-sdk/internal/platform/ratelimiter"
	"transferchain/go-sdk/internal/restore"
	"transferchain/go-sdk/internal/slotio"
	"transferchain/go-sdk/internal/storage"
	"transferchain/go-sdk/internal/transfer"
	"transferchain/go-sdk/internal/transport"
	"transferchain/go-sdk/internal/wallet"
	"transferchain/go-sdk/pkg/models"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
)

const limiterIdleTTL = 10 * time.Minute

// Options carries optional collaborators. Zero values are replaced with the
// production defaults built from Config.
type Options struct {
	Logger     *slog.Logger
	Metrics    *observability.Metrics
	HTTPClient *http.Client
	// Transport replaces the dialed gRPC client. The Client does not close
	// an injected transport.
	Transport transport.Service
	Now       func() time.Time
}

type Client struct {
	cfg     config.Config
	logger  *slog.Logger
	metrics *observability.Metrics

	node      *blockchain.Client
	wallet    *wallet.Client
	rpc       transport.Service
	rpcCloser func() error
	store     *storage.UserStore

	generator *addresses.Generator
	restorer  *restore.Restorer
	transfers *transfer.Service
	storage   *cloudstorage.Service

	mu    sync.RWMutex
	users map[string]models.User
}

// New validates cfg, resolves the wallet and opens every collaborator.
// The returned Client must be closed.
func New(ctx context.Context, cfg config.Config, opts Options) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.Mnemonics) == "" {
		return nil, apperrors.Validation("config error: mnemonics are required")
	}
	opts = ensureOptions(cfg, opts)

	c := &Client{
		cfg:     cfg,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		users:   make(map[string]models.User),
	}

	var err error
	c.wallet, err = wallet.New(cfg.WalletBaseURL, cfg.APIToken, cfg.APISecret, opts.HTTPClient)
	if err != nil {
		return nil, err
	}
	if c.cfg.WalletID, c.cfg.WalletUUID, err = c.resolveWallet(ctx); err != nil {
		return nil, err
	}

	c.node, err = blockchain.New(cfg.ReadNodeAddress, blockchain.Options{
		HTTPClient: opts.HTTPClient,
		Limiter:    ratelimiter.New(cfg.BroadcastRPS, cfg.BroadcastBurst, limiterIdleTTL),
		Metrics:    c.metrics,
		Logger:     c.logger,
	})
	if err != nil {
		return nil, err
	}

	if err := c.openTransport(opts.Transport); err != nil {
		return nil, err
	}

	dbPath, err := cfg.AbsDBPath()
	if err != nil {
		_ = c.closeTransport()
		return nil, fmt.Errorf("resolve db path: %w", err)
	}
	if c.store, err = storage.OpenUserStore(dbPath, cfg.Mnemonics); err != nil {
		_ = c.closeTransport()
		return nil, err
	}

	pipeline := slotio.New(c.rpc, slotio.Account{UserID: cfg.UserID, WalletID: c.cfg.WalletID}, slotio.Options{
		Metrics:            c.metrics,
		Logger:             c.logger,
		TempDir:            cfg.TempDir,
		MaxParallelDeletes: cfg.MaxParallelDeletes,
	})
	c.generator = addresses.NewGenerator(c.node, addresses.Options{Metrics: c.metrics, Logger: c.logger})
	c.restorer = restore.New(c.node, restore.Options{Metrics: c.metrics, Logger: c.logger})
	c.transfers = transfer.New(c.rpc, pipeline, c.node, transfer.Options{
		Metrics:            c.metrics,
		Logger:             c.logger,
		MaxParallelUploads: cfg.MaxParallelUploads,
		Now:                opts.Now,
	})
	c.storage = cloudstorage.New(c.rpc, pipeline, c.node, cloudstorage.Options{
		Metrics:            c.metrics,
		Logger:             c.logger,
		MaxParallelUploads: cfg.MaxParallelUploads,
		Now:                opts.Now,
	})

	c.logger.Info("client ready",
		"component", "client",
		"operation", "new",
		"user_id", cfg.UserID,
		"wallet_id", c.cfg.WalletID,
	)
	return c, nil
}

func ensureOptions(cfg config.Config, opts Options) Options {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	opts.Logger = slog.New(privacylog.WrapHandler(opts.Logger.Handler()))
	if opts.Metrics == nil {
		opts.Metrics = observability.NewMetrics()
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: cfg.HTTPTimeout}
	}
	return opts
}

// resolveWallet returns the wallet id and uuid the account operates with.
// A configured id is used as is; a configured uuid is looked up; otherwise
// a new wallet is registered under a fresh uuid.
func (c *Client) resolveWallet(ctx context.Context) (int64, string, error) {
	if c.cfg.WalletID > 0 {
		return c.cfg.WalletID, c.cfg.WalletUUID, nil
	}
	if c.cfg.WalletUUID != "" {
		info, err := c.wallet.GetWalletInfo(ctx, c.cfg.WalletUUID)
		if err != nil {
			return 0, "", fmt.Errorf("wallet info: %w", err)
		}
		if info.ID <= 0 {
			return 0, "", config.ErrNoWallet
		}
		return info.ID, c.cfg.WalletUUID, nil
	}

	walletUUID := uuid.NewString()
	res, err := c.wallet.CreateWallet(ctx, c.cfg.UserID, walletUUID)
	if err != nil {
		return 0, "", fmt.Errorf("create wallet: %w", err)
	}
	if !res.Success || res.WalletID <= 0 {
		return 0, "", fmt.Errorf("%w: %s", config.ErrNoWallet, res.ErrorMessage)
	}
	c.logger.Info("wallet created", "component", "client", "operation", "create_wallet", "wallet_id", res.WalletID)
	return res.WalletID, walletUUID, nil
}

func (c *Client) openTransport(injected transport.Service) error {
	if injected != nil {
		c.rpc = injected
		return nil
	}
	target, err := config.RPCTarget(c.cfg.RPCAddress)
	if err != nil {
		return err
	}
	client, err := transport.Dial(transport.DialConfig{
		Target:   target,
		Insecure: c.cfg.RPCInsecure,
		CertFile: c.cfg.RPCCertFile,
	}, transport.Credentials{
		UserID:    c.cfg.UserID,
		APIToken:  c.cfg.APIToken,
		APISecret: c.cfg.APISecret,
	}, transport.Options{Metrics: c.metrics, Logger: c.logger})
	if err != nil {
		return err
	}
	c.rpc = client
	c.rpcCloser = client.Close
	return nil
}

func (c *Client) closeTransport() error {
	if c.rpcCloser == nil {
		return nil
	}
	return c.rpcCloser()
}

// Close releases the transport connection and the user store.
func (c *Client) Close() error {
	return multierr.Combine(c.closeTransport(), c.store.Close())
}

// WalletID is the wallet every upload is billed to.
func (c *Client) WalletID() int64 { return c.cfg.WalletID }

// WalletUUID is the uuid of the resolved wallet. It is empty when the
// configuration carried a wallet id only.
func (c *Client) WalletUUID() string { return c.cfg.WalletUUID }

// Metrics exposes the client's private metric registry.
func (c *Client) Metrics() *prometheus.Registry { return c.metrics.Registry() }

// MetricsHandler serves the client's metrics in the prometheus text format.
func (c *Client) MetricsHandler() http.Handler { return c.metrics.Handler() }
