// Package blockchain talks to the read node: transaction broadcast and
// transaction search.
package blockchain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"transferchain/go-sdk/internal/apperrors"
	"transferchain/go-sdk/internal/observability"
	"transferchain/go-sdk/internal/platform/ratelimiter"
	"transferchain/go-sdk/pkg/models"

	"github.com/cenkalti/backoff/v4"
)

const (
	BroadcastPath = "/v1/broadcast"
	TxSearchPath  = "/v1/tx_search/p"

	OrderASC  = "ASC"
	OrderDESC = "DESC"

	defaultSearchRetries = 3
	maxErrorBody         = 4096
)

// Node is the read/write surface the SDK needs from the blockchain.
type Node interface {
	Broadcast(ctx context.Context, tx models.Transaction) (BroadcastResult, error)
	TxSearch(ctx context.Context, query SearchQuery) (SearchResult, error)
}

type BroadcastResult struct {
	Success      bool            `json:"is_success"`
	ErrorMessage string          `json:"error_message,omitempty"`
	Result       json.RawMessage `json:"result,omitempty"`
}

type SearchQuery struct {
	RecipientAddrs []string      `json:"recipient_addrs"`
	Height         int64         `json:"height"`
	HeightOperator string        `json:"height_operator"`
	Hashes         []string      `json:"hashes,omitempty"`
	Type           models.TxType `json:"typ"`
	Limit          int           `json:"limit"`
	Offset         int           `json:"offset"`
	OrderBy        string        `json:"order_by"`
}

// RecipientQuery is the search restore uses: everything of one type
// addressed to address, oldest first.
func RecipientQuery(address string, txType models.TxType, limit, offset int) SearchQuery {
	return SearchQuery{
		RecipientAddrs: []string{address},
		Height:         0,
		HeightOperator: ">=",
		Type:           txType,
		Limit:          limit,
		Offset:         offset,
		OrderBy:        OrderASC,
	}
}

type SearchResult struct {
	Txs        []models.TxRecord `json:"txs"`
	TotalCount int               `json:"total_count"`
}

type searchResponse struct {
	Success      bool         `json:"is_success"`
	ErrorMessage string       `json:"error_message,omitempty"`
	Result       SearchResult `json:"result"`
}

type Options struct {
	HTTPClient *http.Client
	// Limiter throttles broadcasts per sender address.
	Limiter    *ratelimiter.MapLimiter
	Metrics    *observability.Metrics
	Logger     *slog.Logger
	MaxRetries uint64
}

type Client struct {
	baseURL    string
	http       *http.Client
	limiter    *ratelimiter.MapLimiter
	metrics    *observability.Metrics
	logger     *slog.Logger
	maxRetries uint64
}

var _ Node = (*Client)(nil)

func New(baseURL string, opts Options) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if _, err := url.ParseRequestURI(baseURL); err != nil || baseURL == "" {
		return nil, apperrors.Validation("invalid read node address %q", baseURL)
	}
	c := &Client{
		baseURL:    baseURL,
		http:       opts.HTTPClient,
		limiter:    opts.Limiter,
		metrics:    opts.Metrics,
		logger:     opts.Logger,
		maxRetries: opts.MaxRetries,
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: 30 * time.Second}
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.maxRetries == 0 {
		c.maxRetries = defaultSearchRetries
	}
	return c, nil
}

// Broadcast publishes tx. A node that answers but rejects the transaction
// yields ErrPublication; an unreachable node yields ErrTransport.
func (c *Client) Broadcast(ctx context.Context, tx models.Transaction) (result BroadcastResult, err error) {
	defer func() { c.metrics.ObserveBroadcast(string(tx.TxType), err) }()

	if !c.limiter.Allow(tx.SenderAddress, time.Now()) {
		c.logger.Debug("broadcast throttled",
			"component", "blockchain",
			"operation", "broadcast",
			"sender_address", tx.SenderAddress,
			"tracked_senders", c.limiter.Len(),
		)
		if err := c.limiter.Wait(ctx, tx.SenderAddress); err != nil {
			return BroadcastResult{}, apperrors.Transport("broadcast", err)
		}
	}
	status, err := c.postJSON(ctx, BroadcastPath, tx, &result)
	if err != nil {
		return BroadcastResult{}, apperrors.Transport("broadcast", err)
	}
	if status >= 300 || !result.Success {
		msg := strings.TrimSpace(result.ErrorMessage)
		if msg == "" {
			msg = fmt.Sprintf("read node status %d", status)
		}
		c.logger.Warn("broadcast rejected",
			"component", "blockchain",
			"operation", "broadcast",
			"tx_type", string(tx.TxType),
			"sender_address", tx.SenderAddress,
			"error", msg,
		)
		return result, fmt.Errorf("%w: %s", apperrors.ErrPublication, msg)
	}
	return result, nil
}

// TxSearch queries the read node. Transport failures and 5xx answers are
// retried with exponential backoff; the call is idempotent.
func (c *Client) TxSearch(ctx context.Context, query SearchQuery) (result SearchResult, err error) {
	defer func() { c.metrics.ObserveTxSearch(string(query.Type), err) }()

	op := func() error {
		var resp searchResponse
		status, err := c.postJSON(ctx, TxSearchPath, query, &resp)
		if err != nil {
			return err
		}
		if status >= 500 {
			return fmt.Errorf("read node status %d", status)
		}
		if status >= 300 || !resp.Success {
			msg := strings.TrimSpace(resp.ErrorMessage)
			if msg == "" {
				msg = fmt.Sprintf("read node status %d", status)
			}
			return backoff.Permanent(errors.New(msg))
		}
		result = resp.Result
		return nil
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.maxRetries), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return SearchResult{}, apperrors.Transport("tx_search", err)
	}
	return result, nil
}

func (c *Client) postJSON(ctx context.Context, path string, body, out any) (status int, retErr error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, backoff.Permanent(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return 0, backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil && retErr == nil {
			retErr = closeErr
		}
	}()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return resp.StatusCode, err
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return resp.StatusCode, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		if resp.StatusCode >= 300 {
			return resp.StatusCode, nil
		}
		if len(raw) > maxErrorBody {
			raw = raw[:maxErrorBody]
		}
		return resp.StatusCode, backoff.Permanent(fmt.Errorf("decode %s response: %w (%s)", path, err, raw))
	}
	return resp.StatusCode, nil
}
