// Package wallet resolves the wallet that pays for transport operations.
package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"transferchain/go-sdk/internal/apperrors"
)

const (
	CreateWalletPath = "/v1/wallet"
	// WalletInfoPath is formatted with the wallet uuid.
	WalletInfoPath = "/v1/wallet/%s"
)

type CreateWalletResult struct {
	WalletID     int64
	Success      bool
	ErrorMessage string
}

type Package struct {
	ID    int64  `json:"id"`
	Code  string `json:"code"`
	Title string `json:"title"`
}

type Company struct {
	ID    int64  `json:"id"`
	Code  string `json:"code"`
	Title string `json:"title"`
}

type User struct {
	ID          int64
	UUID        string
	Type        string
	Username    string
	FullName    string
	Email       string
	Mobile      string
	RoleCode    string
	RoleTitle   string
	IsActive    bool
	IsSuspended bool
	Package     Package
	Company     Company
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Info struct {
	ID        int64
	User      User
	CreatedAt time.Time
	UpdatedAt time.Time
}

// wire shapes of the wallet API
type envelope struct {
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

type walletData struct {
	WalletID  int64     `json:"wallet_id"`
	User      *userData `json:"user"`
	CreatedAt string    `json:"zlins_dttm"`
	UpdatedAt string    `json:"zlupd_dttm"`
}

type userData struct {
	ID           int64  `json:"id"`
	UUID         string `json:"uuid"`
	Type         string `json:"typ"`
	Username     string `json:"username"`
	FullName     string `json:"full_name"`
	Email        string `json:"email"`
	Mobile       string `json:"mobile"`
	RoleCode     string `json:"role_code"`
	RoleTitle    string `json:"role_title"`
	IsActive     bool   `json:"is_active"`
	IsSuspended  bool   `json:"is_suspended"`
	PackageID    int64  `json:"mmitem_id"`
	PackageCode  string `json:"mmitem_code"`
	PackageTitle string `json:"mmitem_title"`
	CompanyID    int64  `json:"ficomp_id"`
	CompanyCode  string `json:"ficomp_code"`
	CompanyTitle string `json:"ficomp_title"`
	CreatedAt    string `json:"zlins_dttm"`
	UpdatedAt    string `json:"zlupd_dttm"`
}

type Client struct {
	baseURL   string
	apiToken  string
	apiSecret string
	http      *http.Client
}

func New(baseURL, apiToken, apiSecret string, httpClient *http.Client) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if _, err := url.ParseRequestURI(baseURL); err != nil || baseURL == "" {
		return nil, apperrors.Validation("invalid wallet base url %q", baseURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{baseURL: baseURL, apiToken: apiToken, apiSecret: apiSecret, http: httpClient}, nil
}

// CreateWallet registers walletUUID for the account. A rejection by the
// service is reported in the result, not as an error.
func (c *Client) CreateWallet(ctx context.Context, userID int64, walletUUID string) (CreateWalletResult, error) {
	if strings.TrimSpace(walletUUID) == "" {
		return CreateWalletResult{}, apperrors.Validation("wallet uuid is required")
	}
	body, err := json.Marshal(map[string]string{"uuid": walletUUID})
	if err != nil {
		return CreateWalletResult{}, err
	}
	status, env, err := c.do(ctx, http.MethodPost, CreateWalletPath, body)
	if err != nil {
		return CreateWalletResult{}, apperrors.Transport("create_wallet", err)
	}
	res := CreateWalletResult{Success: status < 300, ErrorMessage: env.Message}
	var data walletData
	if len(env.Data) > 0 && json.Unmarshal(env.Data, &data) == nil {
		res.WalletID = data.WalletID
	}
	return res, nil
}

func (c *Client) GetWalletInfo(ctx context.Context, walletUUID string) (Info, error) {
	if strings.TrimSpace(walletUUID) == "" {
		return Info{}, apperrors.Validation("wallet uuid is required")
	}
	path := fmt.Sprintf(WalletInfoPath, url.PathEscape(walletUUID)) + "?type=uuid"
	status, env, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return Info{}, apperrors.Transport("get_wallet_info", err)
	}
	if status == http.StatusNotFound {
		return Info{}, fmt.Errorf("wallet %s: %w", walletUUID, apperrors.ErrNotFound)
	}
	if status >= 300 {
		return Info{}, apperrors.Transport("get_wallet_info", fmt.Errorf("status %d: %s", status, env.Message))
	}
	var data walletData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return Info{}, apperrors.Transport("get_wallet_info", fmt.Errorf("decode wallet: %w", err))
	}
	info := Info{
		ID:        data.WalletID,
		CreatedAt: parseTime(data.CreatedAt),
		UpdatedAt: parseTime(data.UpdatedAt),
	}
	if u := data.User; u != nil {
		info.User = User{
			ID:          u.ID,
			UUID:        u.UUID,
			Type:        u.Type,
			Username:    u.Username,
			FullName:    u.FullName,
			Email:       u.Email,
			Mobile:      u.Mobile,
			RoleCode:    u.RoleCode,
			RoleTitle:   u.RoleTitle,
			IsActive:    u.IsActive,
			IsSuspended: u.IsSuspended,
			Package:     Package{ID: u.PackageID, Code: u.PackageCode, Title: u.PackageTitle},
			Company:     Company{ID: u.CompanyID, Code: u.CompanyCode, Title: u.CompanyTitle},
			CreatedAt:   parseTime(u.CreatedAt),
			UpdatedAt:   parseTime(u.UpdatedAt),
		}
	}
	return info, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) (status int, env envelope, retErr error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, envelope{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api_token", c.apiToken)
	req.Header.Set("api_secret", c.apiSecret)
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, envelope{}, err
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil && retErr == nil {
			retErr = closeErr
		}
	}()
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&env); err != nil && err != io.EOF {
		return resp.StatusCode, envelope{}, fmt.Errorf("decode wallet response: %w", err)
	}
	return resp.StatusCode, env, nil
}

// parseTime accepts the service's microsecond timestamps; unparseable
// values become the zero time.
func parseTime(value string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}
	}
	return t
}
