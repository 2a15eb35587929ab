package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"transferchain/go-sdk/internal/apperrors"
	"transferchain/go-sdk/internal/identity"

	"github.com/google/uuid"
	ma "github.com/multiformats/go-multiaddr"
	"gopkg.in/yaml.v3"
)

const (
	DefaultRPCAddress      = "test-file-operation.transferchain.io:50051"
	DefaultReadNodeAddress = "https://test-read-node-01.transferchain.io"
	DefaultWalletBaseURL   = "https://api-test-tcmp.transferchain.io"
	DefaultDBFile          = "tc.db"
)

// Config is the immutable client configuration shared by every component.
type Config struct {
	UserID     int64
	APIToken   string
	APISecret  string
	WalletUUID string
	WalletID   int64
	Mnemonics  string
	DBPath     string

	RPCAddress      string
	RPCInsecure     bool
	RPCCertFile     string
	ReadNodeAddress string
	WalletBaseURL   string

	MaxParallelUploads int
	MaxParallelDeletes int
	BroadcastRPS       float64
	BroadcastBurst     int
	HTTPTimeout        time.Duration
	TempDir            string
}

func Default() Config {
	return Config{
		DBPath:             DefaultDBFile,
		RPCAddress:         DefaultRPCAddress,
		ReadNodeAddress:    DefaultReadNodeAddress,
		WalletBaseURL:      DefaultWalletBaseURL,
		MaxParallelUploads: 8,
		MaxParallelDeletes: 16,
		BroadcastRPS:       20,
		BroadcastBurst:     40,
		HTTPTimeout:        30 * time.Second,
	}
}

type fileConfig struct {
	UserID     int64  `yaml:"userId"`
	APIToken   string `yaml:"apiToken"`
	APISecret  string `yaml:"apiSecret"`
	WalletUUID string `yaml:"walletUuid"`
	WalletID   int64  `yaml:"walletId"`
	Mnemonics  string `yaml:"mnemonics"`
	DBPath     string `yaml:"dbPath"`
	TempDir    string `yaml:"tempDir"`
	Network    struct {
		RPCAddress      string        `yaml:"rpcAddress"`
		RPCInsecure     *bool         `yaml:"rpcInsecure"`
		RPCCertFile     string        `yaml:"rpcCertFile"`
		ReadNodeAddress string        `yaml:"readNodeAddress"`
		WalletBaseURL   string        `yaml:"walletBaseUrl"`
		HTTPTimeout     time.Duration `yaml:"httpTimeout"`
	} `yaml:"network"`
	Limits struct {
		MaxParallelUploads int     `yaml:"maxParallelUploads"`
		MaxParallelDeletes int     `yaml:"maxParallelDeletes"`
		BroadcastRPS       float64 `yaml:"broadcastRps"`
		BroadcastBurst     int     `yaml:"broadcastBurst"`
	} `yaml:"limits"`
}

// LoadFromPath merges the YAML file over Default and applies environment
// overrides. With an empty path the well-known locations are tried and a
// missing file is not an error.
func LoadFromPath(configPath string) (Config, error) {
	cfg := Default()

	candidates := []string{configPath}
	if configPath == "" {
		candidates = []string{"configs/tcsdk.yaml", "tcsdk.yaml"}
	}
	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if err != nil {
			if configPath != "" {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
			continue
		}
		var parsed fileConfig
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
		merge(&cfg, parsed)
		break
	}
	if err := ApplyEnvOverrides(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func merge(dst *Config, src fileConfig) {
	if src.UserID != 0 {
		dst.UserID = src.UserID
	}
	if src.APIToken != "" {
		dst.APIToken = src.APIToken
	}
	if src.APISecret != "" {
		dst.APISecret = src.APISecret
	}
	if src.WalletUUID != "" {
		dst.WalletUUID = src.WalletUUID
	}
	if src.WalletID != 0 {
		dst.WalletID = src.WalletID
	}
	if src.Mnemonics != "" {
		dst.Mnemonics = src.Mnemonics
	}
	if src.DBPath != "" {
		dst.DBPath = src.DBPath
	}
	if src.TempDir != "" {
		dst.TempDir = src.TempDir
	}
	if src.Network.RPCAddress != "" {
		dst.RPCAddress = src.Network.RPCAddress
	}
	if src.Network.RPCInsecure != nil {
		dst.RPCInsecure = *src.Network.RPCInsecure
	}
	if src.Network.RPCCertFile != "" {
		dst.RPCCertFile = src.Network.RPCCertFile
	}
	if src.Network.ReadNodeAddress != "" {
		dst.ReadNodeAddress = src.Network.ReadNodeAddress
	}
	if src.Network.WalletBaseURL != "" {
		dst.WalletBaseURL = src.Network.WalletBaseURL
	}
	if src.Network.HTTPTimeout != 0 {
		dst.HTTPTimeout = src.Network.HTTPTimeout
	}
	if src.Limits.MaxParallelUploads != 0 {
		dst.MaxParallelUploads = src.Limits.MaxParallelUploads
	}
	if src.Limits.MaxParallelDeletes != 0 {
		dst.MaxParallelDeletes = src.Limits.MaxParallelDeletes
	}
	if src.Limits.BroadcastRPS != 0 {
		dst.BroadcastRPS = src.Limits.BroadcastRPS
	}
	if src.Limits.BroadcastBurst != 0 {
		dst.BroadcastBurst = src.Limits.BroadcastBurst
	}
}

// ApplyEnvOverrides reads the TRANSFERCHAIN_* variables.
func ApplyEnvOverrides(cfg *Config) error {
	if raw := env("TRANSFERCHAIN_USER_ID"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return apperrors.Validation("config error: invalid user id %q", raw)
		}
		cfg.UserID = id
	}
	if v := env("TRANSFERCHAIN_API_TOKEN"); v != "" {
		cfg.APIToken = v
	}
	if v := env("TRANSFERCHAIN_API_SECRET"); v != "" {
		cfg.APISecret = v
	}
	if v := env("TRANSFERCHAIN_WALLET_UUID"); v != "" {
		cfg.WalletUUID = v
	}
	if v := env("TRANSFERCHAIN_MNEMONICS"); v != "" {
		cfg.Mnemonics = v
	}
	if v := env("TRANSFERCHAIN_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := env("TRANSFERCHAIN_RPC_ADDRESS"); v != "" {
		cfg.RPCAddress = v
	}
	if v := env("TRANSFERCHAIN_READ_NODE_ADDRESS"); v != "" {
		cfg.ReadNodeAddress = v
	}
	if v := env("TRANSFERCHAIN_WALLET_BASE_URL"); v != "" {
		cfg.WalletBaseURL = v
	}
	return nil
}

func env(name string) string {
	return strings.TrimSpace(os.Getenv(name))
}

// Validate rejects configurations no operation can run with.
func (c Config) Validate() error {
	if c.UserID <= 0 {
		return apperrors.Validation("config error: invalid user id")
	}
	if strings.TrimSpace(c.APIToken) == "" || strings.TrimSpace(c.APISecret) == "" {
		return apperrors.Validation("config error: invalid api token or api secret")
	}
	if c.Mnemonics != "" {
		if err := identity.ValidateWordCount(c.Mnemonics); err != nil {
			return err
		}
	}
	if c.WalletUUID != "" {
		if _, err := uuid.Parse(c.WalletUUID); err != nil {
			return apperrors.Validation("config error: invalid wallet uuid")
		}
	}
	if c.MaxParallelUploads < 0 || c.MaxParallelDeletes < 0 {
		return apperrors.Validation("config error: parallelism must not be negative")
	}
	if _, err := RPCTarget(c.RPCAddress); err != nil {
		return err
	}
	return nil
}

// AbsDBPath resolves DBPath against the working directory.
func (c Config) AbsDBPath() (string, error) {
	path := strings.TrimSpace(c.DBPath)
	if path == "" {
		path = DefaultDBFile
	}
	return filepath.Abs(path)
}

// RPCTarget turns the configured transport address into a gRPC dial target.
// Both host:port and multiaddrs like /dns4/host/tcp/50051 are accepted.
func RPCTarget(address string) (string, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return "", apperrors.Validation("config error: rpc address is required")
	}
	if !strings.HasPrefix(address, "/") {
		if _, _, err := net.SplitHostPort(address); err != nil {
			return "", apperrors.Validation("config error: invalid rpc address %q", address)
		}
		return address, nil
	}

	addr, err := ma.NewMultiaddr(address)
	if err != nil {
		return "", apperrors.Validation("config error: invalid rpc multiaddr: %v", err)
	}
	port, err := addr.ValueForProtocol(ma.P_TCP)
	if err != nil {
		return "", apperrors.Validation("config error: rpc multiaddr has no tcp port")
	}
	for _, code := range []int{ma.P_DNS4, ma.P_DNS6, ma.P_DNS, ma.P_IP4, ma.P_IP6} {
		host, err := addr.ValueForProtocol(code)
		if err == nil && host != "" {
			return net.JoinHostPort(host, port), nil
		}
	}
	return "", apperrors.Validation("config error: rpc multiaddr has no host")
}

// ErrNoWallet is returned when the wallet service yields no usable wallet.
var ErrNoWallet = errors.New("wallet is not configured")
