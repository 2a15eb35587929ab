package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"transferchain/go-sdk/internal/config"
	"transferchain/go-sdk/internal/identity"
	"transferchain/go-sdk/internal/platform/privacylog"
	"transferchain/go-sdk/pkg/transferchain"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"
)

type rootFlags struct {
	configPath  string
	metricsAddr string
	logLevel    string
}

func newRootCommand() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:           "tcsdk",
		Short:         "TransferChain account, transfer and storage client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "path to tcsdk.yaml (optional)")
	root.PersistentFlags().StringVar(&flags.metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address while the command runs")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "info", "debug | info | warn | error")

	root.AddCommand(
		newVersionCommand(),
		newMnemonicCommand(),
		newUserCommand(flags),
		newTransferCommand(flags),
		newStorageCommand(flags),
	)
	return root
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "tcsdk version=%s commit=%s build_date=%s\n", version, commit, buildDate)
		},
	}
}

func newMnemonicCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "mnemonic",
		Short: "Generate a new 24-word account mnemonic",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := identity.CreateMnemonic()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), m)
			return nil
		},
	}
}

// withClient opens a client for the duration of fn and, when requested,
// exposes its metrics meanwhile.
func withClient(cmd *cobra.Command, flags *rootFlags, fn func(ctx context.Context, c *transferchain.Client) error) error {
	cfg, err := config.LoadFromPath(flags.configPath)
	if err != nil {
		return err
	}
	logger, err := newLogger(cmd.ErrOrStderr(), flags.logLevel)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	client, err := transferchain.New(ctx, cfg, transferchain.Options{Logger: logger})
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	if flags.metricsAddr != "" {
		stop, err := serveMetrics(flags.metricsAddr, client.MetricsHandler(), logger)
		if err != nil {
			return err
		}
		defer stop()
	}
	return fn(ctx, client)
}

// failureLogKeys names the flags reported with a failed command and the log
// key each one is reported under.
var failureLogKeys = []struct{ flag, key string }{
	{"user", "user_id"},
	{"from", "sender_address"},
	{"to", "recipient_address"},
	{"uuid", "uuid"},
	{"tx-id", "tx_id"},
	{"record", "record"},
	{"out", "destination"},
}

// failureArgs describes a failed command as log args. User ids and
// addresses given on the command line are fingerprinted.
func failureArgs(cmd *cobra.Command, err error) []any {
	var args []any
	if cmd != nil {
		args = append(args, "command", cmd.CommandPath())
		for _, k := range failureLogKeys {
			if f := cmd.Flags().Lookup(k.flag); f != nil && f.Changed {
				args = append(args, k.key, f.Value.String())
			}
		}
	}
	args = append(args, "error", err.Error())
	return privacylog.SanitizeArgs(args...)
}

func newLogger(w io.Writer, level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})), nil
}

func serveMetrics(addr string, handler http.Handler, logger *slog.Logger) (func(), error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}
	router := mux.NewRouter()
	router.Handle("/metrics", handler).Methods(http.MethodGet)
	srv := &http.Server{Handler: router, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server stopped", "component", "cli", "operation", "serve_metrics", "error", err.Error())
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func readJSONFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}
