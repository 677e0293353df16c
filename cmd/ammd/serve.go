package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/defistate/defistate-amm-go/amm"
	"github.com/defistate/defistate-amm-go/cmd/ammd/config"
	"github.com/defistate/defistate-amm-go/jsonrpc/server"
	"github.com/defistate/defistate-amm-go/ledger"
	"github.com/defistate/defistate-amm-go/ledger/leveldb"
	"github.com/defistate/defistate-amm-go/ledger/memory"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd() *cobra.Command {
	var (
		configPath string
		faucet     bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the pool JSON-RPC server",
		Long: `Run the pool JSON-RPC server.

Configuration is read from a YAML file; any field it leaves out keeps its default.

The endpoint is unauthenticated. Account and caller arguments, including the
authority passed to lock and unlock, are taken on trust from the client, so
bind listen_addr to a trusted network only. Websocket upgrades from browsers
are limited to ws_origins, which defaults to localhost only.

Example:
  $ ammd serve --config config.yaml
  $ ammd serve --faucet`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			if configPath != "" {
				loaded, err := config.LoadConfig(configPath)
				if err != nil {
					return fmt.Errorf("load configuration: %w", err)
				}
				cfg = loaded
			}
			if cmd.Flags().Changed("faucet") {
				cfg.Faucet = faucet
			}

			logger, err := newLogger(cfg.Log, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, logger, prometheus.DefaultRegisterer)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "Path to the configuration file.")
	cmd.Flags().BoolVar(&faucet, "faucet", false, "Enable amm_fund (test networks only).")
	return cmd
}

func newLogger(cfg config.LogConfig, w io.Writer) (*slog.Logger, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == config.LogFormatText {
		return slog.New(slog.NewTextHandler(w, opts)), nil
	}
	return slog.New(slog.NewJSONHandler(w, opts)), nil
}

func openLedger(cfg config.LedgerConfig) (ledger.Store, func() error, error) {
	switch cfg.Backend {
	case config.LedgerLevelDB:
		l, err := leveldb.Open(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return l, l.Close, nil
	case config.LedgerMemory:
		return memory.New(), func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unknown ledger backend %q", cfg.Backend)
	}
}

// rpcHandler serves websocket upgrades and plain HTTP JSON-RPC on one port.
func rpcHandler(httpHandler, wsHandler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
			wsHandler.ServeHTTP(w, r)
			return
		}
		httpHandler.ServeHTTP(w, r)
	})
}

func serve(ctx context.Context, cfg *config.ServerConfig, logger *slog.Logger, reg prometheus.Registerer) error {
	store, closeStore, err := openLedger(cfg.Ledger)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Error("failed to close ledger", "error", err)
		}
	}()

	coord, err := amm.New(ctx, &amm.CoordinatorConfig{
		Ledger:   store,
		Registry: reg,
		Logger:   logger.With("component", "coordinator"),
	})
	if err != nil {
		return err
	}

	serverCfg := &server.Config{
		Backend:  coord,
		Balances: store,
		Logger:   logger.With("component", "jsonrpc-server"),
	}
	if cfg.Faucet {
		serverCfg.Faucet = store
	}
	rpcServer, err := server.New(serverCfg)
	if err != nil {
		return err
	}
	defer rpcServer.Stop()

	servers := []*http.Server{{
		Addr:    cfg.ListenAddr,
		Handler: rpcHandler(rpcServer, rpcServer.WebsocketHandler(cfg.WSOrigins)),
	}}
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		servers = append(servers, &http.Server{Addr: cfg.MetricsAddr, Handler: mux})
	}

	errCh := make(chan error, len(servers))
	for _, s := range servers {
		go func(s *http.Server) {
			logger.Info("listening", "addr", s.Addr)
			if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("serve %s: %w", s.Addr, err)
			}
		}(s)
	}

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err = <-errCh:
		logger.Error("server failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for _, s := range servers {
		_ = s.Shutdown(shutdownCtx)
	}
	return err
}
