// Package server exposes a pool coordinator over go-ethereum JSON-RPC, on HTTP
// and websocket transports.
package server

import (
	"context"
	"errors"

	"github.com/defistate/defistate-amm-go/amm"
	"github.com/defistate/defistate-amm-go/engine"
	"github.com/defistate/defistate-amm-go/jsonrpc"
	"github.com/defistate/defistate-amm-go/ledger"
	"github.com/defistate/defistate-amm-go/protocols/constantproduct/calculator"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/rpc"
)

// eventBuffer is the per-subscriber event backlog.
const eventBuffer = 256

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Backend is the coordinator surface served over RPC.
type Backend interface {
	Initialize(ctx context.Context, p amm.InitializeParams) (engine.PoolID, error)
	SetLocked(ctx context.Context, pool engine.PoolID, locked bool, caller common.Address) error
	Deposit(ctx context.Context, pool engine.PoolID, depositor common.Address, lpAmount, maxX, maxY uint64) (amm.DepositResult, error)
	Withdraw(ctx context.Context, pool engine.PoolID, withdrawer common.Address, lpAmount, minX, minY uint64) (amm.WithdrawResult, error)
	Swap(ctx context.Context, pool engine.PoolID, swapper common.Address, isX bool, amountIn, minOut uint64) (amm.SwapResult, error)

	Pool(ctx context.Context, id engine.PoolID) (engine.Pool, error)
	Pools(ctx context.Context) ([]engine.Pool, error)
	PoolsForPair(a, b common.Address) []engine.PoolID
	QuoteDeposit(ctx context.Context, pool engine.PoolID, lpAmount, maxX, maxY uint64) (calculator.Amounts, error)
	QuoteWithdraw(ctx context.Context, pool engine.PoolID, lpAmount uint64) (calculator.Amounts, error)
	QuoteSwap(ctx context.Context, pool engine.PoolID, isX bool, amountIn uint64) (uint64, error)

	SubscribeEvents(ch chan<- engine.PoolEvent) event.Subscription
}

// Config holds the server's dependencies.
type Config struct {
	Backend  Backend
	Balances ledger.Reader
	// Faucet, when set, enables amm_fund.
	Faucet ledger.Funder
	Logger Logger
}

func (c *Config) validate() error {
	if c.Backend == nil {
		return errors.New("config: Backend is required")
	}
	if c.Balances == nil {
		return errors.New("config: Balances is required")
	}
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	return nil
}

// New returns an RPC server with the pool API registered under jsonrpc.Namespace.
// Serve it over HTTP with the server itself and over websockets with
// WebsocketHandler; subscriptions need the latter.
func New(cfg *Config) (*rpc.Server, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	srv := rpc.NewServer()
	api := &API{backend: cfg.Backend, balances: cfg.Balances, logger: cfg.Logger}
	if err := srv.RegisterName(jsonrpc.Namespace, api); err != nil {
		return nil, err
	}
	if cfg.Faucet != nil {
		if err := srv.RegisterName(jsonrpc.Namespace, &FaucetAPI{faucet: cfg.Faucet, logger: cfg.Logger}); err != nil {
			return nil, err
		}
		cfg.Logger.Warn("faucet enabled: amm_fund mints balances out of thin air")
	}
	return srv, nil
}
