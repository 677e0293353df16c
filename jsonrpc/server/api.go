package server

import (
	"context"

	"github.com/defistate/defistate-amm-go/engine"
	"github.com/defistate/defistate-amm-go/jsonrpc"
	"github.com/defistate/defistate-amm-go/ledger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// API is the amm_* method set.
type API struct {
	backend  Backend
	balances ledger.Reader
	logger   Logger
}

func (api *API) Initialize(ctx context.Context, args jsonrpc.InitializeArgs) (engine.PoolID, error) {
	id, err := api.backend.Initialize(ctx, args.Params())
	return id, jsonrpc.ToRPCError(err)
}

func (api *API) SetLocked(ctx context.Context, pool engine.PoolID, locked bool, caller common.Address) error {
	return jsonrpc.ToRPCError(api.backend.SetLocked(ctx, pool, locked, caller))
}

func (api *API) Deposit(ctx context.Context, args jsonrpc.DepositArgs) (*jsonrpc.LiquidityReceipt, error) {
	res, err := api.backend.Deposit(ctx, args.Pool, args.Account, uint64(args.LPAmount), uint64(args.MaxX), uint64(args.MaxY))
	if err != nil {
		return nil, jsonrpc.ToRPCError(err)
	}
	return &jsonrpc.LiquidityReceipt{
		AmountX:  hexutil.Uint64(res.AmountX),
		AmountY:  hexutil.Uint64(res.AmountY),
		LPAmount: hexutil.Uint64(res.LPAmount),
		Reserves: jsonrpc.NewReserves(res.Reserves),
	}, nil
}

func (api *API) Withdraw(ctx context.Context, args jsonrpc.WithdrawArgs) (*jsonrpc.LiquidityReceipt, error) {
	res, err := api.backend.Withdraw(ctx, args.Pool, args.Account, uint64(args.LPAmount), uint64(args.MinX), uint64(args.MinY))
	if err != nil {
		return nil, jsonrpc.ToRPCError(err)
	}
	return &jsonrpc.LiquidityReceipt{
		AmountX:  hexutil.Uint64(res.AmountX),
		AmountY:  hexutil.Uint64(res.AmountY),
		LPAmount: hexutil.Uint64(res.LPAmount),
		Reserves: jsonrpc.NewReserves(res.Reserves),
	}, nil
}

func (api *API) Swap(ctx context.Context, args jsonrpc.SwapArgs) (*jsonrpc.SwapReceipt, error) {
	res, err := api.backend.Swap(ctx, args.Pool, args.Account, args.IsX, uint64(args.AmountIn), uint64(args.MinOut))
	if err != nil {
		return nil, jsonrpc.ToRPCError(err)
	}
	return &jsonrpc.SwapReceipt{
		IsX:       res.IsX,
		AmountIn:  hexutil.Uint64(res.AmountIn),
		AmountOut: hexutil.Uint64(res.AmountOut),
		Reserves:  jsonrpc.NewReserves(res.Reserves),
	}, nil
}

func (api *API) GetPool(ctx context.Context, id engine.PoolID) (*jsonrpc.Pool, error) {
	p, err := api.backend.Pool(ctx, id)
	if err != nil {
		return nil, jsonrpc.ToRPCError(err)
	}
	view := jsonrpc.NewPool(p)
	return &view, nil
}

func (api *API) ListPools(ctx context.Context) ([]jsonrpc.Pool, error) {
	pools, err := api.backend.Pools(ctx)
	if err != nil {
		return nil, jsonrpc.ToRPCError(err)
	}
	views := make([]jsonrpc.Pool, len(pools))
	for i, p := range pools {
		views[i] = jsonrpc.NewPool(p)
	}
	return views, nil
}

func (api *API) PoolsForPair(a, b common.Address) []engine.PoolID {
	ids := api.backend.PoolsForPair(a, b)
	if ids == nil {
		return []engine.PoolID{}
	}
	return ids
}

func (api *API) QuoteDeposit(ctx context.Context, pool engine.PoolID, lpAmount, maxX, maxY hexutil.Uint64) (*jsonrpc.Amounts, error) {
	amounts, err := api.backend.QuoteDeposit(ctx, pool, uint64(lpAmount), uint64(maxX), uint64(maxY))
	if err != nil {
		return nil, jsonrpc.ToRPCError(err)
	}
	out := jsonrpc.NewAmounts(amounts)
	return &out, nil
}

func (api *API) QuoteWithdraw(ctx context.Context, pool engine.PoolID, lpAmount hexutil.Uint64) (*jsonrpc.Amounts, error) {
	amounts, err := api.backend.QuoteWithdraw(ctx, pool, uint64(lpAmount))
	if err != nil {
		return nil, jsonrpc.ToRPCError(err)
	}
	out := jsonrpc.NewAmounts(amounts)
	return &out, nil
}

func (api *API) QuoteSwap(ctx context.Context, pool engine.PoolID, isX bool, amountIn hexutil.Uint64) (hexutil.Uint64, error) {
	out, err := api.backend.QuoteSwap(ctx, pool, isX, uint64(amountIn))
	return hexutil.Uint64(out), jsonrpc.ToRPCError(err)
}

func (api *API) Balance(ctx context.Context, account, asset common.Address) (hexutil.Uint64, error) {
	b, err := api.balances.Balance(ctx, account, asset)
	return hexutil.Uint64(b), err
}

func (api *API) Shares(ctx context.Context, pool engine.PoolID, account common.Address) (hexutil.Uint64, error) {
	s, err := api.balances.Shares(ctx, pool, account)
	return hexutil.Uint64(s), err
}

// PoolEvents streams committed pool operations, optionally for a single pool.
func (api *API) PoolEvents(ctx context.Context, pool *engine.PoolID) (*rpc.Subscription, error) {
	notifier, supported := rpc.NotifierFromContext(ctx)
	if !supported {
		return nil, rpc.ErrNotificationsUnsupported
	}

	rpcSub := notifier.CreateSubscription()
	events := make(chan engine.PoolEvent, eventBuffer)
	sub := api.backend.SubscribeEvents(events)

	go func() {
		defer sub.Unsubscribe()
		for {
			select {
			case ev := <-events:
				if pool != nil && ev.Pool != *pool {
					continue
				}
				if err := notifier.Notify(rpcSub.ID, jsonrpc.NewPoolEvent(ev)); err != nil {
					api.logger.Debug("pool event notification failed", "subscription", rpcSub.ID, "error", err)
					return
				}
			case <-rpcSub.Err():
				return
			case err := <-sub.Err():
				if err != nil {
					api.logger.Warn("pool event feed closed", "error", err)
				}
				return
			}
		}
	}()
	return rpcSub, nil
}

// FaucetAPI adds amm_fund. It is only registered when a faucet is configured.
type FaucetAPI struct {
	faucet ledger.Funder
	logger Logger
}

func (f *FaucetAPI) Fund(ctx context.Context, account, asset common.Address, amount hexutil.Uint64) error {
	if err := f.faucet.Fund(ctx, account, asset, uint64(amount)); err != nil {
		return err
	}
	f.logger.Debug("faucet funded account", "account", account, "asset", asset, "amount", uint64(amount))
	return nil
}
