// Package client is a typed client for the pool JSON-RPC API. Pool errors
// returned by the server are mapped back onto the amm error values.
package client

import (
	"context"

	"github.com/defistate/defistate-amm-go/amm"
	"github.com/defistate/defistate-amm-go/engine"
	"github.com/defistate/defistate-amm-go/jsonrpc"
	"github.com/defistate/defistate-amm-go/protocols/constantproduct/calculator"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// Client calls a single pool server.
type Client struct {
	c *rpc.Client
}

// Dial connects to a pool server over http(s), ws(s) or an IPC path.
func Dial(ctx context.Context, url string) (*Client, error) {
	c, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, err
	}
	return NewClient(c), nil
}

// NewClient wraps an existing RPC connection.
func NewClient(c *rpc.Client) *Client {
	return &Client{c: c}
}

// Close closes the underlying connection.
func (c *Client) Close() {
	c.c.Close()
}

func (c *Client) call(ctx context.Context, result any, method string, args ...any) error {
	return jsonrpc.FromRPCError(c.c.CallContext(ctx, result, jsonrpc.Namespace+"_"+method, args...))
}

func (c *Client) Initialize(ctx context.Context, p amm.InitializeParams) (engine.PoolID, error) {
	var id engine.PoolID
	err := c.call(ctx, &id, "initialize", jsonrpc.InitializeArgs{
		Seed:       hexutil.Uint64(p.Seed),
		MintX:      p.MintX,
		MintY:      p.MintY,
		Authority:  p.Authority,
		FeeBps:     p.FeeBps,
		LPDecimals: p.LPDecimals,
	})
	return id, err
}

func (c *Client) SetLocked(ctx context.Context, pool engine.PoolID, locked bool, caller common.Address) error {
	return c.call(ctx, nil, "setLocked", pool, locked, caller)
}

func (c *Client) Deposit(ctx context.Context, pool engine.PoolID, depositor common.Address, lpAmount, maxX, maxY uint64) (amm.DepositResult, error) {
	var receipt jsonrpc.LiquidityReceipt
	err := c.call(ctx, &receipt, "deposit", jsonrpc.DepositArgs{
		Pool:     pool,
		Account:  depositor,
		LPAmount: hexutil.Uint64(lpAmount),
		MaxX:     hexutil.Uint64(maxX),
		MaxY:     hexutil.Uint64(maxY),
	})
	if err != nil {
		return amm.DepositResult{}, err
	}
	return amm.DepositResult{
		AmountX:  uint64(receipt.AmountX),
		AmountY:  uint64(receipt.AmountY),
		LPAmount: uint64(receipt.LPAmount),
		Reserves: receipt.Reserves.State(),
	}, nil
}

func (c *Client) Withdraw(ctx context.Context, pool engine.PoolID, withdrawer common.Address, lpAmount, minX, minY uint64) (amm.WithdrawResult, error) {
	var receipt jsonrpc.LiquidityReceipt
	err := c.call(ctx, &receipt, "withdraw", jsonrpc.WithdrawArgs{
		Pool:     pool,
		Account:  withdrawer,
		LPAmount: hexutil.Uint64(lpAmount),
		MinX:     hexutil.Uint64(minX),
		MinY:     hexutil.Uint64(minY),
	})
	if err != nil {
		return amm.WithdrawResult{}, err
	}
	return amm.WithdrawResult{
		AmountX:  uint64(receipt.AmountX),
		AmountY:  uint64(receipt.AmountY),
		LPAmount: uint64(receipt.LPAmount),
		Reserves: receipt.Reserves.State(),
	}, nil
}

func (c *Client) Swap(ctx context.Context, pool engine.PoolID, swapper common.Address, isX bool, amountIn, minOut uint64) (amm.SwapResult, error) {
	var receipt jsonrpc.SwapReceipt
	err := c.call(ctx, &receipt, "swap", jsonrpc.SwapArgs{
		Pool:     pool,
		Account:  swapper,
		IsX:      isX,
		AmountIn: hexutil.Uint64(amountIn),
		MinOut:   hexutil.Uint64(minOut),
	})
	if err != nil {
		return amm.SwapResult{}, err
	}
	return amm.SwapResult{
		IsX:       receipt.IsX,
		AmountIn:  uint64(receipt.AmountIn),
		AmountOut: uint64(receipt.AmountOut),
		Reserves:  receipt.Reserves.State(),
	}, nil
}

func (c *Client) Pool(ctx context.Context, id engine.PoolID) (engine.Pool, error) {
	var p jsonrpc.Pool
	if err := c.call(ctx, &p, "getPool", id); err != nil {
		return engine.Pool{}, err
	}
	return p.Pool(), nil
}

func (c *Client) Pools(ctx context.Context) ([]engine.Pool, error) {
	var views []jsonrpc.Pool
	if err := c.call(ctx, &views, "listPools"); err != nil {
		return nil, err
	}
	pools := make([]engine.Pool, len(views))
	for i, v := range views {
		pools[i] = v.Pool()
	}
	return pools, nil
}

func (c *Client) PoolsForPair(ctx context.Context, a, b common.Address) ([]engine.PoolID, error) {
	var ids []engine.PoolID
	err := c.call(ctx, &ids, "poolsForPair", a, b)
	return ids, err
}

func (c *Client) QuoteDeposit(ctx context.Context, pool engine.PoolID, lpAmount, maxX, maxY uint64) (calculator.Amounts, error) {
	var a jsonrpc.Amounts
	err := c.call(ctx, &a, "quoteDeposit", pool, hexutil.Uint64(lpAmount), hexutil.Uint64(maxX), hexutil.Uint64(maxY))
	return calculator.Amounts{X: uint64(a.X), Y: uint64(a.Y)}, err
}

func (c *Client) QuoteWithdraw(ctx context.Context, pool engine.PoolID, lpAmount uint64) (calculator.Amounts, error) {
	var a jsonrpc.Amounts
	err := c.call(ctx, &a, "quoteWithdraw", pool, hexutil.Uint64(lpAmount))
	return calculator.Amounts{X: uint64(a.X), Y: uint64(a.Y)}, err
}

func (c *Client) QuoteSwap(ctx context.Context, pool engine.PoolID, isX bool, amountIn uint64) (uint64, error) {
	var out hexutil.Uint64
	err := c.call(ctx, &out, "quoteSwap", pool, isX, hexutil.Uint64(amountIn))
	return uint64(out), err
}

func (c *Client) Balance(ctx context.Context, account, asset common.Address) (uint64, error) {
	var b hexutil.Uint64
	err := c.call(ctx, &b, "balance", account, asset)
	return uint64(b), err
}

func (c *Client) Shares(ctx context.Context, pool engine.PoolID, account common.Address) (uint64, error) {
	var s hexutil.Uint64
	err := c.call(ctx, &s, "shares", pool, account)
	return uint64(s), err
}

// Fund tops up an account through the server's faucet.
func (c *Client) Fund(ctx context.Context, account, asset common.Address, amount uint64) error {
	return c.call(ctx, nil, "fund", account, asset, hexutil.Uint64(amount))
}

// SubscribePoolEvents streams pool events into ch. A nil pool subscribes to
// every pool. The connection must support subscriptions (websocket or IPC).
func (c *Client) SubscribePoolEvents(ctx context.Context, pool *engine.PoolID, ch chan<- jsonrpc.PoolEvent) (*rpc.ClientSubscription, error) {
	if pool == nil {
		return c.c.Subscribe(ctx, jsonrpc.Namespace, ch, jsonrpc.PoolEventsSubscription)
	}
	return c.c.Subscribe(ctx, jsonrpc.Namespace, ch, jsonrpc.PoolEventsSubscription, *pool)
}
