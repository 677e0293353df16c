package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/defistate/defistate-amm-go/amm"
	"github.com/defistate/defistate-amm-go/engine"
	"github.com/defistate/defistate-amm-go/jsonrpc"
	"github.com/defistate/defistate-amm-go/ledger/memory"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	mintX = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	mintY = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	alice = common.HexToAddress("0x000000000000000000000000000000000000a11c")
)

func newTestServer(t *testing.T, faucet bool) (*rpc.Client, *memory.Ledger) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.New()
	coord, err := amm.New(context.Background(), &amm.CoordinatorConfig{
		Ledger:   store,
		Registry: prometheus.NewRegistry(),
		Logger:   logger,
	})
	require.NoError(t, err)

	cfg := &Config{Backend: coord, Balances: store, Logger: logger}
	if faucet {
		cfg.Faucet = store
	}
	srv, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(srv.Stop)

	c := rpc.DialInProc(srv)
	t.Cleanup(c.Close)
	return c, store
}

func TestConfigValidation(t *testing.T) {
	_, err := New(&Config{})
	assert.Error(t, err)
}

func TestRawCalls(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestServer(t, true)

	var id engine.PoolID
	require.NoError(t, c.CallContext(ctx, &id, "amm_initialize", map[string]any{
		"seed":   "0x1",
		"mintX":  mintX,
		"mintY":  mintY,
		"feeBps": 30,
	}))
	assert.Equal(t, engine.DerivePoolID(mintX, mintY, 1), id)

	require.NoError(t, c.CallContext(ctx, nil, "amm_fund", alice, mintX, hexutil.Uint64(1000)))
	require.NoError(t, c.CallContext(ctx, nil, "amm_fund", alice, mintY, hexutil.Uint64(1000)))

	var receipt jsonrpc.LiquidityReceipt
	require.NoError(t, c.CallContext(ctx, &receipt, "amm_deposit", jsonrpc.DepositArgs{
		Pool: id, Account: alice, LPAmount: 1000, MaxX: 1000, MaxY: 1000,
	}))
	assert.Equal(t, jsonrpc.Reserves{ReserveX: 1000, ReserveY: 1000, LPSupply: 1000}, receipt.Reserves)

	var out hexutil.Uint64
	require.NoError(t, c.CallContext(ctx, &out, "amm_quoteSwap", id, true, hexutil.Uint64(100)))
	assert.Equal(t, hexutil.Uint64(91), out)

	var pool jsonrpc.Pool
	require.NoError(t, c.CallContext(ctx, &pool, "amm_getPool", id))
	assert.Equal(t, id, pool.ID)
	assert.Equal(t, uint16(30), pool.FeeBps)

	var ids []engine.PoolID
	require.NoError(t, c.CallContext(ctx, &ids, "amm_poolsForPair", mintY, mintX))
	assert.Equal(t, []engine.PoolID{id}, ids)

	// Pool errors carry their registered code.
	err := c.CallContext(ctx, nil, "amm_swap", jsonrpc.SwapArgs{
		Pool: id, Account: alice, IsX: true, AmountIn: 100, MinOut: 1,
	})
	var rpcErr rpc.Error
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, -32009, rpcErr.ErrorCode())

	err = c.CallContext(ctx, nil, "amm_getPool", engine.DerivePoolID(mintX, mintY, 2))
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, -32011, rpcErr.ErrorCode())
}

func TestFaucetDisabled(t *testing.T) {
	c, _ := newTestServer(t, false)
	err := c.CallContext(context.Background(), nil, "amm_fund", alice, mintX, hexutil.Uint64(1))
	require.Error(t, err)

	var rpcErr rpc.Error
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, -32601, rpcErr.ErrorCode())
}

func TestToRPCError(t *testing.T) {
	assert.Nil(t, jsonrpc.ToRPCError(nil))

	plain := errors.New("boom")
	assert.Equal(t, plain, jsonrpc.ToRPCError(plain))

	err := jsonrpc.ToRPCError(amm.ErrSlippageExceeded)
	var rpcErr rpc.Error
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, -32003, rpcErr.ErrorCode())
	assert.ErrorIs(t, err, amm.ErrSlippageExceeded)

	back := jsonrpc.FromRPCError(err)
	assert.ErrorIs(t, back, amm.ErrSlippageExceeded)
}
