package client

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/defistate/defistate-amm-go/amm"
	"github.com/defistate/defistate-amm-go/engine"
	"github.com/defistate/defistate-amm-go/jsonrpc"
	"github.com/defistate/defistate-amm-go/jsonrpc/server"
	"github.com/defistate/defistate-amm-go/ledger/memory"
	"github.com/defistate/defistate-amm-go/protocols/constantproduct/calculator"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	mintX     = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	mintY     = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	authority = common.HexToAddress("0x000000000000000000000000000000000000a0a0")
	alice     = common.HexToAddress("0x000000000000000000000000000000000000a11c")
	bob       = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRPCServer(t *testing.T) *rpc.Server {
	t.Helper()
	store := memory.New()
	coord, err := amm.New(context.Background(), &amm.CoordinatorConfig{
		Ledger:   store,
		Registry: prometheus.NewRegistry(),
		Logger:   discardLogger(),
	})
	require.NoError(t, err)

	srv, err := server.New(&server.Config{
		Backend:  coord,
		Balances: store,
		Faucet:   store,
		Logger:   discardLogger(),
	})
	require.NoError(t, err)
	t.Cleanup(srv.Stop)
	return srv
}

func newTestClient(t *testing.T) *Client {
	t.Helper()
	c := NewClient(rpc.DialInProc(newTestRPCServer(t)))
	t.Cleanup(c.Close)
	return c
}

func TestClientRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)

	auth := authority
	id, err := c.Initialize(ctx, amm.InitializeParams{Seed: 7, MintX: mintX, MintY: mintY, FeeBps: 30, Authority: &auth})
	require.NoError(t, err)
	assert.Equal(t, engine.DerivePoolID(mintX, mintY, 7), id)

	require.NoError(t, c.Fund(ctx, alice, mintX, 1000))
	require.NoError(t, c.Fund(ctx, alice, mintY, 2000))
	require.NoError(t, c.Fund(ctx, bob, mintX, 100))

	dep, err := c.Deposit(ctx, id, alice, 500, 1000, 2000)
	require.NoError(t, err)
	assert.Equal(t, amm.DepositResult{
		AmountX: 1000, AmountY: 2000, LPAmount: 500,
		Reserves: engine.ReserveState{ReserveX: 1000, ReserveY: 2000, LPSupply: 500},
	}, dep)

	quote, err := c.QuoteWithdraw(ctx, id, 50)
	require.NoError(t, err)
	assert.Equal(t, calculator.Amounts{X: 100, Y: 200}, quote)

	quote, err = c.QuoteDeposit(ctx, id, 50, 1000, 1000)
	require.NoError(t, err)
	assert.Equal(t, calculator.Amounts{X: 100, Y: 200}, quote)

	wd, err := c.Withdraw(ctx, id, alice, 50, 100, 200)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), wd.AmountX)
	assert.Equal(t, uint64(200), wd.AmountY)

	out, err := c.QuoteSwap(ctx, id, true, 100)
	require.NoError(t, err)
	sw, err := c.Swap(ctx, id, bob, true, 100, out)
	require.NoError(t, err)
	assert.Equal(t, out, sw.AmountOut)

	balance, err := c.Balance(ctx, bob, mintY)
	require.NoError(t, err)
	assert.Equal(t, out, balance)
	shares, err := c.Shares(ctx, id, alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(450), shares)

	require.NoError(t, c.SetLocked(ctx, id, true, authority))
	p, err := c.Pool(ctx, id)
	require.NoError(t, err)
	assert.True(t, p.Config.Locked)
	require.NotNil(t, p.Config.Authority)
	assert.Equal(t, authority, *p.Config.Authority)
	assert.Equal(t, engine.DefaultLPDecimals, p.Config.LPDecimals)
	assert.Equal(t, uint64(4), p.Seq, "deposit, withdraw, swap and lock each commit once")

	pools, err := c.Pools(ctx)
	require.NoError(t, err)
	require.Len(t, pools, 1)
	assert.Equal(t, p, pools[0])

	ids, err := c.PoolsForPair(ctx, mintY, mintX)
	require.NoError(t, err)
	assert.Equal(t, []engine.PoolID{id}, ids)
}

func TestClientMapsErrors(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)

	id, err := c.Initialize(ctx, amm.InitializeParams{Seed: 1, MintX: mintX, MintY: mintY, FeeBps: 30})
	require.NoError(t, err)
	require.NoError(t, c.Fund(ctx, alice, mintX, 1000))
	require.NoError(t, c.Fund(ctx, alice, mintY, 1000))
	_, err = c.Deposit(ctx, id, alice, 1000, 1000, 1000)
	require.NoError(t, err)

	tests := []struct {
		name    string
		call    func() error
		wantErr error
	}{
		{
			name:    "duplicate pool",
			call:    func() error { _, err := c.Initialize(ctx, amm.InitializeParams{Seed: 1, MintX: mintX, MintY: mintY}); return err },
			wantErr: amm.ErrDuplicatePool,
		},
		{
			name:    "invalid fee",
			call:    func() error { _, err := c.Initialize(ctx, amm.InitializeParams{Seed: 2, MintX: mintX, MintY: mintY, FeeBps: 10000}); return err },
			wantErr: amm.ErrInvalidFee,
		},
		{
			name:    "slippage",
			call:    func() error { _, err := c.Swap(ctx, id, bob, true, 100, 92); return err },
			wantErr: amm.ErrSlippageExceeded,
		},
		{
			name:    "insufficient funds",
			call:    func() error { _, err := c.Swap(ctx, id, bob, true, 100, 91); return err },
			wantErr: amm.ErrInsufficientFunds,
		},
		{
			name:    "zero principal",
			call:    func() error { _, err := c.Withdraw(ctx, id, alice, 0, 1, 1); return err },
			wantErr: amm.ErrInvalidAmount,
		},
		{
			name:    "no authority",
			call:    func() error { return c.SetLocked(ctx, id, true, alice) },
			wantErr: amm.ErrUnauthorized,
		},
		{
			name:    "unknown pool",
			call:    func() error { _, err := c.Pool(ctx, engine.DerivePoolID(mintY, mintX, 1)); return err },
			wantErr: amm.ErrPoolNotFound,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, tc.call(), tc.wantErr)
		})
	}
}

func TestSubscribePoolEvents(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)

	first, err := c.Initialize(ctx, amm.InitializeParams{Seed: 1, MintX: mintX, MintY: mintY})
	require.NoError(t, err)
	second, err := c.Initialize(ctx, amm.InitializeParams{Seed: 2, MintX: mintX, MintY: mintY})
	require.NoError(t, err)

	events := make(chan jsonrpc.PoolEvent, 8)
	sub, err := c.SubscribePoolEvents(ctx, &second, events)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	require.NoError(t, c.Fund(ctx, alice, mintX, 100))
	require.NoError(t, c.Fund(ctx, alice, mintY, 100))
	_, err = c.Deposit(ctx, first, alice, 10, 10, 10)
	require.NoError(t, err)
	_, err = c.Deposit(ctx, second, alice, 20, 30, 40)
	require.NoError(t, err)

	select {
	case ev := <-events:
		got := ev.Event()
		assert.Equal(t, second, got.Pool)
		assert.Equal(t, engine.OpDeposit, got.Kind)
		assert.Equal(t, uint64(30), got.AmountX)
		assert.Equal(t, uint64(40), got.AmountY)
		assert.Equal(t, uint64(20), got.LPAmount)
		assert.Equal(t, uint64(1), got.Seq)
	case err := <-sub.Err():
		t.Fatalf("subscription failed: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for pool event")
	}
}

func TestWatcherConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  WatcherConfig
	}{
		{"missing url", WatcherConfig{Logger: discardLogger(), BufferSize: 1}},
		{"zero buffer", WatcherConfig{URL: "ws://localhost", Logger: discardLogger()}},
		{"missing logger", WatcherConfig{URL: "ws://localhost", BufferSize: 1}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewWatcher(context.Background(), tc.cfg)
			assert.Error(t, err)
		})
	}
}

func TestWatcherOverWebsocket(t *testing.T) {
	srv := newTestRPCServer(t)
	ts := httptest.NewServer(srv.WebsocketHandler([]string{"*"}))
	defer ts.Close()
	url := "ws://" + strings.TrimPrefix(ts.URL, "http://")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w, err := NewWatcher(ctx, WatcherConfig{URL: url, Logger: discardLogger(), BufferSize: 8})
	require.NoError(t, err)

	c, err := Dial(ctx, url)
	require.NoError(t, err)
	defer c.Close()

	// The watcher subscribes asynchronously; keep creating pools until one is seen.
	deadline := time.After(5 * time.Second)
	created := make(map[engine.PoolID]bool)
	for seed := uint64(0); ; seed++ {
		id, err := c.Initialize(ctx, amm.InitializeParams{Seed: seed, MintX: mintX, MintY: mintY})
		require.NoError(t, err)
		created[id] = true

		select {
		case ev := <-w.Events():
			assert.Equal(t, engine.OpInitialize, ev.Kind)
			assert.True(t, created[ev.Pool])
		case <-time.After(50 * time.Millisecond):
			continue
		case <-deadline:
			t.Fatal("watcher never delivered an event")
		}
		break
	}

	cancel()
	select {
	case <-w.Err():
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
}
