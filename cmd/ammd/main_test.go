package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/defistate/defistate-amm-go/amm"
	"github.com/defistate/defistate-amm-go/cmd/ammd/config"
	"github.com/defistate/defistate-amm-go/engine"
	"github.com/defistate/defistate-amm-go/jsonrpc/server"
	"github.com/defistate/defistate-amm-go/ledger/leveldb"
	"github.com/defistate/defistate-amm-go/ledger/memory"
	"github.com/defistate/defistate-amm-go/patcher"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	mintX = "0x00000000000000000000000000000000000000a1"
	mintY = "0x00000000000000000000000000000000000000b2"
	admin = "0x000000000000000000000000000000000000a0a0"
	alice = "0x000000000000000000000000000000000000a11c"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEndpoint(t *testing.T) string {
	t.Helper()
	store := memory.New()
	coord, err := amm.New(context.Background(), &amm.CoordinatorConfig{
		Ledger:   store,
		Registry: prometheus.NewRegistry(),
		Logger:   discardLogger(),
	})
	require.NoError(t, err)
	srv, err := server.New(&server.Config{Backend: coord, Balances: store, Faucet: store, Logger: discardLogger()})
	require.NoError(t, err)
	t.Cleanup(srv.Stop)

	ts := httptest.NewServer(rpcHandler(srv, srv.WebsocketHandler([]string{"*"})))
	t.Cleanup(ts.Close)
	return ts.URL
}

// run executes ammd with args and returns its trimmed standard output.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return strings.TrimSpace(out.String()), err
}

func TestPoolCommands(t *testing.T) {
	url := newTestEndpoint(t)
	pool := func(args ...string) string {
		t.Helper()
		out, err := run(t, append([]string{"pool", "--rpc", url}, args...)...)
		require.NoError(t, err, "ammd pool %v", args)
		return out
	}

	id := pool("init", mintX, mintY, "--seed", "3", "--fee", "30", "--authority", admin)
	parsed, err := engine.ParsePoolID(id)
	require.NoError(t, err)

	pool("fund", alice, mintX, "1000")
	pool("fund", alice, mintY, "2000")

	var dep amm.DepositResult
	require.NoError(t, json.Unmarshal([]byte(pool("deposit", id, alice, "500", "1000", "2000")), &dep))
	assert.Equal(t, engine.ReserveState{ReserveX: 1000, ReserveY: 2000, LPSupply: 500}, dep.Reserves)

	assert.Equal(t, "500", pool("shares", id, alice))
	assert.Equal(t, "0", pool("balance", alice, mintX))

	quoted := pool("quote", "swap", id, "y", "200")
	var sw amm.SwapResult
	pool("fund", alice, mintY, "200")
	require.NoError(t, json.Unmarshal([]byte(pool("swap", id, alice, "y", "200", quoted)), &sw))
	assert.Equal(t, quoted, strconv.FormatUint(sw.AmountOut, 10))

	var wd amm.WithdrawResult
	require.NoError(t, json.Unmarshal([]byte(pool("withdraw", id, alice, "50", "0", "1")), &wd))
	assert.Equal(t, uint64(50), wd.LPAmount)

	pool("lock", id, admin)
	var p engine.Pool
	require.NoError(t, json.Unmarshal([]byte(pool("get", id)), &p))
	assert.Equal(t, parsed, p.ID)
	assert.True(t, p.Config.Locked)
	pool("unlock", id, admin)

	assert.Equal(t, id, pool("pairs", mintY, mintX))

	list := pool("list")
	assert.Contains(t, list, "RESERVE X")
	assert.Contains(t, list, id)
	assert.Contains(t, list, "active")
}

func TestPoolCommandErrors(t *testing.T) {
	url := newTestEndpoint(t)
	unknown := engine.DerivePoolID(common.HexToAddress(mintX), common.HexToAddress(mintY), 99).String()

	tests := []struct {
		name    string
		args    []string
		wantErr error
	}{
		{"bad address", []string{"init", "0x1234", mintY}, nil},
		{"bad pool id", []string{"get", "not-a-pool"}, nil},
		{"bad amount", []string{"fund", alice, mintX, "-5"}, nil},
		{"bad side", []string{"quote", "swap", unknown, "z", "1"}, nil},
		{"wrong arity", []string{"deposit", unknown, alice}, nil},
		{"unknown pool", []string{"get", unknown}, amm.ErrPoolNotFound},
		{"same mints", []string{"init", mintX, mintX}, amm.ErrInvalidMint},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := run(t, append([]string{"pool", "--rpc", url}, tc.args...)...)
			require.Error(t, err)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
			}
		})
	}
}

func TestOpenLedger(t *testing.T) {
	store, closeStore, err := openLedger(config.LedgerConfig{Backend: config.LedgerMemory})
	require.NoError(t, err)
	assert.IsType(t, &memory.Ledger{}, store)
	require.NoError(t, closeStore())

	store, closeStore, err = openLedger(config.LedgerConfig{Backend: config.LedgerLevelDB, Path: filepath.Join(t.TempDir(), "ledger")})
	require.NoError(t, err)
	assert.IsType(t, &leveldb.Ledger{}, store)
	require.NoError(t, closeStore())

	_, _, err = openLedger(config.LedgerConfig{Backend: "postgres"})
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(config.LogConfig{Level: "warn", Format: config.LogFormatJSON}, &buf)
	require.NoError(t, err)
	logger.Info("dropped")
	logger.Warn("kept", "pool", "p1")
	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), `"msg":"kept"`)

	buf.Reset()
	logger, err = newLogger(config.LogConfig{Level: "info", Format: config.LogFormatText}, &buf)
	require.NoError(t, err)
	logger.Info("hello")
	assert.Contains(t, buf.String(), "msg=hello")

	_, err = newLogger(config.LogConfig{Level: "loud"}, &buf)
	assert.Error(t, err)
}

func TestServeStopsOnCancel(t *testing.T) {
	cfg := config.Default()
	cfg.ListenAddr = "127.0.0.1:0"
	cfg.MetricsAddr = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, cfg, discardLogger(), prometheus.NewRegistry()) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not return after cancel")
	}
}

func TestServeHelpWarnsUnauthenticated(t *testing.T) {
	out, err := run(t, "serve", "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "unauthenticated")
	assert.Contains(t, out, "ws_origins")
	assert.Empty(t, config.Default().WSOrigins)
}

func TestServeRejectsBadLedger(t *testing.T) {
	cfg := config.Default()
	cfg.Ledger = config.LedgerConfig{Backend: "postgres"}
	err := serve(context.Background(), cfg, discardLogger(), prometheus.NewRegistry())
	assert.Error(t, err)
}

func TestRedrawSortsPools(t *testing.T) {
	var pools []engine.Pool
	for seed := uint64(0); seed < 4; seed++ {
		cfg := engine.Config{Seed: seed, MintX: common.HexToAddress(mintX), MintY: common.HexToAddress(mintY)}
		pools = append(pools, engine.Pool{ID: cfg.ID(), Config: cfg})
	}
	pools[2].Config.Locked = true

	var buf bytes.Buffer
	redraw(&buf, patcher.NewSnapshot(pools))
	out := buf.String()

	prev := -1
	sorted := append([]engine.Pool(nil), pools...)
	sort.Slice(sorted, func(i, j int) bool { return bytes.Compare(sorted[i].ID[:], sorted[j].ID[:]) < 0 })
	for _, p := range sorted {
		idx := strings.Index(out, p.ID.String())
		require.Greater(t, idx, prev, "pool %s out of order", p.ID)
		prev = idx
	}
	assert.Contains(t, out, "locked")
}
