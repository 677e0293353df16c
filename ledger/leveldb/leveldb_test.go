package leveldb

import (
	"context"
	"testing"

	"github.com/defistate/defistate-amm-go/engine"
	"github.com/defistate/defistate-amm-go/ledger"
	"github.com/defistate/defistate-amm-go/ledger/ledgertest"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/syndtr/goleveldb/leveldb/util"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func TestLedger(t *testing.T) {
	ledgertest.Run(t, func(t *testing.T) ledger.Store {
		return newTestLedger(t)
	})
}

func TestReopenKeepsState(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	authority := ledgertest.Bob
	cfg := ledgertest.TestConfig(3)
	cfg.Authority = &authority

	l, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, l.CreatePool(ctx, cfg))
	require.NoError(t, l.Fund(ctx, ledgertest.Alice, ledgertest.MintX, 500))
	require.NoError(t, l.Fund(ctx, ledgertest.Alice, ledgertest.MintY, 500))
	require.NoError(t, l.Update(ctx, cfg.ID(), func(tx ledger.Tx) error {
		if err := tx.Debit(ledgertest.Alice, ledgertest.MintX, 200); err != nil {
			return err
		}
		if err := tx.Debit(ledgertest.Alice, ledgertest.MintY, 300); err != nil {
			return err
		}
		return tx.MintShares(ledgertest.Alice, 200)
	}))
	require.NoError(t, l.Close())

	l, err = Open(dir)
	require.NoError(t, err)
	defer l.Close()

	ids, err := l.Pools(ctx)
	require.NoError(t, err)
	assert.Equal(t, []engine.PoolID{cfg.ID()}, ids)

	require.NoError(t, l.View(ctx, cfg.ID(), func(tx ledger.Tx) error {
		assert.Equal(t, cfg, tx.Config())
		rs, err := tx.ReadReserves()
		assert.Equal(t, engine.ReserveState{ReserveX: 200, ReserveY: 300, LPSupply: 200}, rs)
		return err
	}))

	balance, err := l.Balance(ctx, ledgertest.Alice, ledgertest.MintY)
	require.NoError(t, err)
	assert.Equal(t, uint64(200), balance)
	held, err := l.Shares(ctx, cfg.ID(), ledgertest.Alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(200), held)
}

func TestZeroBalancesAreDeleted(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	cfg := ledgertest.TestConfig(1)
	require.NoError(t, l.CreatePool(ctx, cfg))
	require.NoError(t, l.Fund(ctx, ledgertest.Alice, ledgertest.MintX, 10))

	require.NoError(t, l.Update(ctx, cfg.ID(), func(tx ledger.Tx) error {
		return tx.Debit(ledgertest.Alice, ledgertest.MintX, 10)
	}))

	it := l.db.NewIterator(util.BytesPrefix(balancePrefix), nil)
	defer it.Release()
	assert.False(t, it.Next())
}

func TestKeysDoNotCollide(t *testing.T) {
	pool := engine.DerivePoolID(ledgertest.MintX, ledgertest.MintY, 1)
	account := common.HexToAddress("0x01")

	assert.Len(t, poolKey(pool), 2+32)
	assert.Len(t, balanceKey(account, ledgertest.MintX), 2+40)
	assert.Len(t, shareKey(pool, account), 2+52)
	assert.NotEqual(t, balanceKey(account, ledgertest.MintX), balanceKey(ledgertest.MintX, account))
}
