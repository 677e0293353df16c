// Package ledgertest holds the behavioural suite every ledger.Store backend
// must pass.
package ledgertest

import (
	"context"
	"errors"
	"testing"

	"github.com/defistate/defistate-amm-go/engine"
	"github.com/defistate/defistate-amm-go/ledger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	MintX = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	MintY = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	Alice = common.HexToAddress("0x000000000000000000000000000000000000a11c")
	Bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

var errAbort = errors.New("abort")

// TestConfig returns a pool config over MintX/MintY with the given seed.
func TestConfig(seed uint64) engine.Config {
	return engine.Config{
		Seed:       seed,
		MintX:      MintX,
		MintY:      MintY,
		FeeBps:     30,
		LPDecimals: engine.DefaultLPDecimals,
	}
}

// Run executes the suite. newStore must return a fresh, empty store for every call.
func Run(t *testing.T, newStore func(t *testing.T) ledger.Store) {
	t.Run("CreatePool", func(t *testing.T) { testCreatePool(t, newStore(t)) })
	t.Run("UnknownPool", func(t *testing.T) { testUnknownPool(t, newStore(t)) })
	t.Run("FundAndBalance", func(t *testing.T) { testFundAndBalance(t, newStore(t)) })
	t.Run("DebitCreditMoveVaults", func(t *testing.T) { testDebitCredit(t, newStore(t)) })
	t.Run("Shares", func(t *testing.T) { testShares(t, newStore(t)) })
	t.Run("AbortDiscardsEverything", func(t *testing.T) { testAbort(t, newStore(t)) })
	t.Run("ReadYourWrites", func(t *testing.T) { testReadYourWrites(t, newStore(t)) })
	t.Run("ViewIsReadOnly", func(t *testing.T) { testViewReadOnly(t, newStore(t)) })
	t.Run("SetConfigPersists", func(t *testing.T) { testSetConfig(t, newStore(t)) })
	t.Run("SequenceAdvancesOnCommit", func(t *testing.T) { testSequence(t, newStore(t)) })
	t.Run("CancelledContext", func(t *testing.T) { testCancelled(t, newStore(t)) })
}

func createPool(t *testing.T, s ledger.Store, seed uint64) engine.PoolID {
	t.Helper()
	cfg := TestConfig(seed)
	require.NoError(t, s.CreatePool(context.Background(), cfg))
	return cfg.ID()
}

func reserves(t *testing.T, s ledger.Store, pool engine.PoolID) engine.ReserveState {
	t.Helper()
	var rs engine.ReserveState
	require.NoError(t, s.View(context.Background(), pool, func(tx ledger.Tx) error {
		var err error
		rs, err = tx.ReadReserves()
		return err
	}))
	return rs
}

func balance(t *testing.T, s ledger.Store, account, asset common.Address) uint64 {
	t.Helper()
	b, err := s.Balance(context.Background(), account, asset)
	require.NoError(t, err)
	return b
}

func shares(t *testing.T, s ledger.Store, pool engine.PoolID, account common.Address) uint64 {
	t.Helper()
	b, err := s.Shares(context.Background(), pool, account)
	require.NoError(t, err)
	return b
}

func testCreatePool(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	id := createPool(t, s, 1)
	second := createPool(t, s, 2)

	err := s.CreatePool(ctx, TestConfig(1))
	assert.ErrorIs(t, err, ledger.ErrDuplicatePool)

	ids, err := s.Pools(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []engine.PoolID{id, second}, ids)

	assert.Equal(t, engine.ReserveState{}, reserves(t, s, id))
	require.NoError(t, s.View(ctx, id, func(tx ledger.Tx) error {
		assert.Equal(t, id, tx.Pool())
		assert.Equal(t, TestConfig(1), tx.Config())
		return nil
	}))
}

func testUnknownPool(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	missing := engine.DerivePoolID(MintX, MintY, 99)
	noop := func(ledger.Tx) error { return nil }

	assert.ErrorIs(t, s.Update(ctx, missing, noop), ledger.ErrPoolNotFound)
	assert.ErrorIs(t, s.View(ctx, missing, noop), ledger.ErrPoolNotFound)

	ids, err := s.Pools(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func testFundAndBalance(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	assert.Zero(t, balance(t, s, Alice, MintX))

	require.NoError(t, s.Fund(ctx, Alice, MintX, 100))
	require.NoError(t, s.Fund(ctx, Alice, MintX, 50))
	assert.Equal(t, uint64(150), balance(t, s, Alice, MintX))
	assert.Zero(t, balance(t, s, Alice, MintY))
	assert.Zero(t, balance(t, s, Bob, MintX))

	err := s.Fund(ctx, Alice, MintX, ^uint64(0))
	assert.ErrorIs(t, err, ledger.ErrOverflow)
	assert.Equal(t, uint64(150), balance(t, s, Alice, MintX))
}

func testDebitCredit(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	id := createPool(t, s, 1)
	require.NoError(t, s.Fund(ctx, Alice, MintX, 1000))
	require.NoError(t, s.Fund(ctx, Alice, MintY, 2000))

	require.NoError(t, s.Update(ctx, id, func(tx ledger.Tx) error {
		if err := tx.Debit(Alice, MintX, 400); err != nil {
			return err
		}
		return tx.Debit(Alice, MintY, 800)
	}))
	assert.Equal(t, uint64(600), balance(t, s, Alice, MintX))
	assert.Equal(t, uint64(1200), balance(t, s, Alice, MintY))
	assert.Equal(t, engine.ReserveState{ReserveX: 400, ReserveY: 800}, reserves(t, s, id))

	require.NoError(t, s.Update(ctx, id, func(tx ledger.Tx) error {
		return tx.Credit(Bob, MintY, 300)
	}))
	assert.Equal(t, uint64(300), balance(t, s, Bob, MintY))
	assert.Equal(t, engine.ReserveState{ReserveX: 400, ReserveY: 500}, reserves(t, s, id))

	tests := []struct {
		name    string
		fn      func(tx ledger.Tx) error
		wantErr error
	}{
		{
			name:    "debit beyond balance",
			fn:      func(tx ledger.Tx) error { return tx.Debit(Alice, MintX, 601) },
			wantErr: ledger.ErrInsufficientFunds,
		},
		{
			name:    "debit from unfunded account",
			fn:      func(tx ledger.Tx) error { return tx.Debit(Bob, MintX, 1) },
			wantErr: ledger.ErrInsufficientFunds,
		},
		{
			name:    "credit beyond vault",
			fn:      func(tx ledger.Tx) error { return tx.Credit(Bob, MintX, 401) },
			wantErr: ledger.ErrInsufficientReserves,
		},
		{
			name:    "asset outside the pair",
			fn:      func(tx ledger.Tx) error { return tx.Debit(Alice, Bob, 1) },
			wantErr: ledger.ErrUnknownAsset,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := s.Update(ctx, id, tc.fn)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
	assert.Equal(t, engine.ReserveState{ReserveX: 400, ReserveY: 500}, reserves(t, s, id))
}

func testShares(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	id := createPool(t, s, 1)
	other := createPool(t, s, 2)

	require.NoError(t, s.Update(ctx, id, func(tx ledger.Tx) error {
		if err := tx.MintShares(Alice, 700); err != nil {
			return err
		}
		return tx.MintShares(Bob, 300)
	}))
	assert.Equal(t, uint64(700), shares(t, s, id, Alice))
	assert.Equal(t, uint64(300), shares(t, s, id, Bob))
	assert.Zero(t, shares(t, s, other, Alice))
	assert.Equal(t, uint64(1000), reserves(t, s, id).LPSupply)

	require.NoError(t, s.Update(ctx, id, func(tx ledger.Tx) error {
		return tx.BurnShares(Alice, 200)
	}))
	assert.Equal(t, uint64(500), shares(t, s, id, Alice))
	assert.Equal(t, uint64(800), reserves(t, s, id).LPSupply)

	err := s.Update(ctx, id, func(tx ledger.Tx) error {
		return tx.BurnShares(Bob, 301)
	})
	assert.ErrorIs(t, err, ledger.ErrInsufficientShares)

	err = s.Update(ctx, other, func(tx ledger.Tx) error {
		return tx.BurnShares(Alice, 1)
	})
	assert.ErrorIs(t, err, ledger.ErrInsufficientShares)
}

func testAbort(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	id := createPool(t, s, 1)
	require.NoError(t, s.Fund(ctx, Alice, MintX, 1000))
	require.NoError(t, s.Fund(ctx, Alice, MintY, 1000))

	err := s.Update(ctx, id, func(tx ledger.Tx) error {
		require.NoError(t, tx.Debit(Alice, MintX, 500))
		require.NoError(t, tx.Debit(Alice, MintY, 500))
		require.NoError(t, tx.MintShares(Alice, 500))
		cfg := tx.Config()
		cfg.Locked = true
		require.NoError(t, tx.SetConfig(cfg))
		return errAbort
	})
	assert.ErrorIs(t, err, errAbort)

	assert.Equal(t, uint64(1000), balance(t, s, Alice, MintX))
	assert.Equal(t, uint64(1000), balance(t, s, Alice, MintY))
	assert.Zero(t, shares(t, s, id, Alice))
	assert.Equal(t, engine.ReserveState{}, reserves(t, s, id))
	require.NoError(t, s.View(ctx, id, func(tx ledger.Tx) error {
		assert.False(t, tx.Config().Locked)
		return nil
	}))

	// A failure half way through leaves earlier effects of the same unit undone.
	err = s.Update(ctx, id, func(tx ledger.Tx) error {
		if err := tx.Debit(Alice, MintX, 500); err != nil {
			return err
		}
		return tx.Debit(Alice, MintY, 5000)
	})
	assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)
	assert.Equal(t, uint64(1000), balance(t, s, Alice, MintX))
	assert.Equal(t, engine.ReserveState{}, reserves(t, s, id))
}

func testReadYourWrites(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	id := createPool(t, s, 1)
	require.NoError(t, s.Fund(ctx, Alice, MintX, 100))

	require.NoError(t, s.Update(ctx, id, func(tx ledger.Tx) error {
		require.NoError(t, tx.Debit(Alice, MintX, 60))
		require.NoError(t, tx.MintShares(Alice, 10))

		rs, err := tx.ReadReserves()
		require.NoError(t, err)
		assert.Equal(t, engine.ReserveState{ReserveX: 60, LPSupply: 10}, rs)

		// The second debit must see the first one.
		assert.ErrorIs(t, tx.Debit(Alice, MintX, 41), ledger.ErrInsufficientFunds)
		require.NoError(t, tx.Credit(Bob, MintX, 60))
		assert.ErrorIs(t, tx.Credit(Bob, MintX, 1), ledger.ErrInsufficientReserves)
		return nil
	}))
	assert.Equal(t, uint64(40), balance(t, s, Alice, MintX))
	assert.Equal(t, uint64(60), balance(t, s, Bob, MintX))
}

func testViewReadOnly(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	id := createPool(t, s, 1)
	require.NoError(t, s.Fund(ctx, Alice, MintX, 100))

	require.NoError(t, s.View(ctx, id, func(tx ledger.Tx) error {
		assert.ErrorIs(t, tx.Debit(Alice, MintX, 1), ledger.ErrReadOnly)
		assert.ErrorIs(t, tx.Credit(Alice, MintX, 1), ledger.ErrReadOnly)
		assert.ErrorIs(t, tx.MintShares(Alice, 1), ledger.ErrReadOnly)
		assert.ErrorIs(t, tx.BurnShares(Alice, 1), ledger.ErrReadOnly)
		assert.ErrorIs(t, tx.SetConfig(tx.Config()), ledger.ErrReadOnly)
		_, err := tx.NextSeq()
		assert.ErrorIs(t, err, ledger.ErrReadOnly)
		return nil
	}))
	assert.Equal(t, uint64(100), balance(t, s, Alice, MintX))
}

func testSetConfig(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	authority := Bob
	cfg := TestConfig(1)
	cfg.Authority = &authority
	require.NoError(t, s.CreatePool(ctx, cfg))

	require.NoError(t, s.Update(ctx, cfg.ID(), func(tx ledger.Tx) error {
		updated := tx.Config()
		updated.Locked = true
		return tx.SetConfig(updated)
	}))
	require.NoError(t, s.View(ctx, cfg.ID(), func(tx ledger.Tx) error {
		got := tx.Config()
		assert.True(t, got.Locked)
		require.NotNil(t, got.Authority)
		assert.Equal(t, Bob, *got.Authority)
		assert.Equal(t, uint16(30), got.FeeBps)
		return nil
	}))
}

func seq(t *testing.T, s ledger.Store, pool engine.PoolID) uint64 {
	t.Helper()
	var n uint64
	require.NoError(t, s.View(context.Background(), pool, func(tx ledger.Tx) error {
		n = tx.Seq()
		return nil
	}))
	return n
}

func testSequence(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	id := createPool(t, s, 1)
	other := createPool(t, s, 2)
	assert.Zero(t, seq(t, s, id))

	for want := uint64(1); want <= 3; want++ {
		require.NoError(t, s.Update(ctx, id, func(tx ledger.Tx) error {
			got, err := tx.NextSeq()
			require.NoError(t, err)
			assert.Equal(t, want, got)
			assert.Equal(t, want, tx.Seq())
			return nil
		}))
	}
	assert.Equal(t, uint64(3), seq(t, s, id))
	assert.Zero(t, seq(t, s, other), "sequences are per pool")

	// An aborted unit does not consume a sequence number.
	err := s.Update(ctx, id, func(tx ledger.Tx) error {
		_, err := tx.NextSeq()
		require.NoError(t, err)
		return errAbort
	})
	assert.ErrorIs(t, err, errAbort)
	assert.Equal(t, uint64(3), seq(t, s, id))
}

func testCancelled(t *testing.T, s ledger.Store) {
	id := createPool(t, s, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := s.Update(ctx, id, func(ledger.Tx) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
	assert.ErrorIs(t, s.Fund(ctx, Alice, MintX, 1), context.Canceled)
	assert.ErrorIs(t, s.CreatePool(ctx, TestConfig(7)), context.Canceled)
}
