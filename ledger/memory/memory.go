// Package memory is an in-process ledger. Each Update works on a copy-on-write
// changeset that is merged into the base state only if the callback succeeds.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/defistate/defistate-amm-go/engine"
	"github.com/defistate/defistate-amm-go/ledger"
	"github.com/ethereum/go-ethereum/common"
)

var _ ledger.Store = (*Ledger)(nil)

type balanceKey struct {
	account common.Address
	asset   common.Address
}

type shareKey struct {
	pool    engine.PoolID
	account common.Address
}

type poolRecord struct {
	config   engine.Config
	vaultX   uint64
	vaultY   uint64
	lpSupply uint64
	seq      uint64
}

// Ledger is a mutex-guarded in-memory ledger. A single lock serializes all
// updates, which trivially serializes updates to the same pool.
type Ledger struct {
	mu       sync.RWMutex
	pools    map[engine.PoolID]poolRecord
	balances map[balanceKey]uint64
	shares   map[shareKey]uint64
}

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{
		pools:    make(map[engine.PoolID]poolRecord),
		balances: make(map[balanceKey]uint64),
		shares:   make(map[shareKey]uint64),
	}
}

// CreatePool stores a new pool with empty vaults.
func (l *Ledger) CreatePool(ctx context.Context, cfg engine.Config) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	id := cfg.ID()
	if _, exists := l.pools[id]; exists {
		return ledger.ErrDuplicatePool
	}
	l.pools[id] = poolRecord{config: cfg}
	return nil
}

// Update runs fn against a changeset of the pool and commits it if fn returns nil.
func (l *Ledger) Update(ctx context.Context, pool engine.PoolID, fn func(tx ledger.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	record, ok := l.pools[pool]
	if !ok {
		return ledger.ErrPoolNotFound
	}

	cs := newChangeset(l, pool, record, false)
	if err := fn(cs); err != nil {
		return err
	}
	cs.apply()
	return nil
}

// View runs fn against a read-only snapshot of the pool.
func (l *Ledger) View(ctx context.Context, pool engine.PoolID, fn func(tx ledger.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	record, ok := l.pools[pool]
	if !ok {
		return ledger.ErrPoolNotFound
	}
	return fn(newChangeset(l, pool, record, true))
}

// Pools returns every stored pool id in ascending byte order.
func (l *Ledger) Pools(ctx context.Context) ([]engine.PoolID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	ids := make([]engine.PoolID, 0, len(l.pools))
	for id := range l.pools {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return string(ids[i][:]) < string(ids[j][:])
	})
	return ids, nil
}

// Balance returns an account's balance of asset.
func (l *Ledger) Balance(ctx context.Context, account, asset common.Address) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balances[balanceKey{account, asset}], nil
}

// Shares returns an account's LP share balance in pool.
func (l *Ledger) Shares(ctx context.Context, pool engine.PoolID, account common.Address) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.shares[shareKey{pool, account}], nil
}

// Fund credits amount of asset to account from outside the system.
func (l *Ledger) Fund(ctx context.Context, account, asset common.Address, amount uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	key := balanceKey{account, asset}
	balance, err := ledger.AddBalance(l.balances[key], amount)
	if err != nil {
		return err
	}
	l.balances[key] = balance
	return nil
}
