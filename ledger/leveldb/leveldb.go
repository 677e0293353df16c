// Package leveldb is a persistent ledger backed by goleveldb. Every Update runs
// inside a single leveldb transaction, which goleveldb only allows one of at a
// time, so updates are serialized across all pools.
//
// Layout:
//
//	p/<pool id>                 -> rlp(poolRecord)
//	b/<account><asset>          -> rlp(uint64)
//	s/<pool id><account>        -> rlp(uint64)
package leveldb

import (
	"context"
	"errors"
	"fmt"

	"github.com/defistate/defistate-amm-go/engine"
	"github.com/defistate/defistate-amm-go/ledger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

var _ ledger.Store = (*Ledger)(nil)

var (
	poolPrefix    = []byte("p/")
	balancePrefix = []byte("b/")
	sharePrefix   = []byte("s/")
)

// poolRecord is the persisted state of one pool.
type poolRecord struct {
	Config   engine.Config
	VaultX   uint64
	VaultY   uint64
	LPSupply uint64
	Seq      uint64 `rlp:"optional"`
}

// getter is the read surface shared by leveldb.DB, Snapshot and Transaction.
type getter interface {
	Get(key []byte, ro *opt.ReadOptions) ([]byte, error)
}

// Ledger stores pools, balances and shares in a leveldb database.
type Ledger struct {
	db *leveldb.DB
}

// Open opens (or creates) a ledger database at path.
func Open(path string) (*Ledger, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open ledger at %s: %w", path, err)
	}
	return New(db), nil
}

// OpenMemory opens a ledger on volatile in-memory storage.
func OpenMemory() (*Ledger, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, fmt.Errorf("open in-memory ledger: %w", err)
	}
	return New(db), nil
}

// New wraps an already opened database.
func New(db *leveldb.DB) *Ledger {
	return &Ledger{db: db}
}

// Close closes the underlying database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

func poolKey(id engine.PoolID) []byte {
	return append(append([]byte{}, poolPrefix...), id[:]...)
}

func balanceKey(account, asset common.Address) []byte {
	key := make([]byte, 0, len(balancePrefix)+2*common.AddressLength)
	key = append(key, balancePrefix...)
	key = append(key, account[:]...)
	return append(key, asset[:]...)
}

func shareKey(pool engine.PoolID, account common.Address) []byte {
	key := make([]byte, 0, len(sharePrefix)+len(pool)+common.AddressLength)
	key = append(key, sharePrefix...)
	key = append(key, pool[:]...)
	return append(key, account[:]...)
}

func readRecord(g getter, id engine.PoolID) (poolRecord, error) {
	var rec poolRecord
	enc, err := g.Get(poolKey(id), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return rec, ledger.ErrPoolNotFound
	}
	if err != nil {
		return rec, err
	}
	if err := rlp.DecodeBytes(enc, &rec); err != nil {
		return rec, fmt.Errorf("decode pool %s: %w", id, err)
	}
	return rec, nil
}

// readUint64 returns the amount stored at key; a missing key reads as zero.
func readUint64(g getter, key []byte) (uint64, error) {
	enc, err := g.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var v uint64
	if err := rlp.DecodeBytes(enc, &v); err != nil {
		return 0, fmt.Errorf("decode amount: %w", err)
	}
	return v, nil
}

// writeUint64 stores v at key, deleting the key when v is zero.
func writeUint64(tr *leveldb.Transaction, key []byte, v uint64) error {
	if v == 0 {
		return tr.Delete(key, nil)
	}
	enc, err := rlp.EncodeToBytes(v)
	if err != nil {
		return err
	}
	return tr.Put(key, enc, nil)
}

func writeRecord(tr *leveldb.Transaction, id engine.PoolID, rec poolRecord) error {
	enc, err := rlp.EncodeToBytes(&rec)
	if err != nil {
		return fmt.Errorf("encode pool %s: %w", id, err)
	}
	return tr.Put(poolKey(id), enc, nil)
}

// transact runs fn in a leveldb transaction, committing only on success.
func (l *Ledger) transact(ctx context.Context, fn func(tr *leveldb.Transaction) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tr, err := l.db.OpenTransaction()
	if err != nil {
		return err
	}
	if err := fn(tr); err != nil {
		tr.Discard()
		return err
	}
	return tr.Commit()
}

// CreatePool stores a new pool with empty vaults.
func (l *Ledger) CreatePool(ctx context.Context, cfg engine.Config) error {
	id := cfg.ID()
	return l.transact(ctx, func(tr *leveldb.Transaction) error {
		has, err := tr.Has(poolKey(id), nil)
		if err != nil {
			return err
		}
		if has {
			return ledger.ErrDuplicatePool
		}
		return writeRecord(tr, id, poolRecord{Config: cfg})
	})
}

// Update runs fn inside one leveldb transaction scoped to pool.
func (l *Ledger) Update(ctx context.Context, pool engine.PoolID, fn func(tx ledger.Tx) error) error {
	return l.transact(ctx, func(tr *leveldb.Transaction) error {
		rec, err := readRecord(tr, pool)
		if err != nil {
			return err
		}
		tx := &poolTx{tr: tr, pool: pool, rec: rec}
		if err := fn(tx); err != nil {
			return err
		}
		return writeRecord(tr, pool, tx.rec)
	})
}

// View runs fn against a read-only snapshot of the database.
func (l *Ledger) View(ctx context.Context, pool engine.PoolID, fn func(tx ledger.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	snap, err := l.db.GetSnapshot()
	if err != nil {
		return err
	}
	defer snap.Release()

	rec, err := readRecord(snap, pool)
	if err != nil {
		return err
	}
	return fn(&poolTx{pool: pool, rec: rec, snap: snap})
}

// Pools returns every stored pool id in key order.
func (l *Ledger) Pools(ctx context.Context) ([]engine.PoolID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	it := l.db.NewIterator(util.BytesPrefix(poolPrefix), nil)
	defer it.Release()

	var ids []engine.PoolID
	for it.Next() {
		var id engine.PoolID
		copy(id[:], it.Key()[len(poolPrefix):])
		ids = append(ids, id)
	}
	return ids, it.Error()
}

// Balance returns an account's balance of asset.
func (l *Ledger) Balance(ctx context.Context, account, asset common.Address) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return readUint64(l.db, balanceKey(account, asset))
}

// Shares returns an account's LP share balance in pool.
func (l *Ledger) Shares(ctx context.Context, pool engine.PoolID, account common.Address) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return readUint64(l.db, shareKey(pool, account))
}

// Fund credits amount of asset to account from outside the system.
func (l *Ledger) Fund(ctx context.Context, account, asset common.Address, amount uint64) error {
	key := balanceKey(account, asset)
	return l.transact(ctx, func(tr *leveldb.Transaction) error {
		balance, err := readUint64(tr, key)
		if err != nil {
			return err
		}
		balance, err = ledger.AddBalance(balance, amount)
		if err != nil {
			return err
		}
		return writeUint64(tr, key, balance)
	})
}
