package leveldb

import (
	"github.com/defistate/defistate-amm-go/engine"
	"github.com/defistate/defistate-amm-go/ledger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/syndtr/goleveldb/leveldb"
)

// poolTx implements ledger.Tx. Balance and share writes go straight into the
// leveldb transaction; the pool record is held in memory and written once the
// callback succeeds. A poolTx without a transaction is read-only.
type poolTx struct {
	tr   *leveldb.Transaction
	snap *leveldb.Snapshot
	pool engine.PoolID
	rec  poolRecord
}

func (t *poolTx) reader() getter {
	if t.tr != nil {
		return t.tr
	}
	return t.snap
}

func (t *poolTx) Pool() engine.PoolID {
	return t.pool
}

func (t *poolTx) Config() engine.Config {
	return t.rec.Config
}

func (t *poolTx) SetConfig(cfg engine.Config) error {
	if t.tr == nil {
		return ledger.ErrReadOnly
	}
	t.rec.Config = cfg
	return nil
}

func (t *poolTx) ReadReserves() (engine.ReserveState, error) {
	return engine.ReserveState{
		ReserveX: t.rec.VaultX,
		ReserveY: t.rec.VaultY,
		LPSupply: t.rec.LPSupply,
	}, nil
}

func (t *poolTx) Seq() uint64 {
	return t.rec.Seq
}

func (t *poolTx) NextSeq() (uint64, error) {
	if t.tr == nil {
		return 0, ledger.ErrReadOnly
	}
	next, err := ledger.AddBalance(t.rec.Seq, 1)
	if err != nil {
		return 0, err
	}
	t.rec.Seq = next
	return next, nil
}

func (t *poolTx) vault(asset common.Address) (*uint64, error) {
	isX, err := ledger.VaultSide(t.rec.Config, asset)
	if err != nil {
		return nil, err
	}
	if isX {
		return &t.rec.VaultX, nil
	}
	return &t.rec.VaultY, nil
}

func (t *poolTx) Debit(account, asset common.Address, amount uint64) error {
	if t.tr == nil {
		return ledger.ErrReadOnly
	}
	vault, err := t.vault(asset)
	if err != nil {
		return err
	}
	key := balanceKey(account, asset)
	balance, err := readUint64(t.tr, key)
	if err != nil {
		return err
	}
	if balance < amount {
		return ledger.ErrInsufficientFunds
	}
	newVault, err := ledger.AddBalance(*vault, amount)
	if err != nil {
		return err
	}
	if err := writeUint64(t.tr, key, balance-amount); err != nil {
		return err
	}
	*vault = newVault
	return nil
}

func (t *poolTx) Credit(account, asset common.Address, amount uint64) error {
	if t.tr == nil {
		return ledger.ErrReadOnly
	}
	vault, err := t.vault(asset)
	if err != nil {
		return err
	}
	if *vault < amount {
		return ledger.ErrInsufficientReserves
	}
	key := balanceKey(account, asset)
	balance, err := readUint64(t.tr, key)
	if err != nil {
		return err
	}
	balance, err = ledger.AddBalance(balance, amount)
	if err != nil {
		return err
	}
	if err := writeUint64(t.tr, key, balance); err != nil {
		return err
	}
	*vault -= amount
	return nil
}

func (t *poolTx) MintShares(account common.Address, amount uint64) error {
	if t.tr == nil {
		return ledger.ErrReadOnly
	}
	supply, err := ledger.AddBalance(t.rec.LPSupply, amount)
	if err != nil {
		return err
	}
	key := shareKey(t.pool, account)
	held, err := readUint64(t.tr, key)
	if err != nil {
		return err
	}
	held, err = ledger.AddBalance(held, amount)
	if err != nil {
		return err
	}
	if err := writeUint64(t.tr, key, held); err != nil {
		return err
	}
	t.rec.LPSupply = supply
	return nil
}

func (t *poolTx) BurnShares(account common.Address, amount uint64) error {
	if t.tr == nil {
		return ledger.ErrReadOnly
	}
	key := shareKey(t.pool, account)
	held, err := readUint64(t.tr, key)
	if err != nil {
		return err
	}
	if held < amount || t.rec.LPSupply < amount {
		return ledger.ErrInsufficientShares
	}
	if err := writeUint64(t.tr, key, held-amount); err != nil {
		return err
	}
	t.rec.LPSupply -= amount
	return nil
}
