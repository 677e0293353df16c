package memory

import (
	"github.com/defistate/defistate-amm-go/engine"
	"github.com/defistate/defistate-amm-go/ledger"
	"github.com/ethereum/go-ethereum/common"
)

// changeset is the ledger.Tx handed to Update callbacks. Reads fall through to
// the base ledger; writes land in the changeset's own maps and a private copy
// of the pool record. The base state is never touched until apply.
type changeset struct {
	base     *Ledger
	pool     engine.PoolID
	record   poolRecord
	balances map[balanceKey]uint64
	shares   map[common.Address]uint64
	readOnly bool
}

func newChangeset(base *Ledger, pool engine.PoolID, record poolRecord, readOnly bool) *changeset {
	return &changeset{
		base:     base,
		pool:     pool,
		record:   record,
		balances: make(map[balanceKey]uint64),
		shares:   make(map[common.Address]uint64),
		readOnly: readOnly,
	}
}

func (c *changeset) Pool() engine.PoolID {
	return c.pool
}

func (c *changeset) Config() engine.Config {
	return c.record.config
}

func (c *changeset) SetConfig(cfg engine.Config) error {
	if c.readOnly {
		return ledger.ErrReadOnly
	}
	c.record.config = cfg
	return nil
}

func (c *changeset) ReadReserves() (engine.ReserveState, error) {
	return engine.ReserveState{
		ReserveX: c.record.vaultX,
		ReserveY: c.record.vaultY,
		LPSupply: c.record.lpSupply,
	}, nil
}

func (c *changeset) Debit(account, asset common.Address, amount uint64) error {
	if c.readOnly {
		return ledger.ErrReadOnly
	}
	vault, err := c.vault(asset)
	if err != nil {
		return err
	}

	key := balanceKey{account, asset}
	balance := c.balance(key)
	if balance < amount {
		return ledger.ErrInsufficientFunds
	}
	newVault, err := ledger.AddBalance(*vault, amount)
	if err != nil {
		return err
	}

	c.balances[key] = balance - amount
	*vault = newVault
	return nil
}

func (c *changeset) Credit(account, asset common.Address, amount uint64) error {
	if c.readOnly {
		return ledger.ErrReadOnly
	}
	vault, err := c.vault(asset)
	if err != nil {
		return err
	}
	if *vault < amount {
		return ledger.ErrInsufficientReserves
	}

	key := balanceKey{account, asset}
	balance, err := ledger.AddBalance(c.balance(key), amount)
	if err != nil {
		return err
	}

	c.balances[key] = balance
	*vault -= amount
	return nil
}

func (c *changeset) MintShares(account common.Address, amount uint64) error {
	if c.readOnly {
		return ledger.ErrReadOnly
	}
	supply, err := ledger.AddBalance(c.record.lpSupply, amount)
	if err != nil {
		return err
	}
	held, err := ledger.AddBalance(c.share(account), amount)
	if err != nil {
		return err
	}

	c.record.lpSupply = supply
	c.shares[account] = held
	return nil
}

func (c *changeset) BurnShares(account common.Address, amount uint64) error {
	if c.readOnly {
		return ledger.ErrReadOnly
	}
	held := c.share(account)
	if held < amount || c.record.lpSupply < amount {
		return ledger.ErrInsufficientShares
	}

	c.record.lpSupply -= amount
	c.shares[account] = held - amount
	return nil
}

func (c *changeset) Seq() uint64 {
	return c.record.seq
}

func (c *changeset) NextSeq() (uint64, error) {
	if c.readOnly {
		return 0, ledger.ErrReadOnly
	}
	next, err := ledger.AddBalance(c.record.seq, 1)
	if err != nil {
		return 0, err
	}
	c.record.seq = next
	return next, nil
}

func (c *changeset) vault(asset common.Address) (*uint64, error) {
	isX, err := ledger.VaultSide(c.record.config, asset)
	if err != nil {
		return nil, err
	}
	if isX {
		return &c.record.vaultX, nil
	}
	return &c.record.vaultY, nil
}

func (c *changeset) balance(key balanceKey) uint64 {
	if v, ok := c.balances[key]; ok {
		return v
	}
	return c.base.balances[key]
}

func (c *changeset) share(account common.Address) uint64 {
	if v, ok := c.shares[account]; ok {
		return v
	}
	return c.base.shares[shareKey{c.pool, account}]
}

// apply merges the changeset into the base ledger. The caller holds the
// write lock.
func (c *changeset) apply() {
	c.base.pools[c.pool] = c.record
	for key, balance := range c.balances {
		if balance == 0 {
			delete(c.base.balances, key)
			continue
		}
		c.base.balances[key] = balance
	}
	for account, held := range c.shares {
		key := shareKey{c.pool, account}
		if held == 0 {
			delete(c.base.shares, key)
			continue
		}
		c.base.shares[key] = held
	}
}
