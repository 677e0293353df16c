package amm

import (
	"context"

	"github.com/defistate/defistate-amm-go/engine"
	"github.com/defistate/defistate-amm-go/ledger"
	"github.com/defistate/defistate-amm-go/protocols/constantproduct/calculator"
	"github.com/ethereum/go-ethereum/common"
)

// view reads a pool snapshot and hands it to fn.
func (c *Coordinator) view(ctx context.Context, pool engine.PoolID, fn func(cfg engine.Config, rs engine.ReserveState) error) error {
	err := c.ledger.View(ctx, pool, func(tx ledger.Tx) error {
		rs, err := tx.ReadReserves()
		if err != nil {
			return err
		}
		return fn(tx.Config(), rs)
	})
	return translate(err)
}

// Pool returns a snapshot of one pool.
func (c *Coordinator) Pool(ctx context.Context, id engine.PoolID) (engine.Pool, error) {
	var p engine.Pool
	err := c.ledger.View(ctx, id, func(tx ledger.Tx) error {
		rs, err := tx.ReadReserves()
		if err != nil {
			return err
		}
		p = engine.Pool{ID: id, Config: tx.Config(), Reserves: rs, Seq: tx.Seq()}
		return nil
	})
	return p, translate(err)
}

// Pools returns a snapshot of every pool, ordered by id.
func (c *Coordinator) Pools(ctx context.Context) ([]engine.Pool, error) {
	entries := c.pools.All()
	pools := make([]engine.Pool, 0, len(entries))
	for _, e := range entries {
		p, err := c.Pool(ctx, e.ID)
		if err != nil {
			return nil, err
		}
		pools = append(pools, p)
	}
	return pools, nil
}

// PoolsForPair returns the ids of every pool trading a against b, in either
// orientation.
func (c *Coordinator) PoolsForPair(a, b common.Address) []engine.PoolID {
	return c.pools.PoolsForPair(a, b)
}

// QuoteDeposit returns what Deposit would take for lpAmount right now.
func (c *Coordinator) QuoteDeposit(ctx context.Context, pool engine.PoolID, lpAmount, maxX, maxY uint64) (calculator.Amounts, error) {
	var amounts calculator.Amounts
	err := c.view(ctx, pool, func(cfg engine.Config, rs engine.ReserveState) (err error) {
		amounts, err = planDeposit(cfg, rs, lpAmount, maxX, maxY)
		return err
	})
	return amounts, err
}

// QuoteWithdraw returns what burning lpAmount would pay out right now.
func (c *Coordinator) QuoteWithdraw(ctx context.Context, pool engine.PoolID, lpAmount uint64) (calculator.Amounts, error) {
	var amounts calculator.Amounts
	err := c.view(ctx, pool, func(cfg engine.Config, rs engine.ReserveState) (err error) {
		amounts, err = planWithdraw(cfg, rs, lpAmount)
		return err
	})
	return amounts, err
}

// QuoteSwap returns the output a swap of amountIn would receive right now.
func (c *Coordinator) QuoteSwap(ctx context.Context, pool engine.PoolID, isX bool, amountIn uint64) (uint64, error) {
	var out uint64
	err := c.view(ctx, pool, func(cfg engine.Config, rs engine.ReserveState) (err error) {
		out, err = planSwap(cfg, rs, isX, amountIn, 0)
		return err
	})
	return out, err
}
