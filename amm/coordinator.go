// Package amm runs constant-product pools on top of a ledger: it creates and
// locks pools and applies deposits, withdrawals and swaps as single atomic
// ledger updates.
package amm

import (
	"context"
	"errors"
	"fmt"
	"time"

	errorsmod "cosmossdk.io/errors"
	"github.com/defistate/defistate-amm-go/engine"
	"github.com/defistate/defistate-amm-go/ledger"
	"github.com/defistate/defistate-amm-go/protocols/constantproduct/calculator"
	"github.com/defistate/defistate-amm-go/protocols/poolregistry"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	"github.com/prometheus/client_golang/prometheus"
)

// Operation names used in metrics and logs.
const (
	opInitialize = "initialize"
	opSetLocked  = "set_locked"
	opDeposit    = "deposit"
	opWithdraw   = "withdraw"
	opSwap       = "swap"
)

// CoordinatorConfig holds the coordinator's dependencies.
type CoordinatorConfig struct {
	Ledger   ledger.Ledger
	Registry prometheus.Registerer
	Logger   Logger

	// Now stamps pool events. Defaults to time.Now.
	Now func() time.Time
}

func (c *CoordinatorConfig) validate() error {
	if c.Ledger == nil {
		return errors.New("config: Ledger cannot be nil")
	}
	if c.Registry == nil {
		return errors.New("config: Registry cannot be nil")
	}
	if c.Logger == nil {
		return errors.New("config: Logger cannot be nil")
	}
	return nil
}

// Coordinator is safe for concurrent use; serialization of updates to the same
// pool is the ledger's job.
type Coordinator struct {
	ledger  ledger.Ledger
	pools   *poolregistry.PoolRegistry
	metrics *Metrics
	logger  Logger
	now     func() time.Time
	feed    event.Feed
}

// New constructs a coordinator and indexes the pools already held by the ledger.
func New(ctx context.Context, cfg *CoordinatorConfig) (*Coordinator, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	ids, err := cfg.Ledger.Pools(ctx)
	if err != nil {
		return nil, fmt.Errorf("list ledger pools: %w", err)
	}
	entries := make([]poolregistry.Pool, 0, len(ids))
	for _, id := range ids {
		err := cfg.Ledger.View(ctx, id, func(tx ledger.Tx) error {
			entries = append(entries, poolregistry.FromConfig(tx.Config()))
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("load pool %s: %w", id, err)
		}
	}
	pools, err := poolregistry.Index(entries)
	if err != nil {
		return nil, fmt.Errorf("index pools: %w", err)
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	c := &Coordinator{
		ledger:  cfg.Ledger,
		pools:   pools,
		metrics: NewMetrics(cfg.Registry),
		logger:  cfg.Logger,
		now:     now,
	}
	c.metrics.poolsTotal.Set(float64(pools.Len()))
	c.logger.Info("coordinator ready", "pools", pools.Len())
	return c, nil
}

// SubscribeEvents delivers every committed pool operation to ch. Sends block
// until all subscribers have received, so ch should be buffered and drained.
func (c *Coordinator) SubscribeEvents(ch chan<- engine.PoolEvent) event.Subscription {
	return c.feed.Subscribe(ch)
}

func (c *Coordinator) finish(op string, start time.Time, err error) error {
	err = translate(err)
	c.metrics.operationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	c.metrics.observe(op, err)
	if err != nil {
		c.logger.Debug("pool operation rejected", "operation", op, "error", err)
	}
	return err
}

// stamp advances the pool sequence inside the committing unit and records the
// commit time, so the events of one pool are ordered like their commits.
func (c *Coordinator) stamp(tx ledger.Tx, ev *engine.PoolEvent) error {
	seq, err := tx.NextSeq()
	if err != nil {
		return fmt.Errorf("advance sequence: %w", err)
	}
	ev.Seq = seq
	ev.Timestamp = c.now().UnixNano()
	return nil
}

func (c *Coordinator) publish(ev engine.PoolEvent) {
	c.feed.Send(ev)
}

// Initialize creates a new, unlocked pool with empty reserves.
func (c *Coordinator) Initialize(ctx context.Context, p InitializeParams) (id engine.PoolID, err error) {
	start := time.Now()
	defer func() { err = c.finish(opInitialize, start, err) }()

	if p.FeeBps >= engine.BasisPointDivisor {
		return id, errorsmod.Wrapf(ErrInvalidFee, "fee %d bps must be below %d", p.FeeBps, engine.BasisPointDivisor)
	}
	if p.MintX == p.MintY {
		return id, errorsmod.Wrapf(ErrInvalidMint, "pool needs two distinct mints, got %s twice", p.MintX)
	}
	decimals := p.LPDecimals
	if decimals == 0 {
		decimals = engine.DefaultLPDecimals
	}
	if decimals > calculator.MaxLPDecimals {
		return id, errorsmod.Wrapf(ErrInvalidAmount, "lp decimals %d exceed %d", decimals, calculator.MaxLPDecimals)
	}

	cfg := engine.Config{
		Seed:       p.Seed,
		MintX:      p.MintX,
		MintY:      p.MintY,
		FeeBps:     p.FeeBps,
		Authority:  p.Authority,
		LPDecimals: decimals,
	}
	id = cfg.ID()
	if err := c.ledger.CreatePool(ctx, cfg); err != nil {
		return engine.PoolID{}, err
	}
	if err := c.pools.Register(poolregistry.FromConfig(cfg)); err != nil {
		// The ledger accepted the pool, so the index is stale, not the pool.
		c.logger.Error("failed to index new pool", "pool", id, "error", err)
	}
	c.metrics.poolsTotal.Set(float64(c.pools.Len()))
	c.logger.Info("pool initialized", "pool", id, "mintX", p.MintX, "mintY", p.MintY, "seed", p.Seed, "feeBps", p.FeeBps)

	ev := engine.PoolEvent{Pool: id, Kind: engine.OpInitialize, Timestamp: c.now().UnixNano()}
	if p.Authority != nil {
		ev.Account = *p.Authority
	}
	c.publish(ev)
	return id, nil
}

// SetLocked sets the pool's lock flag. Only the pool authority may call it,
// and a pool without an authority rejects every call.
func (c *Coordinator) SetLocked(ctx context.Context, pool engine.PoolID, locked bool, caller common.Address) (err error) {
	start := time.Now()
	defer func() { err = c.finish(opSetLocked, start, err) }()

	ev := engine.PoolEvent{Pool: pool, Kind: engine.OpUnlock, Account: caller}
	if locked {
		ev.Kind = engine.OpLock
	}
	err = c.ledger.Update(ctx, pool, func(tx ledger.Tx) error {
		cfg := tx.Config()
		if !cfg.IsAuthority(caller) {
			return errorsmod.Wrapf(ErrUnauthorized, "%s is not the authority of pool %s", caller, pool)
		}
		cfg.Locked = locked
		if err := tx.SetConfig(cfg); err != nil {
			return err
		}
		rs, err := tx.ReadReserves()
		if err != nil {
			return err
		}
		ev.Reserves = rs
		return c.stamp(tx, &ev)
	})
	if err != nil {
		return err
	}

	c.logger.Info("pool lock changed", "pool", pool, "locked", locked, "seq", ev.Seq)
	c.publish(ev)
	return nil
}

// Deposit takes (x, y) from depositor and mints lpAmount LP shares, where
// (x, y) is the proportional price of lpAmount, or (maxX, maxY) on a virgin pool.
func (c *Coordinator) Deposit(ctx context.Context, pool engine.PoolID, depositor common.Address, lpAmount, maxX, maxY uint64) (res DepositResult, err error) {
	start := time.Now()
	defer func() { err = c.finish(opDeposit, start, err) }()

	var ev engine.PoolEvent
	err = c.ledger.Update(ctx, pool, func(tx ledger.Tx) error {
		cfg := tx.Config()
		rs, err := tx.ReadReserves()
		if err != nil {
			return err
		}
		amounts, err := planDeposit(cfg, rs, lpAmount, maxX, maxY)
		if err != nil {
			return err
		}

		if err := tx.Debit(depositor, cfg.MintX, amounts.X); err != nil {
			return fmt.Errorf("debit x: %w", err)
		}
		if err := tx.Debit(depositor, cfg.MintY, amounts.Y); err != nil {
			return fmt.Errorf("debit y: %w", err)
		}
		if err := tx.MintShares(depositor, lpAmount); err != nil {
			return fmt.Errorf("mint lp: %w", err)
		}

		res = DepositResult{AmountX: amounts.X, AmountY: amounts.Y, LPAmount: lpAmount}
		if res.Reserves, err = tx.ReadReserves(); err != nil {
			return err
		}
		ev = engine.PoolEvent{
			Pool:     pool,
			Kind:     engine.OpDeposit,
			Account:  depositor,
			AmountX:  res.AmountX,
			AmountY:  res.AmountY,
			LPAmount: lpAmount,
			Reserves: res.Reserves,
		}
		return c.stamp(tx, &ev)
	})
	if err != nil {
		return DepositResult{}, err
	}

	c.publish(ev)
	return res, nil
}

// Withdraw burns lpAmount LP shares from withdrawer and pays out the
// proportional reserves, rounded down.
func (c *Coordinator) Withdraw(ctx context.Context, pool engine.PoolID, withdrawer common.Address, lpAmount, minX, minY uint64) (res WithdrawResult, err error) {
	start := time.Now()
	defer func() { err = c.finish(opWithdraw, start, err) }()

	var ev engine.PoolEvent
	err = c.ledger.Update(ctx, pool, func(tx ledger.Tx) error {
		cfg := tx.Config()
		if err := checkActive(cfg); err != nil {
			return err
		}
		if lpAmount == 0 {
			return errorsmod.Wrap(ErrInvalidAmount, "lp amount is zero")
		}
		if minX == 0 && minY == 0 {
			return errorsmod.Wrap(ErrInvalidAmount, "at least one minimum must be non-zero")
		}

		rs, err := tx.ReadReserves()
		if err != nil {
			return err
		}
		amounts, err := planWithdraw(cfg, rs, lpAmount)
		if err != nil {
			return err
		}
		if err := checkWithdrawBounds(amounts, minX, minY); err != nil {
			return err
		}

		if err := tx.BurnShares(withdrawer, lpAmount); err != nil {
			return fmt.Errorf("burn lp: %w", err)
		}
		if err := tx.Credit(withdrawer, cfg.MintX, amounts.X); err != nil {
			return fmt.Errorf("credit x: %w", err)
		}
		if err := tx.Credit(withdrawer, cfg.MintY, amounts.Y); err != nil {
			return fmt.Errorf("credit y: %w", err)
		}

		res = WithdrawResult{AmountX: amounts.X, AmountY: amounts.Y, LPAmount: lpAmount}
		if res.Reserves, err = tx.ReadReserves(); err != nil {
			return err
		}
		ev = engine.PoolEvent{
			Pool:     pool,
			Kind:     engine.OpWithdraw,
			Account:  withdrawer,
			AmountX:  res.AmountX,
			AmountY:  res.AmountY,
			LPAmount: lpAmount,
			Reserves: res.Reserves,
		}
		return c.stamp(tx, &ev)
	})
	if err != nil {
		return WithdrawResult{}, err
	}

	c.publish(ev)
	return res, nil
}

// Swap sells amountIn of X (isX) or Y for the other asset.
func (c *Coordinator) Swap(ctx context.Context, pool engine.PoolID, swapper common.Address, isX bool, amountIn, minOut uint64) (res SwapResult, err error) {
	start := time.Now()
	defer func() { err = c.finish(opSwap, start, err) }()

	var ev engine.PoolEvent
	err = c.ledger.Update(ctx, pool, func(tx ledger.Tx) error {
		cfg := tx.Config()
		rs, err := tx.ReadReserves()
		if err != nil {
			return err
		}
		amountOut, err := planSwap(cfg, rs, isX, amountIn, minOut)
		if err != nil {
			return err
		}

		assetIn, assetOut := cfg.MintX, cfg.MintY
		if !isX {
			assetIn, assetOut = assetOut, assetIn
		}
		if err := tx.Debit(swapper, assetIn, amountIn); err != nil {
			return fmt.Errorf("debit input: %w", err)
		}
		if err := tx.Credit(swapper, assetOut, amountOut); err != nil {
			return fmt.Errorf("credit output: %w", err)
		}

		res = SwapResult{IsX: isX, AmountIn: amountIn, AmountOut: amountOut}
		if res.Reserves, err = tx.ReadReserves(); err != nil {
			return err
		}
		ev = engine.PoolEvent{Pool: pool, Kind: engine.OpSwap, Account: swapper, Reserves: res.Reserves}
		if isX {
			ev.AmountX, ev.AmountY = amountIn, amountOut
		} else {
			ev.AmountX, ev.AmountY = amountOut, amountIn
		}
		return c.stamp(tx, &ev)
	})
	if err != nil {
		return SwapResult{}, err
	}

	c.publish(ev)
	return res, nil
}
