package patcher

import (
	"context"
	"errors"
	"fmt"
	"maps"

	"github.com/defistate/defistate-amm-go/engine"
)

var (
	ErrStaleEvent   = errors.New("patcher: event is not newer than snapshot")
	ErrUnknownPool  = errors.New("patcher: event for pool missing from snapshot")
	ErrUnknownEvent = errors.New("patcher: unknown event kind")
)

// PoolFetcher loads a pool the snapshot has not seen yet.
type PoolFetcher func(ctx context.Context, id engine.PoolID) (engine.Pool, error)

// Snapshot is an immutable view of every pool. Each pool carries the sequence
// of the last commit folded into it.
type Snapshot struct {
	Pools map[engine.PoolID]engine.Pool
}

// NewSnapshot indexes pools as the starting point for patching.
func NewSnapshot(pools []engine.Pool) *Snapshot {
	m := make(map[engine.PoolID]engine.Pool, len(pools))
	for _, p := range pools {
		m[p.ID] = p
	}
	return &Snapshot{Pools: m}
}

type StatePatcherConfig struct {
	// Fetch is called for initialize events, which do not carry the pool config.
	Fetch PoolFetcher
}

func (c *StatePatcherConfig) validate() error {
	if c.Fetch == nil {
		return errors.New("config: Fetch cannot be nil")
	}
	return nil
}

// StatePatcher folds committed pool events into snapshots.
type StatePatcher struct {
	fetch PoolFetcher
}

// NewStatePatcher constructs a new patcher from a configuration.
func NewStatePatcher(cfg *StatePatcherConfig) (*StatePatcher, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &StatePatcher{fetch: cfg.Fetch}, nil
}

// Patch returns a new snapshot with ev applied. The old snapshot is never
// mutated; pools the event does not touch are shared with it.
//
// An event whose sequence is at or below the pool's is rejected with
// ErrStaleEvent; the snapshot already reflects that commit or a later one.
// Gaps are accepted, since every event carries the pool's full reserves.
func (p *StatePatcher) Patch(ctx context.Context, old *Snapshot, ev engine.PoolEvent) (*Snapshot, error) {
	switch ev.Kind {
	case engine.OpInitialize, engine.OpDeposit, engine.OpWithdraw, engine.OpSwap, engine.OpLock, engine.OpUnlock:
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownEvent, ev.Kind)
	}

	pool, exists := old.Pools[ev.Pool]
	switch {
	case exists && ev.Seq <= pool.Seq:
		return nil, fmt.Errorf("%w: pool %s at seq %d, event %s at seq %d", ErrStaleEvent, ev.Pool, pool.Seq, ev.Kind, ev.Seq)
	case !exists && ev.Kind != engine.OpInitialize:
		return nil, fmt.Errorf("%w: %s", ErrUnknownPool, ev.Pool)
	case !exists:
		fetched, err := p.fetch(ctx, ev.Pool)
		if err != nil {
			return nil, fmt.Errorf("patcher: fetch pool %s: %w", ev.Pool, err)
		}
		pool = fetched
	default:
		pool.Reserves = ev.Reserves
		pool.Seq = ev.Seq
		switch ev.Kind {
		case engine.OpLock:
			pool.Config.Locked = true
		case engine.OpUnlock:
			pool.Config.Locked = false
		}
	}

	pools := maps.Clone(old.Pools)
	if pools == nil {
		pools = make(map[engine.PoolID]engine.Pool, 1)
	}
	pools[ev.Pool] = pool
	return &Snapshot{Pools: pools}, nil
}
