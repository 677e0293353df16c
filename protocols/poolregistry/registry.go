// Package poolregistry indexes constant-product pools by id and by the asset
// pair they trade.
package poolregistry

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/defistate/defistate-amm-go/engine"
	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrAlreadyRegistered is returned when a pool id is registered twice.
	ErrAlreadyRegistered = errors.New("pool already registered")
	// ErrIDMismatch is returned when an entry's id does not match its derived id.
	ErrIDMismatch = errors.New("pool id does not match mints and seed")
)

// Pool is the registry's view of a pool: the fields its id is derived from.
type Pool struct {
	ID    engine.PoolID  `json:"id"`
	MintX common.Address `json:"mintX"`
	MintY common.Address `json:"mintY"`
	Seed  uint64         `json:"seed"`
}

// FromConfig builds the registry entry for a pool config.
func FromConfig(cfg engine.Config) Pool {
	return Pool{
		ID:    cfg.ID(),
		MintX: cfg.MintX,
		MintY: cfg.MintY,
		Seed:  cfg.Seed,
	}
}

// pair is an unordered asset pair, stored with the lower address first.
type pair struct {
	lo, hi common.Address
}

func newPair(a, b common.Address) pair {
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}
	return pair{lo: a, hi: b}
}

// PoolRegistry is safe for concurrent use.
type PoolRegistry struct {
	mu     sync.RWMutex
	byID   map[engine.PoolID]Pool
	byPair map[pair]mapset.Set[engine.PoolID]
}

// New creates an empty registry.
func New() *PoolRegistry {
	return &PoolRegistry{
		byID:   make(map[engine.PoolID]Pool),
		byPair: make(map[pair]mapset.Set[engine.PoolID]),
	}
}

// Index builds a registry from an existing set of pools, e.g. those found in a
// ledger on startup.
func Index(pools []Pool) (*PoolRegistry, error) {
	r := New()
	for _, p := range pools {
		if err := r.Register(p); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a pool. The id must be the one derived from its mints and seed.
func (r *PoolRegistry) Register(p Pool) error {
	if engine.DerivePoolID(p.MintX, p.MintY, p.Seed) != p.ID {
		return fmt.Errorf("%w: %s", ErrIDMismatch, p.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[p.ID]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, p.ID)
	}
	r.byID[p.ID] = p

	key := newPair(p.MintX, p.MintY)
	set, ok := r.byPair[key]
	if !ok {
		set = mapset.NewThreadUnsafeSet[engine.PoolID]()
		r.byPair[key] = set
	}
	set.Add(p.ID)
	return nil
}

// PoolsForPair returns the ids of every pool trading a and b, in either
// orientation, sorted by id.
func (r *PoolRegistry) PoolsForPair(a, b common.Address) []engine.PoolID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set, ok := r.byPair[newPair(a, b)]
	if !ok {
		return nil
	}
	ids := set.ToSlice()
	sortIDs(ids)
	return ids
}

// All returns every registered pool sorted by id.
func (r *PoolRegistry) All() []Pool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	pools := make([]Pool, 0, len(r.byID))
	for _, p := range r.byID {
		pools = append(pools, p)
	}
	sort.Slice(pools, func(i, j int) bool {
		return bytes.Compare(pools[i].ID[:], pools[j].ID[:]) < 0
	})
	return pools
}

// Len returns the number of registered pools.
func (r *PoolRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

func sortIDs(ids []engine.PoolID) {
	sort.Slice(ids, func(i, j int) bool {
		return bytes.Compare(ids[i][:], ids[j][:]) < 0
	})
}
