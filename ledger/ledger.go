// Package ledger defines the custody collaborator the pool coordinator runs
// against: account balances, pool vaults and LP share balances, mutated only
// inside atomic per-pool units.
package ledger

import (
	"context"
	"errors"
	"math/bits"

	"github.com/defistate/defistate-amm-go/engine"
	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrInsufficientFunds is returned when an account balance cannot cover a debit.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrInsufficientShares is returned when an account cannot cover an LP share burn.
	ErrInsufficientShares = errors.New("insufficient lp shares")
	// ErrInsufficientReserves is returned when a vault cannot cover a credit.
	ErrInsufficientReserves = errors.New("insufficient vault reserves")
	// ErrPoolNotFound is returned when no pool is stored under an id.
	ErrPoolNotFound = errors.New("pool not found")
	// ErrDuplicatePool is returned when creating a pool whose id is taken.
	ErrDuplicatePool = errors.New("pool already exists")
	// ErrUnknownAsset is returned when an asset is not one of the pool's pair.
	ErrUnknownAsset = errors.New("asset is not traded by pool")
	// ErrOverflow is returned when a balance would exceed 64 bits.
	ErrOverflow = errors.New("balance overflow")
	// ErrReadOnly is returned by mutators on a View transaction.
	ErrReadOnly = errors.New("read-only transaction")
)

// Tx is one atomic unit of work on a single pool. All mutations made through a
// Tx are committed together when the Update callback returns nil, and none are
// when it returns an error.
//
// Vault funds can only leave through Credit, and a Tx is only ever handed to
// the callback of Update: the pool is the sole mover of its vaults.
type Tx interface {
	Pool() engine.PoolID
	Config() engine.Config
	SetConfig(cfg engine.Config) error

	// ReadReserves returns the vault balances and LP supply as seen by this Tx,
	// including its own uncommitted effects.
	ReadReserves() (engine.ReserveState, error)

	// Debit moves amount of asset from account into the pool's vault.
	Debit(account, asset common.Address, amount uint64) error
	// Credit moves amount of asset from the pool's vault to account.
	Credit(account, asset common.Address, amount uint64) error
	MintShares(account common.Address, amount uint64) error
	BurnShares(account common.Address, amount uint64) error

	// Seq is the number of committed mutations of the pool since it was
	// created, as seen by this Tx.
	Seq() uint64
	// NextSeq advances the pool's sequence and returns the new value. It is
	// committed with the rest of the Tx.
	NextSeq() (uint64, error)
}

// Ledger is the capability the coordinator consumes.
//
// Implementations serialize Update calls touching the same pool and must not
// be re-entered from inside an Update callback.
type Ledger interface {
	CreatePool(ctx context.Context, cfg engine.Config) error
	Update(ctx context.Context, pool engine.PoolID, fn func(tx Tx) error) error
	View(ctx context.Context, pool engine.PoolID, fn func(tx Tx) error) error
	Pools(ctx context.Context) ([]engine.PoolID, error)
}

// Reader exposes balances outside of any pool transaction. Unknown accounts
// read as zero.
type Reader interface {
	Balance(ctx context.Context, account, asset common.Address) (uint64, error)
	Shares(ctx context.Context, pool engine.PoolID, account common.Address) (uint64, error)
}

// Funder credits an account from outside the system (faucets, tests, bridges).
type Funder interface {
	Fund(ctx context.Context, account, asset common.Address, amount uint64) error
}

// Store is the full surface a ledger backend offers the daemon.
type Store interface {
	Ledger
	Reader
	Funder
}

// AddBalance adds two balances, reporting ErrOverflow instead of wrapping.
func AddBalance(balance, amount uint64) (uint64, error) {
	sum, carry := bits.Add64(balance, amount, 0)
	if carry != 0 {
		return 0, ErrOverflow
	}
	return sum, nil
}

// VaultSide reports whether asset is the pool's X (true) or Y (false) asset.
func VaultSide(cfg engine.Config, asset common.Address) (isX bool, err error) {
	switch asset {
	case cfg.MintX:
		return true, nil
	case cfg.MintY:
		return false, nil
	default:
		return false, ErrUnknownAsset
	}
}
