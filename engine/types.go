package engine

import (
	"github.com/ethereum/go-ethereum/common"
)

const (
	// BasisPointDivisor represents 100% in basis points.
	BasisPointDivisor = 10000

	// DefaultLPDecimals is the decimals of a pool's LP share unit when none is given.
	DefaultLPDecimals uint8 = 6
)

// Config is the per-pool descriptor. It is created once by Initialize and
// afterwards only the Locked flag changes.
type Config struct {
	Seed  uint64         `json:"seed"`
	MintX common.Address `json:"mintX"`
	MintY common.Address `json:"mintY"`

	// FeeBps is the swap fee in basis points, i.e 30 for 0.3%. Always < 10000.
	FeeBps uint16 `json:"feeBps"`
	Locked bool   `json:"locked"`

	// Authority is the only principal allowed to toggle Locked.
	// A nil authority means the pool can never be locked.
	Authority *common.Address `json:"authority,omitempty" rlp:"nil"`

	LPDecimals uint8 `json:"lpDecimals"`
}

// ID returns the derived identifier of the pool this config describes.
func (c Config) ID() PoolID {
	return DerivePoolID(c.MintX, c.MintY, c.Seed)
}

// IsAuthority reports whether caller may toggle the lock flag.
func (c Config) IsAuthority(caller common.Address) bool {
	return c.Authority != nil && *c.Authority == caller
}

// ReserveState is the pool's vault balances and outstanding LP supply.
type ReserveState struct {
	ReserveX uint64 `json:"reserveX"`
	ReserveY uint64 `json:"reserveY"`
	LPSupply uint64 `json:"lpSupply"`
}

// IsVirgin reports whether no liquidity has ever been (or remains) provided.
func (r ReserveState) IsVirgin() bool {
	return r.LPSupply == 0 && r.ReserveX == 0 && r.ReserveY == 0
}

// Consistent checks the supply/reserve invariant: supply is zero iff both
// reserves are zero, and a non-zero supply is always backed by both assets.
func (r ReserveState) Consistent() bool {
	if r.LPSupply == 0 {
		return r.ReserveX == 0 && r.ReserveY == 0
	}
	return r.ReserveX > 0 && r.ReserveY > 0
}

// Pool is a full snapshot of a pool: its descriptor and current reserves, as
// of the Seq-th committed mutation.
type Pool struct {
	ID       PoolID       `json:"id"`
	Config   Config       `json:"config"`
	Reserves ReserveState `json:"reserves"`
	Seq      uint64       `json:"seq"`
}

// OperationKind names the operation that produced a PoolEvent.
type OperationKind string

const (
	OpInitialize OperationKind = "initialize"
	OpDeposit    OperationKind = "deposit"
	OpWithdraw   OperationKind = "withdraw"
	OpSwap       OperationKind = "swap"
	OpLock       OperationKind = "lock"
	OpUnlock     OperationKind = "unlock"
)

// PoolEvent describes a committed pool operation. AmountX and AmountY are the
// asset amounts that moved (into the vaults for deposits and swap inputs,
// out of them for withdrawals and swap outputs). Seq orders the events of one
// pool: it is 0 for initialize and grows by one with every later commit.
type PoolEvent struct {
	Pool      PoolID         `json:"pool"`
	Kind      OperationKind  `json:"kind"`
	Account   common.Address `json:"account"`
	AmountX   uint64         `json:"amountX"`
	AmountY   uint64         `json:"amountY"`
	LPAmount  uint64         `json:"lpAmount"`
	Reserves  ReserveState   `json:"reserves"`
	Seq       uint64         `json:"seq"`
	Timestamp int64          `json:"timestamp"` // unix nanoseconds at commit
}
