package amm

import (
	"github.com/defistate/defistate-amm-go/engine"
	"github.com/ethereum/go-ethereum/common"
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// InitializeParams describes a pool to create.
type InitializeParams struct {
	Seed  uint64
	MintX common.Address
	MintY common.Address

	// Authority may toggle the lock flag. Nil creates a pool that can never be locked.
	Authority *common.Address

	FeeBps uint16

	// LPDecimals of zero selects engine.DefaultLPDecimals.
	LPDecimals uint8
}

// DepositResult reports the amounts a committed deposit moved into the vaults.
type DepositResult struct {
	AmountX  uint64              `json:"amountX"`
	AmountY  uint64              `json:"amountY"`
	LPAmount uint64              `json:"lpAmount"`
	Reserves engine.ReserveState `json:"reserves"`
}

// WithdrawResult reports the amounts a committed withdrawal paid out.
type WithdrawResult struct {
	AmountX  uint64              `json:"amountX"`
	AmountY  uint64              `json:"amountY"`
	LPAmount uint64              `json:"lpAmount"`
	Reserves engine.ReserveState `json:"reserves"`
}

// SwapResult reports a committed swap.
type SwapResult struct {
	IsX       bool                `json:"isX"`
	AmountIn  uint64              `json:"amountIn"`
	AmountOut uint64              `json:"amountOut"`
	Reserves  engine.ReserveState `json:"reserves"`
}
