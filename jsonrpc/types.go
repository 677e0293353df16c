// Package jsonrpc holds the wire types and error mapping shared by the pool
// JSON-RPC server and client. Amounts travel as hex quantities.
package jsonrpc

import (
	"github.com/defistate/defistate-amm-go/amm"
	"github.com/defistate/defistate-amm-go/engine"
	"github.com/defistate/defistate-amm-go/protocols/constantproduct/calculator"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

const (
	// Namespace is the namespace under which the pool API is registered.
	Namespace = "amm"
	// PoolEventsSubscription is the subscription name for committed pool operations.
	PoolEventsSubscription = "poolEvents"
)

type InitializeArgs struct {
	Seed       hexutil.Uint64  `json:"seed"`
	MintX      common.Address  `json:"mintX"`
	MintY      common.Address  `json:"mintY"`
	Authority  *common.Address `json:"authority,omitempty"`
	FeeBps     uint16          `json:"feeBps"`
	LPDecimals uint8           `json:"lpDecimals,omitempty"`
}

func (a InitializeArgs) Params() amm.InitializeParams {
	return amm.InitializeParams{
		Seed:       uint64(a.Seed),
		MintX:      a.MintX,
		MintY:      a.MintY,
		Authority:  a.Authority,
		FeeBps:     a.FeeBps,
		LPDecimals: a.LPDecimals,
	}
}

type DepositArgs struct {
	Pool     engine.PoolID  `json:"pool"`
	Account  common.Address `json:"account"`
	LPAmount hexutil.Uint64 `json:"lpAmount"`
	MaxX     hexutil.Uint64 `json:"maxX"`
	MaxY     hexutil.Uint64 `json:"maxY"`
}

type WithdrawArgs struct {
	Pool     engine.PoolID  `json:"pool"`
	Account  common.Address `json:"account"`
	LPAmount hexutil.Uint64 `json:"lpAmount"`
	MinX     hexutil.Uint64 `json:"minX"`
	MinY     hexutil.Uint64 `json:"minY"`
}

type SwapArgs struct {
	Pool     engine.PoolID  `json:"pool"`
	Account  common.Address `json:"account"`
	IsX      bool           `json:"isX"`
	AmountIn hexutil.Uint64 `json:"amountIn"`
	MinOut   hexutil.Uint64 `json:"minOut"`
}

type Reserves struct {
	ReserveX hexutil.Uint64 `json:"reserveX"`
	ReserveY hexutil.Uint64 `json:"reserveY"`
	LPSupply hexutil.Uint64 `json:"lpSupply"`
}

func NewReserves(rs engine.ReserveState) Reserves {
	return Reserves{
		ReserveX: hexutil.Uint64(rs.ReserveX),
		ReserveY: hexutil.Uint64(rs.ReserveY),
		LPSupply: hexutil.Uint64(rs.LPSupply),
	}
}

func (r Reserves) State() engine.ReserveState {
	return engine.ReserveState{
		ReserveX: uint64(r.ReserveX),
		ReserveY: uint64(r.ReserveY),
		LPSupply: uint64(r.LPSupply),
	}
}

type Amounts struct {
	X hexutil.Uint64 `json:"x"`
	Y hexutil.Uint64 `json:"y"`
}

func NewAmounts(a calculator.Amounts) Amounts {
	return Amounts{X: hexutil.Uint64(a.X), Y: hexutil.Uint64(a.Y)}
}

// LiquidityReceipt is returned by deposits and withdrawals.
type LiquidityReceipt struct {
	AmountX  hexutil.Uint64 `json:"amountX"`
	AmountY  hexutil.Uint64 `json:"amountY"`
	LPAmount hexutil.Uint64 `json:"lpAmount"`
	Reserves Reserves       `json:"reserves"`
}

type SwapReceipt struct {
	IsX       bool           `json:"isX"`
	AmountIn  hexutil.Uint64 `json:"amountIn"`
	AmountOut hexutil.Uint64 `json:"amountOut"`
	Reserves  Reserves       `json:"reserves"`
}

// Pool is the wire form of engine.Pool.
type Pool struct {
	ID         engine.PoolID   `json:"id"`
	Seed       hexutil.Uint64  `json:"seed"`
	MintX      common.Address  `json:"mintX"`
	MintY      common.Address  `json:"mintY"`
	FeeBps     uint16          `json:"feeBps"`
	Locked     bool            `json:"locked"`
	Authority  *common.Address `json:"authority,omitempty"`
	LPDecimals uint8           `json:"lpDecimals"`
	Reserves   Reserves        `json:"reserves"`
	Seq        hexutil.Uint64  `json:"seq"`
}

func NewPool(p engine.Pool) Pool {
	return Pool{
		ID:         p.ID,
		Seed:       hexutil.Uint64(p.Config.Seed),
		MintX:      p.Config.MintX,
		MintY:      p.Config.MintY,
		FeeBps:     p.Config.FeeBps,
		Locked:     p.Config.Locked,
		Authority:  p.Config.Authority,
		LPDecimals: p.Config.LPDecimals,
		Reserves:   NewReserves(p.Reserves),
		Seq:        hexutil.Uint64(p.Seq),
	}
}

func (p Pool) Pool() engine.Pool {
	return engine.Pool{
		ID: p.ID,
		Config: engine.Config{
			Seed:       uint64(p.Seed),
			MintX:      p.MintX,
			MintY:      p.MintY,
			FeeBps:     p.FeeBps,
			Locked:     p.Locked,
			Authority:  p.Authority,
			LPDecimals: p.LPDecimals,
		},
		Reserves: p.Reserves.State(),
		Seq:      uint64(p.Seq),
	}
}

// PoolEvent is the notification payload of the poolEvents subscription.
type PoolEvent struct {
	Pool      engine.PoolID        `json:"pool"`
	Kind      engine.OperationKind `json:"kind"`
	Account   common.Address       `json:"account"`
	AmountX   hexutil.Uint64       `json:"amountX"`
	AmountY   hexutil.Uint64       `json:"amountY"`
	LPAmount  hexutil.Uint64       `json:"lpAmount"`
	Reserves  Reserves             `json:"reserves"`
	Seq       hexutil.Uint64       `json:"seq"`
	Timestamp int64                `json:"timestamp"`
}

func NewPoolEvent(ev engine.PoolEvent) PoolEvent {
	return PoolEvent{
		Pool:      ev.Pool,
		Kind:      ev.Kind,
		Account:   ev.Account,
		AmountX:   hexutil.Uint64(ev.AmountX),
		AmountY:   hexutil.Uint64(ev.AmountY),
		LPAmount:  hexutil.Uint64(ev.LPAmount),
		Reserves:  NewReserves(ev.Reserves),
		Seq:       hexutil.Uint64(ev.Seq),
		Timestamp: ev.Timestamp,
	}
}

func (e PoolEvent) Event() engine.PoolEvent {
	return engine.PoolEvent{
		Pool:      e.Pool,
		Kind:      e.Kind,
		Account:   e.Account,
		AmountX:   uint64(e.AmountX),
		AmountY:   uint64(e.AmountY),
		LPAmount:  uint64(e.LPAmount),
		Reserves:  e.Reserves.State(),
		Seq:       uint64(e.Seq),
		Timestamp: e.Timestamp,
	}
}
