package amm

import (
	"errors"

	errorsmod "cosmossdk.io/errors"
	"github.com/defistate/defistate-amm-go/engine"
	"github.com/defistate/defistate-amm-go/protocols/constantproduct/calculator"
)

// The plan functions hold every precondition of an operation. They run on a
// consistent snapshot of the pool before any ledger mutation, and are shared
// by the mutating operations and their quotes.

func checkActive(cfg engine.Config) error {
	if cfg.Locked {
		return errorsmod.Wrapf(ErrPoolLocked, "pool %s", cfg.ID())
	}
	return nil
}

func planDeposit(cfg engine.Config, rs engine.ReserveState, lpAmount, maxX, maxY uint64) (calculator.Amounts, error) {
	if err := checkActive(cfg); err != nil {
		return calculator.Amounts{}, err
	}
	if lpAmount == 0 {
		return calculator.Amounts{}, errorsmod.Wrap(ErrInvalidAmount, "lp amount is zero")
	}

	amounts, err := calculator.DepositAmounts(rs.ReserveX, rs.ReserveY, rs.LPSupply, lpAmount, maxX, maxY, cfg.LPDecimals)
	if err != nil {
		return calculator.Amounts{}, translate(err)
	}
	if amounts.X > maxX || amounts.Y > maxY {
		return calculator.Amounts{}, errorsmod.Wrapf(ErrSlippageExceeded,
			"deposit needs (%d, %d), max (%d, %d)", amounts.X, amounts.Y, maxX, maxY)
	}
	if amounts.X == 0 || amounts.Y == 0 {
		return calculator.Amounts{}, errorsmod.Wrapf(ErrInvalidAmount,
			"deposit of (%d, %d) would issue unbacked lp shares", amounts.X, amounts.Y)
	}
	if _, err := shiftReserves(rs, amounts, lpAmount, calculator.Add); err != nil {
		return calculator.Amounts{}, err
	}
	return amounts, nil
}

// shiftReserves applies op to each reserve and the lp supply, failing with
// ErrArithmeticOverflow rather than wrapping.
func shiftReserves(rs engine.ReserveState, amounts calculator.Amounts, lpAmount uint64, op func(a, b uint64) (uint64, error)) (engine.ReserveState, error) {
	var (
		out engine.ReserveState
		err error
	)
	if out.ReserveX, err = op(rs.ReserveX, amounts.X); err != nil {
		return engine.ReserveState{}, errorsmod.Wrap(translate(err), "reserve x")
	}
	if out.ReserveY, err = op(rs.ReserveY, amounts.Y); err != nil {
		return engine.ReserveState{}, errorsmod.Wrap(translate(err), "reserve y")
	}
	if out.LPSupply, err = op(rs.LPSupply, lpAmount); err != nil {
		return engine.ReserveState{}, errorsmod.Wrap(translate(err), "lp supply")
	}
	return out, nil
}

// planWithdraw computes a withdrawal without the caller's minimums; Withdraw
// checks those on top.
func planWithdraw(cfg engine.Config, rs engine.ReserveState, lpAmount uint64) (calculator.Amounts, error) {
	if err := checkActive(cfg); err != nil {
		return calculator.Amounts{}, err
	}
	if lpAmount == 0 {
		return calculator.Amounts{}, errorsmod.Wrap(ErrInvalidAmount, "lp amount is zero")
	}

	amounts, err := calculator.WithdrawAmounts(rs.ReserveX, rs.ReserveY, rs.LPSupply, lpAmount, cfg.LPDecimals)
	if err != nil {
		return calculator.Amounts{}, translate(err)
	}

	after, err := shiftReserves(rs, amounts, lpAmount, calculator.Sub)
	if err != nil {
		return calculator.Amounts{}, err
	}
	if !after.Consistent() {
		return calculator.Amounts{}, errorsmod.Wrapf(ErrInvalidAmount,
			"withdrawal leaves reserves (%d, %d) behind %d lp shares", after.ReserveX, after.ReserveY, after.LPSupply)
	}
	return amounts, nil
}

func checkWithdrawBounds(amounts calculator.Amounts, minX, minY uint64) error {
	if amounts.X < minX || amounts.Y < minY {
		return errorsmod.Wrapf(ErrSlippageExceeded,
			"withdrawal pays (%d, %d), min (%d, %d)", amounts.X, amounts.Y, minX, minY)
	}
	return nil
}

// reservesFor orders the pool reserves as (in, out) for a swap direction.
func reservesFor(rs engine.ReserveState, isX bool) (reserveIn, reserveOut uint64) {
	if isX {
		return rs.ReserveX, rs.ReserveY
	}
	return rs.ReserveY, rs.ReserveX
}

func planSwap(cfg engine.Config, rs engine.ReserveState, isX bool, amountIn, minOut uint64) (uint64, error) {
	if err := checkActive(cfg); err != nil {
		return 0, err
	}
	if amountIn == 0 {
		return 0, errorsmod.Wrap(ErrInvalidAmount, "amount in is zero")
	}

	reserveIn, reserveOut := reservesFor(rs, isX)
	amountOut, err := calculator.SwapOutput(reserveIn, reserveOut, amountIn, cfg.FeeBps)
	if err != nil {
		// A zero output under a positive bound is reported as slippage first.
		if errors.Is(err, calculator.ErrInvalidAmount) && minOut > 0 {
			return 0, errorsmod.Wrapf(ErrSlippageExceeded, "swap pays 0, min %d", minOut)
		}
		return 0, translate(err)
	}
	if amountOut < minOut {
		return 0, errorsmod.Wrapf(ErrSlippageExceeded, "swap pays %d, min %d", amountOut, minOut)
	}
	if amountOut >= reserveOut {
		return 0, errorsmod.Wrapf(ErrInvalidAmount, "swap of %d would drain the output reserve of %d", amountIn, reserveOut)
	}
	return amountOut, nil
}
