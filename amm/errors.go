package amm

import (
	"context"
	"errors"

	errorsmod "cosmossdk.io/errors"
	"github.com/defistate/defistate-amm-go/ledger"
	"github.com/defistate/defistate-amm-go/protocols/constantproduct/calculator"
)

// Codespace is the error codespace of every error registered by this package.
const Codespace = "amm"

// Pool operation errors. Callers match them with errors.Is.
var (
	ErrInvalidAmount      = errorsmod.Register(Codespace, 1, "invalid amount")
	ErrInvalidFee         = errorsmod.Register(Codespace, 2, "invalid fee")
	ErrSlippageExceeded   = errorsmod.Register(Codespace, 3, "slippage exceeded")
	ErrPoolLocked         = errorsmod.Register(Codespace, 4, "pool is locked")
	ErrArithmeticOverflow = errorsmod.Register(Codespace, 5, "arithmetic overflow")
	ErrDivisionByZero     = errorsmod.Register(Codespace, 6, "division by zero")
	ErrUnauthorized       = errorsmod.Register(Codespace, 7, "unauthorized")
	ErrDuplicatePool      = errorsmod.Register(Codespace, 8, "pool already exists")
	ErrInsufficientFunds  = errorsmod.Register(Codespace, 9, "insufficient funds")
	ErrInsufficientShares = errorsmod.Register(Codespace, 10, "insufficient lp shares")
	ErrPoolNotFound       = errorsmod.Register(Codespace, 11, "pool not found")
	ErrInvalidMint        = errorsmod.Register(Codespace, 12, "invalid mint")
)

var registered = []*errorsmod.Error{
	ErrInvalidAmount,
	ErrInvalidFee,
	ErrSlippageExceeded,
	ErrPoolLocked,
	ErrArithmeticOverflow,
	ErrDivisionByZero,
	ErrUnauthorized,
	ErrDuplicatePool,
	ErrInsufficientFunds,
	ErrInsufficientShares,
	ErrPoolNotFound,
	ErrInvalidMint,
}

// ErrorByCode returns the registered error with the given code.
func ErrorByCode(code uint32) (*errorsmod.Error, bool) {
	for _, e := range registered {
		if e.ABCICode() == code {
			return e, true
		}
	}
	return nil, false
}

// Code returns the registered code carried by err, or 0 when err is not (or
// does not wrap) one of this package's errors.
func Code(err error) uint32 {
	for _, e := range registered {
		if errors.Is(err, e) {
			return e.ABCICode()
		}
	}
	return 0
}

// translations maps collaborator sentinels onto registered errors.
var translations = []struct {
	from error
	to   *errorsmod.Error
}{
	{calculator.ErrInvalidAmount, ErrInvalidAmount},
	{calculator.ErrInvalidFee, ErrInvalidFee},
	{calculator.ErrArithmeticOverflow, ErrArithmeticOverflow},
	{calculator.ErrDivisionByZero, ErrDivisionByZero},
	{ledger.ErrInsufficientFunds, ErrInsufficientFunds},
	{ledger.ErrInsufficientShares, ErrInsufficientShares},
	{ledger.ErrInsufficientReserves, ErrInvalidAmount},
	{ledger.ErrPoolNotFound, ErrPoolNotFound},
	{ledger.ErrDuplicatePool, ErrDuplicatePool},
	{ledger.ErrUnknownAsset, ErrInvalidMint},
	{ledger.ErrOverflow, ErrArithmeticOverflow},
}

// translate converts calculator and ledger errors into registered errors,
// keeping the original message as context. Registered errors, context errors
// and nil pass through unchanged.
func translate(err error) error {
	if err == nil || Code(err) != 0 {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	for _, t := range translations {
		if errors.Is(err, t.from) {
			return errorsmod.Wrap(t.to, err.Error())
		}
	}
	return err
}
