package calculator

import (
	"errors"
	"fmt"
	"sync"

	"github.com/holiman/uint256"
)

const (
	// basisPointDivisor is a constant representing 100% in basis points (10000).
	basisPointDivisor = 10000

	// MaxLPDecimals is the largest LP share precision we can scale (10^18).
	MaxLPDecimals uint8 = 18
)

var (
	// ErrInvalidAmount is returned when a required amount is zero or a result rounds to zero.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrInvalidFee is returned when the fee is not strictly below 10000 basis points.
	ErrInvalidFee = errors.New("fee must be below 10000 basis points")
	// ErrArithmeticOverflow is returned when a result does not fit in 64 bits.
	ErrArithmeticOverflow = errors.New("arithmetic overflow")
	// ErrDivisionByZero is returned when a curve denominator is zero.
	ErrDivisionByZero = errors.New("division by zero")

	bpsDivisor = uint256.NewInt(basisPointDivisor)
)

// Amounts is a pair of asset amounts for the X and Y side of a pool.
type Amounts struct {
	X uint64 `json:"x"`
	Y uint64 `json:"y"`
}

// Calculator holds reusable uint256 objects to avoid allocations during calculations.
// Instances are NOT safe for concurrent use by themselves; they are handed out
// by calculatorPool below.
type Calculator struct {
	a, b, c   uint256.Int
	numerator uint256.Int
	quotient  uint256.Int
}

var calculatorPool = sync.Pool{
	New: func() any {
		return new(Calculator)
	},
}

// DepositAmounts returns how much of each asset must be deposited to receive
// lpAmount LP shares.
//
// On a virgin pool (no supply, no reserves) the first depositor sets the price,
// so the caller's maximums are returned unchanged. Otherwise each side is
// floor(lpAmount * reserve / lpSupply).
func DepositAmounts(reserveX, reserveY, lpSupply, lpAmount, maxX, maxY uint64, lpDecimals uint8) (Amounts, error) {
	if lpDecimals > MaxLPDecimals {
		return Amounts{}, fmt.Errorf("%w: lp decimals %d exceed %d", ErrInvalidAmount, lpDecimals, MaxLPDecimals)
	}
	if lpSupply == 0 {
		if reserveX == 0 && reserveY == 0 {
			return Amounts{X: maxX, Y: maxY}, nil
		}
		return Amounts{}, fmt.Errorf("%w: zero lp supply against reserves (%d, %d)", ErrDivisionByZero, reserveX, reserveY)
	}

	calc := calculatorPool.Get().(*Calculator)
	defer calculatorPool.Put(calc)
	return calc.proportional(reserveX, reserveY, lpSupply, lpAmount)
}

// WithdrawAmounts returns how much of each asset burning lpAmount LP shares
// releases. Rounding is always down so the pool never pays out more than the
// exact proportional share.
func WithdrawAmounts(reserveX, reserveY, lpSupply, lpAmount uint64, lpDecimals uint8) (Amounts, error) {
	if lpDecimals > MaxLPDecimals {
		return Amounts{}, fmt.Errorf("%w: lp decimals %d exceed %d", ErrInvalidAmount, lpDecimals, MaxLPDecimals)
	}
	if lpSupply == 0 {
		return Amounts{}, fmt.Errorf("%w: pool has no lp supply", ErrDivisionByZero)
	}
	if lpAmount > lpSupply {
		return Amounts{}, fmt.Errorf("%w: burning %d of %d lp shares", ErrInvalidAmount, lpAmount, lpSupply)
	}

	calc := calculatorPool.Get().(*Calculator)
	defer calculatorPool.Put(calc)
	return calc.proportional(reserveX, reserveY, lpSupply, lpAmount)
}

// SwapOutput computes the constant-product output for amountIn, after
// retaining the fee in the pool:
//
//	amountInAfterFee = floor(amountIn * (10000 - fee) / 10000)
//	amountOut        = reserveOut - floor(reserveIn * reserveOut / (reserveIn + amountInAfterFee))
func SwapOutput(reserveIn, reserveOut, amountIn uint64, feeBps uint16) (uint64, error) {
	if feeBps >= basisPointDivisor {
		return 0, fmt.Errorf("%w: got %d", ErrInvalidFee, feeBps)
	}

	calc := calculatorPool.Get().(*Calculator)
	defer calculatorPool.Put(calc)
	return calc.swapOutput(reserveIn, reserveOut, amountIn, feeBps)
}

// proportional computes floor(lpAmount * reserve / lpSupply) for both reserves.
// lpSupply must be non-zero.
func (c *Calculator) proportional(reserveX, reserveY, lpSupply, lpAmount uint64) (Amounts, error) {
	c.c.SetUint64(lpSupply)
	c.b.SetUint64(lpAmount)

	x, err := c.mulDiv(reserveX)
	if err != nil {
		return Amounts{}, fmt.Errorf("x side: %w", err)
	}
	y, err := c.mulDiv(reserveY)
	if err != nil {
		return Amounts{}, fmt.Errorf("y side: %w", err)
	}
	return Amounts{X: x, Y: y}, nil
}

// mulDiv returns floor(reserve * c.b / c.c). The 128-bit product cannot
// overflow 256 bits; only the quotient is range checked.
func (c *Calculator) mulDiv(reserve uint64) (uint64, error) {
	c.a.SetUint64(reserve)
	c.numerator.Mul(&c.a, &c.b)
	c.quotient.Div(&c.numerator, &c.c)
	if !c.quotient.IsUint64() {
		return 0, fmt.Errorf("%w: %s does not fit in 64 bits", ErrArithmeticOverflow, c.quotient.Dec())
	}
	return c.quotient.Uint64(), nil
}

func (c *Calculator) swapOutput(reserveIn, reserveOut, amountIn uint64, feeBps uint16) (uint64, error) {
	// c.b = amountIn * (10000 - fee) / 10000
	c.a.SetUint64(amountIn)
	c.b.SetUint64(uint64(basisPointDivisor - feeBps))
	c.numerator.Mul(&c.a, &c.b)
	c.b.Div(&c.numerator, bpsDivisor)

	// c.c = reserveIn + amountInAfterFee
	c.a.SetUint64(reserveIn)
	c.c.Add(&c.a, &c.b)
	if c.c.IsZero() {
		return 0, fmt.Errorf("%w: reserveIn + amountInAfterFee is zero", ErrDivisionByZero)
	}

	// quotient = reserveIn * reserveOut / (reserveIn + amountInAfterFee)
	c.b.SetUint64(reserveOut)
	c.numerator.Mul(&c.a, &c.b)
	c.quotient.Div(&c.numerator, &c.c)

	// reserveIn <= denominator, so quotient <= reserveOut and the subtraction
	// cannot underflow.
	amountOut := reserveOut - c.quotient.Uint64()
	if amountOut == 0 {
		return 0, fmt.Errorf("%w: swap of %d yields no output", ErrInvalidAmount, amountIn)
	}
	return amountOut, nil
}

// Add returns a + b, failing instead of wrapping.
func Add(a, b uint64) (uint64, error) {
	sum := new(uint256.Int).Add(uint256.NewInt(a), uint256.NewInt(b))
	if !sum.IsUint64() {
		return 0, fmt.Errorf("%w: %d + %d", ErrArithmeticOverflow, a, b)
	}
	return sum.Uint64(), nil
}

// Sub returns a - b, failing instead of wrapping below zero.
func Sub(a, b uint64) (uint64, error) {
	if b > a {
		return 0, fmt.Errorf("%w: %d - %d underflows", ErrArithmeticOverflow, a, b)
	}
	return a - b, nil
}
