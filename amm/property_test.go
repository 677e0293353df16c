package amm

import (
	"math/big"
	"testing"

	"github.com/defistate/defistate-amm-go/engine"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// TestOperationsConserveValue drives random operation sequences through the
// coordinator and checks that no asset is created or destroyed, that the pool
// stays consistent, and that failed operations leave no trace.
func TestOperationsConserveValue(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		f := newFixture(t)
		id := f.initialize(rapid.Uint16Range(0, 9999).Draw(rt, "fee"), nil)

		accounts := []common.Address{alice, bob}
		const supply = 1 << 32
		for _, a := range accounts {
			f.fund(a, supply, supply)
		}

		totals := func() (uint64, uint64) {
			rs := f.reserves(id)
			x, y := rs.ReserveX, rs.ReserveY
			for _, a := range accounts {
				x += f.balance(a, mintX)
				y += f.balance(a, mintY)
			}
			return x, y
		}

		steps := rapid.IntRange(1, 30).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			account := rapid.SampledFrom(accounts).Draw(rt, "account")
			before := f.reserves(id)

			var err error
			switch rapid.IntRange(0, 2).Draw(rt, "op") {
			case 0:
				lp := rapid.Uint64Range(0, 1<<20).Draw(rt, "lp")
				_, err = f.c.Deposit(f.ctx, id, account, lp,
					rapid.Uint64Range(0, 1<<30).Draw(rt, "maxX"),
					rapid.Uint64Range(0, 1<<30).Draw(rt, "maxY"))
			case 1:
				held := f.shares(id, account)
				_, err = f.c.Withdraw(f.ctx, id, account, rapid.Uint64Range(0, held).Draw(rt, "burn"), 0, 1)
			case 2:
				isX := rapid.Bool().Draw(rt, "isX")
				_, err = f.c.Swap(f.ctx, id, account, isX, rapid.Uint64Range(0, 1<<30).Draw(rt, "amountIn"), 0)
				if err == nil {
					checkSwapProduct(rt, before, f.reserves(id), isX)
				}
			}

			after := f.reserves(id)
			if err != nil {
				require.Equal(rt, before, after, "failed operation changed reserves: %v", err)
				require.NotZero(rt, Code(err), "unregistered error %v", err)
			}
			require.True(rt, after.Consistent(), "inconsistent reserves %+v", after)

			x, y := totals()
			require.Equal(rt, uint64(2*supply), x)
			require.Equal(rt, uint64(2*supply), y)
		}
	})
}

// checkSwapProduct asserts that one more unit of output reserve would put the
// post-swap product above the old one: the pool pays out at most what the
// curve allows.
func checkSwapProduct(t *rapid.T, before, after engine.ReserveState, isX bool) {
	inBefore, outBefore := reservesFor(before, isX)
	inAfter, outAfter := reservesFor(after, isX)

	k := new(big.Int).Mul(new(big.Int).SetUint64(inBefore), new(big.Int).SetUint64(outBefore))
	upper := new(big.Int).Mul(new(big.Int).SetUint64(inAfter), new(big.Int).SetUint64(outAfter+1))
	if upper.Cmp(k) <= 0 {
		t.Fatalf("pool paid out more than the curve allows: %+v -> %+v", before, after)
	}
	if outAfter == 0 || inAfter <= inBefore {
		t.Fatalf("swap left reserves %+v from %+v", after, before)
	}
	if after.LPSupply != before.LPSupply {
		t.Fatalf("swap changed lp supply %d -> %d", before.LPSupply, after.LPSupply)
	}
}

func TestDepositThenWithdrawReturnsNoMore(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		f := newFixture(t)
		x := rapid.Uint64Range(1, 1<<40).Draw(rt, "reserveX")
		y := rapid.Uint64Range(1, 1<<40).Draw(rt, "reserveY")
		supply := rapid.Uint64Range(1, 1<<40).Draw(rt, "lpSupply")
		id := f.seed(30, nil, x, y, supply)

		lp := rapid.Uint64Range(1, 1<<40).Draw(rt, "lp")
		f.fund(bob, 1<<62, 1<<62)
		dep, err := f.c.Deposit(f.ctx, id, bob, lp, 1<<62, 1<<62)
		if err != nil {
			require.NotZero(rt, Code(err), "unregistered error %v", err)
			return
		}

		wd, err := f.c.Withdraw(f.ctx, id, bob, lp, 0, 1)
		if err != nil {
			return
		}
		require.LessOrEqual(rt, wd.AmountX, dep.AmountX)
		require.LessOrEqual(rt, wd.AmountY, dep.AmountY)
	})
}
