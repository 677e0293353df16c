package amm

import (
	"testing"
	"time"

	"github.com/defistate/defistate-amm-go/engine"
	"github.com/defistate/defistate-amm-go/patcher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, events <-chan engine.PoolEvent, n int) []engine.PoolEvent {
	t.Helper()
	out := make([]engine.PoolEvent, 0, n)
	for len(out) < n {
		select {
		case ev := <-events:
			out = append(out, ev)
		case <-time.After(time.Second):
			t.Fatalf("got %d of %d events", len(out), n)
		}
	}
	return out
}

// Two commits whose events reach a mirror in the reverse of commit order must
// leave the mirror at the ledger's reserves.
func TestMirrorFollowsCommitOrder(t *testing.T) {
	f := newFixture(t)
	id := f.seed(30, nil, 1000, 1000, 1000)
	f.fund(bob, 200, 0)

	events := make(chan engine.PoolEvent, 4)
	sub := f.c.SubscribeEvents(events)
	defer sub.Unsubscribe()

	before, err := f.c.Pools(f.ctx)
	require.NoError(t, err)
	require.Len(t, before, 1)
	assert.Equal(t, uint64(1), before[0].Seq)

	_, err = f.c.Swap(f.ctx, id, bob, true, 100, 0)
	require.NoError(t, err)
	_, err = f.c.Swap(f.ctx, id, bob, true, 100, 0)
	require.NoError(t, err)
	got := collect(t, events, 2)
	first, second := got[0], got[1]
	require.Less(t, first.Seq, second.Seq)

	p, err := patcher.NewStatePatcher(&patcher.StatePatcherConfig{Fetch: f.c.Pool})
	require.NoError(t, err)

	snap, err := p.Patch(f.ctx, patcher.NewSnapshot(before), second)
	require.NoError(t, err)
	_, err = p.Patch(f.ctx, snap, first)
	assert.ErrorIs(t, err, patcher.ErrStaleEvent)

	ledgerPool, err := f.c.Pool(f.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, ledgerPool, snap.Pools[id])
	assert.Equal(t, engine.ReserveState{ReserveX: 1200, ReserveY: 833, LPSupply: 1000}, ledgerPool.Reserves)

	// A reloaded snapshot already reflects both swaps.
	reloaded, err := f.c.Pools(f.ctx)
	require.NoError(t, err)
	for _, ev := range got {
		_, err = p.Patch(f.ctx, patcher.NewSnapshot(reloaded), ev)
		assert.ErrorIs(t, err, patcher.ErrStaleEvent)
	}
}
