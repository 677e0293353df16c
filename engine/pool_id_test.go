package engine

import (
	"encoding/json"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	mintA = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	mintB = common.HexToAddress("0x00000000000000000000000000000000000000bb")
)

func TestDerivePoolID(t *testing.T) {
	t.Run("is deterministic", func(t *testing.T) {
		assert.Equal(t, DerivePoolID(mintA, mintB, 7), DerivePoolID(mintA, mintB, 7))
	})

	t.Run("seed distinguishes pools over the same pair", func(t *testing.T) {
		assert.NotEqual(t, DerivePoolID(mintA, mintB, 1), DerivePoolID(mintA, mintB, 2))
	})

	t.Run("pair order matters", func(t *testing.T) {
		assert.NotEqual(t, DerivePoolID(mintA, mintB, 1), DerivePoolID(mintB, mintA, 1))
	})

	t.Run("config id matches derivation", func(t *testing.T) {
		cfg := Config{Seed: 42, MintX: mintA, MintY: mintB}
		assert.Equal(t, DerivePoolID(mintA, mintB, 42), cfg.ID())
		assert.False(t, cfg.ID().IsZero())
	})
}

func TestPoolIDJSON(t *testing.T) {
	id := DerivePoolID(mintA, mintB, 99)

	data, err := json.Marshal(id)
	require.NoError(t, err)
	assert.Equal(t, `"`+id.String()+`"`, string(data))

	var decoded PoolID
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, id, decoded)

	t.Run("rejects short ids", func(t *testing.T) {
		var p PoolID
		assert.Error(t, json.Unmarshal([]byte(`"0xabcd"`), &p))
	})

	t.Run("rejects non-hex", func(t *testing.T) {
		_, err := ParsePoolID("0xzz")
		assert.Error(t, err)
	})

	t.Run("accepts bare hex", func(t *testing.T) {
		parsed, err := ParsePoolID(id.String()[2:])
		require.NoError(t, err)
		assert.Equal(t, id, parsed)
	})
}

func TestReserveState(t *testing.T) {
	testCases := []struct {
		name       string
		state      ReserveState
		virgin     bool
		consistent bool
	}{
		{"empty pool", ReserveState{}, true, true},
		{"funded pool", ReserveState{ReserveX: 10, ReserveY: 20, LPSupply: 5}, false, true},
		{"supply without reserves", ReserveState{LPSupply: 5}, false, false},
		{"reserves without supply", ReserveState{ReserveX: 1, ReserveY: 1}, false, false},
		{"one sided reserves", ReserveState{ReserveX: 1, LPSupply: 1}, false, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.virgin, tc.state.IsVirgin())
			assert.Equal(t, tc.consistent, tc.state.Consistent())
		})
	}
}

func TestConfigIsAuthority(t *testing.T) {
	authority := common.HexToAddress("0x0000000000000000000000000000000000000001")
	other := common.HexToAddress("0x0000000000000000000000000000000000000002")

	assert.True(t, Config{Authority: &authority}.IsAuthority(authority))
	assert.False(t, Config{Authority: &authority}.IsAuthority(other))
	assert.False(t, Config{}.IsAuthority(authority), "a pool without authority has no authority")
}
