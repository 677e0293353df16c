package engine

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var poolIDPrefix = []byte("config")

// PoolID is the 32-byte identifier of a pool.
//
// It is derived, never chosen: keccak256("config" || mintX || mintY || le64(seed)).
// Two pools over the same pair are distinguished only by their seed, and the
// same (mintX, mintY, seed) triple always yields the same PoolID.
type PoolID [32]byte

// DerivePoolID computes the PoolID for a token pair and creator-chosen seed.
func DerivePoolID(mintX, mintY common.Address, seed uint64) PoolID {
	var seedBytes [8]byte
	binary.LittleEndian.PutUint64(seedBytes[:], seed)
	return PoolID(crypto.Keccak256Hash(poolIDPrefix, mintX.Bytes(), mintY.Bytes(), seedBytes[:]))
}

// Bytes returns the raw underlying byte slice.
func (p PoolID) Bytes() []byte {
	return p[:]
}

// String returns the hex string representation of the id, "0x" prefixed.
func (p PoolID) String() string {
	return "0x" + hex.EncodeToString(p[:])
}

// IsZero reports whether the id is the zero value.
func (p PoolID) IsZero() bool {
	return p == PoolID{}
}

// MarshalJSON serializes the id as a hex string.
func (p PoolID) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// UnmarshalJSON parses a hex string (optional "0x" prefix) into the id.
// Unlike raw keys, pool ids are always exactly 32 bytes.
func (p *PoolID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	id, err := ParsePoolID(s)
	if err != nil {
		return err
	}
	*p = id
	return nil
}

// ParsePoolID parses a 0x-prefixed or bare hex string of 32 bytes.
func ParsePoolID(s string) (PoolID, error) {
	s = strings.TrimPrefix(s, "0x")
	b, err := hex.DecodeString(s)
	if err != nil {
		return PoolID{}, err
	}
	if len(b) != len(PoolID{}) {
		return PoolID{}, errors.New("pool id must be 32 bytes")
	}
	var id PoolID
	copy(id[:], b)
	return id, nil
}
