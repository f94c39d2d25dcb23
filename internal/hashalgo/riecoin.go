package hashalgo

import (
	"encoding/hex"
	"math/big"
)

var headerPadding15, _ = hex.DecodeString("00000080000000000000000080030000")

type riecoinBackend struct{}

func (riecoinBackend) Algorithm() Algorithm { return Riecoin }
func (riecoinBackend) Padding() []byte      { return headerPadding15 }

// ProveWork is a simplified stand-in for riecoinPoW: it counts the length of
// a Fermat pseudoprime chain starting near headerHashInt+nonce+target. The
// real Riecoin consensus rule (Cunningham/bi-twin chains of a specific kind
// and minimum length, verified by Fermat tests to a fixed base count) is
// considerably more involved; this preserves the "returns a chain length,
// block candidacy is chain length == 6" shape from the original without
// claiming consensus compatibility. See the open question on hash_int == 6.
func (riecoinBackend) ProveWork(headerHashInt *big.Int, target *big.Int, nonce *big.Int) int64 {
	base := new(big.Int).Add(headerHashInt, nonce)
	base.Add(base, target)
	if base.Bit(0) == 0 {
		base.Add(base, big.NewInt(1))
	}

	candidate := new(big.Int).Set(base)
	var length int64
	const maxChain = 12
	for length < maxChain {
		if !candidate.ProbablyPrime(20) {
			break
		}
		length++
		candidate.Lsh(candidate, 1)
		candidate.Add(candidate, big.NewInt(1))
	}
	return length
}
