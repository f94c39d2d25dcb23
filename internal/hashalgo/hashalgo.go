// Package hashalgo implements the proof-of-work backends the registry can
// be configured with. The backend is chosen once, at registry construction,
// from config — never switched at runtime.
package hashalgo

import (
	"fmt"
	"math/big"
)

// Algorithm names a supported coin-daemon proof-of-work algorithm.
type Algorithm string

const (
	SHA256D    Algorithm = "sha256d"
	Scrypt     Algorithm = "scrypt"
	ScryptJane Algorithm = "scrypt-jane"
	Quark      Algorithm = "quark"
	Skeinhash  Algorithm = "skeinhash"
	Riecoin    Algorithm = "riecoin"
)

// Backend is the common surface every proof-of-work algorithm implements.
type Backend interface {
	Algorithm() Algorithm

	// Padding is appended, hex-encoded, to header_hex in the share record.
	// Empty for sha256d.
	Padding() []byte
}

// StandardBackend covers every algorithm except riecoin: a pure function
// from the word-reversed 80-byte header (plus, for scrypt-jane, ntime) to a
// 32-byte digest compared directly against a target.
type StandardBackend interface {
	Backend
	Hash(header []byte, ntime uint32) [32]byte
}

// RiecoinBackend has a distinct signature: it returns a prime-chain length
// rather than a digest, and consults the network target and nonce directly.
type RiecoinBackend interface {
	Backend
	ProveWork(headerHashInt *big.Int, target *big.Int, nonce *big.Int) int64
}

// New constructs the backend for algo.
func New(algo Algorithm) (Backend, error) {
	switch algo {
	case "", SHA256D:
		return sha256dBackend{}, nil
	case Scrypt:
		return scryptBackend{}, nil
	case ScryptJane:
		return scryptJaneBackend{}, nil
	case Quark:
		return quarkBackend{}, nil
	case Skeinhash:
		return skeinBackend{}, nil
	case Riecoin:
		return riecoinBackend{}, nil
	default:
		return nil, fmt.Errorf("hashalgo: unknown algorithm %q", algo)
	}
}

// Diff1 returns the algorithm-specific 256-bit constant representing
// difficulty 1, per the registry's diff_to_target mapping. Riecoin has no
// diff1 constant: its difficulty is already a prime-chain target.
func Diff1(algo Algorithm) *big.Int {
	hex := ""
	switch algo {
	case Scrypt, ScryptJane:
		hex = "0000ffff00000000000000000000000000000000000000000000000000000000"
	case Quark:
		hex = "000000ffff000000000000000000000000000000000000000000000000000000"
	default:
		hex = "00000000ffff0000000000000000000000000000000000000000000000000000"
	}
	n, _ := new(big.Int).SetString(hex, 16)
	return n
}
