package hashalgo

import (
	"encoding/hex"

	"golang.org/x/crypto/scrypt"
)

// headerPadding47 is the opaque 48-byte record-keeping suffix appended to
// header_hex for algorithms that share the Litecoin-derived scrypt/quark
// header shape.
var headerPadding47, _ = hex.DecodeString(
	"000000800000000000000000000000000000000000000000000000000000000000000000000000000000000080020000")

type scryptBackend struct{}

func (scryptBackend) Algorithm() Algorithm { return Scrypt }
func (scryptBackend) Padding() []byte      { return headerPadding47 }

// Hash computes ltc_scrypt's proof-of-work hash: scrypt(N=1024, r=1, p=1)
// keyed by the header itself, as used by Litecoin and its derivatives.
func (scryptBackend) Hash(header []byte, _ uint32) [32]byte {
	var out [32]byte
	digest, err := scrypt.Key(header, header, 1024, 1, 1, 32)
	if err != nil {
		// scrypt only errors on invalid N/r/p, which are fixed constants here.
		panic(err)
	}
	copy(out[:], digest)
	return out
}

type scryptJaneBackend struct{}

func (scryptJaneBackend) Algorithm() Algorithm { return ScryptJane }
func (scryptJaneBackend) Padding() []byte      { return headerPadding47 }

// Hash computes yac_scrypt's proof-of-work hash: scrypt keyed by the header,
// with N chosen from ntime. This N-selection schedule is a simplified
// stand-in for Yacoin's exact Nfactor table: nFactor is one plus the number
// of whole days elapsed since chainStart, capped at 20, and N is
// 2^(9 + nFactor mod 11). N is 2^10 up to one day in, reaches 2^19 after
// nine whole days, falls to 2^9 after ten, and stays at 2^18 once nineteen
// whole days have elapsed; it is not monotonic in ntime.
func (scryptJaneBackend) Hash(header []byte, ntime uint32) [32]byte {
	var out [32]byte
	n := scryptJaneN(ntime)
	digest, err := scrypt.Key(header, header, n, 1, 1, 32)
	if err != nil {
		panic(err)
	}
	copy(out[:], digest)
	return out
}

func scryptJaneN(ntime uint32) int {
	const chainStart = 1367991200 // Yacoin genesis-era epoch baseline
	const nFactorInterval = 1 * 24 * 60 * 60

	if ntime <= chainStart {
		return 1 << 10
	}
	nFactor := 1 + (ntime-chainStart)/nFactorInterval
	if nFactor > 20 {
		nFactor = 20
	}
	return 1 << (9 + nFactor%11)
}
