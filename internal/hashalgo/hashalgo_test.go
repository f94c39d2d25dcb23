package hashalgo

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSelectsBackend(t *testing.T) {
	cases := []struct {
		algo      Algorithm
		wantAlgo  Algorithm
		wantKind  string
		paddedLen int
	}{
		{"", SHA256D, "standard", 0},
		{SHA256D, SHA256D, "standard", 0},
		{Scrypt, Scrypt, "standard", 48},
		{ScryptJane, ScryptJane, "standard", 48},
		{Quark, Quark, "standard", 48},
		{Skeinhash, Skeinhash, "standard", 0},
		{Riecoin, Riecoin, "riecoin", 16},
	}

	for _, tc := range cases {
		backend, err := New(tc.algo)
		require.NoError(t, err)
		assert.Equal(t, tc.wantAlgo, backend.Algorithm())
		assert.Len(t, backend.Padding(), tc.paddedLen)

		switch tc.wantKind {
		case "standard":
			_, ok := backend.(StandardBackend)
			assert.True(t, ok, "expected StandardBackend for %s", tc.algo)
		case "riecoin":
			_, ok := backend.(RiecoinBackend)
			assert.True(t, ok, "expected RiecoinBackend for %s", tc.algo)
		}
	}
}

func TestNewRejectsUnknownAlgorithm(t *testing.T) {
	_, err := New("not-an-algorithm")
	assert.Error(t, err)
}

func TestStandardBackendsAreDeterministic(t *testing.T) {
	header := make([]byte, 80)
	for i := range header {
		header[i] = byte(i)
	}

	for _, algo := range []Algorithm{SHA256D, Scrypt, ScryptJane, Quark, Skeinhash} {
		backend, err := New(algo)
		require.NoError(t, err)
		std := backend.(StandardBackend)

		h1 := std.Hash(header, 1700000000)
		h2 := std.Hash(header, 1700000000)
		assert.Equal(t, h1, h2, "%s hash must be deterministic", algo)
	}
}

func TestRiecoinProveWorkIsNonNegative(t *testing.T) {
	backend, err := New(Riecoin)
	require.NoError(t, err)
	rc := backend.(RiecoinBackend)

	hashInt := new(big.Int).SetUint64(123456789)
	target := new(big.Int).SetUint64(7)
	nonce := new(big.Int).SetUint64(42)

	length := rc.ProveWork(hashInt, target, nonce)
	assert.GreaterOrEqual(t, length, int64(0))
}

func TestDiff1Constants(t *testing.T) {
	assert.Equal(t, 0, Diff1(Quark).Cmp(Diff1(Quark)))
	assert.NotEqual(t, 0, Diff1(SHA256D).Cmp(Diff1(Scrypt)))
	assert.Equal(t, 0, Diff1(Scrypt).Cmp(Diff1(ScryptJane)))
}
