package registry

import (
	"testing"

	"github.com/shaftpool/templateregistry/pkg/crypto"
	"github.com/stretchr/testify/assert"
)

func TestMerkleTreeEmptyIsIdentity(t *testing.T) {
	tree := NewMerkleTree(nil)
	assert.Empty(t, tree.Branches())

	coinbaseHash := make([]byte, 32)
	for i := range coinbaseHash {
		coinbaseHash[i] = byte(i)
	}
	assert.Equal(t, coinbaseHash, tree.WithFirst(coinbaseHash))
}

func TestMerkleTreeMatchesDirectComputation(t *testing.T) {
	txHashes := make([][]byte, 3)
	for i := range txHashes {
		h := make([]byte, 32)
		h[0] = byte(i + 1)
		txHashes[i] = h
	}

	coinbaseHash := make([]byte, 32)
	coinbaseHash[0] = 0xff

	tree := NewMerkleTree(txHashes)
	got := tree.WithFirst(coinbaseHash)

	want := crypto.MerkleRoot(append([][]byte{coinbaseHash}, txHashes...))
	assert.Equal(t, want, got)
}
