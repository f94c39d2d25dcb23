package registry

import "github.com/shaftpool/templateregistry/pkg/crypto"

// MerkleTree precomputes the sibling path from the coinbase leaf to the
// Merkle root over a fixed set of non-coinbase transactions, so the root
// can be recomputed in O(log n) once the coinbase hash is known.
type MerkleTree struct {
	branches [][]byte
}

// NewMerkleTree builds the branch list from transaction hashes in internal
// (little-endian/reversed) byte order, coinbase excluded.
func NewMerkleTree(txHashes [][]byte) *MerkleTree {
	hashes := make([][]byte, len(txHashes))
	copy(hashes, txHashes)

	var branches [][]byte
	for len(hashes) > 0 {
		branches = append(branches, hashes[0])
		if len(hashes) == 1 {
			break
		}

		remaining := hashes[1:]
		var next [][]byte
		for i := 0; i < len(remaining); i += 2 {
			left := remaining[i]
			right := left
			if i+1 < len(remaining) {
				right = remaining[i+1]
			}
			combined := make([]byte, 0, 64)
			combined = append(combined, left...)
			combined = append(combined, right...)
			next = append(next, crypto.DoubleSHA256(combined))
		}
		hashes = next
	}

	return &MerkleTree{branches: branches}
}

// Branches returns the precomputed sibling hashes, coinbase-leaf-first.
func (m *MerkleTree) Branches() [][]byte { return m.branches }

// WithFirst recomputes the Merkle root given the coinbase transaction hash.
func (m *MerkleTree) WithFirst(coinbaseHash []byte) []byte {
	return crypto.CalculateMerkleRootWithCoinbase(coinbaseHash, m.branches)
}
