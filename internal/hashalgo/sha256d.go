package hashalgo

import "github.com/shaftpool/templateregistry/pkg/crypto"

type sha256dBackend struct{}

func (sha256dBackend) Algorithm() Algorithm { return SHA256D }
func (sha256dBackend) Padding() []byte      { return nil }

func (sha256dBackend) Hash(header []byte, _ uint32) [32]byte {
	var out [32]byte
	copy(out[:], crypto.DoubleSHA256(header))
	return out
}
