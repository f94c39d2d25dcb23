package registry

import (
	"encoding/binary"
	"sync/atomic"
)

// ExtranonceCounter allocates fresh extranonce1 binary prefixes, unique
// across connections of this pool instance and across instances sharing the
// same coin, by prefixing every allocation with the instance id.
type ExtranonceCounter struct {
	instanceID byte
	counter    uint32
}

// NewExtranonceCounter builds a counter for the given pool instance id,
// which must be in [0, 255].
func NewExtranonceCounter(instanceID byte) *ExtranonceCounter {
	return &ExtranonceCounter{instanceID: instanceID}
}

// Size returns the byte length of values returned by GetNewBin.
func (e *ExtranonceCounter) Size() int { return 4 }

// GetNewBin returns a fresh, unique extranonce1 binary prefix.
func (e *ExtranonceCounter) GetNewBin() []byte {
	v := atomic.AddUint32(&e.counter, 1)
	out := make([]byte, 4)
	binary.BigEndian.PutUint32(out, v)
	out[0] = e.instanceID
	return out
}
