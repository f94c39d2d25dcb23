package registry

import (
	"fmt"
	"sync/atomic"
)

// JobIDGenerator produces short, pseudo-unique job identifiers. Uniqueness
// does not need to be absolute: the registry sends clean_jobs to miners, so
// stale ids are simply rejected by GetJob. Scoped per Registry rather than
// process-global, so a process hosting more than one coin's registry does
// not share a counter across them.
type JobIDGenerator struct {
	counter uint64
}

// Next returns the next job id, pre-incrementing and wrapping to 1 when the
// counter reaches 0xffff. This wraps one short of a natural mod-2^16 —
// preserved intentionally, not a bug.
func (g *JobIDGenerator) Next() string {
	for {
		old := atomic.LoadUint64(&g.counter)
		next := old + 1
		if next%0xffff == 0 {
			next = 1
		}
		if atomic.CompareAndSwapUint64(&g.counter, old, next) {
			return fmt.Sprintf("%x", next)
		}
	}
}
