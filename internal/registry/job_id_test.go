package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJobIDGeneratorDistinctUnderWrap(t *testing.T) {
	var gen JobIDGenerator
	seen := make(map[string]struct{}, 65534)

	for i := 0; i < 65534; i++ {
		id := gen.Next()
		_, dup := seen[id]
		assert.False(t, dup, "duplicate id %q at call %d", id, i)
		seen[id] = struct{}{}
	}
}

func TestJobIDGeneratorWrapsToOne(t *testing.T) {
	var gen JobIDGenerator
	gen.counter = 0xfffe // next call lands on 0xffff, which wraps to 1

	id := gen.Next()
	assert.Equal(t, "1", id)
}
