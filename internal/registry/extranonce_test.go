package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtranonceCounterPrefixesInstanceID(t *testing.T) {
	c := NewExtranonceCounter(0x07)

	a := c.GetNewBin()
	b := c.GetNewBin()

	assert.Len(t, a, 4)
	assert.Equal(t, byte(0x07), a[0])
	assert.Equal(t, byte(0x07), b[0])
	assert.NotEqual(t, a, b, "consecutive allocations must differ")
}
