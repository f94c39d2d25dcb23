package registry

import (
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/shaftpool/templateregistry/internal/upstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var zeroPrevHash = strings.Repeat("00", 32)

func TestFillFromRPCSplitsCoinbaseAroundExtranonce(t *testing.T) {
	tpl := newBlockTemplate("1")
	data := &upstream.BlockTemplateData{
		Version:           0x20000000,
		PreviousBlockHash: zeroPrevHash,
		CoinbaseValue:     5000000000,
		Bits:              "1d00ffff",
		CurTime:           1700000000,
		Height:            42,
	}

	err := tpl.fillFromRPC(data, 4, 4, defaultPayoutScript)
	require.NoError(t, err)

	full := tpl.SerializeCoinbase(make([]byte, 4), make([]byte, 4))
	assert.Equal(t, len(tpl.CoinbasePrefix)+8+len(tpl.CoinbaseSuffix), len(full))
	assert.Equal(t, tpl.CoinbasePrefix, full[:len(tpl.CoinbasePrefix)])
	assert.Equal(t, tpl.CoinbaseSuffix, full[len(full)-len(tpl.CoinbaseSuffix):])
}

func TestCheckNTimeRejectsPastAndFarFuture(t *testing.T) {
	tpl := newBlockTemplate("1")
	tpl.NTimeBase = 1700000000

	assert.False(t, tpl.CheckNTime(1699999999), "ntime before template base must be rejected")
	assert.True(t, tpl.CheckNTime(tpl.NTimeBase))

	tenYearsOut := uint32(time.Now().Add(10 * 365 * 24 * time.Hour).Unix())
	assert.False(t, tpl.CheckNTime(tenYearsOut))
}

func TestRegisterSubmitIdempotent(t *testing.T) {
	tpl := newBlockTemplate("1")
	e1 := []byte{0, 0, 0, 1}

	first := tpl.RegisterSubmit(e1, "00000002", "5f5e1000", "deadbeef")
	second := tpl.RegisterSubmit(e1, "00000002", "5f5e1000", "deadbeef")

	assert.True(t, first)
	assert.False(t, second)
}

func TestSerializeHeaderLength(t *testing.T) {
	tpl := newBlockTemplate("1")
	tpl.Version = 1
	tpl.Bits = "1d00ffff"
	tpl.prevHashInternal = make([]byte, 32)

	header := tpl.SerializeHeader(big.NewInt(0), []byte{1, 2, 3, 4}, []byte{5, 6, 7, 8})
	assert.Len(t, header, 80)
}
