package registry

import (
	"encoding/binary"

	"github.com/shaftpool/templateregistry/pkg/wire"
)

var coinbaseTag = []byte("/shaftpool/")

// buildCoinbase constructs a full coinbase transaction with a fixed-size
// placeholder for the miner-extensible extranonce region, and returns the
// byte offset of that region so the caller can split the transaction into
// coinbase1/coinbase2 around it. Simplified, single-output construction —
// in production this would carry a payout-script table, not one address.
func buildCoinbase(height int64, value uint64, payoutScript []byte, extranonceSize int) (tx []byte, extranonceOffset int) {
	var buf []byte

	// version
	buf = append(buf, 0x01, 0x00, 0x00, 0x00)

	// input count
	buf = append(buf, 0x01)

	// null previous output
	buf = append(buf, make([]byte, 32)...)
	buf = append(buf, 0xff, 0xff, 0xff, 0xff)

	heightScript := wire.EncodeHeight(height)
	scriptLen := len(heightScript) + len(coinbaseTag) + extranonceSize
	buf = append(buf, wire.WriteScriptLen(scriptLen)...)
	buf = append(buf, heightScript...)
	buf = append(buf, coinbaseTag...)

	extranonceOffset = len(buf)
	buf = append(buf, make([]byte, extranonceSize)...)

	// sequence
	buf = append(buf, 0xff, 0xff, 0xff, 0xff)

	// output count
	buf = append(buf, 0x01)

	valueBytes := make([]byte, 8)
	binary.LittleEndian.PutUint64(valueBytes, value)
	buf = append(buf, valueBytes...)

	buf = append(buf, wire.WriteScriptLen(len(payoutScript))...)
	buf = append(buf, payoutScript...)

	// locktime
	buf = append(buf, 0x00, 0x00, 0x00, 0x00)

	return buf, extranonceOffset
}

// defaultPayoutScript is a placeholder P2PKH-shaped scriptPubKey used when
// the coin-daemon config doesn't supply a real pool payout address. Real
// deployments must configure a payout script; this exists only so a
// template can be built and tested without one.
var defaultPayoutScript = append([]byte{0x76, 0xa9, 0x14}, append(make([]byte, 20), 0x88, 0xac)...)
