// Package wire implements the small set of Bitcoin-style binary encodings
// needed to build and split a coinbase transaction.
package wire

import "encoding/binary"

// WriteVarInt writes a Bitcoin-style variable-length integer.
func WriteVarInt(val uint64) []byte {
	switch {
	case val < 0xfd:
		return []byte{byte(val)}
	case val <= 0xffff:
		b := make([]byte, 3)
		b[0] = 0xfd
		binary.LittleEndian.PutUint16(b[1:], uint16(val))
		return b
	case val <= 0xffffffff:
		b := make([]byte, 5)
		b[0] = 0xfe
		binary.LittleEndian.PutUint32(b[1:], uint32(val))
		return b
	default:
		b := make([]byte, 9)
		b[0] = 0xff
		binary.LittleEndian.PutUint64(b[1:], val)
		return b
	}
}

// WriteScriptLen writes a Bitcoin script length prefix.
func WriteScriptLen(length int) []byte {
	switch {
	case length < 0x4c:
		return []byte{byte(length)}
	case length <= 0xff:
		return []byte{0x4c, byte(length)}
	case length <= 0xffff:
		b := make([]byte, 3)
		b[0] = 0x4d
		binary.LittleEndian.PutUint16(b[1:], uint16(length))
		return b
	default:
		b := make([]byte, 5)
		b[0] = 0x4e
		binary.LittleEndian.PutUint32(b[1:], uint32(length))
		return b
	}
}

// EncodeHeight encodes a block height as a BIP34 coinbase script push.
func EncodeHeight(height int64) []byte {
	if height >= 1 && height < 17 {
		return []byte{byte(height + 0x50)}
	}

	var raw []byte
	h := height
	for h > 0 {
		raw = append(raw, byte(h&0xff))
		h >>= 8
	}
	if len(raw) > 0 && raw[len(raw)-1]&0x80 != 0 {
		raw = append(raw, 0x00)
	}

	out := make([]byte, 0, len(raw)+1)
	out = append(out, byte(len(raw)))
	out = append(out, raw...)
	return out
}
