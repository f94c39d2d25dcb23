package registry

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/shaftpool/templateregistry/internal/upstream"
	"github.com/shaftpool/templateregistry/pkg/crypto"
	"github.com/shaftpool/templateregistry/pkg/wire"
)

// rollWindow bounds how far in the future a miner-supplied ntime may sit
// relative to wall clock, on top of never being older than the template's
// own ntime base. Per-algorithm policy in the original; a generous fixed
// window is used here since no algorithm in this pack needs a tighter one.
const rollWindow = 2 * time.Hour

// BroadcastArgs are the precomputed Stratum mining.notify arguments for one
// template.
type BroadcastArgs struct {
	JobID          string
	PrevHashHex    string // Stratum v1 word-swapped format
	Coinbase1Hex   string
	Coinbase2Hex   string
	MerkleBranches []string
	VersionHex     string
	NBitsHex       string
	NTimeHex       string
	CleanJobs      bool
}

// BlockTemplate is one candidate block: a job_id, coinbase split around the
// extranonce region, a precomputed Merkle path, and the duplicate-submit
// ledger for shares built against it.
type BlockTemplate struct {
	JobID       string
	PrevHashHex string // display-order hex, used as the registry grouping key
	Height      int64
	Version     uint32
	Bits        string
	NTimeBase   uint32
	Target      *big.Int

	CoinbasePrefix  []byte
	CoinbaseSuffix  []byte
	Extranonce1Size int
	Extranonce2Size int

	merkleTree   *MerkleTree
	Transactions []upstream.TemplateTx

	prevHashInternal []byte // 32 bytes, internal byte order
	broadcastArgs    BroadcastArgs

	CreatedAt time.Time

	mu      sync.Mutex
	submits map[string]struct{}

	finalized     bool
	finalHeader   []byte
	finalCoinbase []byte
}

func newBlockTemplate(jobID string) *BlockTemplate {
	return &BlockTemplate{
		JobID:     jobID,
		CreatedAt: time.Now(),
		submits:   make(map[string]struct{}),
	}
}

// fillFromRPC initializes the template from a getblocktemplate result.
func (t *BlockTemplate) fillFromRPC(data *upstream.BlockTemplateData, e1Size, e2Size int, payoutScript []byte) error {
	bitsVal, err := parseHexUint32(data.Bits)
	if err != nil {
		return fmt.Errorf("parse bits: %w", err)
	}

	prevHashDisplay, err := hex.DecodeString(data.PreviousBlockHash)
	if err != nil || len(prevHashDisplay) != 32 {
		return fmt.Errorf("invalid previousblockhash: %w", err)
	}
	internal := crypto.ReverseBytes(prevHashDisplay)
	stratumPrevHash := crypto.SwapWords4(append([]byte{}, internal...))

	coinbaseTx, extranonceOffset := buildCoinbase(data.Height, data.CoinbaseValue, payoutScript, e1Size+e2Size)

	txHashes := make([][]byte, len(data.Transactions))
	for i, tx := range data.Transactions {
		idBytes, err := hex.DecodeString(tx.TxID)
		if err != nil || len(idBytes) != 32 {
			return fmt.Errorf("invalid txid at index %d: %w", i, err)
		}
		txHashes[i] = crypto.ReverseBytes(idBytes)
	}

	t.PrevHashHex = data.PreviousBlockHash
	t.Height = data.Height
	t.Version = uint32(data.Version)
	t.Bits = data.Bits
	t.NTimeBase = data.CurTime
	t.Target = crypto.NBitsToTarget(bitsVal)
	t.CoinbasePrefix = coinbaseTx[:extranonceOffset]
	t.CoinbaseSuffix = coinbaseTx[extranonceOffset+e1Size+e2Size:]
	t.Extranonce1Size = e1Size
	t.Extranonce2Size = e2Size
	t.merkleTree = NewMerkleTree(txHashes)
	t.Transactions = data.Transactions
	t.prevHashInternal = internal

	branches := make([]string, len(t.merkleTree.Branches()))
	for i, b := range t.merkleTree.Branches() {
		branches[i] = hex.EncodeToString(b)
	}

	t.broadcastArgs = BroadcastArgs{
		JobID:          t.JobID,
		PrevHashHex:    hex.EncodeToString(stratumPrevHash),
		Coinbase1Hex:   hex.EncodeToString(t.CoinbasePrefix),
		Coinbase2Hex:   hex.EncodeToString(t.CoinbaseSuffix),
		MerkleBranches: branches,
		VersionHex:     fmt.Sprintf("%08x", t.Version),
		NBitsHex:       t.Bits,
		NTimeHex:       fmt.Sprintf("%08x", t.NTimeBase),
	}

	return nil
}

// BroadcastArgs returns the precomputed mining.notify arguments for this
// template, including the clean_jobs flag fixed at installation time.
func (t *BlockTemplate) BroadcastArgs() BroadcastArgs {
	return t.broadcastArgs
}

// setCleanJobs fixes the clean_jobs flag at template-installation time; only
// the registry's AddTemplate calls this.
func (t *BlockTemplate) setCleanJobs(v bool) {
	t.broadcastArgs.CleanJobs = v
}

// CheckNTime accepts n iff it is not older than the template's own ntime
// base and not further in the future than rollWindow.
func (t *BlockTemplate) CheckNTime(n uint32) bool {
	if n < t.NTimeBase {
		return false
	}
	maxFuture := uint32(time.Now().Add(rollWindow).Unix())
	return n <= maxFuture
}

// RegisterSubmit returns true iff this exact tuple has not been seen before
// for this template, inserting it otherwise.
func (t *BlockTemplate) RegisterSubmit(extranonce1 []byte, extranonce2, ntime, nonce string) bool {
	key := hex.EncodeToString(extranonce1) + "|" + extranonce2 + "|" + ntime + "|" + nonce

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.submits[key]; exists {
		return false
	}
	t.submits[key] = struct{}{}
	return true
}

// SerializeCoinbase rebuilds the full coinbase transaction bytes given the
// miner's extranonce1/extranonce2.
func (t *BlockTemplate) SerializeCoinbase(extranonce1, extranonce2 []byte) []byte {
	out := make([]byte, 0, len(t.CoinbasePrefix)+len(extranonce1)+len(extranonce2)+len(t.CoinbaseSuffix))
	out = append(out, t.CoinbasePrefix...)
	out = append(out, extranonce1...)
	out = append(out, extranonce2...)
	out = append(out, t.CoinbaseSuffix...)
	return out
}

// SerializeHeader builds the block header from the recomputed Merkle root
// and the miner-supplied ntime/nonce binaries. ntimeBin/nonceBin widths
// vary by algorithm (riecoin uses wider fields), so the resulting header is
// 80 bytes for standard algorithms and wider for riecoin.
func (t *BlockTemplate) SerializeHeader(merkleRootInt *big.Int, ntimeBin, nonceBin []byte) []byte {
	header := make([]byte, 0, 80)

	versionBytes := make([]byte, 4)
	versionBytes[0] = byte(t.Version)
	versionBytes[1] = byte(t.Version >> 8)
	versionBytes[2] = byte(t.Version >> 16)
	versionBytes[3] = byte(t.Version >> 24)
	header = append(header, versionBytes...)

	header = append(header, t.prevHashInternal...)
	header = append(header, crypto.Uint256ToLEBytes(merkleRootInt)...)
	header = append(header, ntimeBin...)

	bitsVal, _ := parseHexUint32(t.Bits)
	bitsBytes := make([]byte, 4)
	bitsBytes[0] = byte(bitsVal)
	bitsBytes[1] = byte(bitsVal >> 8)
	bitsBytes[2] = byte(bitsVal >> 16)
	bitsBytes[3] = byte(bitsVal >> 24)
	header = append(header, bitsBytes...)

	header = append(header, nonceBin...)
	return header
}

// Finalize commits the header fields produced by a block-candidate share
// into the template, so Serialize can produce the full block.
func (t *BlockTemplate) Finalize(merkleRootInt *big.Int, extranonce1, extranonce2, ntimeBin, nonceBin []byte) {
	t.finalCoinbase = t.SerializeCoinbase(extranonce1, extranonce2)
	t.finalHeader = t.SerializeHeader(merkleRootInt, ntimeBin, nonceBin)
	t.finalized = true
}

// IsValid is the self-check run after Finalize, immediately before
// submission. Returning false indicates an internal invariant violation —
// it should never happen and is logged, not escalated.
func (t *BlockTemplate) IsValid() bool {
	if !t.finalized {
		return false
	}
	if len(t.finalHeader) < 80 {
		return false
	}
	if len(t.finalCoinbase) == 0 {
		return false
	}
	return true
}

// Serialize produces the full block hex-ready byte stream: header,
// transaction count, finalized coinbase, then every template transaction
// in order.
func (t *BlockTemplate) Serialize() []byte {
	var out []byte
	out = append(out, t.finalHeader...)
	out = append(out, wire.WriteVarInt(uint64(1+len(t.Transactions)))...)
	out = append(out, t.finalCoinbase...)
	for _, tx := range t.Transactions {
		data, err := hex.DecodeString(tx.Data)
		if err != nil {
			continue
		}
		out = append(out, data...)
	}
	return out
}

func parseHexUint32(s string) (uint32, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return 0, err
	}
	var v uint32
	for _, c := range b {
		v = v<<8 | uint32(c)
	}
	return v, nil
}
