// Package upstream defines the coin-daemon RPC surface the registry
// consumes: fetching block templates and submitting solved blocks.
package upstream

import "context"

// TemplateTx is one non-coinbase transaction included in a block template.
type TemplateTx struct {
	Data string // raw transaction hex
	TxID string // display-order txid as reported by the daemon
	Fee  int64
}

// BlockTemplateData is the subset of a getblocktemplate result the registry
// needs, per the external-interfaces contract: height, previousblockhash,
// transactions, coinbasevalue, target/bits, curtime, version.
type BlockTemplateData struct {
	Version           int32
	PreviousBlockHash string // display-order (big-endian) hex
	Transactions      []TemplateTx
	CoinbaseValue     uint64
	Bits              string // compact target, hex
	CurTime           uint32
	Height            int64
	WitnessCommitment string // segwit commitment, empty if not applicable
}

// BitcoinRPC is the upstream coin-daemon interface the registry depends on.
// Handshake, auth and retry policy belong to the concrete implementation,
// not to this interface.
type BitcoinRPC interface {
	// GetBlockTemplate fetches a new candidate block template.
	GetBlockTemplate(ctx context.Context) (*BlockTemplateData, error)

	// SubmitBlock submits a solved block. blockHashHex and powHashHex are
	// carried through for the daemon's own bookkeeping/logging; only
	// blockHex is meaningful to bitcoind's submitblock RPC itself. The
	// returned bool is truthy iff the daemon rejected the submission,
	// which should trigger an eager template refresh.
	SubmitBlock(ctx context.Context, blockHex, blockHashHex, powHashHex string) (rejected bool, err error)
}
