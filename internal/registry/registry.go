// Package registry implements the Template Registry: the authoritative
// in-memory store of active block work for a Stratum-style mining pool. It
// maintains the current block template(s) derived from an upstream coin
// daemon, hands out jobs to connected miners, and validates submitted
// shares and block candidates.
package registry

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shaftpool/templateregistry/internal/hashalgo"
	"github.com/shaftpool/templateregistry/internal/upstream"
	"github.com/shaftpool/templateregistry/pkg/crypto"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

var (
	templatesInstalled = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "registry_templates_installed_total",
		Help: "Total number of block templates installed.",
	})
	sharesAccepted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "registry_shares_accepted_total",
		Help: "Total number of accepted shares.",
	})
	sharesRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "registry_shares_rejected_total",
		Help: "Total number of rejected shares, by reason.",
	}, []string{"reason"})
	blocksFound = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "registry_blocks_found_total",
		Help: "Total number of block candidates submitted upstream.",
	})
	currentHeight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "registry_current_height",
		Help: "Height of the most recently installed template.",
	})
)

func init() {
	prometheus.MustRegister(templatesInstalled, sharesAccepted, sharesRejected, blocksFound, currentHeight)
}

// Config configures a TemplateRegistry.
type Config struct {
	Algo              hashalgo.Algorithm
	InstanceID        byte
	CoinbaseExtranonceSize int // total extranonce space in the coinbase transaction class
	PayoutScript      []byte
	SolutionBlockHash bool // when true, share records carry the block hash instead of the PoW hash
}

// OnBlockFunc is invoked once per chain-tip advance, before miners are told.
type OnBlockFunc func(prevHashHex string, height int64)

// OnTemplateFunc is invoked on every new template; cleanJobs is true for
// chain-tip advances, false for same-tip transaction-set refreshes.
type OnTemplateFunc func(cleanJobs bool)

// TemplateRegistry holds the active template set keyed by previous-hash,
// drives template refresh, and executes share validation.
type TemplateRegistry struct {
	mu         sync.RWMutex
	prevHashes map[string][]*BlockTemplate
	jobs       map[string]*BlockTemplate
	lastBlock  *BlockTemplate

	updateInProgress atomic.Bool
	lastUpdate       time.Time

	jobIDGen          JobIDGenerator
	extranonceCounter *ExtranonceCounter
	extranonce2Size   int

	algo              hashalgo.Algorithm
	hasher            hashalgo.Backend
	payoutScript      []byte
	solutionBlockHash bool

	rpc    upstream.BitcoinRPC
	logger *zap.Logger

	onBlock    OnBlockFunc
	onTemplate OnTemplateFunc
}

// New builds a registry. The registry does not fetch a template until
// Start or UpdateBlock is called.
func New(cfg Config, rpc upstream.BitcoinRPC, logger *zap.Logger, onBlock OnBlockFunc, onTemplate OnTemplateFunc) (*TemplateRegistry, error) {
	hasher, err := hashalgo.New(cfg.Algo)
	if err != nil {
		return nil, err
	}

	extranonceCounter := NewExtranonceCounter(cfg.InstanceID)
	extranonce2Size := cfg.CoinbaseExtranonceSize - extranonceCounter.Size()
	if extranonce2Size < 0 {
		return nil, fmt.Errorf("registry: coinbase extranonce size %d smaller than extranonce1 size %d", cfg.CoinbaseExtranonceSize, extranonceCounter.Size())
	}

	payoutScript := cfg.PayoutScript
	if len(payoutScript) == 0 {
		payoutScript = defaultPayoutScript
	}

	if onBlock == nil {
		onBlock = func(string, int64) {}
	}
	if onTemplate == nil {
		onTemplate = func(bool) {}
	}

	return &TemplateRegistry{
		prevHashes:        make(map[string][]*BlockTemplate),
		jobs:              make(map[string]*BlockTemplate),
		extranonceCounter: extranonceCounter,
		extranonce2Size:   extranonce2Size,
		algo:              cfg.Algo,
		hasher:            hasher,
		payoutScript:      payoutScript,
		solutionBlockHash: cfg.SolutionBlockHash,
		rpc:               rpc,
		logger:            logger.Named("registry"),
		onBlock:           onBlock,
		onTemplate:        onTemplate,
	}, nil
}

// Start fetches the first template and then refreshes on the given
// interval until ctx is canceled. Mirrors the original's one-shot
// update_block() at construction, generalized into a polling loop the way
// the rest of this pack's job managers refresh block templates.
func (r *TemplateRegistry) Start(ctx context.Context, pollInterval time.Duration) {
	r.UpdateBlock(ctx)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.UpdateBlock(ctx)
		}
	}
}

// GetNewExtranonce1 allocates a fresh extranonce1 prefix, e.g. for a newly
// subscribed connection.
func (r *TemplateRegistry) GetNewExtranonce1() []byte {
	return r.extranonceCounter.GetNewBin()
}

// Extranonce2Size returns the miner-chosen extranonce2 width in bytes.
func (r *TemplateRegistry) Extranonce2Size() int { return r.extranonce2Size }

// LastBroadcastArgs returns the mining.notify arguments from the most
// recently installed template, so newly subscribing miners don't have to
// wait for the next refresh. ok is false before the first template exists.
func (r *TemplateRegistry) LastBroadcastArgs() (args BroadcastArgs, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.lastBlock == nil {
		return BroadcastArgs{}, false
	}
	return r.lastBlock.BroadcastArgs(), true
}

// AddTemplate installs block as the current template, purging every other
// prevhash bucket. Step ordering is observable: the block callback (share
// manager) sees the new chain tip before the template callback (Stratum
// broadcast) tells miners to discard prior work.
func (r *TemplateRegistry) AddTemplate(block *BlockTemplate, height int64) {
	r.mu.Lock()

	prevhash := block.PrevHashHex
	_, known := r.prevHashes[prevhash]
	newBlock := !known
	if newBlock {
		r.prevHashes[prevhash] = nil
	}

	block.setCleanJobs(newBlock)
	r.prevHashes[prevhash] = append(r.prevHashes[prevhash], block)
	r.jobs[block.JobID] = block
	r.lastBlock = block

	for ph := range r.prevHashes {
		if ph != prevhash {
			for _, stale := range r.prevHashes[ph] {
				delete(r.jobs, stale.JobID)
			}
			delete(r.prevHashes, ph)
		}
	}

	r.mu.Unlock()

	templatesInstalled.Inc()
	currentHeight.Set(float64(height))
	r.logger.Info("new template installed",
		zap.String("prevhash", prevhash),
		zap.String("job_id", block.JobID),
		zap.Bool("new_block", newBlock),
		zap.Uint32("nbits", crypto.TargetToNBits(block.Target)),
	)

	if newBlock {
		r.onBlock(prevhash, height)
	}
	r.onTemplate(newBlock)
}

// UpdateBlock fetches a fresh template from the upstream RPC surface and
// installs it. Idempotent under concurrent calls via updateInProgress; a
// failed refresh is logged and absorbed, leaving existing templates intact.
func (r *TemplateRegistry) UpdateBlock(ctx context.Context) {
	if !r.updateInProgress.CompareAndSwap(false, true) {
		return
	}
	defer r.updateInProgress.Store(false)

	r.mu.Lock()
	r.lastUpdate = time.Now()
	r.mu.Unlock()

	start := time.Now()
	data, err := r.rpc.GetBlockTemplate(ctx)
	if err != nil {
		r.logger.Error("update_block failed", zap.Error(err))
		return
	}

	tpl := newBlockTemplate(r.jobIDGen.Next())
	if err := tpl.fillFromRPC(data, r.extranonceCounter.Size(), r.extranonce2Size, r.payoutScript); err != nil {
		r.logger.Error("fill_from_rpc failed", zap.Error(err))
		return
	}

	r.AddTemplate(tpl, data.Height)

	r.logger.Info("update finished",
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("txes", len(tpl.Transactions)),
	)
}

// GetJob returns the template for job_id iff it is present in jobs AND its
// prevhash is still current AND it appears in that prevhash's list. This
// triple check is the explicit Go rendering of the original's
// weak-reference race guard.
func (r *TemplateRegistry) GetJob(jobID string) *BlockTemplate {
	r.mu.RLock()
	defer r.mu.RUnlock()

	j, ok := r.jobs[jobID]
	if !ok {
		return nil
	}
	bucket, ok := r.prevHashes[j.PrevHashHex]
	if !ok {
		return nil
	}
	for _, candidate := range bucket {
		if candidate == j {
			return j
		}
	}
	return nil
}

// DiffToTarget maps a miner-assigned difficulty to a 256-bit target by
// dividing the algorithm's diff1 constant by difficulty. Riecoin is the
// identity mapping: its difficulty is already expressed as a prime-chain
// length target and is returned unconverted.
func (r *TemplateRegistry) DiffToTarget(difficulty float64) *big.Int {
	if r.algo == hashalgo.Riecoin {
		return big.NewInt(int64(difficulty))
	}
	if difficulty <= 0 {
		difficulty = 1
	}

	diff1 := new(big.Float).SetInt(hashalgo.Diff1(r.algo))
	target, _ := new(big.Float).Quo(diff1, big.NewFloat(difficulty)).Int(nil)
	return target
}

// shareDifficulty is the inverse of DiffToTarget: given the share's own
// proof-of-work value (a hash interpreted as a 256-bit integer, or for
// riecoin the prime chain length), it returns the difficulty that value
// represents. DiffToTarget is self-inverse (diff1/x), which is what the
// original relies on when it computes share_diff = int(diff_to_target(hash_int)).
func (r *TemplateRegistry) shareDifficulty(powInt *big.Int) float64 {
	if r.algo == hashalgo.Riecoin {
		f, _ := new(big.Float).SetInt(powInt).Float64()
		return f
	}
	if powInt.Sign() <= 0 {
		return 0
	}
	diff1 := hashalgo.Diff1(r.algo)
	q := new(big.Int).Quo(diff1, powInt)
	f, _ := new(big.Float).SetInt(q).Float64()
	return f
}

// SubmitShare validates and, where applicable, finalizes a miner-submitted
// share against jobID. extranonce1 is the connection's assigned prefix;
// extranonce2/ntime/nonce are the raw hex fields from mining.submit. diff is
// the worker's currently assigned difficulty, used for the above-target
// accept/reject boundary (separate from the network target used for the
// block-candidate check).
//
// Returns isBlockCandidate, header_hex (the serialized header plus the
// backend's record-keeping padding), the primary hash for share-accounting
// (the block hash when solutionBlockHash is set, otherwise the PoW value),
// shareDiff (the difficulty the share's own PoW value represents), and a
// *SubmitError describing why the share was rejected.
func (r *TemplateRegistry) SubmitShare(jobID string, extranonce1 []byte, extranonce2, ntime, nonce string, diff float64) (isBlockCandidate bool, headerHex, primaryHashHex string, shareDiff float64, err error) {
	reject := func(reason Reason, format string, args ...interface{}) (bool, string, string, float64, error) {
		sharesRejected.WithLabelValues(string(reason)).Inc()
		return false, "", "", 0, newSubmitError(reason, format, args...)
	}

	if len(extranonce2) != r.extranonce2Size*2 {
		return reject(ReasonBadExtranonce2Size, "incorrect size of extranonce2: expected %d hex chars, got %d", r.extranonce2Size*2, len(extranonce2))
	}

	job := r.GetJob(jobID)
	if job == nil {
		return reject(ReasonJobNotFound, "job %q not found", jobID)
	}

	ntimeHexLen := 8
	nonceHexLen := 8
	if r.algo == hashalgo.Riecoin {
		ntimeHexLen = 16
		nonceHexLen = 64
	}

	if len(ntime) != ntimeHexLen {
		return reject(ReasonBadNTimeSize, "incorrect size of ntime: expected %d hex chars, got %d", ntimeHexLen, len(ntime))
	}
	ntimeVal, decErr := parseHexUint32(ntime)
	if decErr != nil {
		return reject(ReasonBadNTimeSize, "ntime is not valid hex: %v", decErr)
	}
	if !job.CheckNTime(ntimeVal) {
		return reject(ReasonNTimeOutOfRange, "ntime %d out of acceptable range", ntimeVal)
	}

	if len(nonce) != nonceHexLen {
		return reject(ReasonBadNonceSize, "incorrect size of nonce: expected %d hex chars, got %d", nonceHexLen, len(nonce))
	}

	if !job.RegisterSubmit(extranonce1, extranonce2, ntime, nonce) {
		return reject(ReasonDuplicateShare, "duplicate share")
	}

	extranonce2Bin, _ := hex.DecodeString(extranonce2)
	ntimeBin, _ := hex.DecodeString(ntime)
	nonceBin, _ := hex.DecodeString(nonce)

	if r.algo == hashalgo.Riecoin {
		ntimeBin = crypto.SwapWords4(ntimeBin)
		nonceBin = crypto.SwapWords4(nonceBin)
	}

	coinbase := job.SerializeCoinbase(extranonce1, extranonce2Bin)
	coinbaseHash := crypto.DoubleSHA256(coinbase)
	merkleRoot := job.merkleTree.WithFirst(coinbaseHash)
	merkleRootInt := crypto.LEBytesToUint256(merkleRoot)

	header := job.SerializeHeader(merkleRootInt, ntimeBin, nonceBin)
	headerHex = hex.EncodeToString(header) + hex.EncodeToString(r.hasher.Padding())

	// block_hash_hex in the original: always derived from the header in its
	// wire byte order, regardless of the PoW algorithm. Used as the
	// submitblock hash and, when solutionBlockHash is set, as the primary
	// hash recorded for this share.
	reversedHeader := crypto.SwapWords4(append([]byte{}, header...))
	blockHashHex := hex.EncodeToString(crypto.ReverseBytes(crypto.DoubleSHA256(reversedHeader)))

	shareTarget := r.DiffToTarget(diff)

	var powHex string
	var powInt *big.Int

	switch backend := r.hasher.(type) {
	case hashalgo.RiecoinBackend:
		headerHashInt := crypto.LEBytesToUint256(crypto.DoubleSHA256(reversedHeader))
		nonceInt := new(big.Int).SetBytes(crypto.ReverseBytes(nonceBin))

		chainLength := backend.ProveWork(headerHashInt, job.Target, nonceInt)
		powHex = fmt.Sprintf("%d", chainLength)
		powInt = big.NewInt(chainLength)
		shareDiff = r.shareDifficulty(powInt)

		if chainLength < shareTarget.Int64() {
			sharesRejected.WithLabelValues(string(ReasonAboveTarget)).Inc()
			return false, headerHex, powHex, shareDiff, newSubmitError(ReasonAboveTarget, "chain length %d below required %d", chainLength, shareTarget.Int64())
		}

		isBlockCandidate = chainLength == 6
	case hashalgo.StandardBackend:
		digest := backend.Hash(reversedHeader, ntimeVal)
		digestInt := crypto.LEBytesToUint256(digest[:])
		powHex = crypto.Uint256ToBEHex(digestInt)
		powInt = digestInt
		shareDiff = r.shareDifficulty(powInt)

		if digestInt.Cmp(shareTarget) > 0 {
			sharesRejected.WithLabelValues(string(ReasonAboveTarget)).Inc()
			return false, headerHex, powHex, shareDiff, newSubmitError(ReasonAboveTarget, "share hash above target")
		}

		isBlockCandidate = digestInt.Cmp(job.Target) <= 0
	default:
		return false, "", "", 0, fmt.Errorf("registry: backend %T implements neither StandardBackend nor RiecoinBackend", r.hasher)
	}

	sharesAccepted.Inc()
	if shareDiff > 100000 {
		r.logger.Debug("share above debug threshold", zap.String("job_id", jobID), zap.Float64("share_diff", shareDiff))
	}

	primaryHashHex = powHex
	if r.solutionBlockHash {
		primaryHashHex = blockHashHex
	}

	if isBlockCandidate {
		job.Finalize(merkleRootInt, extranonce1, extranonce2Bin, ntimeBin, nonceBin)
		if !job.IsValid() {
			r.logger.Error("finalized block candidate failed self-check", zap.String("job_id", jobID))
			return false, headerHex, primaryHashHex, shareDiff, fmt.Errorf("registry: block candidate failed internal validity check")
		}

		blockHex := hex.EncodeToString(job.Serialize())

		rejected, submitErr := r.rpc.SubmitBlock(context.Background(), blockHex, blockHashHex, powHex)
		if submitErr != nil {
			r.logger.Error("submitblock failed", zap.Error(submitErr), zap.String("job_id", jobID))
		} else if rejected {
			r.logger.Error("submitblock rejected by daemon", zap.String("job_id", jobID))
		} else {
			blocksFound.Inc()
			r.logger.Info("block candidate submitted", zap.String("job_id", jobID), zap.String("block_hash", blockHashHex))
		}

		go r.UpdateBlock(context.Background())
	}

	return isBlockCandidate, headerHex, primaryHashHex, shareDiff, nil
}
