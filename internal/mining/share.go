// Package mining adapts the template registry's broadcast and share-submit
// surface for Stratum connections: fanning out new work to subscribers and
// recording share outcomes.
package mining

import (
	"context"
	"encoding/hex"
	"time"

	"github.com/shaftpool/templateregistry/internal/config"
	"github.com/shaftpool/templateregistry/internal/registry"
	"github.com/shaftpool/templateregistry/internal/storage"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

var (
	sharesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stratum_shares_total",
		Help: "Total number of shares submitted",
	}, []string{"status"})

	shareProcessingTime = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "stratum_share_processing_seconds",
		Help:    "Share processing time in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 10),
	})

	blocksFound = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stratum_blocks_found_total",
		Help: "Total number of blocks found",
	})
)

func init() {
	prometheus.MustRegister(sharesTotal)
	prometheus.MustRegister(shareProcessingTime)
	prometheus.MustRegister(blocksFound)
}

// Share is a submitted share from a worker, as received over mining.submit.
type Share struct {
	WorkerName  string
	JobID       string
	Extranonce1 string
	Extranonce2 string
	Ntime       string
	Nonce       string
	Difficulty  float64
	SubmittedAt time.Time
	IPAddress   string
}

// ShareResult is the outcome of validating a Share.
type ShareResult struct {
	Valid        bool
	BlockHash    string
	HeaderHex    string
	IsBlock      bool
	RejectReason string
	RejectCode   registry.Reason
	ShareDiff    float64
}

// ShareRecorder submits shares to the template registry for validation and
// persists the outcome. The registry owns every consensus-critical check
// (job lookup, ntime window, duplicate detection, target comparison,
// block-candidate submission); this type is purely a persistence and
// metrics wrapper around it.
type ShareRecorder struct {
	cfg      config.MiningConfig
	logger   *zap.Logger
	redis    *storage.RedisClient
	postgres *storage.PostgresClient
	registry *registry.TemplateRegistry
}

// NewShareRecorder builds a ShareRecorder over reg.
func NewShareRecorder(cfg config.MiningConfig, logger *zap.Logger, redis *storage.RedisClient, postgres *storage.PostgresClient, reg *registry.TemplateRegistry) *ShareRecorder {
	return &ShareRecorder{
		cfg:      cfg,
		logger:   logger.Named("share"),
		redis:    redis,
		postgres: postgres,
		registry: reg,
	}
}

// Validate submits share to the registry and translates the result.
func (v *ShareRecorder) Validate(ctx context.Context, share *Share) (*ShareResult, error) {
	start := time.Now()
	defer func() {
		shareProcessingTime.Observe(time.Since(start).Seconds())
	}()

	extranonce1, err := hex.DecodeString(share.Extranonce1)
	if err != nil {
		result := &ShareResult{RejectReason: "bad extranonce1 encoding"}
		sharesTotal.WithLabelValues("invalid").Inc()
		go v.logShare(ctx, share, result)
		return result, nil
	}

	isBlock, headerHex, primaryHashHex, shareDiff, err := v.registry.SubmitShare(share.JobID, extranonce1, share.Extranonce2, share.Ntime, share.Nonce, share.Difficulty)
	result := &ShareResult{HeaderHex: headerHex, ShareDiff: shareDiff}

	if err != nil {
		if se, ok := err.(*registry.SubmitError); ok {
			result.RejectReason = se.Message
			result.RejectCode = se.Reason
		} else {
			result.RejectReason = err.Error()
		}
		sharesTotal.WithLabelValues(string(rejectStatus(err))).Inc()
		go v.logShare(ctx, share, result)
		return result, nil
	}

	result.Valid = true
	result.BlockHash = primaryHashHex
	result.IsBlock = isBlock
	sharesTotal.WithLabelValues("valid").Inc()

	if isBlock {
		blocksFound.Inc()
		v.logger.Info("block found",
			zap.String("hash", primaryHashHex),
			zap.String("worker", share.WorkerName),
		)
		go v.recordBlock(ctx, share, primaryHashHex)
	}

	go v.logShare(ctx, share, result)
	return result, nil
}

// rejectStatus maps a submit error to the low-cardinality status label used
// by sharesTotal; anything not explicitly a duplicate or stale job counts
// as a plain invalid share.
func rejectStatus(err error) string {
	se, ok := err.(*registry.SubmitError)
	if !ok {
		return "invalid"
	}
	switch se.Reason {
	case registry.ReasonDuplicateShare:
		return "duplicate"
	case registry.ReasonJobNotFound:
		return "stale"
	default:
		return "invalid"
	}
}

func (v *ShareRecorder) recordBlock(ctx context.Context, share *Share, hash string) {
	if err := v.postgres.InsertBlock(ctx, &storage.Block{
		Hash:       hash,
		WorkerName: share.WorkerName,
		FoundAt:    time.Now(),
		Confirmed:  false,
	}); err != nil {
		v.logger.Error("failed to insert block", zap.Error(err))
	}
}

func (v *ShareRecorder) logShare(ctx context.Context, share *Share, result *ShareResult) {
	dbShare := &storage.Share{
		WorkerName:   share.WorkerName,
		JobID:        share.JobID,
		Difficulty:   share.Difficulty,
		ShareDiff:    result.ShareDiff,
		Valid:        result.Valid,
		IsBlock:      result.IsBlock,
		BlockHash:    result.BlockHash,
		HeaderHex:    result.HeaderHex,
		RejectReason: result.RejectCode,
		IPAddress:    share.IPAddress,
		SubmittedAt:  share.SubmittedAt,
	}

	if err := v.postgres.InsertShare(ctx, dbShare); err != nil {
		v.logger.Error("failed to insert share", zap.Error(err))
	}
}
