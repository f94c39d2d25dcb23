// Package mining adapts the template registry's broadcast and share-submit
// surface for Stratum connections: fanning out new work to subscribers and
// recording share outcomes.
package mining

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"sync"

	"github.com/shaftpool/templateregistry/internal/registry"
	"github.com/shaftpool/templateregistry/internal/storage"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

var (
	jobsBroadcast = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stratum_jobs_broadcast_total",
		Help: "Total number of jobs broadcast to subscribers",
	})

	currentBlockHeight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "stratum_current_block_height",
		Help: "Current block height",
	})
)

func init() {
	prometheus.MustRegister(jobsBroadcast)
	prometheus.MustRegister(currentBlockHeight)
}

// Broadcaster fans out the registry's current mining.notify arguments to
// every subscribed connection, and allocates per-connection extranonce1
// prefixes. It holds no mining state of its own; the registry is the single
// source of truth.
type Broadcaster struct {
	logger   *zap.Logger
	registry *registry.TemplateRegistry
	redis    *storage.RedisClient

	subscribersMu sync.RWMutex
	subscribers   []chan registry.BroadcastArgs
}

// NewBroadcaster builds a Broadcaster over reg. Pass Broadcaster.OnTemplate
// as the registry's OnTemplateFunc so every installed template is relayed.
// redis may be nil, in which case current-job caching is skipped.
func NewBroadcaster(logger *zap.Logger, reg *registry.TemplateRegistry, redis *storage.RedisClient) *Broadcaster {
	return &Broadcaster{
		logger:   logger.Named("broadcaster"),
		registry: reg,
		redis:    redis,
	}
}

// GenerateExtranonce1 allocates a hex-encoded extranonce1 prefix for a
// newly subscribing connection.
func (b *Broadcaster) GenerateExtranonce1() string {
	return hex.EncodeToString(b.registry.GetNewExtranonce1())
}

// GetExtranonce2Size returns the miner-chosen extranonce2 width in bytes.
func (b *Broadcaster) GetExtranonce2Size() int {
	return b.registry.Extranonce2Size()
}

// GetCurrentJob returns the most recently broadcast job, if any.
func (b *Broadcaster) GetCurrentJob() (registry.BroadcastArgs, bool) {
	return b.registry.LastBroadcastArgs()
}

// OnTemplate is the registry's on_template_callback: relay the just-installed
// template to every subscriber. Wired as a registry.OnTemplateFunc at
// construction time, so cleanJobs is passed through to every client.
func (b *Broadcaster) OnTemplate(cleanJobs bool) {
	args, ok := b.registry.LastBroadcastArgs()
	if !ok {
		return
	}

	jobsBroadcast.Inc()
	b.logger.Debug("broadcasting job",
		zap.String("job_id", args.JobID),
		zap.Bool("clean_jobs", cleanJobs),
	)

	if b.redis != nil {
		if data, err := json.Marshal(args); err != nil {
			b.logger.Warn("failed to encode job for cache", zap.Error(err))
		} else if err := b.redis.CacheCurrentJob(context.Background(), args.JobID, data); err != nil {
			b.logger.Warn("failed to cache current job", zap.Error(err))
		}
	}

	b.subscribersMu.RLock()
	defer b.subscribersMu.RUnlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- args:
		default:
		}
	}
}

// OnBlock is the registry's on_block_callback, invoked once per chain-tip
// advance before OnTemplate.
func (b *Broadcaster) OnBlock(prevHashHex string, height int64) {
	currentBlockHeight.Set(float64(height))
	b.logger.Info("chain tip advanced", zap.String("prevhash", prevHashHex), zap.Int64("height", height))
}

// Subscribe returns a channel that receives every broadcast job.
func (b *Broadcaster) Subscribe() <-chan registry.BroadcastArgs {
	b.subscribersMu.Lock()
	defer b.subscribersMu.Unlock()

	ch := make(chan registry.BroadcastArgs, 10)
	b.subscribers = append(b.subscribers, ch)
	return ch
}
