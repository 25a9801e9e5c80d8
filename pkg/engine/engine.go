// Package engine follows a contract's logs over JSON-RPC, decodes them with the contract ABI
// and hands the results to a sink.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alitto/pond/v2"
	gethabi "github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/lynx-network/lynx-indexer/pkg/checkpoint"
	"github.com/lynx-network/lynx-indexer/pkg/redis"
	"github.com/lynx-network/lynx-indexer/pkg/retry"
	"github.com/lynx-network/lynx-indexer/pkg/rpc"
	"github.com/lynx-network/lynx-indexer/pkg/sink"
)

// ErrAlreadyStarted is returned by a second call to Start.
var ErrAlreadyStarted = errors.New("indexer already started")

// Status is a point-in-time view of the engine's progress.
type Status struct {
	Started       bool      `json:"started"`
	ChainHead     uint64    `json:"chainHead"`
	NextBlock     uint64    `json:"nextBlock"`
	EventsIndexed uint64    `json:"eventsIndexed"`
	LastSyncAt    time.Time `json:"lastSyncAt,omitzero"`
	LastError     string    `json:"lastError,omitempty"`
}

// Indexer is the event indexing engine.
type Indexer struct {
	cfg       Config
	contract  gethabi.ABI
	events    map[common.Hash]gethabi.Event
	topics    [][]common.Hash
	address   common.Address
	logger    *zap.Logger
	retry     retry.Config
	heartbeat string
	workers   int

	factory     rpc.Factory
	sink        sink.Sink
	checkpoints checkpoint.Store
	// set when sink or checkpoints were built from the config rather than supplied
	ownSink, ownCheckpoints bool

	mu    sync.Mutex
	redis *redis.Client
	registry    *prometheus.Registry
	metrics     *metrics
	pool        pond.Pool
	cron        *cron.Cron

	// owned by the sync loop after Start
	client rpc.Client
	next   uint64

	started       atomic.Bool
	head          atomic.Uint64
	nextBlock     atomic.Uint64
	eventsIndexed atomic.Uint64
	lastSync      atomic.Int64
	lastErr       atomic.Value // string
}

// New builds an engine from a merged configuration. It parses the ABI and resolves
// the events to follow but performs no I/O.
func New(cfg Config, opts ...Option) (*Indexer, error) {
	contract, err := cfg.ABI.Contract()
	if err != nil {
		return nil, err
	}
	events, err := selectEvents(contract, cfg.Events)
	if err != nil {
		return nil, err
	}
	if !common.IsHexAddress(cfg.ContractAddress) {
		return nil, fmt.Errorf("invalid contract address %q", cfg.ContractAddress)
	}

	ix := &Indexer{
		cfg:       cfg,
		contract:  contract,
		events:    events,
		address:   common.HexToAddress(cfg.ContractAddress),
		logger:    zap.NewNop(),
		retry:     retry.DefaultConfig(),
		heartbeat: "@every 1m",
		workers:   8,
	}
	for _, o := range opts {
		o(ix)
	}
	if len(events) == 0 {
		ix.logger.Warn("ABI declares no indexable events, no logs will be fetched",
			zap.String("contract", ix.address.Hex()))
	}

	ids := make([]common.Hash, 0, len(events))
	for id := range events {
		ids = append(ids, id)
	}
	ix.topics = [][]common.Hash{ids}

	if ix.factory == nil {
		ix.factory = rpc.NewFactory(rpc.Opts{})
	}
	if ix.registry == nil {
		ix.registry = prometheus.NewRegistry()
	}
	ix.metrics = newMetrics(ix.registry)
	ix.pool = pond.NewPool(ix.workers)
	ix.lastErr.Store("")
	return ix, nil
}

// Registry exposes the engine's metrics.
func (ix *Indexer) Registry() *prometheus.Registry { return ix.registry }

// Start connects to the chain, resolves the first block to index and launches the sync loop
// in the background. It returns once indexing has begun; the loop stops when ctx ends.
func (ix *Indexer) Start(ctx context.Context) error {
	if !ix.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	if err := ix.ensureOutputs(ctx); err != nil {
		ix.started.Store(false)
		return err
	}

	client, err := ix.dial(ctx)
	if err != nil {
		return ix.abort(nil, err)
	}

	head, err := client.BlockNumber(ctx)
	if err != nil {
		return ix.abort(client, fmt.Errorf("read chain head: %w", err))
	}
	next, err := ix.resolveStart(ctx, head)
	if err != nil {
		return ix.abort(client, err)
	}

	ix.client = client
	ix.next = next
	ix.head.Store(head)
	ix.nextBlock.Store(next)
	ix.metrics.chainHead.Set(float64(head))

	if err := ix.startHeartbeat(); err != nil {
		return ix.abort(client, err)
	}

	ix.logger.Info("Indexer started",
		zap.String("contract", ix.address.Hex()),
		zap.Int("events", len(ix.events)),
		zap.Uint64("head", head),
		zap.Uint64("from", next))

	go ix.run(ctx)
	return nil
}

// abort releases what a failed Start acquired so a later Start can try again.
func (ix *Indexer) abort(client rpc.Client, err error) error {
	if client != nil {
		_ = client.Close()
	}
	ix.closeRedis()
	ix.started.Store(false)
	return err
}

func (ix *Indexer) closeRedis() {
	if ix.ownSink {
		ix.sink, ix.ownSink = nil, false
	}
	if ix.ownCheckpoints {
		ix.checkpoints, ix.ownCheckpoints = nil, false
	}
	rc := ix.redisClient()
	if rc == nil {
		return
	}
	ix.setRedis(nil)
	if err := rc.Close(); err != nil {
		ix.logger.Warn("Failed to close Redis client", zap.Error(err))
	}
}

// Health reports whether the engine's external outputs are reachable.
// Without Redis there is nothing to check.
func (ix *Indexer) Health(ctx context.Context) error {
	rc := ix.redisClient()
	if rc == nil {
		return nil
	}
	return rc.Health(ctx)
}

// ensureOutputs builds the sink and checkpoint store from the config when no option supplied them.
func (ix *Indexer) ensureOutputs(ctx context.Context) error {
	needRedis := (ix.sink == nil && ix.cfg.Sink.Type == "redis") ||
		(ix.checkpoints == nil && ix.cfg.Checkpoint.Type == "redis")

	var rc *redis.Client
	if needRedis {
		var err error
		rc, err = redis.NewClient(ctx, ix.logger, ix.cfg.Redis)
		if err != nil {
			return err
		}
		ix.setRedis(rc)
	}

	if ix.sink == nil {
		ix.ownSink = true
		if rc != nil && ix.cfg.Sink.Type == "redis" {
			ix.sink = &sink.RedisSink{Client: rc, Stream: ix.cfg.Sink.Stream, Channel: ix.cfg.Sink.Channel}
		} else {
			ix.sink = &sink.LogSink{Logger: ix.logger}
		}
	}
	if ix.checkpoints == nil {
		ix.ownCheckpoints = true
		if rc != nil && ix.cfg.Checkpoint.Type == "redis" {
			ix.checkpoints = checkpoint.NewRedis(rc)
		} else {
			ix.checkpoints = checkpoint.NewMemory()
		}
	}
	return nil
}

func (ix *Indexer) dial(ctx context.Context) (rpc.Client, error) {
	var client rpc.Client
	err := retry.WithBackoff(ctx, ix.retry, ix.logger, "dial rpc", func() error {
		c, err := ix.factory.Dial(ctx, ix.cfg.Endpoints())
		if err != nil {
			return err
		}
		if ix.cfg.ChainID != 0 {
			id, err := c.ChainID(ctx)
			if err != nil {
				_ = c.Close()
				return err
			}
			if !id.IsUint64() || id.Uint64() != ix.cfg.ChainID {
				_ = c.Close()
				return retry.Permanent(fmt.Errorf("chain id mismatch: endpoint reports %s, config expects %d", id, ix.cfg.ChainID))
			}
		}
		client = c
		return nil
	})
	return client, err
}

// resolveStart picks the checkpoint, else the configured start block, else the safe head.
func (ix *Indexer) resolveStart(ctx context.Context, head uint64) (uint64, error) {
	next, ok, err := ix.checkpoints.Load(ctx, ix.cfg.Checkpoint.Key)
	if err != nil {
		return 0, fmt.Errorf("load checkpoint %s: %w", ix.cfg.Checkpoint.Key, err)
	}
	if ok {
		ix.logger.Info("Resuming from checkpoint", zap.Uint64("next", next))
		return next, nil
	}
	if ix.cfg.StartBlock > 0 {
		return ix.cfg.StartBlock, nil
	}
	return ix.safeHead(head) + 1, nil
}

func (ix *Indexer) safeHead(head uint64) uint64 {
	if head < ix.cfg.Confirmations {
		return 0
	}
	return head - ix.cfg.Confirmations
}

func (ix *Indexer) startHeartbeat() error {
	if ix.heartbeat == "" {
		return nil
	}
	ix.cron = cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger)))
	if _, err := ix.cron.AddFunc(ix.heartbeat, ix.logProgress); err != nil {
		return fmt.Errorf("heartbeat schedule %q: %w", ix.heartbeat, err)
	}
	ix.cron.Start()
	return nil
}

func (ix *Indexer) logProgress() {
	st := ix.Status()
	ix.logger.Info("Indexer progress",
		zap.Uint64("head", st.ChainHead),
		zap.Uint64("next", st.NextBlock),
		zap.Uint64("events", st.EventsIndexed),
		zap.String("lastError", st.LastError))
}

// Status returns a snapshot of the engine's progress. Safe for concurrent use.
func (ix *Indexer) Status() Status {
	st := Status{
		Started:       ix.started.Load(),
		ChainHead:     ix.head.Load(),
		NextBlock:     ix.nextBlock.Load(),
		EventsIndexed: ix.eventsIndexed.Load(),
		LastError:     ix.lastErr.Load().(string),
	}
	if ts := ix.lastSync.Load(); ts > 0 {
		st.LastSyncAt = time.Unix(0, ts).UTC()
	}
	return st
}

func (ix *Indexer) setRedis(rc *redis.Client) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.redis = rc
}

func (ix *Indexer) redisClient() *redis.Client {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.redis
}
