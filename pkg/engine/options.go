package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/lynx-network/lynx-indexer/pkg/checkpoint"
	"github.com/lynx-network/lynx-indexer/pkg/retry"
	"github.com/lynx-network/lynx-indexer/pkg/rpc"
	"github.com/lynx-network/lynx-indexer/pkg/sink"
)

// Option customizes an Indexer. Anything not supplied is built from the Config at Start.
type Option func(*Indexer)

func WithLogger(l *zap.Logger) Option { return func(ix *Indexer) { ix.logger = l } }

func WithRPCFactory(f rpc.Factory) Option { return func(ix *Indexer) { ix.factory = f } }

func WithSink(s sink.Sink) Option { return func(ix *Indexer) { ix.sink = s } }

func WithCheckpoints(s checkpoint.Store) Option { return func(ix *Indexer) { ix.checkpoints = s } }

func WithRetry(c retry.Config) Option { return func(ix *Indexer) { ix.retry = c } }

// WithRegistry registers the engine's metrics on reg instead of a private registry.
func WithRegistry(reg *prometheus.Registry) Option { return func(ix *Indexer) { ix.registry = reg } }

// WithHeartbeat sets the cron spec of the progress log line. Empty disables it.
func WithHeartbeat(spec string) Option { return func(ix *Indexer) { ix.heartbeat = spec } }

// WithWorkers bounds the decode pool.
func WithWorkers(n int) Option { return func(ix *Indexer) { ix.workers = n } }
