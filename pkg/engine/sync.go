package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/lynx-network/lynx-indexer/pkg/rpc"
	"github.com/lynx-network/lynx-indexer/pkg/sink"
)

// run polls until ctx ends. Errors are recorded and retried on the next tick.
func (ix *Indexer) run(ctx context.Context) {
	ticker := time.NewTicker(ix.cfg.PollInterval)
	defer ticker.Stop()
	defer func() {
		if ix.cron != nil {
			<-ix.cron.Stop().Done()
		}
		ix.pool.StopAndWait()
		if ix.client != nil {
			_ = ix.client.Close()
		}
		ix.closeRedis()
	}()

	for {
		if err := ix.syncOnce(ctx); err != nil && ctx.Err() == nil {
			ix.lastErr.Store(err.Error())
			ix.logger.Warn("Sync pass failed", zap.Uint64("next", ix.next), zap.Error(err))
			if errors.Is(err, rpc.ErrClosed) {
				ix.reconnect(ctx)
			}
		}
		select {
		case <-ctx.Done():
			ix.logger.Info("Sync loop stopped", zap.Uint64("next", ix.next))
			return
		case <-ticker.C:
		}
	}
}

func (ix *Indexer) reconnect(ctx context.Context) {
	_ = ix.client.Close()
	c, err := ix.factory.Dial(ctx, ix.cfg.Endpoints())
	if err != nil {
		ix.logger.Warn("Reconnect failed", zap.Error(err))
		return
	}
	ix.client = c
	ix.logger.Info("Reconnected to RPC endpoint")
}

// syncOnce indexes every confirmed block between the checkpoint and the current safe head.
func (ix *Indexer) syncOnce(ctx context.Context) error {
	head, err := ix.client.BlockNumber(ctx)
	if err != nil {
		ix.metrics.rpcErrors.Inc()
		return fmt.Errorf("read chain head: %w", err)
	}
	ix.head.Store(head)
	ix.metrics.chainHead.Set(float64(head))

	safe := ix.safeHead(head)
	for ix.next <= safe {
		if err := ctx.Err(); err != nil {
			return err
		}
		to := ix.next + ix.cfg.BatchSize - 1
		if to > safe {
			to = safe
		}
		if err := ix.indexRange(ctx, ix.next, to); err != nil {
			return err
		}
		if err := ix.checkpoints.Save(ctx, ix.cfg.Checkpoint.Key, to+1); err != nil {
			return fmt.Errorf("save checkpoint: %w", err)
		}
		ix.next = to + 1
		ix.nextBlock.Store(ix.next)
		ix.metrics.lastIndexed.Set(float64(to))
	}
	ix.lastSync.Store(time.Now().UnixNano())
	ix.lastErr.Store("")
	return nil
}

// indexRange fetches logs for [from, to], decodes them in parallel and publishes them in log order.
func (ix *Indexer) indexRange(ctx context.Context, from, to uint64) error {
	// An empty topic set would match every log of the contract.
	if len(ix.events) == 0 {
		return nil
	}
	logs, err := ix.client.GetLogs(ctx, rpc.LogFilter{
		FromBlock: from,
		ToBlock:   to,
		Addresses: []common.Address{ix.address},
		Topics:    ix.topics,
	})
	if err != nil {
		ix.metrics.rpcErrors.Inc()
		return fmt.Errorf("get logs %d-%d: %w", from, to, err)
	}
	if len(logs) == 0 {
		return nil
	}

	decoded := make([]sink.Event, len(logs))
	keep := make([]bool, len(logs))
	group := ix.pool.NewGroupContext(ctx)
	for i := range logs {
		group.SubmitErr(func() error {
			ev, ok, err := decodeLog(ix.events, ix.cfg.ChainID, logs[i])
			if err != nil {
				return err
			}
			decoded[i], keep[i] = ev, ok
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}

	for i, ev := range decoded {
		if !keep[i] {
			continue
		}
		if err := ix.sink.Publish(ctx, ev); err != nil {
			ix.metrics.sinkErrors.Inc()
			return fmt.Errorf("publish %s: %w", ev.ID(), err)
		}
		ix.eventsIndexed.Add(1)
		ix.metrics.eventsIndexed.WithLabelValues(ev.Name).Inc()
	}

	ix.logger.Debug("Indexed block range",
		zap.Uint64("from", from),
		zap.Uint64("to", to),
		zap.Int("logs", len(logs)))
	return nil
}
