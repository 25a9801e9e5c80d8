// Package sink delivers decoded contract events to their destination.
package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"go.uber.org/zap"
)

// Event is one decoded contract log.
type Event struct {
	ChainID     uint64         `json:"chainId"`
	Contract    string         `json:"contract"`
	Name        string         `json:"event"`
	Signature   string         `json:"signature"`
	BlockNumber uint64         `json:"blockNumber"`
	BlockHash   string         `json:"blockHash"`
	TxHash      string         `json:"txHash"`
	TxIndex     uint           `json:"txIndex"`
	LogIndex    uint           `json:"logIndex"`
	Removed     bool           `json:"removed"`
	Args        map[string]any `json:"args"`
}

// ID is unique per log and stable across re-deliveries.
func (e Event) ID() string {
	return e.TxHash + ":" + strconv.FormatUint(uint64(e.LogIndex), 10)
}

// Sink receives events. Implementations must be safe for concurrent use.
type Sink interface {
	Publish(ctx context.Context, ev Event) error
}

// LogSink writes each event as a structured log line.
type LogSink struct {
	Logger *zap.Logger
}

func (s *LogSink) Publish(_ context.Context, ev Event) error {
	args, err := json.Marshal(ev.Args)
	if err != nil {
		return fmt.Errorf("encode args for %s: %w", ev.ID(), err)
	}
	s.Logger.Info("Contract event",
		zap.String("event", ev.Name),
		zap.String("contract", ev.Contract),
		zap.Uint64("block", ev.BlockNumber),
		zap.String("tx", ev.TxHash),
		zap.Uint("logIndex", ev.LogIndex),
		zap.ByteString("args", args))
	return nil
}
