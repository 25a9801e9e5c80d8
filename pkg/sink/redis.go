package sink

import (
	"context"
	"encoding/json"
	"fmt"
)

// StreamWriter is the part of the Redis client RedisSink needs.
type StreamWriter interface {
	XAdd(ctx context.Context, stream string, values map[string]interface{}) (string, error)
	Publish(ctx context.Context, channel string, message interface{})
}

// RedisSink appends events to a Redis stream and, when Channel is set,
// announces each entry on a Pub/Sub channel.
type RedisSink struct {
	Client  StreamWriter
	Stream  string
	Channel string
}

func (s *RedisSink) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", ev.ID(), err)
	}
	id, err := s.Client.XAdd(ctx, s.Stream, map[string]interface{}{
		"id":    ev.ID(),
		"event": ev.Name,
		"block": ev.BlockNumber,
		"data":  payload,
	})
	if err != nil {
		return err
	}
	if s.Channel != "" {
		s.Client.Publish(ctx, s.Channel, fmt.Sprintf(`{"streamId":%q,"event":%q,"block":%d}`, id, ev.Name, ev.BlockNumber))
	}
	return nil
}
