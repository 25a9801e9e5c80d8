// Package checkpoint persists the next block the engine should index.
package checkpoint

import (
	"context"

	"github.com/puzpuzpuz/xsync/v4"
)

// Store loads and saves per-key progress.
type Store interface {
	Load(ctx context.Context, key string) (uint64, bool, error)
	Save(ctx context.Context, key string, next uint64) error
}

// Memory keeps checkpoints for the lifetime of the process.
type Memory struct {
	m *xsync.Map[string, uint64]
}

func NewMemory() *Memory {
	return &Memory{m: xsync.NewMap[string, uint64]()}
}

func (s *Memory) Load(_ context.Context, key string) (uint64, bool, error) {
	v, ok := s.m.Load(key)
	return v, ok, nil
}

func (s *Memory) Save(_ context.Context, key string, next uint64) error {
	s.m.Store(key, next)
	return nil
}

// Counter is the key/value surface Redis checkpoints need.
type Counter interface {
	GetUint64(ctx context.Context, key string) (uint64, bool, error)
	SetUint64(ctx context.Context, key string, value uint64) error
}

// Redis stores checkpoints as plain integer keys so they survive restarts.
type Redis struct {
	c Counter
}

func NewRedis(c Counter) *Redis {
	return &Redis{c: c}
}

func (s *Redis) Load(ctx context.Context, key string) (uint64, bool, error) {
	return s.c.GetUint64(ctx, key)
}

func (s *Redis) Save(ctx context.Context, key string, next uint64) error {
	return s.c.SetUint64(ctx, key, next)
}
