package rpc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRefillCreditsEveryElapsedInterval(t *testing.T) {
	c := NewHTTPWithOpts(Opts{Endpoints: []string{"http://node.test"}, RPS: 10, Burst: 5})
	c.tokens = 0
	c.lastRefill = time.Now().Add(-350 * time.Millisecond)

	c.refill()
	require.Equal(t, int64(3), c.tokens)
	// the 50ms remainder carries over to the next refill
	require.WithinDuration(t, time.Now().Add(-50*time.Millisecond), c.lastRefill, 20*time.Millisecond)
}

func TestRefillCapsAtBurstAfterIdle(t *testing.T) {
	c := NewHTTPWithOpts(Opts{Endpoints: []string{"http://node.test"}, RPS: 10, Burst: 5})
	c.tokens = 1
	c.lastRefill = time.Now().Add(-time.Hour)

	c.refill()
	require.Equal(t, int64(5), c.tokens)

	for range 5 {
		require.True(t, c.take())
	}
	require.False(t, c.take())
}
