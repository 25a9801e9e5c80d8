package indexer

import (
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestShutdownFirstSignalWins(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	c := newTestShutdown(zap.New(core))
	require.Nil(t, c.Signal())

	c.trigger(syscall.SIGTERM)
	c.trigger(syscall.SIGINT)

	select {
	case <-c.Done():
	default:
		t.Fatal("Done should be closed")
	}
	require.Equal(t, syscall.SIGTERM, c.Signal())
	require.Equal(t, 1, logs.Len())
	require.Equal(t, "Received SIGTERM, shutting down gracefully...", logs.All()[0].Message)
}

func TestShutdownListensForRealSignals(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	c := NewShutdownController(zap.New(core), syscall.SIGUSR1, syscall.SIGUSR2)

	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGUSR2))

	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("signal not observed")
	}
	require.Equal(t, syscall.SIGUSR2, c.Signal())
	require.Equal(t, 1, logs.FilterMessageSnippet("shutting down gracefully").Len())
}

func TestSignalName(t *testing.T) {
	require.Equal(t, "SIGINT", signalName(syscall.SIGINT))
	require.Equal(t, "SIGTERM", signalName(syscall.SIGTERM))
}

func TestShutdownLogsEarlySignalOnceLoggerArrives(t *testing.T) {
	c := newTestShutdown(nil)
	c.trigger(syscall.SIGTERM)
	require.Equal(t, syscall.SIGTERM, c.Signal())

	core, logs := observer.New(zap.InfoLevel)
	logger := zap.New(core)
	c.UseLogger(logger)
	c.UseLogger(logger)
	c.trigger(syscall.SIGINT)

	require.Equal(t, 1, logs.Len())
	require.Equal(t, "Received SIGTERM, shutting down gracefully...", logs.All()[0].Message)
}

func TestShutdownWithoutSignalLogsNothing(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	c := newTestShutdown(nil)
	c.UseLogger(zap.New(core))
	require.Nil(t, c.Signal())
	require.Zero(t, logs.Len())
}
