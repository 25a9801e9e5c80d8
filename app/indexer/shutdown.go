package indexer

import (
	"os"
	"os/signal"
	"sync"
	"syscall"

	"go.uber.org/zap"
)

// ShutdownController owns the process termination listeners. Each signal gets its own
// channel and goroutine, registered once and kept for the life of the process.
// The first signal received closes Done.
type ShutdownController struct {
	once     sync.Once
	done     chan struct{}
	received os.Signal

	mu        sync.Mutex
	logger    *zap.Logger
	announced bool
}

// NewShutdownController registers listeners for signals, SIGTERM and SIGINT by default.
// logger may be nil when listeners have to be armed before logging is configured; see UseLogger.
func NewShutdownController(logger *zap.Logger, signals ...os.Signal) *ShutdownController {
	if len(signals) == 0 {
		signals = []os.Signal{syscall.SIGTERM, syscall.SIGINT}
	}
	c := &ShutdownController{logger: logger, done: make(chan struct{})}
	for _, sig := range signals {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, sig)
		go c.listen(ch)
	}
	return c
}

func (c *ShutdownController) listen(ch <-chan os.Signal) {
	for sig := range ch {
		c.trigger(sig)
	}
}

func (c *ShutdownController) trigger(sig os.Signal) {
	c.once.Do(func() {
		c.received = sig
		close(c.done)
		c.announce()
	})
}

// UseLogger sets the logger. A signal that arrived before any logger was set is logged now.
func (c *ShutdownController) UseLogger(logger *zap.Logger) {
	c.mu.Lock()
	c.logger = logger
	c.mu.Unlock()
	if c.Signal() != nil {
		c.announce()
	}
}

func (c *ShutdownController) announce() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.logger == nil || c.announced {
		return
	}
	c.announced = true
	c.logger.Info("Received " + signalName(c.received) + ", shutting down gracefully...")
}

// Done is closed when the first termination signal arrives.
func (c *ShutdownController) Done() <-chan struct{} { return c.done }

// Signal returns the signal that closed Done, or nil.
func (c *ShutdownController) Signal() os.Signal {
	select {
	case <-c.done:
		return c.received
	default:
		return nil
	}
}

func signalName(sig os.Signal) string {
	switch sig {
	case syscall.SIGTERM:
		return "SIGTERM"
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGHUP:
		return "SIGHUP"
	case syscall.SIGQUIT:
		return "SIGQUIT"
	default:
		return sig.String()
	}
}
