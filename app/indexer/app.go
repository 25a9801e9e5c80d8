package indexer

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"
)

// Process exit codes.
const (
	ExitOK      = 0
	ExitFailure = 1
)

type App struct {
	Sequencer *Sequencer
	Shutdown  *ShutdownController
	Logger    *zap.Logger
	// Server is set once the status server is listening.
	Server *http.Server
}

// Initialize wires the production bootstrap sequence to already armed signal listeners.
func Initialize(logger *zap.Logger, shutdown *ShutdownController) *App {
	shutdown.UseLogger(logger)
	return &App{
		Sequencer: NewSequencer(logger),
		Shutdown:  shutdown,
		Logger:    logger,
	}
}

// Run races the bootstrap sequence against the first termination signal and returns the exit code.
// A signal wins immediately, abandoning whatever step is in flight; the engine is never stopped
// explicitly. After a successful bootstrap Run blocks until a signal arrives.
//
// ctx is handed to the bootstrap task and the engine; signals do not cancel it.
func (a *App) Run(ctx context.Context) int {
	select {
	case <-a.Shutdown.Done():
		return ExitOK
	default:
	}

	boot := make(chan error, 1)
	go func() {
		_, err := a.Sequencer.Run(ctx)
		boot <- err
	}()

	select {
	case <-a.Shutdown.Done():
		return ExitOK
	case err := <-boot:
		if err != nil {
			a.reportFailure(err)
			return ExitFailure
		}
	}

	a.Logger.Info("Indexer is running")
	a.serveStatus()

	<-a.Shutdown.Done()
	return ExitOK
}

func (a *App) reportFailure(err error) {
	fields := []zap.Field{zap.String("detail", describe(err))}
	var bootErr *BootstrapError
	if errors.As(err, &bootErr) {
		fields = append(fields,
			zap.Stringer("kind", bootErr.Kind),
			zap.Stringer("step", bootErr.Step))
		if bootErr.Path != "" {
			fields = append(fields, zap.String("path", bootErr.Path))
		}
	}
	a.Logger.Error(fmt.Sprintf("Failed to start indexer: %s", err), fields...)
}
