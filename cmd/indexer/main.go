package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/lynx-network/lynx-indexer/app/indexer"
	"github.com/lynx-network/lynx-indexer/pkg/logging"
)

func main() {
	// Armed first so a signal during .env and logger setup still exits 0.
	shutdown := indexer.NewShutdownController(nil)

	// A missing .env is normal in containers.
	_ = godotenv.Load()

	logger, err := logging.New()
	if err != nil {
		if shutdown.Signal() != nil {
			os.Exit(indexer.ExitOK)
		}
		// nothing else to do here, we'll just log to stderr
		_, _ = fmt.Fprintf(os.Stderr, "unable to build logger: %v\n", err)
		os.Exit(indexer.ExitFailure)
	}

	app := indexer.Initialize(logger, shutdown)
	code := app.Run(context.Background())

	_ = logger.Sync()
	os.Exit(code)
}
