package indexer

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/lynx-network/lynx-indexer/pkg/config"
	"github.com/lynx-network/lynx-indexer/pkg/engine"
)

const validABI = `[{"type":"event","name":"Transfer","anonymous":false,"inputs":[
  {"name":"from","type":"address","indexed":true},
  {"name":"to","type":"address","indexed":true},
  {"name":"value","type":"uint256","indexed":false}]}]`

func configYAML(endpointLine string) string {
	return endpointLine + `
chainId: 1
contractAddress: "0x00000000219ab540356cBB839Cbe05303d7705Fa"
startBlock: 1
team: indexing
`
}

func writeFile(t *testing.T, path, body string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

// setPaths points CONFIG_PATH/ABI_PATH at fresh files in a temp dir.
func setPaths(t *testing.T, configBody, abiBody string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	cfgPath := writeFile(t, filepath.Join(dir, "cfg.yaml"), configBody)
	abiPath := writeFile(t, filepath.Join(dir, "abi.json"), abiBody)
	t.Setenv(EnvConfigPath, cfgPath)
	t.Setenv(EnvAbiPath, abiPath)
	return cfgPath, abiPath
}

type fakeEngine struct {
	starts   atomic.Int32
	startErr error
	status   engine.Status
}

func (f *fakeEngine) Start(context.Context) error {
	f.starts.Add(1)
	return f.startErr
}

func (f *fakeEngine) Status() engine.Status { return f.status }

type recordingFactory struct {
	mu       sync.Mutex
	calls    int
	received []engine.Config
	engine   *fakeEngine
	err      error
}

func (r *recordingFactory) build(cfg engine.Config) (Engine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.received = append(r.received, cfg)
	if r.err != nil {
		return nil, r.err
	}
	return r.engine, nil
}

func (r *recordingFactory) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func newTestSequencer(t *testing.T, logger *zap.Logger, factory *recordingFactory) *Sequencer {
	t.Helper()
	if logger == nil {
		logger = zaptest.NewLogger(t)
	}
	return &Sequencer{
		Logger:     logger,
		LoadConfig: config.Load,
		NewEngine:  factory.build,
		InstallDir: filepath.Join(t.TempDir(), "bin"),
	}
}

func newTestShutdown(logger *zap.Logger) *ShutdownController {
	return &ShutdownController{logger: logger, done: make(chan struct{})}
}
