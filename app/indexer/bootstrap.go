package indexer

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/lynx-network/lynx-indexer/pkg/abi"
	"github.com/lynx-network/lynx-indexer/pkg/config"
	"github.com/lynx-network/lynx-indexer/pkg/engine"
	"github.com/lynx-network/lynx-indexer/pkg/rpc"
	"github.com/lynx-network/lynx-indexer/pkg/utils"
)

const (
	EnvConfigPath = "CONFIG_PATH"
	EnvAbiPath    = "ABI_PATH"

	EnvWorkers    = "INDEXER_WORKERS"
	EnvRPCTimeout = "RPC_TIMEOUT"
	EnvRPCRate    = "RPC_RPS"
)

// Engine is the part of the indexing engine the bootstrap sequence drives.
type Engine interface {
	Start(ctx context.Context) error
}

// EngineFactory builds an engine from the merged configuration.
type EngineFactory func(cfg engine.Config) (Engine, error)

// ConfigSource loads the configuration record at path.
type ConfigSource func(path string) (*config.Config, error)

// NewEngineFactory returns the production factory. Pool size and RPC limits come from the
// environment; the metrics registry also carries the Go runtime and process collectors.
func NewEngineFactory(logger *zap.Logger) EngineFactory {
	return func(cfg engine.Config) (Engine, error) {
		return engine.New(cfg, engineOptions(logger)...)
	}
}

func engineOptions(logger *zap.Logger) []engine.Option {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return []engine.Option{
		engine.WithLogger(logger),
		engine.WithRegistry(reg),
		engine.WithWorkers(utils.EnvInt(EnvWorkers, 8)),
		engine.WithRPCFactory(rpc.NewFactory(rpc.Opts{
			Timeout: utils.EnvDuration(EnvRPCTimeout, 15*time.Second),
			RPS:     utils.EnvInt(EnvRPCRate, 20),
		})),
	}
}

// InstallDir is the directory holding the running binary, or "." when it cannot be determined.
func InstallDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Dir(exe)
}

// Sequencer runs the bootstrap sequence once: load config, load ABI, validate the endpoint,
// construct the engine and start it. The first failing step ends the sequence.
type Sequencer struct {
	Logger     *zap.Logger
	LoadConfig ConfigSource
	NewEngine  EngineFactory
	InstallDir string

	state    atomic.Int32
	failedIn State

	once   sync.Once
	mu     sync.Mutex
	merged *engine.Config
	engine Engine
}

// NewSequencer wires the production collaborators.
func NewSequencer(logger *zap.Logger) *Sequencer {
	return &Sequencer{
		Logger:     logger,
		LoadConfig: config.Load,
		NewEngine:  NewEngineFactory(logger),
		InstallDir: InstallDir(),
	}
}

// DefaultConfigPath is used when CONFIG_PATH is unset.
func (s *Sequencer) DefaultConfigPath() string {
	return filepath.Join(s.InstallDir, "..", "config", "config.yaml")
}

// DefaultAbiPath is used when ABI_PATH is unset.
func (s *Sequencer) DefaultAbiPath() string {
	return filepath.Join(s.InstallDir, "..", "abi", "YourContract.json")
}

// State returns the current state.
func (s *Sequencer) State() State { return State(s.state.Load()) }

// FailedIn returns the state the sequence failed in. Only meaningful once State is StateFailed.
func (s *Sequencer) FailedIn() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failedIn
}

// Merged returns the configuration handed to the engine, or nil before construction.
func (s *Sequencer) Merged() *engine.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.merged
}

// Engine returns the constructed engine, or nil before construction.
func (s *Sequencer) Engine() Engine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine
}

func (s *Sequencer) enter(st State) {
	if s.State().Terminal() {
		return
	}
	s.state.Store(int32(st))
	s.Logger.Debug("Bootstrap state", zap.Stringer("state", st))
}

func (s *Sequencer) fail(err *BootstrapError) error {
	s.mu.Lock()
	s.failedIn = s.State()
	s.mu.Unlock()
	err.Step = s.failedIn
	s.enter(StateFailed)
	return err
}

// Run executes the sequence. It may be called once; later calls return the engine
// without doing anything.
func (s *Sequencer) Run(ctx context.Context) (Engine, error) {
	var err error
	ran := false
	s.once.Do(func() {
		ran = true
		err = s.run(ctx)
	})
	if !ran {
		if s.State() == StateFailed {
			return nil, pkgerrors.New("bootstrap already failed")
		}
		return s.Engine(), nil
	}
	if err != nil {
		return nil, err
	}
	return s.Engine(), nil
}

func (s *Sequencer) run(ctx context.Context) error {
	s.enter(StateLoadingConfig)
	configPath := utils.Env(EnvConfigPath, s.DefaultConfigPath())
	s.Logger.Info("Loading config from: " + configPath)
	cfg, err := s.LoadConfig(configPath)
	if err != nil {
		return s.fail(newBootstrapError(KindConfigLoad, 0, configPath,
			pkgerrors.Wrapf(err, "failed to load config from %s", configPath)))
	}

	s.enter(StateLoadingAbi)
	abiPath := utils.Env(EnvAbiPath, s.DefaultAbiPath())
	s.Logger.Info("Loading ABI from: " + abiPath)
	if !abi.Exists(abiPath) {
		return s.fail(newBootstrapError(KindAbiNotFound, 0, abiPath,
			pkgerrors.Errorf("ABI file not found: %s. Please add your contract ABI.", abiPath)))
	}
	description, err := abi.Load(abiPath)
	if err != nil {
		return s.fail(newBootstrapError(KindAbiParse, 0, abiPath,
			pkgerrors.Wrapf(err, "failed to parse ABI %s", abiPath)))
	}

	s.enter(StateValidating)
	if err := ValidateEndpoint(cfg.RPCURL); err != nil {
		return s.fail(newBootstrapError(KindMissingEndpoint, 0, configPath, err))
	}

	s.enter(StateConstructing)
	s.Logger.Info("Initializing indexer...")
	merged := engine.Merge(*cfg, description)
	eng, err := s.NewEngine(merged)
	if err != nil {
		return s.fail(newBootstrapError(KindEngineConstruct, 0, "",
			pkgerrors.Wrap(err, "failed to construct indexer")))
	}
	s.mu.Lock()
	s.merged = &merged
	s.engine = eng
	s.mu.Unlock()

	s.enter(StateStarting)
	if err := eng.Start(ctx); err != nil {
		return s.fail(newBootstrapError(KindEngineStart, 0, "",
			pkgerrors.Wrap(err, "failed to start indexer")))
	}

	s.enter(StateRunning)
	return nil
}

// ValidateEndpoint rejects an endpoint that is empty or still holds a substitution placeholder.
func ValidateEndpoint(endpoint string) error {
	if strings.TrimSpace(endpoint) == "" {
		return pkgerrors.New("RPC_URL environment variable is required. Set it in .env file.")
	}
	if strings.Contains(endpoint, config.PlaceholderMarker) {
		return pkgerrors.Errorf("RPC_URL environment variable is required. Set it in .env file. (unresolved placeholder in rpcUrl: %s)", endpoint)
	}
	return nil
}
