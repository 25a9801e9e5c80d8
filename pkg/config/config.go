// Package config loads the indexer's YAML configuration file.
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/lynx-network/lynx-indexer/pkg/utils"
)

// PlaceholderMarker opens a substitution placeholder. A value still containing it after Load
// references an environment variable that was never set.
const PlaceholderMarker = "${"

const (
	DefaultBatchSize    = 500
	DefaultPollInterval = 5 * time.Second
	DefaultStream       = "lynx:events"
	DefaultCheckpoint   = "lynx:checkpoint"
)

// Config is the configuration record handed to the engine.
type Config struct {
	// RPCURL is one endpoint or a comma separated list. http(s) and ws(s) are supported.
	// It is deliberately not validated here; the bootstrap sequence owns that check.
	RPCURL          string        `yaml:"rpcUrl"`
	ChainID         uint64        `yaml:"chainId"`
	ContractAddress string        `yaml:"contractAddress" validate:"required,eth_addr"`
	StartBlock      uint64        `yaml:"startBlock"`
	Confirmations   uint64        `yaml:"confirmations"`
	BatchSize       uint64        `yaml:"batchSize" validate:"gt=0,lte=10000"`
	PollInterval    time.Duration `yaml:"pollInterval" validate:"gt=0"`
	Events          []string      `yaml:"events" validate:"dive,required"`

	Sink       SinkConfig       `yaml:"sink"`
	Redis      RedisConfig      `yaml:"redis"`
	Checkpoint CheckpointConfig `yaml:"checkpoint"`
	Server     ServerConfig     `yaml:"server"`

	// Extra keeps keys this binary does not know about so they survive the merge.
	Extra map[string]any `yaml:",inline"`
}

type SinkConfig struct {
	Type    string `yaml:"type" validate:"oneof=log redis"`
	Stream  string `yaml:"stream"`
	Channel string `yaml:"channel"`
}

type RedisConfig struct {
	Addr         string `yaml:"addr"`
	Password     string `yaml:"password"`
	DB           int    `yaml:"db" validate:"gte=0"`
	StreamMaxLen int64  `yaml:"streamMaxLen" validate:"gte=0"`
}

type CheckpointConfig struct {
	Type string `yaml:"type" validate:"oneof=memory redis"`
	Key  string `yaml:"key"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads, substitutes, decodes, defaults and validates the file at path.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return Parse(raw)
}

// Parse is Load without the filesystem. Placeholders are substituted in scalar values after
// the document is parsed, so a substituted value can never change the document's shape.
func Parse(raw []byte) (*Config, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	var cfg Config
	if doc.Kind != 0 {
		expandNode(&doc)
		if err := doc.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	cfg.applyDefaults()
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.BatchSize == 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.PollInterval == 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.Sink.Type == "" {
		c.Sink.Type = "log"
	}
	if c.Sink.Stream == "" {
		c.Sink.Stream = DefaultStream
	}
	if c.Checkpoint.Type == "" {
		c.Checkpoint.Type = "memory"
	}
	if c.Checkpoint.Key == "" {
		c.Checkpoint.Key = fmt.Sprintf("%s:%d:%s", DefaultCheckpoint, c.ChainID, c.ContractAddress)
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = utils.Env("REDIS_ADDR", "localhost:6379")
	}
	if c.Server.Addr == "" {
		c.Server.Addr = utils.Env("ADDR", "")
	}
}

// Endpoints returns the deduplicated list of RPC endpoints.
func (c *Config) Endpoints() []string {
	return utils.SplitList(c.RPCURL)
}

// expandNode substitutes placeholders in every scalar value under n. Mapping keys are left alone.
// A plain scalar that changed has its tag cleared so "${CHAIN_ID}" can still decode as a number.
func expandNode(n *yaml.Node) {
	switch n.Kind {
	case yaml.ScalarNode:
		v := Expand(n.Value)
		if v == n.Value {
			return
		}
		n.Value = v
		if n.Style == 0 {
			n.Tag = ""
		}
	case yaml.MappingNode:
		for i := 1; i < len(n.Content); i += 2 {
			expandNode(n.Content[i])
		}
	case yaml.DocumentNode, yaml.SequenceNode:
		for _, c := range n.Content {
			expandNode(c)
		}
	}
}

var placeholder = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// Expand substitutes ${VAR} and ${VAR:-default} from the environment.
// An unset variable with no default is left verbatim.
func Expand(s string) string {
	return placeholder.ReplaceAllStringFunc(s, func(m string) string {
		sub := placeholder.FindStringSubmatch(m)
		if v, ok := os.LookupEnv(sub[1]); ok && v != "" {
			return v
		}
		if sub[2] != "" {
			return sub[3]
		}
		return m
	})
}
