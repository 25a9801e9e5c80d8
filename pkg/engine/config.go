package engine

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/lynx-network/lynx-indexer/pkg/abi"
	"github.com/lynx-network/lynx-indexer/pkg/config"
)

// ABIKey is the reserved field that carries the interface description in a merged record.
const ABIKey = "abi"

// Config is the configuration record extended with the contract interface description.
// It is built once during bootstrap and never mutated afterwards.
type Config struct {
	config.Config `yaml:",inline"`
	ABI           abi.Description `yaml:"-"`
}

// Merge combines a loaded configuration with the interface description.
func Merge(cfg config.Config, description abi.Description) Config {
	return Config{Config: cfg, ABI: description}
}

// Record renders the merged configuration as a flat map: every configuration key plus ABIKey.
func (c Config) Record() (map[string]any, error) {
	raw, err := yaml.Marshal(c.Config)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	out := map[string]any{}
	if err := yaml.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	out[ABIKey] = c.ABI.Value
	return out, nil
}
