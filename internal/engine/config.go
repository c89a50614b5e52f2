package engine

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"pfidx/internal/pf"
)

// Config configures an Engine. Loaded from a YAML file (§9's single
// encapsulated handle replaces the original's process-wide tunables).
type Config struct {
	PoolSize          int    `yaml:"pool_size"`
	ReplacementPolicy string `yaml:"replacement_policy"` // "lru" or "mru"
	BaseDir           string `yaml:"base_dir"`            // loaded but not used by Open; file names are used as given
}

// DefaultConfig matches the buffer manager's own built-in defaults.
func DefaultConfig() Config {
	return Config{PoolSize: 64, ReplacementPolicy: "lru", BaseDir: "."}
}

// LoadConfig reads cfg from a YAML file, starting from DefaultConfig so
// an omitted field keeps its default rather than zeroing out.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "reading engine config %s", path)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parsing engine config %s", path)
	}
	return cfg, nil
}

func (c Config) policy() pf.ReplacementPolicy {
	if c.ReplacementPolicy == "mru" {
		return pf.MRU
	}
	return pf.LRU
}
