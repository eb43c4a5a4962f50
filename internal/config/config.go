// Package config loads the cache's construction parameters from a YAML
// manifest, grounded on cmd/warren/apply.go's yaml.v3 resource loading.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// AllocConfig sizes the log-structured pool (C2).
type AllocConfig struct {
	Tag      string `yaml:"tag"`      // "circular" or "segregated"
	Capacity uint64 `yaml:"capacity"` // bytes
}

// PoolConfig names the pool this table allocates from.
type PoolConfig struct {
	Name string `yaml:"name"`
}

// TableConfig sizes one cache table (C3/C4).
type TableConfig struct {
	RequestType     uint8  `yaml:"requestType"`
	Buckets         uint64 `yaml:"buckets"`
	ConcurrentRead  bool   `yaml:"concurrentRead"`
	ConcurrentWrite bool   `yaml:"concurrentWrite"`
}

// Config is the recognized config tree from §6: groups {alloc, pool,
// table}. Only CRCW (concurrent_read && concurrent_write) mode is
// supported; any table missing either flag fails validation.
type Config struct {
	Alloc []AllocConfig `yaml:"alloc"`
	Pool  []PoolConfig  `yaml:"pool"`
	Table []TableConfig `yaml:"table"`
}

// Load reads and parses a YAML manifest at path, then validates it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate enforces §6's CRCW constraint: initialization fails unless every
// table declares both concurrent_read and concurrent_write. This is a
// programmer error per §7, not a recoverable one, so the caller is expected
// to treat a non-nil error here as fatal.
func (c *Config) Validate() error {
	for _, t := range c.Table {
		if !t.ConcurrentRead || !t.ConcurrentWrite {
			return fmt.Errorf("config: table for request type %d: only CRCW mode is supported (concurrentRead and concurrentWrite must both be true)", t.RequestType)
		}
	}
	return nil
}
