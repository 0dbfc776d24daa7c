// Package config loads the store's configuration: buffer pool size and
// the B+ tree's per-page entry limits.
package config

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/tuannm99/fixedkv/internal/bptree"
)

// Config is the full set of knobs the engine accepts. No environment
// variables and no CLI flags feed into the core; only this file.
type Config struct {
	Storage struct {
		File string `mapstructure:"file"`
	} `mapstructure:"storage"`

	Buffer struct {
		PoolSize int `mapstructure:"pool_size"`
	} `mapstructure:"buffer"`

	Tree struct {
		LeafMax     int `mapstructure:"leaf_max"`
		InternalMax int `mapstructure:"internal_max"`
	} `mapstructure:"tree"`
}

// Default returns the configuration the CLI driver falls back to when no
// config file is given: a reasonably sized pool and page-capacity-derived
// split thresholds.
func Default(file string) *Config {
	cfg := &Config{}
	cfg.Storage.File = file
	cfg.Buffer.PoolSize = 128
	cfg.Tree.LeafMax = bptree.DefaultLeafMax
	cfg.Tree.InternalMax = bptree.DefaultInternalMax
	return cfg
}

// Load reads a YAML config file at path.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.Buffer.PoolSize <= 0 {
		cfg.Buffer.PoolSize = 128
	}
	if cfg.Tree.LeafMax <= 0 {
		cfg.Tree.LeafMax = bptree.DefaultLeafMax
	}
	if cfg.Tree.InternalMax <= 0 {
		cfg.Tree.InternalMax = bptree.DefaultInternalMax
	}
	return cfg, nil
}
