// Propstudy - Broadcast Coverage and Interference Study Engine
// Copyright 2026 Spectrum Lab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/spectrumlab/propstudy

// Package config loads the engine configuration with koanf v2 from
// layered sources: built-in defaults, an optional YAML file, then
// environment variables. Precedence is ENV > file > defaults.
package config

import (
	"fmt"
	"os"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/spectrumlab/propstudy/internal/logging"
)

// DefaultConfigPaths lists where config files are searched, in order.
// The first file found wins.
var DefaultConfigPaths = []string{
	"propstudy.yaml",
	"propstudy.yml",
	"/etc/propstudy/config.yaml",
	"/etc/propstudy/config.yml",
}

// ConfigPathEnvVar overrides the config file path when set.
const ConfigPathEnvVar = "PROPSTUDY_CONFIG"

// Config is the full engine configuration.
type Config struct {
	Cache   CacheConfig    `koanf:"cache"`
	Logging logging.Config `koanf:"logging"`
	Metrics MetricsConfig  `koanf:"metrics"`
}

// CacheConfig locates and sizes the flat-file result cache.
type CacheConfig struct {
	// RootDir is the directory under which all cache files live,
	// segmented by station database and study.
	RootDir string `koanf:"root_dir" validate:"required"`

	// DatabaseID names the station database the cache is keyed under.
	// Typically the import identifier of the database snapshot.
	DatabaseID string `koanf:"database_id" validate:"required"`

	// PatternCacheSize bounds the per-session decoded-pattern LRU.
	// Zero selects the built-in default.
	PatternCacheSize int `koanf:"pattern_cache_size" validate:"min=0,max=65536"`
}

// MetricsConfig controls the Prometheus exposition endpoint.
type MetricsConfig struct {
	Enabled bool   `koanf:"enabled"`
	Listen  string `koanf:"listen" validate:"omitempty,hostname_port"`
}

// defaultConfig returns the built-in defaults, applied before file and
// environment layers.
func defaultConfig() *Config {
	return &Config{
		Cache: CacheConfig{
			RootDir:          "/var/cache/propstudy",
			DatabaseID:       "",
			PatternCacheSize: 0,
		},
		Logging: logging.Config{
			Level:     "info",
			Format:    "json",
			Caller:    false,
			Timestamp: true,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Listen:  "127.0.0.1:9090",
		},
	}
}

// Load builds the configuration from defaults, the first config file
// found (or $PROPSTUDY_CONFIG), and environment variables, then
// validates it.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// findConfigFile returns the config file to load, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
