// Package config loads the optional YAML configuration for the simse vector
// server. File values are defaults only: store/initialize parameters on the
// wire always win.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the YAML server configuration.
type Config struct {
	// StoragePath is the default index directory.
	StoragePath string `yaml:"storagePath"`
	// LogLevel selects the zap level: debug, info, warn, error.
	LogLevel string `yaml:"logLevel"`

	Store    StoreConfig    `yaml:"store"`
	Learning LearningConfig `yaml:"learning"`
	Graph    GraphConfig    `yaml:"graph"`
}

// StoreConfig holds store-level defaults.
type StoreConfig struct {
	DuplicateThreshold    float64 `yaml:"duplicateThreshold"`
	DuplicateBehavior     string  `yaml:"duplicateBehavior"`
	MaxRegexPatternLength int     `yaml:"maxRegexPatternLength"`
	RecencyHalfLifeMs     float64 `yaml:"recencyHalfLifeMs"`
	TopicCatalogThreshold float64 `yaml:"topicCatalogThreshold"`
}

// LearningConfig holds learning-engine defaults.
type LearningConfig struct {
	Enabled              bool    `yaml:"enabled"`
	MaxQueryHistory      int     `yaml:"maxQueryHistory"`
	QueryDecayMs         float64 `yaml:"queryDecayMs"`
	WeightAdaptationRate float64 `yaml:"weightAdaptationRate"`
	InterestBoostWeight  float64 `yaml:"interestBoostWeight"`
}

// GraphConfig holds graph-index defaults.
type GraphConfig struct {
	SimilarityThreshold  float64 `yaml:"similarityThreshold"`
	CorrelationThreshold int     `yaml:"correlationThreshold"`
	MaxEdgesPerNode      int     `yaml:"maxEdgesPerNode"`
	GraphBoostWeight     float64 `yaml:"graphBoostWeight"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		LogLevel: "info",
		Store: StoreConfig{
			DuplicateThreshold:    0.95,
			DuplicateBehavior:     "skip",
			MaxRegexPatternLength: 500,
			RecencyHalfLifeMs:     30 * 24 * 60 * 60 * 1000,
			TopicCatalogThreshold: 0.85,
		},
		Learning: LearningConfig{
			Enabled:              false,
			MaxQueryHistory:      50,
			QueryDecayMs:         7 * 24 * 60 * 60 * 1000,
			WeightAdaptationRate: 0.05,
			InterestBoostWeight:  0.15,
		},
		Graph: GraphConfig{
			SimilarityThreshold:  0.85,
			CorrelationThreshold: 3,
			MaxEdgesPerNode:      50,
			GraphBoostWeight:     0.15,
		},
	}
}

// Load reads a YAML config file over the defaults. An empty path returns the
// defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
