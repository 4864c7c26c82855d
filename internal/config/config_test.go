package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 0.95, cfg.Store.DuplicateThreshold)
	assert.Equal(t, "skip", cfg.Store.DuplicateBehavior)
	assert.Equal(t, 500, cfg.Store.MaxRegexPatternLength)
	assert.Equal(t, 30.0*24*60*60*1000, cfg.Store.RecencyHalfLifeMs)
	assert.Equal(t, 0.85, cfg.Store.TopicCatalogThreshold)
	assert.False(t, cfg.Learning.Enabled)
	assert.Equal(t, 50, cfg.Learning.MaxQueryHistory)
	assert.Equal(t, 7.0*24*60*60*1000, cfg.Learning.QueryDecayMs)
	assert.Equal(t, 0.85, cfg.Graph.SimilarityThreshold)
	assert.Equal(t, 3, cfg.Graph.CorrelationThreshold)
	assert.Equal(t, 50, cfg.Graph.MaxEdgesPerNode)
	assert.Equal(t, 0.15, cfg.Graph.GraphBoostWeight)
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "simse.yaml")
	payload := `
storagePath: /var/lib/simse
logLevel: debug
store:
  duplicateThreshold: 0.9
  duplicateBehavior: warn
learning:
  enabled: true
  maxQueryHistory: 25
graph:
  similarityThreshold: 0.8
`
	require.NoError(t, os.WriteFile(path, []byte(payload), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/simse", cfg.StoragePath)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 0.9, cfg.Store.DuplicateThreshold)
	assert.Equal(t, "warn", cfg.Store.DuplicateBehavior)
	assert.True(t, cfg.Learning.Enabled)
	assert.Equal(t, 25, cfg.Learning.MaxQueryHistory)
	assert.Equal(t, 0.8, cfg.Graph.SimilarityThreshold)

	// Untouched keys keep their defaults.
	assert.Equal(t, 500, cfg.Store.MaxRegexPatternLength)
	assert.Equal(t, 3, cfg.Graph.CorrelationThreshold)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("store: ["), 0o644))
	_, err = Load(bad)
	assert.Error(t, err)
}
