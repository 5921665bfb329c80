package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, "testnet", cfg.Hedera.Network)
	assert.Equal(t, 0.8, cfg.Economy.WorkerShare)
	assert.Equal(t, 500, cfg.Economy.MessageHistory)
	assert.Equal(t, 200, cfg.Economy.TransactionHistory)
	require.Len(t, cfg.Workers, 3)
	assert.Equal(t, "summarizer", cfg.Workers[0].Type)
	assert.Contains(t, cfg.Workers[1].Skills, "security-scan")
}

func TestLoadYAMLOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: "9090"
hedera:
  network: mainnet
  topics:
    tasks: "0.0.4242424"
economy:
  worker_share: 0.9
workers:
  - type: translator
    skills: [translate]
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "mainnet", cfg.Hedera.Network)
	assert.Equal(t, "0.0.4242424", cfg.Hedera.Topics["tasks"])
	assert.Equal(t, 0.9, cfg.Economy.WorkerShare)
	require.Len(t, cfg.Workers, 1)
	assert.Equal(t, "translator", cfg.Workers[0].Type)

	// Unset file values still get defaults backfilled.
	assert.Equal(t, 500, cfg.Economy.MessageHistory)
}

func TestLoadMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not a map"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: \"9090\"\n"), 0o644))

	t.Setenv("PORT", "7070")
	t.Setenv("HEDERA_PRIVATE_KEY", "302e0201...")
	t.Setenv("HEDERA_TOPIC_TASKS", "0.0.1111111")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "7070", cfg.Server.Port)
	assert.Equal(t, "302e0201...", cfg.Hedera.PrivateKey)
	assert.Equal(t, "0.0.1111111", cfg.Hedera.Topics["tasks"])
}

func TestWorkerShareBounds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("economy:\n  worker_share: 1.5\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0.8, cfg.Economy.WorkerShare)
}
