package injector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/xihe/internal/config"
	"github.com/zeusync/xihe/internal/core/anchor"
)

func testConfig(t *testing.T) config.Config {
	cfg := config.Default()
	cfg.Server.ListenAddr = "127.0.0.1:0"
	cfg.Anchors.Prewarm = []int{64, 128}
	cfg.Dump.Dir = t.TempDir()
	cfg.Labels.OutputDir = t.TempDir()
	cfg.Log.Level = "error"
	return cfg
}

func TestInitializeServer(t *testing.T) {
	srv, err := InitializeServer(testConfig(t))
	require.NoError(t, err)

	stats := srv.GetStats()
	assert.Equal(t, []int{64, 128}, stats.AnchorSizes)
	assert.Zero(t, stats.Sessions)
	assert.False(t, srv.IsRunning())
}

func TestInitializeServer_BadNormalizer(t *testing.T) {
	cfg := testConfig(t)
	cfg.Inference.Min = make([]float32, 3)
	cfg.Inference.Scale = []float32{1, 1, 1}

	_, err := InitializeServer(cfg)
	require.Error(t, err)
}

func TestProvideAnchorCache_InvalidSize(t *testing.T) {
	cfg := testConfig(t)
	cfg.Anchors.Prewarm = []int{0}

	logger, err := ProvideLogger(cfg)
	require.NoError(t, err)
	_, err = ProvideAnchorCache(cfg, logger)
	assert.ErrorIs(t, err, anchor.ErrInvalidAnchorSize)
}

func TestInitializeGenerator(t *testing.T) {
	gen, err := InitializeGenerator(testConfig(t))
	require.NoError(t, err)
	assert.NotNil(t, gen)
}
