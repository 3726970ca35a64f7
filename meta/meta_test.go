package meta

import (
	"os"
	"path/filepath"
	"testing"

	"connect4/network"

	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("missing file gives defaults", func(t *testing.T) {
		cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		require.NoError(t, err)
		require.Equal(t, Default(), cfg)
		require.NoError(t, cfg.Validate())
	})

	t.Run("promotion defaults", func(t *testing.T) {
		cfg := Default()
		require.Equal(t, 1.96, cfg.Z)
		require.Equal(t, 0.55, cfg.DeepLearningThreshold)
		require.Equal(t, 0.35, cfg.FloorThreshold)
	})

	t.Run("file overrides defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		data := "iterations: 250\nnetwork_kind: adaptive-step\nz: 2.0\nlog_level: debug\n"
		require.NoError(t, os.WriteFile(path, []byte(data), 0644))

		cfg, err := Load(path)
		require.NoError(t, err)
		require.Equal(t, 250, cfg.Iterations)
		require.Equal(t, network.KindAdaptiveStep, cfg.NetworkKind)
		require.Equal(t, 2.0, cfg.Z)
		require.Equal(t, "debug", cfg.LogLevel)
		require.Equal(t, EXPLORATION, cfg.Exploration, "Should keep defaults for absent keys")
	})

	t.Run("invalid values are rejected", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		data := "iterations: 0\nnetwork_kind: perceptron\nfloor_threshold: 1.5\n"
		require.NoError(t, os.WriteFile(path, []byte(data), 0644))

		_, err := Load(path)
		require.Error(t, err)
		require.ErrorIs(t, err, network.ErrUnknownKind)
		require.ErrorContains(t, err, "iterations")
		require.ErrorContains(t, err, "floor_threshold")
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("iterations: [1, 2"), 0644))
		_, err := Load(path)
		require.Error(t, err)
	})
}
