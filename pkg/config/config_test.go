package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fibertrack/pkg/tracking"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	p := tracking.DefaultParams()

	assert.Equal(t, p.StepSizeVox, cfg.Tracking.StepSizeVox)
	assert.Equal(t, p.MinTractLength, cfg.Tracking.MinTractLength)
	assert.Equal(t, p.MaxTractLength, cfg.Tracking.MaxTractLength)
	assert.Equal(t, p.NumberOfSamples, cfg.Sampling.NumberOfSamples)
	assert.Equal(t, p.StopVoteCos, cfg.Sampling.StopVoteCos)
	assert.Equal(t, "none", cfg.Constraints.EndpointConstraint)
	assert.Equal(t, p.PriorWeight, cfg.Prior.Weight)
	assert.False(t, cfg.Output.ProbabilityMap)
	assert.Greater(t, cfg.Output.NumCores, 0)
}

func TestTrackingParams(t *testing.T) {
	t.Run("round trip preserves values", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Tracking.MinTractLength = 42
		cfg.Sampling.NumberOfSamples = 12
		cfg.Constraints.EndpointConstraint = "eps-in-target"

		p, err := cfg.TrackingParams()
		require.NoError(t, err)
		assert.Equal(t, 42.0, p.MinTractLength)
		assert.Equal(t, 12, p.NumberOfSamples)
		assert.Equal(t, tracking.EPSInTarget, p.EndpointConstraint)
	})

	t.Run("unknown constraint fails", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Constraints.EndpointConstraint = "both-ends-everywhere"
		_, err := cfg.TrackingParams()
		assert.Error(t, err)
	})
}

func TestLoadConfig(t *testing.T) {
	t.Run("missing file yields defaults", func(t *testing.T) {
		cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
		require.NoError(t, err)
		assert.Equal(t, DefaultConfig().Tracking.MinTractLength, cfg.Tracking.MinTractLength)
	})

	t.Run("file values override defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "fibertrack.yaml")
		data := []byte(`tracking:
  minTractLength: 10
  seedsPerVoxel: 4
sampling:
  numberOfSamples: 50
constraints:
  endpointConstraint: min-one-ep-in-target
output:
  probabilityMap: true
`)
		require.NoError(t, os.WriteFile(path, data, 0644))

		cfg, err := LoadConfig(path)
		require.NoError(t, err)
		assert.Equal(t, 10.0, cfg.Tracking.MinTractLength)
		assert.Equal(t, 4, cfg.Tracking.SeedsPerVoxel)
		assert.Equal(t, 50, cfg.Sampling.NumberOfSamples)
		assert.Equal(t, "min-one-ep-in-target", cfg.Constraints.EndpointConstraint)
		assert.True(t, cfg.Output.ProbabilityMap)
		// Untouched keys keep their defaults.
		assert.Equal(t, DefaultConfig().Tracking.MaxTractLength, cfg.Tracking.MaxTractLength)
	})

	t.Run("malformed file fails", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("tracking: ["), 0644))
		_, err := LoadConfig(path)
		assert.Error(t, err)
	})
}

func TestSaveConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "fibertrack.yaml")
	require.NoError(t, CreateDefaultConfigFile(path))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Sampling.StopVoteCos, cfg.Sampling.StopVoteCos)
}
