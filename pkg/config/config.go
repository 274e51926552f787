// Package config provides configuration loading and management for
// fibertrack. It handles loading configuration from YAML files and provides
// default values matching the tracker's documented defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"

	"fibertrack/pkg/tracking"
)

// Config represents the application configuration loaded from YAML.
type Config struct {
	// Tracking parameters
	Tracking struct {
		// StepSizeVox is the integration step in voxel units; 0 derives
		// 0.5 voxels.
		StepSizeVox float64 `yaml:"stepSizeVox"`

		// AngularThresholdDeg is the maximum bend per step in degrees;
		// negative derives it from the step size.
		AngularThresholdDeg float64 `yaml:"angularThresholdDeg"`

		// MinTractLength and MaxTractLength bound accepted fiber length in mm.
		MinTractLength float64 `yaml:"minTractLength"`
		MaxTractLength float64 `yaml:"maxTractLength"`

		// MaxLength is the per-streamline step budget.
		MaxLength int `yaml:"maxLength"`

		// SeedsPerVoxel is the number of seeds per positive seed voxel.
		SeedsPerVoxel int `yaml:"seedsPerVoxel"`

		// TrialsPerSeed is the attempt count per seed in probabilistic mode.
		TrialsPerSeed int `yaml:"trialsPerSeed"`

		// MaxNumTracts stops the run after this many accepted fibers
		// (non-positive: unbounded).
		MaxNumTracts int `yaml:"maxNumTracts"`

		// LoopCheckDeg enables loop detection at this mean angular
		// deviation (negative: disabled).
		LoopCheckDeg float64 `yaml:"loopCheckDeg"`

		// NumPreviousDirections is the direction-history capacity.
		NumPreviousDirections int `yaml:"numPreviousDirections"`

		// Random enables seed shuffling, jitter and random sampling;
		// RandomSeed makes randomized runs reproducible.
		Random     bool   `yaml:"random"`
		RandomSeed uint64 `yaml:"randomSeed"`
	} `yaml:"tracking"`

	// Neighborhood sampling parameters
	Sampling struct {
		// NumberOfSamples is the probe count K.
		NumberOfSamples int `yaml:"numberOfSamples"`

		// SamplingDistanceVox is the probe radius in voxel units; 0
		// derives 0.25 voxels.
		SamplingDistanceVox float64 `yaml:"samplingDistanceVox"`

		// UseStopVotes lets near-parallel probes veto the step.
		UseStopVotes bool `yaml:"useStopVotes"`

		// StopVoteCos and StopVoteFraction tune the veto: probes with
		// cosine above StopVoteCos vote, and the step stops at a voting
		// fraction of StopVoteFraction or more.
		StopVoteCos      float64 `yaml:"stopVoteCos"`
		StopVoteFraction float64 `yaml:"stopVoteFraction"`

		// OnlyForwardSamples skips probes pointing backward.
		OnlyForwardSamples bool `yaml:"onlyForwardSamples"`

		// RandomSampling uses random probes instead of the fixed shell.
		RandomSampling bool `yaml:"randomSampling"`

		// AvoidStop enables the deflection heuristic at tissue boundaries;
		// DeflectionMod weights the deflected contribution.
		AvoidStop     bool    `yaml:"avoidStop"`
		DeflectionMod float64 `yaml:"deflectionMod"`
	} `yaml:"sampling"`

	// Region and constraint parameters
	Constraints struct {
		// EndpointConstraint names the acceptance rule, e.g. "none",
		// "eps-in-target", "eps-in-seed-and-target".
		EndpointConstraint string `yaml:"endpointConstraint"`

		// InterpolateMasks selects trilinear mask evaluation.
		InterpolateMasks bool `yaml:"interpolateMasks"`
	} `yaml:"constraints"`

	// Prior field parameters
	Prior struct {
		// Weight blends the prior proposal into each step.
		Weight float64 `yaml:"weight"`

		// AsMask zeroes the result where the prior has no proposal.
		AsMask bool `yaml:"asMask"`

		// IntroduceDirections lets the prior contribute where the main
		// field proposed nothing.
		IntroduceDirections bool `yaml:"introduceDirections"`
	} `yaml:"prior"`

	// Output parameters
	Output struct {
		// ProbabilityMap accumulates a density grid instead of polylines.
		ProbabilityMap bool `yaml:"probabilityMap"`

		// NumCores is the worker count (0: all CPUs).
		NumCores int `yaml:"numCores"`

		// Verbose controls progress output.
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	cfg := &Config{}
	p := tracking.DefaultParams()

	cfg.Tracking.StepSizeVox = p.StepSizeVox
	cfg.Tracking.AngularThresholdDeg = p.AngularThresholdDeg
	cfg.Tracking.MinTractLength = p.MinTractLength
	cfg.Tracking.MaxTractLength = p.MaxTractLength
	cfg.Tracking.MaxLength = p.MaxLength
	cfg.Tracking.SeedsPerVoxel = p.SeedsPerVoxel
	cfg.Tracking.TrialsPerSeed = p.TrialsPerSeed
	cfg.Tracking.MaxNumTracts = p.MaxNumTracts
	cfg.Tracking.LoopCheckDeg = p.LoopCheckDeg
	cfg.Tracking.NumPreviousDirections = p.NumPreviousDirections
	cfg.Tracking.Random = p.Random
	cfg.Tracking.RandomSeed = p.RandomSeed

	cfg.Sampling.NumberOfSamples = p.NumberOfSamples
	cfg.Sampling.SamplingDistanceVox = p.SamplingDistanceVox
	cfg.Sampling.UseStopVotes = p.UseStopVotes
	cfg.Sampling.StopVoteCos = p.StopVoteCos
	cfg.Sampling.StopVoteFraction = p.StopVoteFraction
	cfg.Sampling.OnlyForwardSamples = p.OnlyForwardSamples
	cfg.Sampling.RandomSampling = p.RandomSampling
	cfg.Sampling.AvoidStop = p.AvoidStop
	cfg.Sampling.DeflectionMod = p.DeflectionMod

	cfg.Constraints.EndpointConstraint = p.EndpointConstraint.String()
	cfg.Constraints.InterpolateMasks = p.InterpolateMasks

	cfg.Prior.Weight = p.PriorWeight
	cfg.Prior.AsMask = p.PriorAsMask
	cfg.Prior.IntroduceDirections = p.IntroduceDirectionsFromPrior

	cfg.Output.ProbabilityMap = p.UseOutputProbabilityMap
	cfg.Output.NumCores = runtime.NumCPU()
	cfg.Output.Verbose = true

	return cfg
}

// TrackingParams converts the configuration to tracker parameters.
func (c *Config) TrackingParams() (tracking.Params, error) {
	p := tracking.DefaultParams()

	p.StepSizeVox = c.Tracking.StepSizeVox
	p.AngularThresholdDeg = c.Tracking.AngularThresholdDeg
	p.MinTractLength = c.Tracking.MinTractLength
	p.MaxTractLength = c.Tracking.MaxTractLength
	p.MaxLength = c.Tracking.MaxLength
	p.SeedsPerVoxel = c.Tracking.SeedsPerVoxel
	p.TrialsPerSeed = c.Tracking.TrialsPerSeed
	p.MaxNumTracts = c.Tracking.MaxNumTracts
	p.LoopCheckDeg = c.Tracking.LoopCheckDeg
	p.NumPreviousDirections = c.Tracking.NumPreviousDirections
	p.Random = c.Tracking.Random
	p.RandomSeed = c.Tracking.RandomSeed

	p.NumberOfSamples = c.Sampling.NumberOfSamples
	p.SamplingDistanceVox = c.Sampling.SamplingDistanceVox
	p.UseStopVotes = c.Sampling.UseStopVotes
	p.StopVoteCos = c.Sampling.StopVoteCos
	p.StopVoteFraction = c.Sampling.StopVoteFraction
	p.OnlyForwardSamples = c.Sampling.OnlyForwardSamples
	p.RandomSampling = c.Sampling.RandomSampling
	p.AvoidStop = c.Sampling.AvoidStop
	p.DeflectionMod = c.Sampling.DeflectionMod

	constraint, err := tracking.ParseEndpointConstraint(c.Constraints.EndpointConstraint)
	if err != nil {
		return p, err
	}
	p.EndpointConstraint = constraint
	p.InterpolateMasks = c.Constraints.InterpolateMasks

	p.PriorWeight = c.Prior.Weight
	p.PriorAsMask = c.Prior.AsMask
	p.IntroduceDirectionsFromPrior = c.Prior.IntroduceDirections

	p.UseOutputProbabilityMap = c.Output.ProbabilityMap
	p.NumCores = c.Output.NumCores
	p.Verbose = c.Output.Verbose

	return p, nil
}

// LoadConfig loads configuration from a YAML file.
// If the file doesn't exist, it returns the default configuration.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file.
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	// Marshal config to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	// Write to file
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the
// specified path.
func CreateDefaultConfigFile(configPath string) error {
	return SaveConfig(DefaultConfig(), configPath)
}
