package tracking

// Params configures one tracking run. It is copied by the tracker and
// immutable for the duration of the run; unset values are derived from the
// field geometry in BeforeTracking.
type Params struct {
	// StepSizeVox is the integration step in voxel units (of the smallest
	// voxel extent). Values below 1e-6 select the default of 0.5.
	StepSizeVox float64

	// AngularThresholdDeg is the maximum bend between consecutive
	// directions in degrees. Negative values derive the threshold from the
	// step size (at least 15 degrees).
	AngularThresholdDeg float64

	// SamplingDistanceVox is the neighborhood probe radius in voxel units.
	// Values below 1e-6 select the default of 0.25.
	SamplingDistanceVox float64

	// MinTractLength and MaxTractLength bound accepted fiber length in mm.
	// A fiber of exactly MinTractLength is accepted.
	MinTractLength float64
	MaxTractLength float64

	// MaxLength is the total step budget per streamline; each of the two
	// propagation passes runs at most MaxLength/2 steps.
	MaxLength int

	// SeedsPerVoxel is the number of jittered seeds placed in each positive
	// seed-mask voxel.
	SeedsPerVoxel int

	// TrialsPerSeed is the number of attempts per seed in probabilistic
	// mode. Deterministic fields always get exactly one trial.
	TrialsPerSeed int

	// MaxNumTracts stops the run once this many fibers were accepted.
	// Non-positive means unbounded.
	MaxNumTracts int

	// LoopCheckDeg terminates a streamline when the mean angular deviation
	// over the trailing window exceeds this many degrees. Negative disables
	// the check.
	LoopCheckDeg float64

	// NumPreviousDirections is the direction-history capacity handed to the
	// field.
	NumPreviousDirections int

	// NumberOfSamples is the neighborhood probe count K.
	NumberOfSamples int

	// AvoidStop enables the deflection heuristic: when a probe leaves valid
	// tissue, resample on the reflected side and steer back inward.
	AvoidStop bool

	// RandomSampling replaces the fixed probe shell by uniformly random
	// probes with random radius (randomized mode only).
	RandomSampling bool

	// OnlyForwardSamples skips probes pointing against the previous
	// direction (fixed-shell mode only).
	OnlyForwardSamples bool

	// UseStopVotes lets near-parallel probes veto the step when too many of
	// them find no direction (tissue boundary evidence).
	UseStopVotes bool

	// DeflectionMod weights the deflection direction added by AvoidStop.
	DeflectionMod float64

	// StopVoteCos is the cosine above which a probe is a stop voter.
	StopVoteCos float64

	// StopVoteFraction is the stop-voter fraction at or above which the
	// step is vetoed.
	StopVoteFraction float64

	// Random enables randomized behavior: seed shuffling, seed jitter and
	// random probe sampling.
	Random bool

	// RandomSeed seeds all random number streams of the run, making
	// randomized runs reproducible.
	RandomSeed uint64

	// InterpolateMasks selects trilinear (true) or nearest-neighbor mask
	// evaluation.
	InterpolateMasks bool

	// UseOutputProbabilityMap accumulates a density grid instead of
	// collecting polylines.
	UseOutputProbabilityMap bool

	// EndpointConstraint selects the acceptance rule applied to the two
	// endpoints of each finished streamline.
	EndpointConstraint EndpointConstraint

	// IntroduceDirectionsFromPrior lets the prior field contribute even
	// where the main field proposed nothing.
	IntroduceDirectionsFromPrior bool

	// PriorAsMask forces the result to zero where a configured prior field
	// has no proposal.
	PriorAsMask bool

	// PriorWeight is the blend weight of the prior proposal in [0,1].
	PriorWeight float64

	// NumCores is the worker count; non-positive uses all CPUs.
	NumCores int

	// Verbose enables progress and summary output.
	Verbose bool
}

// DefaultParams returns the documented defaults: 0.5 voxel steps, automatic
// angular threshold, 20-400 mm tract length, 30 neighborhood samples at 0.25
// voxel radius, stop votes at cosine 0.7 with a 0.5 veto fraction, 10 trials
// per seed, loop check disabled.
func DefaultParams() Params {
	return Params{
		StepSizeVox:                  0,
		AngularThresholdDeg:          -1,
		SamplingDistanceVox:          0,
		MinTractLength:               20,
		MaxTractLength:               400,
		MaxLength:                    10000,
		SeedsPerVoxel:                1,
		TrialsPerSeed:                10,
		MaxNumTracts:                 -1,
		LoopCheckDeg:                 -1,
		NumPreviousDirections:        1,
		NumberOfSamples:              30,
		AvoidStop:                    true,
		RandomSampling:               false,
		OnlyForwardSamples:           true,
		UseStopVotes:                 true,
		DeflectionMod:                1.0,
		StopVoteCos:                  0.7,
		StopVoteFraction:             0.5,
		Random:                       true,
		RandomSeed:                   1,
		InterpolateMasks:             true,
		UseOutputProbabilityMap:      false,
		EndpointConstraint:           ConstraintNone,
		IntroduceDirectionsFromPrior: true,
		PriorAsMask:                  true,
		PriorWeight:                  1.0,
		NumCores:                     0,
		Verbose:                      false,
	}
}
