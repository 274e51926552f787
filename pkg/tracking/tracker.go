package tracking

import (
	"fmt"
	"math"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/spatial/r3"

	"fibertrack/pkg/volume"
)

// Streamline is an ordered sequence of world-space points, front to back.
// Immutable once accepted into a Result.
type Streamline []r3.Vec

// ArcLength returns the summed segment length of the streamline in mm.
func (s Streamline) ArcLength() float64 {
	var l float64
	for i := 1; i < len(s); i++ {
		l += r3.Norm(r3.Sub(s[i], s[i-1]))
	}
	return l
}

// Result holds the output of one tracking run: either the accepted
// polylines or, in probability-map mode, a density grid rescaled to [0,1].
type Result struct {
	Tractogram []Streamline
	DensityMap *volume.DensityMap

	Accepted       int
	SeedsProcessed int
	Duration       time.Duration
}

// Tracker runs streamline tractography over a direction field: seed
// generation, parallel per-seed trial loops, forward/backward integration,
// endpoint validation and bounded accumulation of accepted fibers.
//
// Configure a Tracker fully before calling Run. The direction field and all
// mask images are treated as read-only during the run. A Tracker may be
// reused for further runs after Run returns.
type Tracker struct {
	field  DirectionField
	prior  DirectionField
	params Params

	mask      *volume.ScalarField
	stop      *volume.ScalarField
	seed      *volume.ScalarField
	target    *volume.ScalarField
	exclusion *volume.ScalarField

	seedPoints     []r3.Vec
	explicitSeeds  bool
	seedImageSet   bool
	targetImageSet bool

	// derived in beforeTracking
	minVoxel         float64
	stepSize         float64
	samplingDistance float64
	angularThreshold float64
	probes           []r3.Vec
	validator        *endpointValidator

	mu            sync.Mutex
	currentTracts int
	processed     int
	tractogram    []Streamline
	density       *volume.DensityMap

	stopFlag atomic.Bool
	abort    atomic.Bool
	pause    *pauseGate
}

// NewTracker creates a tracker for the given field and parameters.
func NewTracker(field DirectionField, params Params) *Tracker {
	return &Tracker{
		field:  field,
		params: params,
		pause:  newPauseGate(),
	}
}

// SetMaskImage sets the tracking mask; streamlines only progress inside it.
func (t *Tracker) SetMaskImage(f *volume.ScalarField) { t.mask = f }

// SetStoppingRegions sets the stop region; entering it ends the streamline.
func (t *Tracker) SetStoppingRegions(f *volume.ScalarField) { t.stop = f }

// SetSeedImage sets the seed region used for seed generation and for
// seed-based endpoint constraints.
func (t *Tracker) SetSeedImage(f *volume.ScalarField) { t.seed = f }

// SetTargetRegions sets the target region used by endpoint constraints.
func (t *Tracker) SetTargetRegions(f *volume.ScalarField) { t.target = f }

// SetExclusionRegions sets the exclusion region; streamlines touching it are
// discarded entirely.
func (t *Tracker) SetExclusionRegions(f *volume.ScalarField) { t.exclusion = f }

// SetSeedPoints supplies explicit seed points, overriding seed-image
// derivation.
func (t *Tracker) SetSeedPoints(seeds []r3.Vec) {
	t.seedPoints = append([]r3.Vec(nil), seeds...)
	t.explicitSeeds = len(seeds) > 0
}

// SetTrackingPrior blends directions from a second field into every
// selection step, weighted by Params.PriorWeight.
func (t *Tracker) SetTrackingPrior(f DirectionField) { t.prior = f }

// Abort requests cooperative termination. In-flight streamlines finish
// their current step and the run winds down without error.
func (t *Tracker) Abort() { t.abort.Store(true) }

// Pause halts all workers in place; Pause(false) resumes them.
func (t *Tracker) Pause(paused bool) { t.pause.set(paused) }

// Progress returns processed seed and accepted fiber counts of the current
// or last run.
func (t *Tracker) Progress() (seeds, accepted int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.processed, t.currentTracts
}

// Run executes the tracking run. It returns a configuration error before
// any tracking work begins if the endpoint constraint demands a missing
// mask; per-streamline termination is never an error.
func (t *Tracker) Run() (*Result, error) {
	start := time.Now()
	if err := t.beforeTracking(); err != nil {
		return nil, err
	}

	numSeeds := len(t.seedPoints)
	workers := t.params.NumCores
	if workers < 1 {
		workers = runtime.NumCPU()
	}
	if workers > numSeeds {
		workers = numSeeds
	}

	printInterval := numSeeds / 100
	verbose := t.params.Verbose && printInterval >= 100

	var next atomic.Int64
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			wk := t.newWorker(id)
			for {
				i := int(next.Add(1)) - 1
				if i >= numSeeds || t.stopFlag.Load() || t.abort.Load() {
					return
				}
				t.trackSeed(wk, t.seedPoints[i])

				t.mu.Lock()
				t.processed++
				if verbose && t.processed%printInterval == 0 {
					if t.params.MaxNumTracts > 0 {
						fmt.Printf("\rTried: %d/%d | Accepted: %d/%d", t.processed, numSeeds, t.currentTracts, t.params.MaxNumTracts)
					} else {
						fmt.Printf("\rTried: %d/%d | Accepted: %d", t.processed, numSeeds, t.currentTracts)
					}
				}
				t.mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	if verbose {
		fmt.Println()
	}

	return t.afterTracking(start), nil
}

// worker bundles the per-goroutine selector, integrator and RNG stream.
type worker struct {
	sel   *selector
	integ *integrator
	rng   *rand.Rand
}

func (t *Tracker) newWorker(id int) *worker {
	rng := rand.New(rand.NewSource(t.params.RandomSeed + uint64(id)*0x9e3779b9))
	sel := &selector{
		field:            t.field,
		prior:            t.prior,
		mask:             t.mask,
		stop:             t.stop,
		params:           &t.params,
		probes:           t.probes,
		samplingDistance: t.samplingDistance,
		rng:              rng,
	}
	integ := &integrator{
		sel:              sel,
		grid:             t.field.Grid(),
		exclusion:        t.exclusion,
		interpolateMasks: t.params.InterpolateMasks,
		stepSize:         t.stepSize,
		minVoxel:         t.minVoxel,
		maxSteps:         t.params.MaxLength / 2,
		maxTract:         t.params.MaxTractLength,
		loopCheck:        t.params.LoopCheckDeg,
		numPrev:          t.params.NumPreviousDirections,
		abort:            &t.abort,
		pause:            t.pause,
	}
	return &worker{sel: sel, integ: integ, rng: rng}
}

// trackSeed runs the per-seed trial loop: compute an initial direction,
// propagate forward then backward, and hand the candidate to the serialized
// accept sequence. Probabilistic fields retry failed seeds up to
// TrialsPerSeed times; deterministic fields break after the first trial
// whether or not it succeeded.
func (t *Tracker) trackSeed(wk *worker, seedPos r3.Vec) {
	trials := t.params.TrialsPerSeed
	if trials < 1 {
		trials = 1
	}
	for trial := 0; trial < trials; trial++ {
		var fwd, fwdDirs []r3.Vec
		var bwd, bwdDirs []r3.Vec

		dir := wk.sel.selectDirection(seedPos, newHistory(t.params.NumPreviousDirections), volume.Index{})
		dir = r3.Scale(0.5, dir)

		exclude := t.exclusion != nil && t.exclusion.Inside(seedPos, t.params.InterpolateMasks)

		success := false
		if r3.Norm(dir) > stopDirectionNorm && !exclude {
			var length float64
			length, exclude = wk.integ.propagate(seedPos, dir, &fwd, &fwdDirs, nil, 0)
			if !exclude {
				length, exclude = wk.integ.propagate(seedPos, r3.Scale(-1, dir), &bwd, &bwdDirs, fwdDirs, length)
			}
			fib := joinPasses(bwd, seedPos, fwd)
			if length >= t.params.MinTractLength && len(fib) >= 2 && !exclude {
				success = t.acceptFiber(fib)
			}
		}

		if success || t.field.Mode() != Probabilistic {
			break
		}
	}
}

// acceptFiber is the globally serialized accept sequence: validate the
// endpoints, append to the output collection, count, and raise the global
// stop flag once the accepted-fiber cap is reached. Validation, append and
// cap check run under one lock so the cap is never exceeded.
func (t *Tracker) acceptFiber(fib []r3.Vec) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.validator.isValid(fib) {
		return false
	}
	accepted := false
	if !t.stopFlag.Load() {
		if t.density != nil {
			t.density.AddStreamline(fib)
		} else {
			t.tractogram = append(t.tractogram, Streamline(fib))
		}
		t.currentTracts++
		accepted = true
	}
	if t.params.MaxNumTracts > 0 && t.currentTracts >= t.params.MaxNumTracts {
		t.stopFlag.Store(true)
	}
	return accepted
}

// beforeTracking derives run parameters from the field geometry, allocates
// default masks for absent images, validates the endpoint constraint and
// collects seed points. Fails fast on configuration errors.
func (t *Tracker) beforeTracking() error {
	t.stopFlag.Store(false)
	t.abort.Store(false)
	t.mu.Lock()
	t.currentTracts = 0
	t.processed = 0
	t.tractogram = nil
	t.density = nil
	t.mu.Unlock()

	if t.params.NumPreviousDirections < 1 {
		t.params.NumPreviousDirections = 1
	}

	grid := t.field.Grid()
	t.minVoxel = grid.MinSpacing()

	if t.params.StepSizeVox < 1e-6 {
		t.stepSize = 0.5 * t.minVoxel
	} else {
		t.stepSize = t.params.StepSizeVox * t.minVoxel
	}

	if t.params.AngularThresholdDeg < 0 {
		// Derived from the step size; never tighter than 15 degrees.
		stepVox := t.stepSize / t.minVoxel
		if stepVox > 0.966 {
			stepVox = 0.966
		}
		t.angularThreshold = math.Cos(0.5 * math.Pi * stepVox)
	} else {
		t.angularThreshold = math.Cos(t.params.AngularThresholdDeg * math.Pi / 180)
	}

	if t.params.SamplingDistanceVox < 1e-6 {
		t.samplingDistance = 0.25 * t.minVoxel
	} else {
		t.samplingDistance = t.params.SamplingDistanceVox * t.minVoxel
	}

	t.probes = sphereShell(t.params.NumberOfSamples)

	t.field.SetRandom(t.params.Random)
	if err := t.field.InitForTracking(); err != nil {
		return fmt.Errorf("tracking: field init failed: %w", err)
	}
	t.field.SetAngularThreshold(t.angularThreshold)
	if t.prior != nil {
		t.prior.SetRandom(t.params.Random)
		if err := t.prior.InitForTracking(); err != nil {
			return fmt.Errorf("tracking: prior field init failed: %w", err)
		}
		t.prior.SetAngularThreshold(t.angularThreshold)
	}

	if t.mask == nil {
		t.mask = volume.NewUniformField(grid, 1)
	}
	if t.stop == nil {
		t.stop = volume.NewUniformField(grid, 0)
	}
	t.seedImageSet = t.seed != nil
	if t.seed == nil {
		t.seed = volume.NewUniformField(grid, 1)
	}
	t.targetImageSet = t.target != nil
	if t.target == nil {
		t.target = volume.NewUniformField(grid, 1)
	}

	// No constraint chosen but region images supplied: assume the obvious
	// intent.
	if t.params.EndpointConstraint == ConstraintNone && t.targetImageSet && t.seedImageSet {
		t.params.EndpointConstraint = EPSInSeedAndTarget
	} else if t.params.EndpointConstraint == ConstraintNone && t.targetImageSet {
		t.params.EndpointConstraint = EPSInTarget
	}

	if err := validateConstraint(t.params.EndpointConstraint, t.seedImageSet, t.targetImageSet); err != nil {
		return err
	}
	t.validator = &endpointValidator{
		constraint:  t.params.EndpointConstraint,
		seed:        t.seed,
		target:      t.target,
		interpolate: t.params.InterpolateMasks,
	}

	if t.params.UseOutputProbabilityMap {
		t.density = volume.NewDensityMap(grid)
	}

	rng := rand.New(rand.NewSource(t.params.RandomSeed))
	if !t.explicitSeeds {
		t.seedPoints = t.seedPointsFromSeedImage(rng)
	}
	if t.params.Random {
		rng.Shuffle(len(t.seedPoints), func(i, j int) {
			t.seedPoints[i], t.seedPoints[j] = t.seedPoints[j], t.seedPoints[i]
		})
	}

	if t.params.Verbose {
		fmt.Printf("Tracking - mode: %s\n", t.field.Mode())
		fmt.Printf("Tracking - endpoint constraint: %s\n", t.params.EndpointConstraint)
		fmt.Printf("Tracking - step size: %.3f mm (%.2f * voxel)\n", t.stepSize, t.stepSize/t.minVoxel)
		fmt.Printf("Tracking - angular threshold: %.3f (%.1f deg)\n", t.angularThreshold, 180*math.Acos(t.angularThreshold)/math.Pi)
		fmt.Printf("Tracking - tract length: %.1f-%.1f mm\n", t.params.MinTractLength, t.params.MaxTractLength)
		fmt.Printf("Tracking - neighborhood samples: %d at %.3f mm\n", t.params.NumberOfSamples, t.samplingDistance)
		fmt.Printf("Tracking - seeds: %d\n", len(t.seedPoints))
	}
	return nil
}

// seedPointsFromSeedImage expands every positive seed-mask voxel into
// SeedsPerVoxel seed points: the voxel center plus uniformly jittered
// samples within the voxel. Seeds outside the tracking mask are skipped.
func (t *Tracker) seedPointsFromSeedImage(rng *rand.Rand) []r3.Vec {
	grid := t.seed.Grid()
	var seeds []r3.Vec
	for z := 0; z < grid.Size[2]; z++ {
		for y := 0; y < grid.Size[1]; y++ {
			for x := 0; x < grid.Size[0]; x++ {
				if t.seed.At(volume.Index{x, y, z}) <= 0 {
					continue
				}
				world := grid.IndexToWorld([3]float64{float64(x), float64(y), float64(z)})
				if !t.mask.Inside(world, t.params.InterpolateMasks) {
					continue
				}
				seeds = append(seeds, world)
				for s := 1; s < t.params.SeedsPerVoxel; s++ {
					ci := [3]float64{
						float64(x) + rng.Float64() - 0.5,
						float64(y) + rng.Float64() - 0.5,
						float64(z) + rng.Float64() - 0.5,
					}
					seeds = append(seeds, grid.IndexToWorld(ci))
				}
			}
		}
	}
	return seeds
}

// afterTracking finalizes the output: rescales the density map to [0,1] and
// reports counts and timing.
func (t *Tracker) afterTracking(start time.Time) *Result {
	if t.density != nil {
		t.density.Rescale()
	}
	res := &Result{
		Tractogram:     t.tractogram,
		DensityMap:     t.density,
		Accepted:       t.currentTracts,
		SeedsProcessed: t.processed,
		Duration:       time.Since(start),
	}
	if t.params.Verbose {
		fmt.Printf("Tracking - reconstructed %d fibers in %.2fs\n", res.Accepted, res.Duration.Seconds())
	}
	return res
}
