package tracking

import (
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/spatial/r3"

	"fibertrack/pkg/volume"
)

const (
	// probeEps: field proposals weaker than this count as "no direction".
	probeEps = 1e-6

	// minDirectionNorm: accumulated selections weaker than this are
	// rejected outright.
	minDirectionNorm = 0.001

	// stopDirectionNorm: integration stops once the selected direction
	// falls below this magnitude.
	stopDirectionNorm = 1e-4
)

// selector combines the primary field proposal at a position with a shell of
// neighborhood probes. Probes inside the tracking mask contribute their own
// proposals to a running sum; probes that find no direction while the
// streamline is moving either vote for stopping or trigger a deflection
// resample on the reflected side. One selector instance belongs to one
// worker; shared fields are read-only during a run.
type selector struct {
	field DirectionField
	prior DirectionField

	mask *volume.ScalarField
	stop *volume.ScalarField

	params           *Params
	probes           []r3.Vec
	samplingDistance float64

	rng *rand.Rand
}

// selectDirection implements one direction-selection step. It returns a unit
// vector, or the zero vector to signal that the streamline should stop here.
func (s *selector) selectDirection(pos r3.Vec, hist *History, voxel volume.Index) r3.Vec {
	interp := s.params.InterpolateMasks
	if !s.mask.Inside(pos, interp) || s.stop.Inside(pos, interp) {
		return r3.Vec{}
	}
	dir := s.field.ProposeDirection(pos, hist, voxel)

	stopVotes := 0
	possibleStopVotes := 0
	if hist.Len() > 0 {
		old, _ := hist.Last()
		for _, probe := range s.probes {
			var d r3.Vec
			isStopVoter := false
			if s.params.Random && s.params.RandomSampling {
				d = normalize(r3.Vec{
					X: s.rng.Float64() - 0.5,
					Y: s.rng.Float64() - 0.5,
					Z: s.rng.Float64() - 0.5,
				})
				d = r3.Scale(s.rng.Float64()*s.samplingDistance, d)
			} else {
				dot := r3.Dot(probe, old)
				if s.params.UseStopVotes && dot > s.params.StopVoteCos {
					isStopVoter = true
					possibleStopVotes++
				} else if s.params.OnlyForwardSamples && dot < 0 {
					continue
				}
				d = r3.Scale(s.samplingDistance, probe)
			}

			samplePos := r3.Add(pos, d)
			var sampled r3.Vec
			if s.mask.Inside(samplePos, interp) {
				sampled = s.field.ProposeDirection(samplePos, hist, voxel)
			}

			switch {
			case r3.Norm(sampled) > probeEps:
				dir = r3.Add(dir, sampled)

			case s.params.AvoidStop && r3.Norm(old) > 0.5:
				// The probe left valid tissue. Count the vote, then look a
				// bit further on the other side: reflect across the plane
				// spanned by the previous direction if the probe pointed
				// ahead, invert otherwise.
				if isStopVoter {
					stopVotes++
				}
				dot := r3.Dot(d, old)
				if dot >= 0 {
					d = r3.Add(r3.Scale(-1, d), r3.Scale(2*dot, old))
				} else {
					d = r3.Scale(-1, d)
				}
				samplePos = r3.Add(pos, d)
				var alt r3.Vec
				if s.mask.Inside(samplePos, interp) {
					alt = s.field.ProposeDirection(samplePos, hist, voxel)
				}
				if r3.Norm(alt) > probeEps {
					// Back in valid tissue: steer toward it and along it.
					dir = r3.Add(dir, r3.Scale(s.params.DeflectionMod, d))
					dir = r3.Add(dir, alt)
				}

			default:
				if isStopVoter {
					stopVotes++
				}
			}
		}
	}

	valid := false
	if r3.Norm(dir) > minDirectionNorm &&
		(possibleStopVotes == 0 || float64(stopVotes)/float64(possibleStopVotes) < s.params.StopVoteFraction) {
		dir = normalize(dir)
		valid = true
	} else {
		dir = r3.Vec{}
	}

	if s.prior != nil && (s.params.IntroduceDirectionsFromPrior || valid) {
		prior := s.prior.ProposeDirection(pos, hist, voxel)
		if r3.Norm(prior) > minDirectionNorm {
			prior = normalize(prior)
			if r3.Dot(prior, dir) < 0 {
				prior = r3.Scale(-1, prior)
			}
			w := s.params.PriorWeight
			dir = r3.Add(r3.Scale(1-w, dir), r3.Scale(w, prior))
			dir = normalize(dir)
		} else if s.params.PriorAsMask {
			dir = r3.Vec{}
		}
	}

	return dir
}
