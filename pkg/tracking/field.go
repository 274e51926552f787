// Package tracking implements streamline tractography: direction selection
// with neighborhood sampling and stop-voting, Euler-step streamline
// integration with curvature-based loop detection, endpoint-constraint
// validation, and a parallel multi-seed orchestrator with a bounded
// accepted-fiber count.
package tracking

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"fibertrack/pkg/volume"
)

// Mode describes how a direction field proposes directions. Probabilistic
// fields draw from a distribution, so the orchestrator retries failed seeds
// up to TrialsPerSeed times; deterministic fields get exactly one trial.
type Mode int

const (
	Deterministic Mode = iota
	Probabilistic
)

func (m Mode) String() string {
	switch m {
	case Deterministic:
		return "deterministic"
	case Probabilistic:
		return "probabilistic"
	}
	return "unknown"
}

// DirectionField proposes fiber directions at arbitrary world positions.
// Implementations wrap a fitted diffusion model (tensor, ODF peaks, ...);
// the tracker only depends on this capability set.
//
// ProposeDirection returns a unit vector, or the zero vector when no
// confident proposal exists at the position. The voxel index is a locality
// hint: the voxel the streamline last stepped from.
type DirectionField interface {
	// InitForTracking prepares the field for a run. Called once by the
	// tracker before any proposals.
	InitForTracking() error

	ProposeDirection(pos r3.Vec, hist *History, voxel volume.Index) r3.Vec

	// Grid exposes spacing, origin, orientation and extent of the field.
	Grid() *volume.Grid

	Mode() Mode

	// SetRandom toggles randomized behavior (jitter, sampling) for fields
	// that support it.
	SetRandom(random bool)

	// SetAngularThreshold sets the minimum cosine between consecutive
	// directions; proposals bending harder than this are suppressed.
	SetAngularThreshold(cos float64)
}

// normalize returns the unit vector of v, or the zero vector if v is zero.
// r3.Unit returns NaN components for the zero vector, which must never leak
// into position updates.
func normalize(v r3.Vec) r3.Vec {
	n := r3.Norm(v)
	if n == 0 {
		return r3.Vec{}
	}
	return r3.Scale(1/n, v)
}

// VectorField is a deterministic DirectionField holding one principal
// direction per voxel, the single-peak case of a peak image. Proposals are
// sign-aligned with the previous direction, optionally interpolated from the
// eight neighboring voxels, and cut off at the angular threshold.
type VectorField struct {
	grid        *volume.Grid
	peaks       []r3.Vec
	interpolate bool

	angularThreshold float64
	random           bool
}

// NewVectorField creates an empty field on the given grid. Populate it with
// SetPeak before tracking.
func NewVectorField(grid *volume.Grid, interpolate bool) *VectorField {
	return &VectorField{
		grid:             grid,
		peaks:            make([]r3.Vec, grid.NumVoxels()),
		interpolate:      interpolate,
		angularThreshold: -1,
	}
}

// SetPeak stores the principal direction of one voxel. The vector is
// normalized; a zero vector marks the voxel as having no confident peak.
func (f *VectorField) SetPeak(idx volume.Index, d r3.Vec) {
	if f.grid.Inside(idx) {
		f.peaks[f.grid.FlatIndex(idx)] = normalize(d)
	}
}

// PeakAt returns the stored direction of one voxel, or zero outside the grid.
func (f *VectorField) PeakAt(idx volume.Index) r3.Vec {
	if !f.grid.Inside(idx) {
		return r3.Vec{}
	}
	return f.peaks[f.grid.FlatIndex(idx)]
}

func (f *VectorField) InitForTracking() error        { return nil }
func (f *VectorField) Grid() *volume.Grid            { return f.grid }
func (f *VectorField) Mode() Mode                    { return Deterministic }
func (f *VectorField) SetRandom(random bool)         { f.random = random }
func (f *VectorField) SetAngularThreshold(c float64) { f.angularThreshold = c }

func (f *VectorField) ProposeDirection(pos r3.Vec, hist *History, voxel volume.Index) r3.Vec {
	var old r3.Vec
	if hist != nil {
		if last, ok := hist.Last(); ok {
			old = last
		}
	}
	haveOld := r3.Norm(old) > 0.5

	var dir r3.Vec
	if !f.interpolate {
		dir = f.PeakAt(f.grid.VoxelIndex(pos))
	} else {
		ci := f.grid.WorldToIndex(pos)
		x0 := math.Floor(ci[0])
		y0 := math.Floor(ci[1])
		z0 := math.Floor(ci[2])
		fx := ci[0] - x0
		fy := ci[1] - y0
		fz := ci[2] - z0

		// Peaks are sign-ambiguous; align each contribution before blending.
		ref := old
		for dz := 0; dz < 2; dz++ {
			wz := fz
			if dz == 0 {
				wz = 1 - fz
			}
			for dy := 0; dy < 2; dy++ {
				wy := fy
				if dy == 0 {
					wy = 1 - fy
				}
				for dx := 0; dx < 2; dx++ {
					wx := fx
					if dx == 0 {
						wx = 1 - fx
					}
					v := f.PeakAt(volume.Index{int(x0) + dx, int(y0) + dy, int(z0) + dz})
					if r3.Norm(v) == 0 {
						continue
					}
					if r3.Norm(ref) > 0 && r3.Dot(v, ref) < 0 {
						v = r3.Scale(-1, v)
					}
					if r3.Norm(ref) == 0 {
						ref = v
					}
					dir = r3.Add(dir, r3.Scale(wx*wy*wz, v))
				}
			}
		}
	}

	if r3.Norm(dir) < 1e-6 {
		return r3.Vec{}
	}
	dir = normalize(dir)

	if haveOld {
		if r3.Dot(dir, old) < 0 {
			dir = r3.Scale(-1, dir)
		}
		if r3.Dot(dir, old) < f.angularThreshold {
			return r3.Vec{}
		}
	}
	return dir
}

// FieldFunc adapts a plain function to the DirectionField interface. Used
// for synthetic fields in tests and the demo command.
type FieldFunc struct {
	grid *volume.Grid
	mode Mode
	fn   func(pos r3.Vec, hist *History, voxel volume.Index) r3.Vec

	angularThreshold float64
	random           bool
}

func NewFieldFunc(grid *volume.Grid, mode Mode, fn func(pos r3.Vec, hist *History, voxel volume.Index) r3.Vec) *FieldFunc {
	return &FieldFunc{grid: grid, mode: mode, fn: fn, angularThreshold: -1}
}

func (f *FieldFunc) InitForTracking() error        { return nil }
func (f *FieldFunc) Grid() *volume.Grid            { return f.grid }
func (f *FieldFunc) Mode() Mode                    { return f.mode }
func (f *FieldFunc) SetRandom(random bool)         { f.random = random }
func (f *FieldFunc) SetAngularThreshold(c float64) { f.angularThreshold = c }

func (f *FieldFunc) ProposeDirection(pos r3.Vec, hist *History, voxel volume.Index) r3.Vec {
	return f.fn(pos, hist, voxel)
}
