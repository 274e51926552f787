package volume

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// ScalarField is a dense scalar image on a Grid. Tracking uses it for the
// tracking mask and the stop, seed, target and exclusion regions. Values are
// stored in row-major order (x fastest).
type ScalarField struct {
	grid *Grid
	data []float64
}

// NewScalarField creates a zero-filled scalar field on the given grid.
func NewScalarField(grid *Grid) *ScalarField {
	return &ScalarField{
		grid: grid,
		data: make([]float64, grid.NumVoxels()),
	}
}

// NewUniformField creates a scalar field with every voxel set to value.
// Tracking allocates these as stand-ins for absent mask images.
func NewUniformField(grid *Grid, value float64) *ScalarField {
	f := NewScalarField(grid)
	if value != 0 {
		for i := range f.data {
			f.data[i] = value
		}
	}
	return f
}

// Grid returns the geometry the field is defined on.
func (f *ScalarField) Grid() *Grid { return f.grid }

// Set assigns the value of a single voxel. Out-of-grid indices are ignored.
func (f *ScalarField) Set(idx Index, v float64) {
	if f.grid.Inside(idx) {
		f.data[f.grid.FlatIndex(idx)] = v
	}
}

// At returns the value of a single voxel, or 0 outside the grid.
func (f *ScalarField) At(idx Index) float64 {
	if !f.grid.Inside(idx) {
		return 0
	}
	return f.data[f.grid.FlatIndex(idx)]
}

// FillBox sets every voxel inside the inclusive index range [lo, hi] to v.
// Convenient for building region masks.
func (f *ScalarField) FillBox(lo, hi Index, v float64) {
	for z := lo[2]; z <= hi[2]; z++ {
		for y := lo[1]; y <= hi[1]; y++ {
			for x := lo[0]; x <= hi[0]; x++ {
				f.Set(Index{x, y, z}, v)
			}
		}
	}
}

// ValueAt samples the field at a world position. With interpolate set, the
// eight surrounding voxels are blended trilinearly; otherwise the nearest
// voxel value is returned. Positions outside the grid evaluate to 0.
func (f *ScalarField) ValueAt(p r3.Vec, interpolate bool) float64 {
	ci := f.grid.WorldToIndex(p)
	if !interpolate {
		return f.At(Index{
			int(math.Round(ci[0])),
			int(math.Round(ci[1])),
			int(math.Round(ci[2])),
		})
	}

	x0 := math.Floor(ci[0])
	y0 := math.Floor(ci[1])
	z0 := math.Floor(ci[2])
	fx := ci[0] - x0
	fy := ci[1] - y0
	fz := ci[2] - z0

	var v float64
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
				idx := Index{int(x0) + dx, int(y0) + dy, int(z0) + dz}
				v += wx * wy * wz * f.At(idx)
			}
		}
	}
	return v
}

// Inside reports whether a world position lies inside the masked region.
// Interpolated masks use a 0.5 iso-level; nearest-neighbor masks count any
// positive voxel.
func (f *ScalarField) Inside(p r3.Vec, interpolate bool) bool {
	if interpolate {
		return f.ValueAt(p, true) >= 0.5
	}
	return f.ValueAt(p, false) > 0
}
