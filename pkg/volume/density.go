package volume

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"
)

// DensityMap accumulates streamline visitation counts on a voxel grid. It is
// the probability-map output mode of the tracker: every accepted streamline
// increments the voxels it passes through, and Rescale normalizes the counts
// to [0,1] once tracking has finished.
//
// DensityMap is not safe for concurrent use; the tracker serializes
// AddStreamline behind its accept lock.
type DensityMap struct {
	grid *Grid
	data []float64
}

// NewDensityMap creates an empty density map on the given grid.
func NewDensityMap(grid *Grid) *DensityMap {
	return &DensityMap{
		grid: grid,
		data: make([]float64, grid.NumVoxels()),
	}
}

// Grid returns the geometry the map is defined on.
func (d *DensityMap) Grid() *Grid { return d.grid }

// At returns the accumulated value of a single voxel.
func (d *DensityMap) At(idx Index) float64 {
	if !d.grid.Inside(idx) {
		return 0
	}
	return d.data[d.grid.FlatIndex(idx)]
}

// AddStreamline rasterizes one streamline into the map. Consecutive points
// falling into the same voxel count once, so densely sampled streamlines do
// not over-weight voxels relative to the step size.
func (d *DensityMap) AddStreamline(points []r3.Vec) {
	last := Index{-1, -1, -1}
	for _, p := range points {
		idx := d.grid.VoxelIndex(p)
		if idx == last {
			continue
		}
		if d.grid.Inside(idx) {
			d.data[d.grid.FlatIndex(idx)]++
		}
		last = idx
	}
}

// Rescale normalizes the map to [0,1]. A map with no visits is left as is.
func (d *DensityMap) Rescale() {
	max := floats.Max(d.data)
	if max > 0 {
		floats.Scale(1/max, d.data)
	}
}

// Max returns the largest accumulated value.
func (d *DensityMap) Max() float64 {
	return floats.Max(d.data)
}

// Data returns the underlying row-major value array.
func (d *DensityMap) Data() []float64 { return d.data }
