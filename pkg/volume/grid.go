// Package volume provides the voxel-grid substrate shared by all tracking
// components: grid geometry with world/index transforms, scalar mask images
// with trilinear or nearest-neighbor sampling, and the density map used for
// probabilistic output accumulation.
package volume

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Index identifies a single voxel by its integer grid coordinates.
type Index [3]int

// Grid describes the geometry of a regular voxel grid: its extent in voxels,
// the physical voxel spacing in mm, the world-space position of voxel
// (0,0,0), and a 3x3 orientation matrix mapping grid axes to world axes.
//
// The orientation matrix defaults to identity, which covers the common case
// of axis-aligned acquisitions. All images participating in one tracking run
// are expected to share the same grid.
type Grid struct {
	// Size is the grid extent in voxels along x, y, z.
	Size [3]int

	// Spacing is the physical size of one voxel in mm along each axis.
	Spacing r3.Vec

	// Origin is the world-space position of the center of voxel (0,0,0).
	Origin r3.Vec

	direction *mat.Dense
	inverse   *mat.Dense
}

// NewGrid creates a grid with identity orientation.
func NewGrid(size [3]int, spacing, origin r3.Vec) *Grid {
	ident := mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, 1, 0,
		0, 0, 1,
	})
	g := &Grid{
		Size:      size,
		Spacing:   spacing,
		Origin:    origin,
		direction: ident,
	}
	g.inverse = mat.DenseCopyOf(ident)
	return g
}

// SetDirection replaces the grid orientation matrix. The matrix must be 3x3
// and invertible; its inverse is computed once and reused for all
// world-to-index transforms.
func (g *Grid) SetDirection(d *mat.Dense) error {
	r, c := d.Dims()
	if r != 3 || c != 3 {
		return fmt.Errorf("volume: direction matrix must be 3x3, got %dx%d", r, c)
	}
	var inv mat.Dense
	if err := inv.Inverse(d); err != nil {
		return fmt.Errorf("volume: direction matrix is not invertible: %w", err)
	}
	g.direction = mat.DenseCopyOf(d)
	g.inverse = &inv
	return nil
}

// Direction returns the grid orientation matrix.
func (g *Grid) Direction() *mat.Dense {
	return g.direction
}

func mulVec(m *mat.Dense, v r3.Vec) r3.Vec {
	return r3.Vec{
		X: m.At(0, 0)*v.X + m.At(0, 1)*v.Y + m.At(0, 2)*v.Z,
		Y: m.At(1, 0)*v.X + m.At(1, 1)*v.Y + m.At(1, 2)*v.Z,
		Z: m.At(2, 0)*v.X + m.At(2, 1)*v.Y + m.At(2, 2)*v.Z,
	}
}

// IndexToWorld transforms a continuous voxel index to world coordinates.
func (g *Grid) IndexToWorld(ci [3]float64) r3.Vec {
	scaled := r3.Vec{
		X: ci[0] * g.Spacing.X,
		Y: ci[1] * g.Spacing.Y,
		Z: ci[2] * g.Spacing.Z,
	}
	return r3.Add(g.Origin, mulVec(g.direction, scaled))
}

// WorldToIndex transforms a world position to a continuous voxel index.
func (g *Grid) WorldToIndex(p r3.Vec) [3]float64 {
	local := mulVec(g.inverse, r3.Sub(p, g.Origin))
	return [3]float64{
		local.X / g.Spacing.X,
		local.Y / g.Spacing.Y,
		local.Z / g.Spacing.Z,
	}
}

// VoxelIndex returns the voxel containing the world position p. The result
// may lie outside the grid; check with Inside.
func (g *Grid) VoxelIndex(p r3.Vec) Index {
	ci := g.WorldToIndex(p)
	return Index{
		int(math.Round(ci[0])),
		int(math.Round(ci[1])),
		int(math.Round(ci[2])),
	}
}

// Inside reports whether idx lies within the grid extent.
func (g *Grid) Inside(idx Index) bool {
	for d := 0; d < 3; d++ {
		if idx[d] < 0 || idx[d] >= g.Size[d] {
			return false
		}
	}
	return true
}

// FlatIndex converts a voxel index to an offset into a row-major data array.
func (g *Grid) FlatIndex(idx Index) int {
	return idx[2]*g.Size[0]*g.Size[1] + idx[1]*g.Size[0] + idx[0]
}

// NumVoxels returns the total number of voxels in the grid.
func (g *Grid) NumVoxels() int {
	return g.Size[0] * g.Size[1] * g.Size[2]
}

// MinSpacing returns the smallest voxel extent in mm. Step size and sampling
// distance defaults are derived from it.
func (g *Grid) MinSpacing() float64 {
	m := g.Spacing.X
	if g.Spacing.Y < m {
		m = g.Spacing.Y
	}
	if g.Spacing.Z < m {
		m = g.Spacing.Z
	}
	return m
}
