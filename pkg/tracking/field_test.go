package tracking

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/spatial/r3"

	"fibertrack/pkg/volume"
)

func histWith(dirs ...r3.Vec) *History {
	h := newHistory(len(dirs))
	for _, d := range dirs {
		h.Push(d)
	}
	return h
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, r3.Vec{}, normalize(r3.Vec{}))

	u := normalize(r3.Vec{X: 3, Y: 4})
	assert.InDelta(t, 0.6, u.X, 1e-12)
	assert.InDelta(t, 0.8, u.Y, 1e-12)
	assert.False(t, math.IsNaN(normalize(r3.Vec{}).X))
}

func TestVectorField(t *testing.T) {
	grid := volume.NewGrid([3]int{8, 8, 8}, r3.Vec{X: 1, Y: 1, Z: 1}, r3.Vec{})

	t.Run("peaks are normalized on set", func(t *testing.T) {
		f := NewVectorField(grid, false)
		f.SetPeak(volume.Index{1, 1, 1}, r3.Vec{X: 2})
		assert.Equal(t, r3.Vec{X: 1}, f.PeakAt(volume.Index{1, 1, 1}))

		f.SetPeak(volume.Index{20, 0, 0}, r3.Vec{X: 1})
		assert.Equal(t, r3.Vec{}, f.PeakAt(volume.Index{20, 0, 0}))
	})

	t.Run("nearest proposal is sign aligned with history", func(t *testing.T) {
		f := NewVectorField(grid, false)
		f.SetPeak(volume.Index{4, 4, 4}, r3.Vec{X: 1})

		pos := r3.Vec{X: 4, Y: 4, Z: 4}
		d := f.ProposeDirection(pos, histWith(r3.Vec{X: -1}), volume.Index{4, 4, 4})
		assert.InDelta(t, -1, d.X, 1e-12)

		d = f.ProposeDirection(pos, histWith(r3.Vec{X: 1}), volume.Index{4, 4, 4})
		assert.InDelta(t, 1, d.X, 1e-12)
	})

	t.Run("angular threshold suppresses sharp bends", func(t *testing.T) {
		f := NewVectorField(grid, false)
		f.SetPeak(volume.Index{4, 4, 4}, r3.Vec{Y: 1})
		f.SetAngularThreshold(math.Cos(45 * math.Pi / 180))

		// Peak is orthogonal to the previous direction: 90 degree bend.
		d := f.ProposeDirection(r3.Vec{X: 4, Y: 4, Z: 4}, histWith(r3.Vec{X: 1}), volume.Index{4, 4, 4})
		assert.Equal(t, r3.Vec{}, d)
	})

	t.Run("interpolation aligns sign ambiguous peaks", func(t *testing.T) {
		f := NewVectorField(grid, true)
		// Same orientation stored with opposite signs in adjacent voxels.
		f.SetPeak(volume.Index{3, 4, 4}, r3.Vec{X: 1})
		f.SetPeak(volume.Index{4, 4, 4}, r3.Vec{X: -1})

		d := f.ProposeDirection(r3.Vec{X: 3.5, Y: 4, Z: 4}, histWith(r3.Vec{X: 1}), volume.Index{3, 4, 4})
		assert.InDelta(t, 1, d.X, 1e-9)
		assert.InDelta(t, 0, d.Y, 1e-9)
	})

	t.Run("no peak means no proposal", func(t *testing.T) {
		f := NewVectorField(grid, false)
		d := f.ProposeDirection(r3.Vec{X: 4, Y: 4, Z: 4}, histWith(), volume.Index{4, 4, 4})
		assert.Equal(t, r3.Vec{}, d)
	})
}

func TestFieldFunc(t *testing.T) {
	grid := volume.NewGrid([3]int{4, 4, 4}, r3.Vec{X: 1, Y: 1, Z: 1}, r3.Vec{})
	f := NewFieldFunc(grid, Probabilistic, func(pos r3.Vec, hist *History, voxel volume.Index) r3.Vec {
		return r3.Vec{Z: 1}
	})

	assert.Equal(t, Probabilistic, f.Mode())
	assert.Same(t, grid, f.Grid())
	assert.NoError(t, f.InitForTracking())
	assert.Equal(t, r3.Vec{Z: 1}, f.ProposeDirection(r3.Vec{}, histWith(), volume.Index{}))
}

func TestModeString(t *testing.T) {
	assert.Equal(t, "deterministic", Deterministic.String())
	assert.Equal(t, "probabilistic", Probabilistic.String())
}
