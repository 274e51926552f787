package tracking

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestHistory(t *testing.T) {
	t.Run("empty history has no last direction", func(t *testing.T) {
		h := newHistory(3)
		_, ok := h.Last()
		assert.False(t, ok)
		assert.Equal(t, 0, h.Len())
	})

	t.Run("push and last", func(t *testing.T) {
		h := newHistory(3)
		h.Push(r3.Vec{X: 1})
		h.Push(r3.Vec{Y: 1})

		last, ok := h.Last()
		assert.True(t, ok)
		assert.Equal(t, r3.Vec{Y: 1}, last)
		assert.Equal(t, 2, h.Len())
	})

	t.Run("capacity evicts oldest first", func(t *testing.T) {
		h := newHistory(3)
		for i := 1; i <= 5; i++ {
			h.Push(r3.Vec{X: float64(i)})
		}
		assert.Equal(t, 3, h.Len())
		assert.Equal(t, []r3.Vec{{X: 3}, {X: 4}, {X: 5}}, h.Directions())
	})

	t.Run("capacity below one is clamped", func(t *testing.T) {
		h := newHistory(0)
		h.Push(r3.Vec{X: 1})
		h.Push(r3.Vec{X: 2})
		assert.Equal(t, 1, h.Len())
		last, _ := h.Last()
		assert.Equal(t, r3.Vec{X: 2}, last)
	})
}

func TestSphereShell(t *testing.T) {
	t.Run("fewer than two points yields no shell", func(t *testing.T) {
		assert.Nil(t, sphereShell(0))
		assert.Nil(t, sphereShell(1))
	})

	t.Run("all directions are unit length", func(t *testing.T) {
		shell := sphereShell(30)
		assert.Len(t, shell, 30)
		for i, d := range shell {
			assert.InDelta(t, 1, r3.Norm(d), 1e-12, "probe %d", i)
		}
	})

	t.Run("spiral runs pole to pole", func(t *testing.T) {
		shell := sphereShell(20)
		assert.InDelta(t, 1, shell[0].Z, 1e-12)
		assert.InDelta(t, -1, shell[len(shell)-1].Z, 1e-12)
	})

	t.Run("covers both hemispheres", func(t *testing.T) {
		shell := sphereShell(30)
		fwd, bwd := 0, 0
		for _, d := range shell {
			if d.X > 0 {
				fwd++
			}
			if d.X < 0 {
				bwd++
			}
		}
		assert.Greater(t, fwd, 5)
		assert.Greater(t, bwd, 5)
	})

	t.Run("no NaN at the poles", func(t *testing.T) {
		for _, d := range sphereShell(15) {
			assert.False(t, math.IsNaN(d.X) || math.IsNaN(d.Y) || math.IsNaN(d.Z))
		}
	})
}
