package tracking

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestJoinPasses(t *testing.T) {
	backward := []r3.Vec{{X: -1}, {X: -2}, {X: -3}}
	forward := []r3.Vec{{X: 1}, {X: 2}}
	seed := r3.Vec{}

	joined := joinPasses(backward, seed, forward)
	assert.Equal(t, []r3.Vec{{X: -3}, {X: -2}, {X: -1}, {}, {X: 1}, {X: 2}}, joined)

	assert.Equal(t, []r3.Vec{{X: 5}}, joinPasses(nil, r3.Vec{X: 5}, nil))
}

func TestPauseGate(t *testing.T) {
	g := newPauseGate()
	g.set(true)

	released := make(chan struct{})
	go func() {
		g.wait()
		close(released)
	}()

	select {
	case <-released:
		t.Fatal("wait returned while paused")
	case <-time.After(20 * time.Millisecond):
	}

	g.set(false)
	select {
	case <-released:
	case <-time.After(time.Second):
		t.Fatal("wait did not return after resume")
	}

	// Unpaused gate does not block.
	g.wait()
}

func TestCheckCurvature(t *testing.T) {
	integ := &integrator{stepSize: 0.5, minVoxel: 1}

	straight := func(n int, d r3.Vec) []r3.Vec {
		dirs := make([]r3.Vec, n)
		for i := range dirs {
			dirs[i] = d
		}
		return dirs
	}

	t.Run("too few directions", func(t *testing.T) {
		assert.Equal(t, 0.0, integ.checkCurvature(straight(3, r3.Vec{X: 1}), nil))
		assert.Equal(t, 0.0, integ.checkCurvature(straight(3, r3.Vec{X: 1}), straight(4, r3.Vec{X: 1})))
	})

	t.Run("straight run has no deviation", func(t *testing.T) {
		assert.InDelta(t, 0, integ.checkCurvature(straight(12, r3.Vec{X: 1}), nil), 1e-9)
	})

	t.Run("antiparallel directions do not cancel", func(t *testing.T) {
		dirs := make([]r3.Vec, 12)
		for i := range dirs {
			if i%2 == 0 {
				dirs[i] = r3.Vec{X: 1}
			} else {
				dirs[i] = r3.Vec{X: -1}
			}
		}
		// Sign alignment folds these onto one axis: no deviation.
		assert.InDelta(t, 0, integ.checkCurvature(dirs, nil), 1e-9)
	})

	t.Run("tight turn shows large deviation", func(t *testing.T) {
		dirs := make([]r3.Vec, 12)
		for i := range dirs {
			a := float64(i) * 30 * math.Pi / 180
			dirs[i] = r3.Vec{X: math.Cos(a), Y: math.Sin(a)}
		}
		assert.Greater(t, integ.checkCurvature(dirs, nil), 15.0)
	})

	t.Run("old bend outside the window is ignored", func(t *testing.T) {
		// A sharp turn long past, followed by a straight trailing window.
		dirs := straight(4, r3.Vec{Y: 1})
		dirs = append(dirs, straight(10, r3.Vec{X: 1})...)
		assert.InDelta(t, 0, integ.checkCurvature(dirs, nil), 1e-9)
	})

	t.Run("window continues into the other pass", func(t *testing.T) {
		// Two steps into the current pass: the window is filled from the
		// other pass's directions across the seed.
		recent := straight(2, r3.Vec{X: 1})

		assert.InDelta(t, 0, integ.checkCurvature(recent, straight(10, r3.Vec{X: 1})), 1e-9)
		assert.Greater(t, integ.checkCurvature(recent, straight(10, r3.Vec{Y: 1})), 15.0)
	})
}
