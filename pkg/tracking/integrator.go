package tracking

import (
	"math"
	"sync"
	"sync/atomic"

	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/gonum/stat"

	"fibertrack/pkg/volume"
)

// pauseGate halts workers in place while paused and resumes them on signal.
// Workers block on a condition variable instead of spinning.
type pauseGate struct {
	mu     sync.Mutex
	cond   *sync.Cond
	paused bool
}

func newPauseGate() *pauseGate {
	g := &pauseGate{}
	g.cond = sync.NewCond(&g.mu)
	return g
}

func (g *pauseGate) wait() {
	g.mu.Lock()
	for g.paused {
		g.cond.Wait()
	}
	g.mu.Unlock()
}

func (g *pauseGate) set(paused bool) {
	g.mu.Lock()
	g.paused = paused
	g.mu.Unlock()
	if !paused {
		g.cond.Broadcast()
	}
}

// integrator advances one streamline with explicit Euler steps, consulting
// the selector for each next direction. Termination (exclusion hit, loop
// detected, max length, no direction, step budget) is never an error; the
// accumulated length is returned along with the exclusion flag.
type integrator struct {
	sel  *selector
	grid *volume.Grid

	exclusion        *volume.ScalarField
	interpolateMasks bool

	stepSize  float64
	minVoxel  float64
	maxSteps  int
	maxTract  float64
	loopCheck float64
	numPrev   int

	abort *atomic.Bool
	pause *pauseGate
}

// joinPasses assembles the final point order of a streamline: the backward
// pass reversed, then the seed, then the forward pass.
func joinPasses(backward []r3.Vec, seed r3.Vec, forward []r3.Vec) []r3.Vec {
	out := make([]r3.Vec, 0, len(backward)+1+len(forward))
	for i := len(backward) - 1; i >= 0; i-- {
		out = append(out, backward[i])
	}
	out = append(out, seed)
	return append(out, forward...)
}

// propagate grows one pass of the streamline from pos along dir until a
// termination condition fires, appending points and directions in step order.
// prev carries the other pass's directions so the loop check can look across
// the seed. It returns the updated tract length and whether the streamline
// entered an exclusion region.
func (g *integrator) propagate(pos, dir r3.Vec, fib, dirs *[]r3.Vec, prev []r3.Vec, tractLength float64) (float64, bool) {
	hist := newHistory(g.numPrev)
	for i := 0; i < g.numPrev-1; i++ {
		hist.Push(r3.Vec{})
	}

	for step := 0; step < g.maxSteps; step++ {
		if g.abort.Load() {
			return tractLength, false
		}
		g.pause.wait()

		voxel := g.grid.VoxelIndex(pos)
		pos = r3.Add(pos, r3.Scale(g.stepSize, dir))

		if g.exclusion != nil && g.exclusion.Inside(pos, g.interpolateMasks) {
			return tractLength, true
		}

		dir = normalize(dir)
		*fib = append(*fib, pos)
		*dirs = append(*dirs, dir)
		tractLength += g.stepSize

		if g.loopCheck >= 0 && g.checkCurvature(*dirs, prev) > g.loopCheck {
			return tractLength, false
		}
		if tractLength > g.maxTract {
			return tractLength, false
		}

		hist.Push(dir)
		dir = g.sel.selectDirection(pos, hist, voxel)
		if r3.Norm(dir) < stopDirectionNorm {
			return tractLength, false
		}
	}
	return tractLength, false
}

// checkCurvature returns the mean angular deviation in degrees of the most
// recent directions from their mean, over a window of at least 4 voxel
// extents or 8 steps of arc length. recent is the current pass in step order,
// newest last; once exhausted, the window continues into prev, the other
// pass's directions oldest first. Directions are sign-aligned with the
// running mean so antiparallel passes do not cancel.
func (g *integrator) checkCurvature(recent, prev []r3.Vec) float64 {
	total := len(recent) + len(prev)
	if total < 8 {
		return 0
	}
	window := math.Max(g.minVoxel*4, g.stepSize*8)
	limit := total
	if len(prev) > 0 {
		limit--
	}

	at := func(i int) r3.Vec {
		if i < len(recent) {
			return recent[len(recent)-1-i]
		}
		return prev[i-len(recent)]
	}

	var vectors []r3.Vec
	var mean r3.Vec
	dist := 0.0
	for c := 0; dist < window && c < limit; c++ {
		dist += g.stepSize
		v := at(c)
		if r3.Dot(v, mean) < 0 {
			v = r3.Scale(-1, v)
		}
		vectors = append(vectors, v)
		mean = r3.Add(mean, v)
	}
	if len(vectors) == 0 || r3.Norm(mean) == 0 {
		return 0
	}
	mean = normalize(mean)

	angles := make([]float64, len(vectors))
	for i, v := range vectors {
		a := math.Abs(r3.Dot(mean, v))
		if a > 1 {
			a = 1
		}
		angles[i] = math.Acos(a) * 180 / math.Pi
	}
	return stat.Mean(angles, nil)
}
