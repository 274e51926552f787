package tracking

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// sphereShell returns n unit vectors distributed over the sphere on an
// equal-area spiral: elevations with uniform cos spacing, azimuths advanced
// by a golden-section increment. Fewer than two points yields no shell.
func sphereShell(n int) []r3.Vec {
	if n < 2 {
		return nil
	}

	theta := make([]float64, n)
	phi := make([]float64, n)
	c := math.Sqrt(4 * math.Pi)

	for i := 0; i < n; i++ {
		t := -1 + 2*float64(i)/float64(n-1)
		theta[i] = math.Acos(t) - math.Pi/2
		if i > 0 && i < n-1 {
			phi[i] = phi[i-1] + c/math.Sqrt(float64(n)*(1-t*t))
		}
	}

	shell := make([]r3.Vec, n)
	for i := range shell {
		shell[i] = r3.Vec{
			X: math.Cos(theta[i]) * math.Cos(phi[i]),
			Y: math.Cos(theta[i]) * math.Sin(phi[i]),
			Z: math.Sin(theta[i]),
		}
	}
	return shell
}
