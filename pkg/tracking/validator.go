package tracking

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"

	"fibertrack/pkg/volume"
)

// EndpointConstraint selects the acceptance rule applied to the two
// endpoints of a finished streamline.
type EndpointConstraint int

const (
	// ConstraintNone accepts every streamline.
	ConstraintNone EndpointConstraint = iota

	// EPSInTarget requires both endpoints inside the target region.
	EPSInTarget

	// EPSInTargetLabelDiff requires both endpoints on positive target
	// labels with differing values (connecting two distinct regions).
	EPSInTargetLabelDiff

	// EPSInSeedAndTarget requires one endpoint in the seed region and the
	// other in the target region.
	EPSInSeedAndTarget

	// MinOneEPInTarget requires at least one endpoint in the target region.
	MinOneEPInTarget

	// OneEPInTarget requires exactly one endpoint in the target region.
	OneEPInTarget

	// NoEPInTarget rejects streamlines touching the target region with
	// either endpoint.
	NoEPInTarget
)

var constraintNames = map[EndpointConstraint]string{
	ConstraintNone:       "none",
	EPSInTarget:          "eps-in-target",
	EPSInTargetLabelDiff: "eps-in-target-labeldiff",
	EPSInSeedAndTarget:   "eps-in-seed-and-target",
	MinOneEPInTarget:     "min-one-ep-in-target",
	OneEPInTarget:        "one-ep-in-target",
	NoEPInTarget:         "no-ep-in-target",
}

func (c EndpointConstraint) String() string {
	if s, ok := constraintNames[c]; ok {
		return s
	}
	return fmt.Sprintf("endpoint-constraint(%d)", int(c))
}

// ParseEndpointConstraint maps the configuration-file spelling of a
// constraint to its value.
func ParseEndpointConstraint(s string) (EndpointConstraint, error) {
	for c, name := range constraintNames {
		if s == name {
			return c, nil
		}
	}
	return ConstraintNone, fmt.Errorf("tracking: unknown endpoint constraint %q", s)
}

// Configuration errors raised before tracking starts when the chosen
// endpoint constraint needs a mask image that was not supplied.
var (
	ErrNoTargetImage = errors.New("tracking: endpoint constraint requires a target image")
	ErrNoSeedImage   = errors.New("tracking: endpoint constraint requires a seed image")
)

// validateConstraint checks once, at run start, that the masks required by
// the constraint are present.
func validateConstraint(c EndpointConstraint, seedSet, targetSet bool) error {
	switch c {
	case ConstraintNone:
		return nil
	case EPSInSeedAndTarget:
		if !targetSet {
			return fmt.Errorf("%s: %w", c, ErrNoTargetImage)
		}
		if !seedSet {
			return fmt.Errorf("%s: %w", c, ErrNoSeedImage)
		}
		return nil
	case EPSInTarget, EPSInTargetLabelDiff, MinOneEPInTarget, OneEPInTarget, NoEPInTarget:
		if !targetSet {
			return fmt.Errorf("%s: %w", c, ErrNoTargetImage)
		}
		return nil
	}
	return fmt.Errorf("tracking: unknown endpoint constraint %d", int(c))
}

// endpointValidator is the state-free per-fiber predicate. Mask presence has
// already been preflighted; the predicate only inspects the two endpoints.
type endpointValidator struct {
	constraint  EndpointConstraint
	seed        *volume.ScalarField
	target      *volume.ScalarField
	interpolate bool
}

func (v *endpointValidator) isValid(fib []r3.Vec) bool {
	if v.constraint == ConstraintNone {
		return true
	}
	if len(fib) == 0 {
		return false
	}
	front := fib[0]
	back := fib[len(fib)-1]

	inTarget := func(p r3.Vec) bool { return v.target.Inside(p, v.interpolate) }
	inSeed := func(p r3.Vec) bool { return v.seed.Inside(p, v.interpolate) }

	switch v.constraint {
	case EPSInTarget:
		return inTarget(front) && inTarget(back)

	case EPSInTargetLabelDiff:
		// Labels are identities, not densities: always sample nearest.
		v1 := v.target.ValueAt(front, false)
		v2 := v.target.ValueAt(back, false)
		return v1 > 0 && v2 > 0 && v1 != v2

	case EPSInSeedAndTarget:
		if inSeed(front) && inTarget(back) {
			return true
		}
		return inSeed(back) && inTarget(front)

	case MinOneEPInTarget:
		return inTarget(front) || inTarget(back)

	case OneEPInTarget:
		return inTarget(front) != inTarget(back)

	case NoEPInTarget:
		return !inTarget(front) && !inTarget(back)
	}
	return true
}
