package compare

import (
	"fmt"
	"math"

	"github.com/gomlx/opcheck/pkg/core/errs"
)

// Tolerance is the closeness policy used to judge two outputs equal.
//
// If ExactMatch is set, elements must be bit-identical (so -0.0 differs from +0.0, and NaN payloads matter).
// Otherwise a pair of elements (reference r, candidate c) passes if |r - c| <= Absolute + Relative * |r|,
// evaluated in float64 with a few ulps of slack for its rounding (see Within).
// The relative term uses the magnitude of the reference value only, so the test is not symmetric.
type Tolerance struct {
	Absolute   float64 `yaml:"absolute"`
	Relative   float64 `yaml:"relative"`
	ExactMatch bool    `yaml:"exact_match"`
}

var (
	// DefaultTolerance for forward outputs.
	DefaultTolerance = Tolerance{Relative: 1e-5}

	// DefaultGradientTolerance for gradients, which usually accumulate more rounding.
	DefaultGradientTolerance = Tolerance{Absolute: 1e-6, Relative: 1e-3}

	// Exact requires bit-identical outputs.
	Exact = Tolerance{ExactMatch: true}
)

// Validate that the epsilons are finite and non-negative.
func (tol Tolerance) Validate() error {
	for _, eps := range []struct {
		name  string
		value float64
	}{{"absolute", tol.Absolute}, {"relative", tol.Relative}} {
		if math.IsNaN(eps.value) || math.IsInf(eps.value, 0) || eps.value < 0 {
			return &errs.InvalidAttributeError{Attribute: "tolerance." + eps.name, Value: eps.value,
				Reason: "must be finite and >= 0"}
		}
	}
	return nil
}

// boundaryULPs is the rounding slack of the inclusive boundary, in float64 ulps of the magnitudes
// compared: both |r - c| and Absolute + Relative*|r| are rounded, so a candidate computed as exactly
// r + Absolute + Relative*|r| can land a few ulps beyond the computed bound.
const boundaryULPs = 4

// Within returns whether the absolute difference diff between a reference value of magnitude
// refMagnitude and the candidate is within tolerance. The boundary is inclusive, up to boundaryULPs
// of float64 rounding.
func (tol Tolerance) Within(diff, refMagnitude float64) bool {
	bound := tol.bound(refMagnitude)
	if diff <= bound {
		return true
	}
	return diff <= bound+boundaryULPs*ulp(max(refMagnitude+diff, bound))
}

// bound is the largest difference allowed for a reference of the given magnitude, without rounding slack.
// Integer distances are exact, so integers are compared against it directly.
func (tol Tolerance) bound(refMagnitude float64) float64 {
	return tol.Absolute + tol.Relative*refMagnitude
}

// ulp is the distance from x >= 0 to the next float64 above it.
func ulp(x float64) float64 {
	return math.Nextafter(x, math.Inf(1)) - x
}

// String implements fmt.Stringer.
func (tol Tolerance) String() string {
	if tol.ExactMatch {
		return "exact"
	}
	return fmt.Sprintf("abs=%g, rel=%g", tol.Absolute, tol.Relative)
}
