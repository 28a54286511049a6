// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package compare implements the comparison of the outputs (or gradients) of two backends
// under a Tolerance.
//
// The comparison first checks the structure of both sets (count, names, dtypes and shapes), and only
// if it matches compares the values element by element. A structural disagreement is reported as
// an *errs.StructuralMismatchError, which is never tolerated.
package compare

import (
	"fmt"
	"math"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/opcheck/pkg/core/dtypes"
	"github.com/gomlx/opcheck/pkg/core/errs"
	"github.com/gomlx/opcheck/pkg/core/tensors"
	"golang.org/x/exp/constraints"
)

// DefaultMaxMismatches is the default number of mismatching elements kept for diagnostics.
const DefaultMaxMismatches = 10

// Kinds of sets compared.
const (
	KindOutputs   = "outputs"
	KindGradients = "gradients"
)

// Comparator compares reference and candidate sets. Create it with New.
type Comparator struct {
	tolerance     Tolerance
	maxMismatches int
	kind          string
}

// New returns a Comparator of outputs with the given tolerance and DefaultMaxMismatches.
func New(tolerance Tolerance) *Comparator {
	return &Comparator{tolerance: tolerance, maxMismatches: DefaultMaxMismatches, kind: KindOutputs}
}

// WithMaxMismatches sets the maximum number of mismatches kept in the Result. It returns itself.
// All mismatches are still counted.
func (c *Comparator) WithMaxMismatches(n int) *Comparator {
	c.maxMismatches = max(n, 0)
	return c
}

// WithKind sets the kind of sets compared, KindOutputs or KindGradients, used in reports. It returns itself.
func (c *Comparator) WithKind(kind string) *Comparator {
	c.kind = kind
	return c
}

// Compare reference and candidate outputs with the default comparator for the tolerance.
func Compare(reference, candidate tensors.Set, tolerance Tolerance) *Result {
	return New(tolerance).Compare(reference, candidate)
}

// Mismatch is one element that failed the comparison.
type Mismatch struct {
	// Name of the output (or gradient).
	Name string

	// Index of the element, one value per axis.
	Index []int

	// Reference and Candidate values, formatted.
	Reference, Candidate string

	// AbsError is |reference - candidate|, +Inf if only one side is NaN or infinite.
	AbsError float64
}

// String implements fmt.Stringer.
func (m Mismatch) String() string {
	return fmt.Sprintf("%s%v: reference=%s, candidate=%s", m.Name, m.Index, m.Reference, m.Candidate)
}

// Stats of the comparison of one output.
type Stats struct {
	Name          string
	DType         dtypes.DType
	Size          int
	NumMismatches int

	// MaxAbsError and MaxRelError over the elements where both values are finite.
	// MaxRelError is relative to the reference magnitude, and +Inf if the reference is 0 and the candidate is not.
	MaxAbsError, MaxRelError float64

	// MaxULP is the maximum distance in units of last place over the finite float elements.
	MaxULP uint64
}

// Result of a comparison.
type Result struct {
	Kind      string
	Tolerance Tolerance

	// Structural is set if the sets disagree on count, names, dtypes or shapes. If so, no values are compared.
	Structural *errs.StructuralMismatchError

	// Stats per output, in order.
	Stats []Stats

	// NumMismatches over all outputs, and the first few Mismatches.
	NumMismatches int
	Mismatches    []Mismatch
}

// Passed returns whether the structure matches and every element is within tolerance.
func (r *Result) Passed() bool {
	return r.Structural == nil && r.NumMismatches == 0
}

// Err returns the structural mismatch error if there was one, or nil.
func (r *Result) Err() error {
	if r.Structural == nil {
		return nil
	}
	return r.Structural
}

// String returns a one-line summary of the result, followed by the kept mismatches, one per line.
func (r *Result) String() string {
	if r.Structural != nil {
		return r.Structural.Error()
	}
	var numElements int
	var maxAbs, maxRel float64
	var maxULP uint64
	for _, s := range r.Stats {
		numElements += s.Size
		maxAbs, maxRel, maxULP = max(maxAbs, s.MaxAbsError), max(maxRel, s.MaxRelError), max(maxULP, s.MaxULP)
	}
	var sb strings.Builder
	if r.Passed() {
		fmt.Fprintf(&sb, "%s match (%s): %d tensors, %s elements", r.Kind, r.Tolerance, len(r.Stats),
			humanize.Comma(int64(numElements)))
	} else {
		fmt.Fprintf(&sb, "%s mismatch (%s): %s of %s elements differ", r.Kind, r.Tolerance,
			humanize.Comma(int64(r.NumMismatches)), humanize.Comma(int64(numElements)))
	}
	if !r.Tolerance.ExactMatch {
		fmt.Fprintf(&sb, ", max abs error %.3g, max rel error %.3g, max ulp %d", maxAbs, maxRel, maxULP)
	}
	for _, m := range r.Mismatches {
		sb.WriteString("\n\t")
		sb.WriteString(m.String())
	}
	if hidden := r.NumMismatches - len(r.Mismatches); hidden > 0 {
		fmt.Fprintf(&sb, "\n\t... and %s more", humanize.Comma(int64(hidden)))
	}
	return sb.String()
}

// Compare the reference and candidate sets.
func (c *Comparator) Compare(reference, candidate tensors.Set) *Result {
	result := &Result{Kind: c.kind, Tolerance: c.tolerance}
	if differences := structuralDifferences(reference, candidate); len(differences) > 0 {
		result.Structural = &errs.StructuralMismatchError{Kind: c.kind, Differences: differences}
		return result
	}
	result.Stats = make([]Stats, len(reference))
	for ii, ref := range reference {
		result.Stats[ii] = c.compareTensors(result, ref.Name, ref.Tensor, candidate[ii].Tensor)
		result.NumMismatches += result.Stats[ii].NumMismatches
	}
	return result
}

// structuralDifferences lists the differences in count, names, dtypes and shapes.
func structuralDifferences(reference, candidate tensors.Set) (differences []string) {
	if len(reference) != len(candidate) {
		return []string{fmt.Sprintf("reference has %d tensors %q, candidate has %d tensors %q",
			len(reference), reference.Names(), len(candidate), candidate.Names())}
	}
	for ii, ref := range reference {
		cand := candidate[ii]
		if ref.Name != cand.Name {
			differences = append(differences, fmt.Sprintf("#%d: reference name %q, candidate name %q", ii, ref.Name, cand.Name))
			continue
		}
		if ref.Tensor == nil || cand.Tensor == nil {
			differences = append(differences, fmt.Sprintf("%q: missing tensor (reference=%v, candidate=%v)",
				ref.Name, ref.Tensor != nil, cand.Tensor != nil))
			continue
		}
		refShape, candShape := ref.Tensor.Shape(), cand.Tensor.Shape()
		if refShape.DType != candShape.DType {
			differences = append(differences, fmt.Sprintf("%q: reference dtype %s, candidate dtype %s",
				ref.Name, refShape.DType, candShape.DType))
		}
		if !refShape.EqualDimensions(candShape) {
			differences = append(differences, fmt.Sprintf("%q: reference dimensions %v, candidate dimensions %v",
				ref.Name, refShape.Dimensions, candShape.Dimensions))
		}
	}
	return
}

// compareTensors of the same shape, appending kept mismatches to result.
func (c *Comparator) compareTensors(result *Result, name string, ref, cand *tensors.Tensor) Stats {
	shape := ref.Shape()
	stats := Stats{Name: name, DType: shape.DType, Size: shape.Size()}
	for flatIdx := range stats.Size {
		ok, absErr := c.compareElement(&stats, ref, cand, flatIdx)
		if ok {
			continue
		}
		stats.NumMismatches++
		if len(result.Mismatches) < c.maxMismatches {
			result.Mismatches = append(result.Mismatches, Mismatch{
				Name:      name,
				Index:     shape.UnflattenIndex(flatIdx),
				Reference: formatElement(ref, flatIdx),
				Candidate: formatElement(cand, flatIdx),
				AbsError:  absErr,
			})
		}
	}
	return stats
}

// compareElement returns whether the element at flatIdx matches, and its absolute error.
// It updates the error statistics.
func (c *Comparator) compareElement(stats *Stats, ref, cand *tensors.Tensor, flatIdx int) (ok bool, absErr float64) {
	dtype := stats.DType
	refBits, candBits := ref.BitsAt(flatIdx), cand.BitsAt(flatIdx)
	if c.tolerance.ExactMatch {
		if refBits == candBits {
			return true, 0
		}
		if dtype.IsFloat() {
			r, v := ref.Float64At(flatIdx), cand.Float64At(flatIdx)
			return false, math.Abs(r - v)
		}
		return false, float64(integerDistance(dtype, refBits, candBits))
	}

	if !dtype.IsFloat() {
		if refBits == candBits {
			return true, 0
		}
		diff := float64(integerDistance(dtype, refBits, candBits))
		refMagnitude := math.Abs(ref.Float64At(flatIdx))
		stats.MaxAbsError = max(stats.MaxAbsError, diff)
		stats.MaxRelError = max(stats.MaxRelError, relativeError(diff, refMagnitude))
		return diff <= c.tolerance.bound(refMagnitude), diff
	}

	r, v := ref.Float64At(flatIdx), cand.Float64At(flatIdx)
	switch {
	case math.IsNaN(r) || math.IsNaN(v):
		if math.IsNaN(r) && math.IsNaN(v) {
			return true, 0
		}
		return false, math.Inf(1)
	case math.IsInf(r, 0) || math.IsInf(v, 0):
		if r == v {
			return true, 0
		}
		return false, math.Inf(1)
	}
	diff := math.Abs(r - v)
	stats.MaxAbsError = max(stats.MaxAbsError, diff)
	stats.MaxRelError = max(stats.MaxRelError, relativeError(diff, math.Abs(r)))
	stats.MaxULP = max(stats.MaxULP, ulpDistance(dtype, refBits, candBits))
	return c.tolerance.Within(diff, math.Abs(r)), diff
}

func relativeError(diff, refMagnitude float64) float64 {
	if diff == 0 {
		return 0
	}
	if refMagnitude == 0 {
		return math.Inf(1)
	}
	return diff / refMagnitude
}

// integerDistance is the exact distance between two integers given by their bit patterns
// (as returned by tensors.Tensor.BitsAt).
func integerDistance(dtype dtypes.DType, a, b uint64) uint64 {
	if dtype.IsUnsigned() {
		return absDiff(a, b)
	}
	return absDiff(signExtend(a, dtype.Bits()), signExtend(b, dtype.Bits()))
}

func signExtend(bits uint64, width int) int64 {
	shift := 64 - width
	return int64(bits<<shift) >> shift
}

// absDiff returns |a - b| without overflow.
func absDiff[T constraints.Integer](a, b T) uint64 {
	if a >= b {
		return uint64(a - b)
	}
	return uint64(b - a)
}

// ulpDistance is the number of representable floats of the dtype between the two values.
// +0 and -0 are at distance 0.
func ulpDistance(dtype dtypes.DType, a, b uint64) uint64 {
	return absDiff(orderedFloatBits(a, dtype.Bits()), orderedFloatBits(b, dtype.Bits()))
}

// orderedFloatBits maps the bit pattern of a float of the given width to an integer with the same ordering.
func orderedFloatBits(bits uint64, width int) int64 {
	signBit := uint64(1) << (width - 1)
	if bits&signBit != 0 {
		return -int64(bits &^ signBit)
	}
	return int64(bits)
}

// formatElement for diagnostics. Unsigned values are printed without going through float64.
func formatElement(t *tensors.Tensor, flatIdx int) string {
	dtype := t.DType()
	switch {
	case dtype.IsFloat():
		return fmt.Sprintf("%g", t.Float64At(flatIdx))
	case dtype.IsUnsigned():
		return fmt.Sprintf("%d", t.BitsAt(flatIdx))
	default:
		return fmt.Sprintf("%d", t.Int64At(flatIdx))
	}
}
