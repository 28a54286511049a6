// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package random generates reproducible random input tensors for test cases.
//
// A Generator is seeded explicitly: the same seed and the same (shape, dtype, range) always yield
// the same tensor, on any platform. ForCase derives an independent generator per test case from a
// suite seed, so the inputs of a case don't depend on which worker runs it, or in which order.
package random

import (
	"math"
	"math/rand/v2"

	"github.com/gomlx/opcheck/pkg/core/dtypes"
	"github.com/gomlx/opcheck/pkg/core/errs"
	"github.com/gomlx/opcheck/pkg/core/shapes"
	"github.com/gomlx/opcheck/pkg/core/tensors"
	"github.com/x448/float16"
)

// Generator of random tensors. It is not safe for concurrent use: create one per goroutine
// (see ForCase).
type Generator struct {
	seed uint64
	rng  *rand.Rand
}

// New creates a Generator from the given seed, using a PCG source.
func New(seed uint64) *Generator {
	return &Generator{
		seed: seed,
		rng:  rand.New(rand.NewPCG(seed, splitMix64(seed))),
	}
}

// ForCase returns the Generator for the case with the given index of a suite seeded with suiteSeed.
func ForCase(suiteSeed uint64, caseIndex int) *Generator {
	return New(CaseSeed(suiteSeed, caseIndex))
}

// CaseSeed is the seed used by ForCase. It is reported with failing cases, so they can be
// reproduced with New.
func CaseSeed(suiteSeed uint64, caseIndex int) uint64 {
	return splitMix64(suiteSeed ^ splitMix64(uint64(caseIndex)+1))
}

// Seed used to create the generator.
func (g *Generator) Seed() uint64 { return g.seed }

// splitMix64 is the finalizer of the SplitMix64 generator: it scrambles x into a well-distributed value.
func splitMix64(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}

// DefaultRange returns the value range used when a test case doesn't define one:
// [-1, 1) for floats, [-10, 10] for signed integers and [0, 10] for unsigned integers.
func DefaultRange(dtype dtypes.DType) (low, high float64) {
	switch {
	case dtype.IsFloat():
		return -1, 1
	case dtype.IsUnsigned():
		return 0, 10
	default:
		return -10, 10
	}
}

// Generate returns a tensor of the given shape (and dtype) with values drawn uniformly from the range.
//
// For integer dtypes the range is the closed interval [ceil(low), floor(high)], clamped to what
// the dtype can represent. For float dtypes it is the half-open interval [low, high), with values
// rounded to the dtype's width.
//
// It fails with an *errs.InvalidShapeError or *errs.UnsupportedDTypeError if the shape is not valid,
// and with an *errs.InvalidAttributeError if the range is empty.
func (g *Generator) Generate(shape shapes.Shape, low, high float64) (*tensors.Tensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	if math.IsNaN(low) || math.IsNaN(high) || math.IsInf(low, 0) || math.IsInf(high, 0) {
		return nil, rangeError(shape.DType, low, high, "range limits must be finite")
	}
	if shape.DType.IsFloat() {
		if low >= high {
			return nil, rangeError(shape.DType, low, high, "empty half-open range [low, high)")
		}
		return g.floats(shape, low, high), nil
	}
	return g.ints(shape, low, high)
}

func rangeError(dtype dtypes.DType, low, high float64, reason string) error {
	return &errs.InvalidAttributeError{
		Attribute: "value_range",
		Value:     [2]float64{low, high},
		Reason:    reason + " for dtype " + dtype.String(),
	}
}

func (g *Generator) uniform(low, high float64) float64 {
	u := g.rng.Float64()
	// Interpolate instead of low+u*(high-low): high-low may overflow for very large ranges.
	return low*(1-u) + high*u
}

func (g *Generator) floats(shape shapes.Shape, low, high float64) *tensors.Tensor {
	t := tensors.FromShape(shape)
	var err error
	switch shape.DType {
	case dtypes.Float64:
		err = tensors.MutableFlatData(t, func(flat []float64) {
			for ii := range flat {
				v := g.uniform(low, high)
				if v >= high {
					v = math.Nextafter(high, math.Inf(-1))
				}
				flat[ii] = v
			}
		})
	case dtypes.Float32:
		err = tensors.MutableFlatData(t, func(flat []float32) {
			for ii := range flat {
				v := float32(g.uniform(low, high))
				for float64(v) >= high {
					v = math.Nextafter32(v, float32(math.Inf(-1)))
				}
				flat[ii] = v
			}
		})
	case dtypes.Float16:
		err = tensors.MutableFlatData(t, func(flat []float16.Float16) {
			for ii := range flat {
				v := tensors.Float16FromFloat64(g.uniform(low, high))
				for float64(v.Float32()) >= high {
					v = previousFloat16(v)
				}
				flat[ii] = v
			}
		})
	}
	if err != nil {
		// The tensor was just created with the shape's dtype, it can't be frozen nor of a different type.
		panic(err)
	}
	return t
}

// previousFloat16 returns the largest float16 smaller than v, for finite v.
func previousFloat16(v float16.Float16) float16.Float16 {
	bits := v.Bits()
	switch {
	case bits == 0 || bits == 0x8000:
		// Zero (either sign): the smallest negative subnormal.
		return float16.Frombits(0x8001)
	case bits&0x8000 == 0:
		return float16.Frombits(bits - 1)
	default:
		return float16.Frombits(bits + 1)
	}
}

func (g *Generator) ints(shape shapes.Shape, low, high float64) (*tensors.Tensor, error) {
	dtype := shape.DType
	typeLow, typeHigh := dtype.Range()
	lo := max(math.Ceil(low), typeLow)
	hi := min(math.Floor(high), typeHigh)
	if lo > hi {
		return nil, rangeError(dtype, low, high, "no integer in the closed range [low, high]")
	}

	// Values are drawn as an uint64 offset from the lower bound, which also covers the full 64-bit ranges.
	var base, span uint64
	if dtype.IsUnsigned() {
		loU, hiU := toUint64(lo), toUint64(hi)
		base, span = loU, hiU-loU
	} else {
		loI, hiI := toInt64(lo), toInt64(hi)
		base, span = uint64(loI), uint64(hiI)-uint64(loI)
	}
	values := make([]int64, shape.Size())
	for ii := range values {
		var offset uint64
		if span == math.MaxUint64 {
			offset = g.rng.Uint64()
		} else {
			offset = g.rng.Uint64N(span + 1)
		}
		values[ii] = int64(base + offset)
	}
	return tensors.FromInt64s(dtype, values, shape.Dimensions...), nil
}

func toInt64(v float64) int64 {
	if v >= math.MaxInt64 {
		return math.MaxInt64
	}
	if v <= math.MinInt64 {
		return math.MinInt64
	}
	return int64(v)
}

func toUint64(v float64) uint64 {
	if v >= math.MaxUint64 {
		return math.MaxUint64
	}
	if v <= 0 {
		return 0
	}
	return uint64(v)
}
