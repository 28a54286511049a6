// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simplego

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/opcheck/pkg/core/dtypes"
	"golang.org/x/exp/constraints"
)

// MaxDTypes is the size of the dispatch tables, it must be larger than any dtypes.DType value.
const MaxDTypes = 32

// DTypeDispatcher holds one function (an instantiation of a generic kernel) per dtype.
type DTypeDispatcher[F any] struct {
	Name  string
	fnMap [MaxDTypes]*F
}

// NewDTypeDispatcher creates a new dispatcher for a class of functions.
func NewDTypeDispatcher[F any](name string) *DTypeDispatcher[F] {
	return &DTypeDispatcher[F]{Name: name}
}

// Register a function to handle a specific dtype.
// This overwrites any previous setting for the same dtype.
func (d *DTypeDispatcher[F]) Register(dtype dtypes.DType, fn F) {
	if dtype >= MaxDTypes {
		exceptions.Panicf("dtype %s not supported by %s", dtype, d.Name)
	}
	d.fnMap[dtype] = &fn
}

// Get the function registered for the dtype. It panics if there is none.
func (d *DTypeDispatcher[F]) Get(dtype dtypes.DType) F {
	if dtype < 0 || dtype >= MaxDTypes || d.fnMap[dtype] == nil {
		exceptions.Panicf("dtype %s not supported by %s", dtype, d.Name)
	}
	return *d.fnMap[dtype]
}

// Has returns whether there is a function registered for dtype.
func (d *DTypeDispatcher[F]) Has(dtype dtypes.DType) bool {
	return dtype >= 0 && dtype < MaxDTypes && d.fnMap[dtype] != nil
}

// DTypePairMap holds one function per pair of dtypes, e.g. for conversions.
type DTypePairMap[F any] struct {
	Name  string
	fnMap [MaxDTypes][MaxDTypes]*F
}

// NewDTypePairMap creates a new map for a class of functions taking two dtypes.
func NewDTypePairMap[F any](name string) *DTypePairMap[F] {
	return &DTypePairMap[F]{Name: name}
}

// Register a function for the pair (from, to).
func (m *DTypePairMap[F]) Register(from, to dtypes.DType, fn F) {
	if from >= MaxDTypes || to >= MaxDTypes {
		exceptions.Panicf("dtypes %s, %s not supported by %s", from, to, m.Name)
	}
	m.fnMap[from][to] = &fn
}

// Get the function registered for the pair (from, to). It panics if there is none.
func (m *DTypePairMap[F]) Get(from, to dtypes.DType) F {
	if from < 0 || to < 0 || from >= MaxDTypes || to >= MaxDTypes || m.fnMap[from][to] == nil {
		exceptions.Panicf("dtypes %s -> %s not supported by %s", from, to, m.Name)
	}
	return *m.fnMap[from][to]
}

// PODNumericConstraints are used for generics for the Golang pod (plain-old-data) types.
// Float16 is not included because it is a specialized type, not natively supported by Go.
type PODNumericConstraints interface {
	int8 | int16 | int32 | int64 | uint8 | uint16 | uint32 | uint64 | float32 | float64
}

// PODIntegerConstraints are the fixed-width integer types.
type PODIntegerConstraints interface {
	constraints.Integer
	int8 | int16 | int32 | int64 | uint8 | uint16 | uint32 | uint64
}

// PODFloatConstraints are the float types with native Go arithmetic.
type PODFloatConstraints interface {
	constraints.Float
	float32 | float64
}
