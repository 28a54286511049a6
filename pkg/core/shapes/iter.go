// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package shapes

import (
	"iter"

	"github.com/pkg/errors"
)

// Strides returns the strides for each axis of the shape, assuming a "row-major" layout
// in memory.
//
// Notice the strides are **not in bytes**, but in indices.
func (s Shape) Strides() (strides []int) {
	rank := s.Rank()
	if rank == 0 {
		return
	}
	strides = make([]int, rank)
	currentStride := 1
	for axis := rank - 1; axis >= 0; axis-- {
		strides[axis] = currentStride
		currentStride *= s.Dimensions[axis]
	}
	return
}

// UnflattenIndex converts a flat (row-major) element index to the per-axis coordinates.
// It is used to report mismatching elements in a human-readable way.
func (s Shape) UnflattenIndex(flatIdx int) []int {
	if flatIdx < 0 || flatIdx >= s.Size() {
		panic(errors.Errorf("Shape.UnflattenIndex(%d) out-of-bounds for shape %s", flatIdx, s))
	}
	indices := make([]int, s.Rank())
	for axis := s.Rank() - 1; axis >= 0; axis-- {
		dim := s.Dimensions[axis]
		indices[axis] = flatIdx % dim
		flatIdx /= dim
	}
	return indices
}

// FlattenIndex is the inverse of UnflattenIndex.
func (s Shape) FlattenIndex(indices []int) int {
	if len(indices) != s.Rank() {
		panic(errors.Errorf("Shape.FlattenIndex given %d indices, want rank %d", len(indices), s.Rank()))
	}
	flatIdx := 0
	for axis, idx := range indices {
		flatIdx = flatIdx*s.Dimensions[axis] + idx
	}
	return flatIdx
}

// Iter iterates sequentially over all possible indices of the given shape.
//
// It yields the flat index (counter) and a slice of indices for each axis.
//
// To avoid allocating the slice of indices, the yielded indices is owned by the Iter() method:
// don't change it inside the loop.
func (s Shape) Iter() iter.Seq2[int, []int] {
	return func(yield func(int, []int) bool) {
		if !s.Ok() {
			return
		}
		rank := s.Rank()
		indices := make([]int, rank)
		for _, dim := range s.Dimensions {
			if dim <= 0 {
				return
			}
		}
		size := s.Size()
		for flatIdx := 0; flatIdx < size; flatIdx++ {
			if !yield(flatIdx, indices) {
				return
			}
			// Increment indices, row-major order: the last index changes fastest.
			for axis := rank - 1; axis >= 0; axis-- {
				indices[axis]++
				if indices[axis] < s.Dimensions[axis] {
					break
				}
				indices[axis] = 0
			}
		}
	}
}
