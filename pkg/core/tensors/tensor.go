// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package tensors implement a `Tensor`, a concrete multidimensional array stored in Go memory.
//
// Tensors are the inputs fed to the backends of a test case, and the outputs (and gradients)
// they return. The content is stored as a flat slice of the Go type of the dtype
// (e.g. []float32 for dtypes.Float32, []float16.Float16 for dtypes.Float16), in row-major order.
//
// There are various ways to construct a Tensor:
//
//   - FromShape(shape shapes.Shape): creates a tensor with the given shape, and zero values.
//
//   - FromFlatDataAndDimensions[T dtypes.Supported](data []T, dimensions ...int): creates a Tensor with the
//     given dimensions and set the flattened values with the given data. Example:
//
//     t := FromFlatDataAndDimensions([]int8{1, 2, 3, 4}, 2, 2}) // Tensor with [[1,2], [3,4]]
//
//   - FromFlat(shape, flat): same as above, but non-generic.
//
// A tensor can be frozen (see Tensor.Freeze): after that any attempt to mutate it fails. The harness
// freezes the generated inputs before handing the very same instances to both backends, so neither
// can alter what the other one sees.
package tensors

import (
	"fmt"
	"reflect"
	"sync/atomic"
	"unsafe"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/opcheck/pkg/core/dtypes"
	"github.com/gomlx/opcheck/pkg/core/shapes"
	"github.com/pkg/errors"
)

// Tensor represents a multidimensional array: a shape and its flat contents.
type Tensor struct {
	shape shapes.Shape

	// flat is always a slice of the underlying data type (shape.DType).
	flat any

	frozen atomic.Bool
}

// FromShape returns a Tensor with the given shape, with the data initialized with zeros.
func FromShape(shape shapes.Shape) *Tensor {
	if !shape.DType.IsValid() {
		exceptions.Panicf("tensors.FromShape(%s): invalid dtype", shape)
	}
	size := shape.Size()
	return &Tensor{
		shape: shape.Clone(),
		flat:  reflect.MakeSlice(reflect.SliceOf(shape.DType.GoType()), size, size).Interface(),
	}
}

// FromFlatDataAndDimensions creates a tensor with the given dimensions, filled with the flattened values given in `data`.
// The data is used directly, not copied: the caller shouldn't change it afterward.
//
// It panics if the size of data doesn't match the dimensions.
func FromFlatDataAndDimensions[T dtypes.Supported](data []T, dimensions ...int) *Tensor {
	dtype := dtypes.FromGenericsType[T]()
	shape := shapes.Make(dtype, dimensions...)
	if len(data) != shape.Size() {
		exceptions.Panicf("FromFlatDataAndDimensions(%s): data has %d elements, want %d", shape, len(data), shape.Size())
	}
	return &Tensor{shape: shape, flat: data}
}

// FromFlat creates a tensor from an untyped flat slice, that must be a slice of the Go type of shape.DType,
// with shape.Size() elements. The slice is used directly, not copied.
func FromFlat(shape shapes.Shape, flat any) (*Tensor, error) {
	if !shape.DType.IsValid() {
		return nil, shape.DType.Validate()
	}
	flatV := reflect.ValueOf(flat)
	if flatV.Kind() != reflect.Slice || flatV.Type().Elem() != shape.DType.GoType() {
		return nil, errors.Errorf("tensors.FromFlat(%s): flat data of type %T, want []%s", shape, flat, shape.DType.GoType())
	}
	if flatV.Len() != shape.Size() {
		return nil, errors.Errorf("tensors.FromFlat(%s): flat data has %d elements, want %d", shape, flatV.Len(), shape.Size())
	}
	return &Tensor{shape: shape.Clone(), flat: flat}, nil
}

// Shape of the tensor.
func (t *Tensor) Shape() shapes.Shape { return t.shape }

// DType of the tensor's shape.
func (t *Tensor) DType() dtypes.DType { return t.shape.DType }

// Rank of the tensor's shape.
func (t *Tensor) Rank() int { return t.shape.Rank() }

// Size returns the number of elements in the tensor.
func (t *Tensor) Size() int { return t.shape.Size() }

// Memory returns the number of bytes used by the tensor's data.
func (t *Tensor) Memory() uintptr { return t.shape.Memory() }

// Freeze marks the tensor as read-only: MutableFlatData fails afterward. It can't be undone.
func (t *Tensor) Freeze() { t.frozen.Store(true) }

// IsFrozen returns whether Freeze was called.
func (t *Tensor) IsFrozen() bool { return t.frozen.Load() }

// ConstFlatData calls accessFn with the flat data of the tensor, as an `any` that holds a slice
// of the Go type of the dtype. The data must not be changed, nor be retained after accessFn returns.
func (t *Tensor) ConstFlatData(accessFn func(flat any)) {
	accessFn(t.flat)
}

// ConstFlatData calls accessFn with the typed flat data of the tensor.
// It returns an error if T doesn't match the tensor's dtype.
//
// The data must not be changed, nor be retained after accessFn returns.
func ConstFlatData[T dtypes.Supported](t *Tensor, accessFn func(flat []T)) error {
	flat, ok := t.flat.([]T)
	if !ok {
		var zero T
		return errors.Errorf("ConstFlatData[%T]: tensor has dtype %s, with flat data of type %T", zero, t.shape.DType, t.flat)
	}
	accessFn(flat)
	return nil
}

// MustConstFlatData is like ConstFlatData, but panics on error.
func MustConstFlatData[T dtypes.Supported](t *Tensor, accessFn func(flat []T)) {
	if err := ConstFlatData(t, accessFn); err != nil {
		panic(err)
	}
}

// MutableFlatData calls accessFn with the typed flat data of the tensor, which can be modified in place.
// It fails if T doesn't match the tensor's dtype, or if the tensor is frozen.
func MutableFlatData[T dtypes.Supported](t *Tensor, accessFn func(flat []T)) error {
	if t.IsFrozen() {
		return errors.Errorf("MutableFlatData: tensor %s is frozen", t.shape)
	}
	flat, ok := t.flat.([]T)
	if !ok {
		var zero T
		return errors.Errorf("MutableFlatData[%T]: tensor has dtype %s", zero, t.shape.DType)
	}
	accessFn(flat)
	return nil
}

// CopyFlatData returns a copy of the flat data of the tensor.
// It returns an error if T doesn't match the tensor's dtype.
func CopyFlatData[T dtypes.Supported](t *Tensor) ([]T, error) {
	var result []T
	err := ConstFlatData(t, func(flat []T) {
		result = make([]T, len(flat))
		copy(result, flat)
	})
	return result, err
}

// MustCopyFlatData is like CopyFlatData, but panics on error.
func MustCopyFlatData[T dtypes.Supported](t *Tensor) []T {
	result, err := CopyFlatData[T](t)
	if err != nil {
		panic(err)
	}
	return result
}

// ConstBytes calls accessFn with a view of the raw bytes of the tensor data (host byte order).
// The bytes must not be changed, nor retained after accessFn returns.
func (t *Tensor) ConstBytes(accessFn func(data []byte)) {
	flatV := reflect.ValueOf(t.flat)
	if flatV.Len() == 0 {
		accessFn(nil)
		return
	}
	data := unsafe.Slice((*byte)(flatV.UnsafePointer()), flatV.Len()*t.shape.DType.Size())
	accessFn(data)
}

// MutableBytes calls accessFn with a view of the raw bytes of the tensor data, that can be modified.
// It fails if the tensor is frozen.
func (t *Tensor) MutableBytes(accessFn func(data []byte)) error {
	if t.IsFrozen() {
		return errors.Errorf("MutableBytes: tensor %s is frozen", t.shape)
	}
	t.ConstBytes(accessFn)
	return nil
}

// Clone returns a deep copy of the tensor. The copy is not frozen.
func (t *Tensor) Clone() *Tensor {
	flatV := reflect.ValueOf(t.flat)
	clone := reflect.MakeSlice(flatV.Type(), flatV.Len(), flatV.Len())
	reflect.Copy(clone, flatV)
	return &Tensor{shape: t.shape.Clone(), flat: clone.Interface()}
}

// Equal returns whether both tensors have the same shape and bit-identical contents.
func (t *Tensor) Equal(other *Tensor) bool {
	if t == other {
		return true
	}
	if !t.shape.Equal(other.shape) {
		return false
	}
	equal := true
	t.ConstBytes(func(data0 []byte) {
		other.ConstBytes(func(data1 []byte) {
			equal = string(data0) == string(data1)
		})
	})
	return equal
}

// String implements fmt.Stringer.
func (t *Tensor) String() string {
	if t == nil {
		return "<nil>"
	}
	return t.Summary(6)
}

// GoStr converts to string, using a Go-syntax representation of the flat values.
func (t *Tensor) GoStr() string {
	return fmt.Sprintf("%s: %v", t.shape, t.Float64s())
}
