// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package dtypes includes the DType enum for the element types supported by opcheck: signed and unsigned
// integers of 8, 16, 32 and 64 bits, and floats of 16, 32 and 64 bits.
//
// It includes converters to/from Go native types (and reflect.Type), the representable range of each
// type, and constraint interfaces to be used with generics (Supported).
package dtypes

import (
	"fmt"
	"maps"
	"math"
	"reflect"
	"slices"
	"strings"

	"github.com/gomlx/opcheck/pkg/core/errs"
	"github.com/pkg/errors"
	"github.com/x448/float16"
)

// panicf panics with the formatted description.
//
// It is only used for "bugs in the code" -- when parameters don't follow the specifications.
func panicf(format string, args ...any) {
	panic(errors.Errorf(format, args...))
}

func init() {
	// Add a mapping to the lower-case version of dtypes.
	keys := slices.Collect(maps.Keys(MapOfNames))
	for _, key := range keys {
		lowerKey := strings.ToLower(key)
		if lowerKey == key {
			continue
		}
		if _, found := MapOfNames[lowerKey]; found {
			continue
		}
		MapOfNames[lowerKey] = MapOfNames[key]
	}
}

// All returns the valid dtypes, in enumeration order.
func All() []DType {
	all := make([]DType, 0, numDTypes-1)
	for dtype := Int8; dtype < numDTypes; dtype++ {
		all = append(all, dtype)
	}
	return all
}

// Parse returns the DType for the given name (case-insensitive, short aliases like "f32" accepted).
// It returns an *errs.UnsupportedDTypeError for unknown names.
func Parse(name string) (DType, error) {
	dtype, found := MapOfNames[name]
	if !found {
		dtype, found = MapOfNames[strings.ToLower(strings.TrimSpace(name))]
	}
	if !found || dtype == InvalidDType {
		return InvalidDType, &errs.UnsupportedDTypeError{DType: name}
	}
	return dtype, nil
}

// String implements fmt.Stringer.
func (dtype DType) String() string {
	if dtype < 0 || dtype >= numDTypes {
		return fmt.Sprintf("DType(%d)", int32(dtype))
	}
	return dtypeNames[dtype]
}

// IsValid returns whether dtype is one of the enumerated (non-invalid) values.
func (dtype DType) IsValid() bool {
	return dtype > InvalidDType && dtype < numDTypes
}

// Validate returns an *errs.UnsupportedDTypeError if dtype is not in the enumeration.
func (dtype DType) Validate() error {
	if !dtype.IsValid() {
		return &errs.UnsupportedDTypeError{DType: dtype.String()}
	}
	return nil
}

// MarshalText implements encoding.TextMarshaler, used by YAML suite descriptions.
func (dtype DType) MarshalText() ([]byte, error) {
	if !dtype.IsValid() {
		return nil, &errs.UnsupportedDTypeError{DType: dtype.String()}
	}
	return []byte(strings.ToLower(dtype.String())), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (dtype *DType) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*dtype = parsed
	return nil
}

// FromGenericsType returns the DType enum for the given type that this package knows about.
func FromGenericsType[T Supported]() DType {
	var t T
	switch (any(t)).(type) {
	case float64:
		return Float64
	case float32:
		return Float32
	case float16.Float16:
		return Float16
	case int64:
		return Int64
	case int32:
		return Int32
	case int16:
		return Int16
	case int8:
		return Int8
	case uint8:
		return Uint8
	case uint16:
		return Uint16
	case uint32:
		return Uint32
	case uint64:
		return Uint64
	}
	return InvalidDType
}

// Pre-generate constant reflect.TypeOf for convenience.
var (
	float16Type = reflect.TypeOf(float16.Float16(0))
	goTypes     = [numDTypes]reflect.Type{
		Int8:    reflect.TypeOf(int8(0)),
		Int16:   reflect.TypeOf(int16(0)),
		Int32:   reflect.TypeOf(int32(0)),
		Int64:   reflect.TypeOf(int64(0)),
		Uint8:   reflect.TypeOf(uint8(0)),
		Uint16:  reflect.TypeOf(uint16(0)),
		Uint32:  reflect.TypeOf(uint32(0)),
		Uint64:  reflect.TypeOf(uint64(0)),
		Float16: float16Type,
		Float32: reflect.TypeOf(float32(0)),
		Float64: reflect.TypeOf(float64(0)),
	}
)

// GoType returns the Go `reflect.Type` corresponding to the tensor DType.
// It panics for invalid dtypes.
func (dtype DType) GoType() reflect.Type {
	if !dtype.IsValid() {
		panicf("unknown dtype %q (%d) in DType.GoType", dtype, dtype)
	}
	return goTypes[dtype]
}

// Size returns the number of bytes for the given DType.
func (dtype DType) Size() int {
	return int(dtype.GoType().Size())
}

// Bits returns the number of bits for the given DType.
func (dtype DType) Bits() int {
	return dtype.Size() * 8
}

// IsFloat returns whether dtype is one of the float types.
func (dtype DType) IsFloat() bool {
	return dtype == Float16 || dtype == Float32 || dtype == Float64
}

// IsInt returns whether dtype is one of the (signed or unsigned) integer types.
func (dtype DType) IsInt() bool {
	return dtype == Int64 || dtype == Int32 || dtype == Int16 || dtype == Int8 ||
		dtype == Uint8 || dtype == Uint16 || dtype == Uint32 || dtype == Uint64
}

// IsUnsigned returns whether dtype is one of the unsigned integer types.
func (dtype DType) IsUnsigned() bool {
	return dtype == Uint8 || dtype == Uint16 || dtype == Uint32 || dtype == Uint64
}

// Range returns the lowest and highest finite values representable by dtype, as float64.
//
// For Int64 and Uint64 the bounds are rounded to the nearest float64, so they are only
// approximations of the real limits.
func (dtype DType) Range() (low, high float64) {
	switch dtype {
	case Int8:
		return math.MinInt8, math.MaxInt8
	case Int16:
		return math.MinInt16, math.MaxInt16
	case Int32:
		return math.MinInt32, math.MaxInt32
	case Int64:
		return math.MinInt64, math.MaxInt64
	case Uint8:
		return 0, math.MaxUint8
	case Uint16:
		return 0, math.MaxUint16
	case Uint32:
		return 0, math.MaxUint32
	case Uint64:
		return 0, math.MaxUint64
	case Float16:
		return -65504, 65504
	case Float32:
		return -math.MaxFloat32, math.MaxFloat32
	case Float64:
		return -math.MaxFloat64, math.MaxFloat64
	default:
		panicf("unknown dtype %q (%d) in DType.Range", dtype, dtype)
		panic(nil)
	}
}

// Supported lists the Go types used to store the elements of each DType.
// Used as traits for generics.
type Supported interface {
	float16.Float16 | float32 | float64 | int8 | int16 | int32 | int64 | uint8 | uint16 | uint32 | uint64
}
