// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dtypes

// DType enumerates the element types a tensor in a test case can have.
//
// The enumeration is closed: values outside of it are rejected with errs.UnsupportedDTypeError.
type DType int32

const (
	// InvalidDType is the zero value, and it is never a valid tensor dtype.
	InvalidDType DType = iota

	// Int8 and the following are signed integral values of fixed width.
	Int8
	Int16
	Int32
	Int64

	// Uint8 and the following are unsigned integral values of fixed width.
	Uint8
	Uint16
	Uint32
	Uint64

	// Float16 is IEEE half precision, stored as github.com/x448/float16.Float16.
	Float16

	// Float32 and Float64 are IEEE single and double precision.
	Float32
	Float64

	numDTypes
)

// Aliases using the short XLA names.
const (
	S8  = Int8
	S16 = Int16
	S32 = Int32
	S64 = Int64
	U8  = Uint8
	U16 = Uint16
	U32 = Uint32
	U64 = Uint64
	F16 = Float16
	F32 = Float32
	F64 = Float64
)

// MapOfNames to their dtypes. It includes also aliases to the various dtypes.
// It is also later initialized to include the lower-case version of the names.
var MapOfNames = map[string]DType{
	"InvalidDType": InvalidDType,
	"Int8":         Int8,
	"S8":           Int8,
	"Int16":        Int16,
	"S16":          Int16,
	"Int32":        Int32,
	"S32":          Int32,
	"Int64":        Int64,
	"S64":          Int64,
	"Uint8":        Uint8,
	"U8":           Uint8,
	"Uint16":       Uint16,
	"U16":          Uint16,
	"Uint32":       Uint32,
	"U32":          Uint32,
	"Uint64":       Uint64,
	"U64":          Uint64,
	"Float16":      Float16,
	"F16":          Float16,
	"Half":         Float16,
	"Float32":      Float32,
	"F32":          Float32,
	"Float":        Float32,
	"Float64":      Float64,
	"F64":          Float64,
	"Double":       Float64,
}

var dtypeNames = [numDTypes]string{
	InvalidDType: "InvalidDType",
	Int8:         "Int8",
	Int16:        "Int16",
	Int32:        "Int32",
	Int64:        "Int64",
	Uint8:        "Uint8",
	Uint16:       "Uint16",
	Uint32:       "Uint32",
	Uint64:       "Uint64",
	Float16:      "Float16",
	Float32:      "Float32",
	Float64:      "Float64",
}
