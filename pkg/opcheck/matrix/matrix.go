// Package matrix expands a declarative suite description -- ordered groups of shapes, dtypes and attributes --
// into the cartesian product of fully resolved ParameterRecord, one per test case.
//
// The iteration order is deterministic, shapes outermost and attributes innermost, so "case #k" names the
// same combination across runs.
package matrix

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gomlx/opcheck/backends"
	"github.com/gomlx/opcheck/pkg/core/dtypes"
	"github.com/gomlx/opcheck/pkg/core/random"
	"github.com/gomlx/opcheck/pkg/core/shapes"
	"github.com/gomlx/opcheck/pkg/opcheck/compare"
	"k8s.io/klog/v2"
)

// TensorSpec of one named input: its shape (dtype and dimensions) and the range of its random values.
type TensorSpec struct {
	Name  string
	Shape shapes.Shape
	Low   float64
	High  float64
}

// String implements fmt.Stringer.
func (s TensorSpec) String() string {
	return fmt.Sprintf("%s=%s in [%g, %g]", s.Name, s.Shape, s.Low, s.High)
}

// ParameterRecord is one fully resolved combination of shapes, dtypes and attributes defining a single test case.
//
// It is immutable once created: consumers should not modify its fields.
type ParameterRecord struct {
	// Index of the record in the suite, and its Name, "<suite>#<index>".
	Index int
	Name  string

	// Operator name, as given in the description.
	Operator string

	// Inputs in the order the operator takes them.
	Inputs []TensorSpec

	// Attributes passed unchanged to both backends.
	Attributes backends.Attributes

	Tolerance         compare.Tolerance
	GradientTolerance compare.Tolerance

	// Gradients requests the comparison of gradients.
	Gradients bool

	// Requires lists the capability requirements checked by the capability gates.
	Requires []string

	label string
}

// Label is a human-readable description of the combination, e.g. "shape=[4] dtype=float32 attrs={scale=2}".
func (r *ParameterRecord) Label() string {
	return r.label
}

// String implements fmt.Stringer.
func (r *ParameterRecord) String() string {
	return fmt.Sprintf("%s (%s %s)", r.Name, r.Operator, r.label)
}

// Parameters returns the input specs as backends.Parameter.
func (r *ParameterRecord) Parameters() []backends.Parameter {
	params := make([]backends.Parameter, len(r.Inputs))
	for ii, input := range r.Inputs {
		params[ii] = backends.Parameter{Name: input.Name, Shape: input.Shape.Clone()}
	}
	return params
}

// Expand the cartesian product of the groups into ParameterRecord, for an operator with a single input "x"
// and the default tolerances. See Description.Expand for the general case.
func Expand(shapeEntries []ShapeEntry, dtypeEntries []DTypeEntry, attributeEntries []AttributeEntry) []ParameterRecord {
	d := &Description{Shapes: shapeEntries, DTypes: dtypeEntries, Attributes: attributeEntries}
	return d.Expand()
}

// Expand the description into its ParameterRecord, iterating over shapes, then dtypes, then attributes.
//
// An empty group yields an empty suite, with a warning logged. Shapes are not validated here: an invalid shape
// makes its case fail when inputs are generated.
func (d *Description) Expand() []ParameterRecord {
	numRecords := len(d.Shapes) * len(d.DTypes) * len(d.Attributes)
	if numRecords == 0 {
		klog.Warningf("suite %q expands to zero cases (%d shapes, %d dtypes, %d attribute entries)",
			d.Name, len(d.Shapes), len(d.DTypes), len(d.Attributes))
		return nil
	}
	name := d.Name
	if name == "" {
		name = d.Operator
	}
	if name == "" {
		name = "case"
	}
	inputNames := d.inputNames()
	records := make([]ParameterRecord, 0, numRecords)
	for si := range d.Shapes {
		shapeEntry := &d.Shapes[si]
		for di := range d.DTypes {
			dtypeEntry := &d.DTypes[di]
			for ai := range d.Attributes {
				attrEntry := &d.Attributes[ai]
				overrides := d.Overrides.merge(shapeEntry.Overrides).merge(dtypeEntry.Overrides).merge(attrEntry.Overrides)
				record := ParameterRecord{
					Index:      len(records),
					Operator:   d.Operator,
					Attributes: attrEntry.Attributes.Clone(),
					Gradients:  d.Gradients,
					Requires:   slices.Clone(d.Requires),
				}
				record.Name = fmt.Sprintf("%s#%d", name, record.Index)
				record.Tolerance, record.GradientTolerance = overrides.resolve(compare.DefaultTolerance, compare.DefaultGradientTolerance)
				for _, inputName := range inputNames {
					spec := TensorSpec{
						Name: inputName,
						Shape: shapes.Shape{
							DType:      dtypeEntry.dtypeOf(inputName),
							Dimensions: slices.Clone(shapeEntry.dimensionsOf(inputName)),
						},
					}
					if overrides.Range != nil {
						spec.Low, spec.High = overrides.Range.Low, overrides.Range.High
					} else {
						spec.Low, spec.High = random.DefaultRange(spec.Shape.DType)
					}
					record.Inputs = append(record.Inputs, spec)
				}
				record.label = label(record.Inputs, record.Attributes)
				records = append(records, record)
			}
		}
	}
	return records
}

// inputNames given explicitly, or the operator's, or "x".
func (d *Description) inputNames() []string {
	if len(d.Inputs) > 0 {
		return d.Inputs
	}
	if op, err := backends.ParseOperator(d.Operator); err == nil {
		return op.InputNames()
	}
	return []string{backends.InputX}
}

// label describes the inputs compactly: shared dimensions and dtypes are only printed once.
func label(inputs []TensorSpec, attributes backends.Attributes) string {
	sameDims, sameDType := true, true
	for _, input := range inputs[1:] {
		sameDims = sameDims && slices.Equal(input.Shape.Dimensions, inputs[0].Shape.Dimensions)
		sameDType = sameDType && input.Shape.DType == inputs[0].Shape.DType
	}
	var parts []string
	if sameDims {
		parts = append(parts, fmt.Sprintf("shape=%v", inputs[0].Shape.Dimensions))
	} else {
		perInput := make([]string, len(inputs))
		for ii, input := range inputs {
			perInput[ii] = fmt.Sprintf("%s:%v", input.Name, input.Shape.Dimensions)
		}
		parts = append(parts, "shape="+strings.Join(perInput, ","))
	}
	if sameDType {
		parts = append(parts, "dtype="+dtypeName(inputs[0].Shape.DType))
	} else {
		perInput := make([]string, len(inputs))
		for ii, input := range inputs {
			perInput[ii] = input.Name + ":" + dtypeName(input.Shape.DType)
		}
		parts = append(parts, "dtype="+strings.Join(perInput, ","))
	}
	if len(attributes) > 0 {
		parts = append(parts, "attrs="+attributes.String())
	}
	return strings.Join(parts, " ")
}

func dtypeName(dtype dtypes.DType) string {
	return strings.ToLower(dtype.String())
}
