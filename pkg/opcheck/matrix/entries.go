package matrix

import (
	"bytes"

	"github.com/gomlx/opcheck/backends"
	"github.com/gomlx/opcheck/pkg/core/dtypes"
	"github.com/gomlx/opcheck/pkg/opcheck/compare"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Range of the random values of an input: [Low, High] for integer dtypes, [Low, High) for floats.
type Range struct {
	Low  float64 `yaml:"low"`
	High float64 `yaml:"high"`
}

// Overrides that can be set at the suite level and in each entry. Nil fields are not set.
//
// When expanding, the innermost level that sets a field wins: attributes > dtype > shape > suite.
// Exactness is set either by Exact or by Tolerance.ExactMatch; within one level Exact wins.
type Overrides struct {
	Range             *Range             `yaml:"range,omitempty"`
	Exact             *bool              `yaml:"exact,omitempty"`
	Tolerance         *compare.Tolerance `yaml:"tolerance,omitempty"`
	GradientTolerance *compare.Tolerance `yaml:"gradient_tolerance,omitempty"`
}

// ShapeEntry is one element of the shapes group.
type ShapeEntry struct {
	// Dimensions of every input.
	Dimensions []int `yaml:"dimensions"`

	// Inputs optionally overrides the dimensions of specific inputs, by input name.
	Inputs map[string][]int `yaml:"inputs,omitempty"`

	Overrides `yaml:",inline"`
}

// UnmarshalYAML accepts either the full entry or just a list of dimensions (e.g. "[4, 3]").
func (e *ShapeEntry) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.SequenceNode {
		*e = ShapeEntry{}
		return errors.Wrap(node.Decode(&e.Dimensions), "decoding shape dimensions")
	}
	type plain ShapeEntry
	return decodeStrict(node, (*plain)(e))
}

// dimensionsOf input.
func (e *ShapeEntry) dimensionsOf(input string) []int {
	if dims, found := e.Inputs[input]; found {
		return dims
	}
	return e.Dimensions
}

// DTypeEntry is one element of the dtypes group.
type DTypeEntry struct {
	// DType of every input.
	DType dtypes.DType `yaml:"dtype"`

	// Inputs optionally overrides the dtype of specific inputs, by input name.
	Inputs map[string]dtypes.DType `yaml:"inputs,omitempty"`

	Overrides `yaml:",inline"`
}

// UnmarshalYAML accepts either the full entry or just the dtype name (e.g. "float32").
func (e *DTypeEntry) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*e = DTypeEntry{}
		return node.Decode(&e.DType)
	}
	type plain DTypeEntry
	return decodeStrict(node, (*plain)(e))
}

// decodeStrict decodes node into out, rejecting unknown fields.
// node.Decode doesn't carry over the KnownFields setting of the parent decoder.
func decodeStrict(node *yaml.Node, out any) error {
	data, err := yaml.Marshal(node)
	if err != nil {
		return errors.Wrap(err, "re-encoding entry")
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(out); err != nil {
		return errors.Wrapf(err, "line %d", node.Line)
	}
	return nil
}

func (e *DTypeEntry) dtypeOf(input string) dtypes.DType {
	if dtype, found := e.Inputs[input]; found {
		return dtype
	}
	return e.DType
}

// AttributeEntry is one element of the attributes group.
type AttributeEntry struct {
	Attributes backends.Attributes `yaml:"attributes"`

	Overrides `yaml:",inline"`
}

// merge the overrides of inner into o: fields set in inner win.
func (o Overrides) merge(inner Overrides) Overrides {
	if inner.Range != nil {
		o.Range = inner.Range
	}
	if inner.Tolerance != nil {
		o.Tolerance = inner.Tolerance
		// The exact_match of an inner tolerance replaces an outer exact.
		o.Exact = nil
	}
	if inner.Exact != nil {
		o.Exact = inner.Exact
	}
	if inner.GradientTolerance != nil {
		o.GradientTolerance = inner.GradientTolerance
	}
	return o
}

// resolve the tolerances given the defaults.
func (o Overrides) resolve(defaultTolerance, defaultGradientTolerance compare.Tolerance) (tol, gradTol compare.Tolerance) {
	tol, gradTol = defaultTolerance, defaultGradientTolerance
	if o.Tolerance != nil {
		tol = *o.Tolerance
	}
	if o.GradientTolerance != nil {
		gradTol = *o.GradientTolerance
	}
	if o.Exact != nil {
		tol.ExactMatch = *o.Exact
	}
	return
}
