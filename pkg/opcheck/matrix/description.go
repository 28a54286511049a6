package matrix

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Description is the declarative description of a suite, usually read from YAML:
//
//	name: scale
//	operator: affine
//	gradients: true
//	tolerance: {absolute: 1e-5, relative: 1e-5}
//	shapes: [[4], [2, 3]]
//	dtypes:
//	  - float32
//	  - dtype: float16
//	    tolerance: {absolute: 1e-3, relative: 1e-3}
//	attributes:
//	  - attributes: {scale: 0, bias: 10, order: bias_after_scale}
//	  - attributes: {scale: -1.5, bias: 2, bias_after_scale: false}
type Description struct {
	// Name of the suite, used to name its cases.
	Name string `yaml:"name"`

	// Operator to test, e.g. "affine".
	Operator string `yaml:"operator"`

	// Inputs names. If empty, the operator's input names are used.
	Inputs []string `yaml:"inputs,omitempty"`

	// Requires lists capability requirements, e.g. "host:linux", see opcheck.HostGate.
	Requires []string `yaml:"requires,omitempty"`

	// Gradients requests the comparison of gradients for every case.
	Gradients bool `yaml:"gradients,omitempty"`

	// Overrides at the suite level.
	Overrides `yaml:",inline"`

	Shapes     []ShapeEntry     `yaml:"shapes"`
	DTypes     []DTypeEntry     `yaml:"dtypes"`
	Attributes []AttributeEntry `yaml:"attributes"`
}

// ParseDescriptions parses one or more YAML documents, each with one Description.
// Unknown fields are an error.
func ParseDescriptions(r io.Reader) ([]*Description, error) {
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	var descriptions []*Description
	for {
		d := &Description{}
		err := decoder.Decode(d)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "parsing suite description #%d", len(descriptions))
		}
		if d.Attributes == nil {
			// Operators without attributes: one case per shape and dtype.
			d.Attributes = []AttributeEntry{{}}
		}
		descriptions = append(descriptions, d)
	}
	return descriptions, nil
}

// LoadDescriptions reads the suite descriptions in a YAML file. Suites without a name are named after the file.
func LoadDescriptions(path string) ([]*Description, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading suite description %q", path)
	}
	descriptions, err := ParseDescriptions(bytes.NewReader(data))
	if err != nil {
		return nil, errors.WithMessagef(err, "in file %q", path)
	}
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	for ii, d := range descriptions {
		if d.Name == "" {
			d.Name = base
			if len(descriptions) > 1 {
				d.Name = fmt.Sprintf("%s-%d", base, ii+1)
			}
		}
	}
	return descriptions, nil
}

// Marshal the description back to YAML.
func (d *Description) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(d)
	return data, errors.Wrap(err, "marshaling suite description")
}
