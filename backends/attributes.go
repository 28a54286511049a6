// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package backends

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gomlx/opcheck/pkg/core/dtypes"
	"github.com/gomlx/opcheck/pkg/core/errs"
	"github.com/gomlx/opcheck/pkg/support/xslices"
)

// Attributes maps attribute names to values, e.g. {"scale": 2.0, "bias": 1.0} for OpTypeAffine, or
// {"dtype": "int32"} for OpTypeCast.
//
// They are opaque to the harness: the same Attributes are passed unchanged to both backends, and each
// backend interprets them with the typed getters below. Values usually come from YAML, so getters accept
// any numeric Go type for numbers, and strings for dtypes.
type Attributes map[string]any

// Names of the attributes used by the operators.
const (
	AttrScale          = "scale"
	AttrBias           = "bias"
	AttrBiasAfterScale = "bias_after_scale"
	AttrOrder          = "order"
	AttrDType          = "dtype"
)

// Values for AttrOrder, an alternative to AttrBiasAfterScale.
const (
	OrderBiasAfterScale  = "bias_after_scale"
	OrderBiasBeforeScale = "bias_before_scale"
)

// Has returns whether the attribute is set.
func (a Attributes) Has(name string) bool {
	_, found := a[name]
	return found
}

// Float returns the attribute as a float64, or defaultValue if it is not set.
func (a Attributes) Float(name string, defaultValue float64) (float64, error) {
	value, found := a[name]
	if !found {
		return defaultValue, nil
	}
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int8:
		return float64(v), nil
	case int16:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case uint:
		return float64(v), nil
	case uint8:
		return float64(v), nil
	case uint16:
		return float64(v), nil
	case uint32:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err == nil {
			return f, nil
		}
	}
	return 0, &errs.InvalidAttributeError{Attribute: name, Value: value, Reason: "expected a number"}
}

// Bool returns the attribute as a bool, or defaultValue if it is not set.
func (a Attributes) Bool(name string, defaultValue bool) (bool, error) {
	value, found := a[name]
	if !found {
		return defaultValue, nil
	}
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err == nil {
			return b, nil
		}
	}
	return false, &errs.InvalidAttributeError{Attribute: name, Value: value, Reason: "expected a boolean"}
}

// DType returns the attribute as a dtype. It is an error if it is not set, or if it is not a supported dtype.
func (a Attributes) DType(name string) (dtypes.DType, error) {
	value, found := a[name]
	if !found {
		return dtypes.InvalidDType, &errs.InvalidAttributeError{Attribute: name, Reason: "missing required dtype"}
	}
	var dtype dtypes.DType
	switch v := value.(type) {
	case dtypes.DType:
		dtype = v
	case string:
		var err error
		dtype, err = dtypes.Parse(v)
		if err != nil {
			return dtypes.InvalidDType, &errs.InvalidAttributeError{Attribute: name, Value: value, Reason: err.Error()}
		}
	}
	if !dtype.IsValid() {
		return dtypes.InvalidDType, &errs.InvalidAttributeError{Attribute: name, Value: value, Reason: "unknown dtype"}
	}
	return dtype, nil
}

// BiasAfterScale returns the ordering of the affine transformation: true for scale*x+bias (the default),
// false for scale*(x+bias). It can be given either by AttrBiasAfterScale or by AttrOrder.
func (a Attributes) BiasAfterScale() (bool, error) {
	if value, found := a[AttrOrder]; found {
		switch fmt.Sprint(value) {
		case OrderBiasAfterScale:
			return true, nil
		case OrderBiasBeforeScale, "scale_after_bias":
			return false, nil
		}
		return false, &errs.InvalidAttributeError{Attribute: AttrOrder, Value: value,
			Reason: fmt.Sprintf("expected %q or %q", OrderBiasAfterScale, OrderBiasBeforeScale)}
	}
	return a.Bool(AttrBiasAfterScale, true)
}

// Clone returns a shallow copy of the attributes.
func (a Attributes) Clone() Attributes {
	if a == nil {
		return nil
	}
	clone := make(Attributes, len(a))
	for k, v := range a {
		clone[k] = v
	}
	return clone
}

// String returns the attributes sorted by name, e.g. "{bias=1, scale=2}".
func (a Attributes) String() string {
	parts := make([]string, 0, len(a))
	for _, name := range xslices.SortedKeys(a) {
		parts = append(parts, fmt.Sprintf("%s=%v", name, a[name]))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
