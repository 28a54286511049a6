// Package xslices has slice and map helpers missing from the standard slices and maps packages.
package xslices

import (
	"cmp"
	"flag"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// SortedKeys returns the keys of the map in ascending order.
func SortedKeys[K cmp.Ordered, V any](m map[K]V) []K {
	return slices.Sorted(maps.Keys(m))
}

// Flag defines a command line flag with a comma-separated list of values, each one parsed by parserFn.
// An empty flag value sets an empty list.
func Flag[T any](name string, defaultValue []T, usage string, parserFn func(valueStr string) (T, error)) *[]T {
	f := &sliceFlag[T]{values: defaultValue, parserFn: parserFn}
	flag.Var(f, name, usage)
	return &f.values
}

// sliceFlag implements flag.Value.
type sliceFlag[T any] struct {
	values   []T
	parserFn func(valueStr string) (T, error)
}

func (f *sliceFlag[T]) String() string {
	if f == nil {
		return ""
	}
	parts := make([]string, len(f.values))
	for ii, v := range f.values {
		parts[ii] = fmt.Sprint(v)
	}
	return strings.Join(parts, ",")
}

func (f *sliceFlag[T]) Set(listStr string) error {
	f.values = make([]T, 0)
	if listStr == "" {
		return nil
	}
	for _, part := range strings.Split(listStr, ",") {
		value, err := f.parserFn(strings.TrimSpace(part))
		if err != nil {
			return err
		}
		f.values = append(f.values, value)
	}
	return nil
}
