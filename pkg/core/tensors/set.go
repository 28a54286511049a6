// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package tensors

import (
	"strings"

	"github.com/pkg/errors"
)

// Named is a tensor with a name: a program's input, output or gradient.
type Named struct {
	Name   string
	Tensor *Tensor
}

// Set is an ordered sequence of named tensors: the inputs given to a program, or the
// outputs (or gradients) it returns. Order is significant.
type Set []Named

// Names returns the names in order.
func (s Set) Names() []string {
	names := make([]string, len(s))
	for ii, n := range s {
		names[ii] = n.Name
	}
	return names
}

// Get returns the tensor with the given name, or nil if not found.
func (s Set) Get(name string) *Tensor {
	for _, n := range s {
		if n.Name == name {
			return n.Tensor
		}
	}
	return nil
}

// Index returns the position of the given name, or -1 if not found.
func (s Set) Index(name string) int {
	for ii, n := range s {
		if n.Name == name {
			return ii
		}
	}
	return -1
}

// Select returns the tensors with the given names, in the order given.
// If names is empty, it returns s itself.
func (s Set) Select(names ...string) (Set, error) {
	if len(names) == 0 {
		return s, nil
	}
	selected := make(Set, 0, len(names))
	for _, name := range names {
		t := s.Get(name)
		if t == nil {
			return nil, errors.Errorf("no tensor named %q, available: %s", name, strings.Join(s.Names(), ", "))
		}
		selected = append(selected, Named{Name: name, Tensor: t})
	}
	return selected, nil
}

// Freeze all tensors in the set.
func (s Set) Freeze() {
	for _, n := range s {
		n.Tensor.Freeze()
	}
}

// Memory returns the total number of bytes used by the tensors in the set.
func (s Set) Memory() (total uintptr) {
	for _, n := range s {
		total += n.Tensor.Memory()
	}
	return
}

// String implements fmt.Stringer.
func (s Set) String() string {
	parts := make([]string, len(s))
	for ii, n := range s {
		parts[ii] = n.Name + "=" + n.Tensor.Shape().String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
