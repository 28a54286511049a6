package opcheck

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/gomlx/opcheck/backends"
	"github.com/gomlx/opcheck/pkg/core/dtypes"
	"github.com/gomlx/opcheck/pkg/support/sets"
	"k8s.io/klog/v2"
)

// Requirement describes what a case needs to run: the operator and dtypes it uses, and opaque requirements
// from the suite description (e.g. "os:linux").
type Requirement struct {
	Operator string
	DTypes   []dtypes.DType
	Requires []string
}

// String implements fmt.Stringer.
func (r Requirement) String() string {
	return fmt.Sprintf("%s%v requires=%v", r.Operator, r.DTypes, r.Requires)
}

// CapabilityGate decides whether a case should run at all. A decline makes the case Skipped, never Failed.
type CapabilityGate interface {
	// Allows returns whether the requirement is satisfied, and if not, the reason.
	Allows(requirement Requirement) (allowed bool, reason string)
}

// GateFunc adapts a function to a CapabilityGate.
type GateFunc func(requirement Requirement) (allowed bool, reason string)

// Allows implements CapabilityGate.
func (fn GateFunc) Allows(requirement Requirement) (bool, string) { return fn(requirement) }

// AllowAll is a CapabilityGate that allows everything.
var AllowAll CapabilityGate = GateFunc(func(Requirement) (bool, string) { return true, "" })

// Gates combines gates: a requirement is allowed only if every gate allows it.
type Gates []CapabilityGate

// Allows implements CapabilityGate, returning the reason of the first gate that declines.
func (gates Gates) Allows(requirement Requirement) (bool, string) {
	for _, gate := range gates {
		if gate == nil {
			continue
		}
		if allowed, reason := gate.Allows(requirement); !allowed {
			return false, reason
		}
	}
	return true, ""
}

// HostGate checks requirements about the host. It understands:
//
//   - "os:<goos>" and "arch:<goarch>": e.g. "os:linux", "arch:amd64". A "!" prefix negates, e.g. "!os:windows".
//   - "min_cpus:<n>": at least n CPUs.
//   - "env:<NAME>": the environment variable NAME is set and not empty.
//
// Other requirements are left for other gates, with a warning logged once per requirement.
type HostGate struct {
	GOOS, GOARCH string
	NumCPU       int
	LookupEnv    func(string) (string, bool)
}

// NewHostGate returns a HostGate for the current host.
func NewHostGate() *HostGate {
	return &HostGate{GOOS: runtime.GOOS, GOARCH: runtime.GOARCH, NumCPU: runtime.NumCPU(), LookupEnv: os.LookupEnv}
}

var warnedRequirements sync.Map

// Allows implements CapabilityGate.
func (g *HostGate) Allows(requirement Requirement) (bool, string) {
	for _, req := range requirement.Requires {
		negated := strings.HasPrefix(req, "!")
		key, value, _ := strings.Cut(strings.TrimPrefix(req, "!"), ":")
		var ok bool
		switch key {
		case "os":
			ok = g.GOOS == value
		case "arch":
			ok = g.GOARCH == value
		case "min_cpus":
			n, err := strconv.Atoi(value)
			if err != nil {
				return false, fmt.Sprintf("invalid requirement %q: %v", req, err)
			}
			ok = g.NumCPU >= n
		case "env":
			lookup := g.LookupEnv
			if lookup == nil {
				lookup = os.LookupEnv
			}
			v, found := lookup(value)
			ok = found && v != ""
		case "backend":
			// Checked by BackendGate.
			continue
		default:
			if _, warned := warnedRequirements.LoadOrStore(req, true); !warned {
				klog.Warningf("HostGate: unknown capability requirement %q ignored", req)
			}
			continue
		}
		if ok == negated {
			return false, fmt.Sprintf("host doesn't satisfy %q (os=%s, arch=%s, cpus=%d)", req, g.GOOS, g.GOARCH, g.NumCPU)
		}
	}
	return true, ""
}

// BackendGate declines cases whose operator or dtypes are not supported by all of its backends, according to
// their Capabilities. Requirements "backend:<name>" are satisfied if one of the backends has that name.
//
// Without it, an unsupported combination makes the case Errored.
type BackendGate struct {
	Backends []backends.Backend
}

// Allows implements CapabilityGate.
func (g *BackendGate) Allows(requirement Requirement) (bool, string) {
	op, err := backends.ParseOperator(requirement.Operator)
	if err != nil {
		// Unknown operators are reported as errors when the program is built.
		return true, ""
	}
	for _, backend := range g.Backends {
		caps := backend.Capabilities()
		if !caps.Operations[op] {
			return false, fmt.Sprintf("backend %q doesn't support operator %s", backend.Name(), op)
		}
		for _, dtype := range requirement.DTypes {
			if !caps.DTypes[dtype] {
				return false, fmt.Sprintf("backend %q doesn't support dtype %s", backend.Name(), dtype)
			}
		}
	}
	names := sets.Make[string](len(g.Backends))
	for _, backend := range g.Backends {
		names.Insert(backend.Name())
	}
	for _, req := range requirement.Requires {
		if name, found := strings.CutPrefix(req, "backend:"); found && !names.Has(name) {
			return false, fmt.Sprintf("requires backend %q", name)
		}
	}
	return true, ""
}
