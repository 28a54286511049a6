package opcheck

import (
	"runtime"

	"github.com/gomlx/opcheck/backends"
	"github.com/gomlx/opcheck/pkg/opcheck/compare"
	"github.com/pkg/errors"

	// Register the included backends.
	_ "github.com/gomlx/opcheck/backends/reference"
	_ "github.com/gomlx/opcheck/backends/simplego"
)

// DefaultSeed used if none is configured.
const DefaultSeed = 42

// Config of the execution of test cases.
type Config struct {
	// Seed of the suite: each case derives its own random source from it and its index.
	Seed uint64

	// Parallelism is the maximum number of cases running in parallel. 0 runs them sequentially,
	// -1 is unlimited.
	Parallelism int

	// ConcurrentBackends runs the reference and candidate backends of a case concurrently.
	ConcurrentBackends bool

	// CheckGradients compares gradients in every case, not only those whose record requests it.
	CheckGradients bool

	// StopOnFailure stops starting new cases after the first Failed or Errored case.
	// Cases not started are reported as Skipped.
	StopOnFailure bool

	// MaxMismatches is the number of mismatching elements reported per case.
	MaxMismatches int

	// Tolerance and GradientTolerance, if set, replace the tolerances of every record.
	Tolerance, GradientTolerance *compare.Tolerance

	// Gate is consulted before each case. If nil, every case runs.
	Gate CapabilityGate
}

// DefaultConfig returns the default configuration: DefaultSeed, one case per CPU in parallel, and no gate.
func DefaultConfig() Config {
	return Config{
		Seed:          DefaultSeed,
		Parallelism:   runtime.NumCPU(),
		MaxMismatches: compare.DefaultMaxMismatches,
	}
}

func (cfg *Config) gate() CapabilityGate {
	if cfg.Gate == nil {
		return AllowAll
	}
	return cfg.Gate
}

// Adapters are the two backends compared: Reference is the ground truth, Candidate the backend under test.
type Adapters struct {
	Reference, Candidate backends.Backend
}

// NewAdapters creates the backends from their configurations, formatted as "<backend_name>:<backend_configuration>".
func NewAdapters(referenceConfig, candidateConfig string) (*Adapters, error) {
	reference, err := backends.NewWithConfig(referenceConfig)
	if err != nil {
		return nil, errors.WithMessage(err, "creating reference backend")
	}
	candidate, err := backends.NewWithConfig(candidateConfig)
	if err != nil {
		reference.Finalize()
		return nil, errors.WithMessage(err, "creating candidate backend")
	}
	return &Adapters{Reference: reference, Candidate: candidate}, nil
}

// AdaptersFromEnv creates the backends configured by the environment variables OPCHECK_REFERENCE and
// OPCHECK_CANDIDATE, by default "ref" and "go".
func AdaptersFromEnv() (*Adapters, error) {
	return NewAdapters(
		backends.ConfigFromEnv(backends.ReferenceEnv, backends.DefaultReference),
		backends.ConfigFromEnv(backends.CandidateEnv, backends.DefaultCandidate))
}

// BackendGate returns a gate that declines cases not supported by both backends.
func (a *Adapters) BackendGate() *BackendGate {
	return &BackendGate{Backends: []backends.Backend{a.Reference, a.Candidate}}
}

// Finalize both backends.
func (a *Adapters) Finalize() {
	a.Reference.Finalize()
	a.Candidate.Finalize()
}
