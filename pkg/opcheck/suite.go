// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package opcheck

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gomlx/opcheck/internal/workerspool"
	"github.com/gomlx/opcheck/pkg/opcheck/matrix"
	"github.com/google/uuid"
	"k8s.io/klog/v2"
)

// Suite is a named list of records, usually expanded from a matrix.Description.
type Suite struct {
	Name    string
	Records []matrix.ParameterRecord
}

// SuiteFromDescription expands the description into a Suite.
func SuiteFromDescription(d *matrix.Description) *Suite {
	return &Suite{Name: d.Name, Records: d.Expand()}
}

// Summary of the execution of a suite.
type Summary struct {
	// RunID identifies the execution in logs.
	RunID string
	Suite string

	// Results in the order of the records.
	Results []*CaseResult

	Passed, Failed, Skipped, Errored int
	Duration                         time.Duration
}

// OK returns whether no case Failed or Errored.
func (s *Summary) OK() bool {
	return s.Failed == 0 && s.Errored == 0
}

// Total number of cases.
func (s *Summary) Total() int {
	return len(s.Results)
}

// String implements fmt.Stringer.
func (s *Summary) String() string {
	return fmt.Sprintf("%s: %d passed, %d failed, %d skipped, %d errored (%d cases in %s)",
		s.Suite, s.Passed, s.Failed, s.Skipped, s.Errored, s.Total(), s.Duration)
}

// count the result in the summary.
func (s *Summary) count(r *CaseResult) {
	switch r.State {
	case StatePassed:
		s.Passed++
	case StateFailed:
		s.Failed++
	case StateSkipped:
		s.Skipped++
	case StateErrored:
		s.Errored++
	}
}

// RunSuite runs every record of the suite, in parallel up to cfg.Parallelism cases, and returns the summary.
//
// A case failure never aborts its siblings, but with cfg.StopOnFailure no new case is started after one
// Failed or Errored: those not started are reported as Skipped.
// If onDone is not nil, it is called (from the goroutine running the case) as each case finishes.
func RunSuite(cfg Config, adapters *Adapters, suite *Suite, onDone func(*CaseResult)) *Summary {
	start := time.Now()
	summary := &Summary{RunID: uuid.NewString(), Suite: suite.Name, Results: make([]*CaseResult, len(suite.Records))}
	if len(suite.Records) == 0 {
		klog.Warningf("suite %q has no cases", suite.Name)
	}
	klog.V(1).Infof("suite %q run %s: %d cases, reference=%s, candidate=%s, seed=%d", suite.Name, summary.RunID,
		len(suite.Records), adapters.Reference.Name(), adapters.Candidate.Name(), cfg.Seed)

	pool := workerspool.New()
	pool.SetMaxParallelism(cfg.Parallelism)
	var failed atomic.Bool
	var stop func() bool
	if cfg.StopOnFailure {
		stop = failed.Load
	}
	pool.ForEach(len(suite.Records), func(ii int) {
		result := RunCase(cfg, adapters, &suite.Records[ii])
		if result.State == StateFailed || result.State == StateErrored {
			failed.Store(true)
		}
		summary.Results[ii] = result
		if onDone != nil {
			onDone(result)
		}
	}, stop)

	for ii, result := range summary.Results {
		if result == nil {
			result = skipped(&suite.Records[ii], "not run")
			summary.Results[ii] = result
			if onDone != nil {
				onDone(result)
			}
		}
		summary.count(result)
	}
	summary.Duration = time.Since(start)
	klog.V(1).Infof("run %s: %s", summary.RunID, summary)
	return summary
}
