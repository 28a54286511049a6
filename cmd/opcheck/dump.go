package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gomlx/opcheck/pkg/core/tensors"
	"github.com/gomlx/opcheck/pkg/core/tensors/numpy"
	"github.com/gomlx/opcheck/pkg/opcheck"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Prefixes of the tensors saved in a dump, besides the inputs that are saved with their own names.
const (
	referencePrefix = "reference."
	candidatePrefix = "candidate."
)

// dumpFileName for the case: the "#" of the case name is replaced, since it is awkward in shells.
func dumpFileName(dir, caseName string) string {
	return filepath.Join(dir, strings.ReplaceAll(caseName, "#", "_")+".npz")
}

// dumpFailures saves the inputs and outputs of the cases that failed or errored, one .npz file per case.
func dumpFailures(dir string, summary *opcheck.Summary) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		klog.Errorf("failed to create -dump_dir: %+v", err)
		return
	}
	for _, r := range summary.Results {
		if r.Inputs == nil || (r.State != opcheck.StateFailed && r.State != opcheck.StateErrored) {
			continue
		}
		path := dumpFileName(dir, r.Record.Name)
		if err := numpy.ToNpzFile(dumpContents(r), path); err != nil {
			klog.Errorf("failed to dump case %s: %+v", r.Record.Name, err)
			continue
		}
		fmt.Fprintf(os.Stderr, "case %s saved to %s\n", r.Record.Name, path)
	}
}

func dumpContents(r *opcheck.CaseResult) map[string]*tensors.Tensor {
	contents := make(map[string]*tensors.Tensor)
	add := func(prefix string, set tensors.Set) {
		for _, named := range set {
			contents[prefix+named.Name] = named.Tensor
		}
	}
	add("", r.Inputs)
	add(referencePrefix, r.ReferenceOutputs)
	add(candidatePrefix, r.CandidateOutputs)
	add(referencePrefix, r.ReferenceGradients)
	add(candidatePrefix, r.CandidateGradients)
	return contents
}

// loadInputs of the record from a dump.
func loadInputs(path string, names []string) (tensors.Set, error) {
	contents, err := numpy.FromNpzFile(path)
	if err != nil {
		return nil, err
	}
	inputs := make(tensors.Set, 0, len(names))
	for _, name := range names {
		t, found := contents[name]
		if !found {
			return nil, errors.Errorf("input %q not found in %q", name, path)
		}
		inputs = append(inputs, tensors.Named{Name: name, Tensor: t})
	}
	return inputs, nil
}

// replay the case named caseName with the inputs saved in path. It returns whether the case passed.
func replay(cfg opcheck.Config, adapters *opcheck.Adapters, suites []*opcheck.Suite, caseName, path string) bool {
	for _, suite := range suites {
		for ii := range suite.Records {
			record := &suite.Records[ii]
			if record.Name != caseName {
				continue
			}
			names := make([]string, len(record.Inputs))
			for jj, input := range record.Inputs {
				names[jj] = input.Name
			}
			inputs, err := loadInputs(path, names)
			if err != nil {
				klog.Errorf("%+v", err)
				return false
			}
			result := opcheck.RunCaseWithInputs(cfg, adapters, record, inputs)
			fmt.Println(result)
			return result.State == opcheck.StatePassed
		}
	}
	klog.Errorf("case %q not found in the given suites, use -case=<suite>#<index>", caseName)
	return false
}
