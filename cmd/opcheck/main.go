// opcheck runs differential test suites of tensor operators: each case runs on a reference backend and on
// a candidate backend with the same random inputs, and their outputs (and gradients) are compared.
//
// Usage:
//
//	opcheck [flags] suite.yaml...
//
// Suites are YAML files, see package github.com/gomlx/opcheck/pkg/opcheck/matrix for the format, and the
// examples in the suites/ subdirectory. The exit status is 1 if any case failed or errored.
package main

import (
	"flag"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/gomlx/opcheck/backends"
	"github.com/gomlx/opcheck/pkg/opcheck"
	"github.com/gomlx/opcheck/pkg/opcheck/matrix"
	"github.com/gomlx/opcheck/pkg/support/fsutil"
	"github.com/gomlx/opcheck/pkg/support/sets"
	"github.com/gomlx/opcheck/pkg/support/xslices"
	"github.com/janpfeifer/must"
	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"
)

var (
	flagReference = flag.String("reference", backends.ConfigFromEnv(backends.ReferenceEnv, backends.DefaultReference),
		"Configuration of the reference backend, formatted as \"<backend_name>:<backend_configuration>\". "+
			"It defaults to $"+backends.ReferenceEnv+" or \""+backends.DefaultReference+"\".")
	flagCandidate = flag.String("candidate", backends.ConfigFromEnv(backends.CandidateEnv, backends.DefaultCandidate),
		"Configuration of the candidate backend (the one under test). "+
			"It defaults to $"+backends.CandidateEnv+" or \""+backends.DefaultCandidate+"\".")

	flagSeed          = flag.Uint64("seed", opcheck.DefaultSeed, "Seed of the random inputs. Each case derives its own seed from it.")
	flagParallelism   = flag.Int("parallelism", runtime.NumCPU(), "Number of cases run in parallel. 0 runs them sequentially, -1 is unlimited.")
	flagConcurrent    = flag.Bool("concurrent_backends", false, "Run the reference and candidate backends of each case concurrently.")
	flagGrads         = flag.Bool("grads", false, "Compare gradients in every case, also for suites that don't request it.")
	flagStopOnFailure = flag.Bool("stop_on_failure", false, "Stop starting new cases after the first failure.")
	flagProgress      = flag.Bool("progress", true, "Display a progress bar.")
	flagMaxMismatches = flag.Int("max_mismatches", 10, "Number of mismatching elements reported per case.")
	flagVerboseReport = flag.Bool("verbose_report", false, "List every case in the report, not only the ones that didn't pass.")
	flagListBackends  = flag.Bool("list_backends", false, "List the registered backends and exit.")

	flagSkipUnsupported = flag.Bool("skip_unsupported", true,
		"Skip cases whose operator or dtypes are not supported by one of the backends, instead of reporting them as errors.")

	flagDumpDir = flag.String("dump_dir", "", "If set, the inputs and outputs of each case that failed or errored "+
		"are saved in this directory, one .npz file per case.")

	flagReplay = flag.String("replay", "", "Run only the case given by -case, with the inputs saved in this .npz file (see -dump_dir).")
	flagCase   = flag.String("case", "", "Name of the case (\"<suite>#<index>\") to run with -replay.")

	flagOps = xslices.Flag("ops", nil, "Comma-separated list of operators: only suites of these operators are run.",
		func(s string) (string, error) {
			op, err := backends.ParseOperator(s)
			if err != nil {
				return "", err
			}
			return op.String(), nil
		})
)

func main() {
	klog.InitFlags(nil)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] suite.yaml...\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if *flagListBackends {
		fmt.Println(strings.Join(backends.List(), "\n"))
		return
	}
	if flag.NArg() == 0 {
		klog.Errorf("Missing suite description files. See 'opcheck -help'.")
		os.Exit(1)
	}

	suites, err := loadSuites(flag.Args())
	if err != nil {
		klog.Errorf("%+v", err)
		os.Exit(1)
	}
	adapters, err := opcheck.NewAdapters(*flagReference, *flagCandidate)
	if err != nil {
		klog.Errorf("%+v", err)
		os.Exit(1)
	}
	defer adapters.Finalize()

	cfg := opcheck.DefaultConfig()
	cfg.Seed = *flagSeed
	cfg.Parallelism = *flagParallelism
	cfg.ConcurrentBackends = *flagConcurrent
	cfg.CheckGradients = *flagGrads
	cfg.StopOnFailure = *flagStopOnFailure
	cfg.MaxMismatches = *flagMaxMismatches
	gates := opcheck.Gates{opcheck.NewHostGate()}
	if *flagSkipUnsupported {
		gates = append(gates, adapters.BackendGate())
	}
	cfg.Gate = gates

	var ok bool
	if *flagReplay != "" {
		ok = replay(cfg, adapters, suites, *flagCase, *flagReplay)
	} else {
		ok = runSuites(cfg, adapters, suites)
	}
	if !ok {
		adapters.Finalize()
		os.Exit(1)
	}
}

// loadSuites from the description files, filtered by -ops.
func loadSuites(paths []string) ([]*opcheck.Suite, error) {
	var suites []*opcheck.Suite
	for _, path := range paths {
		descriptions, err := matrix.LoadDescriptions(path)
		if err != nil {
			return nil, err
		}
		for _, d := range descriptions {
			if len(*flagOps) > 0 {
				op, err := backends.ParseOperator(d.Operator)
				if err != nil || !sets.MakeWith(*flagOps...).Has(op.String()) {
					klog.V(1).Infof("suite %q (%s) skipped by -ops", d.Name, d.Operator)
					continue
				}
			}
			suites = append(suites, opcheck.SuiteFromDescription(d))
		}
	}
	return suites, nil
}

// runSuites runs and reports every suite. It returns false if any case failed or errored.
func runSuites(cfg opcheck.Config, adapters *opcheck.Adapters, suites []*opcheck.Suite) bool {
	var total int
	for _, suite := range suites {
		total += len(suite.Records)
	}
	var bar *progressbar.ProgressBar
	if *flagProgress && total > 0 {
		bar = progressbar.NewOptions(total,
			progressbar.OptionSetDescription("cases"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetTheme(progressbar.ThemeASCII),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("cases"),
			progressbar.OptionClearOnFinish())
	}
	onDone := func(*opcheck.CaseResult) {
		if bar != nil {
			_ = bar.Add(1)
		}
	}

	ok := true
	var summaries []*opcheck.Summary
	for _, suite := range suites {
		summary := opcheck.RunSuite(cfg, adapters, suite, onDone)
		summaries = append(summaries, summary)
		if !summary.OK() {
			ok = false
			if *flagDumpDir != "" {
				dumpFailures(must.M1(fsutil.ReplaceTildeInDir(*flagDumpDir)), summary)
			}
			if cfg.StopOnFailure {
				break
			}
		}
	}
	if bar != nil {
		_ = bar.Finish()
	}
	for _, summary := range summaries {
		err := opcheck.Report(os.Stdout, summary, opcheck.ReportOptions{Verbose: *flagVerboseReport, Diagnostics: true})
		if err != nil {
			klog.Errorf("%+v", err)
			return false
		}
	}
	return ok
}
