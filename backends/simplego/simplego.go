// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package simplego implements the "go" backend: a simple, portable backend written in pure Go, and the
// default backend under test.
//
// Kernels are generic over the Go type of each dtype, compute in the native width of the dtype
// (Float16 is upcast to float32), and split large tensors into chunks that run in parallel.
// Output and scratch memory comes from pools of buffers, and it is always returned to the pool before
// Run returns.
//
// Configuration options, comma separated (e.g. "go:parallelism=4,chunk=4096"):
//
//   - parallelism=N: maximum number of chunks running in parallel. 0 disables parallelism, -1 is unlimited.
//     The default is runtime.NumCPU().
//   - chunk=N: number of elements per chunk, default 16384.
package simplego

import (
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gomlx/opcheck/backends"
	"github.com/gomlx/opcheck/internal/workerspool"
	"github.com/pkg/errors"
)

// BackendName to be used in OPCHECK_CANDIDATE (or OPCHECK_REFERENCE) to select this backend.
const BackendName = "go"

// DefaultChunkSize is the default number of elements processed by each parallel task.
const DefaultChunkSize = 16 * 1024

// Registers New() as the constructor for the "go" backend.
func init() {
	backends.Register(BackendName, New)
}

// New constructs a new SimpleGo Backend. See the package documentation for the configuration options.
func New(config string) (backends.Backend, error) {
	b := newBackend()
	if config == "" {
		return b, nil
	}
	for _, part := range strings.Split(config, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, found := strings.Cut(part, "=")
		if !found {
			return nil, errors.Errorf("invalid configuration option %q for SimpleGo (go) backend, expected key=value", part)
		}
		n, err := strconv.Atoi(value)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid value for configuration option %q for SimpleGo (go) backend", key)
		}
		switch key {
		case "parallelism":
			b.workers.SetMaxParallelism(n)
		case "chunk":
			if n <= 0 {
				return nil, errors.Errorf("chunk must be > 0 for SimpleGo (go) backend, got %d", n)
			}
			b.chunkSize = n
		default:
			return nil, errors.Errorf("unknown configuration option %q for SimpleGo (go) backend", key)
		}
	}
	return b, nil
}

func newBackend() *Backend {
	return &Backend{
		workers:   workerspool.New(),
		chunkSize: DefaultChunkSize,
		programs:  make(map[string]*Program),
	}
}

// Backend implements the backends.Backend interface.
type Backend struct {
	// bufferPools are a map to pools of buffers that can be reused.
	// The underlying type is map[bufferPoolKey]*sync.Pool.
	bufferPools sync.Map

	// numLiveBuffers counts the buffers taken from the pools and not yet returned.
	numLiveBuffers atomic.Int64

	workers   *workerspool.Pool
	chunkSize int

	mu       sync.Mutex
	programs map[string]*Program
}

// Compile-time check that simplego.Backend implements backends.Backend.
var _ backends.Backend = &Backend{}

// Name returns the short name of the backend.
func (b *Backend) Name() string {
	return BackendName
}

// String implements fmt.Stringer.
func (b *Backend) String() string { return "SimpleGo (go)" }

// Description is a longer description of the Backend that can be used to pretty-print.
func (b *Backend) Description() string {
	return "Simple Go Portable Backend"
}

// Capabilities returns information about what is supported by this backend.
func (b *Backend) Capabilities() backends.Capabilities {
	return Capabilities
}

// NumLiveBuffers returns the number of pooled buffers currently in use. Outside of Run it should be 0.
func (b *Backend) NumLiveBuffers() int {
	return int(b.numLiveBuffers.Load())
}

// NumLivePrograms returns the number of programs built and not yet released.
func (b *Backend) NumLivePrograms() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.programs)
}

// Finalize releases all programs and drops the buffer pools.
func (b *Backend) Finalize() {
	b.mu.Lock()
	programs := make([]*Program, 0, len(b.programs))
	for _, p := range b.programs {
		programs = append(programs, p)
	}
	b.mu.Unlock()
	for _, p := range programs {
		p.Release()
	}
	b.bufferPools.Clear()
}

// parallelFor runs fn over [0, n) in chunks, using the backend's workers.
func (b *Backend) parallelFor(n int, fn func(start, end int)) {
	b.workers.ParallelFor(n, b.chunkSize, fn)
}
