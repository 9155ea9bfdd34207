// Package asyncleak drives a JavaScript module inside an embedded engine to
// reproduce heap growth when async functions are called in a tight loop
// against one long-lived context.
//
// The module is compiled and loaded exactly once. Every iteration resolves
// the entry function from the module namespace, calls it a fixed number of
// times, keeps every returned promise, drains the fulfilled ones in a single
// non-blocking pass, and runs one scheduling tick. Every SampleEvery
// iterations the engine's heap counters are printed.
//
// The QuickJS backend is the default. Build with -tags v8 for V8.
package asyncleak

import (
	"context"
	"io"

	"github.com/cryguy/asyncleak/internal/compiler"
	"github.com/cryguy/asyncleak/internal/core"
)

// Harness owns one execution environment and the compiled module in it.
// It is not safe for concurrent use; JS engines are single-threaded.
type Harness struct {
	cfg         Config
	backend     core.Backend
	out         io.Writer
	outstanding []core.Deferred
	iterations  uint64
}

// New compiles cfg.Source, creates the engine backend selected at build
// time and loads the module into it. Every failure is a FatalStartup error.
func New(cfg Config) (*Harness, error) {
	cfg = cfg.withDefaults()

	compiled, err := compiler.CompileModule(cfg.Source)
	if err != nil {
		return nil, &FatalError{Kind: FatalStartup, Err: err}
	}

	b, err := newBackend(core.EngineConfig{MemoryLimitMB: cfg.MemoryLimitMB})
	if err != nil {
		return nil, fatalf(FatalStartup, "creating engine: %w", err)
	}

	h, err := newHarness(cfg, b, compiled)
	if err != nil {
		b.Close()
		return nil, err
	}
	return h, nil
}

// newHarness loads an already compiled unit into b. It is the only place
// Backend.Load is called.
func newHarness(cfg Config, b core.Backend, compiled string) (*Harness, error) {
	cfg = cfg.withDefaults()
	if err := b.Load(compiled); err != nil {
		return nil, fatalf(FatalStartup, "loading module: %w", err)
	}
	return &Harness{cfg: cfg, backend: b, out: cfg.Output}, nil
}

// Run calls Step until it fails or ctx is done. It never returns nil.
func (h *Harness) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := h.Step(); err != nil {
			return err
		}
	}
}

// Step runs one iteration: BatchSize calls, one drain pass, one scheduling
// tick, and a heap snapshot when the iteration count reaches a multiple of
// SampleEvery.
func (h *Harness) Step() error {
	fn, err := h.backend.Entry(h.cfg.EntryName)
	if err != nil {
		return &FatalError{Kind: FatalCall, Err: err}
	}

	for i := 0; i < h.cfg.BatchSize; i++ {
		d, err := fn.Call()
		if err != nil {
			return fatalf(FatalCall, "calling %s: %w", h.cfg.EntryName, err)
		}
		// Plain return values are dropped unexamined.
		if d != nil {
			h.outstanding = append(h.outstanding, d)
		}
	}

	if _, err := h.Drain(); err != nil {
		return err
	}

	h.backend.Tick()
	h.iterations++

	if h.iterations%uint64(h.cfg.SampleEvery) == 0 {
		_ = writeSnapshot(h.out, h.Snapshot())
	}
	return nil
}

// Drain makes one non-blocking pass over the outstanding results and
// returns how many fulfilled ones it removed. A fulfilled result is removed
// whether or not it matches Expected; a mismatch stops the pass with a
// FatalInvariant error. Pending results stay, and so do rejected ones
// unless the policy is FailOnRejected.
func (h *Harness) Drain() (int, error) {
	kept := h.outstanding[:0]
	drained := 0

	for i, d := range h.outstanding {
		switch d.State() {
		case core.DeferredFulfilled:
			got, err := d.Result()
			d.Release()
			drained++
			if err != nil {
				h.outstanding = h.compact(kept, i+1)
				return drained, fatalf(FatalInvariant, "reading fulfilled result: %w", err)
			}
			if got != h.cfg.Expected {
				h.outstanding = h.compact(kept, i+1)
				return drained, fatalf(FatalInvariant, "unexpected result %q, want %q", got, h.cfg.Expected)
			}
		case core.DeferredRejected:
			kept = append(kept, d)
			if h.cfg.Rejections == FailOnRejected {
				reason, _ := d.Result()
				h.outstanding = h.compact(kept, i+1)
				return drained, fatalf(FatalRejection, "%s rejected: %s", h.cfg.EntryName, reason)
			}
		default:
			kept = append(kept, d)
		}
	}

	h.outstanding = h.compact(kept, len(h.outstanding))
	return drained, nil
}

// compact appends the not yet visited tail outstanding[from:] to kept and
// clears the slots left behind so released handles are not held.
func (h *Harness) compact(kept []core.Deferred, from int) []core.Deferred {
	n := len(h.outstanding)
	kept = append(kept, h.outstanding[from:]...)
	for i := len(kept); i < n; i++ {
		h.outstanding[i] = nil
	}
	return kept
}

// Snapshot reads the engine heap counters and the outstanding count.
func (h *Harness) Snapshot() HeapSnapshot {
	s := h.backend.HeapStatistics()
	return HeapSnapshot{
		UsedBytes:   s.UsedBytes,
		TotalBytes:  s.TotalBytes,
		Outstanding: len(h.outstanding),
	}
}

// Iterations returns how many steps have completed.
func (h *Harness) Iterations() uint64 { return h.iterations }

// Outstanding returns how many results are still being tracked.
func (h *Harness) Outstanding() int { return len(h.outstanding) }

// Close releases every tracked result and disposes of the engine.
func (h *Harness) Close() {
	for _, d := range h.outstanding {
		d.Release()
	}
	h.outstanding = nil
	h.backend.Close()
}
