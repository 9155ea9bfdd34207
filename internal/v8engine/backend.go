//go:build v8

package v8engine

import (
	"fmt"

	"github.com/cryguy/asyncleak/internal/core"
	"github.com/cryguy/asyncleak/internal/eventloop"
	"github.com/cryguy/asyncleak/internal/webapi"
	v8 "github.com/tommie/v8go"
)

// Backend is one V8 isolate and context holding the module for the
// harness lifetime.
//
// v8go roots every value it hands out in the context until the context is
// closed, so the namespace, the entry functions resolved each iteration and
// every promise stay reachable from Go for as long as the harness runs.
// There is no narrower handle scope to open per call.
type Backend struct {
	iso       *v8.Isolate
	ctx       *v8.Context
	rt        *v8Runtime
	eventLoop *eventloop.EventLoop
	ns        *v8.Object
}

var _ core.Backend = (*Backend)(nil)

// New creates an isolate and context and installs the environment globals.
// The V8 platform itself is initialised once per process by v8go.
func New(cfg core.EngineConfig) (*Backend, error) {
	var iso *v8.Isolate
	if cfg.MemoryLimitMB > 0 {
		heapSize := uint64(cfg.MemoryLimitMB) * 1024 * 1024
		iso = v8.NewIsolate(v8.WithResourceConstraints(heapSize/2, heapSize))
	} else {
		iso = v8.NewIsolate()
	}
	ctx := v8.NewContext(iso)
	rt := &v8Runtime{iso: iso, ctx: ctx}
	el := eventloop.New()

	if err := webapi.Setup(rt, el); err != nil {
		ctx.Close()
		iso.Dispose()
		return nil, fmt.Errorf("setup: %w", err)
	}

	return &Backend{iso: iso, ctx: ctx, rt: rt, eventLoop: el}, nil
}

// Load compiles and runs the compiled unit and keeps its namespace.
func (b *Backend) Load(compiled string) error {
	script, err := b.iso.CompileUnboundScript(compiled, "module.js", v8.CompileOptions{})
	if err != nil {
		return fmt.Errorf("compiling module: %w", err)
	}
	if _, err := script.Run(b.ctx); err != nil {
		return fmt.Errorf("running module: %w", err)
	}

	val, err := b.ctx.Global().Get(core.ModuleGlobal)
	if err != nil {
		return fmt.Errorf("reading module namespace: %w", err)
	}
	if val == nil || !val.IsObject() {
		return fmt.Errorf("module did not produce a namespace")
	}
	ns, err := val.AsObject()
	if err != nil {
		return fmt.Errorf("reading module namespace: %w", err)
	}
	b.ns = ns
	return nil
}

// Entry resolves the named export from the namespace.
func (b *Backend) Entry(name string) (core.EntryFunc, error) {
	if b.ns == nil {
		return nil, fmt.Errorf("module not loaded")
	}
	val, err := b.ns.Get(name)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", name, err)
	}
	if val == nil || !val.IsFunction() {
		return nil, fmt.Errorf("export %q is not a function", name)
	}
	fn, err := val.AsFunction()
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", name, err)
	}
	return &v8Entry{fn: fn, recv: b.ns}, nil
}

// Tick fires due timers and performs a microtask checkpoint.
func (b *Backend) Tick() {
	b.eventLoop.RunDue(b.rt)
	b.rt.RunMicrotasks()
}

// HeapStatistics reports the isolate's used and total heap size.
func (b *Backend) HeapStatistics() core.HeapStats {
	s := b.iso.GetHeapStatistics()
	return core.HeapStats{UsedBytes: s.UsedHeapSize, TotalBytes: s.TotalHeapSize}
}

// Close closes the context and disposes of the isolate.
func (b *Backend) Close() {
	b.eventLoop.Reset()
	b.ctx.Close()
	b.iso.Dispose()
}

type v8Entry struct {
	fn   *v8.Function
	recv *v8.Object
}

func (e *v8Entry) Call() (core.Deferred, error) {
	val, err := e.fn.Call(e.recv)
	if err != nil {
		return nil, err
	}
	if val == nil || !val.IsPromise() {
		return nil, nil
	}
	p, err := val.AsPromise()
	if err != nil {
		return nil, err
	}
	return &v8Deferred{p: p}, nil
}

// v8Deferred reads the promise state natively; nothing is attached to it.
type v8Deferred struct {
	p *v8.Promise
}

func (d *v8Deferred) State() core.DeferredState {
	if d.p == nil {
		return core.DeferredPending
	}
	switch d.p.State() {
	case v8.Fulfilled:
		return core.DeferredFulfilled
	case v8.Rejected:
		return core.DeferredRejected
	default:
		return core.DeferredPending
	}
}

func (d *v8Deferred) Result() (string, error) {
	if d.p == nil {
		return "", fmt.Errorf("deferred already released")
	}
	return d.p.Result().String(), nil
}

// Release drops the Go reference. The value itself stays rooted in the
// context until it closes.
func (d *v8Deferred) Release() {
	d.p = nil
}
