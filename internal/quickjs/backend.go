//go:build !v8

package quickjs

import (
	"fmt"

	"github.com/cryguy/asyncleak/internal/core"
	"github.com/cryguy/asyncleak/internal/eventloop"
	"github.com/cryguy/asyncleak/internal/webapi"
	lib "modernc.org/libquickjs"
	"modernc.org/quickjs"
)

// callEntryJS invokes the entry function with the namespace as receiver and
// yields whatever it returns.
const callEntryJS = `(function() {
	var ns = globalThis[%q];
	return ns[%q].call(ns);
})()`

// Backend is a single QuickJS VM holding the module for the harness lifetime.
type Backend struct {
	vm        *quickjs.VM
	rt        *qjsRuntime
	eventLoop *eventloop.EventLoop
	live      map[*qjsDeferred]struct{}
}

var _ core.Backend = (*Backend)(nil)

// New creates the QuickJS VM and installs the environment globals.
func New(cfg core.EngineConfig) (*Backend, error) {
	vm, err := quickjs.NewVM()
	if err != nil {
		return nil, fmt.Errorf("creating QuickJS VM: %w", err)
	}

	if cfg.MemoryLimitMB > 0 {
		vm.SetMemoryLimit(uintptr(cfg.MemoryLimitMB) * 1024 * 1024)
	}

	rt, err := newRuntime(vm)
	if err != nil {
		vm.Close()
		return nil, err
	}
	b := &Backend{
		vm:        vm,
		rt:        rt,
		eventLoop: eventloop.New(),
		live:      make(map[*qjsDeferred]struct{}),
	}
	if err := webapi.Setup(b.rt, b.eventLoop); err != nil {
		vm.Close()
		return nil, fmt.Errorf("setup: %w", err)
	}
	return b, nil
}

// Load evaluates the compiled unit.
func (b *Backend) Load(compiled string) error {
	if err := b.rt.Eval(compiled); err != nil {
		return fmt.Errorf("running module: %w", err)
	}
	ok, err := b.rt.evalBool(fmt.Sprintf("typeof globalThis[%q] === 'object' && globalThis[%q] !== null",
		core.ModuleGlobal, core.ModuleGlobal))
	if err != nil {
		return fmt.Errorf("reading module namespace: %w", err)
	}
	if !ok {
		return fmt.Errorf("module did not produce a namespace")
	}
	return nil
}

// Entry resolves the named export.
func (b *Backend) Entry(name string) (core.EntryFunc, error) {
	ok, err := b.rt.evalBool(fmt.Sprintf("typeof globalThis[%q][%q] === 'function'", core.ModuleGlobal, name))
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", name, err)
	}
	if !ok {
		return nil, fmt.Errorf("export %q is not a function", name)
	}
	return &qjsEntry{b: b, script: fmt.Sprintf(callEntryJS, core.ModuleGlobal, name)}, nil
}

// Tick fires due timers and drains the job queue.
func (b *Backend) Tick() {
	b.eventLoop.RunDue(b.rt)
	b.rt.RunMicrotasks()
}

// HeapStatistics reports JS_ComputeMemoryUsage for the runtime.
func (b *Backend) HeapStatistics() core.HeapStats {
	used, total := computeMemoryUsage(b.rt.tls, b.rt.rt)
	return core.HeapStats{UsedBytes: used, TotalBytes: total}
}

// Close frees every promise still held and then the VM. The runtime
// refuses to shut down with live objects.
func (b *Backend) Close() {
	for d := range b.live {
		d.Release()
	}
	b.eventLoop.Reset()
	b.vm.Close()
}

type qjsEntry struct {
	b      *Backend
	script string
}

func (e *qjsEntry) Call() (core.Deferred, error) {
	v, err := e.b.vm.EvalValue(e.script, quickjs.EvalGlobal)
	if err != nil {
		return nil, err
	}
	if lib.XJS_PromiseState(e.b.rt.tls, e.b.rt.ctx, rawValue(&v)) < 0 {
		v.Free()
		return nil, nil
	}
	d := &qjsDeferred{b: e.b, val: v}
	e.b.live[d] = struct{}{}
	return d, nil
}

// qjsDeferred owns one reference to a promise and reads its state straight
// from the engine.
type qjsDeferred struct {
	b        *Backend
	val      quickjs.Value
	released bool
}

func (d *qjsDeferred) State() core.DeferredState {
	if d.released {
		return core.DeferredPending
	}
	switch lib.XJS_PromiseState(d.b.rt.tls, d.b.rt.ctx, rawValue(&d.val)) {
	case lib.EJS_PROMISE_FULFILLED:
		return core.DeferredFulfilled
	case lib.EJS_PROMISE_REJECTED:
		return core.DeferredRejected
	default:
		return core.DeferredPending
	}
}

// Result coerces the fulfillment value or rejection reason with String().
// Coercion runs script (toString) and may throw; that is returned.
func (d *qjsDeferred) Result() (string, error) {
	if d.released {
		return "", fmt.Errorf("deferred already released")
	}
	rt := d.b.rt
	v := lib.XJS_PromiseResult(rt.tls, rt.ctx, rawValue(&d.val))
	defer lib.XFreeValue(rt.tls, rt.ctx, v)
	return rt.toString(v)
}

func (d *qjsDeferred) Release() {
	if d.released {
		return
	}
	d.released = true
	d.val.Free()
	delete(d.b.live, d)
}
