//go:build !v8

package quickjs

import (
	"fmt"
	"strings"
	"testing"

	"github.com/cryguy/asyncleak/internal/compiler"
	"github.com/cryguy/asyncleak/internal/core"
	"github.com/cryguy/asyncleak/internal/eventloop"
	"github.com/cryguy/asyncleak/internal/webapi"
)

// loadModule builds a backend with the given module source loaded.
func loadModule(t *testing.T, source string) *Backend {
	t.Helper()
	compiled, err := compiler.CompileModule(source)
	if err != nil {
		t.Fatalf("CompileModule: %v", err)
	}
	b, err := New(core.EngineConfig{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(b.Close)
	if err := b.Load(compiled); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return b
}

func callMain(t *testing.T, b *Backend) core.Deferred {
	t.Helper()
	fn, err := b.Entry("main")
	if err != nil {
		t.Fatalf("Entry: %v", err)
	}
	d, err := fn.Call()
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	return d
}

func TestAsyncEntryFulfilledWithoutTick(t *testing.T) {
	b := loadModule(t, "export let main = async () => { return 'hello world' }")

	d := callMain(t, b)
	if d == nil {
		t.Fatal("async entry should return a deferred")
	}
	// An async function without await settles before the call returns.
	if got := d.State(); got != core.DeferredFulfilled {
		t.Fatalf("state = %s, want fulfilled", got)
	}
	val, err := d.Result()
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	if val != "hello world" {
		t.Errorf("result = %q, want %q", val, "hello world")
	}
}

func TestAwaitingEntryFulfillsAfterTick(t *testing.T) {
	b := loadModule(t, "export let main = async () => { await null; return 'hello world' }")

	d := callMain(t, b)
	if got := d.State(); got != core.DeferredPending {
		t.Fatalf("state before tick = %s, want pending", got)
	}
	b.Tick()
	if got := d.State(); got != core.DeferredFulfilled {
		t.Fatalf("state after tick = %s, want fulfilled", got)
	}
}

func TestResultCoercesWithString(t *testing.T) {
	b := loadModule(t, "export let main = async () => ({ toString() { return 'custom' } })")

	d := callMain(t, b)
	if val, err := d.Result(); err != nil || val != "custom" {
		t.Errorf("Result = %q, %v; want custom", val, err)
	}
}

func TestResultCoercionThrows(t *testing.T) {
	b := loadModule(t, "export let main = async () => ({ toString() { throw new Error('no text') } })")

	d := callMain(t, b)
	if _, err := d.Result(); err == nil || !strings.Contains(err.Error(), "no text") {
		t.Errorf("Result error = %v, want the toString exception", err)
	}
}

func TestSyncEntryReturnsNoDeferred(t *testing.T) {
	b := loadModule(t, "export let main = () => 'hello world'")

	if d := callMain(t, b); d != nil {
		t.Errorf("sync entry returned a deferred: %#v", d)
	}
}

func TestThrowingEntryReturnsError(t *testing.T) {
	b := loadModule(t, "export let main = () => { throw new Error('kaboom') }")

	fn, err := b.Entry("main")
	if err != nil {
		t.Fatalf("Entry: %v", err)
	}
	if _, err := fn.Call(); err == nil || !strings.Contains(err.Error(), "kaboom") {
		t.Errorf("Call error = %v, want kaboom", err)
	}
}

func TestEntryMissing(t *testing.T) {
	b := loadModule(t, "export let other = () => 1; export const main = 42")

	if _, err := b.Entry("main"); err == nil {
		t.Error("expected error for non-function export")
	}
	if _, err := b.Entry("nope"); err == nil {
		t.Error("expected error for missing export")
	}
}

func TestNeverSettlingStaysPending(t *testing.T) {
	b := loadModule(t, "export let main = () => new Promise(() => {})")

	d := callMain(t, b)
	for i := 0; i < 3; i++ {
		b.Tick()
	}
	if got := d.State(); got != core.DeferredPending {
		t.Errorf("state = %s, want pending", got)
	}
}

func TestRejectedEntry(t *testing.T) {
	b := loadModule(t, "export let main = async () => { throw new Error('boom') }")

	d := callMain(t, b)
	if got := d.State(); got != core.DeferredRejected {
		t.Fatalf("state = %s, want rejected", got)
	}
	val, err := d.Result()
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	if !strings.Contains(val, "boom") {
		t.Errorf("result = %q, want it to mention boom", val)
	}
}

func TestTimerSettledPromise(t *testing.T) {
	b := loadModule(t, "export let main = () => new Promise(r => setTimeout(() => r('late'), 0))")

	d := callMain(t, b)
	if got := d.State(); got != core.DeferredPending {
		t.Fatalf("state before tick = %s, want pending", got)
	}
	b.Tick()
	if got := d.State(); got != core.DeferredFulfilled {
		t.Fatalf("state after tick = %s, want fulfilled", got)
	}
	if b.eventLoop.HasPending() {
		t.Error("timer should have been consumed")
	}
}

func TestReleaseFreesPromise(t *testing.T) {
	b := loadModule(t, "export let main = async () => 'x'")

	d := callMain(t, b)
	if len(b.live) != 1 {
		t.Fatalf("live = %d, want 1", len(b.live))
	}
	d.Release()

	if len(b.live) != 0 {
		t.Errorf("live = %d after Release, want 0", len(b.live))
	}
	if _, err := d.Result(); err == nil {
		t.Error("Result after Release should fail")
	}
	d.Release()
}

func TestCloseFreesHeldPromises(t *testing.T) {
	compiled, err := compiler.CompileModule("export let main = () => new Promise(() => {})")
	if err != nil {
		t.Fatalf("CompileModule: %v", err)
	}
	b, err := New(core.EngineConfig{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := b.Load(compiled); err != nil {
		t.Fatalf("Load: %v", err)
	}
	var held []core.Deferred
	for i := 0; i < 10; i++ {
		held = append(held, callMain(t, b))
	}

	b.Close()

	if len(b.live) != 0 {
		t.Errorf("live = %d after Close, want 0", len(b.live))
	}
	for _, d := range held {
		if _, err := d.Result(); err == nil {
			t.Error("Result after Close should fail")
		}
	}
}

func TestHeapStatistics(t *testing.T) {
	b := loadModule(t, "export let main = async () => 'hello world'")

	before := b.HeapStatistics()
	if before.UsedBytes == 0 || before.TotalBytes == 0 {
		t.Fatalf("empty heap statistics: %+v", before)
	}

	var held []core.Deferred
	for i := 0; i < 1000; i++ {
		held = append(held, callMain(t, b))
	}
	after := b.HeapStatistics()
	if after.UsedBytes <= before.UsedBytes {
		t.Errorf("used bytes did not grow with %d held promises: before=%d after=%d",
			len(held), before.UsedBytes, after.UsedBytes)
	}
}

func TestConsoleForwardsToLog(t *testing.T) {
	var lines []string
	orig := webapi.Logf
	webapi.Logf = func(format string, args ...any) {
		lines = append(lines, fmt.Sprintf(format, args...))
	}
	defer func() { webapi.Logf = orig }()

	b := loadModule(t, "export let main = () => { console.warn('careful', 1, {a: 2}); return 'ok' }")
	callMain(t, b)

	if len(lines) != 1 {
		t.Fatalf("got %d log lines, want 1: %v", len(lines), lines)
	}
	if want := `console.warn: careful 1 {"a":2}`; lines[0] != want {
		t.Errorf("line = %q, want %q", lines[0], want)
	}
}

func TestLoadRejectsBrokenUnit(t *testing.T) {
	b, err := New(core.EngineConfig{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer b.Close()

	if err := b.Load("this is not javascript"); err == nil {
		t.Error("expected error for invalid script")
	}
}

func TestLoadWithoutNamespace(t *testing.T) {
	b, err := New(core.EngineConfig{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer b.Close()

	if err := b.Load("var x = 1;"); err == nil {
		t.Error("expected error when the namespace global is missing")
	}
}

func TestTimerCallbackExceptionIsLogged(t *testing.T) {
	var lines []string
	orig := eventloop.Logf
	eventloop.Logf = func(format string, args ...any) {
		lines = append(lines, fmt.Sprintf(format, args...))
	}
	defer func() { eventloop.Logf = orig }()

	b := loadModule(t, `export let main = () => new Promise(r => {
		setTimeout(() => { throw new Error('late boom') }, 0);
		setTimeout(r, 0, 'hello world');
	})`)

	d := callMain(t, b)
	b.Tick()

	if got := d.State(); got != core.DeferredFulfilled {
		t.Errorf("state = %s, want fulfilled despite the throwing timer", got)
	}
	if len(lines) != 1 || !strings.Contains(lines[0], "late boom") {
		t.Errorf("log lines = %v, want one mentioning late boom", lines)
	}
}

func TestClearTimeoutCancels(t *testing.T) {
	b := loadModule(t, `export let main = () => new Promise((resolve, reject) => {
		let id = setTimeout(() => reject(new Error('should not fire')), 0);
		clearTimeout(id);
		setTimeout(resolve, 0, 'hello world');
	})`)

	d := callMain(t, b)
	b.Tick()
	if got := d.State(); got != core.DeferredFulfilled {
		t.Errorf("state = %s, want fulfilled", got)
	}
	if b.eventLoop.HasPending() {
		t.Error("no timers should remain")
	}
}

// A VM pushed over its memory limit must fail loudly rather than leave
// results looking pending forever.
func TestMemoryLimitSurfacesErrors(t *testing.T) {
	compiled, err := compiler.CompileModule(`export let main = async () => {
		(globalThis.keep ||= []).push(new Array(100000).fill('x'));
		return 'hello world';
	}`)
	if err != nil {
		t.Fatalf("CompileModule: %v", err)
	}
	b, err := New(core.EngineConfig{MemoryLimitMB: 4})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(b.Close)
	if err := b.Load(compiled); err != nil {
		t.Fatalf("Load: %v", err)
	}

	for i := 0; i < 100; i++ {
		fn, err := b.Entry("main")
		if err != nil {
			return
		}
		d, err := fn.Call()
		if err != nil {
			return
		}
		switch d.State() {
		case core.DeferredFulfilled:
			if _, err := d.Result(); err != nil {
				return
			}
			d.Release()
		case core.DeferredRejected:
			// The body's allocation failure rejects the promise.
			if reason, err := d.Result(); err == nil && !strings.Contains(reason, "memory") {
				t.Errorf("rejection = %q, want an out of memory error", reason)
			}
			return
		default:
			t.Fatalf("call %d: promise pending, want a settled result or an error", i)
		}
	}
	t.Fatal("no error after 100 calls over a 4MB limit")
}
