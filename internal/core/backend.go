package core

// ModuleGlobal is the global the compiled unit assigns its export
// namespace to. The entry function is looked up on it every iteration.
const ModuleGlobal = "__harness_module__"

// Backend is the interface engine implementations (QuickJS, V8) must
// satisfy. One Backend owns exactly one execution environment for its
// whole lifetime, with timers and console already installed; the root
// asyncleak.Harness picks one by build tag.
type Backend interface {
	// Load evaluates the compiled unit and checks that it assigned
	// ModuleGlobal. It is called once per backend.
	Load(compiled string) error

	// Entry resolves the named export from the module namespace.
	Entry(name string) (EntryFunc, error)

	// Tick fires timers that are due and then runs the microtask queue.
	// It never waits.
	Tick()

	// HeapStatistics samples the engine's memory counters.
	HeapStatistics() HeapStats

	// Close disposes of the environment.
	Close()
}

// EntryFunc is an exported module function.
type EntryFunc interface {
	// Call invokes the function with no arguments and the module namespace
	// as receiver. A nil Deferred means the call returned a plain value,
	// which is dropped. A thrown exception is returned as an error.
	Call() (Deferred, error)
}

// Deferred is a durable handle to a promise returned by an EntryFunc.
type Deferred interface {
	// State reports the promise state without waiting.
	State() DeferredState

	// Result returns the settled value coerced to a string. Only
	// meaningful once State is not DeferredPending.
	Result() (string, error)

	// Release drops the handle so the engine may reclaim the promise.
	Release()
}
