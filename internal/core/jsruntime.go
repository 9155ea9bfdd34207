package core

// JSRuntime is the slice of an engine that environment setup and the timer
// loop need. Backends keep richer engine access to themselves.
type JSRuntime interface {
	// Eval evaluates JavaScript source in global scope and discards the
	// result. A thrown exception is returned as an error.
	Eval(js string) error

	// RegisterFunc installs a Go function as a global JavaScript function.
	// Arguments may be string, int or bool; the function may return
	// nothing or a single int.
	RegisterFunc(name string, fn any) error

	// RunMicrotasks pumps the microtask queue until it is empty.
	RunMicrotasks()
}
