//go:build !v8

package quickjs

import (
	"reflect"
	"unsafe"

	"modernc.org/libc"
	lib "modernc.org/libquickjs"
	"modernc.org/quickjs"
)

// executePendingJobs runs all pending microtasks (Promise callbacks, etc.) in
// the QuickJS runtime. The modernc.org/quickjs Go wrapper never calls
// JS_ExecutePendingJob, so Promise .then() callbacks would otherwise never
// fire. rt and tls come from extractRuntime.
//
// Returns the number of jobs executed. A job that throws stops the pass; the
// rest run on the next tick.
func executePendingJobs(tls *libc.TLS, rt uintptr) int {
	count := 0
	for {
		ret := lib.XJS_ExecutePendingJob(tls, rt, 0)
		if ret <= 0 {
			break
		}
		count++
	}
	return count
}

// extractRuntime uses unsafe reflection to pull the unexported tls and
// cRuntime values out of a *quickjs.VM.
//
// VM struct layout (modernc.org/quickjs@v0.17.1):
//
//	type VM struct {
//	    cContext       uintptr
//	    goFuncs       map[string]int32
//	    int32_16      lib.TJSValue
//	    int32_2       lib.TJSValue
//	    runtime       *runtime
//	    ...
//	}
//
//	type runtime struct {
//	    cRuntime uintptr
//	    tls      *libc.TLS
//	}
func extractRuntime(vm *quickjs.VM) (cRuntime uintptr, tls *libc.TLS, ok bool) {
	vmVal := reflect.ValueOf(vm).Elem()

	rtField := vmVal.FieldByName("runtime")
	if !rtField.IsValid() || rtField.IsNil() {
		return 0, nil, false
	}

	rtPtr := unsafe.Pointer(rtField.Pointer())
	rtVal := reflect.NewAt(rtField.Type().Elem(), rtPtr).Elem()

	cRuntimeField := rtVal.FieldByName("cRuntime")
	if !cRuntimeField.IsValid() {
		return 0, nil, false
	}
	cRuntime = uintptr(cRuntimeField.Uint())

	tlsField := rtVal.FieldByName("tls")
	if !tlsField.IsValid() || tlsField.IsNil() {
		return 0, nil, false
	}
	tls = (*libc.TLS)(unsafe.Pointer(tlsField.Pointer()))

	return cRuntime, tls, true
}

// extractContext reads VM.cContext, the JSContext* every value belongs to.
func extractContext(vm *quickjs.VM) (uintptr, bool) {
	f := reflect.ValueOf(vm).Elem().FieldByName("cContext")
	if !f.IsValid() || f.Kind() != reflect.Uintptr {
		return 0, false
	}
	return uintptr(f.Uint()), true
}

// rawValue returns the JSValue inside a quickjs.Value without touching its
// reference count. Value layout is { vm *VM; v lib.TJSValue }.
func rawValue(v *quickjs.Value) lib.TJSValue {
	f := reflect.ValueOf(v).Elem().FieldByName("v")
	return *(*lib.TJSValue)(unsafe.Pointer(f.UnsafeAddr()))
}

// computeMemoryUsage reads JS_ComputeMemoryUsage for the runtime.
// memory_used_size is what live objects occupy; malloc_size is everything
// the runtime has taken from the allocator.
func computeMemoryUsage(tls *libc.TLS, rt uintptr) (used, total uint64) {
	var usage lib.TJSMemoryUsage
	lib.XJS_ComputeMemoryUsage(tls, rt, uintptr(unsafe.Pointer(&usage)))
	return uint64(usage.Fmemory_used_size), uint64(usage.Fmalloc_size)
}
