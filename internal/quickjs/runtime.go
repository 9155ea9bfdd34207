//go:build !v8

package quickjs

import (
	"errors"
	"fmt"

	"github.com/cryguy/asyncleak/internal/core"
	"modernc.org/libc"
	lib "modernc.org/libquickjs"
	"modernc.org/quickjs"
)

// qjsRuntime wraps the VM together with the raw C handles pulled out of it.
// Promise state and memory accounting go through the handles; everything
// else goes through the Go binding.
type qjsRuntime struct {
	vm  *quickjs.VM
	tls *libc.TLS
	rt  uintptr // JSRuntime*
	ctx uintptr // JSContext*
}

var _ core.JSRuntime = (*qjsRuntime)(nil)

func newRuntime(vm *quickjs.VM) (*qjsRuntime, error) {
	rt, tls, ok := extractRuntime(vm)
	if !ok {
		return nil, errors.New("cannot reach QuickJS runtime handles")
	}
	ctx, ok := extractContext(vm)
	if !ok {
		return nil, errors.New("cannot reach QuickJS context handle")
	}
	return &qjsRuntime{vm: vm, tls: tls, rt: rt, ctx: ctx}, nil
}

func (r *qjsRuntime) Eval(js string) error {
	v, err := r.vm.EvalValue(js, quickjs.EvalGlobal)
	if err != nil {
		return err
	}
	v.Free()
	return nil
}

// evalBool evaluates js, which must produce a boolean.
func (r *qjsRuntime) evalBool(js string) (bool, error) {
	result, err := r.vm.Eval(js, quickjs.EvalGlobal)
	if err != nil {
		return false, err
	}
	b, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("expected bool, got %T", result)
	}
	return b, nil
}

// RegisterFunc binds fn directly. The binding rejects arguments whose JS
// type does not match the Go parameter, so callers coerce on the JS side.
func (r *qjsRuntime) RegisterFunc(name string, fn any) error {
	return r.vm.RegisterFunc(name, fn, false)
}

func (r *qjsRuntime) RunMicrotasks() {
	executePendingJobs(r.tls, r.rt)
}

// toString coerces v with JS String semantics. v is borrowed.
func (r *qjsRuntime) toString(v lib.TJSValue) (string, error) {
	p := lib.XToCString(r.tls, r.ctx, v)
	if p == 0 {
		return "", r.takeException()
	}
	defer lib.XJS_FreeCString(r.tls, r.ctx, p)
	return libc.GoString(p), nil
}

// takeException clears the pending exception and returns it as an error.
func (r *qjsRuntime) takeException() error {
	e := lib.XJS_GetException(r.tls, r.ctx)
	defer lib.XFreeValue(r.tls, r.ctx, e)
	p := lib.XToCString(r.tls, r.ctx, e)
	if p == 0 {
		return errors.New("exception could not be converted to a string")
	}
	defer lib.XJS_FreeCString(r.tls, r.ctx, p)
	return errors.New(libc.GoString(p))
}
