//go:build v8

package v8engine

import (
	"fmt"
	"reflect"

	"github.com/cryguy/asyncleak/internal/core"
	v8 "github.com/tommie/v8go"
)

// v8Runtime is the core.JSRuntime view of the backend's context, used to
// install globals and fire timers.
type v8Runtime struct {
	iso *v8.Isolate
	ctx *v8.Context
}

var _ core.JSRuntime = (*v8Runtime)(nil)

func (r *v8Runtime) Eval(js string) error {
	_, err := r.ctx.RunScript(js, "setup.js")
	return err
}

// RegisterFunc binds fn as a global. Arguments are converted per parameter
// kind; missing arguments throw. The only result kind supported is int.
func (r *v8Runtime) RegisterFunc(name string, fn any) error {
	fnVal := reflect.ValueOf(fn)
	fnType := fnVal.Type()
	if fnType.Kind() != reflect.Func {
		return fmt.Errorf("RegisterFunc: expected function, got %T", fn)
	}
	if fnType.NumOut() > 1 || (fnType.NumOut() == 1 && fnType.Out(0).Kind() != reflect.Int) {
		return fmt.Errorf("RegisterFunc %s: unsupported result %s", name, fnType)
	}
	for i := 0; i < fnType.NumIn(); i++ {
		switch fnType.In(i).Kind() {
		case reflect.String, reflect.Int, reflect.Bool:
		default:
			return fmt.Errorf("RegisterFunc %s: unsupported parameter %s", name, fnType.In(i))
		}
	}

	tmpl := v8.NewFunctionTemplate(r.iso, func(info *v8.FunctionCallbackInfo) *v8.Value {
		args := info.Args()
		if len(args) < fnType.NumIn() {
			msg, _ := v8.NewValue(r.iso, fmt.Sprintf("%s requires %d argument(s), got %d", name, fnType.NumIn(), len(args)))
			r.iso.ThrowException(msg)
			return nil
		}

		in := make([]reflect.Value, fnType.NumIn())
		for i := range in {
			in[i] = fromJS(args[i], fnType.In(i).Kind())
		}
		out := fnVal.Call(in)
		if len(out) == 0 {
			return nil
		}
		v, _ := v8.NewValue(r.iso, int32(out[0].Int()))
		return v
	})

	return r.ctx.Global().Set(name, tmpl.GetFunction(r.ctx))
}

func (r *v8Runtime) RunMicrotasks() {
	r.ctx.PerformMicrotaskCheckpoint()
}

func fromJS(val *v8.Value, kind reflect.Kind) reflect.Value {
	switch kind {
	case reflect.String:
		return reflect.ValueOf(val.String())
	case reflect.Int:
		return reflect.ValueOf(int(val.Integer()))
	default:
		return reflect.ValueOf(val.Boolean())
	}
}
