package webapi

import (
	"fmt"
	"time"

	"github.com/cryguy/asyncleak/internal/core"
	"github.com/cryguy/asyncleak/internal/eventloop"
)

// timersJS keeps callbacks in a closure-private table keyed by the ID the
// Go loop hands out. The loop only ever calls back through the fire global.
// Delays are truncated to int32 before crossing into Go.
const timersJS = `
(function() {
	var pending = Object.create(null);
	function schedule(fn, ms, repeat, args) {
		if (typeof fn !== 'function') return 0;
		var id = __timerAdd(Math.max(0, (+ms || 0) | 0), repeat);
		pending[id] = { fn: fn, args: args, repeat: repeat };
		return id;
	}
	globalThis.setTimeout = function(fn, ms) {
		return schedule(fn, ms, false, Array.prototype.slice.call(arguments, 2));
	};
	globalThis.setInterval = function(fn, ms) {
		return schedule(fn, ms, true, Array.prototype.slice.call(arguments, 2));
	};
	globalThis.clearTimeout = globalThis.clearInterval = function(id) {
		if (typeof id !== 'number' || !(id in pending)) return;
		__timerCancel(id | 0);
		delete pending[id];
	};
	Object.defineProperty(globalThis, %q, {
		value: function(id) {
			var t = pending[id];
			if (!t) return;
			if (!t.repeat) delete pending[id];
			t.fn.apply(undefined, t.args);
		}
	});
})();
`

// SetupTimers installs setTimeout, setInterval and their clear functions,
// scheduled on el.
func SetupTimers(rt core.JSRuntime, el *eventloop.EventLoop) error {
	if err := rt.RegisterFunc("__timerAdd", func(ms int, repeat bool) int {
		return el.RegisterTimer(time.Duration(ms)*time.Millisecond, repeat)
	}); err != nil {
		return err
	}
	if err := rt.RegisterFunc("__timerCancel", func(id int) {
		el.ClearTimer(id)
	}); err != nil {
		return err
	}
	return rt.Eval(fmt.Sprintf(timersJS, eventloop.FireGlobal))
}
