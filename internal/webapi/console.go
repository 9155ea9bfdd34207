package webapi

import (
	"log"

	"github.com/cryguy/asyncleak/internal/core"
	"github.com/cryguy/asyncleak/internal/eventloop"
)

// consoleJS builds a console object whose methods forward a flattened
// message to the Go-side __console function.
const consoleJS = `
(function() {
	var levels = ['log', 'info', 'warn', 'error', 'debug'];
	var con = {};
	for (var i = 0; i < levels.length; i++) {
		(function(lvl) {
			con[lvl] = function() {
				var parts = [];
				for (var j = 0; j < arguments.length; j++) {
					var arg = arguments[j];
					if (typeof arg === 'object' && arg !== null) {
						try { parts.push(JSON.stringify(arg)); } catch (e) { parts.push('[object Object]'); }
					} else {
						parts.push(String(arg));
					}
				}
				__console(lvl, parts.join(' '));
			};
		})(levels[i]);
	}
	globalThis.console = con;
})();
`

// Logf is where console output ends up. Tests swap it to capture lines.
var Logf = log.Printf

// SetupConsole replaces globalThis.console with a Go-backed version that
// writes through the standard logger. Script output goes to stderr so it
// never interleaves with the telemetry on stdout.
func SetupConsole(rt core.JSRuntime, _ *eventloop.EventLoop) error {
	if err := rt.RegisterFunc("__console", func(level, message string) {
		Logf("console.%s: %s", level, message)
	}); err != nil {
		return err
	}
	return rt.Eval(consoleJS)
}

// SetupFunc installs globals into a fresh environment before the module loads.
type SetupFunc func(rt core.JSRuntime, el *eventloop.EventLoop) error

// Setup runs every environment setup function in order.
func Setup(rt core.JSRuntime, el *eventloop.EventLoop) error {
	for _, fn := range []SetupFunc{SetupTimers, SetupConsole} {
		if err := fn(rt, el); err != nil {
			return err
		}
	}
	return nil
}
