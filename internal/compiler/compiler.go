// Package compiler turns an ES module into a plain script the embedded
// engines can evaluate. Neither engine binding exposes a module loader, so
// the module is rewritten as an IIFE that assigns its export namespace to
// globalThis.__harness_module__.
package compiler

import (
	"errors"
	"fmt"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/cryguy/asyncleak/internal/core"
)

// ErrUnexpectedImport is reported when the module asks for another module.
// The harness loads a single self-contained script and resolves nothing.
var ErrUnexpectedImport = errors.New("unexpected import")

// SourceFile is the name diagnostics and stack traces refer to.
const SourceFile = "<resource>"

// rejectImports resolves every import specifier, static or dynamic, to an
// error so a module that reaches outside itself fails at compile time.
var rejectImports = api.Plugin{
	Name: "reject-imports",
	Setup: func(build api.PluginBuild) {
		build.OnResolve(api.OnResolveOptions{Filter: ".*"},
			func(args api.OnResolveArgs) (api.OnResolveResult, error) {
				return api.OnResolveResult{}, fmt.Errorf("%w %q", ErrUnexpectedImport, args.Path)
			})
	},
}

// CompileModule bundles source into a script that assigns the module
// namespace to core.ModuleGlobal. Errors carry esbuild's diagnostic text.
func CompileModule(source string) (string, error) {
	result := api.Build(api.BuildOptions{
		Stdin: &api.StdinOptions{
			Contents:   source,
			Sourcefile: SourceFile,
			Loader:     api.LoaderJS,
		},
		Bundle:     true,
		Write:      false,
		Format:     api.FormatIIFE,
		GlobalName: "globalThis." + core.ModuleGlobal,
		Platform:   api.PlatformNeutral,
		Target:     api.ES2022,
		LogLevel:   api.LogLevelSilent,
		Plugins:    []api.Plugin{rejectImports},
	})

	if len(result.Errors) > 0 {
		return "", fmt.Errorf("compiling module: %s", formatMessages(result.Errors))
	}
	if len(result.OutputFiles) == 0 {
		return "", fmt.Errorf("compiling module: no output")
	}
	return string(result.OutputFiles[0].Contents), nil
}

// formatMessages renders esbuild messages as "file:line:col: text" joined by "; ".
func formatMessages(msgs []api.Message) string {
	parts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if m.Location != nil {
			parts = append(parts, fmt.Sprintf("%s:%d:%d: %s",
				m.Location.File, m.Location.Line, m.Location.Column, m.Text))
			continue
		}
		parts = append(parts, m.Text)
	}
	return strings.Join(parts, "; ")
}
