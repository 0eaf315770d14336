// Package plotnik is the package-level facade over the query compiler and
// VM: Compile turns source text into a compiled Module, and Run executes a
// compiled Module's entrypoint against a parsed tree, materializing the
// result (spec.md §4). Everything here is thin glue over internal/syntax,
// internal/resolve, internal/typeinfer, internal/graph, internal/bytecode,
// internal/vm, and internal/materialize — none of those packages import
// this one, so consumers that only need a piece of the pipeline (e.g. a
// fixture harness driving internal/vm directly) can skip this file
// entirely.
package plotnik

import (
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/plotnik-lang/plotnik/internal/bytecode"
	"github.com/plotnik-lang/plotnik/internal/cursorts"
	"github.com/plotnik-lang/plotnik/internal/diag"
	"github.com/plotnik-lang/plotnik/internal/graph"
	"github.com/plotnik-lang/plotnik/internal/materialize"
	"github.com/plotnik-lang/plotnik/internal/nodetypes"
	"github.com/plotnik-lang/plotnik/internal/resolve"
	"github.com/plotnik-lang/plotnik/internal/syntax"
	"github.com/plotnik-lang/plotnik/internal/typeinfer"
	"github.com/plotnik-lang/plotnik/internal/vm"
)

// CompileConfig bounds parse/recursion fuel during compilation; pass
// plotnikconfig.LoadConfig's fields rather than syntax.DefaultParseConfig
// directly when fuel should be environment-tunable.
type CompileConfig struct {
	ParseFuel     int
	RecursionFuel int
}

// DefaultCompileConfig mirrors internal/syntax's own defaults.
var DefaultCompileConfig = CompileConfig{
	ParseFuel:     syntax.DefaultParseConfig.ExecFuel,
	RecursionFuel: syntax.DefaultParseConfig.RecursionLimit,
}

// CompileResult bundles a compiled module with the non-fatal diagnostics
// produced along the way; callers decide whether warnings should block use
// of Module (spec.md §7 draws the fatal/non-fatal line at bag.HasErrors()).
type CompileResult struct {
	Module *bytecode.Module
	Diags  []diag.Message
}

// Compile runs the full source -> bytecode.Module pipeline: parse, resolve,
// infer types, lower to the symbolic graph, then encode node/field tables
// from nt. sourceID labels every diagnostic's Range (spec.md §4.1-§4.5).
func Compile(source string, nt *nodetypes.Table, cfg CompileConfig, sourceID int) (*CompileResult, error) {
	file, bag, err := syntax.Parse(sourceID, source, syntax.ParseConfig{
		ExecFuel:       cfg.ParseFuel,
		RecursionLimit: cfg.RecursionFuel,
	})
	if err != nil {
		return nil, fmt.Errorf("plotnik: parse: %w", err)
	}

	table := resolve.Resolve([]*syntax.File{file}, bag, sourceID)
	if bag.HasErrors() {
		return &CompileResult{Diags: bag.Messages()}, nil
	}

	module := bytecode.NewModule()

	tinfo := typeinfer.Infer(table, module.Strings, bag, sourceID)
	if bag.HasErrors() {
		return &CompileResult{Diags: bag.Messages()}, nil
	}
	module.Types = tinfo.Types

	for _, k := range nt.AllKinds() {
		module.NodeTypes = append(module.NodeTypes, bytecode.NodeTypeEntry{Kind: k.ID, Name: module.Strings.Intern(k.Name)})
	}
	for _, f := range nt.AllFields() {
		module.NodeFields = append(module.NodeFields, bytecode.NodeFieldEntry{Field: f.ID, Name: module.Strings.Intern(f.Name)})
	}
	module.Trivia = nt.TriviaKinds()

	if err := graph.Compile(module, table, tinfo, nt, bag, sourceID); err != nil {
		if bag.HasErrors() {
			return &CompileResult{Diags: bag.Messages()}, nil
		}
		return nil, fmt.Errorf("plotnik: %w", err)
	}

	return &CompileResult{Module: module, Diags: bag.Messages()}, nil
}

// RunConfig bounds execution fuel and recursion depth for one Run.
type RunConfig struct {
	ExecFuel       int
	RecursionLimit int
}

// DefaultRunConfig mirrors internal/vm's own defaults.
var DefaultRunConfig = RunConfig{ExecFuel: vm.DefaultConfig.ExecFuel, RecursionLimit: vm.DefaultConfig.RecursionLimit}

// Run executes module's named entrypoint ("" selects the sole default
// entrypoint, spec.md §4.3) against root, materializing the resulting
// effect log into a Go value (spec.md §4.6, §4.7).
func Run(module *bytecode.Module, root *sitter.Node, source []byte, nt *nodetypes.Table, entrypoint string, cfg RunConfig) (any, error) {
	ep, ok := module.EntrypointByName(entrypoint)
	if !ok {
		return nil, fmt.Errorf("plotnik: unknown entrypoint %q", entrypoint)
	}

	tree := cursorts.NewTree(root, source, nt)
	cursor := tree.Root()

	machine := vm.New(module, cursor, source, vm.Config{ExecFuel: cfg.ExecFuel, RecursionLimit: cfg.RecursionLimit})
	effects, err := machine.Run(ep.Target)
	if err != nil {
		return nil, fmt.Errorf("plotnik: run: %w", err)
	}

	return materialize.Replay(effects, module.Types, ep.ResultType, source)
}
