// Command plotnikc is a thin CLI wrapper over the plotnik package: compile,
// dump, and run subcommands. It is explicitly out of scope for deep
// behavior (spec.md §1 "The CLI, rendering of diagnostics... file I/O");
// it exists only as a wiring point over the library packages, the way the
// teacher's own cmd/ binaries are thin argument-parsing shells around its
// core/providers packages.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/spf13/cobra"

	plotnik "github.com/plotnik-lang/plotnik"
	"github.com/plotnik-lang/plotnik/internal/bytecode"
	"github.com/plotnik-lang/plotnik/internal/modcache"
	"github.com/plotnik-lang/plotnik/internal/nodetypes"
	"github.com/plotnik-lang/plotnik/internal/plotnikconfig"
)

func main() {
	cfg := plotnikconfig.LoadConfig()

	root := &cobra.Command{
		Use:   "plotnikc",
		Short: "Compile and run Plotnik queries against tree-sitter grammars",
	}

	root.AddCommand(compileCmd(cfg), dumpCmd(cfg), runCmd(cfg))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func grammarTable() *nodetypes.Table {
	trivia := []string{"comment"}
	return nodetypes.FromTreeSitter(golang.GetLanguage(), trivia)
}

func readSource(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return string(data), nil
}

func compileCmd(cfg *plotnikconfig.Config) *cobra.Command {
	var out string
	var useCache bool

	cmd := &cobra.Command{
		Use:   "compile <query.ptk>",
		Short: "Compile a query source file into a .ptkm module",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := readSource(args[0])
			if err != nil {
				return err
			}

			nt := grammarTable()
			var cache *modcache.Cache
			digest := modcache.Digest(src, "go")
			if useCache && cfg.CacheDSN != "" {
				cache, err = modcache.Open(cfg.CacheDSN)
				if err != nil {
					return err
				}
				defer cache.Close()
				if cached, ok, err := cache.Get(digest); err == nil && ok {
					return os.WriteFile(outputPath(out, args[0]), cached, 0o644)
				}
			}

			res, err := plotnik.Compile(src, nt, plotnik.CompileConfig{
				ParseFuel:     cfg.ParseFuel,
				RecursionFuel: cfg.RecursionFuel,
			}, 0)
			if err != nil {
				return err
			}
			for _, d := range res.Diags {
				fmt.Fprintf(os.Stderr, "%s\n", d.String())
			}
			if res.Module == nil {
				return fmt.Errorf("compile failed, see diagnostics above")
			}

			encoded, err := res.Module.Encode()
			if err != nil {
				return err
			}

			if cache != nil {
				summary, _ := json.Marshal(map[string]any{"entrypoints": len(res.Module.Entrypoints)})
				if err := cache.Put(digest, encoded, summary); err != nil {
					fmt.Fprintf(os.Stderr, "modcache: %v\n", err)
				}
			}

			return os.WriteFile(outputPath(out, args[0]), encoded, 0o644)
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "output .ptkm path (default: input with .ptkm extension)")
	cmd.Flags().BoolVar(&useCache, "cache", false, "use the persisted module cache (PLOTNIK_CACHE_DSN)")
	return cmd
}

func outputPath(out, input string) string {
	if out != "" {
		return out
	}
	return input + ".ptkm"
}

func dumpCmd(cfg *plotnikconfig.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "dump <module.ptkm>",
		Short: "Print a compiled module's entrypoints and table sizes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			module, err := bytecode.Load(data)
			if err != nil {
				return err
			}
			for _, e := range module.Entrypoints {
				name := module.Strings.Lookup(e.Name)
				if name == "" {
					name = "DefaultQuery"
				}
				fmt.Printf("entrypoint %s -> step %d, result type %d\n", name, e.Target, e.ResultType)
			}
			fmt.Printf("%d instruction steps, %d strings, %d types\n",
				len(module.Transitions), module.Strings.Len(), module.Types.Len())
			return nil
		},
	}
}

func runCmd(cfg *plotnikconfig.Config) *cobra.Command {
	var entrypoint string

	cmd := &cobra.Command{
		Use:   "run <module.ptkm> <source-file>",
		Short: "Run a compiled module's entrypoint against a source file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			module, err := bytecode.Load(data)
			if err != nil {
				return err
			}

			source, err := os.ReadFile(args[1])
			if err != nil {
				return err
			}

			parser := sitter.NewParser()
			parser.SetLanguage(golang.GetLanguage())
			tree, err := parser.ParseCtx(cmd.Context(), nil, source)
			if err != nil {
				return fmt.Errorf("parsing %s: %w", args[1], err)
			}

			nt := grammarTable()
			value, err := plotnik.Run(module, tree.RootNode(), source, nt, entrypoint, plotnik.RunConfig{
				ExecFuel:       cfg.ExecFuel,
				RecursionLimit: cfg.RecursionFuel,
			})
			if err != nil {
				return err
			}

			encoded, err := json.MarshalIndent(value, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(encoded))
			return nil
		},
	}
	cmd.Flags().StringVar(&entrypoint, "entrypoint", "", "named entrypoint to run (default: the module's sole default entrypoint)")
	return cmd
}
