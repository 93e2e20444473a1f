package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/jward/ftracer"
	"github.com/jward/ftracer/internal/scope"
)

func newIndexCmd(a *app) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "index <file>...",
		Short: "Index Python modules and print their scopes",
		Long: "Parses each module with tree-sitter, builds its scope index and caches it in the " +
			"index database. Unchanged files are served from the cache.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateFormat(format); err != nil {
				return err
			}
			return a.runIndex(cmd, args, format)
		},
	}
	cmd.Flags().StringVar(&format, "format", "text", "output format: text|json")
	return cmd
}

// openEngine opens the index database from the config.
func (a *app) openEngine(opts ...ftracer.Option) (*ftracer.Engine, error) {
	dbPath, err := a.cfg.EnsureIndexDir()
	if err != nil {
		return nil, err
	}
	return ftracer.New(dbPath, append([]ftracer.Option{ftracer.WithLogger(a.log)}, opts...)...)
}

func (a *app) runIndex(cmd *cobra.Command, args []string, format string) error {
	e, err := a.openEngine()
	if err != nil {
		return err
	}
	defer e.Close()

	report, err := e.IndexFiles(cmd.Context(), args)
	if err != nil {
		return err
	}
	for _, s := range report.Skipped {
		a.log.Debugf("skipped %s", s)
	}
	a.log.Infof("indexed %d file(s) in %s (%d unchanged)",
		report.Indexed, report.Duration.Round(time.Millisecond), report.Unchanged)

	var scopes []CLIScope
	for _, arg := range args {
		idx, err := e.Index(cmd.Context(), arg)
		if err != nil {
			return err
		}
		scopes = append(scopes, cliScopes(idx)...)
	}

	if format == "json" {
		return writeJSON(cmd.OutOrStdout(), CLIResult{Command: "index", Results: scopes})
	}
	formatScopesText(cmd.OutOrStdout(), scopes)
	return nil
}

func cliScopes(idx *scope.Index) []CLIScope {
	var out []CLIScope
	idx.Walk(func(s *scope.Scope, depth int) {
		cs := CLIScope{
			File:      idx.Path,
			Name:      s.Name,
			Kind:      s.Kind.String(),
			Depth:     depth,
			StartLine: s.Range.Start,
			EndLine:   s.Range.End,
			DeclLines: s.DeclLines(),
		}
		for _, d := range s.Declarations() {
			cs.Declarations = append(cs.Declarations, CLIDecl{Name: d.Name, Kind: d.Kind.String(), Line: d.Line})
		}
		out = append(out, cs)
	})
	return out
}
