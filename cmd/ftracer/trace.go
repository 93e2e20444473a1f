package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jward/ftracer"
	"github.com/jward/ftracer/internal/config"
	"github.com/jward/ftracer/internal/feed"
	"github.com/jward/ftracer/internal/runtime"
	"github.com/jward/ftracer/internal/tracer"
	"github.com/jward/ftracer/scripts"
)

type traceFlags struct {
	feed       string
	watch      []string
	cassette   string
	dedup      string
	step       bool
	filter     string
	filterFile string
	jobs       int
	noCache    bool
	format     string
}

func newTraceCmd(a *app) *cobra.Command {
	f := &traceFlags{}
	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Record a feed of execution events to a cassette",
		Long: "Reads execution events written by the agent of an instrumented runner (see rewrite) " +
			"and records the values of the names declared just before each executed line of the " +
			"watched modules.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateFormat(f.format); err != nil {
				return err
			}
			return a.runTrace(cmd, f)
		},
	}
	cmd.Flags().StringVar(&f.feed, "feed", "-", "event feed file (.ndjson/.jsonl/.json, else msgpack), - for stdin")
	cmd.Flags().StringSliceVar(&f.watch, "watch", nil, "modules to watch (default: watch from config)")
	cmd.Flags().StringVar(&f.cassette, "cassette", "", "cassette to write (default: cassettes_dir/cassette_name)")
	cmd.Flags().StringVar(&f.dedup, "dedup", "", "value dedup policy: identity|equality|none")
	cmd.Flags().BoolVar(&f.step, "step", false, "pause after every event until enter is pressed")
	cmd.Flags().StringVar(&f.filter, "filter", "", "Risor expression a record must satisfy")
	cmd.Flags().StringVar(&f.filterFile, "filter-file", "", "Risor script a record must satisfy, or builtin:<name>")
	cmd.Flags().IntVar(&f.jobs, "jobs", 0, "modules indexed in parallel (0: all)")
	cmd.Flags().BoolVar(&f.noCache, "no-cache", false, "index in memory without the index database")
	cmd.Flags().StringVar(&f.format, "format", "text", "summary format: text|json")
	return cmd
}

// buildFilter returns the record filter from flags or config, or nil. A
// filter file named builtin:<name> is one of the embedded filters.
func (a *app) buildFilter(expr, file string) (*runtime.Filter, error) {
	if expr != "" && file != "" {
		return nil, errors.New("--filter and --filter-file are mutually exclusive")
	}
	if strings.HasPrefix(file, scripts.Prefix) {
		path, ok := scripts.Lookup(file)
		if !ok {
			return nil, fmt.Errorf("unknown built-in filter %q (have %s)", file, strings.Join(scripts.Names(), ", "))
		}
		return runtime.New(runtime.WithFS(scripts.FS), runtime.WithLogger(a.log)).LoadFilter(path)
	}
	rt := runtime.New(runtime.WithLogger(a.log))
	switch {
	case file != "":
		return rt.LoadFilter(file)
	case expr != "":
		return rt.Filter(expr)
	case a.cfg.Filter != "":
		return rt.Filter(a.cfg.Filter)
	}
	return nil, nil
}

func (a *app) runTrace(cmd *cobra.Command, f *traceFlags) error {
	watch := f.watch
	if len(watch) == 0 {
		watch = a.cfg.WatchPaths()
	}
	if len(watch) == 0 {
		return errors.New("nothing to watch: pass --watch or set watch in " + config.FileName)
	}

	cassettePath := f.cassette
	if cassettePath == "" {
		if _, err := a.cfg.EnsureCassettesDir(); err != nil {
			return err
		}
		cassettePath = a.cfg.CassettePath()
	} else if abs, err := filepath.Abs(cassettePath); err == nil {
		cassettePath = abs
	}

	dedupName := a.cfg.Dedup
	if f.dedup != "" {
		dedupName = f.dedup
	}
	dedup, err := tracer.ParseDedup(dedupName)
	if err != nil {
		return err
	}

	opts := []tracer.Option{
		tracer.WithDedup(dedup),
		tracer.WithParallelism(f.jobs),
	}
	filter, err := a.buildFilter(f.filter, f.filterFile)
	if err != nil {
		return err
	}
	if filter != nil {
		opts = append(opts, tracer.WithFilter(filter))
	}
	if f.step || (a.cfg.Step && !cmd.Flags().Changed("step")) {
		if f.feed == "-" {
			return errors.New("--step reads the terminal: pass the feed with --feed <file>")
		}
		opts = append(opts, tracer.WithStep(cmd.InOrStdin(), cmd.OutOrStdout()))
	}

	var in io.Reader = cmd.InOrStdin()
	if f.feed != "-" {
		file, err := os.Open(f.feed)
		if err != nil {
			return fmt.Errorf("opening feed: %w", err)
		}
		defer file.Close()
		in = file
	}

	var tr *tracer.Tracer
	if f.noCache {
		tr, err = tracer.New(watch, cassettePath, append(opts, tracer.WithLogger(a.log))...)
	} else {
		var e *ftracer.Engine
		if e, err = a.openEngine(ftracer.WithParallel(f.jobs)); err != nil {
			return err
		}
		defer func() {
			st := e.CacheStats()
			a.log.Debugf("index cache: %d hit(s), %d load(s), %d build(s)", st.Hits, st.Loads, st.Builds)
			e.Close()
		}()
		tr, err = e.NewTracer(watch, cassettePath, opts...)
	}
	if err != nil {
		return err
	}
	defer tr.Close()
	if err := tr.Arm(cmd.Context()); err != nil {
		return err
	}

	n, replayErr := feed.Replay(cmd.Context(), feed.NewDecoder(in, feed.FormatForPath(f.feed)), tr)
	closeErr := tr.Close()
	if replayErr != nil {
		return replayErr
	}
	if closeErr != nil {
		return closeErr
	}
	a.log.Debugf("replayed %d event(s)", n)

	st := tr.Stats()
	summary := CLITraceSummary{
		Cassette:         cassettePath,
		Events:           st.Events,
		Records:          st.Records,
		Duplicates:       st.Duplicates,
		Filtered:         st.Filtered,
		ResolutionErrors: st.ResolutionErrors,
	}
	for _, d := range tr.Diagnostics() {
		summary.Diagnostics = append(summary.Diagnostics, d.Error())
	}
	if f.format == "json" {
		return writeJSON(cmd.OutOrStdout(), CLIResult{Command: "trace", Results: summary})
	}
	formatTraceSummaryText(cmd.OutOrStdout(), summary)
	return nil
}
