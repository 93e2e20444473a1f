package main

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jward/ftracer/internal/cassette"
	"github.com/jward/ftracer/internal/player"
)

type playFlags struct {
	step       bool
	tui        bool
	filter     string
	filterFile string
	width      int
	format     string
}

func newPlayCmd(a *app) *cobra.Command {
	f := &playFlags{}
	cmd := &cobra.Command{
		Use:   "play [cassette]",
		Short: "Print the records of a cassette",
		Long:  "Prints every record of a cassette in order, then \"finished\". Defaults to the configured cassette.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateFormat(f.format); err != nil {
				return err
			}
			return a.runPlay(cmd, args, f)
		},
	}
	cmd.Flags().BoolVar(&f.step, "step", false, "pause after every record until enter is pressed")
	cmd.Flags().BoolVar(&f.tui, "tui", false, "browse records interactively")
	cmd.Flags().StringVar(&f.filter, "filter", "", "Risor expression a record must satisfy")
	cmd.Flags().StringVar(&f.filterFile, "filter-file", "", "Risor script a record must satisfy, or builtin:<name>")
	cmd.Flags().IntVar(&f.width, "width", player.DefaultReprWidth, "truncate reprs to this display width (0: no limit)")
	cmd.Flags().StringVar(&f.format, "format", "text", "output format: text|json")
	return cmd
}

func (a *app) runPlay(cmd *cobra.Command, args []string, f *playFlags) error {
	path := a.cfg.CassettePath()
	if len(args) > 0 {
		abs, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}
		path = abs
	}
	r, err := cassette.Open(path)
	if err != nil {
		return err
	}
	defer r.Close()
	meta := r.Meta()
	a.log.Debugf("cassette %s: session %s, created %s", path, meta.SessionID, meta.CreatedAt.Format("2006-01-02 15:04:05"))

	opts := []player.Option{player.WithLogger(a.log), player.WithReprWidth(f.width)}
	filter, err := a.buildFilter(f.filter, f.filterFile)
	if err != nil {
		return err
	}
	if filter != nil {
		opts = append(opts, player.WithFilter(filter))
	}
	step := f.step || (a.cfg.Step && !cmd.Flags().Changed("step"))
	if step && !f.tui && f.format == "text" {
		opts = append(opts, player.WithStep(cmd.InOrStdin()))
	}
	p := player.New(r, cmd.OutOrStdout(), opts...)

	switch {
	case f.tui:
		entries, err := p.Entries(cmd.Context())
		if err != nil {
			return err
		}
		return player.RunTUI(entries, cmd.InOrStdin(), cmd.OutOrStdout())
	case f.format == "json":
		entries, err := p.Entries(cmd.Context())
		if err != nil {
			return err
		}
		records := make([]CLIRecord, 0, len(entries))
		for _, e := range entries {
			records = append(records, CLIRecord{
				Seq:      e.Seq,
				Path:     e.Path,
				Line:     e.Line,
				Event:    e.Type.String(),
				Name:     e.Name,
				DeclLine: e.DeclLine,
				ID:       e.Value.ID,
				Type:     e.Value.Type,
				Repr:     e.Value.Repr,
			})
		}
		return writeJSON(cmd.OutOrStdout(), CLIResult{Command: "play", Results: records})
	}
	_, err = p.Play(cmd.Context())
	return err
}
