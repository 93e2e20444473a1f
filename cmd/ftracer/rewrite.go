package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jward/ftracer/internal/rewrite"
)

func newRewriteCmd(a *app) *cobra.Command {
	var feedPath, suffix string
	cmd := &cobra.Command{
		Use:   "rewrite <runner> <target>...",
		Short: "Write an instrumented copy of a runner module",
		Long: "Writes <runner>-<suffix>.py, a copy of the runner that installs the ftracer agent " +
			"before its first statement, and the agent module next to it. Running the copy writes " +
			"the events of the target modules to the feed.",
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := rewrite.Rewrite(cmd.Context(), args[0], args[1:], feedPath, suffix)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			a.log.Infof("run %s, then: ftracer trace --feed %s --watch <target>", out, feedPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&feedPath, "feed", "feed.ndjson", "feed file the agent writes, - for stdout")
	cmd.Flags().StringVar(&suffix, "suffix", rewrite.DefaultSuffix, "suffix of the instrumented copy")
	return cmd
}
