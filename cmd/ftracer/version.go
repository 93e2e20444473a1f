package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/jward/ftracer/internal/diag"
)

// Version is the semantic version of the CLI.
var Version = "0.1.0-dev"

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the ftracer version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := color.New(color.FgGreen, color.Bold)
			switch diag.ColorMode(a.colorMode) {
			case diag.ColorOn:
				c.EnableColor()
			case diag.ColorOff:
				c.DisableColor()
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ftracer %s\n", c.Sprint(Version))
			return nil
		},
	}
}
