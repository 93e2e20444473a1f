package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jward/ftracer/internal/config"
	"github.com/jward/ftracer/internal/diag"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

// app carries the global flags and what PersistentPreRunE derives from them.
type app struct {
	configPath string
	logLevel   string
	colorMode  string

	cfg *config.Config
	log *diag.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "ftracer",
		Short: "Record the values bound to names while a Python program runs",
		Long: "ftracer indexes the scopes of Python modules, correlates execution events of a run " +
			"with the names declared just before each executed line, and records the values to a cassette.",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default: nearest "+config.FileName+")")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug|info|warn|error")
	root.PersistentFlags().StringVar(&a.colorMode, "color", "auto", "color output: auto|on|off")

	root.AddCommand(newIndexCmd(a))
	root.AddCommand(newTraceCmd(a))
	root.AddCommand(newPlayCmd(a))
	root.AddCommand(newRewriteCmd(a))
	root.AddCommand(newVersionCmd(a))
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	var err error
	if a.configPath != "" {
		a.cfg, err = config.Load(a.configPath)
	} else {
		var cwd string
		if cwd, err = os.Getwd(); err != nil {
			return fmt.Errorf("getting cwd: %w", err)
		}
		a.cfg, err = config.Discover(cwd)
	}
	if err != nil {
		return err
	}

	levelName := a.cfg.LogLevel
	if cmd.Flags().Changed("log-level") {
		levelName = a.logLevel
	}
	level, err := diag.ParseLevel(levelName)
	if err != nil {
		return err
	}
	mode, err := diag.ParseColorMode(a.colorMode)
	if err != nil {
		return err
	}
	a.log = diag.New(cmd.ErrOrStderr(), diag.WithLevel(level), diag.WithColor(mode))
	if a.cfg.Path != "" {
		a.log.Debugf("config: %s", a.cfg.Path)
	}
	return nil
}

// validFormats lists accepted values for --format.
var validFormats = []string{"text", "json"}

// validateFormat checks that a --format flag value is recognized.
func validateFormat(format string) error {
	for _, f := range validFormats {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("invalid format %q: must be %s", format, strings.Join(validFormats, " or "))
}
