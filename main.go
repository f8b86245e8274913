// cssmodules compiles CSS Modules stylesheets: it scopes class names, links
// composes and @value imports across files, and writes a manifest of the
// resulting exports.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/phobologic/cssmodules/internal/config"
	"github.com/phobologic/cssmodules/internal/logging"
)

var version = "dev"

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// app carries the state shared by every subcommand of one invocation.
type app struct {
	stdout    io.Writer
	stderr    io.Writer
	verbosity int
	quiet     bool
	logger    *slog.Logger
}

// setup loads the project config under root and builds the logger. The -v
// and -q flags take precedence over the configured log level.
func (a *app) setup(cmd *cobra.Command, root string) (*config.Config, error) {
	cfg, used, err := config.Load(root)
	if err != nil {
		return nil, err
	}
	level := logging.LevelFromString(cfg.Log.Level)
	if a.quiet || cmd.Flags().Changed("verbose") {
		level = logging.LevelFromVerbosity(a.verbosity, a.quiet)
	}
	a.logger = logging.NewLogger(a.stderr, level).With("run", uuid.New().String())
	if used != "" {
		a.logger.Debug("loaded config", "file", used)
	}
	return cfg, nil
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "cssmodules",
		Short: "Compile CSS Modules stylesheets",
		Long: `cssmodules compiles CSS Modules: class and id names are scoped per file,
composes/@value imports are linked across files, and the exported names are
written as a manifest.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetVersionTemplate("cssmodules {{.Version}}\n")
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)
	root.PersistentFlags().CountVarP(&a.verbosity, "verbose", "v", "increase log verbosity (repeatable)")
	root.PersistentFlags().BoolVarP(&a.quiet, "quiet", "q", false, "suppress all logging")

	root.AddCommand(newBuildCmd(a), newBundleCmd(a), newExplainCmd(a), newInitCmd(a))
	return root
}

func run(args []string, stdout, stderr io.Writer) error {
	a := &app{stdout: stdout, stderr: stderr, logger: logging.NewDiscardLogger()}
	root := newRootCmd(a)
	root.SetArgs(args)
	return root.ExecuteContext(context.Background())
}
