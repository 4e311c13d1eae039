// Package cli implements the shoreman command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/charliek/shoreman/internal/config"
	"github.com/charliek/shoreman/internal/constants"
	"github.com/spf13/cobra"
)

// Version is set during build
var Version = "dev"

// newRootCmd builds the root command. The exit code of a run is stored in
// code; cobra's own errors (bad arguments, unknown flags) are returned from
// Execute instead.
func newRootCmd(stdout, stderr io.Writer, code *int) *cobra.Command {
	opts := DefaultOptions()
	opts.Stdout = stdout
	opts.Stderr = stderr

	cmd := &cobra.Command{
		Use:   "shoreman [procfile] [envfile]",
		Short: "Run the commands of a Procfile for local development",
		Long: `shoreman starts every command listed in a Procfile, tags and colors
their output, and mirrors it to ` + constants.LogFile + `. The previous run's log
is kept as ` + constants.PrevLogFile + `.

Only one shoreman runs per directory; a second one exits immediately while
the first keeps serving. Ctrl-C stops every command.

Arguments:
  procfile  command list (default: ` + constants.ScriptsProcfile + ` or ` + constants.DefaultProcfile + `)
  envfile   variables to add to the environment (default: ` + constants.DefaultEnvFile + `)`,
		Args:          cobra.MaximumNArgs(2),
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ProcfilePath = config.FindProcfile()
			if len(args) > 0 {
				opts.ProcfilePath = args[0]
			}
			if len(args) > 1 {
				opts.EnvFilePath = args[1]
			}

			*code = Run(cmd.Context(), opts)
			return nil
		},
	}

	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.Flags().BoolVarP(&opts.Verbose, "verbose", "v", false, "Enable debug diagnostics on stderr")
	cmd.Flags().BoolVar(&opts.NoColor, "no-color", false, "Disable console colors")
	cmd.SetVersionTemplate("shoreman version {{.Version}}\n")

	return cmd
}

// Execute runs the command line with the process arguments and returns the
// exit code
func Execute() int {
	return ExecuteArgs(context.Background(), os.Args[1:], os.Stdout, os.Stderr)
}

// ExecuteArgs runs the command line with the given arguments and writers
func ExecuteArgs(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	code := 0
	cmd := newRootCmd(stdout, stderr, &code)
	cmd.SetArgs(args)

	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return code
}
