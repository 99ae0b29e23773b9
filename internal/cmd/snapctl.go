package cmd

import (
	"fmt"
	"os"

	"github.com/google/shlex"
	"github.com/spf13/cobra"

	"github.com/runger/snapc/internal/snapd"
)

var snapctlContext string

var snapctlCmd = &cobra.Command{
	Use:   "snapctl [--context id] <args>...",
	Short: "Run snapctl inside a snap's hook or app context",
	Long: `Run snapctl inside a snap's hook or app context.

A single argument is split with shell quoting rules, so
  snapc snapctl "set foo='a b'"
passes two arguments to snapctl. The context defaults to $SNAP_COOKIE.`,
	GroupID: groupAccount,
	Args:    cobra.MinimumNArgs(1),
	RunE:    runSnapctl,
}

func init() {
	snapctlCmd.Flags().StringVar(&snapctlContext, "context", "", "context id (default $SNAP_COOKIE)")
	rootCmd.AddCommand(snapctlCmd)
}

func snapctlArgs(args []string) ([]string, error) {
	if len(args) != 1 {
		return args, nil
	}
	split, err := shlex.Split(args[0])
	if err != nil {
		return nil, fmt.Errorf("cannot split %q: %w", args[0], err)
	}
	return split, nil
}

func runSnapctl(cmd *cobra.Command, args []string) error {
	argv, err := snapctlArgs(args)
	if err != nil {
		return err
	}

	contextID := snapctlContext
	if contextID == "" {
		contextID = os.Getenv("SNAP_COOKIE")
	}

	out, err := call[snapd.SnapctlOutput](cmd, snapd.RunSnapctl{ContextID: contextID, Args: argv})
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), out.Stdout)
	fmt.Fprint(cmd.ErrOrStderr(), out.Stderr)
	return nil
}
