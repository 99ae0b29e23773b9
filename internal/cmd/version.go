package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/runger/snapc/internal/snapd"
)

// Version information (set via ldflags during build)
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

var versionCmd = &cobra.Command{
	Use:     "version",
	Short:   "Print version information",
	GroupID: groupSetup,
	Args:    cobra.NoArgs,
	RunE:    runVersion,
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func runVersion(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "snapc %s\n", Version)
	fmt.Fprintf(out, "  commit: %s\n", GitCommit)
	fmt.Fprintf(out, "  built:  %s\n", BuildDate)

	ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Second)
	defer cancel()
	cmd.SetContext(ctx)

	info, err := call[snapd.SystemInfo](cmd, snapd.GetSystemInfo{})
	if err != nil {
		fmt.Fprintf(out, "snapd %s\n", dimStyle.Render("unavailable"))
		app.log.Debug("system info", "error", err)
		return nil
	}
	fmt.Fprintf(out, "snapd %s\n", info.Version)
	return nil
}
