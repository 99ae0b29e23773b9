package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

const (
	groupSnaps      = "snaps"
	groupInterfaces = "interfaces"
	groupChanges    = "changes"
	groupAccount    = "account"
	groupSetup      = "setup"
)

var (
	flagSocket  string
	flagVerbose bool
)

var rootCmd = &cobra.Command{
	Use:   "snapc",
	Short: "A small client for the snapd daemon",
	Long: `snapc - talk to snapd over its Unix socket
  - install, refresh and remove snaps with live progress
  - inspect interfaces, aliases and changes`,
	SilenceUsage:       true,
	PersistentPreRunE:  func(cmd *cobra.Command, args []string) error { return app.open(cmd) },
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error { return app.close() },
}

// Execute runs the root command. SIGINT and SIGTERM cancel the command's
// context, which aborts any change in progress.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		// open/close may not have paired up when a command fails.
		_ = app.close()
		fmt.Fprintf(os.Stderr, "%s %v\n", errorStyle.Render("error:"), err)
	}
	return err
}

func init() {
	rootCmd.SilenceErrors = true
	rootCmd.PersistentFlags().StringVar(&flagSocket, "socket", "", "snapd socket path (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "log debug output to stderr")

	rootCmd.AddGroup(
		&cobra.Group{ID: groupSnaps, Title: "Snaps:"},
		&cobra.Group{ID: groupInterfaces, Title: "Interfaces and aliases:"},
		&cobra.Group{ID: groupChanges, Title: "Changes:"},
		&cobra.Group{ID: groupAccount, Title: "Account and assertions:"},
		&cobra.Group{ID: groupSetup, Title: "Setup:"},
	)
	rootCmd.SetHelpCommandGroupID(groupSetup)
	rootCmd.SetCompletionCommandGroupID(groupSetup)
}
