package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/runger/snapc/internal/snapd"
)

var changesAll bool

var changesCmd = &cobra.Command{
	Use:     "changes [snap]",
	Short:   "List recent changes",
	GroupID: groupChanges,
	Args:    cobra.MaximumNArgs(1),
	RunE:    runChanges,
}

var watchCmd = &cobra.Command{
	Use:   "watch <id>",
	Short: "Follow a change until it is ready",
	Args:  cobra.ExactArgs(1),
	RunE:  runWatch,
}

var abortCmd = &cobra.Command{
	Use:   "abort <id>",
	Short: "Abort a change",
	Args:  cobra.ExactArgs(1),
	RunE:  runAbort,
}

func init() {
	changesCmd.Flags().BoolVar(&changesAll, "all", false, "include ready changes")
	changesCmd.AddCommand(watchCmd, abortCmd)
	rootCmd.AddCommand(changesCmd)
}

func runChanges(cmd *cobra.Command, args []string) error {
	ep := snapd.ListChanges{Select: "in-progress"}
	if changesAll {
		ep.Select = "all"
	}
	if len(args) == 1 {
		ep.Snap = args[0]
	}

	changes, err := call[[]snapd.Change](cmd, ep)
	if err != nil {
		return err
	}
	if len(changes) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), dimStyle.Render("No changes."))
		return nil
	}

	t := newTable("ID", "Status", "Spawn", "Ready", "Summary")
	for _, c := range changes {
		t.add(c.ID, c.Status, formatTime(c.SpawnTime), formatTime(c.ReadyTime), c.Summary)
	}
	t.write(cmd.OutOrStdout())
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func runWatch(cmd *cobra.Command, args []string) error {
	interval := time.Duration(app.cfg.Client.PollIntervalMs) * time.Millisecond
	view := newProgressView(app.cfg.UI.Progress, os.Stderr)

	change, err := watchChange(cmd, args[0], interval, view.update)
	view.finish()
	if err != nil {
		return err
	}
	return reportChange(cmd, change)
}

// watchChange polls a change until it is ready, reporting every snapshot.
func watchChange(cmd *cobra.Command, id string, interval time.Duration, progress func(*snapd.Change)) (*snapd.Change, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		change, err := call[snapd.Change](cmd, snapd.GetChange{ID: id})
		if err != nil {
			return nil, err
		}
		progress(&change)
		if change.Ready {
			return &change, nil
		}

		select {
		case <-cmd.Context().Done():
			return nil, cmd.Context().Err()
		case <-ticker.C:
		}
	}
}

func reportChange(cmd *cobra.Command, c *snapd.Change) error {
	switch c.Status {
	case "Done":
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", okStyle.Render("Done"), c.Summary)
		return nil
	case "Undone", "Hold":
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", warnStyle.Render(c.Status), c.Summary)
		return nil
	default:
		return fmt.Errorf("change %s: %s", c.ID, c.Status)
	}
}

func runAbort(cmd *cobra.Command, args []string) error {
	change, err := call[snapd.Change](cmd, snapd.AbortChange{ID: args[0]})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "change %s: %s\n", change.ID, change.Status)
	return nil
}
