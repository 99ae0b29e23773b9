package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/runger/snapc/internal/snapd"
)

var interfacesCmd = &cobra.Command{
	Use:     "interfaces [snap]",
	Short:   "List plugs, slots and their connections",
	GroupID: groupInterfaces,
	Args:    cobra.MaximumNArgs(1),
	RunE:    runInterfaces,
}

var connectCmd = &cobra.Command{
	Use:   "connect <snap>:<plug> [<snap>][:<slot>]",
	Short: "Connect a plug to a slot",
	Long: `Connect a plug to a slot.

Without a slot the daemon picks the matching slot of the system snap.`,
	GroupID: groupInterfaces,
	Args:    cobra.RangeArgs(1, 2),
	RunE:    interfaceActionRunner("connect"),
}

var disconnectCmd = &cobra.Command{
	Use:     "disconnect <snap>:<plug> [<snap>][:<slot>]",
	Short:   "Disconnect a plug from a slot",
	GroupID: groupInterfaces,
	Args:    cobra.RangeArgs(1, 2),
	RunE:    interfaceActionRunner("disconnect"),
}

func init() {
	rootCmd.AddCommand(interfacesCmd, connectCmd, disconnectCmd)
}

func runInterfaces(cmd *cobra.Command, args []string) error {
	ifaces, err := call[snapd.Interfaces](cmd, snapd.GetInterfaces{})
	if err != nil {
		return err
	}

	only := ""
	if len(args) == 1 {
		only = args[0]
	}

	t := newTable("Slot", "Plug")
	for _, s := range ifaces.Slots {
		var plugs []string
		for _, p := range s.Connections {
			if only == "" || p.Snap == only || s.Snap == only {
				plugs = append(plugs, formatRef(p.Snap, p.Plug))
			}
		}
		if only != "" && s.Snap != only && len(plugs) == 0 {
			continue
		}
		t.add(formatRef(s.Snap, s.Slot), orDash(strings.Join(plugs, ",")))
	}
	for _, p := range ifaces.Plugs {
		if len(p.Connections) > 0 || (only != "" && p.Snap != only) {
			continue
		}
		t.add("-", formatRef(p.Snap, p.Plug))
	}
	t.write(cmd.OutOrStdout())
	return nil
}

// formatRef drops the snap name for the system snap, as the daemon does.
func formatRef(snap, name string) string {
	switch snap {
	case "", "core", "snapd", "system":
		return ":" + name
	}
	return snap + ":" + name
}

// parseRef splits "snap:name". A missing colon yields only a snap name.
func parseRef(arg string) (snap, name string) {
	snap, name, _ = strings.Cut(arg, ":")
	return snap, name
}

func interfaceActionRunner(action string) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		plugSnap, plug := parseRef(args[0])
		if plugSnap == "" || plug == "" {
			return fmt.Errorf("plug must be given as <snap>:<plug>, got %q", args[0])
		}
		var slot snapd.SlotRef
		if len(args) == 2 {
			slot.Snap, slot.Slot = parseRef(args[1])
		}

		ep := snapd.InterfaceAction{
			Action: action,
			Plug:   snapd.PlugRef{Snap: plugSnap, Plug: plug},
			Slot:   slot,
		}
		if _, err := runChange(cmd, ep); err != nil {
			return fmt.Errorf("%s %s: %w", action, args[0], err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %sed\n", okStyle.Render(args[0]), action)
		return nil
	}
}

var aliasesCmd = &cobra.Command{
	Use:     "aliases [snap]",
	Short:   "List aliases",
	GroupID: groupInterfaces,
	Args:    cobra.MaximumNArgs(1),
	RunE:    runAliases,
}

var aliasCmd = &cobra.Command{
	Use:     "alias <snap.app> <alias>",
	Short:   "Create a manual alias",
	GroupID: groupInterfaces,
	Args:    cobra.ExactArgs(2),
	RunE:    runAlias,
}

var unaliasCmd = &cobra.Command{
	Use:     "unalias <alias|snap>",
	Short:   "Remove a manual alias, or all aliases of a snap",
	GroupID: groupInterfaces,
	Args:    cobra.ExactArgs(1),
	RunE:    runUnalias,
}

var preferCmd = &cobra.Command{
	Use:     "prefer <snap>",
	Short:   "Make the automatic aliases of a snap take precedence",
	GroupID: groupInterfaces,
	Args:    cobra.ExactArgs(1),
	RunE:    runPrefer,
}

func init() {
	rootCmd.AddCommand(aliasesCmd, aliasCmd, unaliasCmd, preferCmd)
}

func runAliases(cmd *cobra.Command, args []string) error {
	aliases, err := call[snapd.Aliases](cmd, snapd.GetAliases{})
	if err != nil {
		return err
	}

	snaps := make([]string, 0, len(aliases))
	for snap := range aliases {
		if len(args) == 0 || args[0] == snap {
			snaps = append(snaps, snap)
		}
	}
	sort.Strings(snaps)

	t := newTable("Command", "Alias", "Notes")
	for _, snap := range snaps {
		names := make([]string, 0, len(aliases[snap]))
		for name := range aliases[snap] {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			a := aliases[snap][name]
			command := a.Command
			if command == "" {
				app := a.Manual
				if app == "" {
					app = a.Auto
				}
				command = snap + "." + app
			}
			note := a.Status
			if a.Manual != "" && note != "manual" {
				note += ",manual"
			}
			t.add(command, name, orDash(note))
		}
	}
	t.write(cmd.OutOrStdout())
	return nil
}

func runAlias(cmd *cobra.Command, args []string) error {
	snap, app, ok := strings.Cut(args[0], ".")
	if !ok {
		// A bare snap name targets its app of the same name.
		app = snap
	}
	ep := snapd.AliasAction{Action: "alias", Snap: snap, App: app, Alias: args[1]}
	if _, err := runChange(cmd, ep); err != nil {
		return fmt.Errorf("alias %s: %w", args[1], err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s now runs %s\n", okStyle.Render(args[1]), args[0])
	return nil
}

func runUnalias(cmd *cobra.Command, args []string) error {
	// The daemon resolves whether the argument is an alias or a snap.
	ep := snapd.AliasAction{Action: "unalias", Alias: args[0]}
	if _, err := runChange(cmd, ep); err != nil {
		return fmt.Errorf("unalias %s: %w", args[0], err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s removed\n", okStyle.Render(args[0]))
	return nil
}

func runPrefer(cmd *cobra.Command, args []string) error {
	if _, err := runChange(cmd, snapd.AliasAction{Action: "prefer", Snap: args[0]}); err != nil {
		return fmt.Errorf("prefer %s: %w", args[0], err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s aliases preferred\n", okStyle.Render(args[0]))
	return nil
}
