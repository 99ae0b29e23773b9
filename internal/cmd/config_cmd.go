package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/runger/snapc/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or change configuration",
	Long: `Show or change snapc configuration.

Configuration is stored in ~/.config/snapc/config.yaml (XDG compliant).
Keys are in the format section.key; sections are client, log and ui.

Examples:
  snapc config show
  snapc config get client.socket_path
  snapc config set ui.progress plain`,
	GroupID: groupSetup,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "List all keys and their values",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print the value of a key",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigGet,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a key and save the file",
	Args:  cobra.ExactArgs(2),
	RunE:  runConfigSet,
}

func init() {
	configCmd.AddCommand(configShowCmd, configGetCmd, configSetCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, headerStyle.Render("Configuration Keys"))
	fmt.Fprintln(out, strings.Repeat("-", 40))

	var failedKeys []string
	for _, key := range config.ListKeys() {
		value, err := app.cfg.Get(key)
		if err != nil {
			failedKeys = append(failedKeys, key)
			continue
		}
		if value == "" {
			value = dimStyle.Render("(not set)")
		}
		fmt.Fprintf(out, "  %s = %s\n", keyStyle.Render(key), value)
	}

	if len(failedKeys) > 0 {
		fmt.Fprintf(out, "\n%s Failed to retrieve keys: %s\n", warnStyle.Render("Warning:"), strings.Join(failedKeys, ", "))
	}

	fmt.Fprintf(out, "\nConfig file: %s\n", app.paths.ConfigFile())
	return nil
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	value, err := app.cfg.Get(args[0])
	if err != nil {
		return err
	}
	if value == "" {
		fmt.Fprintln(cmd.OutOrStdout(), dimStyle.Render("(not set)"))
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), value)
	return nil
}

// runConfigSet edits the file contents, not the effective configuration,
// so environment overrides and flags are never written back.
func runConfigSet(cmd *cobra.Command, args []string) error {
	key, value := args[0], args[1]

	cfg, err := config.ReadFile(app.paths.ConfigFile())
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	if err := cfg.Set(key, value); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := app.paths.EnsureDirectories(); err != nil {
		return fmt.Errorf("failed to create directories: %w", err)
	}
	if err := cfg.SaveToFile(app.paths.ConfigFile()); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", keyStyle.Render(key), value)
	fmt.Fprintf(cmd.OutOrStdout(), "Saved to: %s\n", app.paths.ConfigFile())
	return nil
}
