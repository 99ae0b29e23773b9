package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/runger/snapc/internal/snapd"
)

var (
	listAll bool

	findName    bool
	findSection string

	appsServices bool

	installChannel   string
	installRevision  string
	installClassic   bool
	installDangerous bool
	installDevmode   bool
	installJailmode  bool

	refreshAll bool

	iconOutput string
)

var infoCmd = &cobra.Command{
	Use:     "info [snap]",
	Short:   "Show details of a snap, or of the system without arguments",
	GroupID: groupSnaps,
	Args:    cobra.MaximumNArgs(1),
	RunE:    runInfo,
}

var listCmd = &cobra.Command{
	Use:     "list [snap...]",
	Short:   "List installed snaps",
	GroupID: groupSnaps,
	RunE:    runList,
}

var findCmd = &cobra.Command{
	Use:     "find <query>",
	Short:   "Search the store",
	GroupID: groupSnaps,
	Args:    cobra.MaximumNArgs(1),
	RunE:    runFind,
}

var sectionsCmd = &cobra.Command{
	Use:     "sections",
	Short:   "List store sections",
	GroupID: groupSnaps,
	Args:    cobra.NoArgs,
	RunE:    runSections,
}

var appsCmd = &cobra.Command{
	Use:     "apps [snap...]",
	Short:   "List apps and services of installed snaps",
	GroupID: groupSnaps,
	RunE:    runApps,
}

var installCmd = &cobra.Command{
	Use:   "install <snap|file.snap>...",
	Short: "Install snaps from the store or a local file",
	Long: `Install snaps from the store or a local file.

Arguments that name an existing file are sideloaded; everything else is
looked up in the store. Press Ctrl-C to abort the change.`,
	GroupID: groupSnaps,
	Args:    cobra.MinimumNArgs(1),
	RunE:    runInstall,
}

var removeCmd = &cobra.Command{
	Use:     "remove <snap>...",
	Short:   "Remove snaps",
	GroupID: groupSnaps,
	Args:    cobra.MinimumNArgs(1),
	RunE:    snapActionRunner(snapd.ActionRemove),
}

var refreshCmd = &cobra.Command{
	Use:     "refresh [snap...]",
	Short:   "Refresh snaps to their latest revision",
	GroupID: groupSnaps,
	RunE:    runRefresh,
}

var enableCmd = &cobra.Command{
	Use:     "enable <snap>...",
	Short:   "Enable snaps",
	GroupID: groupSnaps,
	Args:    cobra.MinimumNArgs(1),
	RunE:    snapActionRunner(snapd.ActionEnable),
}

var disableCmd = &cobra.Command{
	Use:     "disable <snap>...",
	Short:   "Disable snaps",
	GroupID: groupSnaps,
	Args:    cobra.MinimumNArgs(1),
	RunE:    snapActionRunner(snapd.ActionDisable),
}

var revertCmd = &cobra.Command{
	Use:     "revert <snap>",
	Short:   "Revert a snap to its previous revision",
	GroupID: groupSnaps,
	Args:    cobra.ExactArgs(1),
	RunE:    snapActionRunner(snapd.ActionRevert),
}

var switchCmd = &cobra.Command{
	Use:     "switch <snap> --channel=<channel>",
	Short:   "Change the channel a snap tracks",
	GroupID: groupSnaps,
	Args:    cobra.ExactArgs(1),
	RunE:    snapActionRunner(snapd.ActionSwitch),
}

var tryCmd = &cobra.Command{
	Use:     "try <dir>",
	Short:   "Install an unpacked snap directory for testing",
	GroupID: groupSnaps,
	Args:    cobra.ExactArgs(1),
	RunE:    runTry,
}

var iconCmd = &cobra.Command{
	Use:     "icon <snap>",
	Short:   "Save the icon of an installed snap",
	GroupID: groupSnaps,
	Args:    cobra.ExactArgs(1),
	RunE:    runIcon,
}

func init() {
	listCmd.Flags().BoolVar(&listAll, "all", false, "include disabled revisions")

	findCmd.Flags().BoolVar(&findName, "name", false, "match the snap name exactly")
	findCmd.Flags().StringVar(&findSection, "section", "", "restrict to a store section")

	appsCmd.Flags().BoolVar(&appsServices, "services", false, "only list services")

	for _, c := range []*cobra.Command{installCmd, refreshCmd, revertCmd, switchCmd} {
		c.Flags().StringVar(&installChannel, "channel", "", "channel to track")
	}
	for _, c := range []*cobra.Command{installCmd, refreshCmd, revertCmd} {
		c.Flags().StringVar(&installRevision, "revision", "", "specific revision")
		c.Flags().BoolVar(&installDevmode, "devmode", false, "put the snap in development mode")
		c.Flags().BoolVar(&installJailmode, "jailmode", false, "enforce confinement")
	}
	for _, c := range []*cobra.Command{installCmd, refreshCmd, tryCmd} {
		c.Flags().BoolVar(&installClassic, "classic", false, "allow classic confinement")
	}
	installCmd.Flags().BoolVar(&installDangerous, "dangerous", false, "install unasserted local files")
	refreshCmd.Flags().BoolVar(&refreshAll, "all", false, "refresh every snap")

	iconCmd.Flags().StringVarP(&iconOutput, "output", "o", "", "file to write (default <snap>.<ext>)")

	rootCmd.AddCommand(infoCmd, listCmd, findCmd, sectionsCmd, appsCmd,
		installCmd, removeCmd, refreshCmd, enableCmd, disableCmd,
		revertCmd, switchCmd, tryCmd, iconCmd)
}

func runInfo(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	if len(args) == 0 {
		info, err := call[snapd.SystemInfo](cmd, snapd.GetSystemInfo{})
		if err != nil {
			return err
		}
		printField(out, "snapd", info.Version)
		printField(out, "series", info.Series)
		printField(out, "os", strings.TrimSpace(info.OSRelease.ID+" "+info.OSRelease.VersionID))
		printField(out, "kernel", info.KernelVersion)
		printField(out, "confinement", info.Confinement)
		printField(out, "refresh timer", info.Refresh.Timer)
		printField(out, "last refresh", info.Refresh.Last)
		printField(out, "next refresh", info.Refresh.Next)
		return nil
	}

	s, err := call[snapd.Snap](cmd, snapd.GetSnap{Name: args[0]})
	if err != nil {
		return err
	}
	printField(out, "name", s.Name)
	printField(out, "summary", s.Summary)
	printField(out, "publisher", s.PublisherName())
	printField(out, "version", s.Version)
	printField(out, "revision", s.Revision)
	printField(out, "tracking", s.TrackingChannel)
	printField(out, "confinement", s.Confinement)
	printField(out, "status", s.Status)
	if s.InstalledSize > 0 {
		printField(out, "installed", formatSize(s.InstalledSize))
	}
	if !s.InstallDate.IsZero() {
		printField(out, "install date", s.InstallDate.Local().Format("2006-01-02 15:04"))
	}
	if len(s.Apps) > 0 {
		names := make([]string, 0, len(s.Apps))
		for _, a := range s.Apps {
			names = append(names, a.Name)
		}
		printField(out, "commands", strings.Join(names, ", "))
	}
	if s.Description != "" {
		fmt.Fprintf(out, "%s\n  %s\n", keyStyle.Render("description:"), strings.ReplaceAll(strings.TrimSpace(s.Description), "\n", "\n  "))
	}
	return nil
}

func printField(w io.Writer, key, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(w, "%s %s\n", keyStyle.Render(key+":"), value)
}

func runList(cmd *cobra.Command, args []string) error {
	ep := snapd.ListSnaps{Names: args}
	if listAll {
		ep.Select = "all"
	}
	snaps, err := call[[]snapd.Snap](cmd, ep)
	if err != nil {
		return err
	}
	if len(snaps) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), dimStyle.Render("No snaps are installed."))
		return nil
	}

	t := newTable("Name", "Version", "Rev", "Tracking", "Publisher", "Notes")
	for _, s := range snaps {
		t.add(s.Name, s.Version, s.Revision, orDash(s.TrackingChannel), orDash(s.PublisherName()), snapNotes(s))
	}
	t.write(cmd.OutOrStdout())
	return nil
}

func snapNotes(s snapd.Snap) string {
	var notes []string
	if s.Status != "" && s.Status != "active" && s.Status != "available" {
		notes = append(notes, s.Status)
	}
	if s.Confinement == "classic" {
		notes = append(notes, "classic")
	}
	if s.Devmode {
		notes = append(notes, "devmode")
	}
	if s.Private {
		notes = append(notes, "private")
	}
	return orDash(strings.Join(notes, ","))
}

func runFind(cmd *cobra.Command, args []string) error {
	ep := snapd.Find{MatchName: findName, Section: findSection}
	if len(args) == 1 {
		ep.Query = args[0]
	}
	if ep.Query == "" && ep.Section == "" {
		return fmt.Errorf("find needs a query or --section")
	}

	snaps, err := call[[]snapd.Snap](cmd, ep)
	if err != nil {
		return err
	}
	if len(snaps) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), dimStyle.Render("No matching snaps."))
		return nil
	}

	t := newTable("Name", "Version", "Publisher", "Summary")
	for _, s := range snaps {
		t.add(s.Name, s.Version, orDash(s.PublisherName()), s.Summary)
	}
	t.write(cmd.OutOrStdout())
	return nil
}

func runSections(cmd *cobra.Command, args []string) error {
	sections, err := call[[]string](cmd, snapd.GetSections{})
	if err != nil {
		return err
	}
	for _, s := range sections {
		fmt.Fprintln(cmd.OutOrStdout(), s)
	}
	return nil
}

func runApps(cmd *cobra.Command, args []string) error {
	apps, err := call[[]snapd.App](cmd, snapd.GetApps{Names: args, Services: appsServices})
	if err != nil {
		return err
	}

	t := newTable("App", "Daemon", "Startup", "Current")
	for _, a := range apps {
		startup, current := "-", "-"
		if a.Daemon != "" {
			startup, current = "disabled", "inactive"
			if a.Enabled {
				startup = "enabled"
			}
			if a.Active {
				current = "active"
			}
		}
		t.add(a.Snap+"."+a.Name, orDash(a.Daemon), startup, current)
	}
	t.write(cmd.OutOrStdout())
	return nil
}

func installFlags() snapd.InstallFlags {
	return snapd.InstallFlags{
		Classic:   installClassic,
		Dangerous: installDangerous,
		Devmode:   installDevmode,
		Jailmode:  installJailmode,
	}
}

func runInstall(cmd *cobra.Command, args []string) error {
	for _, name := range args {
		if isLocalSnap(name) {
			if err := sideload(cmd, name); err != nil {
				return err
			}
			continue
		}
		if err := doSnapAction(cmd, snapd.ActionInstall, name); err != nil {
			return err
		}
	}
	return nil
}

func isLocalSnap(arg string) bool {
	if !strings.ContainsRune(arg, os.PathSeparator) && !strings.HasSuffix(arg, ".snap") {
		return false
	}
	info, err := os.Stat(arg)
	return err == nil && info.Mode().IsRegular()
}

func sideload(cmd *cobra.Command, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := runChange(cmd, snapd.Sideload{Snap: f, Flags: installFlags()}); err != nil {
		return fmt.Errorf("install %s: %w", filepath.Base(path), err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s installed\n", okStyle.Render(filepath.Base(path)))
	return nil
}

func snapActionRunner(action string) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		for _, name := range args {
			if err := doSnapAction(cmd, action, name); err != nil {
				return err
			}
		}
		return nil
	}
}

var actionDone = map[string]string{
	snapd.ActionInstall: "installed",
	snapd.ActionRemove:  "removed",
	snapd.ActionRefresh: "refreshed",
	snapd.ActionEnable:  "enabled",
	snapd.ActionDisable: "disabled",
	snapd.ActionSwitch:  "switched",
	snapd.ActionRevert:  "reverted",
}

func doSnapAction(cmd *cobra.Command, action, name string) error {
	ep := snapd.SnapAction{
		Action:   action,
		Name:     name,
		Channel:  installChannel,
		Revision: installRevision,
		Flags:    installFlags(),
	}
	if action == snapd.ActionSwitch && ep.Channel == "" {
		return fmt.Errorf("switch needs --channel")
	}
	if _, err := runChange(cmd, ep); err != nil {
		return fmt.Errorf("%s %s: %w", action, name, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", okStyle.Render(name), actionDone[action])
	return nil
}

func runRefresh(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		if refreshAll {
			return fmt.Errorf("--all cannot be combined with snap names")
		}
		return snapActionRunner(snapd.ActionRefresh)(cmd, args)
	}

	res, err := runChange(cmd, snapd.RefreshAll{})
	if err != nil {
		return fmt.Errorf("refresh: %w", err)
	}
	refreshed := snapd.RefreshedSnaps{}
	if len(res.Data) > 0 {
		if refreshed, err = snapd.Decode[snapd.RefreshedSnaps](res.Data); err != nil {
			return err
		}
	}
	if len(refreshed.Names) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "All snaps up to date.")
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s refreshed\n", okStyle.Render(strings.Join(refreshed.Names, ", ")))
	return nil
}

func runTry(cmd *cobra.Command, args []string) error {
	dir, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}
	if _, err := runChange(cmd, snapd.TrySnap{Path: dir}); err != nil {
		return fmt.Errorf("try %s: %w", dir, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s mounted for testing\n", okStyle.Render(dir))
	return nil
}

var iconExtensions = map[string]string{
	"image/png":     ".png",
	"image/svg+xml": ".svg",
	"image/jpeg":    ".jpg",
}

func runIcon(cmd *cobra.Command, args []string) error {
	res, err := send(cmd, snapd.GetIcon{Name: args[0]}, nil)
	if err != nil {
		return err
	}

	path := iconOutput
	if path == "" {
		ext, ok := iconExtensions[res.ContentType]
		if !ok {
			ext = ".icon"
		}
		path = args[0] + ext
	}
	if err := os.WriteFile(path, res.Body, 0644); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%s)\n", path, formatSize(int64(len(res.Body))))
	return nil
}
