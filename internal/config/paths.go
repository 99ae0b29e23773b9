// Package config provides configuration management for snapc.
package config

import (
	"os"
	"path/filepath"
)

// Paths holds all the path configurations for snapc.
type Paths struct {
	// ConfigDir is the directory for configuration files (~/.config/snapc)
	ConfigDir string

	// StateDir is the directory for logs and other state (~/.local/state/snapc)
	StateDir string

	// SnapUserDir holds credentials shared with the snap command (~/.snap)
	SnapUserDir string
}

// DefaultPaths returns the default paths following the XDG base directory layout.
func DefaultPaths() *Paths {
	home := homeDir()

	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		configHome = filepath.Join(home, ".config")
	}

	stateHome := os.Getenv("XDG_STATE_HOME")
	if stateHome == "" {
		stateHome = filepath.Join(home, ".local", "state")
	}

	return &Paths{
		ConfigDir:   filepath.Join(configHome, "snapc"),
		StateDir:    filepath.Join(stateHome, "snapc"),
		SnapUserDir: filepath.Join(home, ".snap"),
	}
}

// ConfigFile returns the path to the main configuration file.
func (p *Paths) ConfigFile() string {
	return filepath.Join(p.ConfigDir, "config.yaml")
}

// LogDir returns the path to the log directory.
func (p *Paths) LogDir() string {
	return filepath.Join(p.StateDir, "logs")
}

// LogFile returns the default log file used when logging to a file.
func (p *Paths) LogFile() string {
	return filepath.Join(p.LogDir(), "snapc.log")
}

// AuthFile returns the path to the stored snapd credentials.
// SNAPC_AUTH_FILE overrides it.
func (p *Paths) AuthFile() string {
	if v := os.Getenv("SNAPC_AUTH_FILE"); v != "" {
		return v
	}
	return filepath.Join(p.SnapUserDir, "auth.json")
}

// EnsureDirectories creates the config and log directories.
func (p *Paths) EnsureDirectories() error {
	for _, dir := range []string{p.ConfigDir, p.LogDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}

// homeDir returns the user's home directory.
func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return os.Getenv("HOME")
	}
	return home
}
