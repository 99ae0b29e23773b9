package snapd

import "time"

// SystemInfo is the result of GetSystemInfo.
type SystemInfo struct {
	Series        string `json:"series"`
	Version       string `json:"version"`
	OnClassic     bool   `json:"on-classic"`
	Managed       bool   `json:"managed"`
	KernelVersion string `json:"kernel-version"`
	OSRelease     struct {
		ID        string `json:"id"`
		VersionID string `json:"version-id"`
	} `json:"os-release"`
	Confinement string `json:"confinement"`
	Refresh     struct {
		Timer string `json:"timer"`
		Last  string `json:"last"`
		Next  string `json:"next"`
	} `json:"refresh"`
}

// Snap describes an installed snap or a store search hit.
type Snap struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Title           string     `json:"title"`
	Summary         string     `json:"summary"`
	Description     string     `json:"description"`
	Version         string     `json:"version"`
	Revision        string     `json:"revision"`
	Channel         string     `json:"channel"`
	TrackingChannel string     `json:"tracking-channel"`
	Confinement     string     `json:"confinement"`
	Status          string     `json:"status"`
	Type            string     `json:"type"`
	Developer       string     `json:"developer"`
	Publisher       *Publisher `json:"publisher,omitempty"`
	Devmode         bool       `json:"devmode"`
	Private         bool       `json:"private"`
	InstallDate     time.Time  `json:"install-date"`
	InstalledSize   int64      `json:"installed-size"`
	DownloadSize    int64      `json:"download-size"`
	Apps            []App      `json:"apps,omitempty"`
}

// PublisherName returns the publisher display name, falling back to the
// developer id.
func (s Snap) PublisherName() string {
	if s.Publisher != nil && s.Publisher.DisplayName != "" {
		return s.Publisher.DisplayName
	}
	return s.Developer
}

// Publisher identifies who publishes a snap.
type Publisher struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display-name"`
	Validation  string `json:"validation"`
}

// App is a command or service shipped by a snap.
type App struct {
	Snap        string `json:"snap"`
	Name        string `json:"name"`
	Daemon      string `json:"daemon,omitempty"`
	Enabled     bool   `json:"enabled,omitempty"`
	Active      bool   `json:"active,omitempty"`
	DesktopFile string `json:"desktop-file,omitempty"`
}

// Interfaces is the result of GetInterfaces.
type Interfaces struct {
	Plugs []Plug `json:"plugs"`
	Slots []Slot `json:"slots"`
}

// Plug is a snap's consumer side of an interface.
type Plug struct {
	Snap        string    `json:"snap"`
	Plug        string    `json:"plug"`
	Interface   string    `json:"interface"`
	Label       string    `json:"label"`
	Connections []SlotRef `json:"connections,omitempty"`
}

// Slot is a snap's provider side of an interface.
type Slot struct {
	Snap        string    `json:"snap"`
	Slot        string    `json:"slot"`
	Interface   string    `json:"interface"`
	Label       string    `json:"label"`
	Connections []PlugRef `json:"connections,omitempty"`
}

// AliasInfo describes one alias as returned by GetAliases, keyed by snap
// and alias name.
type AliasInfo struct {
	Command string `json:"command"`
	Status  string `json:"status"`
	Auto    string `json:"auto,omitempty"`
	Manual  string `json:"manual,omitempty"`
}

// Aliases maps snap name to alias name to alias details.
type Aliases map[string]map[string]AliasInfo

// AuthData holds the macaroon credentials sent with every request once set.
type AuthData struct {
	Macaroon   string   `json:"macaroon"`
	Discharges []string `json:"discharges"`
}

// SnapctlOutput is the result of RunSnapctl.
type SnapctlOutput struct {
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`
}

// RefreshedSnaps is the data of a ready RefreshAll change.
type RefreshedSnaps struct {
	Names []string `json:"snap-names"`
}
