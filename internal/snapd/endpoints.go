package snapd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
)

// Endpoint is a request the client knows how to send. The set of endpoints
// is closed; use the types in this file.
type Endpoint interface {
	outgoing() (*outgoing, error)
}

const assertionType = "application/x.ubuntu.assertion"

func get(path string, query ...param) *outgoing {
	return &outgoing{method: "GET", path: path, query: query}
}

func postJSON(path string, v any) (*outgoing, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode request body: %w", err)
	}
	return &outgoing{method: "POST", path: path, contentType: "application/json", body: body}, nil
}

func asyncJSON(path string, v any) (*outgoing, error) {
	out, err := postJSON(path, v)
	if err != nil {
		return nil, err
	}
	out.async = true
	return out, nil
}

func requireName(what, name string) error {
	if name == "" {
		return fmt.Errorf("%s name is required", what)
	}
	return nil
}

func escape(segment string) string {
	return url.PathEscape(segment)
}

// GetSystemInfo asks for daemon and host information.
type GetSystemInfo struct{}

func (GetSystemInfo) outgoing() (*outgoing, error) {
	return get("/v2/system-info"), nil
}

// ListSnaps lists installed snaps. Select may be "", "all" or "enabled".
type ListSnaps struct {
	Names  []string
	Select string
}

func (e ListSnaps) outgoing() (*outgoing, error) {
	var q []param
	if len(e.Names) > 0 {
		q = append(q, param{"snaps", strings.Join(e.Names, ",")})
	}
	if e.Select != "" {
		q = append(q, param{"select", e.Select})
	}
	return get("/v2/snaps", q...), nil
}

// GetSnap fetches one installed snap.
type GetSnap struct {
	Name string
}

func (e GetSnap) outgoing() (*outgoing, error) {
	if err := requireName("snap", e.Name); err != nil {
		return nil, err
	}
	return get("/v2/snaps/" + escape(e.Name)), nil
}

// GetApps lists apps of installed snaps, optionally only services.
type GetApps struct {
	Names    []string
	Services bool
}

func (e GetApps) outgoing() (*outgoing, error) {
	var q []param
	if len(e.Names) > 0 {
		q = append(q, param{"names", strings.Join(e.Names, ",")})
	}
	if e.Services {
		q = append(q, param{"select", "service"})
	}
	return get("/v2/apps", q...), nil
}

// GetIcon fetches the icon of an installed snap. The image is returned in
// Result.Body with its content type.
type GetIcon struct {
	Name string
}

func (e GetIcon) outgoing() (*outgoing, error) {
	if err := requireName("snap", e.Name); err != nil {
		return nil, err
	}
	out := get("/v2/icons/" + escape(e.Name) + "/icon")
	out.raw = true
	return out, nil
}

// Find searches the store.
type Find struct {
	Query string
	// MatchName searches for an exact snap name instead of free text.
	MatchName bool
	// Select is "", "refresh" or "private".
	Select  string
	Section string
}

func (e Find) outgoing() (*outgoing, error) {
	var q []param
	if e.Query != "" {
		key := "q"
		if e.MatchName {
			key = "name"
		}
		q = append(q, param{key, e.Query})
	}
	if e.Select != "" {
		q = append(q, param{"select", e.Select})
	}
	if e.Section != "" {
		q = append(q, param{"section", e.Section})
	}
	return get("/v2/find", q...), nil
}

// GetSections lists store sections.
type GetSections struct{}

func (GetSections) outgoing() (*outgoing, error) {
	return get("/v2/sections"), nil
}

// GetInterfaces lists plugs and slots.
type GetInterfaces struct{}

func (GetInterfaces) outgoing() (*outgoing, error) {
	return get("/v2/interfaces"), nil
}

// GetAliases lists aliases of installed snaps.
type GetAliases struct{}

func (GetAliases) outgoing() (*outgoing, error) {
	return get("/v2/aliases"), nil
}

// GetChange fetches one change snapshot.
type GetChange struct {
	ID string
}

func (e GetChange) outgoing() (*outgoing, error) {
	if err := requireName("change", e.ID); err != nil {
		return nil, err
	}
	return get("/v2/changes/" + escape(e.ID)), nil
}

// ListChanges lists changes. Select may be "", "all", "in-progress" or
// "ready"; Snap restricts the list to changes touching that snap.
type ListChanges struct {
	Select string
	Snap   string
}

func (e ListChanges) outgoing() (*outgoing, error) {
	var q []param
	if e.Select != "" {
		q = append(q, param{"select", e.Select})
	}
	if e.Snap != "" {
		q = append(q, param{"for", e.Snap})
	}
	return get("/v2/changes", q...), nil
}

// AbortChange asks the daemon to abort a change it is running.
type AbortChange struct {
	ID string
}

func (e AbortChange) outgoing() (*outgoing, error) {
	if err := requireName("change", e.ID); err != nil {
		return nil, err
	}
	return postJSON("/v2/changes/"+escape(e.ID), map[string]string{"action": "abort"})
}

// AddAssertions imports signed assertions.
type AddAssertions struct {
	Assertions []string
}

func (e AddAssertions) outgoing() (*outgoing, error) {
	if len(e.Assertions) == 0 {
		return nil, errors.New("no assertions given")
	}
	return &outgoing{
		method:      "POST",
		path:        "/v2/assertions",
		contentType: assertionType,
		body:        []byte(strings.Join(e.Assertions, "\n\n")),
	}, nil
}

// GetAssertions fetches assertions of one type. The assertion stream is
// returned in Result.Body.
type GetAssertions struct {
	Type    string
	Headers []Header
}

// Header is a name/value pair used as an assertion filter.
type Header struct {
	Name, Value string
}

func (e GetAssertions) outgoing() (*outgoing, error) {
	if err := requireName("assertion type", e.Type); err != nil {
		return nil, err
	}
	q := make([]param, 0, len(e.Headers))
	for _, h := range e.Headers {
		q = append(q, param{h.Name, h.Value})
	}
	out := get("/v2/assertions/"+escape(e.Type), q...)
	out.raw = true
	return out, nil
}

// Login exchanges store credentials for auth data. Decode the result with
// Decode[AuthData].
type Login struct {
	Username string
	Password string
	OTP      string
}

func (e Login) outgoing() (*outgoing, error) {
	if e.Username == "" || e.Password == "" {
		return nil, errors.New("username and password are required")
	}
	body := struct {
		Username string `json:"username"`
		Password string `json:"password"`
		OTP      string `json:"otp,omitempty"`
	}{e.Username, e.Password, e.OTP}
	return postJSON("/v2/login", body)
}

// RunSnapctl runs snapctl on behalf of a snap context. Decode the result
// with Decode[SnapctlOutput].
type RunSnapctl struct {
	ContextID string
	Args      []string
}

func (e RunSnapctl) outgoing() (*outgoing, error) {
	if len(e.Args) == 0 {
		return nil, errors.New("snapctl arguments are required")
	}
	body := struct {
		ContextID string   `json:"context-id"`
		Args      []string `json:"args"`
	}{e.ContextID, e.Args}
	return postJSON("/v2/snapctl", body)
}

// Snap action names accepted by SnapAction.
const (
	ActionInstall = "install"
	ActionRemove  = "remove"
	ActionRefresh = "refresh"
	ActionEnable  = "enable"
	ActionDisable = "disable"
	ActionSwitch  = "switch"
	ActionRevert  = "revert"
)

// InstallFlags modify how a snap is installed or sideloaded.
type InstallFlags struct {
	Classic   bool
	Dangerous bool
	Devmode   bool
	Jailmode  bool
}

// SnapAction runs an action on one snap and waits for its change.
type SnapAction struct {
	Action   string
	Name     string
	Channel  string
	Revision string
	Flags    InstallFlags
}

func (e SnapAction) outgoing() (*outgoing, error) {
	if err := requireName("snap", e.Name); err != nil {
		return nil, err
	}
	if e.Action == "" {
		return nil, errors.New("snap action is required")
	}
	body := struct {
		Action    string `json:"action"`
		Channel   string `json:"channel,omitempty"`
		Revision  string `json:"revision,omitempty"`
		Classic   bool   `json:"classic,omitempty"`
		Dangerous bool   `json:"dangerous,omitempty"`
		Devmode   bool   `json:"devmode,omitempty"`
		Jailmode  bool   `json:"jailmode,omitempty"`
	}{e.Action, e.Channel, e.Revision, e.Flags.Classic, e.Flags.Dangerous, e.Flags.Devmode, e.Flags.Jailmode}
	return asyncJSON("/v2/snaps/"+escape(e.Name), body)
}

// RefreshAll refreshes every installed snap. The ready change's data holds
// the refreshed names; decode it with Decode[RefreshedSnaps].
type RefreshAll struct{}

func (RefreshAll) outgoing() (*outgoing, error) {
	return asyncJSON("/v2/snaps", map[string]string{"action": ActionRefresh})
}

// Sideload installs a snap package from its contents.
type Sideload struct {
	Snap  io.Reader
	Flags InstallFlags
}

func (e Sideload) outgoing() (*outgoing, error) {
	if e.Snap == nil {
		return nil, errors.New("snap contents are required")
	}
	var fields []param
	for _, f := range []struct {
		name string
		set  bool
	}{
		{"classic", e.Flags.Classic},
		{"dangerous", e.Flags.Dangerous},
		{"devmode", e.Flags.Devmode},
		{"jailmode", e.Flags.Jailmode},
	} {
		if f.set {
			fields = append(fields, param{f.name, "true"})
		}
	}
	body, ct, err := multipartBody(fields, &formFile{
		field:       "snap",
		filename:    "x",
		contentType: snapPackageType,
		data:        e.Snap,
	})
	if err != nil {
		return nil, err
	}
	return &outgoing{method: "POST", path: "/v2/snaps", contentType: ct, body: body, async: true}, nil
}

// TrySnap installs an unpacked snap directory in try mode.
type TrySnap struct {
	Path string
}

func (e TrySnap) outgoing() (*outgoing, error) {
	if e.Path == "" {
		return nil, errors.New("snap path is required")
	}
	body, ct, err := multipartBody([]param{{"action", "try"}, {"snap-path", e.Path}}, nil)
	if err != nil {
		return nil, err
	}
	return &outgoing{method: "POST", path: "/v2/snaps", contentType: ct, body: body, async: true}, nil
}

// PlugRef names a plug on a snap.
type PlugRef struct {
	Snap string `json:"snap"`
	Plug string `json:"plug"`
}

// SlotRef names a slot on a snap.
type SlotRef struct {
	Snap string `json:"snap"`
	Slot string `json:"slot"`
}

// InterfaceAction connects or disconnects a plug and a slot.
type InterfaceAction struct {
	Action string // "connect" or "disconnect"
	Plug   PlugRef
	Slot   SlotRef
}

func (e InterfaceAction) outgoing() (*outgoing, error) {
	switch e.Action {
	case "connect", "disconnect":
	default:
		return nil, fmt.Errorf("unknown interface action %q", e.Action)
	}
	body := struct {
		Action string    `json:"action"`
		Plugs  []PlugRef `json:"plugs"`
		Slots  []SlotRef `json:"slots"`
	}{e.Action, []PlugRef{e.Plug}, []SlotRef{e.Slot}}
	return asyncJSON("/v2/interfaces", body)
}

// AliasAction manages app aliases. Action is one of "alias", "unalias" or
// "prefer"; empty fields are omitted.
type AliasAction struct {
	Action string
	Snap   string
	App    string
	Alias  string
}

func (e AliasAction) outgoing() (*outgoing, error) {
	switch e.Action {
	case "alias", "unalias", "prefer":
	default:
		return nil, fmt.Errorf("unknown alias action %q", e.Action)
	}
	body := struct {
		Action string `json:"action"`
		Snap   string `json:"snap,omitempty"`
		App    string `json:"app,omitempty"`
		Alias  string `json:"alias,omitempty"`
	}{e.Action, e.Snap, e.App, e.Alias}
	return asyncJSON("/v2/aliases", body)
}
