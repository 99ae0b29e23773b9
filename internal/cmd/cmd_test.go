package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

// snapdStub serves canned snapd responses on a Unix socket.
type snapdStub struct {
	socket string
	mux    *http.ServeMux

	mu       sync.Mutex
	requests []*http.Request
	bodies   []string
}

func newSnapdStub(t *testing.T) *snapdStub {
	t.Helper()
	dir, err := os.MkdirTemp("/tmp", "snapc-cmd")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	s := &snapdStub{socket: filepath.Join(dir, "snapd.socket"), mux: http.NewServeMux()}
	ln, err := net.Listen("unix", s.socket)
	require.NoError(t, err)

	srv := &http.Server{Handler: http.HandlerFunc(s.record)}
	go srv.Serve(ln)
	t.Cleanup(func() { srv.Close() })
	return s
}

func (s *snapdStub) record(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	s.mu.Lock()
	s.requests = append(s.requests, r)
	s.bodies = append(s.bodies, string(body))
	s.mu.Unlock()
	r.Body = io.NopCloser(bytes.NewReader(body))
	s.mux.ServeHTTP(w, r)
}

// last returns the most recent request matching method and path.
func (s *snapdStub) last(method, path string) (*http.Request, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.requests) - 1; i >= 0; i-- {
		r := s.requests[i]
		if r.Method == method && r.URL.Path == path {
			return r, s.bodies[i]
		}
	}
	return nil, ""
}

func (s *snapdStub) handle(pattern string, h http.HandlerFunc) {
	s.mux.HandleFunc(pattern, h)
}

func writeEnvelope(w http.ResponseWriter, code int, v map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func syncReply(result any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, 200, map[string]any{"type": "sync", "status-code": 200, "status": "OK", "result": result})
	}
}

func asyncReply(changeID string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, 202, map[string]any{"type": "async", "status-code": 202, "status": "Accepted", "change": changeID})
	}
}

func errorReply(code int, kind, message string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, code, map[string]any{
			"type": "error", "status-code": code,
			"result": map[string]any{"message": message, "kind": kind},
		})
	}
}

func readyChange(id, status, errMsg string, data any) map[string]any {
	c := map[string]any{
		"id": id, "kind": "test", "summary": "Change " + id, "status": status, "ready": true,
		"tasks": []map[string]any{{
			"id": "1", "kind": "download-snap", "summary": "Download", "status": status,
			"progress": map[string]any{"label": "", "done": 1, "total": 1},
		}},
	}
	if errMsg != "" {
		c["err"] = errMsg
	}
	if data != nil {
		c["data"] = data
	}
	return c
}

// isolate points config, state and credentials at a temp dir.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	t.Setenv("XDG_STATE_HOME", filepath.Join(home, ".local", "state"))
	t.Setenv("SNAPC_AUTH_FILE", filepath.Join(home, ".snap", "auth.json"))
	for _, k := range []string{"SNAPC_SOCKET", "SNAPC_USER_AGENT", "SNAPC_DEBUG", "SNAPC_LOG_LEVEL", "SNAPC_ALLOW_INTERACTION", "SNAP_COOKIE"} {
		t.Setenv(k, "")
	}

	// Keep test output free of terminal redraws.
	cfgDir := filepath.Join(home, ".config", "snapc")
	require.NoError(t, os.MkdirAll(cfgDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(cfgDir, "config.yaml"), []byte("ui:\n  progress: plain\n"), 0644))
	return home
}

func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// runCLI executes snapc with args against socket and returns stdout.
func runCLI(t *testing.T, socket string, args ...string) (string, error) {
	t.Helper()
	return runCLIContext(t, context.Background(), socket, args...)
}

func runCLIContext(t *testing.T, ctx context.Context, socket string, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	t.Cleanup(func() { resetFlags(rootCmd) })

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--socket", socket}, args...))

	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		_ = app.close()
	}
	return out.String(), err
}

func mustJSON(t *testing.T, s string) map[string]any {
	t.Helper()
	var v map[string]any
	require.NoError(t, json.Unmarshal([]byte(s), &v), fmt.Sprintf("body: %q", s))
	return v
}
