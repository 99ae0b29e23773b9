package cmd

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runger/snapc/internal/snapd"
)

func TestChanges(t *testing.T) {
	isolate(t)
	stub := newSnapdStub(t)
	stub.handle("GET /v2/changes", syncReply([]map[string]any{
		{"id": "5", "status": "Doing", "summary": "Install \"hello\" snap", "spawn-time": "2026-01-02T03:04:05Z"},
	}))

	out, err := runCLI(t, stub.socket, "changes", "hello")
	require.NoError(t, err)
	assert.Contains(t, out, `Install "hello" snap`)

	r, _ := stub.last("GET", "/v2/changes")
	assert.Equal(t, "in-progress", r.URL.Query().Get("select"))
	assert.Equal(t, "hello", r.URL.Query().Get("for"))
}

func TestChangesWatch(t *testing.T) {
	isolate(t)
	stub := newSnapdStub(t)

	var polls atomic.Int32
	stub.handle("GET /v2/changes/21", func(w http.ResponseWriter, r *http.Request) {
		if polls.Add(1) < 3 {
			syncReply(map[string]any{"id": "21", "status": "Doing", "summary": "Refresh"})(w, r)
			return
		}
		syncReply(readyChange("21", "Done", "", nil))(w, r)
	})

	out, err := runCLI(t, stub.socket, "changes", "watch", "21")
	require.NoError(t, err)
	assert.Contains(t, out, "Done")
	assert.Equal(t, int32(3), polls.Load())
}

func TestChangesWatch_Error(t *testing.T) {
	isolate(t)
	stub := newSnapdStub(t)
	stub.handle("GET /v2/changes/22", syncReply(readyChange("22", "Error", "boom", nil)))

	_, err := runCLI(t, stub.socket, "changes", "watch", "22")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Error")
}

func TestChangesAbort(t *testing.T) {
	isolate(t)
	stub := newSnapdStub(t)
	stub.handle("POST /v2/changes/23", syncReply(map[string]any{"id": "23", "status": "Abort", "summary": "Install"}))

	out, err := runCLI(t, stub.socket, "changes", "abort", "23")
	require.NoError(t, err)
	assert.Contains(t, out, "change 23: Abort")

	_, body := stub.last("POST", "/v2/changes/23")
	assert.Equal(t, "abort", mustJSON(t, body)["action"])
}

func TestInstall_InterruptAbortsChange(t *testing.T) {
	isolate(t)
	stub := newSnapdStub(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var aborted atomic.Bool
	stub.handle("POST /v2/snaps/hello", asyncReply("31"))
	stub.handle("GET /v2/changes/31", func(w http.ResponseWriter, r *http.Request) {
		if aborted.Load() {
			syncReply(readyChange("31", "Undone", "change was aborted", nil))(w, r)
			return
		}
		cancel()
		syncReply(map[string]any{"id": "31", "status": "Doing", "summary": "Install"})(w, r)
	})
	stub.handle("POST /v2/changes/31", func(w http.ResponseWriter, r *http.Request) {
		aborted.Store(true)
		syncReply(map[string]any{"id": "31", "status": "Abort", "summary": "Install"})(w, r)
	})

	_, err := runCLIContext(t, ctx, stub.socket, "install", "hello")
	require.Error(t, err)
	assert.ErrorIs(t, err, snapd.ErrCancelled)
	assert.Contains(t, err.Error(), "change 31 aborted")

	_, body := stub.last("POST", "/v2/changes/31")
	assert.Equal(t, "abort", mustJSON(t, body)["action"])
}
