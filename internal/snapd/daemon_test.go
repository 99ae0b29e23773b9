package snapd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// shortTempDir returns a temp dir with a short path, keeping socket paths
// under the sun_path limit.
func shortTempDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("/tmp", "snapc-t")
	if err != nil {
		t.Fatalf("failed to create short temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

// fakeDaemon is a scripted snapd stand-in. Every request the client writes
// is parsed and handed to the test, which answers with raw response bytes.
type fakeDaemon struct {
	t        *testing.T
	path     string
	listener net.Listener
	requests chan *incoming
	accepts  atomic.Int32

	mu    sync.Mutex
	conns []net.Conn
	wg    sync.WaitGroup
}

// incoming is one request received by the fake daemon.
type incoming struct {
	*http.Request
	body []byte
	conn net.Conn
}

func newFakeDaemon(t *testing.T) *fakeDaemon {
	t.Helper()
	path := filepath.Join(shortTempDir(t), "snapd.sock")
	ln, err := net.Listen("unix", path)
	require.NoError(t, err)

	d := &fakeDaemon{
		t:        t,
		path:     path,
		listener: ln,
		requests: make(chan *incoming, 64),
	}
	d.wg.Add(1)
	go d.acceptLoop()
	t.Cleanup(d.close)
	return d
}

func (d *fakeDaemon) acceptLoop() {
	defer d.wg.Done()
	for {
		conn, err := d.listener.Accept()
		if err != nil {
			return
		}
		d.accepts.Add(1)
		d.mu.Lock()
		d.conns = append(d.conns, conn)
		d.mu.Unlock()

		d.wg.Add(1)
		go d.serve(conn)
	}
}

func (d *fakeDaemon) serve(conn net.Conn) {
	defer d.wg.Done()
	r := bufio.NewReader(conn)
	for {
		req, err := http.ReadRequest(r)
		if err != nil {
			return
		}
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return
		}
		d.requests <- &incoming{Request: req, body: body, conn: conn}
	}
}

// next waits for the next request the client sends.
func (d *fakeDaemon) next() *incoming {
	d.t.Helper()
	select {
	case in := <-d.requests:
		return in
	case <-time.After(5 * time.Second):
		d.t.Fatal("timed out waiting for a request")
		return nil
	}
}

// expectNone asserts no request arrives within wait.
func (d *fakeDaemon) expectNone(wait time.Duration) {
	d.t.Helper()
	select {
	case in := <-d.requests:
		d.t.Fatalf("unexpected request %s %s", in.Method, in.URL)
	case <-time.After(wait):
	}
}

// dropConnections closes every accepted connection.
func (d *fakeDaemon) dropConnections() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, c := range d.conns {
		c.Close()
	}
	d.conns = nil
}

func (d *fakeDaemon) close() {
	d.listener.Close()
	d.dropConnections()
	d.wg.Wait()
}

func (in *incoming) reply(raw string) {
	_, _ = io.WriteString(in.conn, raw)
}

func jsonResponse(status int, body string) string {
	return fmt.Sprintf("HTTP/1.1 %d %s\r\nContent-Type: application/json\r\nContent-Length: %d\r\n\r\n%s",
		status, http.StatusText(status), len(body), body)
}

func syncResponse(result string) string {
	return jsonResponse(200, fmt.Sprintf(`{"type":"sync","status-code":200,"status":"OK","result":%s}`, result))
}

func asyncResponse(changeID string) string {
	return jsonResponse(202, fmt.Sprintf(`{"type":"async","status-code":202,"status":"Accepted","change":%q}`, changeID))
}

func errorResponse(status int, kind, message string) string {
	return jsonResponse(status, fmt.Sprintf(`{"type":"error","status-code":%d,"result":{"message":%q,"kind":%q}}`, status, message, kind))
}

type changeOpt func(map[string]any)

func withErr(msg string) changeOpt {
	return func(m map[string]any) { m["err"] = msg }
}

func withData(data string) changeOpt {
	return func(m map[string]any) { m["data"] = json.RawMessage(data) }
}

func withTaskProgress(done, total int) changeOpt {
	return func(m map[string]any) {
		m["tasks"] = []map[string]any{{
			"id":       "1",
			"kind":     "download-snap",
			"summary":  "Download snap",
			"status":   "Doing",
			"progress": map[string]any{"label": "hello", "done": done, "total": total},
		}}
	}
}

func changeResponse(id, status string, ready bool, opts ...changeOpt) string {
	m := map[string]any{
		"id":         id,
		"kind":       "install-snap",
		"summary":    "Install snap",
		"status":     status,
		"ready":      ready,
		"spawn-time": "2026-01-02T03:04:05Z",
	}
	for _, o := range opts {
		o(m)
	}
	b, _ := json.Marshal(m)
	return syncResponse(string(b))
}

func newTestClient(t *testing.T, d *fakeDaemon, opts ...Option) *Client {
	t.Helper()
	base := []Option{
		WithSocketPath(d.path),
		WithPollInterval(5 * time.Millisecond),
		WithAcceptLanguage("en"),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	c := New(append(base, opts...)...)
	t.Cleanup(func() { c.Close() })
	return c
}

// outcome collects the completion of a Submit call.
type outcome struct {
	res *Result
	err error
}

func submit(t *testing.T, c *Client, ctx context.Context, ep Endpoint, progress ProgressFunc) <-chan outcome {
	t.Helper()
	ch := make(chan outcome, 1)
	require.NoError(t, c.Submit(ctx, ep, progress, func(res *Result, err error) {
		ch <- outcome{res, err}
	}))
	return ch
}

func wait(t *testing.T, ch <-chan outcome) outcome {
	t.Helper()
	select {
	case o := <-ch:
		return o
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for completion")
		return outcome{}
	}
}

func assertPending(t *testing.T, ch <-chan outcome) {
	t.Helper()
	select {
	case o := <-ch:
		t.Fatalf("request completed early: %+v", o)
	case <-time.After(20 * time.Millisecond):
	}
}

func isPath(in *incoming, method, path string) bool {
	return in.Method == method && strings.TrimSuffix(in.URL.Path, "/") == path
}
