package snapd

import (
	"bytes"
	"context"
	"errors"
	"net"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_SyncRequest(t *testing.T) {
	t.Parallel()

	d := newFakeDaemon(t)
	c := newTestClient(t, d, WithUserAgent("snapc-test/1.0"))

	ch := submit(t, c, context.Background(), GetSystemInfo{}, nil)

	in := d.next()
	assert.True(t, isPath(in, "GET", "/v2/system-info"))
	assert.Equal(t, "snapc-test/1.0", in.Header.Get("User-Agent"))
	assert.Equal(t, "en", in.Header.Get("Accept-Language"))
	assert.Empty(t, in.Header.Get("Authorization"))
	assert.Empty(t, in.Header.Get("X-Allow-Interaction"))

	in.reply(syncResponse(`{"series":"16","version":"2.61","on-classic":true}`))

	o := wait(t, ch)
	require.NoError(t, o.err)
	assert.Equal(t, 200, o.res.StatusCode)

	info, err := Decode[SystemInfo](o.res.Value)
	require.NoError(t, err)
	assert.Equal(t, "2.61", info.Version)
	assert.True(t, info.OnClassic)
}

func TestClient_AuthAndInteractionHeaders(t *testing.T) {
	t.Parallel()

	d := newFakeDaemon(t)
	c := newTestClient(t, d,
		WithAuthData(&AuthData{Macaroon: "root-m", Discharges: []string{"d1", "d2"}}),
		WithAllowInteraction(true),
	)

	ch := submit(t, c, context.Background(), ListSnaps{Select: "all"}, nil)
	in := d.next()
	assert.Equal(t, `Macaroon root="root-m",discharge="d1",discharge="d2"`, in.Header.Get("Authorization"))
	assert.Equal(t, "true", in.Header.Get("X-Allow-Interaction"))
	assert.Equal(t, "all", in.URL.Query().Get("select"))
	in.reply(syncResponse(`[]`))
	require.NoError(t, wait(t, ch).err)

	c.SetAuthData(nil)
	ch = submit(t, c, context.Background(), GetAliases{}, nil)
	in = d.next()
	assert.Empty(t, in.Header.Get("Authorization"))
	in.reply(syncResponse(`{}`))
	require.NoError(t, wait(t, ch).err)
}

func TestClient_FIFOMatching(t *testing.T) {
	t.Parallel()

	d := newFakeDaemon(t)
	c := newTestClient(t, d)

	names := []string{"alpha", "beta", "gamma"}
	var chans []<-chan outcome
	var ins []*incoming
	for _, name := range names {
		chans = append(chans, submit(t, c, context.Background(), GetSnap{Name: name}, nil))
		ins = append(ins, d.next())
	}
	for i, in := range ins {
		assert.True(t, isPath(in, "GET", "/v2/snaps/"+names[i]))
	}

	// All responses in one write, in request order.
	var all strings.Builder
	for _, name := range names {
		all.WriteString(syncResponse(`{"name":"` + name + `"}`))
	}
	ins[0].reply(all.String())

	for i, ch := range chans {
		o := wait(t, ch)
		require.NoError(t, o.err)
		snap, err := Decode[Snap](o.res.Value)
		require.NoError(t, err)
		assert.Equal(t, names[i], snap.Name)
	}
	assert.Equal(t, int32(1), d.accepts.Load())
}

func TestClient_FIFOSkipsAcceptedChanges(t *testing.T) {
	t.Parallel()

	d := newFakeDaemon(t)
	c := newTestClient(t, d, WithPollInterval(time.Hour))

	asyncCh := submit(t, c, context.Background(), SnapAction{Action: ActionInstall, Name: "hello"}, nil)
	in := d.next()
	in.reply(asyncResponse("42"))

	// The accept is read before the sync reply, so it claims the change id
	// and drops out of matching.
	syncCh := submit(t, c, context.Background(), GetSnap{Name: "hello"}, nil)
	in = d.next()
	in.reply(syncResponse(`{"name":"hello"}`))

	o := wait(t, syncCh)
	require.NoError(t, o.err)
	assert.JSONEq(t, `{"name":"hello"}`, string(o.res.Value))
	assertPending(t, asyncCh)
}

func TestClient_ConnectionReuse(t *testing.T) {
	t.Parallel()

	d := newFakeDaemon(t)
	c := newTestClient(t, d)

	for i := 0; i < 5; i++ {
		ch := submit(t, c, context.Background(), GetSystemInfo{}, nil)
		d.next().reply(syncResponse(`{}`))
		require.NoError(t, wait(t, ch).err)
	}

	assert.Equal(t, int32(1), d.accepts.Load())
	assert.True(t, c.Connected())
}

func TestClient_ConcurrentSendsShareOneConnection(t *testing.T) {
	t.Parallel()

	d := newFakeDaemon(t)
	c := newTestClient(t, d)

	// Neither send waits for the socket to exist.
	first := submit(t, c, context.Background(), GetSnap{Name: "one"}, nil)
	second := submit(t, c, context.Background(), GetSnap{Name: "two"}, nil)

	in1 := d.next()
	in2 := d.next()
	assert.True(t, isPath(in1, "GET", "/v2/snaps/one"))
	assert.True(t, isPath(in2, "GET", "/v2/snaps/two"))
	in1.reply(syncResponse(`{"name":"one"}`))
	in2.reply(syncResponse(`{"name":"two"}`))

	require.NoError(t, wait(t, first).err)
	require.NoError(t, wait(t, second).err)
	assert.Equal(t, int32(1), d.accepts.Load())
}

func TestClient_FIFOMatchingByteAtATime(t *testing.T) {
	t.Parallel()

	d := newFakeDaemon(t)
	c := newTestClient(t, d)

	names := []string{"alpha", "beta", "gamma"}
	var chans []<-chan outcome
	var ins []*incoming
	for _, name := range names {
		chans = append(chans, submit(t, c, context.Background(), GetSnap{Name: name}, nil))
		ins = append(ins, d.next())
	}

	var all strings.Builder
	for _, name := range names {
		all.WriteString(syncResponse(`{"name":"` + name + `"}`))
	}
	raw := []byte(all.String())
	for i := range raw {
		_, err := ins[0].conn.Write(raw[i : i+1])
		require.NoError(t, err)
	}

	for i, ch := range chans {
		o := wait(t, ch)
		require.NoError(t, o.err)
		snap, err := Decode[Snap](o.res.Value)
		require.NoError(t, err)
		assert.Equal(t, names[i], snap.Name)
	}
}

func TestClient_ChunkedResponse(t *testing.T) {
	t.Parallel()

	d := newFakeDaemon(t)
	c := newTestClient(t, d)

	ch := submit(t, c, context.Background(), GetAliases{}, nil)
	body := `{"type":"sync","status-code":200,"result":{"hello":{"hi":{"command":"hello","status":"manual"}}}}`
	raw := string(encodeChunked([]byte(body), []int{10, 20, len(body) - 30}))
	in := d.next()
	// Dribble the response so frames span reads.
	for i := 0; i < len(raw); i += 7 {
		in.reply(raw[i:min(i+7, len(raw))])
	}

	o := wait(t, ch)
	require.NoError(t, o.err)
	aliases, err := Decode[Aliases](o.res.Value)
	require.NoError(t, err)
	assert.Equal(t, "hello", aliases["hello"]["hi"].Command)
}

func TestClient_ErrorEnvelopes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		status   int
		kind     string
		wantKind ErrorKind
	}{
		{"login required", 401, "login-required", KindAuthDataRequired},
		{"invalid auth", 401, "invalid-auth-data", KindAuthDataInvalid},
		{"two factor required", 401, "two-factor-required", KindTwoFactorRequired},
		{"two factor failed", 401, "two-factor-failed", KindTwoFactorInvalid},
		{"bad request", 400, "", KindBadRequest},
		{"forbidden", 403, "", KindPermissionDenied},
		{"unauthorized", 401, "", KindPermissionDenied},
		{"internal", 500, "", KindFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := newFakeDaemon(t)
			c := newTestClient(t, d)

			ch := submit(t, c, context.Background(), GetSnap{Name: "x"}, nil)
			d.next().reply(errorResponse(tt.status, tt.kind, "it went wrong"))

			o := wait(t, ch)
			require.Error(t, o.err)
			assert.True(t, IsKind(o.err, tt.wantKind), "got %v", o.err)
			assert.Contains(t, o.err.Error(), "it went wrong")
		})
	}
}

func TestClient_NonJSONResponse(t *testing.T) {
	t.Parallel()

	d := newFakeDaemon(t)
	c := newTestClient(t, d)

	ch := submit(t, c, context.Background(), GetSystemInfo{}, nil)
	d.next().reply("HTTP/1.1 200 OK\r\nContent-Type: text/html\r\nContent-Length: 4\r\n\r\nnope")

	o := wait(t, ch)
	assert.ErrorIs(t, o.err, ErrReadFailed)
}

func TestClient_GetIcon(t *testing.T) {
	t.Parallel()

	d := newFakeDaemon(t)
	c := newTestClient(t, d)

	ch := submit(t, c, context.Background(), GetIcon{Name: "hello"}, nil)
	in := d.next()
	assert.True(t, isPath(in, "GET", "/v2/icons/hello/icon"))
	in.reply("HTTP/1.1 200 OK\r\nContent-Type: image/png\r\nContent-Length: 4\r\n\r\n\x89PNG")

	o := wait(t, ch)
	require.NoError(t, o.err)
	assert.Equal(t, "image/png", o.res.ContentType)
	assert.Equal(t, []byte("\x89PNG"), o.res.Body)

	ch = submit(t, c, context.Background(), GetIcon{Name: "missing"}, nil)
	d.next().reply(errorResponse(404, "", "not found"))
	assert.ErrorIs(t, wait(t, ch).err, ErrFailed)
}

func TestClient_EOFFramedResponse(t *testing.T) {
	t.Parallel()

	d := newFakeDaemon(t)
	c := newTestClient(t, d)

	ch := submit(t, c, context.Background(), GetSystemInfo{}, nil)
	in := d.next()
	in.reply("HTTP/1.1 200 OK\r\nContent-Type: application/json\r\n\r\n" +
		`{"type":"sync","status-code":200,"result":{"version":"1"}}`)
	in.conn.Close()

	o := wait(t, ch)
	require.NoError(t, o.err)
	assert.JSONEq(t, `{"version":"1"}`, string(o.res.Value))

	// The next request reconnects.
	ch = submit(t, c, context.Background(), GetSystemInfo{}, nil)
	d.next().reply(syncResponse(`{}`))
	require.NoError(t, wait(t, ch).err)
	assert.Equal(t, int32(2), d.accepts.Load())
}

func TestClient_ConnectFailure(t *testing.T) {
	t.Parallel()

	c := New(WithSocketPath(filepath.Join(shortTempDir(t), "missing.sock")))
	defer c.Close()

	_, err := c.Do(context.Background(), GetSystemInfo{}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConnectionFailed)
	assert.Contains(t, err.Error(), "does not exist")
}

func TestClient_SyncCancelKeepsOrder(t *testing.T) {
	t.Parallel()

	d := newFakeDaemon(t)
	c := newTestClient(t, d)

	ctx, cancel := context.WithCancel(context.Background())
	first := submit(t, c, ctx, GetSnap{Name: "first"}, nil)
	in := d.next()

	cancel()
	o := wait(t, first)
	assert.ErrorIs(t, o.err, ErrCancelled)
	assert.ErrorIs(t, o.err, context.Canceled)

	second := submit(t, c, context.Background(), GetSnap{Name: "second"}, nil)
	d.next()

	// The reply to the cancelled request is still consumed first.
	in.reply(syncResponse(`{"name":"first"}`) + syncResponse(`{"name":"second"}`))

	o = wait(t, second)
	require.NoError(t, o.err)
	snap, err := Decode[Snap](o.res.Value)
	require.NoError(t, err)
	assert.Equal(t, "second", snap.Name)
}

func TestClient_CancelledBeforeSubmit(t *testing.T) {
	t.Parallel()

	d := newFakeDaemon(t)
	c := newTestClient(t, d)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Do(ctx, GetSystemInfo{}, nil)
	assert.ErrorIs(t, err, ErrCancelled)
	d.expectNone(30 * time.Millisecond)
}

func TestClient_DisconnectFailsSyncRequests(t *testing.T) {
	t.Parallel()

	d := newFakeDaemon(t)
	c := newTestClient(t, d)

	const k = 4
	var chans []<-chan outcome
	for i := 0; i < k; i++ {
		chans = append(chans, submit(t, c, context.Background(), GetSystemInfo{}, nil))
		d.next()
	}

	d.dropConnections()

	for _, ch := range chans {
		o := wait(t, ch)
		assert.ErrorIs(t, o.err, ErrReadFailed)
	}
	assert.Eventually(t, func() bool { return !c.Connected() }, time.Second, 5*time.Millisecond)
	assert.Zero(t, c.Pending())
}

func TestClient_MalformedResponseFailsConnection(t *testing.T) {
	t.Parallel()

	d := newFakeDaemon(t)
	c := newTestClient(t, d)

	a := submit(t, c, context.Background(), GetSystemInfo{}, nil)
	b := submit(t, c, context.Background(), GetAliases{}, nil)
	in := d.next()
	d.next()

	in.reply("HTTP/1.1 200 OK\r\nTransfer-Encoding: compress\r\n\r\n")

	assert.ErrorIs(t, wait(t, a).err, ErrReadFailed)
	assert.ErrorIs(t, wait(t, b).err, ErrReadFailed)

	// A fresh connection is made for the next request.
	ch := submit(t, c, context.Background(), GetSystemInfo{}, nil)
	d.next().reply(syncResponse(`{}`))
	require.NoError(t, wait(t, ch).err)
	assert.Equal(t, int32(2), d.accepts.Load())
}

func TestClient_Close(t *testing.T) {
	t.Parallel()

	d := newFakeDaemon(t)
	c := newTestClient(t, d)

	ch := submit(t, c, context.Background(), GetSystemInfo{}, nil)
	d.next()

	require.NoError(t, c.Close())
	o := wait(t, ch)
	assert.True(t, errors.Is(o.err, ErrClosed))

	err := c.Submit(context.Background(), GetSystemInfo{}, nil, nil)
	assert.ErrorIs(t, err, ErrClosed)
	assert.Zero(t, c.Pending())
	assert.False(t, c.Connected())

	// Closing twice is fine.
	require.NoError(t, c.Close())
}

func TestClient_StartAfterCloseStillCompletes(t *testing.T) {
	t.Parallel()

	d := newFakeDaemon(t)
	c := newTestClient(t, d)

	// Hold the loop so Close queues its shutdown behind the gate.
	gate := make(chan struct{})
	running := make(chan struct{})
	require.True(t, c.loop.post(func() {
		close(running)
		<-gate
	}))
	<-running

	closed := make(chan struct{})
	go func() {
		c.Close()
		close(closed)
	}()
	require.Eventually(t, func() bool {
		c.loop.mu.Lock()
		defer c.loop.mu.Unlock()
		return len(c.loop.tasks) == 1
	}, 5*time.Second, time.Millisecond)

	// A start that slipped past the closing check and runs once the loop
	// has stopped taking posts.
	ch := make(chan outcome, 1)
	req := &request{
		ctx:  context.Background(),
		out:  get("/v2/system-info"),
		role: roleUser,
		done: func(res *Result, err error) { ch <- outcome{res, err} },
	}
	require.True(t, c.loop.post(func() {
		deadline := time.Now().Add(5 * time.Second)
		for time.Now().Before(deadline) {
			c.loop.mu.Lock()
			stopped := c.loop.stopped
			c.loop.mu.Unlock()
			if stopped {
				break
			}
			time.Sleep(time.Millisecond)
		}
		c.start(req)
	}))
	close(gate)

	o := wait(t, ch)
	assert.ErrorIs(t, o.err, ErrClosed)
	<-closed
}

func TestClient_WriteFailureDropsIdleConnection(t *testing.T) {
	t.Parallel()

	// A daemon that accepts but never reads, so a large upload stalls.
	path := filepath.Join(shortTempDir(t), "stall.sock")
	ln, err := net.Listen("unix", path)
	require.NoError(t, err)
	accepted := make(chan net.Conn, 1)
	go func() {
		if conn, err := ln.Accept(); err == nil {
			accepted <- conn
		}
	}()
	t.Cleanup(func() {
		ln.Close()
		select {
		case conn := <-accepted:
			conn.Close()
		default:
		}
	})

	c := newTestClient(t, &fakeDaemon{path: path}, WithWriteTimeout(50*time.Millisecond))
	ch := submit(t, c, context.Background(), Sideload{Snap: bytes.NewReader(make([]byte, 8<<20))}, nil)

	o := wait(t, ch)
	require.Error(t, o.err)
	assert.ErrorIs(t, o.err, ErrWriteFailed)
	assert.False(t, c.Connected())
}

func TestClient_InvalidChangeRequestFailsParent(t *testing.T) {
	t.Parallel()

	d := newFakeDaemon(t)
	c := newTestClient(t, d)

	ch := make(chan outcome, 1)
	req := &request{
		ctx:   context.Background(),
		out:   get("/v2/snaps/hello"),
		role:  roleUser,
		async: &asyncState{},
		done:  func(res *Result, err error) { ch <- outcome{res, err} },
	}
	// No change id yet, so the poll cannot be built.
	require.True(t, c.loop.post(func() { c.sendChild(req, rolePoll) }))

	o := wait(t, ch)
	assert.ErrorIs(t, o.err, ErrFailed)
	d.expectNone(20 * time.Millisecond)
}

func TestClient_InvalidEndpoint(t *testing.T) {
	t.Parallel()

	c := New(WithSocketPath("/nonexistent"))
	defer c.Close()

	err := c.Submit(context.Background(), GetSnap{}, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "snap name is required")
}
