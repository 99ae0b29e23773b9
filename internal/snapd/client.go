// Package snapd is a client for the snapd daemon. It speaks a minimal
// HTTP/1.1 dialect over the daemon's Unix socket, multiplexes concurrent
// requests onto one connection and follows long-running changes until they
// are ready.
//
// Every Client owns one event-loop goroutine. All connection state,
// timers and callbacks run on it, so CompletionFunc and ProgressFunc must
// not block and must not call Close or Do on the same client.
package snapd

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Client talks to snapd. It is safe for concurrent use.
type Client struct {
	opts    options
	log     *slog.Logger
	metrics *Metrics
	loop    *eventLoop

	acceptLanguage string

	closing   atomic.Bool
	closeOnce sync.Once

	// Owned by the event loop.
	auth    *AuthData
	conn    net.Conn
	connGen uint64
	buf     readBuffer
	queue   []*request
	closed  bool
}

// New creates a client. No connection is made until the first request.
func New(opts ...Option) *Client {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	lang := o.acceptLanguage
	if lang == "" {
		lang = acceptLanguage(languageNames(nil))
	}

	return &Client{
		opts:           o,
		log:            logger.With("component", "snapd-client"),
		metrics:        o.metrics,
		loop:           newEventLoop(),
		acceptLanguage: lang,
		auth:           o.auth,
	}
}

// SocketPath returns the socket the client connects to.
func (c *Client) SocketPath() string {
	return c.opts.socketPath
}

// Submit queues a request and returns immediately. done is called exactly
// once with the outcome; progress, if non-nil, receives change snapshots of
// async endpoints. Cancelling ctx cancels the request: sync requests fail
// at once, async requests ask the daemon to abort their change and complete
// when it is ready.
//
// Submit only fails if the endpoint is invalid or the client is closed.
func (c *Client) Submit(ctx context.Context, ep Endpoint, progress ProgressFunc, done CompletionFunc) error {
	if c.closing.Load() {
		return ErrClosed
	}
	out, err := ep.outgoing()
	if err != nil {
		return fmt.Errorf("build %T request: %w", ep, err)
	}
	if done == nil {
		done = func(*Result, error) {}
	}

	req := &request{
		id:    uuid.NewString(),
		ctx:   ctx,
		out:   out,
		role:  roleUser,
		start: time.Now(),
		done:  done,
	}
	if out.async {
		req.async = &asyncState{progress: progress}
	}

	if !c.loop.post(func() { c.start(req) }) {
		return ErrClosed
	}
	return nil
}

// Do submits a request and waits for it to complete.
func (c *Client) Do(ctx context.Context, ep Endpoint, progress ProgressFunc) (*Result, error) {
	type outcome struct {
		res *Result
		err error
	}
	ch := make(chan outcome, 1)
	err := c.Submit(ctx, ep, progress, func(res *Result, err error) {
		ch <- outcome{res, err}
	})
	if err != nil {
		return nil, err
	}
	o := <-ch
	return o.res, o.err
}

// SetAuthData replaces the credentials sent with subsequent requests.
func (c *Client) SetAuthData(auth *AuthData) {
	c.loop.post(func() { c.auth = auth })
}

// Pending returns the number of caller requests that have not completed.
func (c *Client) Pending() int {
	ch := make(chan int, 1)
	ok := c.loop.post(func() {
		n := 0
		for _, r := range c.queue {
			if r.role == roleUser && !r.completed {
				n++
			}
		}
		ch <- n
	})
	if !ok {
		return 0
	}
	return <-ch
}

// Connected reports whether a socket is currently open.
func (c *Client) Connected() bool {
	ch := make(chan bool, 1)
	if !c.loop.post(func() { ch <- c.conn != nil }) {
		return false
	}
	return <-ch
}

// Close fails every pending request with ErrClosed, closes the socket and
// stops the event loop once queued callbacks have run.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.closing.Store(true)
		finished := make(chan struct{})
		if c.loop.post(func() {
			c.shutdown()
			close(finished)
		}) {
			<-finished
		}
		c.loop.stop()
	})
	return nil
}

func (c *Client) shutdown() {
	c.closed = true
	pending := c.queue
	c.queue = nil
	for _, r := range pending {
		if r.role == roleUser {
			c.complete(r, nil, ErrClosed)
		}
	}
	c.closeConn()
}

// start runs on the loop for every caller request.
func (c *Client) start(req *request) {
	c.metrics.requestStarted()
	if c.closed {
		c.complete(req, nil, ErrClosed)
		return
	}
	if err := req.ctx.Err(); err != nil {
		c.complete(req, nil, cancelledError(err))
		return
	}
	req.stopCancel = context.AfterFunc(req.ctx, func() {
		c.loop.post(func() { c.cancel(req) })
	})
	c.send(req)
}

// complete delivers the outcome of a caller request exactly once. The
// callback is posted so it never runs inside the read path.
func (c *Client) complete(req *request, res *Result, err error) {
	if req.completed {
		return
	}
	req.completed = true
	if req.stopCancel != nil {
		req.stopCancel()
	}
	kind := "sync"
	if a := req.async; a != nil {
		kind = "async"
		a.stopTimer()
		if err != nil {
			a.state = stateReadyError
		} else {
			a.state = stateReadyOk
		}
	}
	c.metrics.requestDone(kind, err, time.Since(req.start))

	if err != nil {
		c.log.Debug("request failed", "request_id", req.id, "path", req.out.path, "error", err)
	} else {
		c.log.Debug("request completed", "request_id", req.id, "path", req.out.path)
	}

	done := req.done
	if !c.loop.post(func() { done(res, err) }) {
		// The loop is draining after Close and takes no more tasks.
		done(res, err)
	}
}

func (c *Client) cancel(req *request) {
	if req.completed || c.closed {
		return
	}
	c.log.Debug("request cancelled", "request_id", req.id, "path", req.out.path)

	if req.async == nil {
		// Keep the slot so the daemon's reply is consumed in order.
		req.abandoned = true
		c.complete(req, nil, cancelledError(req.ctx.Err()))
		return
	}

	// Without a change id there is nothing to abort yet; the abort is sent
	// when the id arrives.
	if req.async.changeID == "" {
		return
	}
	c.sendAbort(req)
}
