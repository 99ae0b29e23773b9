package snapd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"golang.org/x/sys/unix"
)

const (
	readSize  = 1024
	writeSize = 64 * 1024
)

// send writes req on the current connection, connecting first if needed,
// and appends it to the queue of requests awaiting a response.
func (c *Client) send(req *request) {
	if c.conn == nil {
		if err := c.connect(); err != nil {
			c.sendFailed(req, err)
			return
		}
	}

	wire := c.encode(req.out)
	c.queue = append(c.queue, req)
	c.log.Debug("sending request",
		"request_id", req.id,
		"role", req.role.String(),
		"method", req.out.method,
		"path", req.out.path,
		"bytes", len(wire),
	)

	if err := c.write(wire); err != nil {
		c.removeRequest(req)
		if len(c.queue) == 0 {
			// A partial write leaves the daemon mid-request; start over on
			// a fresh socket. With responses still owed, keep reading.
			c.closeConn()
		}
		c.sendFailed(req, newError(KindWriteFailed, err, "failed to write to snapd"))
	}
}

// sendFailed reports a request that never made it onto the wire.
func (c *Client) sendFailed(req *request, err error) {
	if req.role != roleUser {
		c.childFailed(req, err)
		return
	}
	c.complete(req, nil, err)
}

func (c *Client) connect() error {
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.connectTimeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", c.opts.socketPath)
	if err != nil {
		c.log.Warn("failed to connect to snapd", "socket", c.opts.socketPath, "error", err)
		return newError(KindConnectionFailed, err, "%s", dialFailure(c.opts.socketPath, err))
	}

	c.conn = conn
	c.connGen++
	c.buf.reset()
	c.metrics.connected()
	c.log.Info("connected to snapd", "socket", c.opts.socketPath)

	go c.readLoop(conn, c.connGen)
	return nil
}

func dialFailure(path string, err error) string {
	switch {
	case errors.Is(err, unix.ENOENT):
		return fmt.Sprintf("snapd socket %s does not exist", path)
	case errors.Is(err, unix.ECONNREFUSED):
		return fmt.Sprintf("snapd is not accepting connections on %s", path)
	case errors.Is(err, unix.EACCES):
		return fmt.Sprintf("no permission to access %s", path)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Sprintf("timed out connecting to %s", path)
	default:
		return "unable to connect to snapd"
	}
}

// readLoop forwards everything read from conn to the event loop. gen ties
// the events to this connection so late events from a replaced socket are
// ignored.
func (c *Client) readLoop(conn net.Conn, gen uint64) {
	buf := make([]byte, readSize)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			data := cloneBytes(buf[:n])
			if !c.loop.post(func() { c.onRead(gen, data) }) {
				return
			}
		}
		if err != nil {
			c.loop.post(func() { c.onReadError(gen, err) })
			return
		}
	}
}

// write sends wire in slices, extending the deadline after each one so large
// uploads only fail when the daemon stops reading.
func (c *Client) write(wire []byte) error {
	for len(wire) > 0 {
		n := min(len(wire), writeSize)
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.opts.writeTimeout)); err != nil {
			return err
		}
		written, err := c.conn.Write(wire[:n])
		if err != nil {
			return err
		}
		wire = wire[written:]
	}
	return nil
}

func (c *Client) closeConn() {
	if c.conn == nil {
		return
	}
	_ = c.conn.Close()
	c.conn = nil
	c.buf.reset()
	c.metrics.disconnected()
	c.log.Info("disconnected from snapd", "socket", c.opts.socketPath)
}

// encode serializes a request in the daemon's HTTP/1.1 dialect.
func (c *Client) encode(out *outgoing) []byte {
	var b bytes.Buffer
	b.Grow(256 + len(out.body))

	fmt.Fprintf(&b, "%s %s HTTP/1.1\r\n", out.method, out.target())
	writeHeader(&b, "Host", "")
	writeHeader(&b, "Connection", "keep-alive")
	writeHeader(&b, "User-Agent", c.opts.userAgent)
	writeHeader(&b, "Accept-Language", c.acceptLanguage)
	if c.auth != nil && c.auth.Macaroon != "" {
		writeHeader(&b, "Authorization", authorization(c.auth))
	}
	if c.opts.allowInteraction {
		writeHeader(&b, "X-Allow-Interaction", "true")
	}
	if out.contentType != "" {
		writeHeader(&b, "Content-Type", out.contentType)
	}
	if out.body != nil {
		writeHeader(&b, "Content-Length", strconv.Itoa(len(out.body)))
	}
	b.WriteString("\r\n")
	b.Write(out.body)
	return b.Bytes()
}

func writeHeader(b *bytes.Buffer, name, value string) {
	b.WriteString(name)
	b.WriteString(": ")
	b.WriteString(value)
	b.WriteString("\r\n")
}

func authorization(auth *AuthData) string {
	var b bytes.Buffer
	fmt.Fprintf(&b, "Macaroon root=%q", auth.Macaroon)
	for _, d := range auth.Discharges {
		fmt.Fprintf(&b, ",discharge=%q", d)
	}
	return b.String()
}
