package snapd

import (
	"errors"
	"io"
	"net/http"
	"slices"
)

func (c *Client) onRead(gen uint64, data []byte) {
	if gen != c.connGen || c.conn == nil {
		return
	}
	c.buf.write(data)
	c.drainFrames(false)
}

func (c *Client) onReadError(gen uint64, err error) {
	if gen != c.connGen || c.conn == nil {
		return
	}
	if errors.Is(err, io.EOF) {
		// A response without length or chunking ends with the stream.
		c.drainFrames(true)
		if gen != c.connGen || c.conn == nil {
			return
		}
		c.failConnection(newError(KindReadFailed, nil, "snapd connection closed"))
		return
	}
	c.log.Error("failed to read from snapd", "error", err)
	c.failConnection(newError(KindReadFailed, err, "failed to read from snapd"))
}

// drainFrames decodes and dispatches every complete response in the buffer.
func (c *Client) drainFrames(eof bool) {
	gen := c.connGen
	for c.conn != nil && gen == c.connGen && c.buf.len() > 0 {
		f, n, err := decodeFrame(c.buf.bytes(), eof)
		if err != nil {
			c.log.Error("failed to decode response", "error", err, "buffered", c.buf.len())
			c.failConnection(newError(KindReadFailed, err, "failed to parse response"))
			return
		}
		if f == nil {
			return
		}
		c.buf.consume(n)
		c.dispatch(f)
	}
}

// dispatch hands a response to the oldest request that can still receive
// one. Async requests holding a change id never receive frames directly;
// their polls do.
func (c *Client) dispatch(f *frame) {
	idx := slices.IndexFunc(c.queue, (*request).eligible)
	if idx < 0 {
		c.metrics.dropped()
		c.log.Warn("dropping response with no pending request", "status", f.statusCode, "bytes", len(f.body))
		return
	}
	req := c.queue[idx]

	switch {
	case req.role != roleUser:
		c.queue = slices.Delete(c.queue, idx, idx+1)
		c.handleChangeResponse(req, f)

	case req.async != nil:
		c.handleAccept(req, f)

	default:
		c.queue = slices.Delete(c.queue, idx, idx+1)
		if req.abandoned {
			c.log.Debug("discarding response to cancelled request", "request_id", req.id, "status", f.statusCode)
			return
		}
		res, err := syncOutcome(req.out, f)
		c.complete(req, res, err)
	}
}

func syncOutcome(out *outgoing, f *frame) (*Result, error) {
	res := newResult(f)
	if out.raw && !isJSON(res.ContentType) {
		if f.statusCode != http.StatusOK {
			return res, newError(KindReadFailed, nil, "got response %d", f.statusCode)
		}
		return res, nil
	}

	v, err := syncResult(f)
	if err != nil {
		return res, err
	}
	if out.raw {
		return res, newError(KindReadFailed, nil, "unknown response")
	}
	res.Value = v
	return res, nil
}

func (c *Client) removeRequest(req *request) {
	if i := slices.Index(c.queue, req); i >= 0 {
		c.queue = slices.Delete(c.queue, i, i+1)
	}
}

// failConnection tears the socket down after a fatal I/O or framing error.
// Requests waiting for a response fail, except async requests that already
// hold a change id: they stay queued and resume polling on a new
// connection.
func (c *Client) failConnection(err *Error) {
	c.closeConn()

	pending := c.queue
	c.queue = nil
	for _, r := range pending {
		switch {
		case r.role != roleUser:
			c.childFailed(r, err)
		case r.async != nil && r.async.changeID != "":
			c.queue = append(c.queue, r)
		default:
			c.complete(r, nil, err)
		}
	}

	for _, r := range c.queue {
		if a := r.async; !r.completed && a.inflight == 0 && a.timer == nil {
			c.schedulePoll(r)
		}
	}
}
