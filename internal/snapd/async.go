package snapd

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type changeState int

const (
	statePendingAccept changeState = iota
	statePolling
	stateAborting
	stateReadyOk
	stateReadyError
)

func (s changeState) String() string {
	switch s {
	case statePendingAccept:
		return "pending-accept"
	case statePolling:
		return "polling"
	case stateAborting:
		return "aborting"
	case stateReadyOk:
		return "ready"
	case stateReadyError:
		return "ready-error"
	default:
		return "unknown"
	}
}

// asyncState tracks the change behind an async request.
type asyncState struct {
	state    changeState
	changeID string
	progress ProgressFunc
	// last is the snapshot most recently handed to progress.
	last *Change

	timer *time.Timer
	// pollSeq invalidates timer callbacks that were already posted when
	// their timer was replaced or stopped.
	pollSeq uint64
	// inflight counts poll and abort requests awaiting a response.
	inflight  int
	sentAbort bool

	data json.RawMessage
	err  string
}

func (a *asyncState) stopTimer() {
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.pollSeq++
}

// handleAccept processes the daemon's answer to the request that started a
// change.
func (c *Client) handleAccept(req *request, f *frame) {
	id, err := asyncChangeID(f)
	if err != nil {
		c.finishAsync(req, newResult(f), err)
		return
	}

	a := req.async
	a.changeID = id
	c.log.Debug("change accepted", "request_id", req.id, "change", id)

	if req.ctx.Err() != nil {
		c.sendAbort(req)
		return
	}
	a.state = statePolling
	c.schedulePoll(req)
}

func (c *Client) schedulePoll(req *request) {
	if req.completed || c.closed {
		return
	}
	a := req.async
	a.stopTimer()
	seq := a.pollSeq
	a.timer = time.AfterFunc(c.opts.pollInterval, func() {
		c.loop.post(func() { c.poll(req, seq) })
	})
}

func (c *Client) poll(req *request, seq uint64) {
	a := req.async
	if seq != a.pollSeq {
		return
	}
	a.timer = nil
	if req.completed || c.closed || a.inflight > 0 {
		return
	}
	if req.ctx.Err() != nil && !a.sentAbort {
		c.sendAbort(req)
		return
	}
	c.metrics.polled()
	c.sendChild(req, rolePoll)
}

// sendAbort asks the daemon to abort the change. It is sent at most once
// per successful write; the abort response drives further polling.
func (c *Client) sendAbort(req *request) {
	a := req.async
	if a.sentAbort || req.completed {
		return
	}
	a.sentAbort = true
	a.state = stateAborting
	a.stopTimer()
	c.metrics.aborted()
	c.log.Info("aborting change", "request_id", req.id, "change", a.changeID)
	c.sendChild(req, roleAbort)
}

func (c *Client) sendChild(parent *request, role requestRole) {
	a := parent.async
	var (
		out *outgoing
		err error
	)
	if role == roleAbort {
		out, err = AbortChange{ID: a.changeID}.outgoing()
	} else {
		out, err = GetChange{ID: a.changeID}.outgoing()
	}
	if err != nil {
		c.finishAsync(parent, nil, newError(KindFailed, err, "unable to build change request"))
		return
	}

	child := &request{
		id:     uuid.NewString(),
		ctx:    context.Background(),
		out:    out,
		role:   role,
		start:  time.Now(),
		parent: parent,
	}
	a.inflight++
	c.send(child)
}

// childFailed handles a poll or abort request lost to a transport error.
// The parent never fails for it; it polls again, over a new connection if
// need be.
func (c *Client) childFailed(child *request, err error) {
	parent := child.parent
	a := parent.async
	a.inflight--
	if child.role == roleAbort {
		a.sentAbort = false
	}
	if parent.completed {
		return
	}
	c.log.Warn("change request failed, will retry",
		"request_id", parent.id,
		"change", a.changeID,
		"role", child.role.String(),
		"error", err,
	)
	if a.inflight == 0 {
		c.schedulePoll(parent)
	}
}

// handleChangeResponse processes the change snapshot returned for a poll or
// abort request.
func (c *Client) handleChangeResponse(child *request, f *frame) {
	parent := child.parent
	a := parent.async
	a.inflight--
	if parent.completed {
		return
	}

	raw, err := syncResult(f)
	if err != nil {
		if child.role == roleAbort {
			// Typically the change is already finishing; keep polling.
			c.log.Warn("abort rejected", "request_id", parent.id, "change", a.changeID, "error", err)
			if a.inflight == 0 {
				c.schedulePoll(parent)
			}
			return
		}
		c.finishAsync(parent, newResult(f), err)
		return
	}

	cr, err := decodeChange(raw)
	if err != nil {
		c.finishAsync(parent, newResult(f), newError(KindReadFailed, err, "unable to parse change"))
		return
	}
	if cr.ID != a.changeID {
		c.finishAsync(parent, newResult(f), newError(KindReadFailed, nil, "unexpected change ID %q, expected %q", cr.ID, a.changeID))
		return
	}

	snapshot := cr.Change.Clone()
	if !snapshot.Equal(a.last) {
		a.last = snapshot
		if progress := a.progress; progress != nil {
			delivered := snapshot.Clone()
			c.metrics.progressed()
			c.loop.post(func() { progress(delivered) })
		}
	}

	if !cr.Ready {
		if a.inflight == 0 {
			c.schedulePoll(parent)
		}
		return
	}

	a.data = cr.Data
	a.err = cr.Err

	res := newResult(f)
	res.ChangeID = a.changeID
	res.Change = snapshot.Clone()
	res.Data = cr.Data

	var ferr error
	if cr.Err != "" {
		ferr = newError(KindFailed, nil, "%s", cr.Err)
	}
	c.finishAsync(parent, res, ferr)
}

// finishAsync completes an async request. Cancellation of the caller's
// context takes precedence over whatever the daemon reported.
func (c *Client) finishAsync(req *request, res *Result, err error) {
	if ctxErr := req.ctx.Err(); ctxErr != nil {
		err = cancelledError(ctxErr)
	}
	if res != nil && res.ChangeID == "" {
		res.ChangeID = req.async.changeID
	}
	c.removeRequest(req)
	c.complete(req, res, err)
}
