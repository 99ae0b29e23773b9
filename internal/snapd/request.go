package snapd

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Result is what a completed request hands back to its caller.
type Result struct {
	StatusCode  int
	Status      string
	Header      http.Header
	ContentType string
	// Body is the raw response body. For async requests it is the body of
	// the final change poll.
	Body []byte
	// Value is the "result" member of a sync envelope.
	Value json.RawMessage

	// ChangeID, Change and Data are set for async requests. Data is the
	// "data" member of the ready change, if any.
	ChangeID string
	Change   *Change
	Data     json.RawMessage
}

func newResult(f *frame) *Result {
	return &Result{
		StatusCode:  f.statusCode,
		Status:      f.status,
		Header:      f.header,
		ContentType: f.header.Get("Content-Type"),
		Body:        f.body,
	}
}

// CompletionFunc receives the outcome of a request. It runs exactly once, on
// the client's event loop.
type CompletionFunc func(*Result, error)

// ProgressFunc receives change snapshots of an async request whenever they
// differ from the previously delivered one. It runs on the client's event
// loop.
type ProgressFunc func(*Change)

type param struct {
	key, value string
}

// outgoing describes the HTTP request an endpoint produces.
type outgoing struct {
	method      string
	path        string
	query       []param
	contentType string
	body        []byte

	// async marks endpoints that answer with a change id to be polled.
	async bool
	// raw marks endpoints whose successful response is not a JSON envelope.
	raw bool
}

func (o *outgoing) target() string {
	if len(o.query) == 0 {
		return o.path
	}
	parts := make([]string, 0, len(o.query))
	for _, p := range o.query {
		parts = append(parts, url.QueryEscape(p.key)+"="+url.QueryEscape(p.value))
	}
	return o.path + "?" + strings.Join(parts, "&")
}

type requestRole int

const (
	roleUser requestRole = iota
	rolePoll
	roleAbort
)

func (r requestRole) String() string {
	switch r {
	case rolePoll:
		return "poll"
	case roleAbort:
		return "abort"
	default:
		return "user"
	}
}

// request is one logical in-flight request. All fields are owned by the
// event loop.
type request struct {
	id    string
	ctx   context.Context
	out   *outgoing
	role  requestRole
	start time.Time

	done CompletionFunc
	// stopCancel unregisters the context.AfterFunc watching ctx.
	stopCancel func() bool

	// async is nil for sync requests.
	async *asyncState
	// parent is the async request a poll or abort request works for.
	parent *request

	completed bool
	// abandoned requests have already completed (cancelled) but still own
	// a slot in the queue so their late response is consumed.
	abandoned bool
}

// eligible reports whether the next response frame may belong to r.
func (r *request) eligible() bool {
	return r.async == nil || r.async.changeID == ""
}
