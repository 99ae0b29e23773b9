package snapd

import (
	"encoding/json"
	"mime"
	"net/http"
)

const (
	envelopeSync  = "sync"
	envelopeAsync = "async"
	envelopeError = "error"
)

// envelope is the JSON wrapper around every daemon response.
type envelope struct {
	Type       string          `json:"type"`
	StatusCode int             `json:"status-code"`
	Status     string          `json:"status"`
	Result     json.RawMessage `json:"result"`
	Change     string          `json:"change"`
}

type errorResult struct {
	Message string `json:"message"`
	Kind    string `json:"kind"`
}

func isJSON(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	return err == nil && mt == "application/json"
}

func parseEnvelope(f *frame) (*envelope, error) {
	ct := f.header.Get("Content-Type")
	if !isJSON(ct) {
		return nil, newError(KindReadFailed, nil, "unknown response content type %q", ct)
	}
	var env envelope
	if err := json.Unmarshal(f.body, &env); err != nil {
		return nil, newError(KindReadFailed, err, "unable to parse response")
	}
	if env.StatusCode == 0 {
		env.StatusCode = f.statusCode
	}
	return &env, nil
}

// envelopeErr converts an error envelope into an *Error.
func envelopeErr(env *envelope) *Error {
	var er errorResult
	if len(env.Result) > 0 {
		_ = json.Unmarshal(env.Result, &er)
	}
	msg := er.Message
	if msg == "" {
		msg = http.StatusText(env.StatusCode)
	}
	if msg == "" {
		msg = "snapd returned an error"
	}

	kind := KindFailed
	switch {
	case er.Kind == "login-required":
		kind = KindAuthDataRequired
	case er.Kind == "invalid-auth-data":
		kind = KindAuthDataInvalid
	case er.Kind == "two-factor-required":
		kind = KindTwoFactorRequired
	case er.Kind == "two-factor-failed":
		kind = KindTwoFactorInvalid
	case env.StatusCode == http.StatusBadRequest:
		kind = KindBadRequest
	case env.StatusCode == http.StatusUnauthorized || env.StatusCode == http.StatusForbidden:
		kind = KindPermissionDenied
	}
	return &Error{Kind: kind, Message: msg}
}

// syncResult validates a sync envelope and returns its result value.
func syncResult(f *frame) (json.RawMessage, error) {
	env, err := parseEnvelope(f)
	if err != nil {
		return nil, err
	}
	switch env.Type {
	case envelopeSync:
		return env.Result, nil
	case envelopeError:
		return nil, envelopeErr(env)
	default:
		return nil, newError(KindFailed, nil, "unexpected response type %q", env.Type)
	}
}

// asyncChangeID validates an async envelope and returns its change id.
func asyncChangeID(f *frame) (string, error) {
	env, err := parseEnvelope(f)
	if err != nil {
		return "", err
	}
	switch env.Type {
	case envelopeAsync:
		if env.Change == "" {
			return "", newError(KindReadFailed, nil, "async response missing change id")
		}
		return env.Change, nil
	case envelopeError:
		return "", envelopeErr(env)
	default:
		return "", newError(KindFailed, nil, "unexpected response type %q", env.Type)
	}
}

// Decode unmarshals a sync result value into T.
func Decode[T any](raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 {
		return v, newError(KindReadFailed, nil, "empty result")
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, newError(KindReadFailed, err, "unable to decode result")
	}
	return v, nil
}
