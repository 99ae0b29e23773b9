package snapd

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
)

// frame is one complete HTTP response read from the socket.
type frame struct {
	statusCode int
	status     string
	header     http.Header
	body       []byte
}

type bodyFraming int

const (
	framingNone bodyFraming = iota
	framingEOF
	framingChunked
	framingLength
)

var (
	headerEnd = []byte("\r\n\r\n")
	crlf      = []byte("\r\n")
)

var errMalformedChunk = errors.New("malformed chunk")

// decodeFrame tries to decode one response from the front of buf. It returns
// a nil frame and no error when more data is needed. eof reports that the
// peer has closed the stream, which completes EOF-framed bodies.
//
// Chunked bodies are coalesced inside buf, so buf must not be read again
// beyond the returned consumed count.
func decodeFrame(buf []byte, eof bool) (*frame, int, error) {
	idx := bytes.Index(buf, headerEnd)
	if idx < 0 {
		return nil, 0, nil
	}
	bodyStart := idx + len(headerEnd)

	f, err := parseHead(buf[:bodyStart])
	if err != nil {
		return nil, 0, err
	}

	framing, length, err := bodyFramingOf(f)
	if err != nil {
		return nil, 0, err
	}

	switch framing {
	case framingNone:
		return f, bodyStart, nil

	case framingLength:
		if len(buf)-bodyStart < length {
			return nil, 0, nil
		}
		f.body = cloneBytes(buf[bodyStart : bodyStart+length])
		return f, bodyStart + length, nil

	case framingEOF:
		if !eof {
			return nil, 0, nil
		}
		f.body = cloneBytes(buf[bodyStart:])
		return f, len(buf), nil

	default:
		spans, end, err := scanChunks(buf, bodyStart)
		if err != nil || spans == nil {
			return nil, 0, err
		}
		f.body = cloneBytes(compactChunks(buf, bodyStart, spans))
		return f, end, nil
	}
}

func parseHead(head []byte) (*frame, error) {
	r := textproto.NewReader(bufio.NewReader(bytes.NewReader(head)))

	line, err := r.ReadLine()
	if err != nil {
		return nil, fmt.Errorf("read status line: %w", err)
	}
	proto, rest, ok := strings.Cut(line, " ")
	if !ok || !strings.HasPrefix(proto, "HTTP/") {
		return nil, fmt.Errorf("malformed status line %q", line)
	}
	codeText, _, _ := strings.Cut(rest, " ")
	code, err := strconv.Atoi(codeText)
	if err != nil || code < 100 || code > 999 {
		return nil, fmt.Errorf("malformed status code in %q", line)
	}

	mh, err := r.ReadMIMEHeader()
	if err != nil {
		return nil, fmt.Errorf("read headers: %w", err)
	}

	return &frame{
		statusCode: code,
		status:     strings.TrimSpace(rest),
		header:     http.Header(mh),
	}, nil
}

func bodyFramingOf(f *frame) (bodyFraming, int, error) {
	if f.statusCode < 200 || f.statusCode == http.StatusNoContent || f.statusCode == http.StatusNotModified {
		return framingNone, 0, nil
	}

	if te := f.header.Values("Transfer-Encoding"); len(te) > 0 {
		codings := strings.Split(strings.Join(te, ","), ",")
		last := strings.ToLower(strings.TrimSpace(codings[len(codings)-1]))
		switch last {
		case "chunked":
			return framingChunked, 0, nil
		case "identity":
		default:
			return 0, 0, fmt.Errorf("unknown transfer encoding %q", last)
		}
	}

	if cl := f.header.Get("Content-Length"); cl != "" {
		n, err := strconv.Atoi(strings.TrimSpace(cl))
		if err != nil || n < 0 {
			return 0, 0, fmt.Errorf("invalid content length %q", cl)
		}
		return framingLength, n, nil
	}

	return framingEOF, 0, nil
}

type chunkSpan struct {
	start, end int
}

// scanChunks walks a chunked body starting at off. It returns nil spans and
// no error when the body is incomplete; end is the offset just past the
// terminating empty line of the trailer section.
func scanChunks(buf []byte, off int) ([]chunkSpan, int, error) {
	spans := []chunkSpan{}
	for {
		eol := bytes.Index(buf[off:], crlf)
		if eol < 0 {
			return nil, 0, nil
		}
		sizeText, _, _ := strings.Cut(string(buf[off:off+eol]), ";")
		size, err := strconv.ParseUint(strings.TrimSpace(sizeText), 16, 31)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: bad size %q", errMalformedChunk, sizeText)
		}
		off += eol + len(crlf)

		if size == 0 {
			break
		}

		dataEnd := off + int(size)
		if len(buf) < dataEnd+len(crlf) {
			return nil, 0, nil
		}
		if !bytes.Equal(buf[dataEnd:dataEnd+len(crlf)], crlf) {
			return nil, 0, fmt.Errorf("%w: missing CRLF after chunk data", errMalformedChunk)
		}
		spans = append(spans, chunkSpan{start: off, end: dataEnd})
		off = dataEnd + len(crlf)
	}

	// Trailer fields, terminated by an empty line.
	for {
		eol := bytes.Index(buf[off:], crlf)
		if eol < 0 {
			return nil, 0, nil
		}
		off += eol + len(crlf)
		if eol == 0 {
			return spans, off, nil
		}
	}
}

// compactChunks moves the chunk payloads down so they form one contiguous
// body starting at dst, and returns that body.
func compactChunks(buf []byte, dst int, spans []chunkSpan) []byte {
	w := dst
	for _, s := range spans {
		w += copy(buf[w:], buf[s.start:s.end])
	}
	return buf[dst:w]
}

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
