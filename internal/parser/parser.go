// Package parser decodes HTTP/1.x request and response heads from raw
// bytes. All parsed fields are sub-slices of the input buffer; nothing is
// copied except the header list itself. Callers that need the fields past
// the lifetime of the buffer must promote them (see internal/request).
package parser

import (
	"bytes"
	"errors"
)

// Predefined errors for the different ways a message head can be rejected.
var (
	// ErrIncomplete means the buffer ends before the head does. Read more
	// bytes and call again with the same accumulated buffer; the parser
	// restarts from the beginning, it does not keep partial progress.
	ErrIncomplete = errors.New("incomplete message head")

	ErrBadRequest    = errors.New("malformed request")
	ErrBadResponse   = errors.New("malformed response")
	ErrBadHeaderName = errors.New("malformed header field name")
	ErrBadFieldValue = errors.New("malformed header field value")
	ErrTooLarge      = errors.New("message head exceeds size limit")
)

// RawHeader is a single field line. Name and Value alias the parse buffer.
// Value has optional whitespace trimmed from both ends.
type RawHeader struct {
	Name  []byte
	Value []byte
}

// RawRequest is a zero-copy view of a parsed request head. Valid only as
// long as the buffer passed to ParseRequest is neither mutated nor advanced.
type RawRequest struct {
	Method  []byte
	URI     []byte
	Version []byte // the "d.d" digits, e.g. "1.1"
	Headers []RawHeader
}

// Reset clears the view for reuse, keeping the header slice's capacity.
func (r *RawRequest) Reset() {
	r.Method = nil
	r.URI = nil
	r.Version = nil
	r.Headers = r.Headers[:0]
}

// RawResponse is a zero-copy view of a parsed response head.
type RawResponse struct {
	Version []byte // the "d.d" digits
	Status  []byte // exactly three ASCII digits
	Reason  []byte // may be empty
	Headers []RawHeader
}

// Reset clears the view for reuse, keeping the header slice's capacity.
func (r *RawResponse) Reset() {
	r.Version = nil
	r.Status = nil
	r.Reason = nil
	r.Headers = r.Headers[:0]
}

// StatusCode returns the numeric status. Valid after a successful parse.
func (r *RawResponse) StatusCode() int {
	return int(r.Status[0]-'0')*100 + int(r.Status[1]-'0')*10 + int(r.Status[2]-'0')
}

var versionMark = []byte("HTTP/")

// tchar lookup per RFC 9110: ALPHA / DIGIT / "!#$%&'*+-.^_`|~"
var tchar [128]bool

func init() {
	for c := byte('0'); c <= '9'; c++ {
		tchar[c] = true
	}
	for c := byte('A'); c <= 'Z'; c++ {
		tchar[c] = true
	}
	for c := byte('a'); c <= 'z'; c++ {
		tchar[c] = true
	}
	for _, c := range []byte("!#$%&'*+-.^_`|~") {
		tchar[c] = true
	}
}

func isTchar(c byte) bool { return c < 128 && tchar[c] }

// ParseRequest parses one request head from buf into req. On success it
// returns the number of bytes consumed; buf[n:] is the start of the body.
// On ErrIncomplete the caller must supply more bytes and retry. Any other
// error is fatal for the connection.
//
// One leading CRLF is tolerated (clients that send a stray CRLF after the
// previous request's body).
func ParseRequest(buf []byte, req *RawRequest) (int, error) {
	req.Reset()

	pos := 0
	if len(buf) > 0 && buf[0] == '\r' {
		if len(buf) < 2 {
			return 0, ErrIncomplete
		}
		if buf[1] != '\n' {
			return 0, ErrBadRequest
		}
		pos = 2
	}

	n, err := parseRequestLine(buf[pos:], req)
	if err != nil {
		return 0, err
	}
	pos += n

	n, err = parseHeaderBlock(buf[pos:], &req.Headers)
	if err != nil {
		return 0, err
	}
	return pos + n, nil
}

// ParseResponse parses one response head from buf into resp. Contract is
// the same as ParseRequest, except no leading CRLF is tolerated.
func ParseResponse(buf []byte, resp *RawResponse) (int, error) {
	resp.Reset()

	n, err := parseStatusLine(buf, resp)
	if err != nil {
		return 0, err
	}

	m, err := parseHeaderBlock(buf[n:], &resp.Headers)
	if err != nil {
		return 0, err
	}
	return n + m, nil
}

// parseRequestLine decodes "method SP request-target SP HTTP/d.d CRLF".
func parseRequestLine(buf []byte, req *RawRequest) (int, error) {
	// Method: one or more tchar, terminated by SP.
	i := 0
	for i < len(buf) && isTchar(buf[i]) {
		i++
	}
	if i == len(buf) {
		return 0, ErrIncomplete
	}
	if i == 0 || buf[i] != ' ' {
		return 0, ErrBadRequest
	}
	req.Method = buf[:i]
	pos := i + 1

	// Request-target: non-SP, non-CTL bytes until SP.
	sp := bytes.IndexByte(buf[pos:], ' ')
	if sp == -1 {
		// No SP yet; a control byte in what we do have is already fatal.
		if ctlIndex(buf[pos:]) != -1 {
			return 0, ErrBadRequest
		}
		return 0, ErrIncomplete
	}
	if sp == 0 {
		return 0, ErrBadRequest
	}
	target := buf[pos : pos+sp]
	if ctlIndex(target) != -1 {
		return 0, ErrBadRequest
	}
	req.URI = target
	pos += sp + 1

	ver, n, err := parseVersion(buf[pos:], ErrBadRequest)
	if err != nil {
		return 0, err
	}
	req.Version = ver
	pos += n

	if len(buf) < pos+2 {
		return 0, ErrIncomplete
	}
	if buf[pos] != '\r' || buf[pos+1] != '\n' {
		return 0, ErrBadRequest
	}
	return pos + 2, nil
}

// parseStatusLine decodes "HTTP/d.d SP 3DIGIT SP reason CRLF". The reason
// may be empty, in which case the SP before it may be absent.
func parseStatusLine(buf []byte, resp *RawResponse) (int, error) {
	ver, pos, err := parseVersion(buf, ErrBadResponse)
	if err != nil {
		return 0, err
	}
	resp.Version = ver

	if len(buf) < pos+1 {
		return 0, ErrIncomplete
	}
	if buf[pos] != ' ' {
		return 0, ErrBadResponse
	}
	pos++

	if len(buf) < pos+3 {
		return 0, ErrIncomplete
	}
	status := buf[pos : pos+3]
	for _, d := range status {
		if d < '0' || d > '9' {
			return 0, ErrBadResponse
		}
	}
	resp.Status = status
	pos += 3

	if len(buf) < pos+1 {
		return 0, ErrIncomplete
	}
	switch buf[pos] {
	case ' ':
		pos++
		cr := bytes.IndexByte(buf[pos:], '\r')
		if cr == -1 {
			return 0, ErrIncomplete
		}
		resp.Reason = buf[pos : pos+cr]
		pos += cr
	case '\r':
		resp.Reason = buf[pos:pos] // empty reason, SP omitted
	default:
		return 0, ErrBadResponse
	}

	if len(buf) < pos+2 {
		return 0, ErrIncomplete
	}
	if buf[pos] != '\r' || buf[pos+1] != '\n' {
		return 0, ErrBadResponse
	}
	return pos + 2, nil
}

// parseVersion matches the literal "HTTP/" followed by DIGIT "." DIGIT and
// returns the three digit bytes. badErr is the error flavor to report on a
// syntax mismatch (request vs response).
func parseVersion(buf []byte, badErr error) ([]byte, int, error) {
	if len(buf) < len(versionMark)+3 {
		// Still match as far as the bytes go, so garbage fails fast.
		if !bytes.HasPrefix(versionMark, buf) && !bytes.HasPrefix(buf, versionMark) {
			return nil, 0, badErr
		}
		return nil, 0, ErrIncomplete
	}
	if !bytes.HasPrefix(buf, versionMark) {
		return nil, 0, badErr
	}
	v := buf[len(versionMark) : len(versionMark)+3]
	if v[0] < '0' || v[0] > '9' || v[1] != '.' || v[2] < '0' || v[2] > '9' {
		return nil, 0, badErr
	}
	return v, len(versionMark) + 3, nil
}

// parseHeaderBlock decodes field lines up to and including the bare CRLF
// terminator. Appends to *hdrs and returns bytes consumed.
func parseHeaderBlock(buf []byte, hdrs *[]RawHeader) (int, error) {
	pos := 0
	for {
		if len(buf) < pos+2 {
			return 0, ErrIncomplete
		}
		if buf[pos] == '\r' {
			if buf[pos+1] != '\n' {
				return 0, ErrBadHeaderName
			}
			return pos + 2, nil
		}

		// Field name: one or more tchar immediately followed by ':'.
		// Whitespace before the colon is rejected outright; it is the
		// classic request-smuggling vector.
		i := pos
		for i < len(buf) && isTchar(buf[i]) {
			i++
		}
		if i == len(buf) {
			return 0, ErrIncomplete
		}
		if i == pos || buf[i] != ':' {
			return 0, ErrBadHeaderName
		}
		name := buf[pos:i]
		pos = i + 1

		// Locate the line end first, then vet the bytes in between.
		lf := bytes.IndexByte(buf[pos:], '\n')
		if lf == -1 {
			return 0, ErrIncomplete
		}
		if lf == 0 || buf[pos+lf-1] != '\r' {
			return 0, ErrBadFieldValue
		}
		value := trimOWS(buf[pos : pos+lf-1])
		if badValueByte(value) {
			return 0, ErrBadFieldValue
		}

		*hdrs = append(*hdrs, RawHeader{Name: name, Value: value})
		pos += lf + 1
	}
}

// ctlIndex returns the index of the first control byte, or -1.
func ctlIndex(b []byte) int {
	for i, c := range b {
		if c < 0x20 || c == 0x7f {
			return i
		}
	}
	return -1
}

// badValueByte reports whether the trimmed field value contains CR, LF or
// NUL. Obsolete line folding is not accepted.
func badValueByte(b []byte) bool {
	for _, c := range b {
		if c == '\r' || c == '\n' || c == 0 {
			return true
		}
	}
	return false
}

func trimOWS(b []byte) []byte {
	for len(b) > 0 && (b[0] == ' ' || b[0] == '\t') {
		b = b[1:]
	}
	for len(b) > 0 && (b[len(b)-1] == ' ' || b[len(b)-1] == '\t') {
		b = b[:len(b)-1]
	}
	return b
}
