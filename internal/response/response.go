// Package response holds the typed response model and its wire
// serialization. The status line always goes out as HTTP/1.1; header lines
// keep the casing the handler stored.
package response

import (
	"fmt"
	"io"
	"strconv"

	"github.com/valyala/bytebufferpool"

	"httpwire/internal/body"
	"httpwire/internal/headers"
	"httpwire/internal/request"
)

type StatusCode int

const (
	OK                    StatusCode = 200
	CREATED               StatusCode = 201
	NO_CONTENT            StatusCode = 204
	MOVED_PERMANENTLY     StatusCode = 301
	FOUND                 StatusCode = 302
	BAD_REQUEST           StatusCode = 400
	FORBIDDEN             StatusCode = 403
	NOT_FOUND             StatusCode = 404
	INTERNAL_SERVER_ERROR StatusCode = 500
)

var StatusCodeName = map[StatusCode]string{
	OK:                    "OK",
	CREATED:               "Created",
	NO_CONTENT:            "No Content",
	MOVED_PERMANENTLY:     "Moved Permanently",
	FOUND:                 "Found",
	BAD_REQUEST:           "Bad Request",
	FORBIDDEN:             "Forbidden",
	NOT_FOUND:             "Not Found",
	INTERNAL_SERVER_ERROR: "Internal Server Error",
}

// Response is what a handler returns. Body may be empty; for non-chunked
// bodies the handler is responsible for setting Content-Length, the engine
// does not infer it.
type Response struct {
	StatusCode StatusCode
	// Reason overrides the canonical phrase; used for codes outside the
	// table. Empty means "look it up, or send nothing".
	Reason  string
	Headers *headers.HeaderMap
	Body    *body.Body
}

// New returns an empty-bodied response with the given status.
func New(code StatusCode) *Response {
	return &Response{
		StatusCode: code,
		Headers:    headers.New(),
		Body:       body.Empty(),
	}
}

// WithBytes returns a response carrying buf, with Content-Length set.
func WithBytes(code StatusCode, buf []byte) *Response {
	r := New(code)
	r.Headers.Set(headers.ContentLength, strconv.Itoa(len(buf)))
	r.Body = body.Once(buf)
	return r
}

// reason resolves the phrase for the status line.
func (r *Response) reason() string {
	if r.Reason != "" {
		return r.Reason
	}
	return StatusCodeName[r.StatusCode]
}

// headBufPool amortizes the head buffer across responses; one Write per
// head keeps small responses in a single TCP segment.
var headBufPool bytebufferpool.Pool

// EncodeHead serializes the status line and header block into a pooled
// buffer. The caller owns the buffer and must return it with PutHead.
func (r *Response) EncodeHead() *bytebufferpool.ByteBuffer {
	buf := headBufPool.Get()

	buf.WriteString("HTTP/1.1 ")
	buf.B = strconv.AppendInt(buf.B, int64(r.StatusCode), 10)
	buf.WriteByte(' ')
	buf.WriteString(r.reason())
	buf.WriteString("\r\n")

	for _, key := range r.Headers.Names() {
		for _, h := range r.Headers.Get(key) {
			buf.WriteString(h.Name)
			buf.WriteString(": ")
			buf.WriteString(h.Value)
			buf.WriteString("\r\n")
		}
	}
	buf.WriteString("\r\n")

	return buf
}

// PutHead returns a head buffer obtained from EncodeHead to the pool.
func PutHead(buf *bytebufferpool.ByteBuffer) {
	headBufPool.Put(buf)
}

// Framing derives how a response body is delimited from its headers.
// Responses with neither Content-Length nor chunked Transfer-Encoding are
// delimited by connection close.
func (r *Response) Framing() request.Framing {
	if te, ok := r.Headers.GetFirst(headers.TransferEncoding); ok {
		if headers.TokenListContains(te, headers.TokenChunked) {
			return request.FramingChunked()
		}
	}
	if cl, ok := r.Headers.GetFirst(headers.ContentLength); ok {
		if n, err := strconv.ParseUint(cl, 10, 64); err == nil {
			return request.FramingSized(n)
		}
	}
	return request.FramingUntilClose()
}

// WriteChunk writes one chunk of a chunked body: hex size, CRLF, data,
// CRLF. Empty input writes nothing, since a zero-size chunk would
// terminate the body.
func WriteChunk(w io.Writer, p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if _, err := fmt.Fprintf(w, "%x\r\n", len(p)); err != nil {
		return 0, err
	}
	n, err := w.Write(p)
	if err != nil {
		return n, err
	}
	_, err = io.WriteString(w, "\r\n")
	return n, err
}

// WriteChunkedDone terminates a chunked body with the zero chunk.
func WriteChunkedDone(w io.Writer) error {
	_, err := io.WriteString(w, "0\r\n\r\n")
	return err
}
