// Package request holds the typed request model: method and version
// variants, the owned header map, and the body-framing decision derived
// from the headers.
package request

import (
	"errors"
	"strconv"

	"github.com/intuitivelabs/bytescase"

	"httpwire/internal/body"
	"httpwire/internal/headers"
	"httpwire/internal/parser"
)

// Predefined errors for header interpretation failures.
var (
	ErrBadRequest = errors.New("malformed request header interpretation")

	// ErrFramingConflict rejects messages carrying both Content-Length and
	// Transfer-Encoding; honoring either one enables request smuggling.
	ErrFramingConflict = errors.New("content-length conflicts with transfer-encoding")
)

// Method is the request method variant. Unknown methods are carried
// verbatim and returned by String.
type Method struct {
	kind methodKind
	raw  string
}

type methodKind int

const (
	methodUnknown methodKind = iota
	methodGET
	methodHEAD
	methodPOST
	methodPUT
	methodDELETE
	methodCONNECT
	methodOPTIONS
	methodTRACE
)

var (
	GET     = Method{kind: methodGET, raw: "GET"}
	HEAD    = Method{kind: methodHEAD, raw: "HEAD"}
	POST    = Method{kind: methodPOST, raw: "POST"}
	PUT     = Method{kind: methodPUT, raw: "PUT"}
	DELETE  = Method{kind: methodDELETE, raw: "DELETE"}
	CONNECT = Method{kind: methodCONNECT, raw: "CONNECT"}
	OPTIONS = Method{kind: methodOPTIONS, raw: "OPTIONS"}
	TRACE   = Method{kind: methodTRACE, raw: "TRACE"}
)

var knownMethods = map[string]Method{
	"GET": GET, "HEAD": HEAD, "POST": POST, "PUT": PUT,
	"DELETE": DELETE, "CONNECT": CONNECT, "OPTIONS": OPTIONS, "TRACE": TRACE,
}

// MethodFromBytes maps the wire bytes to a method variant.
func MethodFromBytes(b []byte) Method {
	if m, ok := knownMethods[string(b)]; ok {
		return m
	}
	return Method{kind: methodUnknown, raw: string(b)}
}

func (m Method) String() string { return m.raw }

// Known reports whether the method is one of the registered variants.
func (m Method) Known() bool { return m.kind != methodUnknown }

// Version is the protocol version variant. Unrecognized but well-formed
// versions keep their digits and behave as 1.1.
type Version struct {
	raw string
}

var (
	V1_0 = Version{raw: "1.0"}
	V1_1 = Version{raw: "1.1"}
)

// VersionFromBytes maps the two version digits ("1.0", "1.1", "2.0", ...)
// to a Version.
func VersionFromBytes(b []byte) Version {
	switch string(b) {
	case "1.0":
		return V1_0
	case "1.1":
		return V1_1
	default:
		return Version{raw: string(b)}
	}
}

func (v Version) String() string { return "HTTP/" + v.raw }

// KeepAliveDefault reports whether connections are persistent absent an
// explicit Connection header. Only 1.0 defaults to close.
func (v Version) KeepAliveDefault() bool { return v != V1_0 }

// Framing is the body-delimitation decision for one message.
type Framing struct {
	kind framingKind
	size uint64
}

type framingKind int

const (
	framingNone framingKind = iota
	framingSized
	framingChunked
	framingUntilClose
)

func FramingNone() Framing          { return Framing{kind: framingNone} }
func FramingSized(n uint64) Framing { return Framing{kind: framingSized, size: n} }
func FramingChunked() Framing       { return Framing{kind: framingChunked} }
func FramingUntilClose() Framing    { return Framing{kind: framingUntilClose} }

func (f Framing) IsNone() bool       { return f.kind == framingNone }
func (f Framing) IsChunked() bool    { return f.kind == framingChunked }
func (f Framing) IsUntilClose() bool { return f.kind == framingUntilClose }

// Sized returns the announced length when the framing is fixed-size.
func (f Framing) Sized() (uint64, bool) {
	return f.size, f.kind == framingSized
}

func (f Framing) String() string {
	switch f.kind {
	case framingSized:
		return "sized(" + strconv.FormatUint(f.size, 10) + ")"
	case framingChunked:
		return "chunked"
	case framingUntilClose:
		return "until-close"
	default:
		return "none"
	}
}

// Info carries what the connection needs to know beyond the request
// itself: how the body is delimited and whether the peer asked to close.
type Info struct {
	Framing     Framing
	ShouldClose bool
}

// Request is the typed request handed to the handler. Headers are owned
// copies; Body is filled by the connection reader while the handler runs.
type Request struct {
	Method  Method
	URI     string
	Version Version
	Headers *headers.HeaderMap
	Body    *body.Body
}

var (
	bContentLength    = []byte(headers.ContentLength)
	bTransferEncoding = []byte(headers.TransferEncoding)
	bConnection       = []byte(headers.Connection)
)

// FromRaw promotes a zero-copy parser view into an owned Request and
// derives the framing decision. The returned request carries an empty
// body; the connection swaps in the real one before dispatch.
//
// Interpretation rules, applied per header in wire order:
//   - Transfer-Encoding listing "chunked" selects chunked framing.
//   - Content-Length must be all digits; it selects sized framing unless
//     chunked was already chosen. Coexistence with Transfer-Encoding is
//     rejected in either order.
//   - Connection listing "close" marks the connection for close.
func FromRaw(raw *parser.RawRequest) (*Request, *Info, error) {
	req := &Request{
		Method:  MethodFromBytes(raw.Method),
		URI:     string(raw.URI),
		Version: VersionFromBytes(raw.Version),
		Headers: headers.New(),
		Body:    body.Empty(),
	}
	info := &Info{Framing: FramingNone()}

	sawTransferEncoding := false
	sawContentLength := false
	chunked := false
	closeToken := false
	keepAliveToken := false
	var contentLength uint64

	for _, h := range raw.Headers {
		req.Headers.Append(string(h.Name), string(h.Value))

		switch {
		case bytescase.CmpEq(h.Name, bTransferEncoding):
			if sawContentLength {
				return nil, nil, ErrFramingConflict
			}
			sawTransferEncoding = true
			if headers.TokenListContains(string(h.Value), headers.TokenChunked) {
				chunked = true
			}

		case bytescase.CmpEq(h.Name, bContentLength):
			if sawTransferEncoding {
				return nil, nil, ErrFramingConflict
			}
			n, err := parseContentLength(h.Value)
			if err != nil {
				return nil, nil, err
			}
			if sawContentLength && n != contentLength {
				return nil, nil, ErrBadRequest
			}
			sawContentLength = true
			contentLength = n

		case bytescase.CmpEq(h.Name, bConnection):
			if headers.TokenListContains(string(h.Value), headers.TokenClose) {
				closeToken = true
			}
			if headers.TokenListContains(string(h.Value), headers.TokenKeepAlive) {
				keepAliveToken = true
			}
		}
	}

	switch {
	case chunked:
		info.Framing = FramingChunked()
	case sawContentLength:
		info.Framing = FramingSized(contentLength)
	case closeToken:
		// No announced length and the peer will close; the body is
		// whatever arrives before EOF.
		info.Framing = FramingUntilClose()
	}

	// 1.0 closes unless the client asked to keep the connection.
	info.ShouldClose = closeToken ||
		(!req.Version.KeepAliveDefault() && !keepAliveToken)

	return req, info, nil
}

// parseContentLength validates an all-digit value fitting in uint64.
func parseContentLength(v []byte) (uint64, error) {
	if len(v) == 0 {
		return 0, ErrBadRequest
	}
	for _, d := range v {
		if d < '0' || d > '9' {
			return 0, ErrBadRequest
		}
	}
	n, err := strconv.ParseUint(string(v), 10, 64)
	if err != nil {
		return 0, ErrBadRequest
	}
	return n, nil
}
