package server

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrBadChunk rejects malformed chunked-body framing: bad hex size,
// missing CRLF, or a chunk larger than Config.MaxChunkSize.
var ErrBadChunk = errors.New("malformed chunked body")

// Kind is the top-level classification of a connection failure.
type Kind int

const (
	// KindIo means the underlying stream failed or the peer vanished
	// mid-message. Always fatal for the connection.
	KindIo Kind = iota
	// KindProtocol means the peer sent bytes the engine refuses to
	// interpret. Fatal, but a best-effort 400 may precede the close.
	KindProtocol
)

func (k Kind) String() string {
	if k == KindIo {
		return "io"
	}
	return "protocol"
}

// Error is the failure surfaced by ServeConn, carrying the kind and the
// underlying cause.
type Error struct {
	Kind  Kind
	Cause error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s error: %v", e.Kind, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

func ioError(cause error, msg string) *Error {
	return &Error{Kind: KindIo, Cause: errors.Wrap(cause, msg)}
}

func protocolError(cause error) *Error {
	return &Error{Kind: KindProtocol, Cause: cause}
}

// IsProtocol reports whether err is a connection error of protocol kind.
func IsProtocol(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindProtocol
}
