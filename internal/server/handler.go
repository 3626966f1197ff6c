package server

import (
	"github.com/rs/zerolog"

	"httpwire/internal/headers"
	"httpwire/internal/request"
	"httpwire/internal/response"
)

// Handler turns a request into a response. It is called exactly once per
// request, in arrival order. The request body is live while the handler
// runs; whatever the handler does not consume is discarded afterwards.
//
// Handlers shared across connections must be safe for concurrent use.
type Handler interface {
	ServeHTTP(*request.Request) *response.Response
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(*request.Request) *response.Response

func (f HandlerFunc) ServeHTTP(req *request.Request) *response.Response {
	return f(req)
}

// invoke runs the handler, converting a panic or a nil response into a
// bare 500 instead of crashing the pipeline. That 500 carries
// Connection: close, so the connection closes once it is written.
func invoke(h Handler, req *request.Request, log zerolog.Logger) (resp *response.Response) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("uri", req.URI).
				Msg("handler panicked")
			resp = internalServerError()
		}
	}()

	resp = h.ServeHTTP(req)
	if resp == nil {
		resp = internalServerError()
	}
	return resp
}

func internalServerError() *response.Response {
	r := response.New(response.INTERNAL_SERVER_ERROR)
	r.Headers.Set(headers.ContentLength, "0")
	r.Headers.Set(headers.Connection, headers.TokenClose)
	return r
}
