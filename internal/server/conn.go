package server

import (
	"io"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"httpwire/internal/body"
	"httpwire/internal/headers"
	"httpwire/internal/parser"
	"httpwire/internal/request"
	"httpwire/internal/response"
)

// errClosing marks read failures caused by our own teardown, not the peer.
var errClosing = errors.New("connection tearing down")

// dispatched pairs a request with what the reader learned about it.
type dispatched struct {
	req  *request.Request
	info *request.Info
}

// writeJob is one response queued for the writer, with the one-shot ack
// the driver blocks on to keep responses FIFO.
type writeJob struct {
	resp     *response.Response
	reqClose bool
	ack      chan writeResult
}

type writeResult struct {
	closed bool
	err    error
}

// shutdownNote aborts the writer. sendBadRequest asks for a best-effort
// 400 before the close.
type shutdownNote struct {
	sendBadRequest bool
}

type conn struct {
	rw  io.ReadWriter
	cfg Config
	log zerolog.Logger

	rb      *readBuffer
	closing atomic.Bool

	reqCh      chan dispatched
	respCh     chan writeJob
	shutdown   chan shutdownNote
	driverDone chan struct{}
	writerDone chan struct{}
}

// ServeConn runs the connection pipeline over rw: parse requests, hand
// them to the handler in order, stream responses back. It returns when
// the peer goes away cleanly (nil), a response demanded close (nil), or
// the connection failed (*Error). If rw is an io.Closer the stream is
// closed before return; all three pipeline tasks are joined either way.
func ServeConn(rw io.ReadWriter, h Handler, cfg Config) error {
	cfg = cfg.withDefaults()
	c := &conn{
		rw:         rw,
		cfg:        cfg,
		log:        cfg.Logger,
		rb:         newReadBuffer(rw, cfg.ReadBufferInit),
		reqCh:      make(chan dispatched, cfg.RequestChannelCapacity),
		respCh:     make(chan writeJob, cfg.ResponseChannelCapacity),
		shutdown:   make(chan shutdownNote, 1),
		driverDone: make(chan struct{}),
		writerDone: make(chan struct{}),
	}

	var readerErr, writerErr error
	readerDone := make(chan struct{})
	drainDone := make(chan struct{})

	go func() {
		defer close(readerDone)
		defer close(c.reqCh)
		readerErr = c.readLoop()
	}()

	go func() {
		defer close(drainDone)
		// Once the driver stops, any request still in flight gets its
		// body dropped so the reader cannot wedge feeding it.
		defer func() {
			for d := range c.reqCh {
				d.req.Body.Close()
			}
		}()
		defer close(c.driverDone)
		defer close(c.respCh)
		c.driveLoop(h)
	}()

	go func() {
		defer close(c.writerDone)
		writerErr = c.writeLoop()
	}()

	<-c.driverDone
	<-c.writerDone

	// The reader may still be parked in a blocking read; closing the
	// stream is the only thing that unparks it.
	select {
	case <-readerDone:
	default:
		c.closing.Store(true)
		if cl, ok := rw.(io.Closer); ok {
			_ = cl.Close()
		}
		<-readerDone
	}
	<-drainDone

	if cl, ok := rw.(io.Closer); ok {
		_ = cl.Close()
	}

	if readerErr != nil {
		return readerErr
	}
	return writerErr
}

// readLoop parses request heads off the wire, dispatches them, then
// drains each body according to its framing before parsing the next.
func (c *conn) readLoop() error {
	var raw parser.RawRequest
	for {
		n, err := c.parseHead(&raw)
		if err != nil {
			if errors.Is(err, errClosing) || errors.Is(err, io.EOF) {
				return nil
			}
			return c.failRead(err)
		}

		req, info, err := request.FromRaw(&raw)
		if err != nil {
			return c.failRead(protocolError(err))
		}
		c.rb.advance(n)

		tx, drain := c.attachBody(req, info)

		select {
		case c.reqCh <- dispatched{req: req, info: info}:
		case <-c.driverDone:
			if tx != nil {
				tx.Close()
			}
			return nil
		}

		if drain != nil {
			if err := drain(); err != nil {
				if errors.Is(err, errClosing) {
					return nil
				}
				return err
			}
		}

		if info.ShouldClose {
			return nil
		}
	}
}

// parseHead grows the buffer until one full request head is available.
// Returns io.EOF only on a clean end between requests.
func (c *conn) parseHead(raw *parser.RawRequest) (int, error) {
	for {
		if c.rb.len() > 0 {
			n, err := parser.ParseRequest(c.rb.bytes(), raw)
			switch {
			case err == nil:
				return n, nil
			case errors.Is(err, parser.ErrIncomplete):
				if c.rb.len() > c.cfg.MaxHeaderBytes {
					return 0, protocolError(parser.ErrTooLarge)
				}
			default:
				return 0, protocolError(err)
			}
		}
		if err := c.rb.fill(); err != nil {
			if c.closing.Load() {
				return 0, errClosing
			}
			if errors.Is(err, io.EOF) {
				if c.rb.len() == 0 {
					return 0, io.EOF
				}
				return 0, ioError(io.ErrUnexpectedEOF, "reading request head")
			}
			return 0, ioError(err, "reading request head")
		}
	}
}

// attachBody picks the body representation for the request: nothing, the
// already-buffered bytes, or a channel the reader feeds while the handler
// runs. The returned drain runs after dispatch.
func (c *conn) attachBody(req *request.Request, info *request.Info) (*body.Sender, func() error) {
	if n, ok := info.Framing.Sized(); ok {
		if n == 0 {
			return nil, nil
		}
		if uint64(c.rb.len()) >= n {
			req.Body = body.Once(c.rb.take(int(n)))
			return nil, nil
		}
		tx, b := body.Channel(1)
		req.Body = b
		return tx, func() error { return c.ingestSized(tx, n) }
	}
	if info.Framing.IsChunked() {
		tx, b := body.Channel(1)
		req.Body = b
		return tx, func() error { return c.ingestChunked(tx) }
	}
	if info.Framing.IsUntilClose() {
		tx, b := body.Channel(1)
		req.Body = b
		return tx, func() error { return c.ingestUntilClose(tx) }
	}
	return nil, nil
}

// failRead signals the writer to abort before surfacing the error.
func (c *conn) failRead(err error) error {
	select {
	case c.shutdown <- shutdownNote{sendBadRequest: IsProtocol(err)}:
	default:
	}
	return err
}

// driveLoop invokes the handler once per request and queues the response,
// waiting for the write ack before touching the next request so responses
// hit the wire in request order.
func (c *conn) driveLoop(h Handler) {
	for d := range c.reqCh {
		start := time.Now()
		resp := invoke(h, d.req, c.log)
		// Whatever the handler left unread gets discarded by the reader.
		d.req.Body.Close()

		job := writeJob{
			resp:     resp,
			reqClose: d.info.ShouldClose,
			ack:      make(chan writeResult, 1),
		}
		select {
		case c.respCh <- job:
		case <-c.writerDone:
			return
		}

		var res writeResult
		select {
		case res = <-job.ack:
		case <-c.writerDone:
			select {
			case res = <-job.ack:
			default:
				return
			}
		}

		c.log.Debug().
			Str("method", d.req.Method.String()).
			Str("uri", d.req.URI).
			Int("status", int(resp.StatusCode)).
			Dur("elapsed", time.Since(start)).
			Err(res.err).
			Msg("request served")

		if res.err != nil || res.closed {
			return
		}
	}
}

const badRequestResponse = "HTTP/1.1 400 Bad Request\r\nConnection: close\r\nContent-Length: 0\r\n\r\n"

// writeLoop serializes responses, racing the response channel against the
// reader's shutdown signal.
func (c *conn) writeLoop() error {
	for {
		select {
		case note := <-c.shutdown:
			if note.sendBadRequest {
				// Between responses by construction, so the canned reply
				// cannot interleave with a partial one.
				_, _ = io.WriteString(c.rw, badRequestResponse)
			}
			return nil
		case job, ok := <-c.respCh:
			if !ok {
				// A shutdown note can race the channel close; honor it so
				// the peer still gets its 400.
				select {
				case note := <-c.shutdown:
					if note.sendBadRequest {
						_, _ = io.WriteString(c.rw, badRequestResponse)
					}
				default:
				}
				return nil
			}
			closed, err := c.writeResponse(job.resp, job.reqClose)
			job.ack <- writeResult{closed: closed, err: err}
			if err != nil || closed {
				return err
			}
		}
	}
}

// writeResponse puts one response on the wire. Returns whether the
// connection must close afterwards.
func (c *conn) writeResponse(resp *response.Response, reqClose bool) (bool, error) {
	framing := resp.Framing()
	closeAfter := reqClose || framing.IsUntilClose()
	for _, h := range resp.Headers.Get(headers.Connection) {
		if headers.TokenListContains(h.Value, headers.TokenClose) {
			closeAfter = true
		}
	}

	head := resp.EncodeHead()
	_, err := c.rw.Write(head.B)
	response.PutHead(head)
	if err != nil {
		resp.Body.Close()
		return true, ioError(err, "writing response head")
	}

	chunked := framing.IsChunked()
	for {
		data, rerr := resp.Body.Read()
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			// The body source failed mid-message; the response cannot be
			// completed, so the framing on the wire is now unreliable.
			return true, ioError(rerr, "reading response body")
		}
		if chunked {
			_, err = response.WriteChunk(c.rw, data)
		} else if len(data) > 0 {
			_, err = c.rw.Write(data)
		}
		if err != nil {
			resp.Body.Close()
			return true, ioError(err, "writing response body")
		}
	}
	if chunked {
		if err := response.WriteChunkedDone(c.rw); err != nil {
			return true, ioError(err, "writing response terminator")
		}
	}
	return closeAfter, nil
}
