package server

import (
	"io"

	"github.com/pkg/errors"

	"httpwire/internal/body"
)

// readBuffer is the reader task's growable accumulation buffer. Bytes
// handed to a body are copied out first, so the buffer is free to shift
// and grow underneath earlier chunks.
type readBuffer struct {
	r       io.Reader
	data    []byte
	pending error
}

func newReadBuffer(r io.Reader, initCap int) *readBuffer {
	if initCap < 1 {
		initCap = DefaultReadBufferInit
	}
	return &readBuffer{r: r, data: make([]byte, 0, initCap)}
}

func (b *readBuffer) len() int      { return len(b.data) }
func (b *readBuffer) bytes() []byte { return b.data }

// advance drops the first n buffered bytes.
func (b *readBuffer) advance(n int) {
	copy(b.data, b.data[n:])
	b.data = b.data[:len(b.data)-n]
}

// take copies the first n buffered bytes out and advances past them. The
// copy is what lets handler code hold on to body chunks across reads.
func (b *readBuffer) take(n int) []byte {
	out := append([]byte(nil), b.data[:n]...)
	b.advance(n)
	return out
}

// fill blocks until at least one more byte is buffered. A short read with
// a trailing error delivers the bytes now and the error on the next call.
func (b *readBuffer) fill() error {
	if b.pending != nil {
		err := b.pending
		b.pending = nil
		return err
	}
	if len(b.data) == cap(b.data) {
		grown := make([]byte, len(b.data), 2*cap(b.data))
		copy(grown, b.data)
		b.data = grown
	}
	n, err := b.r.Read(b.data[len(b.data):cap(b.data)])
	b.data = b.data[:len(b.data)+n]
	if n > 0 {
		b.pending = err
		return nil
	}
	if err == nil {
		err = io.ErrNoProgress
	}
	return err
}

// ingestSized forwards exactly n body bytes to the sender. End-of-stream
// before the count is met poisons both the body and the connection.
func (c *conn) ingestSized(tx *body.Sender, n uint64) error {
	discard := false
	for n > 0 {
		if c.rb.len() == 0 {
			if err := c.rb.fill(); err != nil {
				return c.bodyReadFailed(tx, discard, err)
			}
			continue
		}
		take := c.rb.len()
		if uint64(take) > n {
			take = int(n)
		}
		if discard {
			c.rb.advance(take)
		} else if err := tx.Send(c.rb.take(take)); err != nil {
			// Handler dropped the body; keep consuming so the next
			// request starts at a clean boundary.
			discard = true
		}
		n -= uint64(take)
	}
	if !discard {
		tx.Close()
	}
	return nil
}

// ingestUntilClose forwards everything until the peer closes.
func (c *conn) ingestUntilClose(tx *body.Sender) error {
	discard := false
	for {
		if c.rb.len() == 0 {
			err := c.rb.fill()
			if errors.Is(err, io.EOF) {
				if !discard {
					tx.Close()
				}
				return nil
			}
			if err != nil {
				if c.closing.Load() {
					if !discard {
						tx.Close()
					}
					return errClosing
				}
				werr := ioError(err, "reading request body")
				if !discard {
					_ = tx.SendError(werr)
				}
				return c.failRead(werr)
			}
			continue
		}
		if discard {
			c.rb.advance(c.rb.len())
		} else if err := tx.Send(c.rb.take(c.rb.len())); err != nil {
			discard = true
		}
	}
}

// chunked-body states, one per delimiter position.
type chunkState int

const (
	chunkSize chunkState = iota
	chunkSizeExt
	chunkSizeLF
	chunkData
	chunkDataCR
	chunkDataLF
	chunkTrailer
	chunkTrailerLine
	chunkTrailerCR
	chunkTrailerEndLF
	chunkEnd
)

// ingestChunked decodes one chunked body, streaming the data bytes to the
// sender. Trailer lines are consumed for syntax and dropped.
func (c *conn) ingestChunked(tx *body.Sender) error {
	st := chunkSize
	var size uint64
	digits := 0
	discard := false

	fail := func(cause error) error {
		werr := protocolError(cause)
		if !discard {
			_ = tx.SendError(werr)
		}
		return c.failRead(werr)
	}

	for st != chunkEnd {
		if c.rb.len() == 0 {
			if err := c.rb.fill(); err != nil {
				return c.bodyReadFailed(tx, discard, err)
			}
			continue
		}

		// Data bytes move in bulk; everything else is one delimiter byte
		// at a time.
		if st == chunkData {
			take := c.rb.len()
			if uint64(take) > size {
				take = int(size)
			}
			if discard {
				c.rb.advance(take)
			} else if err := tx.Send(c.rb.take(take)); err != nil {
				discard = true
			}
			size -= uint64(take)
			if size == 0 {
				st = chunkDataCR
			}
			continue
		}

		ch := c.rb.bytes()[0]
		c.rb.advance(1)

		switch st {
		case chunkSize:
			switch {
			case ch >= '0' && ch <= '9':
				size = size<<4 | uint64(ch-'0')
				digits++
			case ch >= 'a' && ch <= 'f':
				size = size<<4 | uint64(ch-'a'+10)
				digits++
			case ch >= 'A' && ch <= 'F':
				size = size<<4 | uint64(ch-'A'+10)
				digits++
			case ch == ';':
				if digits == 0 {
					return fail(ErrBadChunk)
				}
				st = chunkSizeExt
			case ch == '\r':
				if digits == 0 {
					return fail(ErrBadChunk)
				}
				st = chunkSizeLF
			default:
				return fail(ErrBadChunk)
			}
			if size > c.cfg.MaxChunkSize {
				return fail(ErrBadChunk)
			}

		case chunkSizeExt:
			// Extensions are ignored wholesale, but the line still has to
			// terminate properly.
			switch ch {
			case '\r':
				st = chunkSizeLF
			case '\n', 0:
				return fail(ErrBadChunk)
			}

		case chunkSizeLF:
			if ch != '\n' {
				return fail(ErrBadChunk)
			}
			if size == 0 {
				st = chunkTrailer
			} else {
				st = chunkData
			}

		case chunkDataCR:
			if ch != '\r' {
				return fail(ErrBadChunk)
			}
			st = chunkDataLF

		case chunkDataLF:
			if ch != '\n' {
				return fail(ErrBadChunk)
			}
			st = chunkSize
			size = 0
			digits = 0

		case chunkTrailer:
			switch ch {
			case '\r':
				st = chunkTrailerEndLF
			case '\n', 0:
				return fail(ErrBadChunk)
			default:
				st = chunkTrailerLine
			}

		case chunkTrailerLine:
			switch ch {
			case '\r':
				st = chunkTrailerCR
			case '\n', 0:
				return fail(ErrBadChunk)
			}

		case chunkTrailerCR:
			switch ch {
			case '\n':
				st = chunkTrailer
			case '\r':
				// still looking at a CR; the LF must follow this one
			default:
				return fail(ErrBadChunk)
			}

		case chunkTrailerEndLF:
			if ch != '\n' {
				return fail(ErrBadChunk)
			}
			st = chunkEnd
		}
	}

	if !discard {
		tx.Close()
	}
	return nil
}

// bodyReadFailed classifies a fill error while a body was being fed and
// poisons the body accordingly.
func (c *conn) bodyReadFailed(tx *body.Sender, discard bool, err error) error {
	if c.closing.Load() {
		if !discard {
			tx.Close()
		}
		return errClosing
	}
	cause := err
	if errors.Is(cause, io.EOF) {
		cause = io.ErrUnexpectedEOF
	}
	werr := ioError(cause, "reading request body")
	if !discard {
		_ = tx.SendError(werr)
	}
	return c.failRead(werr)
}
