// Package body provides the pull-style byte stream connecting the
// connection reader to the handler. A body is backed by nothing, a single
// buffered chunk, or a bounded channel the reader feeds while the handler
// runs.
package body

import (
	"io"

	"github.com/pkg/errors"
)

// ErrSenderClosed is returned from Sender.Send when the receiving side has
// dropped the body.
var ErrSenderClosed = errors.New("body: receiver closed")

type kind int

const (
	kindEmpty kind = iota
	kindOnce
	kindChannel
)

type chunk struct {
	data []byte
	err  error
}

// Body is a pull-style byte source. Read blocks until the next chunk is
// available and returns (nil, io.EOF) at end-of-stream. Chunks handed out
// are owned by the caller and never reused by the reader.
type Body struct {
	kind kind
	once []byte

	ch     chan chunk
	closed chan struct{}
	done   bool
}

// Empty returns a body whose first Read reports end-of-stream.
func Empty() *Body {
	return &Body{kind: kindEmpty}
}

// Once returns a body delivering buf in a single Read.
func Once(buf []byte) *Body {
	return &Body{kind: kindOnce, once: buf}
}

// Channel returns a connected sender/body pair. The channel holds at most
// capacity chunks, so a slow consumer blocks the producer.
func Channel(capacity int) (*Sender, *Body) {
	if capacity < 1 {
		capacity = 1
	}
	b := &Body{
		kind:   kindChannel,
		ch:     make(chan chunk, capacity),
		closed: make(chan struct{}),
	}
	return &Sender{body: b}, b
}

// Read returns the next chunk of the stream. After an error or io.EOF every
// subsequent call returns io.EOF.
func (b *Body) Read() ([]byte, error) {
	switch b.kind {
	case kindEmpty:
		return nil, io.EOF
	case kindOnce:
		if b.done || len(b.once) == 0 {
			return nil, io.EOF
		}
		b.done = true
		data := b.once
		b.once = nil
		return data, nil
	default:
		if b.done {
			return nil, io.EOF
		}
		c, ok := <-b.ch
		if !ok {
			b.done = true
			return nil, io.EOF
		}
		if c.err != nil {
			b.done = true
			return nil, c.err
		}
		return c.data, nil
	}
}

// Close abandons the stream. A feeding sender observes this through
// Closed and must stop sending.
func (b *Body) Close() {
	if b.kind == kindChannel && !b.done {
		b.done = true
		close(b.closed)
	}
}

// Sender is the producing half of a channel body.
type Sender struct {
	body *Body
}

// Send delivers one non-empty chunk to the consumer, blocking until there
// is channel capacity. Once the consumer is gone it fails with
// ErrSenderClosed, though a send that finds free capacity may still succeed.
func (s *Sender) Send(data []byte) error {
	select {
	case <-s.body.closed:
		return ErrSenderClosed
	case s.body.ch <- chunk{data: data}:
		return nil
	}
}

// SendError delivers err as the stream outcome and ends the stream.
func (s *Sender) SendError(err error) error {
	select {
	case <-s.body.closed:
		return ErrSenderClosed
	case s.body.ch <- chunk{err: err}:
		close(s.body.ch)
		return nil
	}
}

// Close ends the stream successfully.
func (s *Sender) Close() {
	close(s.body.ch)
}

// Closed is signalled when the consumer dropped the body before draining
// it. The producer should stop feeding and discard the remainder.
func (s *Sender) Closed() <-chan struct{} {
	return s.body.closed
}
