package body

import (
	"io"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmptyBody(t *testing.T) {
	b := Empty()
	data, err := b.Read()
	assert.Nil(t, data)
	assert.ErrorIs(t, err, io.EOF)

	// Stable across repeated reads.
	_, err = b.Read()
	assert.ErrorIs(t, err, io.EOF)
}

func TestOnceBody(t *testing.T) {
	b := Once([]byte("hello world"))

	data, err := b.Read()
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))

	_, err = b.Read()
	assert.ErrorIs(t, err, io.EOF)
}

func TestChannelBodyDeliversInOrder(t *testing.T) {
	tx, b := Channel(1)

	go func() {
		require.NoError(t, tx.Send([]byte("abc")))
		require.NoError(t, tx.Send([]byte("hello")))
		tx.Close()
	}()

	data, err := b.Read()
	require.NoError(t, err)
	assert.Equal(t, "abc", string(data))

	data, err = b.Read()
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	_, err = b.Read()
	assert.ErrorIs(t, err, io.EOF)
}

func TestChannelBodyError(t *testing.T) {
	tx, b := Channel(1)
	boom := errors.New("truncated")

	go func() {
		require.NoError(t, tx.Send([]byte("partial")))
		require.NoError(t, tx.SendError(boom))
	}()

	data, err := b.Read()
	require.NoError(t, err)
	assert.Equal(t, "partial", string(data))

	_, err = b.Read()
	assert.ErrorIs(t, err, boom)

	// Terminal after the error.
	_, err = b.Read()
	assert.ErrorIs(t, err, io.EOF)
}

func TestChannelBodyBackpressure(t *testing.T) {
	tx, b := Channel(1)

	sent := make(chan int, 8)
	go func() {
		for i := 0; i < 3; i++ {
			_ = tx.Send([]byte{byte(i)})
			sent <- i
		}
		tx.Close()
	}()

	// With capacity 1 the producer can run at most one chunk ahead of the
	// consumer.
	time.Sleep(20 * time.Millisecond)
	assert.LessOrEqual(t, len(sent), 2)

	for i := 0; i < 3; i++ {
		data, err := b.Read()
		require.NoError(t, err)
		assert.Equal(t, []byte{byte(i)}, data)
	}
	_, err := b.Read()
	assert.ErrorIs(t, err, io.EOF)
}

func TestSenderObservesDroppedBody(t *testing.T) {
	tx, b := Channel(1)

	b.Close()

	select {
	case <-tx.Closed():
	case <-time.After(time.Second):
		t.Fatal("Closed() did not fire after the body was dropped")
	}

	// Once the consumer is gone sends eventually fail.
	var err error
	for i := 0; i < 3 && err == nil; i++ {
		err = tx.Send([]byte("x"))
	}
	assert.ErrorIs(t, err, ErrSenderClosed)
}
