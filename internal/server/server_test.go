package server

import (
	"io"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"httpwire/internal/request"
	"httpwire/internal/response"
)

func TestServeOverTCP(t *testing.T) {
	h := HandlerFunc(func(req *request.Request) *response.Response {
		return response.WithBytes(response.OK, []byte("hi "+req.URI))
	})

	srv, err := Serve(0, h)
	require.NoError(t, err)
	defer srv.Close()

	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("GET /tcp HTTP/1.1\r\nHost: t\r\nConnection: close\r\n\r\n"))
	require.NoError(t, err)

	got, err := io.ReadAll(conn)
	require.NoError(t, err)
	assert.Equal(t, "HTTP/1.1 200 OK\r\nContent-Length: 7\r\n\r\nhi /tcp", string(got))

	// Close is idempotent.
	require.NoError(t, srv.Close())
	require.NoError(t, srv.Close())
}
