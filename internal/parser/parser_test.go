package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRequestShortGet(t *testing.T) {
	data := []byte("GET / HTTP/1.0\r\nHost: example.com\r\nCookie: session=60; user_id=1\r\n\r\n")

	var req RawRequest
	n, err := ParseRequest(data, &req)
	require.NoError(t, err)
	assert.Equal(t, len(data), n)
	assert.Equal(t, "GET", string(req.Method))
	assert.Equal(t, "/", string(req.URI))
	assert.Equal(t, "1.0", string(req.Version))
	require.Len(t, req.Headers, 2)
	assert.Equal(t, "Host", string(req.Headers[0].Name))
	assert.Equal(t, "example.com", string(req.Headers[0].Value))
	assert.Equal(t, "Cookie", string(req.Headers[1].Name))
	assert.Equal(t, "session=60; user_id=1", string(req.Headers[1].Value))
}

func TestParseRequestVersions(t *testing.T) {
	var req RawRequest

	n, err := ParseRequest([]byte("GET / HTTP/1.1\r\n\r\n"), &req)
	require.NoError(t, err)
	assert.Equal(t, 18, n)
	assert.Equal(t, "1.1", string(req.Version))

	// Unknown versions in well-formed HTTP/d.d syntax still parse.
	_, err = ParseRequest([]byte("GET / HTTP/2.0\r\n\r\n"), &req)
	require.NoError(t, err)
	assert.Equal(t, "2.0", string(req.Version))

	_, err = ParseRequest([]byte("GET / HTTP/1.x\r\n\r\n"), &req)
	require.ErrorIs(t, err, ErrBadRequest)

	_, err = ParseRequest([]byte("GET / FTP/1.1\r\n\r\n"), &req)
	require.ErrorIs(t, err, ErrBadRequest)
}

func TestParseRequestLeadingCRLF(t *testing.T) {
	var req RawRequest

	// Exactly one leading CRLF is tolerated.
	n, err := ParseRequest([]byte("\r\nGET / HTTP/1.1\r\n\r\n"), &req)
	require.NoError(t, err)
	assert.Equal(t, 20, n)
	assert.Equal(t, "GET", string(req.Method))

	// Two are not.
	_, err = ParseRequest([]byte("\r\n\r\nGET / HTTP/1.1\r\n\r\n"), &req)
	require.ErrorIs(t, err, ErrBadRequest)

	// A bare CR is not a line ending.
	_, err = ParseRequest([]byte("\rGET / HTTP/1.1\r\n\r\n"), &req)
	require.ErrorIs(t, err, ErrBadRequest)
}

func TestParseRequestBadHeaders(t *testing.T) {
	var req RawRequest

	// Space before the colon.
	_, err := ParseRequest([]byte("GET / HTTP/1.1\r\nHost : x\r\n\r\n"), &req)
	require.ErrorIs(t, err, ErrBadHeaderName)

	// Obsolete folding (continuation line) is rejected.
	_, err = ParseRequest([]byte("GET / HTTP/1.1\r\nHost: a\r\n b\r\n\r\n"), &req)
	require.ErrorIs(t, err, ErrBadHeaderName)

	// Empty field name.
	_, err = ParseRequest([]byte("GET / HTTP/1.1\r\n: x\r\n\r\n"), &req)
	require.ErrorIs(t, err, ErrBadHeaderName)

	// Bare LF line ending.
	_, err = ParseRequest([]byte("GET / HTTP/1.1\r\nHost: x\n\r\n"), &req)
	require.ErrorIs(t, err, ErrBadFieldValue)

	// NUL inside the value.
	_, err = ParseRequest([]byte("GET / HTTP/1.1\r\nHost: a\x00b\r\n\r\n"), &req)
	require.ErrorIs(t, err, ErrBadFieldValue)
}

func TestParseRequestValueTrimming(t *testing.T) {
	var req RawRequest

	_, err := ParseRequest([]byte("GET / HTTP/1.1\r\nHost: \t spaced.example \t\r\n\r\n"), &req)
	require.NoError(t, err)
	require.Len(t, req.Headers, 1)
	assert.Equal(t, "spaced.example", string(req.Headers[0].Value))

	// Empty value is fine.
	_, err = ParseRequest([]byte("GET / HTTP/1.1\r\nX-Empty:\r\n\r\n"), &req)
	require.NoError(t, err)
	assert.Equal(t, "", string(req.Headers[0].Value))
}

func TestParseRequestBadRequestLine(t *testing.T) {
	var req RawRequest

	_, err := ParseRequest([]byte("GET  / HTTP/1.1\r\n\r\n"), &req)
	require.ErrorIs(t, err, ErrBadRequest)

	_, err = ParseRequest([]byte(" / HTTP/1.1\r\n\r\n"), &req)
	require.ErrorIs(t, err, ErrBadRequest)

	// Control byte inside the target.
	_, err = ParseRequest([]byte("GET /a\tb HTTP/1.1\r\n\r\n"), &req)
	require.ErrorIs(t, err, ErrBadRequest)
}

// Parse outcome must not depend on how the bytes were split: every proper
// prefix of a good message is ErrIncomplete, every extension consumes the
// same count.
func TestParseRequestSplitDeterminism(t *testing.T) {
	data := []byte("POST /submit HTTP/1.1\r\nHost: example.com\r\nContent-Length: 5\r\n\r\nhello")

	var req RawRequest
	n, err := ParseRequest(data, &req)
	require.NoError(t, err)

	for k := 0; k < len(data); k++ {
		m, err := ParseRequest(data[:k], &req)
		if k < n {
			require.ErrorIs(t, err, ErrIncomplete, "prefix %d", k)
		} else {
			require.NoError(t, err, "prefix %d", k)
			require.Equal(t, n, m, "prefix %d", k)
		}
	}
}

func TestParseRequestZeroCopy(t *testing.T) {
	data := []byte("GET /path HTTP/1.1\r\nHost: example.com\r\n\r\n")

	var req RawRequest
	n, err := ParseRequest(data, &req)
	require.NoError(t, err)

	inRange := func(s []byte) bool {
		if len(s) == 0 {
			return true
		}
		for i := 0; i <= n-len(s); i++ {
			if &data[i] == &s[0] {
				return true
			}
		}
		return false
	}
	assert.True(t, inRange(req.Method))
	assert.True(t, inRange(req.URI))
	assert.True(t, inRange(req.Version))
	for _, h := range req.Headers {
		assert.True(t, inRange(h.Name))
		assert.True(t, inRange(h.Value))
	}
}

func TestParseResponse(t *testing.T) {
	data := []byte("HTTP/1.1 200 OK\r\nContent-Length: 5\r\n\r\nhello")

	var resp RawResponse
	n, err := ParseResponse(data, &resp)
	require.NoError(t, err)
	assert.Equal(t, len(data)-5, n)
	assert.Equal(t, "1.1", string(resp.Version))
	assert.Equal(t, 200, resp.StatusCode())
	assert.Equal(t, "OK", string(resp.Reason))
	require.Len(t, resp.Headers, 1)
	assert.Equal(t, "Content-Length", string(resp.Headers[0].Name))

	// Empty reason, with and without the trailing SP.
	_, err = ParseResponse([]byte("HTTP/1.1 404 \r\n\r\n"), &resp)
	require.NoError(t, err)
	assert.Equal(t, "", string(resp.Reason))
	assert.Equal(t, 404, resp.StatusCode())

	_, err = ParseResponse([]byte("HTTP/1.1 404\r\n\r\n"), &resp)
	require.NoError(t, err)
	assert.Equal(t, "", string(resp.Reason))

	// Status must be exactly three digits.
	_, err = ParseResponse([]byte("HTTP/1.1 20 OK\r\n\r\n"), &resp)
	require.ErrorIs(t, err, ErrBadResponse)

	// No leading CRLF tolerance on the response side.
	_, err = ParseResponse([]byte("\r\nHTTP/1.1 200 OK\r\n\r\n"), &resp)
	require.ErrorIs(t, err, ErrBadResponse)
}

func TestParseResponseSplitDeterminism(t *testing.T) {
	data := []byte("HTTP/1.0 404 Not Found\r\nServer: x\r\n\r\n")

	var resp RawResponse
	n, err := ParseResponse(data, &resp)
	require.NoError(t, err)
	require.Equal(t, len(data), n)

	for k := 0; k < n; k++ {
		_, err := ParseResponse(data[:k], &resp)
		require.ErrorIs(t, err, ErrIncomplete, "prefix %d", k)
	}
}
