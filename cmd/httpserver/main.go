package main

import (
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/rs/zerolog"

	"httpwire/internal/body"
	"httpwire/internal/headers"
	"httpwire/internal/request"
	"httpwire/internal/response"
	"httpwire/internal/server"
)

const PORT = 42069

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	handler := server.HandlerFunc(func(req *request.Request) *response.Response {
		switch req.URI {
		case "/yourproblem":
			return htmlResponse(response.BAD_REQUEST, `
<html>
  <head>
    <title>400 Bad Request</title>
  </head>
  <body>
    <h1>Bad Request</h1>
    <p>Your request honestly kinda sucked.</p>
  </body>
</html>
`)

		case "/myproblem":
			return htmlResponse(response.INTERNAL_SERVER_ERROR, `
<html>
  <head>
    <title>500 Internal Server Error</title>
  </head>
  <body>
    <h1>Internal Server Error</h1>
    <p>Okay, you know what? This one is on me.</p>
  </body>
</html>
`)

		case "/stream":
			// Chunked response fed while the writer drains it.
			resp := response.New(response.OK)
			resp.Headers.Set(headers.ContentType, "text/plain")
			resp.Headers.Set(headers.TransferEncoding, headers.TokenChunked)
			tx, b := body.Channel(1)
			resp.Body = b
			go func() {
				for i := 0; i < 10; i++ {
					if tx.Send([]byte("chunk " + strconv.Itoa(i) + "\n")) != nil {
						return
					}
				}
				tx.Close()
			}()
			return resp

		case "/echo":
			var buf []byte
			for {
				data, err := req.Body.Read()
				if err != nil {
					break
				}
				buf = append(buf, data...)
			}
			resp := response.WithBytes(response.OK, buf)
			resp.Headers.Set(headers.ContentType, "application/octet-stream")
			return resp

		default:
			return htmlResponse(response.OK, `
<html>
  <head>
    <title>200 OK</title>
  </head>
  <body>
    <h1>Success!</h1>
    <p>Your request was an absolute banger.</p>
  </body>
</html>
`)
		}
	})

	srv, err := server.Serve(PORT, handler, server.WithLogger(log))
	if err != nil {
		log.Fatal().Err(err).Msg("starting server")
	}
	defer srv.Close()
	log.Info().Int("port", PORT).Msg("server started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("server gracefully stopped")
}

func htmlResponse(code response.StatusCode, page string) *response.Response {
	resp := response.WithBytes(code, []byte(page))
	resp.Headers.Set(headers.ContentType, "text/html")
	return resp
}
