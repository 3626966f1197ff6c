package main

import (
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"httpwire/internal/parser"
)

const PORT = ":42069"

func main() {
	tcp, err := net.Listen("tcp", PORT)
	if err != nil {
		fmt.Println("ERROR: failed to open.\n", err.Error())
		os.Exit(1)
	}
	defer tcp.Close()

	fmt.Println("Listening for TCP traffic on", PORT)
	for {
		conn, err := tcp.Accept()
		if err != nil {
			fmt.Println("ERROR: failed to accept.\n", err)
			continue
		}
		go handleConn(conn)
	}
}

// handleConn reads one request head off the socket and dumps the parsed
// view, byte counts included. Handy for eyeballing what clients actually
// send.
func handleConn(conn net.Conn) {
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second)) // optional safety

	buf := make([]byte, 0, 4096)
	tmp := make([]byte, 1024)

	var req parser.RawRequest
	for {
		n, err := conn.Read(tmp)
		if n > 0 {
			buf = append(buf, tmp[:n]...)

			consumed, perr := parser.ParseRequest(buf, &req)
			if perr == nil {
				dump(&req, consumed, len(buf))
				return
			}
			if perr != parser.ErrIncomplete {
				fmt.Println("ERROR: failed to parse request:", perr)
				return
			}
		}
		if err != nil {
			if err != io.EOF {
				fmt.Println("ERROR: read failed:", err)
			}
			return
		}
	}
}

func dump(req *parser.RawRequest, consumed, buffered int) {
	fmt.Printf("Request line:\n- Method: %s\n- Target: %s\n- Version: %s\n",
		req.Method, req.URI, req.Version)

	fmt.Println("Headers:")
	if len(req.Headers) == 0 {
		fmt.Println("- (none)")
	}
	for _, h := range req.Headers {
		fmt.Printf("- %s: %s\n", h.Name, h.Value)
	}

	fmt.Printf("Head: %d bytes, %d more buffered past it\n", consumed, buffered-consumed)
}
