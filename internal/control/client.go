package control

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"

	"github.com/voxlabs/voxd/internal/protocol"
)

// ErrPermissionDenied indicates the caller may not connect to the socket.
var ErrPermissionDenied = errors.New("control socket permission denied")

// Client performs one request/response exchange with the daemon per call.
type Client struct {
	path string
}

func NewClient(socketPath string) *Client {
	return &Client{path: socketPath}
}

// Send connects, writes one command line and reads one response line.
func (c *Client) Send(cmd protocol.Command) (protocol.Response, error) {
	conn, err := net.Dial("unix", c.path)
	if err != nil {
		if errors.Is(err, os.ErrPermission) {
			return protocol.Response{}, fmt.Errorf("%w: %s", ErrPermissionDenied, c.path)
		}
		return protocol.Response{}, fmt.Errorf("connect to daemon at %s: %w", c.path, err)
	}
	defer conn.Close()

	data, err := json.Marshal(cmd)
	if err != nil {
		return protocol.Response{}, fmt.Errorf("marshal command: %w", err)
	}
	data = append(data, '\n')
	if _, err := conn.Write(data); err != nil {
		return protocol.Response{}, fmt.Errorf("write command: %w", err)
	}

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, maxRequestBytes), maxRequestBytes)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return protocol.Response{}, fmt.Errorf("read response: %w", err)
		}
		return protocol.Response{}, errors.New("connection closed before response")
	}

	var resp protocol.Response
	if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
		return protocol.Response{}, fmt.Errorf("unmarshal response: %w", err)
	}
	return resp, nil
}
