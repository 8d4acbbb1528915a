package api

import (
	"fmt"
	"net"
	"sync"
	"time"
)

// Client is a probe connection. Calls are serialized; use one Client per
// goroutine for parallel requests.
type Client struct {
	conn net.Conn
	mu   sync.Mutex
}

// Dial connects to a probe server and, when token is not empty, performs
// the auth handshake.
func Dial(address, token string, timeout time.Duration) (*Client, error) {
	conn, err := net.DialTimeout("tcp", address, timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", address, err)
	}
	if token != "" {
		if err := ClientHandshake(conn, token); err != nil {
			conn.Close()
			return nil, err
		}
	}
	return &Client{conn: conn}, nil
}

// Probe sends an IPC payload and returns the decoded reply.
func (c *Client) Probe(payload []byte) (*ProbeResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := WriteMessage(c.conn, payload); err != nil {
		return nil, err
	}
	var resp ProbeResponse
	if err := ReadJSON(c.conn, &resp); err != nil {
		return nil, fmt.Errorf("failed to read reply: %w", err)
	}
	return &resp, nil
}

// Close closes the connection.
func (c *Client) Close() error { return c.conn.Close() }
