package relay

import (
	"context"
	"fmt"
	"net"
	"time"
)

// Client forwards raw submission bytes to the relay listener,
// one fresh TCP connection per submission.
type Client struct {
	addr         string
	dialTimeout  time.Duration
	writeTimeout time.Duration
}

// NewClient returns a client for the relay at addr.
// dialTimeout bounds connect, writeTimeout bounds sending the body.
func NewClient(addr string, dialTimeout, writeTimeout time.Duration) *Client {
	return &Client{addr: addr, dialTimeout: dialTimeout, writeTimeout: writeTimeout}
}

// Addr returns the relay address.
func (c *Client) Addr() string {
	return c.addr
}

// Send opens a connection, writes body in full and closes the connection.
func (c *Client) Send(ctx context.Context, body []byte) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if c.writeTimeout > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return fmt.Errorf("relay %s: %w", c.addr, err)
		}
	}
	if _, err := conn.Write(body); err != nil {
		return fmt.Errorf("relay %s: write: %w", c.addr, err)
	}
	if err := conn.Close(); err != nil {
		return fmt.Errorf("relay %s: close: %w", c.addr, err)
	}
	return nil
}

// Ping checks that the relay accepts connections. It sends no bytes.
func (c *Client) Ping(ctx context.Context) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	return conn.Close()
}

func (c *Client) dial(ctx context.Context) (net.Conn, error) {
	d := net.Dialer{Timeout: c.dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return nil, fmt.Errorf("relay %s: dial: %w", c.addr, err)
	}
	return conn, nil
}
