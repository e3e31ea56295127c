package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/pithecene-io/framehub/ipc"
	"github.com/pithecene-io/framehub/types"
)

// Client is the frame side of a slot connection.
type Client struct {
	*Conn
}

// Dial connects to a slot.
func Dial(ctx context.Context, addr string) (*Client, error) {
	var d net.Dialer
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return &Client{Conn: newConn(nc)}, nil
}

// Receive calls fn for each message from the host until the connection
// closes, ctx is cancelled, or fn returns an error. Undecodable frames are
// skipped. A clean close returns nil.
func (c *Client) Receive(ctx context.Context, fn func(*types.Message) error) error {
	stop := context.AfterFunc(ctx, func() { _ = c.Close() })
	defer stop()

	for {
		msg, err := c.Read()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				return nil
			}
			if !ipc.IsFatalFrameError(err) {
				var frameErr *ipc.FrameError
				if errors.As(err, &frameErr) {
					continue
				}
			}
			return err
		}
		if err := fn(msg); err != nil {
			return err
		}
	}
}
