// Package transport carries frame messages over TCP.
//
// The host side opens one Slot per frame service. A frame connects to its
// slot and becomes the slot's content window; messages it writes are handed to
// a Dispatcher (normally the orchestration event loop). The frame side uses
// Dial.
package transport

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/pithecene-io/framehub/frame"
	"github.com/pithecene-io/framehub/ipc"
	"github.com/pithecene-io/framehub/types"
)

// ErrOriginMismatch is returned when a post targets an origin other than the peer's.
var ErrOriginMismatch = errors.New("target origin does not match peer")

// Conn is one framed connection. It implements frame.Window.
type Conn struct {
	conn   net.Conn
	enc    *ipc.FrameEncoder
	dec    *ipc.FrameDecoder
	origin string

	closeOnce sync.Once
}

func newConn(c net.Conn) *Conn {
	return &Conn{
		conn:   c,
		enc:    ipc.NewFrameEncoder(c),
		dec:    ipc.NewFrameDecoder(c),
		origin: originOf(c.RemoteAddr()),
	}
}

// originOf reduces a remote address to its host part.
func originOf(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}

// Origin returns the peer's host, used for origin checks.
func (c *Conn) Origin() string {
	return c.origin
}

// PostMessage writes msg to the peer. A targetOrigin other than "*" must equal
// the peer origin.
func (c *Conn) PostMessage(msg *types.Message, targetOrigin string) error {
	if targetOrigin != "" && targetOrigin != frame.AnyOrigin && targetOrigin != c.origin {
		return fmt.Errorf("%w: target %q, peer %q", ErrOriginMismatch, targetOrigin, c.origin)
	}
	return c.enc.WriteMessage(msg)
}

// Send writes msg without an origin check.
func (c *Conn) Send(msg *types.Message) error {
	return c.enc.WriteMessage(msg)
}

// Read returns the next decoded message. Non-fatal decode errors are returned
// as *ipc.FrameError and the connection stays usable.
func (c *Conn) Read() (*types.Message, error) {
	return c.dec.ReadMessage()
}

// Close closes the underlying connection. It is safe to call repeatedly.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() { err = c.conn.Close() })
	return err
}
