// Package frame registers embedded service frames and bridges their messages
// onto the bus.
//
// A frame is reached through two host-provided interfaces. Handle is the
// element the host embeds; its ContentWindow is nil until the frame has loaded.
// Window is the posting target inside that frame. Inbound messages arrive as
// MessageEvents on a MessageSource, which the Adapter subscribes to once.
package frame

import "github.com/pithecene-io/framehub/types"

// Window is a peer that can be posted messages.
// Implementations must be comparable; the adapter identifies the sender of an
// inbound message by comparing its Source with each frame's ContentWindow.
type Window interface {
	PostMessage(msg *types.Message, targetOrigin string) error
}

// Handle is the host's reference to an embedded frame.
type Handle interface {
	// ContentWindow returns the frame's window, or nil while it is not loaded.
	ContentWindow() Window
}

// MessageEvent is one inbound cross-frame message.
type MessageEvent struct {
	Data   *types.Message
	Source Window
	Origin string
}

// MessageSource delivers inbound messages to registered listeners.
type MessageSource interface {
	AddMessageListener(fn func(MessageEvent))
}

// AnyOrigin is the wildcard target origin.
const AnyOrigin = "*"
