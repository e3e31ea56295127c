package frame

import (
	"errors"

	"github.com/pithecene-io/framehub/types"
)

type posted struct {
	msg    *types.Message
	origin string
}

// fakeWindow records posted messages.
type fakeWindow struct {
	name  string
	posts []posted
	fail  bool
}

func (w *fakeWindow) PostMessage(msg *types.Message, targetOrigin string) error {
	if w.fail {
		return errors.New("post refused")
	}
	w.posts = append(w.posts, posted{msg: msg, origin: targetOrigin})
	return nil
}

// fakeHandle exposes win once loaded.
type fakeHandle struct {
	win    *fakeWindow
	loaded bool
}

func (h *fakeHandle) ContentWindow() Window {
	if !h.loaded || h.win == nil {
		return nil
	}
	return h.win
}

func loadedHandle(name string) *fakeHandle {
	return &fakeHandle{win: &fakeWindow{name: name}, loaded: true}
}

// fakeSource records listener installations.
type fakeSource struct {
	listeners []func(MessageEvent)
}

func (s *fakeSource) AddMessageListener(fn func(MessageEvent)) {
	s.listeners = append(s.listeners, fn)
}

func (s *fakeSource) dispatch(ev MessageEvent) {
	for _, fn := range s.listeners {
		fn(ev)
	}
}
