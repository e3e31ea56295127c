package frame

import (
	"sync"

	"github.com/pithecene-io/framehub/log"
	"github.com/pithecene-io/framehub/metrics"
	"github.com/pithecene-io/framehub/types"
)

// Outbox holds messages for one frame until it has loaded.
// Messages are posted in the order they were queued.
type Outbox struct {
	mu      sync.Mutex
	handle  Handle
	origin  string
	loaded  bool
	pending []*types.Message

	logger  *log.Logger
	metrics *metrics.Collector
}

// NewOutbox creates an outbox for handle. An empty origin targets "*".
func NewOutbox(handle Handle, origin string, logger *log.Logger, m *metrics.Collector) *Outbox {
	if origin == "" {
		origin = AnyOrigin
	}
	return &Outbox{
		handle:  handle,
		origin:  origin,
		logger:  log.OrNop(logger),
		metrics: m,
	}
}

// Post sends msg now if the frame has loaded, or queues it.
func (o *Outbox) Post(msg *types.Message) (queued bool, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.loaded {
		if win := o.handle.ContentWindow(); win != nil {
			if err := win.PostMessage(msg, o.origin); err != nil {
				return false, err
			}
			return false, nil
		}
		o.loaded = false
	}

	o.pending = append(o.pending, msg)
	o.metrics.IncOutboxQueued()
	o.logger.Debug("message queued until frame loads", map[string]any{
		"type":    msg.Type,
		"pending": len(o.pending),
	})
	return true, nil
}

// MarkLoaded records that the frame has loaded and flushes queued messages.
// It returns the number of messages posted. A post error stops the flush and
// leaves the failed message and everything after it queued.
func (o *Outbox) MarkLoaded() int {
	o.mu.Lock()
	defer o.mu.Unlock()

	win := o.handle.ContentWindow()
	if win == nil {
		o.logger.Warn("frame reported load without a window", nil)
		return 0
	}
	o.loaded = true

	flushed := 0
	for _, msg := range o.pending {
		if err := win.PostMessage(msg, o.origin); err != nil {
			o.loaded = false
			o.logger.Error("flushing queued message failed", map[string]any{
				"type":  msg.Type,
				"error": err.Error(),
			})
			break
		}
		flushed++
	}
	o.pending = append(o.pending[:0:0], o.pending[flushed:]...)
	o.metrics.AddOutboxFlushed(flushed)
	if flushed > 0 {
		o.logger.Debug("queued messages flushed", map[string]any{"count": flushed})
	}
	return flushed
}

// Reset marks the frame unloaded. Queued messages are kept.
func (o *Outbox) Reset() {
	o.mu.Lock()
	o.loaded = false
	o.mu.Unlock()
}

// Pending returns the number of queued messages.
func (o *Outbox) Pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.pending)
}
