package adapter

import (
	"context"
	"sync"

	"github.com/pithecene-io/framehub/bus"
	"github.com/pithecene-io/framehub/log"
	"github.com/pithecene-io/framehub/metrics"
	"github.com/pithecene-io/framehub/types"
)

// DefaultQueueSize bounds notifications waiting for the adapter.
const DefaultQueueSize = 128

// ForwarderConfig configures a Forwarder.
type ForwarderConfig struct {
	// SessionID is stamped on every notification.
	SessionID string
	// Events limits forwarding to these names. Empty forwards the whole catalog.
	Events []types.EventName
	// QueueSize bounds the pending queue (default DefaultQueueSize).
	// When full, new notifications are dropped and counted.
	QueueSize int
	// Logger is optional.
	Logger *log.Logger
	// Collector is optional; all methods are nil-safe.
	Collector *metrics.Collector
}

// Forwarder relays bus events to an Adapter.
type Forwarder struct {
	adapter Adapter
	bus     *bus.Bus
	config  ForwarderConfig
	logger  *log.Logger

	mu      sync.Mutex
	queue   chan *Notification
	closed  bool
	started bool
	unsubs  []bus.Unsubscribe
	done    chan struct{}
}

// NewForwarder creates a forwarder. Call Start to begin forwarding.
func NewForwarder(a Adapter, b *bus.Bus, config ForwarderConfig) *Forwarder {
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultQueueSize
	}
	if len(config.Events) == 0 {
		for _, info := range types.Catalog() {
			config.Events = append(config.Events, info.Name)
		}
	}
	return &Forwarder{
		adapter: a,
		bus:     b,
		config:  config,
		logger:  log.OrNop(config.Logger),
		queue:   make(chan *Notification, config.QueueSize),
		done:    make(chan struct{}),
	}
}

// Start subscribes to the configured events and starts the publish worker.
// The worker stops when ctx is cancelled or Close is called.
func (f *Forwarder) Start(ctx context.Context) {
	for _, name := range f.config.Events {
		f.unsubs = append(f.unsubs, f.bus.Subscribe(name, f.enqueue, "forwarder"))
	}
	f.mu.Lock()
	f.started = true
	f.mu.Unlock()
	go f.run(ctx)
}

func (f *Forwarder) enqueue(data any, env types.Envelope) error {
	n := NewNotification(f.config.SessionID, data, env)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	select {
	case f.queue <- n:
	default:
		f.config.Collector.IncForwardDropped()
		f.logger.Warn("forward queue full, dropping notification", map[string]any{
			"event_name": n.EventName,
		})
	}
	return nil
}

func (f *Forwarder) run(ctx context.Context) {
	defer close(f.done)
	for n := range f.queue {
		if err := f.adapter.Publish(ctx, n); err != nil {
			f.config.Collector.IncForwardFailure()
			f.logger.Error("forward failed", map[string]any{
				"event_name": n.EventName,
				"error":      err.Error(),
			})
			continue
		}
		f.config.Collector.IncForwardSuccess()
	}
}

// Close unsubscribes, publishes what is already queued, and closes the adapter.
func (f *Forwarder) Close() error {
	for _, u := range f.unsubs {
		u()
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	close(f.queue)
	started := f.started
	f.mu.Unlock()

	if started {
		<-f.done
	}
	return f.adapter.Close()
}
