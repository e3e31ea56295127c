// Package bus implements the in-process publish/subscribe hub that connects
// frames, the host page, and downstream forwarders.
//
// Delivery is synchronous: Publish returns after every subscriber that was
// registered at call time has run. A failing subscriber is logged and counted
// but never affects the publisher or the remaining subscribers.
package bus

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/pithecene-io/framehub/log"
	"github.com/pithecene-io/framehub/metrics"
	"github.com/pithecene-io/framehub/types"
)

// DefaultLogSize is the number of entries the debug log retains.
const DefaultLogSize = 100

// maxLogData is the number of characters of payload JSON kept per log entry.
const maxLogData = 100

// UnknownTag labels subscriptions registered without a tag.
const UnknownTag = "unknown"

// Handler receives one published event.
// A returned error is logged and counted; it never reaches the publisher.
type Handler func(data any, env types.Envelope) error

// Unsubscribe removes the subscription it was returned for.
// Calling it more than once is a no-op.
type Unsubscribe func()

// SubscriberInfo describes one live subscription.
type SubscriberInfo struct {
	ID  string `json:"id" yaml:"id"`
	Tag string `json:"tag" yaml:"tag"`
}

// LogKind discriminates debug log entries.
type LogKind string

// Log entry kinds.
const (
	LogSubscribe LogKind = "subscribe"
	LogPublish   LogKind = "publish"
)

// LogEntry is one debug log record.
type LogEntry struct {
	Kind      LogKind         `json:"kind" yaml:"kind"`
	EventName types.EventName `json:"event_name" yaml:"event_name"`
	// Party is the subscriber tag for subscribe entries and the sender for publish entries.
	Party     string    `json:"party" yaml:"party"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	// Data is the payload JSON, truncated.
	Data string `json:"data,omitempty" yaml:"data,omitempty"`
}

// Result summarises one Publish call.
type Result struct {
	// Subscribers is the number of subscriptions in the delivery snapshot.
	Subscribers int
	// Delivered counts handlers that returned without error.
	Delivered int
	// Failed counts handlers that returned an error or panicked.
	Failed int
}

type subscription struct {
	id      string
	tag     string
	handler Handler
	removed atomic.Bool
}

// Option configures a Bus.
type Option func(*Bus)

// WithLogSize sets the debug log capacity. Values below 1 are ignored.
func WithLogSize(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.logSize = n
		}
	}
}

// WithMetrics records bus activity into c.
func WithMetrics(c *metrics.Collector) Option {
	return func(b *Bus) { b.metrics = c }
}

// WithClock overrides the time source used for envelopes and log entries.
func WithClock(now func() time.Time) Option {
	return func(b *Bus) { b.now = now }
}

// Bus is the message hub. The zero value is not usable; call New.
type Bus struct {
	mu   sync.Mutex
	subs map[types.EventName][]*subscription

	logMu   sync.Mutex
	entries []LogEntry
	logSize int

	logger  *log.Logger
	metrics *metrics.Collector
	now     func() time.Time
}

// New creates an empty bus.
func New(logger *log.Logger, opts ...Option) *Bus {
	b := &Bus{
		subs:    make(map[types.EventName][]*subscription),
		logSize: DefaultLogSize,
		logger:  log.OrNop(logger),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers handler for name. Each call creates a distinct
// subscription, so registering the same handler twice delivers twice.
// Unknown event names are accepted with a warning.
func (b *Bus) Subscribe(name types.EventName, handler Handler, tag string) Unsubscribe {
	if tag == "" {
		tag = UnknownTag
	}
	b.checkKnown(name, "subscribe")

	sub := &subscription{
		id:      uuid.NewString(),
		tag:     tag,
		handler: handler,
	}

	b.mu.Lock()
	b.subs[name] = append(b.subs[name], sub)
	count := len(b.subs[name])
	b.mu.Unlock()

	b.appendLog(LogEntry{Kind: LogSubscribe, EventName: name, Party: tag})
	b.logger.Debug("subscribed", map[string]any{
		"event_name":  string(name),
		"tag":         tag,
		"subscribers": count,
	})

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(name, sub) })
	}
}

func (b *Bus) remove(name types.EventName, sub *subscription) {
	sub.removed.Store(true)

	b.mu.Lock()
	list := b.subs[name]
	for i, s := range list {
		if s == sub {
			list = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(b.subs, name)
	} else {
		b.subs[name] = list
	}
	b.mu.Unlock()

	b.logger.Debug("unsubscribed", map[string]any{
		"event_name": string(name),
		"tag":        sub.tag,
	})
}

// Publish delivers data to every subscriber of name, in subscription order.
// The subscriber list is snapshotted at call time: subscriptions added during
// delivery wait for the next publish, and subscriptions removed during
// delivery are skipped if their turn has not come yet.
func (b *Bus) Publish(name types.EventName, data any, sender string) Result {
	if sender == "" {
		sender = types.SenderDashboard
	}
	b.checkKnown(name, "publish")

	env := types.Envelope{EventName: name, Sender: sender, Timestamp: b.now()}

	b.mu.Lock()
	snapshot := append([]*subscription(nil), b.subs[name]...)
	b.mu.Unlock()

	b.appendLog(LogEntry{Kind: LogPublish, EventName: name, Party: sender, Data: truncateJSON(data)})
	b.logger.Debug("publishing", map[string]any{
		"event_name":  string(name),
		"sender":      sender,
		"subscribers": len(snapshot),
	})

	res := Result{Subscribers: len(snapshot)}
	for _, sub := range snapshot {
		if sub.removed.Load() {
			continue
		}
		if err := b.deliver(sub, data, env); err != nil {
			res.Failed++
			b.metrics.IncSubscriberFailure()
			b.logger.Error("subscriber failed", map[string]any{
				"event_name":    string(name),
				"tag":           sub.tag,
				"subscriber_id": sub.id,
				"error":         err.Error(),
			})
			continue
		}
		res.Delivered++
	}

	b.metrics.IncPublish(res.Delivered)
	return res
}

// deliver runs one handler, converting a panic into an error.
func (b *Bus) deliver(sub *subscription, data any, env types.Envelope) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("subscriber panic: %v", r)
		}
	}()
	return sub.handler(data, env)
}

func (b *Bus) checkKnown(name types.EventName, op string) {
	if types.IsValidEvent(name) {
		return
	}
	b.metrics.IncUnknownEvent()
	b.logger.Warn("unknown event name", map[string]any{
		"event_name": string(name),
		"operation":  op,
	})
}

// Subscribers lists the live subscriptions for name, in delivery order.
func (b *Bus) Subscribers(name types.EventName) []SubscriberInfo {
	b.mu.Lock()
	defer b.mu.Unlock()
	return infos(b.subs[name])
}

// AllSubscribers lists live subscriptions for every event that has any.
func (b *Bus) AllSubscribers() map[types.EventName][]SubscriberInfo {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[types.EventName][]SubscriberInfo, len(b.subs))
	for name, list := range b.subs {
		out[name] = infos(list)
	}
	return out
}

func infos(list []*subscription) []SubscriberInfo {
	out := make([]SubscriberInfo, len(list))
	for i, s := range list {
		out[i] = SubscriberInfo{ID: s.id, Tag: s.tag}
	}
	return out
}

// EventLog returns the retained debug log, oldest first.
func (b *Bus) EventLog() []LogEntry {
	b.logMu.Lock()
	defer b.logMu.Unlock()
	return append([]LogEntry(nil), b.entries...)
}

// ClearEventLog empties the debug log.
func (b *Bus) ClearEventLog() {
	b.logMu.Lock()
	b.entries = nil
	b.logMu.Unlock()
}

func (b *Bus) appendLog(e LogEntry) {
	e.Timestamp = b.now()
	b.logMu.Lock()
	b.entries = append(b.entries, e)
	if over := len(b.entries) - b.logSize; over > 0 {
		b.entries = append(b.entries[:0:0], b.entries[over:]...)
	}
	b.logMu.Unlock()
}

// truncateJSON renders data as JSON cut to maxLogData characters.
func truncateJSON(data any) string {
	if data == nil {
		return ""
	}
	raw, err := json.Marshal(data)
	if err != nil {
		raw = []byte(fmt.Sprintf("%v", data))
	}
	r := []rune(string(raw))
	if len(r) > maxLogData {
		r = r[:maxLogData]
	}
	return string(r)
}
