// Package metrics provides per-session orchestration counters.
//
// The Collector is a leaf package with no internal dependencies. The bus, the
// frame adapter, the transports, the forwarder and the journal each record into
// the same Collector; Snapshot returns a consistent copy.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all counters.
type Snapshot struct {
	// Bus
	Publishes          int64 `json:"publishes"`
	Deliveries         int64 `json:"deliveries"`
	SubscriberFailures int64 `json:"subscriber_failures"`
	UnknownEvents      int64 `json:"unknown_events"`

	// Inbound frame messages
	InboundEnvelopes int64 `json:"inbound_envelopes"`
	InboundLegacy    int64 `json:"inbound_legacy"`
	InboundIgnored   int64 `json:"inbound_ignored"`
	InboundUnmatched int64 `json:"inbound_unmatched"`
	InboundRejected  int64 `json:"inbound_rejected"`
	FramesReady      int64 `json:"frames_ready"`

	// Outbound frame messages, keyed by send result
	SendsByResult map[string]int64 `json:"sends_by_result"`
	OutboxQueued  int64            `json:"outbox_queued"`
	OutboxFlushed int64            `json:"outbox_flushed"`

	// Transport
	DecodeErrors int64 `json:"decode_errors"`
	Connections  int64 `json:"connections"`

	// Downstream forwarding
	ForwardSuccess int64 `json:"forward_success"`
	ForwardFailure int64 `json:"forward_failure"`
	ForwardDropped int64 `json:"forward_dropped"`

	// Journal
	JournalWriteSuccess int64 `json:"journal_write_success"`
	JournalWriteFailure int64 `json:"journal_write_failure"`
	JournalDropped      int64 `json:"journal_dropped"`

	// Dimensions
	SessionID string `json:"session_id"`
}

// Collector accumulates counters for one orchestration session.
// Thread-safe via sync.Mutex. All methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex

	publishes          int64
	deliveries         int64
	subscriberFailures int64
	unknownEvents      int64

	inboundEnvelopes int64
	inboundLegacy    int64
	inboundIgnored   int64
	inboundUnmatched int64
	inboundRejected  int64
	framesReady      int64

	sendsByResult map[string]int64
	outboxQueued  int64
	outboxFlushed int64

	decodeErrors int64
	connections  int64

	forwardSuccess int64
	forwardFailure int64
	forwardDropped int64

	journalWriteSuccess int64
	journalWriteFailure int64
	journalDropped      int64

	sessionID string
}

// NewCollector creates a Collector labelled with the session ID.
func NewCollector(sessionID string) *Collector {
	return &Collector{
		sendsByResult: make(map[string]int64),
		sessionID:     sessionID,
	}
}

func (c *Collector) add(field *int64, n int64) {
	c.mu.Lock()
	*field += n
	c.mu.Unlock()
}

// --- Bus ---

// IncPublish records one Publish call and the number of handlers it reached.
func (c *Collector) IncPublish(delivered int) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.publishes++
	c.deliveries += int64(delivered)
	c.mu.Unlock()
}

// IncSubscriberFailure records a handler that returned an error or panicked.
func (c *Collector) IncSubscriberFailure() {
	if c == nil {
		return
	}
	c.add(&c.subscriberFailures, 1)
}

// IncUnknownEvent records use of an event name outside the registry.
func (c *Collector) IncUnknownEvent() {
	if c == nil {
		return
	}
	c.add(&c.unknownEvents, 1)
}

// --- Inbound ---

// IncInboundEnvelope records an accepted orchestration envelope.
func (c *Collector) IncInboundEnvelope() {
	if c == nil {
		return
	}
	c.add(&c.inboundEnvelopes, 1)
}

// IncInboundLegacy records an accepted legacy direct message.
func (c *Collector) IncInboundLegacy() {
	if c == nil {
		return
	}
	c.add(&c.inboundLegacy, 1)
}

// IncInboundIgnored records a message outside every known shape.
func (c *Collector) IncInboundIgnored() {
	if c == nil {
		return
	}
	c.add(&c.inboundIgnored, 1)
}

// IncInboundUnmatched records an envelope whose source matched no frame.
func (c *Collector) IncInboundUnmatched() {
	if c == nil {
		return
	}
	c.add(&c.inboundUnmatched, 1)
}

// IncInboundRejected records a message refused by an origin allow-list.
func (c *Collector) IncInboundRejected() {
	if c == nil {
		return
	}
	c.add(&c.inboundRejected, 1)
}

// IncFrameReady records a frame's ready transition.
func (c *Collector) IncFrameReady() {
	if c == nil {
		return
	}
	c.add(&c.framesReady, 1)
}

// --- Outbound ---

// IncSend records a SendToFrame outcome by its result label.
func (c *Collector) IncSend(result string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.sendsByResult[result]++
	c.mu.Unlock()
}

// IncOutboxQueued records a message parked in an outbox.
func (c *Collector) IncOutboxQueued() {
	if c == nil {
		return
	}
	c.add(&c.outboxQueued, 1)
}

// AddOutboxFlushed records messages drained from an outbox.
func (c *Collector) AddOutboxFlushed(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.add(&c.outboxFlushed, int64(n))
}

// --- Transport ---

// IncDecodeErrors records an undecodable wire frame.
func (c *Collector) IncDecodeErrors() {
	if c == nil {
		return
	}
	c.add(&c.decodeErrors, 1)
}

// IncConnections records an accepted frame connection.
func (c *Collector) IncConnections() {
	if c == nil {
		return
	}
	c.add(&c.connections, 1)
}

// --- Forwarding ---

// IncForwardSuccess records a notification accepted downstream.
func (c *Collector) IncForwardSuccess() {
	if c == nil {
		return
	}
	c.add(&c.forwardSuccess, 1)
}

// IncForwardFailure records a notification that exhausted its retries.
func (c *Collector) IncForwardFailure() {
	if c == nil {
		return
	}
	c.add(&c.forwardFailure, 1)
}

// IncForwardDropped records a notification dropped on a full queue.
func (c *Collector) IncForwardDropped() {
	if c == nil {
		return
	}
	c.add(&c.forwardDropped, 1)
}

// --- Journal ---
// Journal counters are per write call, not per record.

// IncJournalWriteSuccess records a successful journal batch write.
func (c *Collector) IncJournalWriteSuccess() {
	if c == nil {
		return
	}
	c.add(&c.journalWriteSuccess, 1)
}

// IncJournalWriteFailure records a failed journal batch write.
func (c *Collector) IncJournalWriteFailure() {
	if c == nil {
		return
	}
	c.add(&c.journalWriteFailure, 1)
}

// IncJournalDropped records a record dropped on a full journal queue.
func (c *Collector) IncJournalDropped() {
	if c == nil {
		return
	}
	c.add(&c.journalDropped, 1)
}

// Snapshot returns a consistent copy of every counter.
// A nil Collector yields a zero Snapshot with an empty result map.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{SendsByResult: map[string]int64{}}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	sends := make(map[string]int64, len(c.sendsByResult))
	for k, v := range c.sendsByResult {
		sends[k] = v
	}

	return Snapshot{
		Publishes:           c.publishes,
		Deliveries:          c.deliveries,
		SubscriberFailures:  c.subscriberFailures,
		UnknownEvents:       c.unknownEvents,
		InboundEnvelopes:    c.inboundEnvelopes,
		InboundLegacy:       c.inboundLegacy,
		InboundIgnored:      c.inboundIgnored,
		InboundUnmatched:    c.inboundUnmatched,
		InboundRejected:     c.inboundRejected,
		FramesReady:         c.framesReady,
		SendsByResult:       sends,
		OutboxQueued:        c.outboxQueued,
		OutboxFlushed:       c.outboxFlushed,
		DecodeErrors:        c.decodeErrors,
		Connections:         c.connections,
		ForwardSuccess:      c.forwardSuccess,
		ForwardFailure:      c.forwardFailure,
		ForwardDropped:      c.forwardDropped,
		JournalWriteSuccess: c.journalWriteSuccess,
		JournalWriteFailure: c.journalWriteFailure,
		JournalDropped:      c.journalDropped,
		SessionID:           c.sessionID,
	}
}
