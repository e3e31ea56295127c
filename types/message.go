package types

import "time"

// MessageTypeOrchestration marks a full orchestration envelope on the wire.
const MessageTypeOrchestration = "ORCHESTRATION_MESSAGE"

// Message is the object exchanged with frames over the cross-frame channel.
//
// Three shapes share this struct:
//   - the orchestration envelope (Type == MessageTypeOrchestration, all fields set)
//   - the legacy direct shapes, where Type carries the event name and only Data is set
//   - the command forwarding shape, Type == "app:commandReceived"
//
// Tags keep the camelCase keys the browser side uses.
type Message struct {
	// Type discriminates the message shape.
	Type string `json:"type" msgpack:"type"`
	// EventName is the bus event carried by an envelope.
	EventName EventName `json:"eventName,omitempty" msgpack:"eventName,omitempty"`
	// Data is the event payload.
	Data any `json:"data,omitempty" msgpack:"data,omitempty"`
	// Sender is the logical name of the originating party.
	Sender string `json:"sender,omitempty" msgpack:"sender,omitempty"`
	// Timestamp is epoch milliseconds at send time.
	Timestamp int64 `json:"timestamp,omitempty" msgpack:"timestamp,omitempty"`
}

// IsEnvelope reports whether m is a full orchestration envelope.
func (m *Message) IsEnvelope() bool {
	return m != nil && m.Type == MessageTypeOrchestration
}

// IsLegacySelection reports whether m is one of the direct selection shapes
// sent by simplified frames that do not speak the envelope protocol.
func (m *Message) IsLegacySelection() bool {
	if m == nil {
		return false
	}
	switch EventName(m.Type) {
	case EventCSPlayerFilterChanged, EventCSPlayerPackageChanged:
		return true
	default:
		return false
	}
}

// NewEnvelope builds an orchestration envelope stamped with now.
func NewEnvelope(name EventName, data any, sender string, now time.Time) *Message {
	return &Message{
		Type:      MessageTypeOrchestration,
		EventName: name,
		Data:      data,
		Sender:    sender,
		Timestamp: now.UnixMilli(),
	}
}

// NewDirect builds a bare {type, data} message.
func NewDirect(name EventName, data any) *Message {
	return &Message{Type: string(name), Data: data}
}

// Envelope is the delivery metadata handed to every bus subscriber.
type Envelope struct {
	EventName EventName `json:"eventName"`
	Sender    string    `json:"sender"`
	Timestamp time.Time `json:"timestamp"`
}
