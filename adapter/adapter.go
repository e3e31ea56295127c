// Package adapter defines the downstream notification boundary.
//
// Adapters publish bus traffic to systems outside the dashboard (a Redis
// channel, an HTTP endpoint). The Forwarder subscribes to the bus and feeds an
// Adapter from a background goroutine so bus delivery never waits on the network.
package adapter

import (
	"context"
	"time"

	"github.com/pithecene-io/framehub/types"
)

// Notification is the payload published for each forwarded bus event.
type Notification struct {
	ContractVersion string `json:"contract_version"`
	EventName       string `json:"event_name"`
	Service         string `json:"service"`
	Category        string `json:"category,omitempty"` // empty for events outside the catalog
	Sender          string `json:"sender"`
	Data            any    `json:"data,omitempty"`
	Timestamp       string `json:"timestamp"` // RFC 3339, UTC
	SessionID       string `json:"session_id"`
}

// NewNotification builds the notification for one delivery.
func NewNotification(sessionID string, data any, env types.Envelope) *Notification {
	category, _ := types.CategoryOf(env.EventName)
	return &Notification{
		ContractVersion: types.ContractVersion,
		EventName:       string(env.EventName),
		Service:         env.EventName.Service(),
		Category:        string(category),
		Sender:          env.Sender,
		Data:            data,
		Timestamp:       env.Timestamp.UTC().Format(time.RFC3339Nano),
		SessionID:       sessionID,
	}
}

// Adapter publishes notifications to a downstream system.
type Adapter interface {
	// Publish sends one notification.
	// Must respect context cancellation and deadlines.
	Publish(ctx context.Context, n *Notification) error

	// Close releases adapter resources.
	Close() error
}
