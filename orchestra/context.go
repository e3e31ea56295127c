// Package orchestra assembles the bus, state store, frame adapter, metrics
// and event loop of one orchestration session.
package orchestra

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/pithecene-io/framehub/bus"
	"github.com/pithecene-io/framehub/frame"
	"github.com/pithecene-io/framehub/log"
	"github.com/pithecene-io/framehub/metrics"
	"github.com/pithecene-io/framehub/state"
	"github.com/pithecene-io/framehub/types"
)

// Config configures a session.
type Config struct {
	// SessionID labels logs, metrics and downstream records.
	// If empty, a UUID is generated.
	SessionID string
	// LogSize is the bus debug log capacity (default bus.DefaultLogSize).
	LogSize int
	// QueueSize is the event loop buffer (default DefaultQueueSize).
	QueueSize int
	// Logger is the session logger. If nil, logging is discarded.
	Logger *log.Logger
	// Clock overrides time.Now for envelopes and log entries.
	Clock func() time.Time
}

// Context owns every component of one session. Components hold no globals;
// two Contexts in one process are fully independent.
type Context struct {
	SessionID string
	Bus       *bus.Bus
	State     *state.Store
	Frames    *frame.Adapter
	Loop      *Loop
	Metrics   *metrics.Collector
	Logger    *log.Logger
}

// New wires a session. Call Loop.Run to start processing inbound messages.
func New(cfg Config) *Context {
	sessionID := cfg.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	logger := log.OrNop(cfg.Logger)
	collector := metrics.NewCollector(sessionID)

	busOpts := []bus.Option{bus.WithMetrics(collector), bus.WithLogSize(cfg.LogSize)}
	frameOpts := []frame.Option{frame.WithMetrics(collector)}
	if cfg.Clock != nil {
		busOpts = append(busOpts, bus.WithClock(cfg.Clock))
		frameOpts = append(frameOpts, frame.WithClock(cfg.Clock))
	}

	b := bus.New(logger.Named("bus"), busOpts...)
	store := state.NewStore(logger.Named("state"))
	loop := NewLoop(cfg.QueueSize, logger.Named("loop"))
	frames := frame.NewAdapter(b, store, loop, logger.Named("frame"), frameOpts...)

	return &Context{
		SessionID: sessionID,
		Bus:       b,
		State:     store,
		Frames:    frames,
		Loop:      loop,
		Metrics:   collector,
		Logger:    logger,
	}
}

// Publish schedules a publish from the host page onto the event loop.
func (c *Context) Publish(ctx context.Context, name types.EventName, data any) error {
	return c.Loop.Do(ctx, func() {
		c.Bus.Publish(name, data, types.SenderDashboard)
	})
}

// Send schedules a SendToFrame onto the event loop and waits for its result.
func (c *Context) Send(ctx context.Context, service string, name types.EventName, data any) (frame.SendResult, error) {
	var res frame.SendResult
	err := c.Loop.Wait(ctx, func() {
		res = c.Frames.SendToFrame(service, name, data)
	})
	return res, err
}

// Snapshot is a point-in-time view of a session for status surfaces.
type Snapshot struct {
	SessionID string              `json:"session_id" yaml:"session_id"`
	State     state.State         `json:"state" yaml:"state"`
	Frames    []frame.FrameStatus `json:"frames" yaml:"frames"`
	EventLog  []bus.LogEntry      `json:"event_log" yaml:"event_log"`
	Metrics   metrics.Snapshot    `json:"metrics" yaml:"metrics"`
}

// Snapshot collects the current session view.
func (c *Context) Snapshot() Snapshot {
	return Snapshot{
		SessionID: c.SessionID,
		State:     c.State.Get(),
		Frames:    c.Frames.Status(),
		EventLog:  c.Bus.EventLog(),
		Metrics:   c.Metrics.Snapshot(),
	}
}
