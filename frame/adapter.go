package frame

import (
	"errors"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/pithecene-io/framehub/bus"
	"github.com/pithecene-io/framehub/log"
	"github.com/pithecene-io/framehub/metrics"
	"github.com/pithecene-io/framehub/state"
	"github.com/pithecene-io/framehub/types"
)

var (
	// ErrNilHandle is returned when RegisterFrame is given no frame handle.
	ErrNilHandle = errors.New("frame handle is nil")
	// ErrEmptyService is returned when RegisterFrame is given no service name.
	ErrEmptyService = errors.New("frame service name is empty")
)

// SendResult is the outcome of SendToFrame.
type SendResult int

const (
	// Delivered means the message was posted to the frame.
	Delivered SendResult = iota
	// UnknownService means no frame is registered under the name.
	UnknownService
	// FrameNotReady means the frame has no content window yet.
	FrameNotReady
	// SendFailed means posting returned an error.
	SendFailed
)

// String returns the metrics label for r.
func (r SendResult) String() string {
	switch r {
	case Delivered:
		return "delivered"
	case UnknownService:
		return "unknown_service"
	case FrameNotReady:
		return "frame_not_ready"
	case SendFailed:
		return "send_failed"
	default:
		return "unknown"
	}
}

// registration is the adapter's record of one frame.
type registration struct {
	service      string
	handle       Handle
	origin       string
	ready        bool
	messageCount int
	errorCount   int
}

func (r *registration) targetOrigin() string {
	if r.origin == "" {
		return AnyOrigin
	}
	return r.origin
}

// RegisterOption configures one frame registration.
type RegisterOption func(*registration)

// WithOrigin restricts inbound envelopes for the frame to origin and uses it
// as the target origin for outbound messages. An empty origin or "*" trusts all.
func WithOrigin(origin string) RegisterOption {
	return func(r *registration) { r.origin = origin }
}

// FrameStatus is a read-only view of one registration.
type FrameStatus struct {
	Service      string `json:"service" yaml:"service"`
	Ready        bool   `json:"ready" yaml:"ready"`
	MessageCount int    `json:"message_count" yaml:"message_count"`
	ErrorCount   int    `json:"error_count" yaml:"error_count"`
	Origin       string `json:"origin,omitempty" yaml:"origin,omitempty"`
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithMetrics records adapter activity into c.
func WithMetrics(c *metrics.Collector) Option {
	return func(a *Adapter) { a.metrics = c }
}

// WithClock overrides the time source for outbound envelope timestamps.
func WithClock(now func() time.Time) Option {
	return func(a *Adapter) { a.now = now }
}

// Adapter owns the frame registry and translates between frames and the bus.
type Adapter struct {
	mu        sync.Mutex
	frames    map[string]*registration
	listening bool

	bus     *bus.Bus
	store   *state.Store
	source  MessageSource
	logger  *log.Logger
	metrics *metrics.Collector
	now     func() time.Time
}

// NewAdapter creates an adapter publishing onto b and updating store.
// Inbound messages are read from source once the first frame registers.
func NewAdapter(b *bus.Bus, store *state.Store, source MessageSource, logger *log.Logger, opts ...Option) *Adapter {
	a := &Adapter{
		frames: make(map[string]*registration),
		bus:    b,
		store:  store,
		source: source,
		logger: log.OrNop(logger),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// RegisterFrame records handle under service, replacing any previous
// registration for that name. The first successful registration installs the
// inbound listener on the message source.
func (a *Adapter) RegisterFrame(service string, handle Handle, opts ...RegisterOption) error {
	if isNilHandle(handle) {
		a.logger.Error("cannot register frame without handle", map[string]any{"service": service})
		return ErrNilHandle
	}
	if service == "" {
		a.logger.Error("cannot register frame without service name", nil)
		return ErrEmptyService
	}

	reg := &registration{service: service, handle: handle}
	for _, opt := range opts {
		opt(reg)
	}

	a.mu.Lock()
	_, replaced := a.frames[service]
	a.frames[service] = reg
	install := !a.listening && a.source != nil
	if install {
		a.listening = true
	}
	a.mu.Unlock()

	if install {
		a.source.AddMessageListener(a.HandleMessage)
		a.logger.Debug("message listener installed", nil)
	}

	a.logger.Info("frame registered", map[string]any{
		"service":  service,
		"origin":   reg.targetOrigin(),
		"replaced": replaced,
	})
	return nil
}

// SendToFrame posts an orchestration envelope carrying eventName and data to
// the frame registered under service.
func (a *Adapter) SendToFrame(service string, eventName types.EventName, data any) SendResult {
	res := a.send(service, eventName, data)
	a.metrics.IncSend(res.String())
	return res
}

func (a *Adapter) send(service string, eventName types.EventName, data any) SendResult {
	if !types.IsValidEvent(eventName) {
		a.metrics.IncUnknownEvent()
		a.logger.Warn("sending unknown event", map[string]any{
			"service":    service,
			"event_name": string(eventName),
		})
	}

	a.mu.Lock()
	reg, ok := a.frames[service]
	a.mu.Unlock()
	if !ok {
		a.logger.Error("frame not registered", map[string]any{
			"service":   service,
			"available": a.Services(),
		})
		return UnknownService
	}

	win := reg.handle.ContentWindow()
	if win == nil {
		a.logger.Error("frame not ready", map[string]any{"service": service})
		return FrameNotReady
	}

	msg := types.NewEnvelope(eventName, data, types.SenderDashboard, a.now())
	if err := win.PostMessage(msg, reg.targetOrigin()); err != nil {
		a.mu.Lock()
		reg.errorCount++
		a.mu.Unlock()
		a.logger.Error("post to frame failed", map[string]any{
			"service":    service,
			"event_name": string(eventName),
			"error":      err.Error(),
		})
		return SendFailed
	}

	a.mu.Lock()
	reg.messageCount++
	a.mu.Unlock()
	a.logger.Debug("sent to frame", map[string]any{
		"service":    service,
		"event_name": string(eventName),
	})
	return Delivered
}

// HandleMessage processes one inbound message. It is installed as the
// message source listener and may also be called directly.
func (a *Adapter) HandleMessage(ev MessageEvent) {
	msg := ev.Data
	switch {
	case msg.IsEnvelope():
		a.handleEnvelope(ev)
	case msg.IsLegacySelection():
		a.metrics.IncInboundLegacy()
		name := types.EventName(msg.Type)
		a.logger.Debug("legacy message received", map[string]any{
			"event_name": msg.Type,
			"origin":     ev.Origin,
		})
		a.applySelection(name, msg.Data)
		a.bus.Publish(name, msg.Data, types.SenderTestStub)
	default:
		a.metrics.IncInboundIgnored()
	}
}

func (a *Adapter) handleEnvelope(ev MessageEvent) {
	msg := ev.Data
	reg := a.lookupSource(ev.Source)
	if reg == nil {
		a.metrics.IncInboundUnmatched()
		a.logger.Warn("message from unregistered source", map[string]any{
			"event_name": string(msg.EventName),
			"origin":     ev.Origin,
		})
		return
	}

	if reg.origin != "" && reg.origin != AnyOrigin && ev.Origin != reg.origin {
		a.metrics.IncInboundRejected()
		a.logger.Warn("message origin rejected", map[string]any{
			"service":  reg.service,
			"origin":   ev.Origin,
			"expected": reg.origin,
		})
		return
	}
	a.metrics.IncInboundEnvelope()

	a.mu.Lock()
	becameReady := !reg.ready
	reg.ready = true
	a.mu.Unlock()

	if becameReady {
		a.metrics.IncFrameReady()
		a.logger.Info("frame ready", map[string]any{"service": reg.service})
		a.bus.Publish(types.EventFrameReady, types.FrameReadyPayload{Service: reg.service}, types.SenderDashboard)
	}

	a.logger.Debug("message received", map[string]any{
		"service":    reg.service,
		"event_name": string(msg.EventName),
	})
	a.applySelection(msg.EventName, msg.Data)
	a.bus.Publish(msg.EventName, msg.Data, reg.service)
}

// lookupSource finds the registration whose content window is source.
func (a *Adapter) lookupSource(source Window) *registration {
	if source == nil {
		return nil
	}
	a.mu.Lock()
	regs := make([]*registration, 0, len(a.frames))
	for _, r := range a.frames {
		regs = append(regs, r)
	}
	a.mu.Unlock()

	for _, r := range regs {
		if win := r.handle.ContentWindow(); win != nil && win == source {
			return r
		}
	}
	return nil
}

// applySelection mirrors selection events into the state store. A missing or
// empty name leaves the stored selection as it was.
func (a *Adapter) applySelection(name types.EventName, data any) {
	if a.store == nil {
		return
	}
	switch name {
	case types.EventCSPlayerFilterChanged:
		p, err := types.DecodeAs[types.FilterChangedPayload](data)
		if err != nil {
			a.logger.Warn("bad filterChanged payload", map[string]any{"error": err.Error()})
			return
		}
		if p.CSXUName == "" {
			return
		}
		a.store.Set(state.Partial{state.KeySelectedExecutionUnit: &p.CSXUName})
	case types.EventCSPlayerPackageChanged:
		p, err := types.DecodeAs[types.PackageChangedPayload](data)
		if err != nil {
			a.logger.Warn("bad packageChanged payload", map[string]any{"error": err.Error()})
			return
		}
		if p.PackageName == "" {
			return
		}
		a.store.Set(state.Partial{state.KeySelectedPackage: &p.PackageName})
	}
}


// Status reports every registration, sorted by service.
func (a *Adapter) Status() []FrameStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]FrameStatus, 0, len(a.frames))
	for _, r := range a.frames {
		out = append(out, FrameStatus{
			Service:      r.service,
			Ready:        r.ready,
			MessageCount: r.messageCount,
			ErrorCount:   r.errorCount,
			Origin:       r.origin,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Service < out[j].Service })
	return out
}

// Services returns the registered service names, sorted.
func (a *Adapter) Services() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.frames))
	for name := range a.frames {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// isNilHandle also catches a typed nil pointer wrapped in the interface.
func isNilHandle(h Handle) bool {
	if h == nil {
		return true
	}
	v := reflect.ValueOf(h)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return v.IsNil()
	}
	return false
}
