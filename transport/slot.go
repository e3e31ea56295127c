package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/pithecene-io/framehub/frame"
	"github.com/pithecene-io/framehub/ipc"
	"github.com/pithecene-io/framehub/log"
	"github.com/pithecene-io/framehub/metrics"
)

// Dispatcher accepts inbound messages for processing.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev frame.MessageEvent) error
}

// SlotConfig configures a Slot.
type SlotConfig struct {
	// Service is the frame service the slot hosts.
	Service string
	// Addr is the TCP listen address, e.g. "127.0.0.1:7301".
	Addr string
	// Dispatcher receives every decoded inbound message.
	Dispatcher Dispatcher
	// OnLoad is called when a peer connects (optional).
	OnLoad func()
	// OnUnload is called when the current peer disconnects (optional).
	OnUnload func()
	// Logger is optional.
	Logger *log.Logger
	// Collector is optional; all methods are nil-safe.
	Collector *metrics.Collector
}

// Slot hosts one frame over TCP. It implements frame.Handle: the content
// window is the most recently connected peer, or nil while none is connected.
type Slot struct {
	config   SlotConfig
	listener net.Listener
	logger   *log.Logger

	mu      sync.Mutex
	current *Conn
	wg      sync.WaitGroup
}

// Listen opens the slot's listener.
func Listen(config SlotConfig) (*Slot, error) {
	if config.Dispatcher == nil {
		return nil, errors.New("slot dispatcher is required")
	}
	ln, err := net.Listen("tcp", config.Addr)
	if err != nil {
		return nil, fmt.Errorf("listen for %s: %w", config.Service, err)
	}
	return &Slot{
		config:   config,
		listener: ln,
		logger:   log.OrNop(config.Logger),
	}, nil
}

// Addr returns the bound listen address.
func (s *Slot) Addr() net.Addr {
	return s.listener.Addr()
}

// Service returns the hosted frame service.
func (s *Slot) Service() string {
	return s.config.Service
}

// ContentWindow returns the connected peer, or nil.
func (s *Slot) ContentWindow() frame.Window {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	return s.current
}

// Serve accepts peers until ctx is cancelled or the listener is closed.
// A new peer replaces the previous one, which is disconnected.
func (s *Slot) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { _ = s.listener.Close() })
	defer stop()

	s.logger.Info("frame slot listening", map[string]any{
		"service": s.config.Service,
		"addr":    s.listener.Addr().String(),
	})

	for {
		nc, err := s.listener.Accept()
		if err != nil {
			s.wg.Wait()
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept for %s: %w", s.config.Service, err)
		}

		conn := newConn(nc)
		s.attach(conn)

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.readLoop(ctx, conn)
		}()
	}
}

func (s *Slot) attach(conn *Conn) {
	s.mu.Lock()
	prev := s.current
	s.current = conn
	s.mu.Unlock()

	if prev != nil {
		_ = prev.Close()
	}
	s.config.Collector.IncConnections()
	s.logger.Info("frame connected", map[string]any{
		"service":  s.config.Service,
		"origin":   conn.Origin(),
		"replaced": prev != nil,
	})
	if s.config.OnLoad != nil {
		s.config.OnLoad()
	}
}

func (s *Slot) detach(conn *Conn) {
	_ = conn.Close()

	s.mu.Lock()
	wasCurrent := s.current == conn
	if wasCurrent {
		s.current = nil
	}
	s.mu.Unlock()

	if !wasCurrent {
		return
	}
	s.logger.Info("frame disconnected", map[string]any{"service": s.config.Service})
	if s.config.OnUnload != nil {
		s.config.OnUnload()
	}
}

func (s *Slot) readLoop(ctx context.Context, conn *Conn) {
	defer s.detach(conn)
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		msg, err := conn.Read()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				return
			}
			if ipc.IsFatalFrameError(err) {
				s.logger.Error("frame stream corrupted", map[string]any{
					"service": s.config.Service,
					"error":   err.Error(),
				})
				return
			}
			var frameErr *ipc.FrameError
			if errors.As(err, &frameErr) {
				s.config.Collector.IncDecodeErrors()
				s.logger.Warn("skipping undecodable frame", map[string]any{
					"service": s.config.Service,
					"error":   err.Error(),
				})
				continue
			}
			s.logger.Debug("frame read ended", map[string]any{
				"service": s.config.Service,
				"error":   err.Error(),
			})
			return
		}

		ev := frame.MessageEvent{Data: msg, Source: conn, Origin: conn.Origin()}
		if err := s.config.Dispatcher.Dispatch(ctx, ev); err != nil {
			s.logger.Warn("dropping inbound message", map[string]any{
				"service": s.config.Service,
				"error":   err.Error(),
			})
			return
		}
	}
}

// Close stops accepting and disconnects the current peer.
func (s *Slot) Close() error {
	err := s.listener.Close()
	s.mu.Lock()
	cur := s.current
	s.mu.Unlock()
	if cur != nil {
		_ = cur.Close()
	}
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}
