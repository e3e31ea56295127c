package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/framehub/adapter"
	redisadapter "github.com/pithecene-io/framehub/adapter/redis"
	"github.com/pithecene-io/framehub/adapter/webhook"
	"github.com/pithecene-io/framehub/cli/config"
	"github.com/pithecene-io/framehub/cli/tui"
	"github.com/pithecene-io/framehub/frame"
	"github.com/pithecene-io/framehub/journal"
	"github.com/pithecene-io/framehub/log"
	"github.com/pithecene-io/framehub/orchestra"
	"github.com/pithecene-io/framehub/transport"
)

// Adapter types accepted by --adapter.
const (
	adapterRedis   = "redis"
	adapterWebhook = "webhook"
)

// shutdownTimeout bounds how long serve waits for workers after a signal.
const shutdownTimeout = 15 * time.Second

// ServeCommand returns the serve command.
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Host an orchestration session and accept frames over TCP",
		Description: `Starts one session: a message bus, a state store and a frame adapter.
Each --frame opens a TCP slot a frame connects to. Optional components:
a command relay into one frame, a downstream forwarder (redis or webhook)
and a journal archiving bus traffic to Lode storage.

Values come from flags first, then framehub.yaml, then defaults.

Examples:
  framehub serve --frame csPlayer=127.0.0.1:7301 --frame airflow=127.0.0.1:7302
  framehub serve --config framehub.yaml --tui
  framehub serve --frame csPlayer=:7301 --relay csPlayer --stdin-commands`,
		Flags: []cli.Flag{
			ConfigFlag,
			LogLevelFlag,
			&cli.StringFlag{
				Name:  "session",
				Usage: "Session ID (default: generated UUID)",
			},
			&cli.StringSliceFlag{
				Name:  "frame",
				Usage: "Frame slot as service=addr (repeatable; replaces config frames)",
			},
			&cli.IntFlag{
				Name:  "bus-log-size",
				Value: 100,
				Usage: "Number of bus debug log entries retained",
			},
			&cli.StringFlag{
				Name:  "relay",
				Usage: "Frame that receives app:commandSent as app:commandReceived",
			},
			&cli.StringFlag{
				Name:  "adapter",
				Usage: "Downstream adapter: redis, webhook (default: none)",
			},
			&cli.StringFlag{
				Name:  "adapter-url",
				Usage: "Redis URL or webhook endpoint",
			},
			&cli.StringFlag{
				Name:  "adapter-channel",
				Usage: "Redis channel; {service} is replaced per event",
			},
			&cli.DurationFlag{
				Name:  "adapter-timeout",
				Value: 10 * time.Second,
				Usage: "Per-publish timeout",
			},
			&cli.IntFlag{
				Name:  "adapter-retries",
				Value: 3,
				Usage: "Retry attempts per notification",
			},
			&cli.StringFlag{
				Name:  "journal-backend",
				Usage: "Journal storage: fs, s3, memory (default: none)",
			},
			&cli.StringFlag{
				Name:  "journal-path",
				Usage: "Journal directory (fs) or bucket/prefix (s3)",
			},
			&cli.StringFlag{
				Name:  "journal-region",
				Usage: "AWS region for the s3 journal",
			},
			&cli.StringFlag{
				Name:  "journal-endpoint",
				Usage: "Custom S3 endpoint (MinIO, R2)",
			},
			&cli.BoolFlag{
				Name:  "journal-s3-path-style",
				Usage: "Use path-style S3 addressing",
			},
			&cli.StringFlag{
				Name:  "journal-dataset",
				Value: journal.DefaultDataset,
				Usage: "Journal dataset name",
			},
			&cli.BoolFlag{
				Name:  "tui",
				Usage: "Show the live session monitor",
			},
			&cli.StringFlag{
				Name:  "tui-log-file",
				Usage: "With --tui, append logs to this file instead of discarding them",
			},
			&cli.BoolFlag{
				Name:  "stdin-commands",
				Usage: "Read publish/send/command lines from stdin",
			},
		},
		Action: serveAction,
	}
}

// serveOptions is the fully resolved serve configuration.
type serveOptions struct {
	SessionID     string
	LogSize       int
	Frames        []config.FrameConfig
	RelayService  string
	Adapter       adapterOptions
	Journal       journalOptions
	TUI           bool
	TUILogFile    string
	StdinCommands bool
}

type adapterOptions struct {
	Type      string
	URL       string
	Channel   string
	Headers   map[string]string
	Timeout   time.Duration
	Retries   int
	Events    []string
	QueueSize int
}

type journalOptions struct {
	Backend       string
	Path          string
	Region        string
	Endpoint      string
	PathStyle     bool
	Dataset       string
	BatchSize     int
	FlushInterval time.Duration
}

func serveAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}
	opts, err := resolveServeOptions(c, cfg)
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}

	logger := newLogger(c, cfg, opts.SessionID)
	if opts.TUI {
		// The monitor owns the terminal; logs would tear the screen.
		var closeLog func() error
		logger, closeLog, err = redirectLogger(logger, opts.TUILogFile)
		if err != nil {
			return cli.Exit(err.Error(), 2)
		}
		defer func() { _ = closeLog() }()
	}
	defer func() { _ = logger.Sync() }()

	for _, name := range configVal(cfg, (*config.Config).UnknownEvents) {
		logger.Warn("adapter.events names an unknown event", map[string]any{"event_name": name})
	}

	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	sess, err := startSession(ctx, opts, logger)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	switch {
	case opts.TUI:
		err = tui.Run(ctx, sess.hub.Snapshot)
		cancel()
	case opts.StdinCommands:
		var quit bool
		quit, err = runStdinCommands(ctx, os.Stdin, c.App.Writer, sess.hub)
		if err == nil && !quit {
			// End of input keeps the session up until a signal arrives.
			<-ctx.Done()
		}
		cancel()
	default:
		<-ctx.Done()
	}

	sess.close()
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	return nil
}

// redirectLogger moves logger off stderr: to path when given, otherwise
// nowhere. The returned func closes the file.
func redirectLogger(logger *log.Logger, path string) (*log.Logger, func() error, error) {
	if path == "" {
		return logger.WithOutput(io.Discard), func() error { return nil }, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open --tui-log-file: %w", err)
	}
	return logger.WithOutput(f), f.Close, nil
}

// resolveServeOptions merges flags over cfg and validates the result.
func resolveServeOptions(c *cli.Context, cfg *config.Config) (serveOptions, error) {
	opts := serveOptions{
		SessionID:     resolveString(c, "session", configVal(cfg, func(c *config.Config) string { return c.Session })),
		LogSize:       resolveInt(c, "bus-log-size", configVal(cfg, func(c *config.Config) int { return c.Bus.LogSize })),
		RelayService:  resolveString(c, "relay", configVal(cfg, func(c *config.Config) string { return c.Relay.Service })),
		TUI:           c.Bool("tui"),
		TUILogFile:    c.String("tui-log-file"),
		StdinCommands: c.Bool("stdin-commands"),
	}
	if opts.SessionID == "" {
		opts.SessionID = uuid.NewString()
	}
	if opts.TUI && opts.StdinCommands {
		return opts, errors.New("--tui and --stdin-commands cannot be combined")
	}

	if c.IsSet("frame") {
		frames, err := parseFrameSpecs(c.StringSlice("frame"))
		if err != nil {
			return opts, err
		}
		opts.Frames = frames
	} else {
		opts.Frames = configVal(cfg, func(c *config.Config) []config.FrameConfig { return c.Frames })
	}
	if len(opts.Frames) == 0 {
		return opts, errors.New("no frames declared: use --frame service=addr or frames: in framehub.yaml")
	}
	if opts.RelayService != "" && !hasFrame(opts.Frames, opts.RelayService) {
		return opts, fmt.Errorf("--relay %q is not a declared frame", opts.RelayService)
	}

	ac := configVal(cfg, func(c *config.Config) config.AdapterConfig { return c.Adapter })
	opts.Adapter = adapterOptions{
		Type:      resolveString(c, "adapter", ac.Type),
		URL:       resolveString(c, "adapter-url", ac.URL),
		Channel:   resolveString(c, "adapter-channel", ac.Channel),
		Headers:   ac.Headers,
		Timeout:   resolveDuration(c, "adapter-timeout", ac.Timeout.Duration),
		Retries:   c.Int("adapter-retries"),
		Events:    ac.Events,
		QueueSize: ac.QueueSize,
	}
	// A configured zero is meaningful, so retries cannot use resolveInt.
	if !c.IsSet("adapter-retries") && ac.Retries != nil {
		opts.Adapter.Retries = *ac.Retries
	}
	switch opts.Adapter.Type {
	case "":
	case adapterRedis, adapterWebhook:
		if opts.Adapter.URL == "" {
			return opts, fmt.Errorf("--adapter-url is required for --adapter %s", opts.Adapter.Type)
		}
	default:
		return opts, fmt.Errorf("--adapter must be redis or webhook, got %q", opts.Adapter.Type)
	}
	if opts.Adapter.Retries < 0 {
		return opts, fmt.Errorf("--adapter-retries must be >= 0, got %d", opts.Adapter.Retries)
	}

	jc := configVal(cfg, func(c *config.Config) config.JournalConfig { return c.Journal })
	opts.Journal = journalOptions{
		Backend:       resolveString(c, "journal-backend", jc.Backend),
		Path:          resolveString(c, "journal-path", jc.Path),
		Region:        resolveString(c, "journal-region", jc.Region),
		Endpoint:      resolveString(c, "journal-endpoint", jc.Endpoint),
		PathStyle:     resolveBool(c, "journal-s3-path-style", jc.S3PathStyle),
		Dataset:       resolveString(c, "journal-dataset", jc.Dataset),
		BatchSize:     jc.BatchSize,
		FlushInterval: jc.FlushInterval.Duration,
	}
	switch opts.Journal.Backend {
	case "", journal.BackendMemory:
	case journal.BackendFS, journal.BackendS3:
		if opts.Journal.Path == "" {
			return opts, fmt.Errorf("--journal-path is required for --journal-backend %s", opts.Journal.Backend)
		}
	default:
		return opts, fmt.Errorf("--journal-backend must be fs, s3 or memory, got %q", opts.Journal.Backend)
	}

	return opts, nil
}

// parseFrameSpecs parses service=addr pairs.
func parseFrameSpecs(specs []string) ([]config.FrameConfig, error) {
	frames := make([]config.FrameConfig, 0, len(specs))
	seen := make(map[string]bool, len(specs))
	for _, spec := range specs {
		service, addr, ok := strings.Cut(spec, "=")
		service = strings.TrimSpace(service)
		addr = strings.TrimSpace(addr)
		if !ok || service == "" || addr == "" {
			return nil, fmt.Errorf("invalid --frame %q: expected service=addr", spec)
		}
		if seen[service] {
			return nil, fmt.Errorf("duplicate --frame service %q", service)
		}
		seen[service] = true
		frames = append(frames, config.FrameConfig{Service: service, Listen: addr})
	}
	return frames, nil
}

func hasFrame(frames []config.FrameConfig, service string) bool {
	for _, f := range frames {
		if f.Service == service {
			return true
		}
	}
	return false
}

// session is a running serve instance.
type session struct {
	hub       *orchestra.Context
	logger    *log.Logger
	slots     []*transport.Slot
	relay     *frame.CommandRelay
	forwarder *adapter.Forwarder
	journal   *journal.Writer
	wg        sync.WaitGroup
}

// startSession wires every component and starts the event loop and slots.
// Everything stops when ctx is cancelled; close waits for it.
func startSession(ctx context.Context, opts serveOptions, logger *log.Logger) (*session, error) {
	hub := orchestra.New(orchestra.Config{
		SessionID: opts.SessionID,
		LogSize:   opts.LogSize,
		Logger:    logger,
	})
	s := &session{hub: hub, logger: logger}

	for _, fc := range opts.Frames {
		if err := s.openSlot(fc, opts.RelayService); err != nil {
			s.closeSlots()
			return nil, err
		}
	}

	if opts.Adapter.Type != "" {
		a, err := newAdapter(opts.Adapter)
		if err != nil {
			s.closeSlots()
			return nil, err
		}
		s.forwarder = adapter.NewForwarder(a, hub.Bus, adapter.ForwarderConfig{
			SessionID: hub.SessionID,
			Events:    toEventNames(opts.Adapter.Events),
			QueueSize: opts.Adapter.QueueSize,
			Logger:    logger.Named("forwarder"),
			Collector: hub.Metrics,
		})
		s.forwarder.Start(ctx)
	}

	if opts.Journal.Backend != "" {
		w, err := newJournalWriter(ctx, hub, opts.Journal, logger.Named("journal"))
		if err != nil {
			s.closeSlots()
			if s.forwarder != nil {
				_ = s.forwarder.Close()
			}
			return nil, err
		}
		s.journal = w
		s.journal.Start(ctx)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := hub.Loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("event loop stopped", map[string]any{"error": err.Error()})
		}
	}()
	for _, slot := range s.slots {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := slot.Serve(ctx); err != nil {
				logger.Error("slot stopped", map[string]any{
					"service": slot.Service(),
					"error":   err.Error(),
				})
			}
		}()
	}

	logger.Info("session started", map[string]any{
		"frames":  len(s.slots),
		"relay":   opts.RelayService,
		"adapter": opts.Adapter.Type,
		"journal": opts.Journal.Backend,
	})
	return s, nil
}

// openSlot listens for one frame and registers it. A new connection is a new
// page load, so the frame is re-registered and must announce readiness again.
func (s *session) openSlot(fc config.FrameConfig, relayService string) error {
	var (
		slot   *transport.Slot
		outbox *frame.Outbox
	)
	register := func() {
		if err := s.hub.Frames.RegisterFrame(fc.Service, slot, frame.WithOrigin(fc.Origin)); err != nil {
			s.logger.Error("frame registration failed", map[string]any{
				"service": fc.Service,
				"error":   err.Error(),
			})
		}
	}

	slot, err := transport.Listen(transport.SlotConfig{
		Service:    fc.Service,
		Addr:       fc.Listen,
		Dispatcher: s.hub.Loop,
		OnLoad:     register,
		OnUnload: func() {
			if outbox != nil {
				outbox.Reset()
			}
		},
		Logger:    s.logger.Named("transport"),
		Collector: s.hub.Metrics,
	})
	if err != nil {
		return err
	}
	s.slots = append(s.slots, slot)
	register()

	if fc.Service == relayService {
		outbox = frame.NewOutbox(slot, fc.Origin, s.logger.Named("outbox"), s.hub.Metrics)
		s.relay = frame.NewCommandRelay(s.hub.Bus, fc.Service, outbox, s.logger.Named("relay"))
		s.relay.Start()
	}
	return nil
}

func (s *session) closeSlots() {
	for _, slot := range s.slots {
		_ = slot.Close()
	}
}

// close stops the components in reverse start order and logs final counters.
func (s *session) close() {
	if s.relay != nil {
		s.relay.Stop()
	}
	s.closeSlots()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(shutdownTimeout):
		s.logger.Warn("timed out waiting for session workers", nil)
	}

	if s.forwarder != nil {
		if err := s.forwarder.Close(); err != nil {
			s.logger.Warn("forwarder close failed", map[string]any{"error": err.Error()})
		}
	}
	if s.journal != nil {
		if err := s.journal.Close(); err != nil {
			s.logger.Warn("journal close failed", map[string]any{"error": err.Error()})
		}
	}

	m := s.hub.Metrics.Snapshot()
	s.logger.Info("session stopped", map[string]any{
		"publishes":           m.Publishes,
		"deliveries":          m.Deliveries,
		"subscriber_failures": m.SubscriberFailures,
		"frames_ready":        m.FramesReady,
		"forward_success":     m.ForwardSuccess,
		"forward_failure":     m.ForwardFailure,
		"journal_writes":      m.JournalWriteSuccess,
	})
}

func newAdapter(o adapterOptions) (adapter.Adapter, error) {
	switch o.Type {
	case adapterRedis:
		return redisadapter.New(redisadapter.Config{
			URL:     o.URL,
			Channel: o.Channel,
			Timeout: o.Timeout,
			Retries: o.Retries,
		})
	case adapterWebhook:
		return webhook.New(webhook.Config{
			URL:     o.URL,
			Headers: o.Headers,
			Timeout: o.Timeout,
			Retries: o.Retries,
		})
	default:
		return nil, fmt.Errorf("unknown adapter type %q", o.Type)
	}
}

func newJournalWriter(ctx context.Context, hub *orchestra.Context, o journalOptions, logger *log.Logger) (*journal.Writer, error) {
	factory, err := journal.NewStoreFactory(ctx, journal.StorageConfig{
		Backend:      o.Backend,
		Path:         o.Path,
		Region:       o.Region,
		Endpoint:     o.Endpoint,
		UsePathStyle: o.PathStyle,
	})
	if err != nil {
		return nil, fmt.Errorf("journal storage: %w", err)
	}
	return journal.NewWriter(factory, hub.Bus, journal.WriterConfig{
		SessionID:     hub.SessionID,
		Dataset:       o.Dataset,
		BatchSize:     o.BatchSize,
		FlushInterval: o.FlushInterval,
		Logger:        logger,
		Collector:     hub.Metrics,
	})
}
