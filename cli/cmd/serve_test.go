package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zapcore"

	"github.com/pithecene-io/framehub/cli/config"
	"github.com/pithecene-io/framehub/log"
	"github.com/pithecene-io/framehub/transport"
	"github.com/pithecene-io/framehub/types"
)

func serveContext(t *testing.T, args ...string) (serveOptions, error) {
	t.Helper()
	return resolveServeOptionsFor(t, nil, args...)
}

func resolveServeOptionsFor(t *testing.T, cfg *config.Config, args ...string) (serveOptions, error) {
	t.Helper()
	c := newFlagContext(t, ServeCommand().Flags, args...)
	return resolveServeOptions(c, cfg)
}

func TestResolveServeOptions_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"no frames", nil, "no frames declared"},
		{"bad frame spec", []string{"--frame", "csPlayer"}, "expected service=addr"},
		{"empty frame addr", []string{"--frame", "csPlayer="}, "expected service=addr"},
		{"duplicate frame", []string{"--frame", "a=:1", "--frame", "a=:2"}, "duplicate --frame service"},
		{"relay not declared", []string{"--frame", "a=:1", "--relay", "b"}, `--relay "b" is not a declared frame`},
		{"adapter without url", []string{"--frame", "a=:1", "--adapter", "redis"}, "--adapter-url is required"},
		{"unknown adapter", []string{"--frame", "a=:1", "--adapter", "kafka", "--adapter-url", "x"}, "--adapter must be redis or webhook"},
		{"negative retries", []string{"--frame", "a=:1", "--adapter", "webhook", "--adapter-url", "http://x", "--adapter-retries", "-1"}, "--adapter-retries must be >= 0"},
		{"fs journal without path", []string{"--frame", "a=:1", "--journal-backend", "fs"}, "--journal-path is required"},
		{"unknown journal", []string{"--frame", "a=:1", "--journal-backend", "gcs"}, "--journal-backend must be"},
		{"tui and stdin", []string{"--frame", "a=:1", "--tui", "--stdin-commands"}, "cannot be combined"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := serveContext(t, tt.args...)
			if err == nil {
				t.Fatalf("expected error containing %q", tt.want)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want it to contain %q", err, tt.want)
			}
		})
	}
}

func TestResolveServeOptions_Defaults(t *testing.T) {
	opts, err := serveContext(t, "--frame", "csPlayer=127.0.0.1:7301", "--frame", " airflow = :7302 ")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if opts.SessionID == "" {
		t.Error("SessionID should be generated")
	}
	if opts.LogSize != 100 {
		t.Errorf("LogSize = %d, want 100", opts.LogSize)
	}
	want := []config.FrameConfig{
		{Service: "csPlayer", Listen: "127.0.0.1:7301"},
		{Service: "airflow", Listen: ":7302"},
	}
	if len(opts.Frames) != len(want) {
		t.Fatalf("Frames = %+v, want %+v", opts.Frames, want)
	}
	for i := range want {
		if opts.Frames[i] != want[i] {
			t.Errorf("Frames[%d] = %+v, want %+v", i, opts.Frames[i], want[i])
		}
	}
	if opts.Adapter.Type != "" || opts.Journal.Backend != "" {
		t.Errorf("adapter/journal should be disabled by default: %+v %+v", opts.Adapter, opts.Journal)
	}
	if opts.Adapter.Retries != 3 {
		t.Errorf("Adapter.Retries = %d, want flag default 3", opts.Adapter.Retries)
	}
}

func TestResolveServeOptions_ConfigFallback(t *testing.T) {
	zero := 0
	cfg := &config.Config{
		Session: "from-config",
		Bus:     config.BusConfig{LogSize: 20},
		Frames: []config.FrameConfig{
			{Service: "csPlayer", Listen: ":7301", Origin: "127.0.0.1"},
		},
		Relay: config.RelayConfig{Service: "csPlayer"},
		Adapter: config.AdapterConfig{
			Type:    "redis",
			URL:     "redis://localhost:6379",
			Retries: &zero,
			Timeout: config.Duration{Duration: 3 * time.Second},
			Events:  []string{"csPlayer:packageChanged"},
		},
		Journal: config.JournalConfig{Backend: "memory", Dataset: "custom", BatchSize: 8},
	}

	opts, err := resolveServeOptionsFor(t, cfg)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if opts.SessionID != "from-config" || opts.LogSize != 20 || opts.RelayService != "csPlayer" {
		t.Errorf("opts = %+v", opts)
	}
	if len(opts.Frames) != 1 || opts.Frames[0].Origin != "127.0.0.1" {
		t.Errorf("Frames = %+v", opts.Frames)
	}
	if opts.Adapter.Retries != 0 {
		t.Errorf("Adapter.Retries = %d, want configured 0", opts.Adapter.Retries)
	}
	if opts.Adapter.Timeout != 3*time.Second {
		t.Errorf("Adapter.Timeout = %v, want 3s", opts.Adapter.Timeout)
	}
	if opts.Journal.Dataset != "custom" || opts.Journal.BatchSize != 8 {
		t.Errorf("Journal = %+v", opts.Journal)
	}
}

func TestResolveServeOptions_CLIOverridesConfig(t *testing.T) {
	zero := 0
	cfg := &config.Config{
		Session: "from-config",
		Frames:  []config.FrameConfig{{Service: "csPlayer", Listen: ":7301"}},
		Adapter: config.AdapterConfig{Type: "redis", URL: "redis://cfg", Retries: &zero},
	}

	opts, err := resolveServeOptionsFor(t, cfg,
		"--session", "from-cli",
		"--frame", "grafana=:7400",
		"--adapter-url", "redis://cli",
		"--adapter-retries", "5",
	)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if opts.SessionID != "from-cli" {
		t.Errorf("SessionID = %q, want from-cli", opts.SessionID)
	}
	if len(opts.Frames) != 1 || opts.Frames[0].Service != "grafana" {
		t.Errorf("--frame should replace config frames, got %+v", opts.Frames)
	}
	if opts.Adapter.URL != "redis://cli" || opts.Adapter.Retries != 5 {
		t.Errorf("Adapter = %+v", opts.Adapter)
	}
}

func TestRedirectLogger(t *testing.T) {
	var stderr bytes.Buffer
	base := log.NewLoggerWithWriter(&log.SessionMeta{SessionID: "sess-1"}, &stderr, zapcore.InfoLevel)

	t.Run("discard", func(t *testing.T) {
		stderr.Reset()
		l, closeLog, err := redirectLogger(base, "")
		if err != nil {
			t.Fatalf("redirectLogger: %v", err)
		}
		l.Warn("hidden", nil)
		if err := closeLog(); err != nil {
			t.Errorf("close: %v", err)
		}
		if stderr.Len() != 0 {
			t.Errorf("stderr written: %s", stderr.String())
		}
	})

	t.Run("file", func(t *testing.T) {
		stderr.Reset()
		path := filepath.Join(t.TempDir(), "serve.log")
		l, closeLog, err := redirectLogger(base, path)
		if err != nil {
			t.Fatalf("redirectLogger: %v", err)
		}
		l.Debug("below level", nil)
		l.Warn("to file", nil)
		if err := closeLog(); err != nil {
			t.Errorf("close: %v", err)
		}
		body, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		text := string(body)
		if !strings.Contains(text, `"to file"`) || !strings.Contains(text, `"session_id":"sess-1"`) {
			t.Errorf("log file = %s", text)
		}
		if strings.Contains(text, "below level") {
			t.Errorf("level not preserved: %s", text)
		}
		if stderr.Len() != 0 {
			t.Errorf("stderr written: %s", stderr.String())
		}
	})

	t.Run("unwritable path", func(t *testing.T) {
		_, _, err := redirectLogger(base, filepath.Join(t.TempDir(), "missing", "serve.log"))
		if err == nil || !strings.Contains(err.Error(), "--tui-log-file") {
			t.Errorf("err = %v, want --tui-log-file error", err)
		}
	})
}

func TestServeAction_ConfigFileNotFound(t *testing.T) {
	app, _ := newTestApp(ServeCommand())
	err := app.Run([]string{"framehub", "serve", "--config", "/nonexistent/framehub.yaml"})
	if err == nil || !strings.Contains(err.Error(), "config file not found") {
		t.Fatalf("err = %v, want config file not found", err)
	}
}

// TestSession_RelaysCommandToFrame runs a whole session: a frame connects,
// announces itself, and receives a command published by the host.
func TestSession_RelaysCommandToFrame(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	sess, err := startSession(ctx, serveOptions{
		SessionID:    "sess-1",
		LogSize:      100,
		Frames:       []config.FrameConfig{{Service: "testStub", Listen: "127.0.0.1:0"}},
		RelayService: "testStub",
		Journal:      journalOptions{Backend: "memory"},
	}, log.NewNop())
	if err != nil {
		t.Fatalf("startSession: %v", err)
	}
	defer func() {
		cancel()
		sess.close()
	}()

	// Queued before the frame exists; flushed once it is ready.
	if err := sess.hub.Publish(ctx, types.EventAppCommandSent, types.CommandSentPayload{
		SenderName: "ops",
		Command:    "restart",
	}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	client, err := transport.Dial(ctx, sess.slots[0].Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer func() { _ = client.Close() }()

	for _, msg := range stubGreeting("testStub", "facter", "", time.Now()) {
		if err := client.Send(msg); err != nil {
			t.Fatalf("Send: %v", err)
		}
	}

	recvCtx, recvCancel := context.WithTimeout(ctx, 5*time.Second)
	defer recvCancel()
	var line string
	err = client.Receive(recvCtx, func(m *types.Message) error {
		if l, ok := describeStubMessage(m); ok {
			line = l
			recvCancel()
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if line != "Received From App: [ops] restart" {
		t.Fatalf("line = %q", line)
	}

	// The legacy selection may still be in flight behind the command.
	deadline := time.Now().Add(5 * time.Second)
	snap := sess.hub.Snapshot()
	for snap.State.SelectedExecutionUnit == nil && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
		snap = sess.hub.Snapshot()
	}
	if got := snap.State.SelectedExecutionUnit; got == nil || *got != "facter" {
		t.Errorf("SelectedExecutionUnit = %v, want facter", got)
	}
	if len(snap.Frames) != 1 || !snap.Frames[0].Ready {
		t.Errorf("Frames = %+v, want one ready frame", snap.Frames)
	}
	if snap.Metrics.FramesReady != 1 {
		t.Errorf("FramesReady = %d, want 1", snap.Metrics.FramesReady)
	}
}
