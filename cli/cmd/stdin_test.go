package cmd

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/pithecene-io/framehub/orchestra"
	"github.com/pithecene-io/framehub/types"
)

func startHub(t *testing.T) *orchestra.Context {
	t.Helper()
	hub := orchestra.New(orchestra.Config{SessionID: "stdin"})
	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = hub.Loop.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return hub
}

func TestRunStdinCommands(t *testing.T) {
	hub := startHub(t)

	var got []types.CommandSentPayload
	hub.Bus.Subscribe(types.EventAppCommandSent, func(data any, _ types.Envelope) error {
		p, err := types.DecodeAs[types.CommandSentPayload](data)
		got = append(got, p)
		return err
	}, "test")

	input := strings.Join([]string{
		"",
		"publish csPlayer:refreshTasks {}",
		"command ops restart the worker",
		"send csPlayer csPlayer:filterChanged {\"csxuName\":\"x\"}",
		"publish csPlayer:refreshTasks {not json",
		"bogus",
		"state",
		"quit",
		"publish never:reached",
	}, "\n")

	var out bytes.Buffer
	quit, err := runStdinCommands(t.Context(), strings.NewReader(input), &out, hub)
	if err != nil {
		t.Fatalf("runStdinCommands: %v", err)
	}
	if !quit {
		t.Error("quit = false, want true")
	}

	if len(got) != 1 || got[0].SenderName != "ops" || got[0].Command != "restart the worker" {
		t.Errorf("commandSent payloads = %+v", got)
	}

	text := out.String()
	for _, want := range []string{
		`"event": "csPlayer:refreshTasks"`,
		`"event": "app:commandSent"`,
		`"result": "unknown_service"`,
		"invalid JSON data",
		`unknown command \"bogus\"`,
		`"selectedExecutionUnit": null`,
	} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q:\n%s", want, text)
		}
	}
	if strings.Contains(text, "never:reached") {
		t.Error("lines after quit were executed")
	}
}

func TestRunStdinCommands_EndOfInput(t *testing.T) {
	hub := startHub(t)
	var out bytes.Buffer
	quit, err := runStdinCommands(t.Context(), strings.NewReader("status\n"), &out, hub)
	if err != nil || quit {
		t.Fatalf("runStdinCommands = %v, %v; want false, nil", quit, err)
	}
	if !strings.Contains(out.String(), "[]") {
		t.Errorf("status with no frames should render an empty list, got %s", out.String())
	}
}

func TestSplitWord(t *testing.T) {
	tests := []struct {
		in, word, rest string
	}{
		{"", "", ""},
		{"quit", "quit", ""},
		{"  send  a  b c ", "send", "a  b c"},
		{"publish\tx:y {}", "publish", "x:y {}"},
	}
	for _, tt := range tests {
		word, rest := splitWord(tt.in)
		if word != tt.word || rest != tt.rest {
			t.Errorf("splitWord(%q) = %q, %q; want %q, %q", tt.in, word, rest, tt.word, tt.rest)
		}
	}
}

func TestParseData(t *testing.T) {
	if v, err := parseData(""); v != nil || err != nil {
		t.Errorf("parseData(\"\") = %v, %v; want nil, nil", v, err)
	}
	v, err := parseData(`{"a":1}`)
	if err != nil {
		t.Fatalf("parseData: %v", err)
	}
	if m, ok := v.(map[string]any); !ok || m["a"] != float64(1) {
		t.Errorf("parseData = %#v", v)
	}
	if _, err := parseData("{"); err == nil {
		t.Error("expected error for invalid JSON")
	}
}
