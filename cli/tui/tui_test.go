package tui

import (
	"fmt"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/pithecene-io/framehub/bus"
	"github.com/pithecene-io/framehub/frame"
	"github.com/pithecene-io/framehub/orchestra"
	"github.com/pithecene-io/framehub/state"
	"github.com/pithecene-io/framehub/types"
)

type fakeSource struct {
	calls int
	snap  orchestra.Snapshot
}

func (f *fakeSource) Snapshot() orchestra.Snapshot {
	f.calls++
	return f.snap
}

func sampleSnapshot() orchestra.Snapshot {
	at := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	snap := orchestra.Snapshot{
		SessionID: "sess-42",
		State:     state.State{SelectedExecutionUnit: state.Str("unit-7")},
		Frames: []frame.FrameStatus{
			{Service: "airflow", Ready: true, MessageCount: 2},
			{Service: "grafana", Ready: false, ErrorCount: 1, Origin: "10.0.0.5"},
		},
		EventLog: []bus.LogEntry{
			{Kind: bus.LogSubscribe, EventName: types.EventFrameReady, Party: "relay", Timestamp: at},
			{Kind: bus.LogPublish, EventName: types.EventCSPlayerFilterChanged, Party: "csPlayer", Timestamp: at, Data: `{"csxuName":"unit-7"}`},
		},
	}
	snap.Metrics.Publishes = 17
	return snap
}

func TestModel_View(t *testing.T) {
	src := &fakeSource{snap: sampleSnapshot()}
	view := NewModel(src.Snapshot, time.Second).View()

	for _, want := range []string{
		"sess-42",
		"17",
		"airflow", "ready",
		"grafana", "pending", "origin=10.0.0.5",
		"unit-7", "(none)",
		"csPlayer:filterChanged", `{"csxuName":"unit-7"}`,
	} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestModel_EmptySession(t *testing.T) {
	view := RenderStatic(func() orchestra.Snapshot { return orchestra.Snapshot{SessionID: "s"} })
	for _, want := range []string{"no frames registered", "no events yet"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestModel_TickRefreshesUnlessPaused(t *testing.T) {
	src := &fakeSource{snap: sampleSnapshot()}
	m := NewModel(src.Snapshot, time.Second)
	if src.calls != 1 {
		t.Fatalf("calls after NewModel = %d, want 1", src.calls)
	}

	src.snap.SessionID = "sess-next"
	next, cmd := m.Update(tickMsg(time.Now()))
	if cmd == nil {
		t.Error("tick should schedule the next tick")
	}
	m = next.(Model)
	if m.current.SessionID != "sess-next" {
		t.Errorf("SessionID = %q, want refreshed snapshot", m.current.SessionID)
	}

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("p")})
	m = next.(Model)
	if !m.paused {
		t.Fatal("p should pause")
	}
	if !strings.Contains(m.View(), "[paused]") {
		t.Error("paused view should say so")
	}

	src.snap.SessionID = "sess-ignored"
	next, _ = m.Update(tickMsg(time.Now()))
	m = next.(Model)
	if m.current.SessionID != "sess-next" {
		t.Errorf("paused monitor refreshed to %q", m.current.SessionID)
	}
}

func TestModel_Quit(t *testing.T) {
	m := NewModel(func() orchestra.Snapshot { return orchestra.Snapshot{} }, 0)
	if m.interval != DefaultInterval {
		t.Errorf("interval = %v, want default", m.interval)
	}

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("q should return tea.Quit")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q should quit")
	}
	if next.View() != "" {
		t.Error("view after quit should be empty")
	}
}

func TestModel_WindowSize(t *testing.T) {
	m := NewModel(func() orchestra.Snapshot { return orchestra.Snapshot{} }, time.Second)
	next, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 50})
	if got := next.(Model); got.width != 120 || got.height != 50 {
		t.Errorf("size = %dx%d, want 120x50", got.width, got.height)
	}
}

func TestRenderLog_KeepsNewest(t *testing.T) {
	var entries []bus.LogEntry
	for i := range 10 {
		entries = append(entries, bus.LogEntry{
			Kind:      bus.LogPublish,
			EventName: types.EventName(fmt.Sprintf("svc:event%d", i)),
		})
	}
	out := renderLog(entries, 4)
	if strings.Contains(out, "svc:event5") || !strings.Contains(out, "svc:event6") || !strings.Contains(out, "svc:event9") {
		t.Errorf("renderLog should keep the newest 4 entries:\n%s", out)
	}
	if got := strings.Count(out, "\n"); got != 4 {
		t.Errorf("lines = %d, want 4", got)
	}
}

func TestFrameStyle(t *testing.T) {
	if FrameStyle(true, 1).GetForeground() != errorColor {
		t.Error("errors should win over ready")
	}
	if FrameStyle(true, 0).GetForeground() != successColor {
		t.Error("ready frame should be green")
	}
	if FrameStyle(false, 0).GetForeground() != warningColor {
		t.Error("pending frame should be amber")
	}
}
