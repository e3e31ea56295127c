package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/framehub/bus"
	"github.com/pithecene-io/framehub/orchestra"
)

// DefaultInterval is the snapshot polling period.
const DefaultInterval = 500 * time.Millisecond

// chrome is the number of lines the monitor uses outside the event log.
const chrome = 22

// SnapshotFunc returns the current session view.
type SnapshotFunc func() orchestra.Snapshot

type tickMsg time.Time

type keyMap struct {
	Quit  key.Binding
	Pause key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c", "esc"),
		key.WithHelp("q", "quit"),
	),
	Pause: key.NewBinding(
		key.WithKeys("p", " "),
		key.WithHelp("p", "pause"),
	),
}

// Model is the Bubble Tea model of the session monitor.
type Model struct {
	snapshot SnapshotFunc
	interval time.Duration
	current  orchestra.Snapshot
	updated  time.Time
	paused   bool
	width    int
	height   int
	quitting bool
}

// NewModel creates a monitor polling snapshot every interval.
func NewModel(snapshot SnapshotFunc, interval time.Duration) Model {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return Model{
		snapshot: snapshot,
		interval: interval,
		current:  snapshot(),
		updated:  time.Now(),
		height:   40,
	}
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return m.tick()
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tickMsg:
		if !m.paused {
			m.current = m.snapshot()
			m.updated = time.Time(msg)
		}
		return m, m.tick()

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, keys.Pause):
			m.paused = !m.paused
			return m, nil
		}
	}
	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	s := m.current

	var b strings.Builder
	title := fmt.Sprintf("framehub session %s", s.SessionID)
	if m.paused {
		title += "  [paused]"
	}
	b.WriteString(TitleStyle.Render(title))
	b.WriteString("\n")
	b.WriteString(MutedStyle.Render("updated " + m.updated.Format("15:04:05")))
	b.WriteString("\n\n")

	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		statBox("Publishes", s.Metrics.Publishes, highlightColor),
		statBox("Deliveries", s.Metrics.Deliveries, successColor),
		statBox("Failures", s.Metrics.SubscriberFailures, errorColor),
		statBox("Unknown", s.Metrics.UnknownEvents, warningColor),
	))
	b.WriteString("\n")

	b.WriteString(SectionStyle.Render("Frames"))
	b.WriteString("\n")
	b.WriteString(renderFrames(s))

	b.WriteString(SectionStyle.Render("Selection"))
	b.WriteString("\n")
	b.WriteString(field("execution unit", deref(s.State.SelectedExecutionUnit)))
	b.WriteString(field("package", deref(s.State.SelectedPackage)))

	b.WriteString(SectionStyle.Render("Event log"))
	b.WriteString("\n")
	b.WriteString(renderLog(s.EventLog, m.height-chrome-len(s.Frames)))

	b.WriteString(HelpStyle.Render("q quit • p pause"))
	return b.String()
}

func statBox(label string, value int64, color lipgloss.Color) string {
	v := StatValueStyle.Foreground(color).Render(fmt.Sprintf("%d", value))
	return StatBoxStyle.BorderForeground(color).Render(
		lipgloss.JoinVertical(lipgloss.Center, v, StatLabelStyle.Render(label)),
	)
}

func field(label, value string) string {
	return LabelStyle.Render(label+":") + " " + ValueStyle.Render(value) + "\n"
}

func deref(p *string) string {
	if p == nil {
		return "(none)"
	}
	return *p
}

func renderFrames(s orchestra.Snapshot) string {
	if len(s.Frames) == 0 {
		return MutedStyle.Render("no frames registered") + "\n"
	}
	var b strings.Builder
	for _, f := range s.Frames {
		status := "pending"
		if f.Ready {
			status = "ready"
		}
		origin := f.Origin
		if origin == "" {
			origin = "*"
		}
		line := fmt.Sprintf("%-12s %-8s sent=%-5d errors=%-3d origin=%s",
			f.Service, status, f.MessageCount, f.ErrorCount, origin)
		b.WriteString(FrameStyle(f.Ready, f.ErrorCount).Render(line))
		b.WriteString("\n")
	}
	return b.String()
}

// renderLog shows the newest entries that fit in limit lines, newest last.
func renderLog(entries []bus.LogEntry, limit int) string {
	if len(entries) == 0 {
		return MutedStyle.Render("no events yet") + "\n"
	}
	limit = max(limit, 3)
	if len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	var b strings.Builder
	for _, e := range entries {
		kind := ValueStyle.Render(string(e.Kind))
		if e.Kind == bus.LogSubscribe {
			kind = MutedStyle.Render(string(e.Kind))
		}
		fmt.Fprintf(&b, "%s %-9s %-28s %-12s %s\n",
			MutedStyle.Render(e.Timestamp.Format("15:04:05.000")),
			kind, e.EventName, e.Party, e.Data)
	}
	return b.String()
}
