package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
)

// Run shows the monitor until the user quits or ctx is cancelled.
func Run(ctx context.Context, snapshot SnapshotFunc, opts ...tea.ProgramOption) error {
	opts = append([]tea.ProgramOption{tea.WithAltScreen(), tea.WithContext(ctx)}, opts...)
	p := tea.NewProgram(NewModel(snapshot, DefaultInterval), opts...)
	_, err := p.Run()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// RenderStatic renders one frame of the monitor without a terminal program.
func RenderStatic(snapshot SnapshotFunc) string {
	return NewModel(snapshot, DefaultInterval).View()
}
