package ui

import "github.com/charmbracelet/lipgloss"

var (
	buttonStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1)

	busyStyle    = buttonStyle.Background(lipgloss.Color("240"))
	successStyle = buttonStyle.Background(lipgloss.Color("#2E7D32"))
	failedStyle  = buttonStyle.Background(lipgloss.Color("9"))

	outputStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	errorOutputStyle = outputStyle.
				BorderForeground(lipgloss.Color("9")).
				Foreground(lipgloss.Color("9"))
)

// Render draws the button. prefix (e.g. a spinner frame) is shown in
// front of the label while busy.
func (b *Button) Render(prefix string) string {
	b.mu.Lock()
	state, lbl := b.state, label(b.kind, b.state)
	b.mu.Unlock()

	switch state {
	case Running:
		if prefix != "" {
			lbl = prefix + " " + lbl
		}
		return busyStyle.Render(lbl)
	case Copied:
		return successStyle.Render(lbl)
	case CopyFailed:
		return failedStyle.Render(lbl)
	default:
		return buttonStyle.Render(lbl)
	}
}

// View draws the output region, or "" while it is hidden.
func (o *Output) View(width int) string {
	text, isError, visible := o.Snapshot()
	if !visible {
		return ""
	}
	style := outputStyle
	if isError {
		style = errorOutputStyle
	}
	if width > 2 {
		style = style.Width(width - 2)
	}
	return style.Render(text)
}
