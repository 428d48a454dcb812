package cli

import (
	"io"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

type styles struct {
	you   lipgloss.Style
	bot   lipgloss.Style
	note  lipgloss.Style
	panel lipgloss.Style
}

func newStyles(out io.Writer) styles {
	r := lipgloss.NewRenderer(out)
	panel := r.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("12")).
		Padding(0, 1)

	return styles{
		you:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("14")),
		bot:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("10")),
		note:  r.NewStyle().Faint(true),
		panel: panel,
	}
}

// newMarkdown renders replies for a terminal of the given width
func newMarkdown(width int) (*glamour.TermRenderer, error) {
	if width <= 0 {
		width = 80
	}
	return glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width-4),
	)
}
