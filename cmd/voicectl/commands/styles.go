package commands

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"voicelink/internal/domain"
)

// Theme is the terminal color scheme.
type Theme struct {
	Primary lipgloss.Color
	User    lipgloss.Color
	Error   lipgloss.Color
	Dim     lipgloss.Color
}

var defaultTheme = Theme{
	Primary: lipgloss.Color("#00ff9f"),
	User:    lipgloss.Color("#58a6ff"),
	Error:   lipgloss.Color("#f85149"),
	Dim:     lipgloss.Color("#6e7681"),
}

// Styles holds the styles derived from a theme.
type Styles struct {
	Title lipgloss.Style
	State lipgloss.Style
	User  lipgloss.Style
	Agent lipgloss.Style
	Error lipgloss.Style
	Help  lipgloss.Style
	Box   lipgloss.Style
}

func newStyles(t Theme) Styles {
	return Styles{
		Title: lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		State: lipgloss.NewStyle().Foreground(t.Primary),
		User:  lipgloss.NewStyle().Bold(true).Foreground(t.User),
		Agent: lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		Error: lipgloss.NewStyle().Bold(true).Foreground(t.Error),
		Help:  lipgloss.NewStyle().Foreground(t.Dim),
		Box: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(t.Primary).
			Padding(0, 1),
	}
}

var styles = newStyles(defaultTheme)

// entryLine renders one transcript entry as a single line.
func entryLine(s Styles, entry domain.TranscriptEntry) string {
	label := s.Agent.Render("agent")
	if entry.Speaker == domain.SpeakerUser {
		label = s.User.Render("you")
	}

	text := entry.Text
	switch {
	case entry.IsInterrupted:
		text += " " + s.Help.Render("(interrupted)")
	case !entry.IsFinal:
		text = s.Help.Render(text + " ...")
	}
	return label + "  " + text
}

// statusBox renders a status summary framed with a border.
func statusBox(s Styles, status domain.Status, duration string) string {
	rows := []string{
		s.Title.Render("voicelink") + " " + s.Help.Render("["+string(status.State)+"]"),
		"model   " + status.Model,
		"voice   " + string(status.Voice),
		"preset  " + string(status.AgentPreset),
		"time    " + duration,
	}
	if status.Muted {
		rows = append(rows, s.Help.Render("microphone muted"))
	}
	if status.LastError != "" {
		rows = append(rows, s.Error.Render(status.LastError))
	}
	return s.Box.Render(strings.Join(rows, "\n"))
}
