package client

import (
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/lipgloss"
	figure "github.com/common-nighthawk/go-figure"
)

type styles struct {
	notice    lipgloss.Style
	errorText lipgloss.Style
	author    lipgloss.Style
	timestamp lipgloss.Style
	statusBar lipgloss.Style
	typing    lipgloss.Style
}

func newStyles() styles {
	return styles{
		notice:    lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		errorText: lipgloss.NewStyle().Foreground(lipgloss.Color("203")),
		author:    lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true),
		timestamp: lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		statusBar: lipgloss.NewStyle().Foreground(lipgloss.Color("230")).Background(lipgloss.Color("62")).Padding(0, 1),
		typing:    lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Italic(true),
	}
}

var homeContent = buildHomeContent()

func buildHomeContent() string {
	banner := figure.NewFigure("StudyChat", "", true).String()
	return banner + "\nConnect with /connect, pick a name with /name, then /join a room.\n"
}

func (a *App) View() string {
	if !a.ready {
		return "Starting StudyChat client..."
	}

	var b strings.Builder
	b.WriteString(a.viewport.View())
	b.WriteString("\n")
	b.WriteString(a.typingLine())
	b.WriteString("\n")
	b.WriteString(a.input.View())
	b.WriteString("\n")
	b.WriteString(a.statusLine())
	return b.String()
}

func (a *App) typingLine() string {
	if len(a.typers) == 0 {
		return ""
	}
	names := make([]string, 0, len(a.typers))
	for name := range a.typers {
		names = append(names, name)
	}
	sort.Strings(names)
	suffix := " is typing..."
	if len(names) > 1 {
		suffix = " are typing..."
	}
	return a.styles.typing.Render(strings.Join(names, ", ") + suffix)
}

func (a *App) statusLine() string {
	room := a.roomName
	if room == "" {
		room = "-"
	}
	name := a.name
	if name == "" {
		name = "-"
	}
	return a.styles.statusBar.Render("StudyChat | " + a.status + " | room: " + room + " | name: " + name)
}

func (a *App) resize(width, height int) {
	a.width = width
	a.height = height
	// viewport fills everything above typing line, input, and status bar.
	const fixed = 3
	viewHeight := height - fixed
	if viewHeight < 1 {
		viewHeight = 1
	}
	if !a.ready {
		a.viewport = viewport.New(width, viewHeight)
		a.ready = true
		a.refreshViewport()
	} else {
		a.viewport.Width = width
		a.viewport.Height = viewHeight
	}
	a.input.Width = width - 2
}

func (a *App) refreshViewport() {
	if !a.ready {
		return
	}
	if a.roomID == "" && len(a.lines) == 0 {
		a.viewport.SetContent(homeContent)
		return
	}
	a.viewport.SetContent(strings.Join(a.lines, "\n"))
	a.viewport.GotoBottom()
}
