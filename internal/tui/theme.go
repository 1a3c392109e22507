package tui

import (
	"github.com/charmbracelet/lipgloss"
)

// netask palette
var (
	Teal      = lipgloss.Color("#2EC4B6")
	DeepTeal  = lipgloss.Color("#1A8C82")
	LightTeal = lipgloss.Color("#A8E6E0")
	Snow      = lipgloss.Color("#F7F7F7")
	Slate     = lipgloss.Color("#9AA5B1")
	Mint      = lipgloss.Color("#3DDC97")
	Amber     = lipgloss.Color("#FFB627")
	Coral     = lipgloss.Color("#FF5A5F")
)

var (
	TitleStyle = lipgloss.NewStyle().
			Foreground(Snow).
			Background(DeepTeal).
			Bold(true).
			Padding(0, 2)

	LogoStyle    = lipgloss.NewStyle().Foreground(Teal).Bold(true)
	LabelStyle   = lipgloss.NewStyle().Foreground(LightTeal).Width(11)
	ValueStyle   = lipgloss.NewStyle().Foreground(Snow).Bold(true)
	SuccessStyle = lipgloss.NewStyle().Foreground(Mint).Bold(true)
	WarningStyle = lipgloss.NewStyle().Foreground(Amber)
	ErrorStyle   = lipgloss.NewStyle().Foreground(Coral).Bold(true)
	DimStyle     = lipgloss.NewStyle().Foreground(Slate)
	HelpStyle    = DimStyle.Italic(true)
)

const (
	ArrowRight  = "→"
	CheckMark   = "✓"
	CrossMark   = "✗"
	WarningSign = "⚠"
	Hourglass   = "⧗"
)

// MiniLogo returns a one-line logo
func MiniLogo() string {
	return LogoStyle.Render("⇅ netask")
}

// Header renders the logo next to a title badge.
func Header(title string) string {
	return lipgloss.JoinHorizontal(lipgloss.Center, MiniLogo(), "  ", TitleStyle.Render(" "+title+" "))
}

// KeyValue renders an aligned "label: value" line.
func KeyValue(label, value string) string {
	return "  " + LabelStyle.Render(label+":") + " " + ValueStyle.Render(value)
}

// Mark renders a check or a cross.
func Mark(ok bool) string {
	if ok {
		return SuccessStyle.Render(CheckMark)
	}
	return ErrorStyle.Render(CrossMark)
}

// StatusStyle colors an HTTP status by class. Codes <= 0 mean no response.
func StatusStyle(code int) lipgloss.Style {
	switch {
	case code <= 0 || code >= 500:
		return ErrorStyle
	case code >= 400:
		return WarningStyle
	case code >= 300:
		return DimStyle
	}
	return SuccessStyle
}
