package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

// FetchProgressMsg reports bytes written so far. Total is -1 when unknown.
type FetchProgressMsg struct {
	Transferred int64
	Total       int64
}

// FetchDoneMsg is sent when the download finishes.
type FetchDoneMsg struct {
	Err error
}

// FetchModel renders a single download with a progress bar, or a spinner
// when the server did not send a length.
type FetchModel struct {
	URL  string
	Dest string

	bar         progress.Model
	spin        spinner.Model
	transferred int64
	total       int64
	start       time.Time
	done        bool
	err         error
	cancelled   bool
	cancel      func()
}

// NewFetchModel creates the model. cancel is called when the user quits.
func NewFetchModel(url, dest string, cancel func()) FetchModel {
	return FetchModel{
		URL:    url,
		Dest:   dest,
		bar:    progress.New(progress.WithGradient(string(DeepTeal), string(Teal)), progress.WithWidth(40)),
		spin:   spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(LogoStyle)),
		total:  -1,
		start:  time.Now(),
		cancel: cancel,
	}
}

// Init starts the spinner.
func (m FetchModel) Init() tea.Cmd {
	return m.spin.Tick
}

// Update handles progress, completion and key messages.
func (m FetchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			m.cancelled = true
			if m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		}
	case FetchProgressMsg:
		m.transferred = msg.Transferred
		m.total = msg.Total
		return m, nil
	case FetchDoneMsg:
		m.done = true
		m.err = msg.Err
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}
	return m, nil
}

// Percent returns the completed fraction, or -1 when the total is unknown.
func (m FetchModel) Percent() float64 {
	if m.total <= 0 {
		return -1
	}
	p := float64(m.transferred) / float64(m.total)
	if p > 1 {
		p = 1
	}
	return p
}

// Err returns the download error once done.
func (m FetchModel) Err() error {
	return m.err
}

// Cancelled reports whether the user aborted the download.
func (m FetchModel) Cancelled() bool {
	return m.cancelled
}

// View renders the model.
func (m FetchModel) View() string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(Header("FETCH"))
	b.WriteString("\n\n")
	b.WriteString(KeyValue("From", m.URL) + "\n")
	b.WriteString(KeyValue("To", m.Dest) + "\n\n")

	if pct := m.Percent(); pct >= 0 {
		b.WriteString("  " + m.bar.ViewAs(pct))
	} else {
		b.WriteString("  " + m.spin.View() + " " + DimStyle.Render("size unknown"))
	}
	b.WriteString("  " + ValueStyle.Render(FormatBytes(m.transferred)))
	if m.total > 0 {
		b.WriteString(DimStyle.Render(" / " + FormatBytes(m.total)))
	}
	b.WriteString("\n\n")

	switch {
	case m.done && m.err != nil:
		b.WriteString("  " + ErrorStyle.Render(CrossMark+" "+m.err.Error()) + "\n")
	case m.done:
		elapsed := time.Since(m.start).Round(time.Millisecond)
		b.WriteString("  " + SuccessStyle.Render(CheckMark+" saved") + DimStyle.Render(" in "+elapsed.String()) + "\n")
	case m.cancelled:
		b.WriteString("  " + WarningStyle.Render(WarningSign+" cancelled") + "\n")
	default:
		b.WriteString("  " + HelpStyle.Render("q: cancel") + "\n")
	}

	return b.String()
}

// FormatBytes renders n with a binary unit.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
