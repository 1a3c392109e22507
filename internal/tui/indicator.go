package tui

import (
	"fmt"
	"io"
	"sync"
)

// LineIndicator shows a one-line wait message on a terminal and erases it
// on Dismiss.
type LineIndicator struct {
	mu      sync.Mutex
	w       io.Writer
	visible bool
}

// NewLineIndicator writes to w, usually os.Stderr.
func NewLineIndicator(w io.Writer) *LineIndicator {
	return &LineIndicator{w: w}
}

// Show prints message.
func (l *LineIndicator) Show(message string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if message == "" {
		message = "Please wait..."
	}
	fmt.Fprint(l.w, "\r"+LogoStyle.Render(Hourglass)+" "+DimStyle.Render(message))
	l.visible = true
}

// Dismiss clears the line printed by Show.
func (l *LineIndicator) Dismiss() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.visible {
		return
	}
	fmt.Fprint(l.w, "\r\033[2K")
	l.visible = false
}
