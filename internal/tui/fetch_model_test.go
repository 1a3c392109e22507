package tui

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"
)

func TestFetchModelProgress(t *testing.T) {
	m := NewFetchModel("http://x/file", "/tmp/file", nil)
	require.Equal(t, -1.0, m.Percent())

	next, cmd := m.Update(FetchProgressMsg{Transferred: 250, Total: 1000})
	require.Nil(t, cmd)
	m = next.(FetchModel)
	require.Equal(t, 0.25, m.Percent())
	require.Contains(t, m.View(), "250 B")

	next, cmd = m.Update(FetchDoneMsg{})
	require.NotNil(t, cmd)
	m = next.(FetchModel)
	require.NoError(t, m.Err())
	require.Contains(t, m.View(), "saved")
}

func TestFetchModelErrorAndCancel(t *testing.T) {
	m := NewFetchModel("u", "d", nil)
	next, _ := m.Update(FetchDoneMsg{Err: errors.New("boom")})
	require.EqualError(t, next.(FetchModel).Err(), "boom")
	require.Contains(t, next.(FetchModel).View(), "boom")

	cancelled := false
	m = NewFetchModel("u", "d", func() { cancelled = true })
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	require.True(t, cancelled)
	require.True(t, next.(FetchModel).Cancelled())
}

func TestFormatBytes(t *testing.T) {
	require.Equal(t, "512 B", FormatBytes(512))
	require.Equal(t, "1.0 KiB", FormatBytes(1024))
	require.Equal(t, "1.5 MiB", FormatBytes(1536*1024))
}

func TestLineIndicator(t *testing.T) {
	var buf bytes.Buffer
	ind := NewLineIndicator(&buf)
	ind.Dismiss()
	require.Zero(t, buf.Len())

	ind.Show("Sending")
	require.Contains(t, buf.String(), "Sending")
	ind.Dismiss()
	require.True(t, strings.HasSuffix(buf.String(), "\r\033[2K"))
}
