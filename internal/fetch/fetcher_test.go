package fetch

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/netask/internal/config"
	"github.com/netask/internal/health"
	"github.com/netask/pkg/protocol"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func payload(n int) []byte {
	return bytes.Repeat([]byte("0123456789"), n/10+1)[:n]
}

func newFetcher(cfg config.Fetch, m *health.Metrics) *Fetcher {
	return New(protocol.NewHTTPClient(protocol.ClientConfig{}), cfg, m)
}

func TestFetchReportsProgressToHundred(t *testing.T) {
	data := payload(1000)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		_, _ = w.Write(data)
	}))
	defer srv.Close()

	m := health.NewMetrics(prometheus.NewRegistry())
	f := newFetcher(config.Fetch{ChunkSize: 100}, m)
	dest := filepath.Join(t.TempDir(), "out.bin")

	var percents []int
	err := f.Fetch(context.Background(), srv.URL, dest, func(p int) { percents = append(percents, p) })
	require.NoError(t, err)
	require.True(t, OK(err))

	require.NotEmpty(t, percents)
	for i := 1; i < len(percents); i++ {
		require.Greater(t, percents[i], percents[i-1])
	}
	require.Equal(t, 100, percents[len(percents)-1])

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, data, got)
	require.NoFileExists(t, dest+".part")

	require.Equal(t, 1.0, testutil.ToFloat64(m.DownloadsTotal.WithLabelValues("success")))
	require.Equal(t, 1000.0, testutil.ToFloat64(m.DownloadedBytes))
}

func TestDownloadChunks(t *testing.T) {
	data := payload(250)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		_, _ = w.Write(data)
	}))
	defer srv.Close()

	f := newFetcher(config.Fetch{ChunkSize: 100}, nil)
	var seen []Progress
	p, err := f.Download(context.Background(), srv.URL, filepath.Join(t.TempDir(), "x"), func(p Progress) {
		seen = append(seen, p)
	})
	require.NoError(t, err)
	require.Equal(t, Progress{Transferred: 250, Total: 250}, p)
	require.GreaterOrEqual(t, len(seen), 3, "at most 100 bytes per chunk")
	for _, s := range seen {
		require.Equal(t, int64(250), s.Total)
	}
}

func TestFetchUnknownLengthSkipsProgress(t *testing.T) {
	data := payload(500)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fl := w.(http.Flusher)
		for i := 0; i < len(data); i += 100 {
			_, _ = w.Write(data[i : i+100])
			fl.Flush()
		}
	}))
	defer srv.Close()

	f := newFetcher(config.Fetch{}, nil)
	dest := filepath.Join(t.TempDir(), "chunked")

	called := false
	require.NoError(t, f.Fetch(context.Background(), srv.URL, dest, func(int) { called = true }))
	require.False(t, called)

	info, err := os.Stat(dest)
	require.NoError(t, err)
	require.Equal(t, int64(500), info.Size())
}

func TestFetchEmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "0")
	}))
	defer srv.Close()

	f := newFetcher(config.Fetch{}, nil)
	dest := filepath.Join(t.TempDir(), "empty")

	called := false
	require.NoError(t, f.Fetch(context.Background(), srv.URL, dest, func(int) { called = true }))
	require.False(t, called)
	require.FileExists(t, dest)
}

func TestFetchUnwritableDestination(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(payload(10))
	}))
	defer srv.Close()

	m := health.NewMetrics(prometheus.NewRegistry())
	f := newFetcher(config.Fetch{}, m)
	dest := filepath.Join(t.TempDir(), "missing-dir", "out.bin")

	err := f.Fetch(context.Background(), srv.URL, dest, nil)
	require.ErrorIs(t, err, ErrCreate)
	require.False(t, OK(err))
	require.NoFileExists(t, dest)
	require.Equal(t, 1.0, testutil.ToFloat64(m.DownloadsTotal.WithLabelValues("error")))
}

func TestFetchStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	f := newFetcher(config.Fetch{}, nil)
	dest := filepath.Join(t.TempDir(), "out")

	err := f.Fetch(context.Background(), srv.URL, dest, nil)
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	require.Equal(t, http.StatusNotFound, statusErr.StatusCode)
	require.NoFileExists(t, dest)
	require.NoFileExists(t, dest+".part")
}

func TestFetchTruncatedStreamRemovesPartialFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1000")
		_, _ = w.Write(payload(300))
		w.(http.Flusher).Flush()
		// Drop the connection before the advertised length is reached.
		conn, _, err := w.(http.Hijacker).Hijack()
		if err == nil {
			conn.Close()
		}
	}))
	defer srv.Close()

	f := newFetcher(config.Fetch{ChunkSize: 64}, nil)
	dest := filepath.Join(t.TempDir(), "out")

	var last int
	err := f.Fetch(context.Background(), srv.URL, dest, func(p int) { last = p })
	require.ErrorIs(t, err, ErrStream)
	require.Less(t, last, 100)
	require.NoFileExists(t, dest)
	require.NoFileExists(t, dest+".part")
}

func TestFetchInactivityTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "200")
		_, _ = w.Write(payload(100))
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	f := newFetcher(config.Fetch{InactivityTimeout: 100 * time.Millisecond}, nil)
	dest := filepath.Join(t.TempDir(), "out")

	start := time.Now()
	err := f.Fetch(context.Background(), srv.URL, dest, nil)
	require.ErrorIs(t, err, ErrStream)
	require.ErrorIs(t, err, os.ErrDeadlineExceeded)
	require.Less(t, time.Since(start), 5*time.Second)
	require.NoFileExists(t, dest)
}

func TestFetchRequestError(t *testing.T) {
	f := newFetcher(config.Fetch{}, nil)
	err := f.Fetch(context.Background(), "asd://nowhere/file", filepath.Join(t.TempDir(), "out"), nil)
	require.ErrorIs(t, err, ErrRequest)
}

func TestFetchKeepsExistingFileOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "out")
	require.NoError(t, os.WriteFile(dest, []byte("previous"), 0644))

	f := newFetcher(config.Fetch{}, nil)
	require.Error(t, f.Fetch(context.Background(), srv.URL, dest, nil))

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, "previous", string(got))
}

func TestProgressPercent(t *testing.T) {
	cases := []struct {
		p   Progress
		pct int
		ok  bool
	}{
		{Progress{Transferred: 0, Total: 1000}, 0, true},
		{Progress{Transferred: 999, Total: 1000}, 99, true},
		{Progress{Transferred: 1000, Total: 1000}, 100, true},
		{Progress{Transferred: 1200, Total: 1000}, 100, true},
		{Progress{Transferred: 10, Total: 0}, 0, false},
		{Progress{Transferred: 10, Total: -1}, 0, false},
	}
	for _, tc := range cases {
		pct, ok := tc.p.Percent()
		require.Equal(t, tc.pct, pct, "%+v", tc.p)
		require.Equal(t, tc.ok, ok, "%+v", tc.p)
	}
}
