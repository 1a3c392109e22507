// Package fetch downloads a URL into a local file in fixed-size chunks and
// reports percent progress while doing so.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/netask/internal/config"
	"github.com/netask/internal/health"
	"github.com/netask/pkg/protocol"
)

// DefaultChunkSize is the read size used when the config leaves it unset.
const DefaultChunkSize = 100

// Progress is the state of a running download. Total is -1 when the server
// did not advertise a length.
type Progress struct {
	Transferred int64
	Total       int64
}

// Percent returns Transferred*100/Total, capped at 100. The second result is
// false when the total is unknown or zero.
func (p Progress) Percent() (int, bool) {
	if p.Total <= 0 {
		return 0, false
	}
	pct := p.Transferred * 100 / p.Total
	if pct > 100 {
		pct = 100
	}
	return int(pct), true
}

// Fetcher streams HTTP GET responses to files.
type Fetcher struct {
	client     protocol.Streamer
	chunkSize  int
	inactivity time.Duration
	headers    map[string]string
	metrics    *health.Metrics
}

// New creates a Fetcher using client for the requests.
func New(client protocol.Streamer, cfg config.Fetch, metrics *health.Metrics) *Fetcher {
	chunk := cfg.ChunkSize
	if chunk <= 0 {
		chunk = DefaultChunkSize
	}
	return &Fetcher{
		client:     client,
		chunkSize:  chunk,
		inactivity: cfg.InactivityTimeout,
		headers:    cfg.Headers,
		metrics:    metrics,
	}
}

// Fetch downloads rawURL to dest. When the length is known, onProgress is
// called after each chunk that raises the cumulative percent, so the values
// are strictly increasing and end at 100. onProgress may be nil.
func (f *Fetcher) Fetch(ctx context.Context, rawURL, dest string, onProgress func(percent int)) error {
	last := -1
	_, err := f.Download(ctx, rawURL, dest, func(p Progress) {
		if onProgress == nil {
			return
		}
		if pct, ok := p.Percent(); ok && pct > last {
			last = pct
			onProgress(pct)
		}
	})
	return err
}

// Download is Fetch with raw byte progress: observe, if not nil, is called
// after every chunk. The data is written to dest+".part" and renamed to
// dest once complete; on failure the partial file is removed and dest is
// left untouched.
func (f *Fetcher) Download(ctx context.Context, rawURL, dest string, observe func(Progress)) (p Progress, err error) {
	p.Total = -1
	defer func() {
		f.metrics.RecordDownload(err == nil, p.Transferred)
		if err != nil {
			log.Printf("[fetch] %s -> %s failed after %d bytes: %v", rawURL, dest, p.Transferred, err)
		}
	}()

	ctx, wd := newWatchdog(ctx, f.inactivity)
	defer wd.Stop()

	resp, err := f.client.Open(ctx, &protocol.Request{
		URL:     rawURL,
		Method:  http.MethodGet,
		Headers: f.headers,
	})
	if err != nil {
		return p, wrap(ErrRequest, cause(ctx, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return p, &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}
	p.Total = resp.ContentLength

	part := dest + ".part"
	out, err := os.OpenFile(part, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return p, wrap(ErrCreate, err)
	}
	defer func() {
		if err != nil {
			_ = out.Close()
			_ = os.Remove(part)
		}
	}()

	buf := make([]byte, f.chunkSize)
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			wd.Kick()
			if _, werr := out.Write(buf[:n]); werr != nil {
				return p, wrap(ErrWrite, werr)
			}
			p.Transferred += int64(n)
			if observe != nil {
				observe(p)
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return p, wrap(ErrStream, cause(ctx, rerr))
		}
	}

	if err := out.Sync(); err != nil {
		return p, wrap(ErrWrite, err)
	}
	if err := out.Close(); err != nil {
		return p, wrap(ErrWrite, err)
	}
	if err := os.Rename(part, dest); err != nil {
		return p, wrap(ErrWrite, err)
	}
	if _, err := os.Stat(dest); err != nil {
		return p, wrap(ErrNoFile, err)
	}

	log.Printf("[fetch] saved %s (%d bytes)", dest, p.Transferred)
	return p, nil
}

// cause explains a transport error caused by the inactivity watchdog.
func cause(ctx context.Context, err error) error {
	if c := context.Cause(ctx); errors.Is(c, os.ErrDeadlineExceeded) {
		return fmt.Errorf("no data received in time: %w", c)
	}
	return err
}
