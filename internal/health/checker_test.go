package health

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/netask/internal/config"
	"github.com/netask/pkg/protocol"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func newTestChecker(t *testing.T, endpoints []config.Endpoint) (*Checker, *Metrics) {
	t.Helper()
	m := NewMetrics(prometheus.NewRegistry())
	clients := map[config.Protocol]protocol.Client{
		config.ProtocolHTTP: protocol.NewHTTPClient(protocol.ClientConfig{}),
	}
	return NewChecker(config.Health{Interval: 20 * time.Millisecond, Timeout: time.Second}, endpoints, clients, m), m
}

func TestCheckOnce(t *testing.T) {
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer up.Close()
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer down.Close()

	c, m := newTestChecker(t, []config.Endpoint{
		{Name: "up", URL: up.URL, Protocol: config.ProtocolHTTP, Method: "GET", Timeout: time.Second},
		{Name: "down", URL: down.URL, Protocol: config.ProtocolHTTP, Method: "GET", Timeout: time.Second},
		{Name: "h2", URL: up.URL, Protocol: config.ProtocolHTTP2, Method: "GET", Timeout: time.Second},
	})
	defer c.Stop()

	statuses := c.CheckOnce(context.Background())
	require.Len(t, statuses, 3)
	require.Equal(t, "down", statuses[0].Name)
	require.False(t, statuses[0].Healthy)
	require.Equal(t, http.StatusServiceUnavailable, statuses[0].StatusCode)
	require.Equal(t, "h2", statuses[1].Name)
	require.True(t, statuses[1].Healthy, "missing protocol client falls back to http")
	require.Equal(t, "up", statuses[2].Name)
	require.True(t, statuses[2].Healthy)

	require.True(t, c.IsHealthy("up"))
	require.False(t, c.IsHealthy("down"))
	require.Equal(t, 1.0, testutil.ToFloat64(m.EndpointHealth.WithLabelValues("up")))
	require.Equal(t, 0.0, testutil.ToFloat64(m.EndpointHealth.WithLabelValues("down")))
}

func TestCheckerStartProbesPeriodically(t *testing.T) {
	hits := make(chan struct{}, 16)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case hits <- struct{}{}:
		default:
		}
	}))
	defer srv.Close()

	c, _ := newTestChecker(t, []config.Endpoint{
		{Name: "svc", URL: srv.URL, Protocol: config.ProtocolHTTP, Method: "GET", Timeout: time.Second},
	})
	c.Start(context.Background())

	for i := 0; i < 2; i++ {
		select {
		case <-hits:
		case <-time.After(2 * time.Second):
			t.Fatal("endpoint was not probed")
		}
	}
	c.Stop()

	require.Len(t, c.Statuses(), 1)
	require.True(t, c.IsHealthy("svc"))
}

func TestServerServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.RecordRequest("POST", 200, 0.01)
	m.RecordDownload(true, 1000)

	s := NewServer(config.Metrics{Address: ":0", Path: "/metrics"}, reg)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), `netask_requests_total{code="200",method="POST"} 1`)
	require.Contains(t, string(body), `netask_downloaded_bytes_total 1000`)

	resp, err = http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	m.RecordRequest("GET", 0, 1)
	m.IncRetries()
	m.RecordDispatch("success")
	m.RecordDownload(false, 0)
	m.SetEndpointHealth("x", true)
}
