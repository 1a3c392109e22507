package health

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/netask/internal/config"
	"github.com/netask/pkg/protocol"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc/codes"
)

// EndpointStatus is the outcome of one probe.
type EndpointStatus struct {
	Name       string
	URL        string
	Protocol   config.Protocol
	Healthy    bool
	StatusCode int
	Latency    time.Duration
	Err        error
}

// Checker performs health checks on the configured endpoints.
type Checker struct {
	cfg       config.Health
	endpoints []config.Endpoint
	metrics   *Metrics
	clients   map[config.Protocol]protocol.Client
	statuses  map[string]EndpointStatus
	mu        sync.RWMutex
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewChecker creates a new health checker. clients maps each protocol to the
// client used to probe it; missing protocols fall back to ProtocolHTTP.
func NewChecker(cfg config.Health, endpoints []config.Endpoint, clients map[config.Protocol]protocol.Client, metrics *Metrics) *Checker {
	return &Checker{
		cfg:       cfg,
		endpoints: endpoints,
		metrics:   metrics,
		clients:   clients,
		statuses:  make(map[string]EndpointStatus),
	}
}

// DefaultClients builds one probe client per supported protocol.
func DefaultClients(tc config.Transport) map[config.Protocol]protocol.Client {
	clientCfg := protocol.ClientConfig{
		MaxIdleConns:    4,
		IdleConnTimeout: 30 * time.Second,
		TLSInsecure:     tc.TLSInsecure,
		MaxBodyBytes:    64 << 10,
	}

	return map[config.Protocol]protocol.Client{
		config.ProtocolHTTP:  protocol.NewHTTPClient(clientCfg),
		config.ProtocolHTTP2: protocol.NewHTTP2Client(clientCfg),
		config.ProtocolGRPC:  protocol.NewGRPCClient(clientCfg),
	}
}

// Start begins periodic health checking. The first round runs immediately.
func (c *Checker) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})

	go c.run(ctx)
}

// run is the main health check loop.
func (c *Checker) run(ctx context.Context) {
	defer close(c.done)

	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	c.CheckOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.CheckOnce(ctx)
		}
	}
}

// CheckOnce probes every endpoint concurrently and returns the results
// sorted by endpoint name.
func (c *Checker) CheckOnce(ctx context.Context) []EndpointStatus {
	var wg sync.WaitGroup
	results := make([]EndpointStatus, len(c.endpoints))

	for i, endpoint := range c.endpoints {
		wg.Add(1)
		go func(i int, e config.Endpoint) {
			defer wg.Done()
			results[i] = c.checkEndpoint(ctx, e)
		}(i, endpoint)
	}

	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })
	return results
}

// checkEndpoint performs a health check on a single endpoint.
func (c *Checker) checkEndpoint(ctx context.Context, e config.Endpoint) EndpointStatus {
	client, ok := c.clients[e.Protocol]
	if !ok {
		client = c.clients[config.ProtocolHTTP]
	}

	status := EndpointStatus{Name: e.Name, URL: e.URL, Protocol: e.Protocol}
	if client == nil {
		status.Err = errors.New("no client for protocol " + string(e.Protocol))
		c.record(status)
		return status
	}

	req := &protocol.Request{
		URL:     e.URL,
		Method:  e.Method,
		Timeout: e.Timeout,
	}

	checkCtx, cancel := context.WithTimeout(ctx, e.Timeout)
	defer cancel()

	resp := client.Do(checkCtx, req)

	status.StatusCode = resp.StatusCode
	status.Latency = resp.Duration
	status.Err = resp.Error
	if e.Protocol == config.ProtocolGRPC {
		status.Healthy = resp.Error == nil && resp.StatusCode == int(codes.OK)
	} else {
		status.Healthy = resp.Error == nil && resp.StatusCode >= 200 && resp.StatusCode < 400
	}

	c.record(status)
	return status
}

func (c *Checker) record(status EndpointStatus) {
	c.mu.Lock()
	prev, seen := c.statuses[status.Name]
	c.statuses[status.Name] = status
	c.mu.Unlock()

	c.metrics.SetEndpointHealth(status.Name, status.Healthy)

	// Log status changes
	if !seen || prev.Healthy != status.Healthy {
		if status.Healthy {
			log.Printf("[health] endpoint %s is healthy", status.Name)
		} else {
			log.Printf("[health] endpoint %s is unhealthy: status=%d err=%v", status.Name, status.StatusCode, status.Err)
		}
	}
}

// IsHealthy returns whether an endpoint passed its last probe.
func (c *Checker) IsHealthy(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.statuses[name].Healthy
}

// Statuses returns the last known status of every probed endpoint.
func (c *Checker) Statuses() []EndpointStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]EndpointStatus, 0, len(c.statuses))
	for _, s := range c.statuses {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Stop stops the health checker and closes its clients.
func (c *Checker) Stop() {
	if c.cancel != nil {
		c.cancel()
		<-c.done
	}

	for _, client := range c.clients {
		client.Close()
	}
}

// Server serves Prometheus metrics and health endpoints.
type Server struct {
	server *http.Server
}

// NewServer creates a new metrics/health HTTP server.
func NewServer(cfg config.Metrics, gatherer prometheus.Gatherer) *Server {
	mux := http.NewServeMux()

	// Prometheus metrics endpoint
	mux.Handle(cfg.Path, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	// Liveness probe
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// Readiness probe
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	return &Server{
		server: &http.Server{
			Addr:              cfg.Address,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Handler exposes the server mux.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start begins serving metrics. It returns nil after Stop.
func (s *Server) Start() error {
	log.Printf("[metrics] starting server on %s", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully stops the server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
