package cli

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/netask/internal/config"
	"github.com/netask/internal/dispatch"
	"github.com/netask/internal/fetch"
	"github.com/netask/internal/health"
	"github.com/netask/internal/queue"
	"github.com/netask/pkg/protocol"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const drainTimeout = 5 * time.Second

// runtime holds the process-wide pieces shared by the commands: one
// transport client, one request queue and one metrics registry.
type runtime struct {
	cfg      *config.Config
	registry *prometheus.Registry
	metrics  *health.Metrics
	client   *protocol.HTTPClient
	queue    *queue.Queue
	server   *health.Server
	checker  *health.Checker
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if metricsAddr != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Address = metricsAddr
	}
	return cfg, nil
}

func newRuntime(ctx context.Context) (*runtime, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := health.NewMetrics(registry)

	client := newTransport(cfg.Transport)
	q := queue.New(cfg.Queue, client, metrics)
	q.Start(ctx)

	rt := &runtime{
		cfg:      cfg,
		registry: registry,
		metrics:  metrics,
		client:   client,
		queue:    q,
	}

	if cfg.Metrics.Enabled {
		if len(cfg.Endpoints) > 0 {
			rt.checker = health.NewChecker(cfg.Health, cfg.Endpoints, health.DefaultClients(cfg.Transport), metrics)
			rt.checker.Start(ctx)
		}
		rt.server = health.NewServer(cfg.Metrics, registry)
		go func() {
			if err := rt.server.Start(); err != nil {
				log.Printf("[metrics] server error: %v", err)
			}
		}()
	}

	return rt, nil
}

func newTransport(tc config.Transport) *protocol.HTTPClient {
	cc := protocol.ClientConfig{
		MaxIdleConns:    tc.MaxIdleConns,
		IdleConnTimeout: tc.IdleConnTimeout,
		TLSInsecure:     tc.TLSInsecure,
		MaxBodyBytes:    tc.MaxBodyBytes,
		UserAgent:       tc.UserAgent,
	}
	if tc.Protocol == config.ProtocolHTTP2 {
		return protocol.NewHTTP2Client(cc)
	}
	return protocol.NewHTTPClient(cc)
}

func (r *runtime) dispatcher(opts ...dispatch.Option) *dispatch.Dispatcher {
	base := []dispatch.Option{
		dispatch.WithConfig(r.cfg.Dispatch),
		dispatch.WithMetrics(r.metrics),
	}
	return dispatch.New(r.queue, append(base, opts...)...)
}

func (r *runtime) fetcher(chunkSize int) *fetch.Fetcher {
	fc := r.cfg.Fetch
	if chunkSize > 0 {
		fc.ChunkSize = chunkSize
	}
	return fetch.New(r.client, fc, r.metrics)
}

// Close drains and stops the queue, then the checker and metrics server.
func (r *runtime) Close() {
	r.queue.Drain(drainTimeout)
	r.queue.Stop()

	if r.checker != nil {
		r.checker.Stop()
	}

	if r.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		defer cancel()
		if err := r.server.Stop(ctx); err != nil {
			log.Printf("[metrics] shutdown error: %v", err)
		}
	}
}
