package config

import "time"

// Config is the root configuration structure.
type Config struct {
	Transport Transport  `yaml:"transport"`
	Queue     Queue      `yaml:"queue"`
	Dispatch  Dispatch   `yaml:"dispatch"`
	Fetch     Fetch      `yaml:"fetch"`
	Endpoints []Endpoint `yaml:"endpoints,omitempty"`
	Health    Health     `yaml:"health"`
	Metrics   Metrics    `yaml:"metrics"`
}

// Protocol represents the supported protocols.
type Protocol string

const (
	ProtocolHTTP  Protocol = "http"
	ProtocolHTTP2 Protocol = "http2"
	ProtocolGRPC  Protocol = "grpc"
)

// Transport configures the HTTP client shared by the queue and the fetcher.
type Transport struct {
	Protocol        Protocol      `yaml:"protocol"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	IdleConnTimeout time.Duration `yaml:"idle_conn_timeout"`
	TLSInsecure     bool          `yaml:"tls_insecure"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
	UserAgent       string        `yaml:"user_agent,omitempty"`
}

// Queue configures the request queue.
type Queue struct {
	PoolSize  int     `yaml:"pool_size"`
	QueueSize int     `yaml:"queue_size"`
	RateLimit float64 `yaml:"rate_limit"` // requests per second, 0 = unlimited
}

// Retry is the per-request retry policy.
type Retry struct {
	Timeout           time.Duration `yaml:"timeout"`
	MaxRetries        int           `yaml:"max_retries"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
	RetryServerErrors bool          `yaml:"retry_server_errors"`
}

// Dispatch configures the request dispatcher.
type Dispatch struct {
	SyncTimeout time.Duration     `yaml:"sync_timeout"`
	Retry       Retry             `yaml:"retry"`
	Headers     map[string]string `yaml:"headers,omitempty"`
}

// Fetch configures the file fetcher.
type Fetch struct {
	ChunkSize         int               `yaml:"chunk_size"`
	InactivityTimeout time.Duration     `yaml:"inactivity_timeout"`
	Headers           map[string]string `yaml:"headers,omitempty"`
}

// Endpoint is a backend probed by the health checker.
type Endpoint struct {
	Name     string        `yaml:"name"`
	URL      string        `yaml:"url"`
	Protocol Protocol      `yaml:"protocol"`
	Method   string        `yaml:"method,omitempty"`
	Timeout  time.Duration `yaml:"timeout"`
}

// Health configures the health checker.
type Health struct {
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
}

// Metrics configures Prometheus metrics.
type Metrics struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
	Path    string `yaml:"path"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Transport: Transport{
			Protocol:        ProtocolHTTP,
			MaxIdleConns:    16,
			IdleConnTimeout: 90 * time.Second,
		},
		Queue: Queue{
			PoolSize:  4,
			QueueSize: 256,
		},
		Dispatch: Dispatch{
			SyncTimeout: 10 * time.Second,
			Retry: Retry{
				Timeout:           10 * time.Second,
				MaxRetries:        1,
				BackoffMultiplier: 1.0,
			},
		},
		Fetch: Fetch{
			ChunkSize: 100,
		},
		Health: Health{
			Interval: 10 * time.Second,
			Timeout:  5 * time.Second,
		},
		Metrics: Metrics{
			Enabled: false,
			Address: ":9090",
			Path:    "/metrics",
		},
	}
}
