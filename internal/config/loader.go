package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// LoadOrDefault loads path when it exists and falls back to DefaultConfig
// when path is empty or missing.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}
	return cfg, err
}

// Parse decodes YAML data on top of the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// validate checks the configuration for errors.
func validate(cfg *Config) error {
	switch cfg.Transport.Protocol {
	case "":
		cfg.Transport.Protocol = ProtocolHTTP
	case ProtocolHTTP, ProtocolHTTP2:
	default:
		return fmt.Errorf("transport.protocol must be http or http2, got %q", cfg.Transport.Protocol)
	}

	if cfg.Queue.PoolSize <= 0 {
		return fmt.Errorf("queue.pool_size must be positive")
	}
	if cfg.Queue.QueueSize < 0 {
		return fmt.Errorf("queue.queue_size must not be negative")
	}
	if cfg.Queue.RateLimit < 0 {
		return fmt.Errorf("queue.rate_limit must not be negative")
	}

	if cfg.Dispatch.SyncTimeout <= 0 {
		return fmt.Errorf("dispatch.sync_timeout must be positive")
	}
	if cfg.Dispatch.Retry.Timeout <= 0 {
		return fmt.Errorf("dispatch.retry.timeout must be positive")
	}
	if cfg.Dispatch.Retry.MaxRetries < 0 {
		return fmt.Errorf("dispatch.retry.max_retries must not be negative")
	}
	if cfg.Dispatch.Retry.BackoffMultiplier < 0 {
		return fmt.Errorf("dispatch.retry.backoff_multiplier must not be negative")
	}

	if cfg.Fetch.ChunkSize <= 0 {
		return fmt.Errorf("fetch.chunk_size must be positive")
	}
	if cfg.Fetch.InactivityTimeout < 0 {
		return fmt.Errorf("fetch.inactivity_timeout must not be negative")
	}

	if cfg.Health.Interval <= 0 {
		cfg.Health.Interval = 10 * time.Second
	}
	if cfg.Health.Timeout <= 0 {
		cfg.Health.Timeout = 5 * time.Second
	}

	for i, e := range cfg.Endpoints {
		if e.Name == "" {
			return fmt.Errorf("endpoints[%d]: name is required", i)
		}
		if e.URL == "" {
			return fmt.Errorf("endpoints[%d]: url is required", i)
		}
		switch e.Protocol {
		case "":
			cfg.Endpoints[i].Protocol = ProtocolHTTP
		case ProtocolHTTP, ProtocolHTTP2, ProtocolGRPC:
		default:
			return fmt.Errorf("endpoints[%d]: unknown protocol %q", i, e.Protocol)
		}
		if e.Method == "" && cfg.Endpoints[i].Protocol != ProtocolGRPC {
			cfg.Endpoints[i].Method = "GET"
		}
		if e.Timeout <= 0 {
			cfg.Endpoints[i].Timeout = cfg.Health.Timeout
		}
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Address == "" {
		return fmt.Errorf("metrics.address is required when metrics are enabled")
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	return nil
}
