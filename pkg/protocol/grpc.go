package protocol

import (
	"context"
	"crypto/tls"
	"strings"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"
)

// GRPCClient implements Client as a probe of the standard gRPC health
// service. Request.URL is the dial target:
//
//	grpc://host:port    plaintext
//	grpcs://host:port   TLS
//	host:port           TLS, or plaintext when TLSInsecure is set
//
// Request.Method, unless empty or an HTTP verb, names the service to check.
// StatusCode is codes.OK when the service is SERVING and Body holds the
// reported serving status.
type GRPCClient struct {
	mu    sync.Mutex
	conns map[grpcTarget]*grpc.ClientConn
	cfg   ClientConfig
}

type grpcTarget struct {
	addr   string
	secure bool
}

// NewGRPCClient creates a new gRPC health probe.
func NewGRPCClient(cfg ClientConfig) *GRPCClient {
	return &GRPCClient{
		conns: make(map[grpcTarget]*grpc.ClientConn),
		cfg:   cfg,
	}
}

func (c *GRPCClient) parseTarget(rawURL string) grpcTarget {
	switch {
	case strings.HasPrefix(rawURL, "grpcs://"):
		return grpcTarget{addr: strings.TrimPrefix(rawURL, "grpcs://"), secure: true}
	case strings.HasPrefix(rawURL, "grpc://"):
		return grpcTarget{addr: strings.TrimPrefix(rawURL, "grpc://")}
	}
	return grpcTarget{addr: rawURL, secure: !c.cfg.TLSInsecure}
}

func (c *GRPCClient) conn(t grpcTarget) (*grpc.ClientConn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if conn, ok := c.conns[t]; ok {
		return conn, nil
	}

	creds := insecure.NewCredentials()
	if t.secure {
		creds = credentials.NewTLS(&tls.Config{InsecureSkipVerify: c.cfg.TLSInsecure})
	}

	conn, err := grpc.NewClient(t.addr,
		grpc.WithTransportCredentials(creds),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                10 * time.Second,
			Timeout:             5 * time.Second,
			PermitWithoutStream: true,
		}),
	)
	if err != nil {
		return nil, err
	}

	c.conns[t] = conn
	return conn, nil
}

// Do runs one health check.
func (c *GRPCClient) Do(ctx context.Context, req *Request) *Response {
	start := time.Now()
	resp := &Response{Attempts: 1}
	defer func() { resp.Duration = time.Since(start) }()

	conn, err := c.conn(c.parseTarget(req.URL))
	if err != nil {
		resp.Error = err
		return resp
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	check, err := grpc_health_v1.NewHealthClient(conn).Check(ctx, &grpc_health_v1.HealthCheckRequest{
		Service: grpcService(req.Method),
	})
	if err != nil {
		resp.Error = err
		if s, ok := status.FromError(err); ok {
			resp.StatusCode = int(s.Code())
		}
		return resp
	}

	resp.Body = []byte(check.GetStatus().String())
	resp.BytesRead = int64(len(resp.Body))
	resp.StatusCode = int(codes.Unavailable)
	if check.GetStatus() == grpc_health_v1.HealthCheckResponse_SERVING {
		resp.StatusCode = int(codes.OK)
	}
	return resp
}

// grpcService maps an endpoint method to a health service name. Empty means
// the server as a whole.
func grpcService(method string) string {
	switch strings.ToUpper(method) {
	case "", "GET", "HEAD":
		return ""
	}
	return method
}

// Close releases all connections.
func (c *GRPCClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for t, conn := range c.conns {
		conn.Close()
		delete(c.conns, t)
	}
	return nil
}
