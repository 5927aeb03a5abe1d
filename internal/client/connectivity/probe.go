package connectivity

import (
	"context"
	"fmt"
	"net/http"

	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HTTPProber treats any 2xx answer from URL as online.
type HTTPProber struct {
	client *http.Client
	url    string
}

func NewHTTPProber(client *http.Client, url string) *HTTPProber {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPProber{client: client, url: url}
}

func (p *HTTPProber) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("health check: %s", resp.Status)
	}
	return nil
}

// GRPCHealthProber asks a gRPC health service whether service is SERVING.
// An empty service name checks the server as a whole.
type GRPCHealthProber struct {
	client  healthpb.HealthClient
	service string
}

func NewGRPCHealthProber(conn grpc.ClientConnInterface, service string) *GRPCHealthProber {
	return &GRPCHealthProber{client: healthpb.NewHealthClient(conn), service: service}
}

func (p *GRPCHealthProber) Probe(ctx context.Context) error {
	resp, err := p.client.Check(ctx, &healthpb.HealthCheckRequest{Service: p.service})
	if err != nil {
		return err
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("health check: %s", resp.GetStatus())
	}
	return nil
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context) error

func (f ProberFunc) Probe(ctx context.Context) error { return f(ctx) }
