package local

import (
	"context"
	"net/http"
	"time"

	"github.com/fluxcd/rollout/pkg/cluster"
)

// HTTPProber performs readiness checks by issuing a GET against the
// workload's readiness path. A 2xx response means ready; anything
// else, including transport errors, means not ready.
type HTTPProber struct {
	// BaseURL is prefixed to each instance spec's probe path.
	BaseURL string
	Client  *http.Client
}

func (p *HTTPProber) Probe(ctx context.Context, spec cluster.InstanceSpec, id cluster.InstanceID) bool {
	client := p.Client
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	req, err := http.NewRequest("GET", p.BaseURL+spec.Probe.Path, nil)
	if err != nil {
		return false
	}
	resp, err := client.Do(req.WithContext(ctx))
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}
