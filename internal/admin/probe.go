package admin

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// HTTPProbe calls a health URL over HTTP.
type HTTPProbe struct {
	url    string
	client *http.Client
}

// NewHTTPProbe probes http://addr/health. Wildcard listen hosts are probed on loopback.
func NewHTTPProbe(host string, port int) *HTTPProbe {
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return &HTTPProbe{
		url:    "http://" + net.JoinHostPort(host, strconv.Itoa(port)) + "/health",
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

// URL returns the probed address.
func (p *HTTPProbe) URL() string {
	return p.url
}

// Probe implements HealthProbe.
func (p *HTTPProbe) Probe(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return "", fmt.Errorf("build health request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("call %s: %w", p.url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return "", fmt.Errorf("read health response: %w", err)
	}
	return fmt.Sprintf("%d %s", resp.StatusCode, strings.TrimSpace(string(body))), nil
}
