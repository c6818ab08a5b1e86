package admin

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPProbe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"unhealthy","error":"timeout"}` + "\n"))
	}))
	defer srv.Close()

	host, portStr, err := net.SplitHostPort(srv.Listener.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	got, err := NewHTTPProbe(host, port).Probe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, `503 {"status":"unhealthy","error":"timeout"}`, got)
}

func TestHTTPProbeWildcardHost(t *testing.T) {
	assert.Equal(t, "http://127.0.0.1:8080/health", NewHTTPProbe("0.0.0.0", 8080).URL())
	assert.Equal(t, "http://[::1]:9000/health", NewHTTPProbe("::1", 9000).URL())
}

func TestHTTPProbeUnreachable(t *testing.T) {
	_, err := NewHTTPProbe("127.0.0.1", 1).Probe(context.Background())
	assert.Error(t, err)
}
