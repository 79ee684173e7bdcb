package httpapi

import (
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHealthChecker struct {
	components map[string]ComponentStatus
}

func (f *fakeHealthChecker) Check() map[string]ComponentStatus {
	return f.components
}

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	l.Close()
	return addr
}

func TestHealthEndpointReportsHealthyWithNoChecker(t *testing.T) {
	addr := freeAddr(t)
	srv := NewServer(DefaultConfig(addr), nil, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)

	resp, err := http.Get("http://" + addr + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	require.NoError(t, <-done)
}

func TestHealthEndpointReportsUnhealthyWhenAllComponentsDown(t *testing.T) {
	addr := freeAddr(t)
	checker := &fakeHealthChecker{components: map[string]ComponentStatus{
		"database": {Healthy: false, Detail: "connection refused"},
	}}
	srv := NewServer(DefaultConfig(addr), checker, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)

	resp, err := http.Get("http://" + addr + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	cancel()
	require.NoError(t, <-done)
}

func TestMetricsEndpointServesPrometheusFormat(t *testing.T) {
	addr := freeAddr(t)
	srv := NewServer(DefaultConfig(addr), nil, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)

	resp, err := http.Get("http://" + addr + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	require.NoError(t, <-done)
}
