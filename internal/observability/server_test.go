// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package observability

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// noKeepAlive avoids idle client connections outliving the test.
var noKeepAlive = &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}

func startServer(t *testing.T, ready ReadinessChecker) *Server {
	t.Helper()
	server := NewServer("127.0.0.1:0", ready)
	_, err := server.Start()
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Stop(ctx)
	})
	return server
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := noKeepAlive.Get(url)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestServer_MetricsEndpoint(t *testing.T) {
	server := startServer(t, func() bool { return true })

	m := server.Metrics()
	m.ObserveFlow("login", "success")
	m.ObserveFlow("login", "success")
	m.ObserveFlow("login", "AUTH_INVALID_CREDENTIALS")
	m.ObserveHTTPRequest(http.MethodPost, "/api/auth/login", http.StatusOK)
	m.ObserveGate("allowed")

	status, body := get(t, "http://"+server.Addr()+"/metrics")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "# HELP")
	assert.Contains(t, body, "go_")
	assert.Contains(t, body, "process_")
	assert.Contains(t, body, `keyward_auth_flow_total{flow="login",outcome="success"} 2`)
	assert.Contains(t, body, `keyward_auth_flow_total{flow="login",outcome="AUTH_INVALID_CREDENTIALS"} 1`)
	assert.Contains(t, body, `keyward_http_requests_total{method="POST",route="/api/auth/login",status="200"} 1`)
	assert.Contains(t, body, `keyward_gate_decisions_total{outcome="allowed"} 1`)
}

func TestMetrics_ObserveFlow(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ObserveFlow("register", "success")
	m.ObserveFlow("register", "USER_EMAIL_TAKEN")
	m.ObserveFlow("register", "USER_EMAIL_TAKEN")

	assert.InDelta(t, 1, testutil.ToFloat64(m.FlowsTotal.WithLabelValues("register", "success")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.FlowsTotal.WithLabelValues("register", "USER_EMAIL_TAKEN")), 0)
}

func TestServer_Probes(t *testing.T) {
	tests := []struct {
		name   string
		ready  ReadinessChecker
		path   string
		status int
		body   string
	}{
		{"liveness", nil, "/healthz/liveness", http.StatusOK, "ok"},
		{"ready", func() bool { return true }, "/healthz/readiness", http.StatusOK, "ok"},
		{"not ready", func() bool { return false }, "/healthz/readiness", http.StatusServiceUnavailable, "not ready"},
		{"nil checker is ready", nil, "/healthz/readiness", http.StatusOK, "ok"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := startServer(t, tt.ready)
			status, body := get(t, "http://"+server.Addr()+tt.path)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.body, strings.TrimSpace(body))
		})
	}
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

func TestPingReadiness(t *testing.T) {
	assert.True(t, PingReadiness(stubPinger{}, time.Second)())
	assert.False(t, PingReadiness(stubPinger{err: errors.New("conn refused")}, time.Second)())
}

func TestServer_DoubleStartFails(t *testing.T) {
	server := startServer(t, nil)
	_, err := server.Start()
	require.Error(t, err)
}

func TestServer_StopWithoutStart(t *testing.T) {
	server := NewServer("127.0.0.1:0", nil)
	require.NoError(t, server.Stop(context.Background()))
	assert.Empty(t, server.Addr())
}

func TestServer_ErrorChannelReportsServeErrors(t *testing.T) {
	server := NewServer("127.0.0.1:0", nil)
	errCh, err := server.Start()
	require.NoError(t, err)
	defer func() { _ = server.Stop(context.Background()) }()

	require.NoError(t, server.listener.Close())

	select {
	case serveErr := <-errCh:
		assert.Error(t, serveErr)
	case <-time.After(2 * time.Second):
		t.Fatal("serve error was not delivered on the channel")
	}
}

func TestServer_StopReleasesGoroutines(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	server := NewServer("127.0.0.1:0", nil)
	errCh, err := server.Start()
	require.NoError(t, err)

	status, _ := get(t, "http://"+server.Addr()+"/healthz/liveness")
	require.Equal(t, http.StatusOK, status)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, server.Stop(ctx))

	select {
	case err, ok := <-errCh:
		if ok {
			assert.NoError(t, err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("error channel was not closed on shutdown")
	}
}
