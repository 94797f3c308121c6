package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/anstrom/pingscan/internal/auth"
	"github.com/anstrom/pingscan/internal/config"
	"github.com/anstrom/pingscan/internal/jobs"
	"github.com/anstrom/pingscan/internal/logging"
	"github.com/anstrom/pingscan/internal/metrics"
	"github.com/anstrom/pingscan/internal/probe"
	"github.com/anstrom/pingscan/internal/probe/probetest"
	"github.com/anstrom/pingscan/internal/profiles"
	"github.com/anstrom/pingscan/internal/schedule"
	"github.com/anstrom/pingscan/internal/services"
)

// Test helper functions
func createTestConfig() *config.Config {
	cfg := config.Default()
	cfg.API.Enabled = true
	cfg.API.ListenAddr = "127.0.0.1"
	cfg.API.Port = 0
	cfg.API.StreamInterval = 10 * time.Millisecond
	cfg.API.ShutdownTimeout = 2 * time.Second
	return cfg
}

func createTestServer(t *testing.T, cfg *config.Config, withExtras bool) *Server {
	t.Helper()

	m := jobs.NewManager(jobs.Config{
		Pool:    jobs.PoolConfig{Size: 2, QueueSize: 8, ShutdownTimeout: 2 * time.Second},
		Workers: 8,
	}, probe.NewRegistry(probetest.Succeed(services.ICMP, 0), probetest.Succeed(services.TCP, 0)),
		logging.NewDiscard(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	m.Start(ctx)
	t.Cleanup(func() {
		cancel()
		_ = m.Shutdown()
	})

	deps := Deps{Manager: m, Logger: logging.NewDiscard()}
	if withExtras {
		deps.Metrics = metrics.NewPrometheusMetrics()
		deps.Scheduler = schedule.NewScheduler(m, logging.NewDiscard())
		require.NoError(t, deps.Scheduler.Add(config.ScheduleConfig{
			Name: "hourly", Cron: "@hourly", Targets: "10.0.0.1", Enabled: true,
			Services: map[string]string{"icmp": ""},
		}))
		catalog, err := profiles.NewManager()
		require.NoError(t, err)
		deps.Profiles = catalog
	}

	server, err := New(cfg, deps)
	require.NoError(t, err)
	return server
}

func TestNewServerRequiresDeps(t *testing.T) {
	_, err := New(nil, Deps{})
	assert.Error(t, err)

	_, err = New(createTestConfig(), Deps{})
	assert.Error(t, err)
}

func TestServerStartStop(t *testing.T) {
	server := createTestServer(t, createTestConfig(), false)

	ctx, cancel := context.WithCancel(context.Background())
	startErr := make(chan error, 1)
	go func() {
		startErr <- server.Start(ctx)
	}()

	var resp *http.Response
	require.Eventually(t, func() bool {
		addr := server.Addr()
		if strings.HasSuffix(addr, ":0") {
			return false
		}
		var err error
		resp, err = http.Get(fmt.Sprintf("http://%s/api/v1/liveness", addr))
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	err := server.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already running")

	cancel()
	select {
	case err := <-startErr:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Start did not return after the context was cancelled")
	}
}

func TestRoutes(t *testing.T) {
	srv := httptest.NewServer(createTestServer(t, createTestConfig(), true).Handler())
	defer srv.Close()

	tests := []struct {
		method string
		path   string
		body   string
		want   int
	}{
		{http.MethodGet, "/", "", http.StatusOK},
		{http.MethodGet, "/api/v1/liveness", "", http.StatusOK},
		{http.MethodGet, "/api/v1/health", "", http.StatusOK},
		{http.MethodGet, "/api/v1/version", "", http.StatusOK},
		{http.MethodGet, "/api/v1/scans", "", http.StatusOK},
		{http.MethodPost, "/api/v1/scans", `{"targets":"10.0.0.1","services":{"icmp":""}}`, http.StatusAccepted},
		{http.MethodPost, "/api/v1/scans", `{"targets":""}`, http.StatusBadRequest},
		{http.MethodGet, "/api/v1/scans/unknown", "", http.StatusNotFound},
		{http.MethodDelete, "/api/v1/scans/unknown", "", http.StatusNotFound},
		{http.MethodGet, "/api/v1/schedules", "", http.StatusOK},
		{http.MethodGet, "/api/v1/schedules/hourly", "", http.StatusOK},
		{http.MethodGet, "/api/v1/profiles", "", http.StatusOK},
		{http.MethodGet, "/api/v1/profiles/web", "", http.StatusOK},
		{http.MethodPost, "/api/v1/scans", `{"targets":"10.0.0.1","profile":"web"}`, http.StatusAccepted},
		{http.MethodGet, "/metrics", "", http.StatusOK},
		{http.MethodGet, "/api/v1/nothing", "", http.StatusNotFound},
		{http.MethodPut, "/api/v1/scans", "{}", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, srv.URL+tt.path, strings.NewReader(tt.body))
			require.NoError(t, err)
			req.Header.Set("Content-Type", "application/json")

			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestRoutesWithoutOptionalDeps(t *testing.T) {
	srv := httptest.NewServer(createTestServer(t, createTestConfig(), false).Handler())
	defer srv.Close()

	for _, path := range []string{"/metrics", "/api/v1/schedules", "/api/v1/profiles"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, path)
	}
}

func TestMetricsRecordRoutes(t *testing.T) {
	srv := httptest.NewServer(createTestServer(t, createTestConfig(), true).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/scans/abc")
	require.NoError(t, err)
	resp.Body.Close()

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `path="/api/v1/scans/{id}"`)
	assert.NotContains(t, string(body), `path="/api/v1/scans/abc"`)
}

func TestCORSPreflight(t *testing.T) {
	srv := httptest.NewServer(createTestServer(t, createTestConfig(), false).Handler())
	defer srv.Close()

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/api/v1/scans", http.NoBody)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestCORSDisabled(t *testing.T) {
	cfg := createTestConfig()
	cfg.API.CORS.Enabled = false
	server := createTestServer(t, cfg, false)
	assert.Same(t, server.Router(), server.Handler())
}

func TestBodySizeLimit(t *testing.T) {
	cfg := createTestConfig()
	cfg.API.MaxRequestSize = 32
	srv := httptest.NewServer(createTestServer(t, cfg, false).Handler())
	defer srv.Close()

	body := `{"targets":"` + strings.Repeat("1", 64) + `"}`
	resp, err := http.Post(srv.URL+"/api/v1/scans", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Contains(t, out["message"], "too large")
}

func TestIndex(t *testing.T) {
	srv := httptest.NewServer(createTestServer(t, createTestConfig(), true).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "pingscan API", out["service"])
	endpoints := out["endpoints"].(map[string]interface{})
	assert.Equal(t, "/metrics", endpoints["metrics"])
	assert.Equal(t, "/api/v1/profiles", endpoints["profiles"])
	assert.Equal(t, "/api/v1/schedules", endpoints["schedules"])
}

func TestSwaggerDocs(t *testing.T) {
	srv := httptest.NewServer(createTestServer(t, createTestConfig(), false).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/swagger/doc.json")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var doc struct {
		Info struct {
			Title string `json:"title"`
		} `json:"info"`
		BasePath string                 `json:"basePath"`
		Paths    map[string]interface{} `json:"paths"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&doc))
	assert.Equal(t, "pingscan API", doc.Info.Title)
	assert.Equal(t, "/api/v1", doc.BasePath)
	assert.Contains(t, doc.Paths, "/scans/{id}/stream")

	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
	resp, err = client.Get(srv.URL + "/docs")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMovedPermanently, resp.StatusCode)
	assert.Equal(t, "/swagger/index.html", resp.Header.Get("Location"))
}

func TestAPIKeyAuthentication(t *testing.T) {
	const key = "ps_servertestkey"
	hash, err := auth.HashKeyWithCost(key, bcrypt.MinCost)
	require.NoError(t, err)

	cfg := createTestConfig()
	cfg.API.Auth.Enabled = true
	cfg.API.Auth.Keys = []config.APIKeyConfig{{Name: "ci", Hash: hash}}
	srv := httptest.NewServer(createTestServer(t, cfg, true).Handler())
	defer srv.Close()

	get := func(path, apiKey string) int {
		req, err := http.NewRequest(http.MethodGet, srv.URL+path, http.NoBody)
		require.NoError(t, err)
		if apiKey != "" {
			req.Header.Set("X-API-Key", apiKey)
		}
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusUnauthorized, get("/api/v1/scans", ""))
	assert.Equal(t, http.StatusUnauthorized, get("/api/v1/schedules", "ps_wrong"))
	assert.Equal(t, http.StatusOK, get("/api/v1/scans", key))
	assert.Equal(t, http.StatusOK, get("/api/v1/schedules", key))
	assert.Equal(t, http.StatusOK, get("/api/v1/health", ""))
	assert.Equal(t, http.StatusOK, get("/metrics", ""))
}

func TestAPIKeyAuthRejectsBadHash(t *testing.T) {
	cfg := createTestConfig()
	cfg.API.Auth.Enabled = true
	cfg.API.Auth.Keys = []config.APIKeyConfig{{Name: "ci", Hash: "plaintext"}}

	m := jobs.NewManager(jobs.Config{Pool: jobs.PoolConfig{Size: 1, QueueSize: 1}}, probe.NewRegistry(), logging.NewDiscard(), nil)
	_, err := New(cfg, Deps{Manager: m, Logger: logging.NewDiscard()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bcrypt")
}
