package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/anstrom/pingscan/internal/logging"
)

type staticStats map[string]interface{}

func (s staticStats) Stats() map[string]interface{} {
	return s
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		stats      StatsSource
		wantCode   int
		wantStatus string
	}{
		{"healthy", staticStats{"scans": 1, "stalled": 0}, http.StatusOK, StatusHealthy},
		{"stalled probes", staticStats{"scans": 1, "stalled": 3}, http.StatusOK, StatusDegraded},
		{"no engine", nil, http.StatusServiceUnavailable, StatusDegraded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(tt.stats, logging.NewDiscard())
			w := httptest.NewRecorder()
			h.Health(w, httptest.NewRequest(http.MethodGet, "/api/v1/health", http.NoBody))

			assert.Equal(t, tt.wantCode, w.Code)
			body := decode(t, w)
			assert.Equal(t, tt.wantStatus, body["status"])
			assert.NotEmpty(t, body["uptime"])
		})
	}
}

func TestHealthWithManager(t *testing.T) {
	h := NewHealthHandler(newTestManager(t, 0), logging.NewDiscard())
	w := httptest.NewRecorder()
	h.Health(w, httptest.NewRequest(http.MethodGet, "/api/v1/health", http.NoBody))

	assert.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	engine := body["engine"].(map[string]interface{})
	assert.Equal(t, float64(0), engine["scans"])
	assert.Contains(t, engine, "probes")
}

func TestLiveness(t *testing.T) {
	h := NewHealthHandler(nil, nil)
	w := httptest.NewRecorder()
	h.Liveness(w, httptest.NewRequest(http.MethodGet, "/api/v1/liveness", http.NoBody))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alive", decode(t, w)["status"])
}

func TestVersion(t *testing.T) {
	SetBuildInfo("1.2.3", "abc123", "2026-01-01")
	t.Cleanup(func() { SetBuildInfo("dev", "none", "unknown") })

	h := NewHealthHandler(nil, nil)
	w := httptest.NewRecorder()
	h.Version(w, httptest.NewRequest(http.MethodGet, "/api/v1/version", http.NoBody))

	body := decode(t, w)
	assert.Equal(t, "1.2.3", body["version"])
	assert.Equal(t, "abc123", body["commit"])
	assert.NotEmpty(t, body["go_version"])
}
