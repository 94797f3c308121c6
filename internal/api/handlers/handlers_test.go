package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"

	"github.com/anstrom/pingscan/internal/jobs"
	"github.com/anstrom/pingscan/internal/logging"
	"github.com/anstrom/pingscan/internal/probe"
	"github.com/anstrom/pingscan/internal/probe/probetest"
	"github.com/anstrom/pingscan/internal/profiles"
	"github.com/anstrom/pingscan/internal/services"
)

// newTestManager starts a manager whose probers answer after delay.
func newTestManager(t *testing.T, delay time.Duration) *jobs.Manager {
	t.Helper()
	registry := probe.NewRegistry(
		probetest.Succeed(services.ICMP, delay),
		probetest.Succeed(services.TCP, delay),
		probetest.Fail(services.UDP, delay, probe.ErrorTimeout),
	)
	m := jobs.NewManager(jobs.Config{
		Pool:    jobs.PoolConfig{Size: 2, QueueSize: 8, ShutdownTimeout: 2 * time.Second},
		Workers: 16,
		Timeout: time.Second,
	}, registry, logging.NewDiscard(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	m.Start(ctx)
	t.Cleanup(func() {
		cancel()
		_ = m.Shutdown()
	})
	return m
}

func newScanRouter(m *jobs.Manager) *mux.Router {
	catalog, _ := profiles.NewManager(profiles.Profile{
		Name:     "lab",
		Services: map[string]string{"tcp": "22"},
		Timeout:  250 * time.Millisecond,
	})
	h := NewScanHandler(m, catalog, logging.NewDiscard())
	ws := NewWebSocketHandler(m, logging.NewDiscard(), 10*time.Millisecond)

	router := mux.NewRouter()
	router.HandleFunc("/scans", h.CreateScan).Methods(http.MethodPost)
	router.HandleFunc("/scans", h.ListScans).Methods(http.MethodGet)
	router.HandleFunc("/scans/{id}", h.GetScan).Methods(http.MethodGet)
	router.HandleFunc("/scans/{id}", h.StopScan).Methods(http.MethodDelete)
	router.HandleFunc("/scans/{id}/stream", ws.StreamScan).Methods(http.MethodGet)
	return router
}

func doRequest(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}
