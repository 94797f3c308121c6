package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anstrom/pingscan/internal/errors"
	"github.com/anstrom/pingscan/internal/logging"
	"github.com/anstrom/pingscan/internal/probe"
	"github.com/anstrom/pingscan/internal/probe/probetest"
	"github.com/anstrom/pingscan/internal/results"
	"github.com/anstrom/pingscan/internal/scan"
	"github.com/anstrom/pingscan/internal/services"
)

func newTestManager(t *testing.T, cfg Config, probers ...probe.Prober) *Manager {
	t.Helper()
	if cfg.Pool.Size == 0 {
		cfg.Pool = PoolConfig{Size: 2, QueueSize: 8, ShutdownTimeout: 2 * time.Second}
	}
	m := NewManager(cfg, probe.NewRegistry(probers...), logging.NewDiscard(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	m.Start(ctx)
	t.Cleanup(func() {
		cancel()
		_ = m.Shutdown()
	})
	return m
}

func waitDone(t *testing.T, job *ScanJob) {
	t.Helper()
	require.Eventually(t, job.Done, 2*time.Second, 5*time.Millisecond)
}

func TestSubmitRunsScan(t *testing.T) {
	m := newTestManager(t, Config{}, probetest.Succeed(services.ICMP, time.Millisecond))

	job, err := m.Submit(Request{Targets: "10.0.0.0/30", Services: map[string]string{"icmp": ""}})
	require.NoError(t, err)
	assert.NotEmpty(t, job.ID())

	waitDone(t, job)
	assert.Equal(t, scan.StatusCompleted, job.Status())

	snap := job.Results()
	require.NotNil(t, snap)
	assert.True(t, snap.Finalized)
	assert.Equal(t, results.Summary{Up: 4}, snap.Summary())

	info := job.Info()
	assert.Equal(t, SourceAPI, info.Source)
	assert.Equal(t, 4, info.Addresses)
	assert.Equal(t, []string{"icmp"}, info.Protocols)
	assert.Equal(t, results.Progress{Completed: 4, Total: 4}, info.Progress)
	assert.NotNil(t, info.StartedAt)
}

func TestSubmitInvalidTargets(t *testing.T) {
	m := newTestManager(t, Config{}, probetest.Succeed(services.ICMP, 0))

	_, err := m.Submit(Request{Targets: "not a host!"})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeTargetInvalid))
	assert.Empty(t, m.List())
}

func TestSubmitInvalidServices(t *testing.T) {
	m := newTestManager(t, Config{}, probetest.Succeed(services.TCP, 0))

	_, err := m.Submit(Request{Targets: "10.0.0.1", Services: map[string]string{"tcp": "0-99999"}})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeValidation))
}

func TestSubmitMissingProber(t *testing.T) {
	m := newTestManager(t, Config{}, probetest.Succeed(services.TCP, 0))

	_, err := m.Submit(Request{Targets: "10.0.0.1", Services: map[string]string{"udp": "53"}})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeConfiguration))
}

func TestSubmitAddressLimit(t *testing.T) {
	m := newTestManager(t, Config{MaxAddresses: 2}, probetest.Succeed(services.ICMP, 0))

	_, err := m.Submit(Request{Targets: "10.0.0.0/29", Services: map[string]string{"icmp": ""}})
	require.Error(t, err)
}

func TestSubmitQueueFullIsNotTracked(t *testing.T) {
	icmp := probetest.Succeed(services.ICMP, time.Minute)
	m := newTestManager(t, Config{Pool: PoolConfig{Size: 1, QueueSize: 1, ShutdownTimeout: 2 * time.Second}}, icmp)

	req := Request{Targets: "10.0.0.1", Services: map[string]string{"icmp": ""}}
	running, err := m.Submit(req)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return running.Status() == scan.StatusRunning }, time.Second, 5*time.Millisecond)

	queued, err := m.Submit(req)
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, queued.Status())

	_, err = m.Submit(req)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeQueueFull))
	assert.Len(t, m.List(), 2)
}

func TestStopRunningScan(t *testing.T) {
	m := newTestManager(t, Config{}, probetest.Succeed(services.ICMP, time.Minute))

	job, err := m.Submit(Request{Targets: "10.0.0.1,10.0.0.2", Services: map[string]string{"icmp": ""}})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return job.Status() == scan.StatusRunning }, time.Second, 5*time.Millisecond)

	stopped, err := m.Stop(job.ID())
	require.NoError(t, err)
	assert.True(t, stopped)

	waitDone(t, job)
	assert.Equal(t, scan.StatusStopped, job.Status())
	assert.Equal(t, results.Summary{Unknown: 2}, job.Results().Summary())

	stopped, err = m.Stop(job.ID())
	require.NoError(t, err)
	assert.False(t, stopped)
}

func TestStopQueuedScan(t *testing.T) {
	m := newTestManager(t, Config{Pool: PoolConfig{Size: 1, QueueSize: 4, ShutdownTimeout: 2 * time.Second}},
		probetest.Succeed(services.ICMP, time.Minute))

	req := Request{Targets: "10.0.0.1", Services: map[string]string{"icmp": ""}}
	first, err := m.Submit(req)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return first.Status() == scan.StatusRunning }, time.Second, 5*time.Millisecond)

	second, err := m.Submit(req)
	require.NoError(t, err)

	stopped, err := m.Stop(second.ID())
	require.NoError(t, err)
	assert.True(t, stopped)
	assert.Equal(t, scan.StatusStopped, second.Status())
	assert.Nil(t, second.Results())

	// Once the worker frees up, the cancelled job finishes without scanning.
	_, err = m.Stop(first.ID())
	require.NoError(t, err)
	waitDone(t, second)
	assert.False(t, second.Scanner().Started())
}

func TestGetAndList(t *testing.T) {
	m := newTestManager(t, Config{}, probetest.Succeed(services.ICMP, 0))

	_, err := m.Get("missing")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeNotFound))

	_, err = m.Stop("missing")
	assert.True(t, errors.IsCode(err, errors.CodeNotFound))

	a, err := m.Submit(Request{Targets: "10.0.0.1", Services: map[string]string{"icmp": ""}})
	require.NoError(t, err)
	b, err := m.Submit(Request{Name: "nightly", Source: SourceSchedule, Targets: "10.0.0.2",
		Services: map[string]string{"icmp": ""}})
	require.NoError(t, err)

	got, err := m.Get(b.ID())
	require.NoError(t, err)
	assert.Same(t, b, got)
	assert.Equal(t, "nightly", got.Info().Name)
	assert.Equal(t, SourceSchedule, got.Info().Source)

	list := m.List()
	require.Len(t, list, 2)
	assert.Equal(t, a.ID(), list[0].ID())
	assert.Equal(t, b.ID(), list[1].ID())
}

func TestPrune(t *testing.T) {
	m := newTestManager(t, Config{Retention: time.Minute}, probetest.Succeed(services.ICMP, 0))

	job, err := m.Submit(Request{Targets: "10.0.0.1", Services: map[string]string{"icmp": ""}})
	require.NoError(t, err)
	waitDone(t, job)

	assert.Equal(t, 0, m.Prune(time.Now()))
	assert.Equal(t, 1, m.Prune(time.Now().Add(2*time.Minute)))

	_, err = m.Get(job.ID())
	assert.True(t, errors.IsCode(err, errors.CodeNotFound))
}

func TestScansShareLimiter(t *testing.T) {
	icmp := probetest.Succeed(services.ICMP, 20*time.Millisecond)
	m := newTestManager(t, Config{Workers: 2, Pool: PoolConfig{Size: 4, QueueSize: 4, ShutdownTimeout: 2 * time.Second}}, icmp)

	var jobs []*ScanJob
	for i := 0; i < 3; i++ {
		job, err := m.Submit(Request{Targets: "10.0.0.0/29", Services: map[string]string{"icmp": ""}})
		require.NoError(t, err)
		jobs = append(jobs, job)
	}
	for _, job := range jobs {
		waitDone(t, job)
	}

	assert.LessOrEqual(t, icmp.MaxInFlight(), 2)
	assert.Equal(t, 24, icmp.Calls())
}

func TestRequestWorkersBoundScan(t *testing.T) {
	icmp := probetest.Succeed(services.ICMP, 10*time.Millisecond)
	m := newTestManager(t, Config{Workers: 8}, icmp)

	job, err := m.Submit(Request{Targets: "10.0.0.0/29", Services: map[string]string{"icmp": ""}, Workers: 1})
	require.NoError(t, err)
	waitDone(t, job)

	assert.Equal(t, 1, icmp.MaxInFlight())
	assert.Equal(t, 8, icmp.Calls())
}

func TestStats(t *testing.T) {
	m := newTestManager(t, Config{}, probetest.Succeed(services.ICMP, 0))
	stats := m.Stats()
	assert.Equal(t, 0, stats["scans"])
	assert.Equal(t, 0, stats["stalled"])
	assert.Contains(t, stats, "probes")
}

func TestStatsUsesEachScansTimeout(t *testing.T) {
	tcp := probetest.Succeed(services.TCP, 300*time.Millisecond)
	m := newTestManager(t, Config{Timeout: 5 * time.Millisecond}, tcp)

	job, err := m.Submit(Request{
		Targets:  "10.0.0.1",
		Services: map[string]string{"tcp": "80"},
		Timeout:  time.Second,
	})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return tcp.Calls() == 1 }, time.Second, time.Millisecond)

	// Held well past four default timeouts but within the scan's own.
	time.Sleep(50 * time.Millisecond)
	stats := m.Stats()
	assert.Equal(t, 0, stats["stalled"])

	waitDone(t, job)
}

func TestShutdownFinishesQueuedScans(t *testing.T) {
	m := newTestManager(t, Config{Pool: PoolConfig{Size: 1, QueueSize: 4, ShutdownTimeout: 2 * time.Second}},
		probetest.Succeed(services.ICMP, time.Minute))

	req := Request{Targets: "10.0.0.1", Services: map[string]string{"icmp": ""}}
	first, err := m.Submit(req)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return first.Status() == scan.StatusRunning }, time.Second, 5*time.Millisecond)

	second, err := m.Submit(req)
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, second.Status())

	require.NoError(t, m.Shutdown())

	waitDone(t, first)
	assert.True(t, second.Done())
	assert.Equal(t, scan.StatusStopped, second.Status())
	assert.False(t, second.Scanner().Started())
	assert.Nil(t, second.Results())
}
